package storage

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/RecoveryAshes/itemsync/internal/models"
	"github.com/RecoveryAshes/itemsync/internal/utils"
	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// RESTPathPrefix REST集合路径前缀
	RESTPathPrefix = "/rest/v1/"

	// MergeDuplicates 冲突时合并而不是拒绝
	MergeDuplicates = "resolution=merge-duplicates"

	listColumns = "game_id,name_en,icon_url"
)

// RESTSink 通过REST接口upsert到远端表
type RESTSink struct {
	client      *resty.Client
	table       string
	conflictKey string
}

// NewRESTSink 创建REST同步目标
// apikey头部与Bearer令牌使用同一个密钥
func NewRESTSink(config models.SyncConfig) *RESTSink {
	client := resty.New().
		SetBaseURL(strings.TrimRight(config.BaseURL, "/")+RESTPathPrefix).
		SetHeader("apikey", config.APIKey).
		SetAuthToken(config.APIKey).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	redactor := utils.NewHeaderRedactor()
	utils.Debugf("REST同步目标: %s%s%s (%s)", config.BaseURL, RESTPathPrefix, config.Table,
		redactor.RedactToString(http.Header{
			"Apikey":        {config.APIKey},
			"Authorization": {"Bearer " + config.APIKey},
		}))

	return &RESTSink{
		client:      client,
		table:       config.Table,
		conflictKey: config.ConflictKey,
	}
}

// Upsert 发送单条记录, 以冲突键合并
// 非2xx返回 *models.StatusError
func (s *RESTSink) Upsert(ctx context.Context, record *models.ItemRecord) error {
	res, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Prefer", MergeDuplicates).
		SetQueryParam("on_conflict", s.conflictKey).
		SetBody(record.Payload()).
		Post(s.table)
	if err != nil {
		return fmt.Errorf("upsert game_id=%d: %w", record.GameID, err)
	}

	if !models.IsSuccessStatus(res.StatusCode()) {
		return &models.StatusError{StatusCode: res.StatusCode(), Body: strings.TrimSpace(res.String())}
	}
	return nil
}

// List 按game_id升序读取远端表
func (s *RESTSink) List(ctx context.Context, limit int) ([]models.ItemRecord, error) {
	var records []models.ItemRecord
	req := s.client.R().
		SetContext(ctx).
		SetQueryParam("select", listColumns).
		SetQueryParam("order", "game_id.asc").
		SetResult(&records)
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}

	res, err := req.Get(s.table)
	if err != nil {
		return nil, fmt.Errorf("读取远端表失败: %w", err)
	}
	if !models.IsSuccessStatus(res.StatusCode()) {
		return nil, &models.StatusError{StatusCode: res.StatusCode(), Body: strings.TrimSpace(res.String())}
	}
	return records, nil
}

// Close 释放空闲连接
func (s *RESTSink) Close() error {
	s.client.GetClient().CloseIdleConnections()
	return nil
}
