// Package crawlers 提供物品页抓取与字段提取
//
// # 核心组件
//
// ## StaticFetcher
//
// 基于Colly的同步抓取器。非2xx响应作为页面返回, 只有传输层失败返回error。
// 响应体完整缓冲, br/deflate在此解压, gzip由Colly处理。
//
//	fetcher, err := NewStaticFetcher(config.Fetch, headerManager)
//	page, err := fetcher.Fetch(ctx, "https://tlidb.com/en/Flame_Elementium")
//
// ## RenderFetcher
//
// 基于go-rod的渲染抓取器, 记录主文档的状态码并返回渲染后的HTML。
// 与StaticFetcher实现同一个Fetcher接口, 通过 fetch.mode: render 选择。
//
// ## 提取函数
//
// ExtractID, ExtractIcon, ExtractDescription, ExtractName 都是纯函数,
// 字段缺失时各自退化为空值, 不返回错误。ParseItemPage 组合它们:
// 非200或没有ID的页面不产生记录。
//
// ## LinkScanner
//
// 从分类页扫描物品链接: 仅保留语言前缀下的站内路径, 排除导航区块和过短路径,
// 按文档顺序去重并转为绝对URL。
package crawlers
