package crawlers

import (
	"testing"

	"github.com/RecoveryAshes/itemsync/internal/models"
	"github.com/google/go-cmp/cmp"
)

func newTestScanner(t *testing.T) *LinkScanner {
	t.Helper()
	ls, err := NewLinkScanner(models.SiteConfig{
		BaseURL:       "https://tlidb.com",
		LocalePrefix:  "/en/",
		Denylist:      []string{"Hero", "Talent"},
		MinPathLength: 6,
	})
	if err != nil {
		t.Fatalf("创建扫描器失败: %v", err)
	}
	return ls
}

func TestLinkScanner_Scan(t *testing.T) {
	ls := newTestScanner(t)

	t.Run("3个物品链接和2个导航链接", func(t *testing.T) {
		html := `<nav><a href="/en/Hero">Heroes</a><a href="/en/Talent_Tree">Talents</a></nav>
<ul>
<li><a href="/en/Flame_Elementium">Flame Elementium</a></li>
<li><a href="/en/Ember">Ember</a></li>
<li><a href="/en/Flame_Elementium">again</a></li>
<li><a href="/en/Frost_Crystal">Frost Crystal</a></li>
</ul>`
		want := []string{
			"https://tlidb.com/en/Flame_Elementium",
			"https://tlidb.com/en/Ember",
			"https://tlidb.com/en/Frost_Crystal",
		}
		if diff := cmp.Diff(want, ls.Scan(html)); diff != "" {
			t.Errorf("链接不一致 (-want +got):\n%s", diff)
		}
	})

	tests := []struct {
		name string
		href string
		keep bool
	}{
		{"其他语言", "/cn/Flame_Elementium", false},
		{"绝对URL", "https://tlidb.com/en/Flame_Elementium", false},
		{"过短路径", "/en/A", false},
		{"刚好最短长度", "/en/AB", true},
		{"去掉片段", "/en/Ember#drop", true},
		{"仅片段", "#top", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ls.Scan(`<a href="` + tt.href + `">x</a>`)
			if (len(got) == 1) != tt.keep {
				t.Errorf("href=%q 期望保留=%v, 实际 %v", tt.href, tt.keep, got)
			}
		})
	}

	t.Run("片段不同视为同一链接", func(t *testing.T) {
		got := ls.Scan(`<a href="/en/Ember#a">1</a><a href="/en/Ember#b">2</a>`)
		if len(got) != 1 || got[0] != "https://tlidb.com/en/Ember" {
			t.Errorf("期望单个去重链接, 实际 %v", got)
		}
	})

	t.Run("空文档", func(t *testing.T) {
		if got := ls.Scan(""); len(got) != 0 {
			t.Errorf("期望空结果, 实际 %v", got)
		}
	})
}
