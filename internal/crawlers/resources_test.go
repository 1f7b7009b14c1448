package crawlers

import "testing"

func TestLimitByMemory(t *testing.T) {
	const gb = 1024 * 1024 * 1024

	tests := []struct {
		name      string
		requested int
		available uint64
		want      int
	}{
		{"内存充足", 4, 8 * gb, 4},
		{"内存不足时降低", 8, SafetyReserveMemory + 3*TabMemoryUsage, 3},
		{"低于保留内存", 4, SafetyReserveMemory / 2, 1},
		{"非法请求值", 0, 8 * gb, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := limitByMemory(tt.requested, tt.available); got != tt.want {
				t.Errorf("期望 %d, 实际 %d", tt.want, got)
			}
		})
	}
}

func TestRenderWorkerLimit(t *testing.T) {
	got := RenderWorkerLimit(2)
	if got < 1 || got > 2 {
		t.Errorf("结果应在1-2之间, 实际 %d", got)
	}
}
