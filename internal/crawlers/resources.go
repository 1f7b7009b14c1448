package crawlers

import (
	"github.com/RecoveryAshes/itemsync/internal/utils"
	"github.com/shirou/gopsutil/v3/mem"
)

const (
	// TabMemoryUsage 单个渲染标签页的估计内存
	TabMemoryUsage = 100 * 1024 * 1024

	// SafetyReserveMemory 为系统保留的内存
	SafetyReserveMemory = 512 * 1024 * 1024
)

// RenderWorkerLimit 按可用内存限制render模式的并发标签页数
// 读取内存失败时返回requested
func RenderWorkerLimit(requested int) int {
	vm, err := mem.VirtualMemory()
	if err != nil {
		utils.Warnf("获取系统内存失败, 不限制并发: %v", err)
		return requested
	}
	limit := limitByMemory(requested, vm.Available)
	if limit < requested {
		utils.Warnf("可用内存 %.2f GB, render并发从 %d 降为 %d",
			float64(vm.Available)/(1024*1024*1024), requested, limit)
	}
	return limit
}

func limitByMemory(requested int, available uint64) int {
	if requested < 1 {
		return 1
	}
	if available <= SafetyReserveMemory {
		return 1
	}
	maxTabs := int((available - SafetyReserveMemory) / TabMemoryUsage)
	if maxTabs < 1 {
		maxTabs = 1
	}
	if requested > maxTabs {
		return maxTabs
	}
	return requested
}
