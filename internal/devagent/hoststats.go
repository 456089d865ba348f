package devagent

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	v1 "github.com/f9-o/agentdeck/api/v1"
)

// diskPath is the filesystem reported as "disk".
const diskPath = "/"

// HostStats samples CPU, memory and root filesystem usage of this machine.
func HostStats(ctx context.Context) (v1.SystemStats, error) {
	// interval 0 compares against the previous call, so it never blocks.
	cpuPct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return v1.SystemStats{}, fmt.Errorf("cpu: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return v1.SystemStats{}, fmt.Errorf("memory: %w", err)
	}
	du, err := disk.UsageWithContext(ctx, diskPath)
	if err != nil {
		return v1.SystemStats{}, fmt.Errorf("disk: %w", err)
	}

	s := v1.SystemStats{
		MemoryUsedBytes:  vm.Used,
		MemoryTotalBytes: vm.Total,
		DiskUsedBytes:    du.Used,
		DiskTotalBytes:   du.Total,
	}
	if len(cpuPct) > 0 {
		s.CPUUsagePercent = cpuPct[0]
	}
	return s.Normalize(), nil
}
