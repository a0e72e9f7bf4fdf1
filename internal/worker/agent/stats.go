package agent

import "github.com/docker/docker/api/types/container"

// memoryPercent computes memory usage as a percentage of the container's
// memory limit. A missing limit reads as 0 to avoid dividing by zero.
func memoryPercent(stats container.StatsResponse) float64 {
	if stats.MemoryStats.Limit == 0 {
		return 0
	}
	return float64(stats.MemoryStats.Usage) / float64(stats.MemoryStats.Limit) * 100
}

// cpuPercent computes CPU usage between the two samples docker returns,
// scaled by the number of online CPUs. Non-positive deltas read as 0.
func cpuPercent(stats container.StatsResponse) float64 {
	cpuDelta := float64(stats.CPUStats.CPUUsage.TotalUsage) - float64(stats.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(stats.CPUStats.SystemUsage) - float64(stats.PreCPUStats.SystemUsage)

	if cpuDelta <= 0 || systemDelta <= 0 {
		return 0
	}

	cpus := float64(stats.CPUStats.OnlineCPUs)
	if cpus == 0 {
		cpus = float64(len(stats.CPUStats.CPUUsage.PercpuUsage))
	}
	if cpus == 0 {
		return 0
	}

	return cpuDelta / systemDelta * cpus * 100
}
