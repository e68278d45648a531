// Package hoststats měří stav stroje, na kterém dashboard běží (typicky RPi nebo Docker host).
package hoststats

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// DefaultApps jsou části procesů, jejichž RAM sčítáme do AppRamUsedMB.
var DefaultApps = []string{"env-dashboard", "mosquitto", "postgres", "valkey"}

// Stats je jeden snímek stavu systému.
type Stats struct {
	CPULoad float64 `json:"cpu_load"`

	// Používaná RAM = Total - Available, bez diskové cache.
	RamUsedMB  float64 `json:"ram_used_mb"`
	RamTotalMB float64 `json:"ram_total_mb"`

	// Součet RSS procesů z Collector.Apps.
	AppRamUsedMB float64 `json:"app_ram_used_mb"`

	DiskUsedGB  float64 `json:"disk_used_gb"`
	DiskTotalGB float64 `json:"disk_total_gb"`

	CollectedAt time.Time `json:"collected_at"`
}

// Collector sbírá statistiky. Nulová hodnota je použitelná.
type Collector struct {
	Apps        []string
	DiskPath    string
	CPUInterval time.Duration
	Logger      *slog.Logger
}

// Collect změří CPU, RAM, procesy a disk. Chyba jedné části nezastaví ostatní,
// jen se zaloguje a hodnota zůstane nulová.
func (c Collector) Collect(ctx context.Context) Stats {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := c.CPUInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	diskPath := c.DiskPath
	if diskPath == "" {
		diskPath = "/"
	}
	apps := c.Apps
	if len(apps) == 0 {
		apps = DefaultApps
	}

	stats := Stats{CollectedAt: time.Now()}

	// 1. CPU - průměr přes všechna jádra za daný interval
	percentages, err := cpu.PercentWithContext(ctx, interval, false)
	if err == nil && len(percentages) > 0 {
		stats.CPULoad = percentages[0]
	} else {
		logger.Error("Chyba při čtení CPU statistik", "error", err)
	}

	// 2. RAM
	if vMem, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.RamUsedMB = toMB(vMem.Total - vMem.Available)
		stats.RamTotalMB = toMB(vMem.Total)
	} else {
		logger.Error("Chyba při čtení RAM statistik", "error", err)
	}

	// 3. RAM našich procesů
	stats.AppRamUsedMB = toMB(appMemory(ctx, apps))

	// 4. Disk
	if dStat, err := disk.UsageWithContext(ctx, diskPath); err == nil {
		stats.DiskUsedGB = toGB(dStat.Used)
		stats.DiskTotalGB = toGB(dStat.Total)
	} else {
		logger.Error("Chyba při čtení statistik disku", "error", err)
	}

	return stats
}

func appMemory(ctx context.Context, apps []string) uint64 {
	procs, _ := process.ProcessesWithContext(ctx)
	var sum uint64
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			// Proces mezitím skončil.
			continue
		}
		if !matchesApp(name, apps) {
			continue
		}
		if memInfo, err := p.MemoryInfoWithContext(ctx); err == nil {
			sum += memInfo.RSS
		}
	}
	return sum
}

func matchesApp(name string, apps []string) bool {
	for _, target := range apps {
		if strings.Contains(name, target) {
			return true
		}
	}
	return false
}

func toMB(b uint64) float64 { return float64(b) / 1024.0 / 1024.0 }

func toGB(b uint64) float64 { return float64(b) / 1024.0 / 1024.0 / 1024.0 }
