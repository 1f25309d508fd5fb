package monitor

import (
	"fmt"
	"runtime"
	"time"
)

// MemoryStats is a point-in-time view of the process runtime
type MemoryStats struct {
	AllocMB        float64   `json:"alloc_mb"`
	TotalAllocMB   float64   `json:"total_alloc_mb"`
	SysMB          float64   `json:"sys_mb"`
	NumGC          uint32    `json:"num_gc"`
	HeapObjects    uint64    `json:"heap_objects"`
	GoroutineCount int       `json:"goroutine_count"`
	LastUpdated    time.Time `json:"last_updated"`
}

func ReadMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return MemoryStats{
		AllocMB:        bytesToMB(m.Alloc),
		TotalAllocMB:   bytesToMB(m.TotalAlloc),
		SysMB:          bytesToMB(m.Sys),
		NumGC:          m.NumGC,
		HeapObjects:    m.HeapObjects,
		GoroutineCount: runtime.NumGoroutine(),
		LastUpdated:    time.Now(),
	}
}

// Pressure is allocated over system memory, capped at 1
func (s MemoryStats) Pressure() float64 {
	if s.SysMB == 0 {
		return 0
	}

	return min(s.AllocMB/s.SysMB, 1.0)
}

func (s MemoryStats) String() string {
	return fmt.Sprintf(`Memory Statistics:
  Allocated: %.2f MB
  Total Allocated: %.2f MB
  System: %.2f MB
  Heap Objects: %d
  Goroutines: %d
  GC Runs: %d
  Memory Pressure: %.2f`,
		s.AllocMB,
		s.TotalAllocMB,
		s.SysMB,
		s.HeapObjects,
		s.GoroutineCount,
		s.NumGC,
		s.Pressure(),
	)
}

func bytesToMB(b uint64) float64 {
	return float64(b) / 1024 / 1024
}
