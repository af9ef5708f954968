package health

import (
	"fmt"
	"runtime"
	"time"

	"gorm.io/gorm"
)

// HealthStatus is the aggregate health report.
type HealthStatus struct {
	Status    string                     `json:"status"` // "healthy" or "degraded"
	Timestamp time.Time                  `json:"timestamp"`
	Version   string                     `json:"version"`
	Uptime    int64                      `json:"uptime_seconds"`
	Checks    map[string]ComponentHealth `json:"checks"`
	Duration  int64                      `json:"duration_ms"`
}

// ComponentHealth reports one component.
type ComponentHealth struct {
	Healthy   bool   `json:"healthy"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SystemMetrics captures current runtime metrics.
type SystemMetrics struct {
	MemoryUsageMB  uint64 `json:"memory_usage_mb"`
	GoroutineCount int    `json:"goroutine_count"`
	CPUNumCores    int    `json:"cpu_num_cores"`
	Uptime         int64  `json:"uptime_seconds"`
}

// HealthChecker probes the database and runtime.
type HealthChecker struct {
	db        *gorm.DB
	version   string
	startTime time.Time
}

func NewHealthChecker(db *gorm.DB, version string) *HealthChecker {
	return &HealthChecker{
		db:        db,
		version:   version,
		startTime: time.Now(),
	}
}

// Check runs every probe and reports aggregate status.
func (hc *HealthChecker) Check() HealthStatus {
	start := time.Now()

	checks := map[string]ComponentHealth{
		"database":   hc.checkDatabase(),
		"memory":     checkMemory(),
		"goroutines": checkGoroutines(),
	}

	status := "healthy"
	for _, check := range checks {
		if !check.Healthy {
			status = "degraded"
			break
		}
	}

	return HealthStatus{
		Status:    status,
		Timestamp: start,
		Version:   hc.version,
		Uptime:    int64(time.Since(hc.startTime).Seconds()),
		Checks:    checks,
		Duration:  time.Since(start).Milliseconds(),
	}
}

func (hc *HealthChecker) checkDatabase() ComponentHealth {
	if hc.db == nil {
		return ComponentHealth{Error: "database not initialized"}
	}

	start := time.Now()
	sqlDB, err := hc.db.DB()
	if err != nil {
		return ComponentHealth{Error: fmt.Sprintf("failed to get database connection: %v", err)}
	}
	if err := sqlDB.Ping(); err != nil {
		return ComponentHealth{Error: fmt.Sprintf("database ping failed: %v", err)}
	}

	return ComponentHealth{Healthy: true, LatencyMS: time.Since(start).Milliseconds()}
}

func checkMemory() ComponentHealth {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	// Alert above 500MB allocated
	return ComponentHealth{Healthy: m.Alloc/1024/1024 < 500}
}

func checkGoroutines() ComponentHealth {
	return ComponentHealth{Healthy: runtime.NumGoroutine() < 10000}
}

// IsReady reports whether the service can serve traffic.
func (hc *HealthChecker) IsReady() bool {
	if hc.db == nil {
		return false
	}
	sqlDB, err := hc.db.DB()
	if err != nil {
		return false
	}
	return sqlDB.Ping() == nil
}

// IsAlive reports whether the process is running.
func (hc *HealthChecker) IsAlive() bool {
	return true
}

// GetMetrics returns current runtime metrics.
func (hc *HealthChecker) GetMetrics() SystemMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemMetrics{
		MemoryUsageMB:  m.Alloc / 1024 / 1024,
		GoroutineCount: runtime.NumGoroutine(),
		CPUNumCores:    runtime.NumCPU(),
		Uptime:         int64(time.Since(hc.startTime).Seconds()),
	}
}
