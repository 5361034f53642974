package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"adaptiveclean/internal/storage"
)

// Health states.
const (
	StatusOK       = "ok"
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
)

// storagePingTimeout bounds the readiness query against the store.
const storagePingTimeout = 2 * time.Second

// ClientCounter reports connected websocket clients.
type ClientCounter interface {
	ClientCount() int
}

// RunCounter reports in-flight runs.
type RunCounter interface {
	Active() int
}

// HealthService provides health check functionality
type HealthService struct {
	version   string
	buildTime string
	storeKind string
	store     storage.HistoryReader
	hub       ClientCounter
	runs      RunCounter
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthDeps are the checked components. Nil components are skipped.
type HealthDeps struct {
	Version   string
	BuildTime string
	StoreKind string
	Store     storage.HistoryReader
	Hub       ClientCounter
	Runs      RunCounter
	Logger    *slog.Logger
}

// NewHealthService creates a new health service with injected dependencies
func NewHealthService(deps HealthDeps) *HealthService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:   deps.Version,
		buildTime: deps.BuildTime,
		storeKind: deps.StoreKind,
		store:     deps.Store,
		hub:       deps.Hub,
		runs:      deps.Runs,
		startTime: time.Now(),
		logger:    logger.With(slog.String("component", "health_service")),
	}
}

// LivenessCheck reports that the process is serving.
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    StatusOK,
		Timestamp: time.Now().UTC(),
		Version:   hs.version,
		Runtime: map[string]interface{}{
			"uptime_seconds": time.Since(hs.startTime).Seconds(),
			"go_version":     runtime.Version(),
			"goroutines":     runtime.NumGoroutine(),
		},
	}
}

// ReadinessCheck pings the store and reports the live components.
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    StatusReady,
		Timestamp: time.Now().UTC(),
		Version:   hs.version,
		Services:  make(map[string]ServiceHealth),
	}

	status.Services["storage"] = hs.checkStorage(ctx)
	if hs.hub != nil {
		status.Services["websocket"] = ServiceHealth{
			Status:  StatusReady,
			Message: fmt.Sprintf("%d clients connected", hs.hub.ClientCount()),
		}
	}
	if hs.runs != nil {
		status.Services["runs"] = ServiceHealth{
			Status:  StatusReady,
			Message: fmt.Sprintf("%d active runs", hs.runs.Active()),
		}
	}

	for name, svc := range status.Services {
		if svc.Status != StatusReady {
			status.Status = StatusNotReady
			hs.logger.WarnContext(ctx, "readiness_degraded",
				slog.String("service", name),
				slog.String("message", svc.Message))
		}
	}
	return status
}

func (hs *HealthService) checkStorage(ctx context.Context) ServiceHealth {
	if hs.store == nil {
		return ServiceHealth{Status: StatusNotReady, Message: "storage not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, storagePingTimeout)
	defer cancel()
	if _, err := hs.store.RecentScores(ctx, 1); err != nil {
		return ServiceHealth{Status: StatusNotReady, Message: fmt.Sprintf("%s: %v", hs.storeKind, err)}
	}
	return ServiceHealth{Status: StatusReady, Message: hs.storeKind}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	result := map[string]interface{}{
		"version":    hs.version,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"storage":    hs.storeKind,
		"start_time": hs.startTime.UTC().Format(time.RFC3339),
	}
	if hs.buildTime != "" {
		result["build_time"] = hs.buildTime
	}
	return result
}
