package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

const (
	HealthUp   = "UP"
	HealthDown = "DOWN"
)

// storagePingTimeout bounds the readiness probe of the storage.
const storagePingTimeout = 2 * time.Second

// HealthResponse is the data model sent by health endpoints.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

func (api *APIHandler) writeHealth(w http.ResponseWriter, r *http.Request, code int, resp HealthResponse) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to send health response", zap.Error(err))
	}
}

// pingStorage reports the storage status and the probe error if any.
func (api *APIHandler) pingStorage(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, storagePingTimeout)
	defer cancel()
	if err := api.bookService.Ping(ctx); err != nil {
		return HealthDown, err
	}
	return HealthUp, nil
}

// Liveness godoc
// @Summary  Liveness probe
// @Tags     health
// @Produce  json
// @Success  200  {object}  HealthResponse
// @Router   /health/live [get]
func (api *APIHandler) Liveness(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	now := api.clock.Now()
	api.writeHealth(w, r, http.StatusOK, HealthResponse{
		Status:    HealthUp,
		Timestamp: now,
		Details: map[string]interface{}{
			"uptime": fmt.Sprintf("%.0f mins", now.Sub(api.stats.started).Minutes()),
		},
	})
}

// Readiness godoc
// @Summary  Readiness probe
// @Tags     health
// @Produce  json
// @Success  200  {object}  HealthResponse
// @Failure  503  {object}  HealthResponse
// @Router   /health/ready [get]
func (api *APIHandler) Readiness(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	status, err := api.pingStorage(r.Context())
	if err != nil {
		api.GetLoggerFromContext(r.Context()).Warn("storage is not ready", zap.Error(err))
		api.writeHealth(w, r, http.StatusServiceUnavailable, HealthResponse{Status: status, Timestamp: api.clock.Now()})
		return
	}
	api.writeHealth(w, r, http.StatusOK, HealthResponse{Status: status, Timestamp: api.clock.Now()})
}

// HealthStatus godoc
// @Summary  Detailed health
// @Tags     health
// @Produce  json
// @Success  200  {object}  HealthResponse
// @Failure  503  {object}  HealthResponse
// @Router   /health/status [get]
func (api *APIHandler) HealthStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	storageStatus, err := api.pingStorage(r.Context())
	storage := map[string]interface{}{"status": storageStatus}
	if api.config != nil {
		storage["engine"] = api.config.Storage.Engine
	}
	if err != nil {
		storage["error"] = err.Error()
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	details := map[string]interface{}{
		"storage": storage,
		"runtime": map[string]interface{}{
			"version":    runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
			"heapAlloc":  mem.HeapAlloc,
			"numCPU":     runtime.NumCPU(),
		},
		"maintenance": api.mode.enabled.Load(),
	}

	code := http.StatusOK
	if storageStatus != HealthUp {
		code = http.StatusServiceUnavailable
	}
	api.writeHealth(w, r, code, HealthResponse{Status: storageStatus, Timestamp: api.clock.Now(), Details: details})
}
