package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/filegate/internal/ratelimit"
)

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	healthy        = "healthy"
	unhealthy      = "unhealthy"
)

// Checker defines the interface for checking a dependency.
type Checker interface {
	Ping(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// Handler reports dependency health for readiness and a dependency-free liveness probe.
type Handler struct {
	checks  map[string]Checker
	timeout time.Duration
}

// NewHandler creates a health handler over named checks.
func NewHandler(checks map[string]Checker) *Handler {
	return &Handler{
		checks:  checks,
		timeout: 2 * time.Second,
	}
}

// Response is the response for the health check endpoint.
type Response struct {
	Body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks,omitempty"`
	}
}

// Check pings every dependency concurrently and reports degraded if any fails.
func (h *Handler) Check(ctx context.Context, _ *struct{}) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	resp := &Response{}
	resp.Body.Status = statusOK
	resp.Body.Checks = make(map[string]string, len(h.checks))

	for name, checker := range h.checks {
		wg.Go(func() {
			state := healthy
			if err := checker.Ping(ctx); err != nil {
				state = unhealthy
			}

			mu.Lock()
			defer mu.Unlock()

			resp.Body.Checks[name] = state
			if state == unhealthy {
				resp.Body.Status = statusDegraded
			}
		})
	}

	wg.Wait()

	return resp, nil
}

// Live answers as long as the process serves HTTP.
func (h *Handler) Live(_ context.Context, _ *struct{}) (*Response, error) {
	resp := &Response{}
	resp.Body.Status = statusOK

	return resp, nil
}

// Names returns the registered check names in sorted order.
func (h *Handler) Names() []string {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// RegisterRoutes registers health check routes. Probes are exempt from rate limiting.
func RegisterRoutes(api huma.API, h *Handler) {
	exempt := map[string]any{ratelimit.MetadataKey: ratelimit.EndpointConfig{Disabled: true}}

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Dependency health",
		Tags:        []string{"Health"},
		Metadata:    exempt,
	}, h.Check)

	huma.Register(api, huma.Operation{
		OperationID: "livez",
		Method:      http.MethodGet,
		Path:        "/livez",
		Summary:     "Liveness probe",
		Tags:        []string{"Health"},
		Metadata:    exempt,
	}, h.Live)
}
