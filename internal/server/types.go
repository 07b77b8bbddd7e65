package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/camscan/internal/camera"
	"github.com/MeKo-Tech/camscan/internal/history"
	"github.com/MeKo-Tech/camscan/internal/session"
	"github.com/MeKo-Tech/camscan/internal/sink"
)

// Controller is the part of session.Manager the server drives.
type Controller interface {
	Start(ctx context.Context, c camera.Constraints) (session.Status, error)
	SwitchDevice(ctx context.Context, deviceID string) (session.Status, error)
	Stop() error
	Status() session.Status
	EnumerateDevices(ctx context.Context) ([]camera.Device, error)
	DefaultDevice(ctx context.Context) (camera.Device, error)
	Subscribe(buffer int) (<-chan session.Event, func())
}

// Snapshotter serves the latest preview frame.
type Snapshotter interface {
	Snapshot() ([]byte, sink.FrameInfo, error)
}

// Server exposes a session manager over HTTP and WebSocket.
type Server struct {
	sessions    Controller
	preview     Snapshotter
	history     *history.Store
	rateLimiter *RateLimiter
	corsOrigin  string
	version     string
	logger      *slog.Logger
}

// Config holds server configuration.
type Config struct {
	CORSOrigin string
	Version    string
	RateLimit  RateLimitConfig
	Logger     *slog.Logger
}

// RateLimitConfig enables per-client request limits.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
}

// Response types for API endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
	State   string `json:"state"`
}

type DevicesResponse struct {
	Devices []camera.Device `json:"devices"`
	Count   int             `json:"count"`
	Default string          `json:"default,omitempty"`
}

// StartRequest is the body of POST /session. Every field is optional.
type StartRequest struct {
	DeviceID string `json:"device_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Facing   string `json:"facing"`
}

// SwitchRequest is the body of PUT /session/device.
type SwitchRequest struct {
	DeviceID string `json:"device_id"`
}

type SessionResponse struct {
	Status session.Status `json:"status"`
}

type HistoryResponse struct {
	Entries []history.Entry `json:"entries"`
	Count   int             `json:"count"`
}

type ErrorResponse struct {
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Status  *session.Status `json:"status,omitempty"`
}

// NewServer creates a server for sessions. preview and store may be nil,
// which disables the preview and history endpoints.
func NewServer(sessions Controller, preview Snapshotter, store *history.Store, config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		sessions:   sessions,
		preview:    preview,
		history:    store,
		corsOrigin: config.CORSOrigin,
		version:    config.Version,
		logger:     logger.With("component", "server"),
	}
	if rl := config.RateLimit; rl.Enabled {
		s.rateLimiter = NewRateLimiter(rl.RequestsPerMinute, rl.RequestsPerHour, rl.MaxRequestsPerDay)
	}
	return s
}

// RateLimiter returns the limiter, or nil when rate limiting is disabled.
func (s *Server) RateLimiter() *RateLimiter { return s.rateLimiter }

// SetupRoutes registers every endpoint on r.
func (s *Server) SetupRoutes(r *mux.Router) {
	r.Use(s.metricsMiddleware)

	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.eventsWebSocketHandler).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/devices", s.devicesHandler).Methods(http.MethodGet)
	api.HandleFunc("/devices/default", s.defaultDeviceHandler).Methods(http.MethodGet)
	api.HandleFunc("/session", s.sessionStatusHandler).Methods(http.MethodGet)
	api.HandleFunc("/session", s.startSessionHandler).Methods(http.MethodPost)
	api.HandleFunc("/session", s.stopSessionHandler).Methods(http.MethodDelete)
	api.HandleFunc("/session/device", s.switchDeviceHandler).Methods(http.MethodPut)
	api.HandleFunc("/session/preview.jpg", s.previewHandler).Methods(http.MethodGet)
	api.HandleFunc("/history", s.historyHandler).Methods(http.MethodGet)
}

// Handler returns the full handler chain. CORS wraps the router so
// preflight requests are answered before method matching.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.SetupRoutes(r)
	return s.corsMiddleware(r)
}
