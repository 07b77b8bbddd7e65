package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/MeKo-Tech/camscan/internal/camera"
	"github.com/MeKo-Tech/camscan/internal/session"
	"github.com/MeKo-Tech/camscan/internal/sink"
)

const (
	maxBodyBytes        = 64 * 1024
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:  "healthy",
		Version: s.version,
		Time:    time.Now().UTC().Format(time.RFC3339),
		State:   s.sessions.Status().State.String(),
	}
	s.writeJSON(w, http.StatusOK, response)
}

// devicesHandler rescans the platform and lists video inputs.
func (s *Server) devicesHandler(w http.ResponseWriter, r *http.Request) {
	devices, err := s.sessions.EnumerateDevices(r.Context())
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	response := DevicesResponse{Devices: devices, Count: len(devices)}
	if d, err := s.sessions.DefaultDevice(r.Context()); err == nil {
		response.Default = d.ID
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) defaultDeviceHandler(w http.ResponseWriter, r *http.Request) {
	d, err := s.sessions.DefaultDevice(r.Context())
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

func (s *Server) sessionStatusHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, SessionResponse{Status: s.sessions.Status()})
}

// startSessionHandler starts scanning. An empty body uses the default
// device; a running session is switched.
func (s *Server) startSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeBadRequest(w, err.Error())
		return
	}
	if req.Width < 0 || req.Height < 0 {
		s.writeBadRequest(w, fmt.Sprintf("invalid resolution hint %dx%d", req.Width, req.Height))
		return
	}
	facing, err := camera.ParseFacing(req.Facing)
	if err != nil {
		s.writeBadRequest(w, err.Error())
		return
	}

	st, err := s.sessions.Start(requestContext(r), camera.Constraints{
		DeviceID: req.DeviceID,
		Width:    req.Width,
		Height:   req.Height,
		Facing:   facing,
	})
	sessionRequestsTotal.WithLabelValues("start", reasonLabel(err)).Inc()
	if err != nil {
		s.writeError(w, err, &st)
		return
	}
	s.logger.Info("Session started", "session_id", st.SessionID, "remote_addr", r.RemoteAddr)
	s.writeJSON(w, http.StatusOK, SessionResponse{Status: st})
}

func (s *Server) switchDeviceHandler(w http.ResponseWriter, r *http.Request) {
	var req SwitchRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeBadRequest(w, err.Error())
		return
	}
	if req.DeviceID == "" {
		s.writeBadRequest(w, "device_id is required")
		return
	}

	st, err := s.sessions.SwitchDevice(requestContext(r), req.DeviceID)
	sessionRequestsTotal.WithLabelValues("switch", reasonLabel(err)).Inc()
	if err != nil {
		s.writeError(w, err, &st)
		return
	}
	s.writeJSON(w, http.StatusOK, SessionResponse{Status: st})
}

// stopSessionHandler stops scanning. Stopping an idle manager succeeds.
func (s *Server) stopSessionHandler(w http.ResponseWriter, r *http.Request) {
	err := s.sessions.Stop()
	sessionRequestsTotal.WithLabelValues("stop", reasonLabel(err)).Inc()
	if err != nil {
		// Tracks are released even when a stop reports errors.
		s.logger.Warn("Session stop reported errors", "error", err)
	}
	s.writeJSON(w, http.StatusOK, SessionResponse{Status: s.sessions.Status()})
}

func (s *Server) previewHandler(w http.ResponseWriter, r *http.Request) {
	if s.preview == nil {
		s.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "preview_disabled", Message: "preview is not enabled"})
		return
	}
	data, info, err := s.preview.Snapshot()
	if errors.Is(err, sink.ErrNoFrame) {
		s.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no_frame", Message: err.Error()})
		return
	}
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: session.ReasonInternal, Message: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Frame-Count", strconv.FormatUint(info.Frames, 10))
	w.Header().Set("X-Stream-ID", info.StreamID)
	_, _ = w.Write(data)
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "history_disabled", Message: "scan history is not enabled"})
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryLimit {
			s.writeBadRequest(w, fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit))
			return
		}
		limit = n
	}
	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: session.ReasonInternal, Message: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, HistoryResponse{Entries: entries, Count: len(entries)})
}

// requestContext keeps request values but not cancellation: a client that
// disconnects mid-start must not leave a half-acquired device.
func requestContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusCode maps session errors to HTTP statuses.
func statusCode(err error) int {
	switch {
	case errors.Is(err, session.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, session.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrDeviceBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrEnumerationFailed), errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func reasonLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return session.ReasonOf(err)
}

func (s *Server) writeError(w http.ResponseWriter, err error, st *session.Status) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err, "status", code)
	}
	s.writeJSON(w, code, ErrorResponse{Error: session.ReasonOf(err), Message: err.Error(), Status: st})
}

func (s *Server) writeBadRequest(w http.ResponseWriter, message string) {
	s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: message})
}

// writeJSON writes v as a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Error encoding response", "error", err)
	}
}
