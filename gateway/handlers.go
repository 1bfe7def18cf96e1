package gateway

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/c360/refreshkit/errors"
	"github.com/c360/refreshkit/types"
)

// Route labels for request metrics. The raw request path would work too,
// but the catch-all route would let clients mint label values.
const (
	routeIndex   = "/"
	routeHealthz = "/healthz"
	routeKPIs    = "/kpis"
)

// handleHealthz serves the aggregated health of every registered component.
// Healthy and degraded both report 200: a degraded pipeline is still
// serving data. Only an unhealthy aggregate reports 503.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.applyCORS(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		s.writeError(w, routeHealthz, http.StatusMethodNotAllowed,
			fmt.Sprintf("method %s not allowed", r.Method))
		return
	}

	status := s.monitor.AggregateHealth(s.name)
	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, routeHealthz, code, status)
}

// handleKPIs serves the snapshot. With no parameters it returns the whole
// map keyed by "<tier>/<target>"; with ?tier= and ?target= it returns that
// pair's latest update, or 404 when nothing has arrived for it yet.
func (s *Server) handleKPIs(w http.ResponseWriter, r *http.Request) {
	s.applyCORS(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		s.writeError(w, routeKPIs, http.StatusMethodNotAllowed,
			fmt.Sprintf("method %s not allowed", r.Method))
		return
	}

	tier := r.URL.Query().Get("tier")
	target := r.URL.Query().Get("target")

	if tier == "" && target == "" {
		s.writeJSON(w, routeKPIs, http.StatusOK, s.Snapshot())
		return
	}
	if tier == "" || target == "" {
		s.writeError(w, routeKPIs, http.StatusBadRequest,
			"tier and target must be supplied together")
		return
	}

	update, err := s.Lookup(types.Tier(tier), target)
	if err != nil {
		s.writeError(w, routeKPIs, statusFor(err),
			fmt.Sprintf("no update recorded for %s/%s", tier, target))
		return
	}
	s.writeJSON(w, routeKPIs, http.StatusOK, update)
}

// handleIndex serves a small landing page naming the endpoints, the same
// way the metrics server does.
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, `<html>
<head><title>RefreshKit Gateway</title></head>
<body>
<h1>RefreshKit Gateway</h1>
<p><a href="/healthz">Health</a></p>
<p><a href="/kpis">KPI snapshot</a></p>
<p>WebSocket stream at /ws</p>
</body>
</html>`)
	if s.metrics != nil {
		s.metrics.recordRequest(routeIndex, http.StatusOK)
	}
}

// writeJSON writes a JSON response and records the request.
func (s *Server) writeJSON(w http.ResponseWriter, route string, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("Failed to write response", "route", route, "error", err)
	}
	if s.metrics != nil {
		s.metrics.recordRequest(route, status)
	}
}

// writeError writes an error response as JSON and records the request.
func (s *Server) writeError(w http.ResponseWriter, route string, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"error":  message,
		"status": status,
	}
	data, _ := json.Marshal(response)
	_, _ = w.Write(data)

	if s.metrics != nil {
		s.metrics.recordRequest(route, status)
	}
}

// applyCORS sets CORS headers when the request's origin is allowed.
func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" || !s.originAllowed(origin) {
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case stderrors.Is(err, errors.ErrCacheMiss):
		return http.StatusNotFound
	case errors.IsInvalid(err):
		return http.StatusBadRequest
	case errors.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
