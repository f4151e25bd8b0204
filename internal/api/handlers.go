package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"patrolwatch/internal/engine"
	"patrolwatch/internal/metrics"
	"patrolwatch/internal/model"
	"patrolwatch/internal/query"
)

type statusResponse struct {
	Status     string        `json:"status"`
	Time       string        `json:"time"`
	Version    string        `json:"version"`
	ConfigPath string        `json:"config_path"`
	Snapshot   uint64        `json:"snapshot_version"`
	Scheduler  metrics.Stats `json:"scheduler"`
	Clients    int           `json:"websocket_clients"`
	Interval   string        `json:"tick_interval"`
	Roster     rosterStatus  `json:"roster"`
	Publish    publishStatus `json:"publish"`
}

type rosterStatus struct {
	Enabled bool   `json:"enabled"`
	Driver  string `json:"driver,omitempty"`
}

type publishStatus struct {
	Kafka bool `json:"kafka"`
	NATS  bool `json:"nats"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Status:    "ok",
		Time:      time.Now().UTC().Format(time.RFC3339Nano),
		Version:   s.version,
		Snapshot:  s.engine.Snapshot().Version,
		Scheduler: s.engine.Metrics(),
	}
	if s.ws != nil {
		resp.Clients = s.ws.Connected()
	}
	if s.cfg != nil {
		cfg := s.cfg.Get()
		resp.ConfigPath = s.cfg.Path()
		resp.Interval = cfg.Simulation.TickInterval.String()
		resp.Roster = rosterStatus{Enabled: cfg.Roster.Enabled}
		if cfg.Roster.Enabled {
			resp.Roster.Driver = cfg.Roster.Driver
		}
		resp.Publish = publishStatus{Kafka: cfg.Publish.Kafka.Enabled, NATS: cfg.Publish.NATS.Enabled}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := query.ParseFilter(q.Get("q"), q.Get("network"), q.Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_filter", err.Error())
		return
	}
	items := s.engine.Query(filter)
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items), "filter": filter})
}

func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	device, err := s.engine.Device(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, engine.ErrDeviceNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "Device not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, device)
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	onlyOpen := false
	if raw := strings.TrimSpace(q.Get("unacknowledged")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_unacknowledged_filter", "unacknowledged must be true or false")
			return
		}
		onlyOpen = value
	}
	limit := 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	deviceID := strings.TrimSpace(q.Get("device"))

	all := s.engine.Alerts()
	items := make([]model.Alert, 0, len(all))
	open := 0
	for _, a := range all {
		if !a.Acknowledged {
			open++
		}
		if deviceID != "" && !strings.EqualFold(a.DeviceID, deviceID) {
			continue
		}
		if onlyOpen && a.Acknowledged {
			continue
		}
		items = append(items, a)
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items), "unacknowledged": open})
}

// acknowledgeAlert answers 200 even for unknown ids; acknowledged says
// whether this call changed anything.
func (s *Server) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	changed := s.engine.Acknowledge(id)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id, "acknowledged": changed})
}

func (s *Server) networkStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.engine.NetworkStats()})
}

func (s *Server) summary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Summary())
}

func (s *Server) snapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) reset(w http.ResponseWriter, _ *http.Request) {
	snap := s.engine.Reset()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "version": snap.Version})
}

func (s *Server) clear(w http.ResponseWriter, _ *http.Request) {
	snap := s.engine.ClearAlerts()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "version": snap.Version})
}
