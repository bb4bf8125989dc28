package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/peerbeam/beacon/internal/journal"
	"github.com/peerbeam/beacon/internal/registry"
)

type peerView struct {
	ID              string    `json:"id"`
	IP              string    `json:"ip"`
	Port            int       `json:"port"`
	Name            string    `json:"name"`
	Version         string    `json:"version,omitempty"`
	Capabilities    []string  `json:"capabilities"`
	RegisteredAt    time.Time `json:"registeredAt"`
	LastSeen        time.Time `json:"lastSeen"`
	UpdatedAt       time.Time `json:"updatedAt"`
	ConnectionCount int       `json:"connectionCount"`
}

func viewOf(p registry.Peer) peerView {
	caps := p.Capabilities
	if caps == nil {
		caps = []string{}
	}
	return peerView{
		ID:              p.ID,
		IP:              p.IP,
		Port:            p.Port,
		Name:            p.Name,
		Version:         p.Version,
		Capabilities:    caps,
		RegisteredAt:    p.RegisteredAt,
		LastSeen:        p.LastSeen,
		UpdatedAt:       p.UpdatedAt,
		ConnectionCount: p.ConnectionCount,
	}
}

type registerRequest struct {
	ID           string   `json:"id"`
	IP           string   `json:"ip"`
	Port         int      `json:"port"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
	Version      string   `json:"version"`
}

type registerEcho struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Version      string    `json:"version,omitempty"`
	Capabilities []string  `json:"capabilities"`
	RegisteredAt time.Time `json:"registeredAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type networkSummary struct {
	TotalPeers  int `json:"totalPeers"`
	ActivePeers int `json:"activePeers"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	peer, err := s.reg.Register(registry.Registration{
		ID:           req.ID,
		IP:           req.IP,
		Port:         req.Port,
		Name:         req.Name,
		Capabilities: req.Capabilities,
		Version:      req.Version,
	})
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}

	s.jour.Record(journal.KindRegister, peer.ID, peer.IP)

	caps := peer.Capabilities
	if caps == nil {
		caps = []string{}
	}
	total, active := s.reg.Counts()
	writeJSON(w, http.StatusOK, map[string]any{
		"peer": registerEcho{
			ID:           peer.ID,
			Name:         peer.Name,
			Version:      peer.Version,
			Capabilities: caps,
			RegisteredAt: peer.RegisteredAt,
			UpdatedAt:    peer.UpdatedAt,
		},
		"network": networkSummary{TotalPeers: total, ActivePeers: active},
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := s.cfg.DefaultPageSize
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = n
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer", nil)
			return
		}
		offset = n
	}

	filter := registry.Filter{
		ActiveOnly: q.Get("active") == "true" || q.Get("active") == "1",
		Capability: q.Get("capability"),
		Version:    q.Get("version"),
	}

	peers, total := s.reg.List(filter, registry.Page{Limit: limit, Offset: offset})

	views := make([]peerView, 0, len(peers))
	for _, p := range peers {
		views = append(views, viewOf(p))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"peers": views,
		"pagination": map[string]any{
			"total":   total,
			"limit":   limit,
			"offset":  offset,
			"hasMore": offset+limit < total,
		},
		"filters": map[string]any{
			"active":     filter.ActiveOnly,
			"capability": filter.Capability,
			"version":    filter.Version,
		},
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	peer, err := s.reg.Get(r.PathValue("id"))
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(peer))
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	lastSeen, err := s.reg.Heartbeat(id)
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       id,
		"lastSeen": lastSeen,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.reg.Delete(id); err != nil {
		s.writeRegistryError(w, err)
		return
	}
	s.jour.Record(journal.KindDelete, id, "")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	total, active := s.reg.Counts()
	writeJSON(w, http.StatusOK, map[string]any{
		"totalPeers":        total,
		"activePeers":       active,
		"signalingChannels": s.dir.Count(),
		"uptime":            time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name": "beacon",
		"endpoints": map[string]string{
			"POST /api/peers/register":       "register or refresh a peer",
			"GET /api/peers":                 "list peers (limit, offset, active, capability, version)",
			"GET /api/peers/{id}":            "fetch one peer",
			"POST /api/peers/{id}/heartbeat": "refresh a peer's lastSeen",
			"DELETE /api/peers/{id}":         "remove a peer",
			"GET /api/status":                "server counters",
			"GET /health":                    "liveness probe",
			"GET /ws":                        "signaling channel (websocket)",
		},
	})
}

func (s *Server) writeRegistryError(w http.ResponseWriter, err error) {
	var ve *registry.ValidationError
	switch {
	case registry.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, "validation failed", ve.Violations)
	default:
		s.log.Errorf("Internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, violations []string) {
	body := map[string]any{"error": msg}
	if violations != nil {
		body["violations"] = violations
	}
	writeJSON(w, status, body)
}
