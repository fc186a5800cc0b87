// Package apiserver is the operator-facing admin HTTP surface: read-only
// pool/drive inspection, a rebalance trigger, and a live progress feed over
// a websocket. It is distinct from the replicated-file data path, which
// has no network-facing API of its own.
package apiserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"kydras/internal/engine"
	"kydras/internal/kerr"
	"kydras/internal/poolmodel"
	kwebsocket "kydras/internal/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the admin HTTP surface over an Engine.
type Server struct {
	eng *engine.Engine
	hub *kwebsocket.MonitorHub
}

// New builds a Server and starts its monitor hub's event loop. It also
// registers the engine's heal callback so repairs performed during reads
// show up on the monitor feed alongside rebalance and health events.
func New(eng *engine.Engine) *Server {
	s := &Server{eng: eng, hub: kwebsocket.NewMonitorHub()}
	go s.hub.Run()
	eng.OnHeal(func(driveRoot string) {
		s.hub.Broadcast(kwebsocket.EventHealRepaired, map[string]string{"drive_root": driveRoot}, kwebsocket.SeverityWarning)
	})
	return s
}

// Hub returns the server's monitor hub so callers outside the HTTP surface
// (e.g. a drive heartbeat monitor) can broadcast to the same connected
// clients.
func (s *Server) Hub() *kwebsocket.MonitorHub {
	return s.hub
}

// Router builds the mux.Router exposing the admin surface.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/pools", s.handleListPools).Methods(http.MethodGet)
	r.HandleFunc("/pools/{id}", s.handleGetPool).Methods(http.MethodGet)
	r.HandleFunc("/pools/{id}/rebalance", s.handleRebalance).Methods(http.MethodPost)
	r.HandleFunc("/drives/health", s.handleDriveHealth).Methods(http.MethodGet)
	r.HandleFunc("/monitor", s.handleMonitor)
	return r
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

type poolView struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Type      string      `json:"type"`
	MountHint string      `json:"mount_hint"`
	Drives    []driveView `json:"drives"`
}

type driveView struct {
	RootPath string `json:"root_path"`
	Health   string `json:"health"`
	Tier     string `json:"tier"`
	Free     string `json:"free"`
	Total    string `json:"total"`
}

func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request) {
	pools := s.eng.ListPools()
	views := make([]poolView, 0, len(pools))
	for _, p := range pools {
		views = append(views, toPoolView(p))
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	pool, ok := s.eng.GetPool(id)
	if !ok {
		http.Error(w, "pool not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, toPoolView(pool))
}

func (s *Server) handleRebalance(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.hub.Broadcast(kwebsocket.EventRebalanceStarted, map[string]string{"pool_id": id}, kwebsocket.SeverityInfo)

	report, err := s.eng.Rebalance(id)
	if err != nil {
		s.hub.Broadcast(kwebsocket.EventRebalanceFailed, map[string]string{"pool_id": id, "error": err.Error()}, kwebsocket.SeverityCritical)
		status := http.StatusInternalServerError
		if errors.Is(err, kerr.ErrPoolNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	s.hub.Broadcast(kwebsocket.EventRebalanceFinished, report, kwebsocket.SeverityInfo)
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleDriveHealth(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "path query param required", http.StatusBadRequest)
		return
	}
	health := s.eng.CheckDriveHealth(path)
	respondJSON(w, http.StatusOK, map[string]string{"path": path, "health": string(health)})
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.hub.Register(conn)
	defer s.hub.Unregister(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func toPoolView(p *poolmodel.StoragePool) poolView {
	drives := make([]driveView, 0, len(p.Drives))
	for _, d := range p.Drives {
		drives = append(drives, driveView{
			RootPath: d.RootPath,
			Health:   string(d.Health),
			Tier:     string(d.Tier),
			Free:     humanize.Bytes(d.FreeBytes),
			Total:    humanize.Bytes(d.TotalBytes),
		})
	}
	return poolView{
		ID:        p.ID,
		Name:      p.Name,
		Type:      string(p.Type),
		MountHint: p.MountHint,
		Drives:    drives,
	}
}
