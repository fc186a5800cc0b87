// Package websocket broadcasts operator-facing engine events (rebalance
// progress, read-repair actions, drive health transitions) to connected
// admin-surface clients over a live feed.
package websocket

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventKind names the kind of engine event a MonitorEvent carries.
type EventKind string

const (
	EventRebalanceStarted  EventKind = "rebalance.started"
	EventRebalanceFinished EventKind = "rebalance.finished"
	EventRebalanceFailed   EventKind = "rebalance.failed"
	EventHealRepaired      EventKind = "heal.repaired"
	EventDriveHealthChange EventKind = "drive.health_changed"
)

// Severity classifies how an operator should treat a MonitorEvent.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// MonitorEvent is one engine event pushed to connected monitor clients.
type MonitorEvent struct {
	Kind      EventKind   `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	Severity  Severity    `json:"severity"`
}

var logger = log.New(os.Stderr, "[monitor] ", log.LstdFlags)

// MonitorHub fans out MonitorEvents to every connected websocket client.
type MonitorHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan MonitorEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mutex      sync.RWMutex
}

// NewMonitorHub builds an idle hub; call Run to start fanning out events.
func NewMonitorHub() *MonitorHub {
	return &MonitorHub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan MonitorEvent, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run is the hub's event loop: register/unregister clients and fan out
// broadcast events to all of them. Intended to run in its own goroutine
// for the lifetime of the admin surface.
func (h *MonitorHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			logger.Printf("monitor client connected, total: %d", len(h.clients))

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mutex.Unlock()
			logger.Printf("monitor client disconnected, total: %d", len(h.clients))

		case event := <-h.broadcast:
			// Use Lock (not RLock): we may delete failed clients from the map.
			h.mutex.Lock()
			for client := range h.clients {
				if err := client.WriteJSON(event); err != nil {
					logger.Printf("write failed, dropping client: %v", err)
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Register adds a new client connection to the fan-out set.
func (h *MonitorHub) Register(conn *websocket.Conn) {
	h.register <- conn
}

// Unregister removes a client connection from the fan-out set.
func (h *MonitorHub) Unregister(conn *websocket.Conn) {
	h.unregister <- conn
}

// Broadcast queues an event for delivery to every connected client. The
// send is non-blocking: a full queue drops the event rather than stalling
// the caller (rebalance/heal/health-check paths must never block on a
// slow or absent monitor client).
func (h *MonitorHub) Broadcast(kind EventKind, data interface{}, severity Severity) {
	event := MonitorEvent{
		Kind:      kind,
		Timestamp: time.Now(),
		Data:      data,
		Severity:  severity,
	}

	select {
	case h.broadcast <- event:
	default:
		logger.Printf("broadcast channel full, dropping %s event", kind)
	}
}
