package websocket

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tubelens/tubelens/pkg/logger"
)

var log = logger.Get("WebSocket")

type socketMessageType int

const (
	Update socketMessageType = iota
	Welcome
)

// SocketMessage is a single frame pushed to connected activity clients.
type SocketMessage struct {
	Title string                 `json:"title"`
	Body  map[string]interface{} `json:"arguments"`
	Type  socketMessageType      `json:"type"`
}

// SocketHub manages websocket upgrading, connected clients, and the
// broadcasting of activity messages to all of them. It is broadcast-only;
// frames received from clients are discarded.
type SocketHub struct {
	upgrader           *websocket.Upgrader
	clients            map[uuid.UUID]*socketClient
	registerCh         chan *socketClient
	deregisterCh       chan *socketClient
	sendCh             chan *SocketMessage
	connectionCallback func() map[string]interface{}
	running            bool
}

func New() *SocketHub {
	return &SocketHub{
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		running: false,
	}
}

// WithConnectionCallback sets a callback whose result is sent to each newly
// connected client as a welcome payload, furnishing it with current state
// without waiting for the next update broadcast.
func (hub *SocketHub) WithConnectionCallback(callback func() map[string]interface{}) {
	hub.connectionCallback = callback
}

// Start runs the hub loop until the provided context is cancelled. Must be
// running before any client upgrades or sends are attempted.
func (hub *SocketHub) Start(ctx context.Context) {
	if hub.running {
		log.Emit(logger.WARNING, "Attempting to start socket hub when already running! Ignoring request.\n")
		return
	} else if ctx.Err() != nil {
		log.Emit(logger.WARNING, "Refusing to start socket hub as provided context is already cancelled\n")
		return
	}
	log.Emit(logger.INFO, "Opening activity socket hub\n")

	hub.sendCh = make(chan *SocketMessage)
	hub.registerCh = make(chan *socketClient)
	hub.deregisterCh = make(chan *socketClient)
	hub.clients = make(map[uuid.UUID]*socketClient)
	hub.running = true

	defer hub.close()
	for {
		select {
		case message := <-hub.sendCh:
			for _, client := range hub.clients {
				if err := client.SendMessage(message); err != nil {
					log.Emit(logger.ERROR, "Failed to send message to client {%v}: %v\n", client.id, err)
				}
			}
		case client := <-hub.registerCh:
			hub.clients[client.id] = client
			log.Emit(logger.INFO, "Registered new client {%v}\n", client.id)

			if hub.connectionCallback != nil {
				welcome := &SocketMessage{Title: "CONNECTION_ESTABLISHED", Body: hub.connectionCallback(), Type: Welcome}
				if err := client.SendMessage(welcome); err != nil {
					log.Emit(logger.ERROR, "Failed to welcome client {%v}: %v\n", client.id, err)
				}
			}
		case client := <-hub.deregisterCh:
			if _, ok := hub.clients[client.id]; ok {
				delete(hub.clients, client.id)
				client.Close()
				log.Emit(logger.INFO, "Deregistered client {%v}\n", client.id)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Send broadcasts the given message to all connected clients.
func (hub *SocketHub) Send(message *SocketMessage) {
	if !hub.running {
		return
	}

	hub.sendCh <- message
}

// UpgradeToSocket upgrades the HTTP request to a websocket connection and
// registers the resulting client with the hub.
func (hub *SocketHub) UpgradeToSocket(w http.ResponseWriter, r *http.Request) {
	if !hub.running {
		log.Emit(logger.WARNING, "Rejecting websocket upgrade, hub is not running\n")
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Emit(logger.ERROR, "Failed to upgrade connection: %v\n", err)
		return
	}

	client := &socketClient{id: uuid.New(), socket: conn}
	hub.registerCh <- client

	// Drain incoming frames so close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				hub.deregisterCh <- client
				return
			}
		}
	}()
}

func (hub *SocketHub) close() {
	for _, client := range hub.clients {
		client.Close()
	}

	hub.clients = nil
	hub.running = false
	log.Emit(logger.INFO, "Activity socket hub closed\n")
}
