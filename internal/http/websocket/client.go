package websocket

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// socketClient wraps a single websocket connection. Writes are serialized
// with a mutex as gorilla connections permit only one concurrent writer.
type socketClient struct {
	id         uuid.UUID
	socket     *websocket.Conn
	writeMutex sync.Mutex
}

func (client *socketClient) SendMessage(message *SocketMessage) error {
	client.writeMutex.Lock()
	defer client.writeMutex.Unlock()

	return client.socket.WriteJSON(message)
}

func (client *socketClient) Close() {
	client.socket.Close()
}
