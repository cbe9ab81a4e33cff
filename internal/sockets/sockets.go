// Package sockets wraps the websocket connections of signalling sessions.
// Writes from different goroutines are serialized per socket; the pool
// tracks live sockets so they can be torn down on shutdown.
package sockets

import (
	"sync"

	"github.com/gofiber/contrib/websocket"
)

type SocketID string

type Socket interface {
	ID() SocketID
	ReadMessage() (int, []byte, error)
	WriteJSON(v any) error
	Close() error
}

type socketImpl struct {
	id      SocketID
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (s *socketImpl) ID() SocketID { return s.id }

func (s *socketImpl) ReadMessage() (int, []byte, error) {
	return s.ws.ReadMessage()
}

func (s *socketImpl) WriteJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ws.WriteJSON(v)
}

func (s *socketImpl) Close() error {
	return s.ws.Close()
}

type SocketPool struct {
	mutex   sync.Mutex
	sockets map[SocketID]Socket
}

func NewSocketPool() *SocketPool {
	return &SocketPool{
		sockets: make(map[SocketID]Socket),
	}
}

func (p *SocketPool) AddSocket(id SocketID, conn *websocket.Conn) Socket {
	soc := &socketImpl{id: id, ws: conn}

	p.mutex.Lock()
	defer p.mutex.Unlock()
	if old, contains := p.sockets[id]; contains {
		_ = old.Close()
	}
	p.sockets[id] = soc
	return soc
}

func (p *SocketPool) GetSocket(id SocketID) Socket {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.sockets[id]
}

func (p *SocketPool) RemoveSocket(id SocketID) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	delete(p.sockets, id)
}

func (p *SocketPool) Close() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for _, conn := range p.sockets {
		_ = conn.Close()
	}
}
