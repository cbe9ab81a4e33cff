package signalling

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/confmesh/sfu/internal/api"
	"github.com/confmesh/sfu/internal/metrics"
	"github.com/confmesh/sfu/internal/room"
	"github.com/confmesh/sfu/internal/sockets"
	"github.com/confmesh/sfu/internal/utils"
)

const (
	outboundQueueSize = 256
	pingInterval      = 30 * time.Second

	// maxViolations is how many malformed frames a session survives before
	// it is closed.
	maxViolations = 3
)

// droppableEvents may be discarded under backpressure; they are periodic
// and the next report supersedes the lost one. Membership events are never
// dropped.
var droppableEvents = map[string]bool{
	string(api.EventAudioVolume):     true,
	string(api.EventDominantSpeaker): true,
}

// Session owns one signalling connection: the serialized inbound request
// loop and the bounded outbound event queue. It is the room.Sender for its
// peer.
type Session struct {
	id     string
	log    *slog.Logger
	socket sockets.Socket
	server *Server

	out       chan api.Envelope
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	pinger    utils.IntervalTimer

	mu         sync.Mutex
	room       *room.Room
	violations int
}

func NewSession(id string, log *slog.Logger, socket sockets.Socket, server *Server) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:     id,
		log:    log.With("session", id),
		socket: socket,
		server: server,
		out:    make(chan api.Envelope, outboundQueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	s.pinger = utils.SetIntervalTimer(pingInterval, func() {
		s.Send(api.Envelope{Type: "ping"})
	})
	return s
}

// Send enqueues an outbound event without ever blocking the caller (it
// runs inside the room lock). When the queue is full, droppable events are
// discarded. Anything else may only evict droppable backlog; once the
// backlog is all non-droppable the client has stopped consuming events it
// cannot afford to miss, and the session is closed rather than left with a
// corrupted view of the room.
func (s *Session) Send(ev api.Envelope) {
	if s.ctx.Err() != nil {
		return
	}
	if droppableEvents[ev.Type] {
		select {
		case s.out <- ev:
			metrics.OutboundEventsTotal.WithLabelValues(ev.Type).Inc()
		default:
			metrics.OutboundEventsDroppedTotal.WithLabelValues(ev.Type).Inc()
		}
		return
	}
	for {
		select {
		case s.out <- ev:
			metrics.OutboundEventsTotal.WithLabelValues(ev.Type).Inc()
			return
		case <-s.ctx.Done():
			return
		default:
		}
		select {
		case old := <-s.out:
			if droppableEvents[old.Type] {
				metrics.OutboundEventsDroppedTotal.WithLabelValues(old.Type).Inc()
				continue
			}
			// Put it back rather than lose it outright; the writer may
			// still flush part of the backlog before the socket dies.
			select {
			case s.out <- old:
			default:
			}
			metrics.OutboundEventsDroppedTotal.WithLabelValues(ev.Type).Inc()
			s.log.Warn("outbound queue overrun, closing session", "event", ev.Type)
			s.Close()
			return
		default:
		}
	}
}

// Close tears the session down from the room side (eviction, ban, server
// shutdown). The read loop then exits on the closed socket.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.pinger.Stop()
		_ = s.socket.Close()
	})
}

// Run services the connection until it drops, then releases everything the
// session owns.
func (s *Session) Run() {
	metrics.ActiveSessions.Inc()
	metrics.SessionsTotal.Inc()
	s.wg.Add(1)
	go s.writerLoop()

	s.readLoop()

	s.Close()
	s.leaveRoom()
	s.wg.Wait()
	s.server.sessions.RemoveSocket(sockets.SocketID(s.id))
	metrics.ActiveSessions.Dec()
	metrics.SessionDisconnectsTotal.Inc()
	s.log.Debug("session closed")
}

func (s *Session) leaveRoom() {
	s.mu.Lock()
	r := s.room
	s.room = nil
	s.mu.Unlock()
	if r != nil {
		r.ExitPeer(s.id)
	}
}

func (s *Session) currentRoom() *room.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Session) setRoom(r *room.Room) {
	s.mu.Lock()
	s.room = r
	s.mu.Unlock()
}

func (s *Session) writerLoop() {
	defer s.wg.Done()
	for {
		select {
		case ev := <-s.out:
			if err := s.socket.WriteJSON(ev); err != nil {
				s.log.Debug("write failed", "error", err)
				s.cancel()
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// readLoop handles inbound frames one at a time; requests from the same
// session are therefore serialized in receive order.
func (s *Session) readLoop() {
	for {
		_, raw, err := s.socket.ReadMessage()
		if err != nil {
			return
		}
		var env api.Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
			if s.violation("malformed frame") {
				return
			}
			continue
		}
		if env.Type == "pong" || env.Type == "ping" {
			continue
		}

		if env.AckID != nil {
			s.handleRequest(env)
			continue
		}
		if relayedEvents[api.EventType(env.Type)] {
			s.handleRelay(env)
			continue
		}
		if s.violation("unexpected frame type " + env.Type) {
			return
		}
	}
}

// violation counts a protocol offence; true means the session must close.
func (s *Session) violation(reason string) bool {
	metrics.ProtocolViolationsTotal.Inc()
	s.mu.Lock()
	s.violations++
	fatal := s.violations >= maxViolations
	s.mu.Unlock()
	s.log.Warn("protocol violation", "reason", reason, "fatal", fatal)
	if fatal {
		s.Close()
	}
	return fatal
}

func (s *Session) reply(ackID uint64, data any, reqErr error) {
	env := api.Envelope{AckID: &ackID}
	if reqErr != nil {
		env.Error = api.AsError(reqErr)
	} else if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			env.Error = api.NewError(api.KindIOError, "encode response: %v", err)
		} else {
			env.Data = raw
		}
	}
	if err := s.socket.WriteJSON(env); err != nil {
		s.log.Debug("reply write failed", "error", err)
		s.cancel()
	}
}

func (s *Session) handleRelay(env api.Envelope) {
	r := s.currentRoom()
	if r == nil {
		return
	}
	if err := r.Relay(s.id, env); err != nil {
		s.log.Debug("relay refused", "type", env.Type, "error", err)
	}
}
