package room

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/confmesh/sfu/internal/api"
	"github.com/confmesh/sfu/internal/config"
	"github.com/confmesh/sfu/internal/media/mediatest"
	"github.com/confmesh/sfu/internal/store"
)

// recordingSender captures every event a peer would receive.
type recordingSender struct {
	mu     sync.Mutex
	events []api.Envelope
	closed bool
}

func (s *recordingSender) Send(ev api.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *recordingSender) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *recordingSender) eventsOf(event api.EventType) []api.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []api.Envelope
	for _, ev := range s.events {
		if ev.Type == string(event) {
			out = append(out, ev)
		}
	}
	return out
}

func (s *recordingSender) lastOf(t *testing.T, event api.EventType, into any) {
	t.Helper()
	evs := s.eventsOf(event)
	if len(evs) == 0 {
		t.Fatalf("no %s event received", event)
	}
	if err := json.Unmarshal(evs[len(evs)-1].Data, into); err != nil {
		t.Fatalf("decode %s event: %v", event, err)
	}
}

func testSettings() Settings {
	return Settings{
		Room: config.RoomConfig{
			MaxParticipants:    10,
			PresenterJoinFirst: true,
			DominantSpeaker:    true,
			DestroyGrace:       time.Hour,
		},
		Recording:          config.RecordingConfig{Enabled: true},
		MaxIncomingBitrate: 1536000,
	}
}

func newTestRoom(t *testing.T, settings Settings) (*Room, *mediatest.Provider) {
	t.Helper()
	provider := mediatest.NewProvider()
	r, err := NewRoom(context.Background(), "test-room", slog.Default(), provider, store.NewMemoryStore(), settings, nil)
	if err != nil {
		t.Fatalf("NewRoom failed: %v", err)
	}
	t.Cleanup(r.Destroy)
	return r, provider
}

func peerInfo(name string) api.PeerInfo {
	return api.PeerInfo{PeerName: name, PeerUUID: "uuid-" + name}
}

// joinPeer admits a peer and fails the test on any status but ok.
func joinPeer(t *testing.T, r *Room, id, name string) (*Peer, *recordingSender) {
	t.Helper()
	sender := &recordingSender{}
	p := NewPeer(id, peerInfo(name), false, sender)
	resp, err := r.Join(context.Background(), p, "")
	if err != nil {
		t.Fatalf("join %s failed: %v", id, err)
	}
	if resp.Status != api.JoinOK {
		t.Fatalf("join %s: status = %s, want ok", id, resp.Status)
	}
	return p, sender
}

// produceAudio runs the transport/produce round-trip for one audio source.
func produceAudio(t *testing.T, r *Room, peerID string) string {
	t.Helper()
	return produceMedia(t, r, peerID, "audio", "audio")
}

func produceMedia(t *testing.T, r *Room, peerID, kind, mediaType string) string {
	t.Helper()
	transport, err := r.CreateTransport(context.Background(), peerID, false)
	if err != nil {
		t.Fatalf("createTransport for %s failed: %v", peerID, err)
	}
	resp, err := r.Produce(context.Background(), peerID, api.ProduceRequest{
		TransportID: transport.ID,
		Kind:        kind,
		AppData:     map[string]any{"mediaType": mediaType},
	})
	if err != nil {
		t.Fatalf("produce for %s failed: %v", peerID, err)
	}
	return resp.ProducerID
}

// consumeProducer creates a recv transport and a consumer on it.
func consumeProducer(t *testing.T, r *Room, peerID, producerID string) *api.ConsumeResponse {
	t.Helper()
	transport, err := r.CreateTransport(context.Background(), peerID, false)
	if err != nil {
		t.Fatalf("createTransport for %s failed: %v", peerID, err)
	}
	resp, err := r.Consume(context.Background(), peerID, api.ConsumeRequest{
		TransportID: transport.ID,
		ProducerID:  producerID,
	})
	if err != nil {
		t.Fatalf("consume for %s failed: %v", peerID, err)
	}
	return resp
}

func firstRouter(t *testing.T, provider *mediatest.Provider) *mediatest.Router {
	t.Helper()
	routers := provider.Routers()
	if len(routers) == 0 {
		t.Fatal("provider has no routers")
	}
	return routers[0]
}

func routerOf(t *testing.T, r *Room, peerID string) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	if !ok {
		t.Fatalf("peer %s not in room", peerID)
	}
	return p.router.ID()
}

func errorKind(t *testing.T, err error) api.ErrorKind {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error")
	}
	return api.AsError(err).Kind
}
