package room

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"

	"github.com/confmesh/sfu/internal/api"
	"github.com/confmesh/sfu/internal/media"
	"github.com/confmesh/sfu/internal/media/mediatest"
	"github.com/confmesh/sfu/internal/store"
)

func TestJoinFirstPeerBecomesPresenter(t *testing.T) {
	r, _ := newTestRoom(t, testSettings())

	sender := &recordingSender{}
	p := NewPeer("p1", peerInfo("alice"), false, sender)
	resp, err := r.Join(context.Background(), p, "")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if resp.Status != api.JoinOK {
		t.Fatalf("status = %s, want ok", resp.Status)
	}
	if !resp.IsPresenter {
		t.Error("first peer should be presenter")
	}
	if len(resp.Peers) != 1 || resp.Peers[0].PeerID != "p1" {
		t.Errorf("peers = %+v, want just p1", resp.Peers)
	}
	if resp.Recording == nil || !resp.Recording.Enabled {
		t.Error("recording block missing from join response")
	}
}

func TestJoinRejectsDuplicateName(t *testing.T) {
	r, _ := newTestRoom(t, testSettings())
	joinPeer(t, r, "p1", "alice")

	dup := NewPeer("p2", peerInfo("alice"), false, &recordingSender{})
	resp, err := r.Join(context.Background(), dup, "")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if resp.Status != api.JoinNotAllowed {
		t.Errorf("status = %s, want notAllowed", resp.Status)
	}
}

func TestJoinCapacity(t *testing.T) {
	settings := testSettings()
	settings.Room.MaxParticipants = 2
	r, _ := newTestRoom(t, settings)
	joinPeer(t, r, "p1", "alice")
	joinPeer(t, r, "p2", "bob")

	third := NewPeer("p3", peerInfo("carol"), false, &recordingSender{})
	resp, err := r.Join(context.Background(), third, "")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if resp.Status != api.JoinMaxParticipants {
		t.Errorf("status = %s, want maxParticipantsReached", resp.Status)
	}
}

func TestJoinBannedPeer(t *testing.T) {
	st := store.NewMemoryStore()
	if err := st.BanPeer(context.Background(), "test-room", "uuid-mallory"); err != nil {
		t.Fatalf("ban failed: %v", err)
	}

	r, err := NewRoom(context.Background(), "test-room", slog.Default(), mediatest.NewProvider(), st, testSettings(), nil)
	if err != nil {
		t.Fatalf("NewRoom failed: %v", err)
	}
	t.Cleanup(r.Destroy)

	p := NewPeer("p1", peerInfo("mallory"), false, &recordingSender{})
	resp, err := r.Join(context.Background(), p, "")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if resp.Status != api.JoinIsBanned {
		t.Errorf("status = %s, want isBanned", resp.Status)
	}
}

func TestProduceConsumeFlow(t *testing.T) {
	r, _ := newTestRoom(t, testSettings())
	joinPeer(t, r, "p1", "alice")
	_, bobSender := joinPeer(t, r, "p2", "bob")

	producerID := produceAudio(t, r, "p1")

	var batch []api.NewProducer
	bobSender.lastOf(t, api.EventNewProducers, &batch)
	if len(batch) != 1 || batch[0].ProducerID != producerID {
		t.Fatalf("newProducers = %+v, want producer %s", batch, producerID)
	}
	if batch[0].PeerID != "p1" || batch[0].Type != "audio" {
		t.Errorf("newProducers entry = %+v", batch[0])
	}

	consumer := consumeProducer(t, r, "p2", producerID)
	if consumer.ProducerID != producerID {
		t.Errorf("consumer producer = %s, want %s", consumer.ProducerID, producerID)
	}
	if err := r.ResumeConsumer(context.Background(), "p2", consumer.ID); err != nil {
		t.Fatalf("resumeConsumer failed: %v", err)
	}
}

func TestLateJoinerGetsProducerBatch(t *testing.T) {
	r, _ := newTestRoom(t, testSettings())
	joinPeer(t, r, "p1", "alice")
	producerID := produceAudio(t, r, "p1")

	_, lateSender := joinPeer(t, r, "p2", "bob")
	var batch []api.NewProducer
	lateSender.lastOf(t, api.EventNewProducers, &batch)
	if len(batch) != 1 || batch[0].ProducerID != producerID {
		t.Errorf("catch-up batch = %+v, want producer %s", batch, producerID)
	}
}

func TestGetProducersReplay(t *testing.T) {
	r, _ := newTestRoom(t, testSettings())
	joinPeer(t, r, "p1", "alice")
	producerID := produceAudio(t, r, "p1")
	_, bobSender := joinPeer(t, r, "p2", "bob")

	if err := r.GetProducers("p2"); err != nil {
		t.Fatalf("getProducers failed: %v", err)
	}
	var batch []api.NewProducer
	bobSender.lastOf(t, api.EventNewProducers, &batch)
	if len(batch) != 1 || batch[0].ProducerID != producerID {
		t.Errorf("replay batch = %+v, want producer %s", batch, producerID)
	}
}

func TestExitPeerClosesDerivedConsumers(t *testing.T) {
	r, _ := newTestRoom(t, testSettings())
	joinPeer(t, r, "p1", "alice")
	_, bobSender := joinPeer(t, r, "p2", "bob")
	_, carolSender := joinPeer(t, r, "p3", "carol")

	producerID := produceAudio(t, r, "p1")
	bobConsumer := consumeProducer(t, r, "p2", producerID)
	carolConsumer := consumeProducer(t, r, "p3", producerID)

	r.ExitPeer("p1")

	var closed api.ConsumerClosed
	bobSender.lastOf(t, api.EventConsumerClosed, &closed)
	if closed.ConsumerID != bobConsumer.ID || closed.ProducerID != producerID {
		t.Errorf("bob consumerClosed = %+v", closed)
	}
	carolSender.lastOf(t, api.EventConsumerClosed, &closed)
	if closed.ConsumerID != carolConsumer.ID {
		t.Errorf("carol consumerClosed = %+v", closed)
	}
	if n := len(bobSender.eventsOf(api.EventConsumerClosed)); n != 1 {
		t.Errorf("bob got %d consumerClosed events, want 1", n)
	}

	var removed api.RemoveMeEvent
	bobSender.lastOf(t, api.EventRemoveMe, &removed)
	if removed.PeerID != "p1" || removed.PeerCount != 2 {
		t.Errorf("removeMe = %+v", removed)
	}
}

func TestPresenterReelection(t *testing.T) {
	r, _ := newTestRoom(t, testSettings())
	joinPeer(t, r, "p1", "alice")
	joinPeer(t, r, "p2", "bob")

	r.ExitPeer("p1")

	views := r.PeerViews()
	if len(views) != 1 {
		t.Fatalf("peers = %d, want 1", len(views))
	}
	if !views[0].Presenter {
		t.Error("remaining peer should have been promoted to presenter")
	}
}

func TestPresenterListPreferredOnReelection(t *testing.T) {
	settings := testSettings()
	settings.Room.Presenters = []string{"carol"}
	r, _ := newTestRoom(t, settings)
	joinPeer(t, r, "p1", "alice")
	joinPeer(t, r, "p2", "bob")
	joinPeer(t, r, "p3", "carol")

	r.ExitPeer("p1")

	for _, v := range r.PeerViews() {
		want := v.PeerInfo.PeerName == "carol"
		if v.Presenter != want {
			t.Errorf("peer %s presenter = %v, want %v", v.PeerInfo.PeerName, v.Presenter, want)
		}
	}
}

func TestProducerPauseResumeIdempotent(t *testing.T) {
	r, _ := newTestRoom(t, testSettings())
	joinPeer(t, r, "p1", "alice")
	producerID := produceAudio(t, r, "p1")

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := r.PauseProducer(ctx, "p1", producerID); err != nil {
			t.Fatalf("pauseProducer (%d) failed: %v", i, err)
		}
	}
	for i := 0; i < 2; i++ {
		if err := r.ResumeProducer(ctx, "p1", producerID); err != nil {
			t.Fatalf("resumeProducer (%d) failed: %v", i, err)
		}
	}
}

func TestUnknownProducerOrConsumer(t *testing.T) {
	r, _ := newTestRoom(t, testSettings())
	joinPeer(t, r, "p1", "alice")

	if kind := errorKind(t, r.PauseProducer(context.Background(), "p1", "nope")); kind != api.KindNotFound {
		t.Errorf("pause unknown producer kind = %s, want not-found", kind)
	}
	if kind := errorKind(t, r.ResumeConsumer(context.Background(), "p1", "nope")); kind != api.KindNotFound {
		t.Errorf("resume unknown consumer kind = %s, want not-found", kind)
	}
	_, err := r.CreateTransport(context.Background(), "ghost", false)
	if kind := errorKind(t, err); kind != api.KindNotFound {
		t.Errorf("createTransport for absent peer kind = %s, want not-found", kind)
	}
}

func TestConsumeIncompatibleCapabilities(t *testing.T) {
	r, provider := newTestRoom(t, testSettings())
	provider.CanConsumeFunc = func(string, *mediasoup.RtpCapabilities) bool { return false }
	joinPeer(t, r, "p1", "alice")
	joinPeer(t, r, "p2", "bob")
	producerID := produceAudio(t, r, "p1")

	transport, err := r.CreateTransport(context.Background(), "p2", false)
	if err != nil {
		t.Fatalf("createTransport failed: %v", err)
	}
	_, err = r.Consume(context.Background(), "p2", api.ConsumeRequest{
		TransportID: transport.ID,
		ProducerID:  producerID,
	})
	if kind := errorKind(t, err); kind != api.KindStateViolation {
		t.Errorf("kind = %s, want state-violation", kind)
	}
}

func TestCrossRouterConsumePipes(t *testing.T) {
	settings := testSettings()
	settings.PeersPerRouter = 1
	r, provider := newTestRoom(t, settings)
	joinPeer(t, r, "p1", "alice")
	joinPeer(t, r, "p2", "bob")

	producerID := produceAudio(t, r, "p1")
	consumeProducer(t, r, "p2", producerID)

	if len(provider.Pipes) != 1 {
		t.Fatalf("pipes = %v, want exactly one", provider.Pipes)
	}
	// A second consumer over the same pair reuses the pipe.
	consumeProducer(t, r, "p2", producerID)
	for key, n := range provider.Pipes {
		if n != 1 {
			t.Errorf("pipe %s established %d times, want 1", key, n)
		}
	}
}

func TestDestroyGraceAndRejoin(t *testing.T) {
	settings := testSettings()
	settings.Room.DestroyGrace = 40 * time.Millisecond
	emptied := make(chan struct{})
	r, err := NewRoom(context.Background(), "test-room", slog.Default(), mediatest.NewProvider(), store.NewMemoryStore(), settings, func(*Room) { close(emptied) })
	if err != nil {
		t.Fatalf("NewRoom failed: %v", err)
	}

	joinPeer(t, r, "p1", "alice")
	r.ExitPeer("p1")

	// Rejoin inside the grace period cancels destruction.
	joinPeer(t, r, "p2", "bob")
	select {
	case <-emptied:
		t.Fatal("room destroyed despite rejoin")
	case <-time.After(100 * time.Millisecond):
	}

	r.ExitPeer("p2")
	select {
	case <-emptied:
	case <-time.After(time.Second):
		t.Fatal("room not destroyed after grace period")
	}
}

func TestAudioVolumeFanOut(t *testing.T) {
	r, provider := newTestRoom(t, testSettings())
	_, aliceSender := joinPeer(t, r, "p1", "alice")
	joinPeer(t, r, "p2", "bob")
	producerID := produceAudio(t, r, "p1")

	router := firstRouter(t, provider)
	if got := router.ObservedProducers(); len(got) != 1 || got[0] != producerID {
		t.Fatalf("observed producers = %v, want [%s]", got, producerID)
	}

	router.EmitVolumes([]media.VolumeEntry{{ProducerID: producerID, Volume: -127 / 2}})

	var volumes api.AudioVolumeEvent
	aliceSender.lastOf(t, api.EventAudioVolume, &volumes)
	if len(volumes.Volumes) != 1 {
		t.Fatalf("volumes = %+v, want one entry", volumes)
	}
	v := volumes.Volumes[0]
	if v.PeerID != "p1" || v.ProducerID != producerID {
		t.Errorf("volume entry = %+v", v)
	}
	if v.Volume < 0 || v.Volume > 100 {
		t.Errorf("volume = %d, want 0..100", v.Volume)
	}

	var dominant api.DominantSpeakerEvent
	aliceSender.lastOf(t, api.EventDominantSpeaker, &dominant)
	if dominant.PeerID != "p1" {
		t.Errorf("dominant speaker = %+v, want p1", dominant)
	}

	router.EmitSilence()
	var silent api.AudioVolumeEvent
	aliceSender.lastOf(t, api.EventAudioVolume, &silent)
	if len(silent.Volumes) != 0 {
		t.Errorf("silence event volumes = %+v, want empty", silent.Volumes)
	}
}

func TestEvictRouters(t *testing.T) {
	settings := testSettings()
	settings.PeersPerRouter = 1
	r, _ := newTestRoom(t, settings)
	_, aliceSender := joinPeer(t, r, "p1", "alice")
	_, bobSender := joinPeer(t, r, "p2", "bob")

	aliceRouterID := routerOf(t, r, "p1")
	r.EvictRouters(map[string]struct{}{aliceRouterID: {}})

	var closed api.TransportClosedEvent
	aliceSender.lastOf(t, api.EventTransportClosed, &closed)
	if closed.Reason == "" {
		t.Error("transportClosed event missing a reason")
	}
	if !aliceSender.Closed() {
		t.Error("evicted peer's session should be closed")
	}

	if got := len(r.PeerViews()); got != 1 {
		t.Fatalf("peers after eviction = %d, want 1", got)
	}
	if len(bobSender.eventsOf(api.EventTransportClosed)) != 0 {
		t.Error("surviving peer should not receive transportClosed")
	}
}

func TestJoinResponseCarriesRoomConfig(t *testing.T) {
	r, _ := newTestRoom(t, testSettings())
	first := NewPeer("p1", peerInfo("alice"), false, &recordingSender{})
	resp, err := r.Join(context.Background(), first, "")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if resp.Config == nil {
		t.Fatal("join response missing the config block")
	}
	if resp.Config.MaxParticipants != 10 {
		t.Errorf("maxParticipants = %d, want 10", resp.Config.MaxParticipants)
	}
	if resp.Config.IsLocked || resp.Config.IsLobbyEnabled {
		t.Errorf("fresh room config = %+v, want unlocked and no lobby", resp.Config)
	}
	if !resp.Config.DominantSpeaker {
		t.Error("dominantSpeaker flag not carried over")
	}

	if _, err := r.RoomAction(context.Background(), "p1", api.RoomActionRequest{Action: ActionLock, Password: "pw"}); err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	second := NewPeer("p2", peerInfo("bob"), false, &recordingSender{})
	resp, err = r.Join(context.Background(), second, "pw")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if resp.Config == nil || !resp.Config.IsLocked {
		t.Errorf("config after lock = %+v, want isLocked", resp.Config)
	}
}

func TestConnectTransportIdempotent(t *testing.T) {
	r, _ := newTestRoom(t, testSettings())
	joinPeer(t, r, "p1", "alice")
	transport, err := r.CreateTransport(context.Background(), "p1", false)
	if err != nil {
		t.Fatalf("createTransport failed: %v", err)
	}

	dtls := &mediasoup.DtlsParameters{}
	if err := r.ConnectTransport(context.Background(), "p1", transport.ID, dtls); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	// A client retry after a lost ack must not hit the worker again.
	if err := r.ConnectTransport(context.Background(), "p1", transport.ID, dtls); err != nil {
		t.Fatalf("repeated connect failed: %v", err)
	}

	err = r.ConnectTransport(context.Background(), "p1", "nope", dtls)
	if kind := errorKind(t, err); kind != api.KindNotFound {
		t.Errorf("kind = %s, want not-found", kind)
	}
}

func TestExitAfterRouterEvictionKeepsCounts(t *testing.T) {
	settings := testSettings()
	settings.PeersPerRouter = 1
	r, _ := newTestRoom(t, settings)
	joinPeer(t, r, "p1", "alice")
	joinPeer(t, r, "p2", "bob")

	aliceRouterID := routerOf(t, r, "p1")
	r.EvictRouters(map[string]struct{}{aliceRouterID: {}})

	r.mu.Lock()
	count, tracked := r.routerPeers[aliceRouterID]
	r.mu.Unlock()
	if tracked {
		t.Errorf("evicted router resurrected in placement counts with %d", count)
	}
}

func TestGraceTeardownKeepsBans(t *testing.T) {
	settings := testSettings()
	settings.Room.DestroyGrace = 40 * time.Millisecond
	st := store.NewMemoryStore()
	emptied := make(chan struct{})
	r, err := NewRoom(context.Background(), "test-room", slog.Default(), mediatest.NewProvider(), st, settings, func(*Room) { close(emptied) })
	if err != nil {
		t.Fatalf("NewRoom failed: %v", err)
	}

	joinPeer(t, r, "p1", "alice")
	joinPeer(t, r, "p2", "bob")
	if err := r.PeerAction(context.Background(), "p1", api.PeerActionRequest{PeerID: "p2", Action: PeerActionBan}); err != nil {
		t.Fatalf("ban failed: %v", err)
	}
	r.ExitPeer("p1")

	select {
	case <-emptied:
	case <-time.After(time.Second):
		t.Fatal("grace teardown never fired")
	}
	if banned, _ := st.IsBanned(context.Background(), "test-room", "uuid-bob"); !banned {
		t.Error("grace teardown erased the ban list")
	}
}

func TestRestartIceReturnsFreshParameters(t *testing.T) {
	r, _ := newTestRoom(t, testSettings())
	joinPeer(t, r, "p1", "alice")
	transport, err := r.CreateTransport(context.Background(), "p1", false)
	if err != nil {
		t.Fatalf("createTransport failed: %v", err)
	}
	resp, err := r.RestartIce(context.Background(), "p1", transport.ID)
	if err != nil {
		t.Fatalf("restartIce failed: %v", err)
	}
	if resp.IceParameters == nil ||
		resp.IceParameters.UsernameFragment == transport.IceParameters.UsernameFragment {
		t.Error("restartIce should return fresh ice parameters")
	}
}

func TestRelayRequiresMembership(t *testing.T) {
	r, _ := newTestRoom(t, testSettings())
	joinPeer(t, r, "p1", "alice")
	_, bobSender := joinPeer(t, r, "p2", "bob")

	payload, _ := json.Marshal(map[string]string{"text": "hi"})
	if err := r.Relay("p1", api.Envelope{Type: string(api.EventMessage), Data: payload}); err != nil {
		t.Fatalf("relay failed: %v", err)
	}
	if len(bobSender.eventsOf(api.EventMessage)) != 1 {
		t.Error("relayed message not delivered")
	}

	err := r.Relay("ghost", api.Envelope{Type: string(api.EventMessage)})
	if kind := errorKind(t, err); kind != api.KindNotFound {
		t.Errorf("kind = %s, want not-found", kind)
	}
}
