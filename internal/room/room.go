// Package room holds the authoritative per-room state machine: admission,
// moderation, presenter election, the producer/consumer fan-out and the
// destruction grace period. Everything below it talks to the media plane
// through the media.Provider interfaces only.
package room

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"

	"github.com/confmesh/sfu/internal/api"
	"github.com/confmesh/sfu/internal/config"
	"github.com/confmesh/sfu/internal/media"
	"github.com/confmesh/sfu/internal/metrics"
	"github.com/confmesh/sfu/internal/store"
)

// Settings is the room-relevant slice of the server configuration, frozen
// at room creation.
type Settings struct {
	Room               config.RoomConfig
	Recording          config.RecordingConfig
	MaxIncomingBitrate uint32

	// PeersPerRouter caps how many peers share one router before the room
	// asks the pool for another one (and pipes producers across).
	PeersPerRouter int
}

const defaultPeersPerRouter = 100

const audioLevelInterval = time.Second

type Room struct {
	ID        string
	CreatedAt time.Time

	log      *slog.Logger
	provider media.Provider
	store    store.RoomStore
	settings Settings

	mu          sync.Mutex
	routers     []media.Router
	routerPeers map[string]int
	observed    map[string]bool

	peers map[string]*Peer
	order []string

	locked       bool
	passwordHash string
	lobbyEnabled bool
	hostOnlyRec  bool
	broadcasting bool
	moderator    api.Moderator

	lobby map[string]*lobbyEntry

	destroyTimer *time.Timer
	destroyed    bool
	onEmpty      func(r *Room)
}

type lobbyEntry struct {
	peer        *Peer
	requestedAt time.Time
}

// NewRoom creates the room and its first router. onEmpty fires (outside the
// room lock) when the destroy grace period elapses with no peers.
func NewRoom(ctx context.Context, id string, log *slog.Logger, provider media.Provider, st store.RoomStore, settings Settings, onEmpty func(*Room)) (*Room, error) {
	if settings.PeersPerRouter <= 0 {
		settings.PeersPerRouter = defaultPeersPerRouter
	}
	r := &Room{
		ID:           id,
		CreatedAt:    time.Now(),
		log:          log.With("room", id),
		provider:     provider,
		store:        st,
		settings:     settings,
		routerPeers:  make(map[string]int),
		observed:     make(map[string]bool),
		peers:        make(map[string]*Peer),
		lobby:        make(map[string]*lobbyEntry),
		lobbyEnabled: settings.Room.LobbyEnabled,
		hostOnlyRec:  settings.Room.HostOnlyRecording,
		onEmpty:      onEmpty,
	}
	router, err := provider.CreateRouter(ctx)
	if err != nil {
		return nil, api.AsError(err)
	}
	r.routers = append(r.routers, router)
	metrics.RoomsCreatedTotal.Inc()
	metrics.RoomsActive.Inc()
	return r, nil
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Join runs the admission checks this room owns: ban, lock, lobby and
// capacity. Host protection and the user-room map are enforced by the hub
// before the request reaches the room. Sentinel refusals are normal
// responses, not errors.
func (r *Room) Join(ctx context.Context, p *Peer, password string) (*api.JoinResponse, error) {
	banned, err := r.store.IsBanned(ctx, r.ID, p.Info.PeerUUID)
	if err != nil {
		return nil, api.AsError(err)
	}
	if notify, err := r.store.GetNotification(ctx, r.ID, p.Info.PeerUUID); err == nil {
		p.Info.PeerNotify = notify
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return nil, api.NewError(api.KindNotFound, "room %s no longer exists", r.ID)
	}

	if banned {
		metrics.PeersJoinedTotal.WithLabelValues(string(api.JoinIsBanned)).Inc()
		return &api.JoinResponse{Status: api.JoinIsBanned}, nil
	}
	if !p.AuthOK {
		// Display names collide; only authenticated users may share one.
		for _, id := range r.order {
			if r.peers[id].Info.PeerName == p.Info.PeerName {
				metrics.PeersJoinedTotal.WithLabelValues(string(api.JoinNotAllowed)).Inc()
				return &api.JoinResponse{Status: api.JoinNotAllowed}, nil
			}
		}
	}
	if r.locked && hashPassword(password) != r.passwordHash {
		metrics.PeersJoinedTotal.WithLabelValues(string(api.JoinIsLocked)).Inc()
		return &api.JoinResponse{Status: api.JoinIsLocked}, nil
	}
	if r.lobbyEnabled && !r.isPresenterCandidateLocked(p) {
		r.lobby[p.ID] = &lobbyEntry{peer: p, requestedAt: time.Now()}
		metrics.LobbyWaiting.Inc()
		metrics.PeersJoinedTotal.WithLabelValues(string(api.JoinIsLobby)).Inc()
		r.notifyPresentersLocked(api.NewEvent(api.EventRoomLobby, api.RoomLobbyEvent{
			PeerID:     p.ID,
			PeerName:   p.Info.PeerName,
			PeerAvatar: p.Info.PeerAvatar,
			Status:     "waiting",
		}))
		return &api.JoinResponse{Status: api.JoinIsLobby}, nil
	}
	if len(r.peers) >= r.settings.Room.MaxParticipants {
		metrics.PeersJoinedTotal.WithLabelValues(string(api.JoinMaxParticipants)).Inc()
		return &api.JoinResponse{Status: api.JoinMaxParticipants}, nil
	}

	return r.admitLocked(ctx, p)
}

// admitLocked adds p to the room: router placement, presenter election and
// the catch-up newProducers batch.
func (r *Room) admitLocked(ctx context.Context, p *Peer) (*api.JoinResponse, error) {
	router, err := r.assignRouterLocked(ctx)
	if err != nil {
		return nil, api.AsError(err)
	}
	p.router = router
	p.JoinedAt = time.Now()

	// Candidacy is decided before p lands in the peer map so first-join
	// promotion still sees an empty room.
	promote := r.presenterLocked() == nil && r.isPresenterCandidateLocked(p)

	r.peers[p.ID] = p
	r.order = append(r.order, p.ID)
	r.routerPeers[router.ID()]++

	if promote {
		p.Presenter = true
	}

	if r.destroyTimer != nil {
		r.destroyTimer.Stop()
		r.destroyTimer = nil
	}

	metrics.PeersActive.Inc()
	metrics.PeersJoinedTotal.WithLabelValues(string(api.JoinOK)).Inc()
	r.log.Info("peer joined", "peer", p.ID, "name", p.Info.PeerName, "presenter", p.Presenter)

	r.broadcastLocked(p.ID, api.NewEvent(api.EventRefreshParticipantsCount, map[string]int{
		"peer_counts": len(r.peers),
	}))
	if batch := r.producerBatchLocked(p.ID); len(batch) > 0 {
		p.send(api.NewEvent(api.EventNewProducers, batch))
	}

	resp := &api.JoinResponse{
		Status:       api.JoinOK,
		Moderator:    &r.moderator,
		Broadcasting: r.broadcasting,
		IsPresenter:  p.Presenter,
		Config: &api.RoomConfig{
			MaxParticipants: r.settings.Room.MaxParticipants,
			IsLocked:        r.locked,
			IsLobbyEnabled:  r.lobbyEnabled,
			DominantSpeaker: r.settings.Room.DominantSpeaker,
		},
		Recording: &api.Recording{
			Enabled:           r.settings.Recording.Enabled,
			HostOnlyRecording: r.hostOnlyRec,
			Endpoint:          r.settings.Recording.Endpoint,
		},
	}
	for _, id := range r.order {
		resp.Peers = append(resp.Peers, r.peers[id].view())
	}
	if r.settings.Room.SurveyEnabled {
		resp.Survey = &api.RoomSurvey{Enabled: true, URL: r.settings.Room.SurveyURL}
	}
	if r.settings.Room.RedirectEnabled {
		resp.Redirect = &api.Redirect{Enabled: true, URL: r.settings.Room.RedirectURL}
	}
	return resp, nil
}

// isPresenterCandidateLocked reports whether p would hold presenter rights:
// either its name is on the configured presenter list, or it is about to be
// the first peer and first-join promotion is on.
func (r *Room) isPresenterCandidateLocked(p *Peer) bool {
	for _, name := range r.settings.Room.Presenters {
		if name == p.Info.PeerName {
			return true
		}
	}
	return r.settings.Room.PresenterJoinFirst && len(r.peers) == 0
}

func (r *Room) presenterLocked() *Peer {
	for _, id := range r.order {
		if p := r.peers[id]; p.Presenter {
			return p
		}
	}
	return nil
}

func (r *Room) assignRouterLocked(ctx context.Context) (media.Router, error) {
	var best media.Router
	for _, router := range r.routers {
		if r.routerPeers[router.ID()] < r.settings.PeersPerRouter {
			if best == nil || r.routerPeers[router.ID()] < r.routerPeers[best.ID()] {
				best = router
			}
		}
	}
	if best != nil {
		return best, nil
	}
	router, err := r.provider.CreateRouter(ctx)
	if err != nil {
		return nil, err
	}
	r.routers = append(r.routers, router)
	return router, nil
}

func (r *Room) peerLocked(peerID string) (*Peer, *api.Error) {
	p, ok := r.peers[peerID]
	if !ok {
		return nil, api.NewError(api.KindNotFound, "peer %s is not in room %s", peerID, r.ID)
	}
	return p, nil
}

// producerBatchLocked lists every producer visible to peerID. Under
// broadcasting only the presenter's producers are visible.
func (r *Room) producerBatchLocked(peerID string) []api.NewProducer {
	var batch []api.NewProducer
	for _, id := range r.order {
		p := r.peers[id]
		if p.ID == peerID {
			continue
		}
		if r.broadcasting && !p.Presenter {
			continue
		}
		for producerID, entry := range p.producers {
			batch = append(batch, api.NewProducer{
				ProducerID: producerID,
				PeerID:     p.ID,
				PeerName:   p.Info.PeerName,
				PeerInfo:   &p.Info,
				Type:       string(entry.mediaType),
			})
		}
	}
	return batch
}

func (r *Room) broadcastLocked(exceptPeerID string, ev api.Envelope) {
	for _, id := range r.order {
		if id == exceptPeerID {
			continue
		}
		r.peers[id].send(ev)
	}
}

func (r *Room) notifyPresentersLocked(ev api.Envelope) {
	for _, id := range r.order {
		if p := r.peers[id]; p.Presenter {
			p.send(ev)
		}
	}
}

// RouterRtpCapabilities returns the peer's router capabilities with the
// video-orientation extension removed.
func (r *Room) RouterRtpCapabilities(peerID string) (*mediasoup.RtpCapabilities, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, aerr := r.peerLocked(peerID)
	if aerr != nil {
		return nil, aerr
	}
	return FilterRtpCapabilities(p.router.RtpCapabilities()), nil
}

func (r *Room) CreateTransport(ctx context.Context, peerID string, forceTcp bool) (*api.CreateWebRtcTransportResponse, error) {
	r.mu.Lock()
	p, aerr := r.peerLocked(peerID)
	if aerr != nil {
		r.mu.Unlock()
		return nil, aerr
	}
	router := p.router
	r.mu.Unlock()

	transport, err := router.CreateTransport(ctx, media.TransportOptions{
		ForceTcp:           forceTcp,
		EnableSctp:         true,
		MaxIncomingBitrate: r.settings.MaxIncomingBitrate,
	})
	if err != nil {
		return nil, api.AsError(err)
	}

	sender := p.sender
	transportID := transport.ID()
	transport.OnDtlsStateChange(func(state string) {
		if state == "failed" {
			r.log.Warn("transport dtls failed", "peer", peerID, "transport", transportID)
			if sender != nil {
				sender.Send(api.NewEvent(api.EventTransportClosed, api.TransportClosedEvent{
					TransportID: transportID,
					Reason:      "dtls failed",
				}))
			}
		}
	})
	transport.OnIceStateChange(func(state string) {
		r.log.Debug("transport ice state", "peer", peerID, "transport", transportID, "state", state)
	})

	r.mu.Lock()
	if current, ok := r.peers[peerID]; ok && current == p {
		p.transports[transportID] = transport
		r.mu.Unlock()
	} else {
		// Peer left while the worker round-trip was in flight.
		r.mu.Unlock()
		transport.Close()
		return nil, api.NewError(api.KindNotFound, "peer %s is not in room %s", peerID, r.ID)
	}

	return &api.CreateWebRtcTransportResponse{
		ID:             transportID,
		IceParameters:  transport.IceParameters(),
		IceCandidates:  transport.IceCandidates(),
		DtlsParameters: transport.DtlsParameters(),
		SctpParameters: transport.SctpParameters(),
	}, nil
}

func (r *Room) transport(peerID, transportID string) (media.Transport, *api.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, aerr := r.peerLocked(peerID)
	if aerr != nil {
		return nil, aerr
	}
	transport, ok := p.transports[transportID]
	if !ok {
		return nil, api.NewError(api.KindNotFound, "transport %s not found", transportID)
	}
	return transport, nil
}

// ConnectTransport runs the DTLS handshake once per transport. A repeated
// connect (client retry after a lost ack) is a no-op, not a worker error.
func (r *Room) ConnectTransport(ctx context.Context, peerID, transportID string, dtls *mediasoup.DtlsParameters) error {
	r.mu.Lock()
	p, aerr := r.peerLocked(peerID)
	if aerr != nil {
		r.mu.Unlock()
		return aerr
	}
	transport, ok := p.transports[transportID]
	if !ok {
		r.mu.Unlock()
		return api.NewError(api.KindNotFound, "transport %s not found", transportID)
	}
	if p.connected[transportID] {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if err := transport.Connect(ctx, dtls); err != nil {
		return api.AsError(err)
	}

	r.mu.Lock()
	if q, aerr := r.peerLocked(peerID); aerr == nil {
		q.connected[transportID] = true
	}
	r.mu.Unlock()
	return nil
}

func (r *Room) RestartIce(ctx context.Context, peerID, transportID string) (*api.RestartIceResponse, error) {
	transport, aerr := r.transport(peerID, transportID)
	if aerr != nil {
		return nil, aerr
	}
	params, err := transport.RestartIce(ctx)
	if err != nil {
		return nil, api.AsError(err)
	}
	metrics.IceRestartsTotal.Inc()
	return &api.RestartIceResponse{IceParameters: params}, nil
}

// Produce validates publish permissions, applies the layer policy and fans
// out newProducers to the rest of the room.
func (r *Room) Produce(ctx context.Context, peerID string, req api.ProduceRequest) (*api.ProduceResponse, error) {
	mediaType := mediaTypeOf(req)

	r.mu.Lock()
	p, aerr := r.peerLocked(peerID)
	if aerr != nil {
		r.mu.Unlock()
		return nil, aerr
	}
	if r.broadcasting && !p.Presenter {
		r.mu.Unlock()
		return nil, api.NewError(api.KindModeratorForbidden, "broadcasting is on, only the presenter may publish")
	}
	if !p.Presenter {
		if rule := r.publishBlockedLocked(mediaType); rule != "" {
			r.mu.Unlock()
			return nil, api.NewError(api.KindModeratorForbidden, "publishing %s is blocked by the %s rule", mediaType, rule)
		}
	}
	transport, ok := p.transports[req.TransportID]
	if !ok {
		r.mu.Unlock()
		return nil, api.NewError(api.KindNotFound, "transport %s not found", req.TransportID)
	}
	router := p.router
	r.mu.Unlock()

	normalizeEncodings(mediaType, req.RtpParameters, router.RtpCapabilities())

	producer, err := transport.Produce(ctx, media.ProduceOptions{
		Kind:          req.Kind,
		RtpParameters: req.RtpParameters,
		AppData: map[string]any{
			"mediaType": string(mediaType),
			"peer_id":   peerID,
		},
	})
	if err != nil {
		return nil, api.AsError(err)
	}

	r.mu.Lock()
	if _, stillHere := r.peers[peerID]; !stillHere {
		r.mu.Unlock()
		producer.Close()
		return nil, api.NewError(api.KindNotFound, "peer %s is not in room %s", peerID, r.ID)
	}
	p.producers[producer.ID()] = &peerProducer{producer: producer, mediaType: mediaType}

	if req.Kind == "audio" && r.settings.Room.DominantSpeaker {
		r.ensureObserverLocked(router)
		if err := router.ObserveAudioProducer(producer.ID()); err != nil {
			r.log.Warn("audio level observer rejected producer", "producer", producer.ID(), "error", err)
		}
	}

	suppress := r.broadcasting && !p.Presenter
	if !suppress {
		r.broadcastLocked(peerID, api.NewEvent(api.EventNewProducers, []api.NewProducer{{
			ProducerID: producer.ID(),
			PeerID:     p.ID,
			PeerName:   p.Info.PeerName,
			PeerInfo:   &p.Info,
			Type:       string(mediaType),
		}}))
	}
	r.mu.Unlock()

	return &api.ProduceResponse{ProducerID: producer.ID()}, nil
}

func mediaTypeOf(req api.ProduceRequest) api.MediaType {
	if raw, ok := req.AppData["mediaType"].(string); ok && raw != "" {
		return api.MediaType(raw)
	}
	if req.Kind == "audio" {
		return api.MediaTypeAudio
	}
	return api.MediaTypeVideo
}

// publishBlockedLocked names the moderator rule denying this media type for
// non-presenters, or "" when allowed.
func (r *Room) publishBlockedLocked(mediaType api.MediaType) string {
	switch mediaType {
	case api.MediaTypeAudio:
		if r.moderator.AudioCantUnmute {
			return "audio_cant_unmute"
		}
	case api.MediaTypeVideo:
		if r.moderator.VideoCantUnhide {
			return "video_cant_unhide"
		}
		if r.moderator.MediaCantSharing {
			return "media_cant_sharing"
		}
	case api.MediaTypeScreen, api.MediaTypeScreenAudio:
		if r.moderator.ScreenCantShare {
			return "screen_cant_share"
		}
		if r.moderator.MediaCantSharing {
			return "media_cant_sharing"
		}
	}
	return ""
}

// Consume creates a paused consumer for producerID on the peer's recv
// transport, piping the producer over when it lives on another router.
func (r *Room) Consume(ctx context.Context, peerID string, req api.ConsumeRequest) (*api.ConsumeResponse, error) {
	r.mu.Lock()
	p, aerr := r.peerLocked(peerID)
	if aerr != nil {
		r.mu.Unlock()
		return nil, aerr
	}
	transport, ok := p.transports[req.TransportID]
	if !ok {
		r.mu.Unlock()
		return nil, api.NewError(api.KindNotFound, "transport %s not found", req.TransportID)
	}
	owner := r.producerOwnerLocked(req.ProducerID)
	if owner == nil {
		r.mu.Unlock()
		return nil, api.NewError(api.KindNotFound, "producer %s not found", req.ProducerID)
	}
	originRouter := owner.router
	targetRouter := p.router
	r.mu.Unlock()

	if originRouter.ID() != targetRouter.ID() {
		if err := r.provider.EnsurePipe(ctx, originRouter, targetRouter, req.ProducerID); err != nil {
			return nil, api.AsError(err)
		}
	}
	if !targetRouter.CanConsume(req.ProducerID, req.RtpCapabilities) {
		return nil, api.NewError(api.KindStateViolation, "capabilities cannot consume producer %s", req.ProducerID)
	}

	consumer, err := transport.Consume(ctx, media.ConsumeOptions{
		ProducerID:      req.ProducerID,
		RtpCapabilities: req.RtpCapabilities,
		Paused:          true,
	})
	if err != nil {
		return nil, api.AsError(err)
	}

	r.mu.Lock()
	if _, stillHere := r.peers[peerID]; !stillHere {
		r.mu.Unlock()
		consumer.Close()
		return nil, api.NewError(api.KindNotFound, "peer %s is not in room %s", peerID, r.ID)
	}
	p.consumers[consumer.ID()] = consumer
	r.mu.Unlock()

	return &api.ConsumeResponse{
		ID:             consumer.ID(),
		ProducerID:     consumer.ProducerID(),
		Kind:           consumer.Kind(),
		Type:           consumer.Type(),
		RtpParameters:  consumer.RtpParameters(),
		ProducerPaused: consumer.ProducerPaused(),
	}, nil
}

func (r *Room) producerOwnerLocked(producerID string) *Peer {
	for _, id := range r.order {
		if _, ok := r.peers[id].producers[producerID]; ok {
			return r.peers[id]
		}
	}
	return nil
}

func (r *Room) PauseProducer(ctx context.Context, peerID, producerID string) error {
	return r.producerOp(ctx, peerID, producerID, media.Producer.Pause)
}

func (r *Room) ResumeProducer(ctx context.Context, peerID, producerID string) error {
	return r.producerOp(ctx, peerID, producerID, media.Producer.Resume)
}

func (r *Room) producerOp(ctx context.Context, peerID, producerID string, op func(media.Producer, context.Context) error) error {
	r.mu.Lock()
	p, aerr := r.peerLocked(peerID)
	if aerr != nil {
		r.mu.Unlock()
		return aerr
	}
	entry, ok := p.producers[producerID]
	if !ok {
		r.mu.Unlock()
		return api.NewError(api.KindNotFound, "producer %s not found", producerID)
	}
	r.mu.Unlock()
	if err := op(entry.producer, ctx); err != nil {
		return api.AsError(err)
	}
	return nil
}

func (r *Room) PauseConsumer(ctx context.Context, peerID, consumerID string) error {
	return r.consumerOp(ctx, peerID, consumerID, media.Consumer.Pause)
}

func (r *Room) ResumeConsumer(ctx context.Context, peerID, consumerID string) error {
	return r.consumerOp(ctx, peerID, consumerID, media.Consumer.Resume)
}

func (r *Room) consumerOp(ctx context.Context, peerID, consumerID string, op func(media.Consumer, context.Context) error) error {
	r.mu.Lock()
	p, aerr := r.peerLocked(peerID)
	if aerr != nil {
		r.mu.Unlock()
		return aerr
	}
	consumer, ok := p.consumers[consumerID]
	if !ok {
		r.mu.Unlock()
		return api.NewError(api.KindNotFound, "consumer %s not found", consumerID)
	}
	r.mu.Unlock()
	if err := op(consumer, ctx); err != nil {
		return api.AsError(err)
	}
	return nil
}

// GetProducers replays the current producer set to the caller as one
// newProducers event.
func (r *Room) GetProducers(peerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, aerr := r.peerLocked(peerID)
	if aerr != nil {
		return aerr
	}
	p.send(api.NewEvent(api.EventNewProducers, r.producerBatchLocked(peerID)))
	return nil
}

// closeProducerLocked tears down one producer and every consumer derived
// from it, emitting consumerClosed to each subscriber.
func (r *Room) closeProducerLocked(owner *Peer, producerID string) {
	entry, ok := owner.producers[producerID]
	if !ok {
		return
	}
	delete(owner.producers, producerID)
	for _, id := range r.order {
		sub := r.peers[id]
		if sub.ID == owner.ID {
			continue
		}
		for consumerID, consumer := range sub.consumers {
			if consumer.ProducerID() != producerID {
				continue
			}
			delete(sub.consumers, consumerID)
			consumer.Close()
			sub.send(api.NewEvent(api.EventConsumerClosed, api.ConsumerClosed{
				ConsumerID:   consumerID,
				ConsumerKind: consumer.Kind(),
				ProducerID:   producerID,
			}))
		}
	}
	entry.producer.Close()
}

// ExitPeer removes the peer and cascades closes in producer, consumer,
// transport order. Safe to call for a peer that already left.
func (r *Room) ExitPeer(peerID string) {
	r.mu.Lock()
	if _, ok := r.lobby[peerID]; ok {
		delete(r.lobby, peerID)
		metrics.LobbyWaiting.Dec()
	}
	p, ok := r.peers[peerID]
	if !ok {
		r.mu.Unlock()
		return
	}

	for producerID := range p.producers {
		r.closeProducerLocked(p, producerID)
	}
	for _, consumer := range p.consumers {
		consumer.Close()
	}
	p.consumers = make(map[string]media.Consumer)
	for _, transport := range p.transports {
		transport.Close()
	}
	p.transports = make(map[string]media.Transport)
	p.connected = make(map[string]bool)

	delete(r.peers, peerID)
	for i, id := range r.order {
		if id == peerID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	// The router's count entry may already be gone when a worker death
	// evicted the router; decrementing would resurrect it below zero and
	// skew later placement.
	if routerID := p.router.ID(); r.routerPeers[routerID] > 0 {
		r.routerPeers[routerID]--
	}
	metrics.PeersActive.Dec()

	wasPresenter := p.Presenter
	if wasPresenter {
		r.electPresenterLocked()
	}

	r.broadcastLocked(peerID, api.NewEvent(api.EventRemoveMe, api.RemoveMeEvent{
		PeerID:    p.ID,
		PeerName:  p.Info.PeerName,
		PeerCount: len(r.peers),
	}))
	r.log.Info("peer left", "peer", peerID, "remaining", len(r.peers))

	if len(r.peers) == 0 {
		r.scheduleDestroyLocked()
	}
	r.mu.Unlock()
}

// electPresenterLocked re-elects after the presenter left: first remaining
// peer on the presenter list, else the oldest peer when first-join
// promotion is on.
func (r *Room) electPresenterLocked() {
	for _, id := range r.order {
		p := r.peers[id]
		for _, name := range r.settings.Room.Presenters {
			if name == p.Info.PeerName {
				p.Presenter = true
				return
			}
		}
	}
	if r.settings.Room.PresenterJoinFirst && len(r.order) > 0 {
		r.peers[r.order[0]].Presenter = true
	}
}

func (r *Room) scheduleDestroyLocked() {
	if r.destroyTimer != nil || r.destroyed {
		return
	}
	grace := r.settings.Room.DestroyGrace
	r.destroyTimer = time.AfterFunc(grace, func() {
		r.mu.Lock()
		if r.destroyed || len(r.peers) > 0 {
			r.mu.Unlock()
			return
		}
		r.destroyed = true
		r.mu.Unlock()
		r.teardown()
		if r.onEmpty != nil {
			r.onEmpty(r)
		}
	})
}

func (r *Room) teardown() {
	r.mu.Lock()
	routers := r.routers
	r.routers = nil
	r.mu.Unlock()
	for _, router := range routers {
		router.Close()
	}
	metrics.RoomsActive.Dec()
	r.log.Info("room destroyed")
}

// ClearBans drops the room's persisted ban list. Only an explicit admin
// destroy does this; grace-period teardown keeps bans so a banned peer
// cannot wait out an empty room and rejoin.
func (r *Room) ClearBans(ctx context.Context) {
	if err := r.store.ClearBans(ctx, r.ID); err != nil {
		r.log.Warn("failed to clear bans", "error", err)
	}
}

// Destroy tears the room down immediately, evicting any remaining peers.
func (r *Room) Destroy() {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return
	}
	r.destroyed = true
	if r.destroyTimer != nil {
		r.destroyTimer.Stop()
		r.destroyTimer = nil
	}
	peers := make([]*Peer, 0, len(r.order))
	for _, id := range r.order {
		peers = append(peers, r.peers[id])
	}
	r.peers = make(map[string]*Peer)
	r.order = nil
	r.mu.Unlock()

	for _, p := range peers {
		for _, transport := range p.transports {
			transport.Close()
		}
		if p.sender != nil {
			p.sender.Close()
		}
		metrics.PeersActive.Dec()
	}
	r.teardown()
}

// HasPeer reports whether id is a current member or a lobby waiter.
func (r *Room) HasPeer(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[id]; ok {
		return true
	}
	_, ok := r.lobby[id]
	return ok
}

func (r *Room) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers) == 0
}

func (r *Room) PeerViews() []api.Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	views := make([]api.Peer, 0, len(r.order))
	for _, id := range r.order {
		views = append(views, r.peers[id].view())
	}
	return views
}

// ensureObserverLocked starts the router's audio level observer once. The
// callbacks run on the media event loop and take the room lock themselves.
func (r *Room) ensureObserverLocked(router media.Router) {
	if r.observed[router.ID()] {
		return
	}
	r.observed[router.ID()] = true
	err := router.StartAudioLevelObserver(audioLevelInterval,
		func(volumes []media.VolumeEntry) { r.handleVolumes(volumes) },
		func() { r.handleSilence() },
	)
	if err != nil {
		r.log.Warn("audio level observer start failed", "router", router.ID(), "error", err)
		r.observed[router.ID()] = false
	}
}

// handleVolumes maps observer reports to peers and fans out audioVolume
// plus a dominantSpeaker event for the loudest entry.
func (r *Room) handleVolumes(volumes []media.VolumeEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	event := api.AudioVolumeEvent{}
	var dominant *api.DominantSpeakerEvent
	for _, v := range volumes {
		owner := r.producerOwnerLocked(v.ProducerID)
		if owner == nil {
			continue
		}
		// dBov -127..0 mapped to a 0..100 meter.
		level := (127 + v.Volume) * 100 / 127
		if level < 0 {
			level = 0
		}
		event.Volumes = append(event.Volumes, api.PeerVolume{
			PeerID:     owner.ID,
			ProducerID: v.ProducerID,
			Volume:     level,
		})
		if dominant == nil {
			dominant = &api.DominantSpeakerEvent{
				PeerID:     owner.ID,
				PeerName:   owner.Info.PeerName,
				ProducerID: v.ProducerID,
			}
		}
	}
	if len(event.Volumes) == 0 {
		return
	}
	r.broadcastLocked("", api.NewEvent(api.EventAudioVolume, event))
	if dominant != nil {
		r.broadcastLocked("", api.NewEvent(api.EventDominantSpeaker, *dominant))
	}
}

func (r *Room) handleSilence() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked("", api.NewEvent(api.EventAudioVolume, api.AudioVolumeEvent{}))
}

// EvictRouters throws out every peer placed on one of the given routers
// after their hosting worker died. Each evicted peer gets a transportClosed
// event before its session is closed; the client reconnects and is
// re-placed.
func (r *Room) EvictRouters(routerIDs map[string]struct{}) {
	r.mu.Lock()
	var evict []*Peer
	for _, id := range r.order {
		p := r.peers[id]
		if _, dead := routerIDs[p.router.ID()]; dead {
			evict = append(evict, p)
		}
	}
	kept := r.routers[:0]
	for _, router := range r.routers {
		if _, dead := routerIDs[router.ID()]; dead {
			delete(r.routerPeers, router.ID())
			delete(r.observed, router.ID())
			continue
		}
		kept = append(kept, router)
	}
	r.routers = kept
	r.mu.Unlock()

	for _, p := range evict {
		p.send(api.NewEvent(api.EventTransportClosed, api.TransportClosedEvent{
			Reason: "server transport failed",
		}))
		r.ExitPeer(p.ID)
		if p.sender != nil {
			p.sender.Close()
		}
	}
}
