package room

import (
	"context"

	"github.com/confmesh/sfu/internal/api"
	"github.com/confmesh/sfu/internal/metrics"
)

// Room actions a presenter (or a peer holding the room password) may apply.
const (
	ActionLock                 = "lock"
	ActionUnlock               = "unlock"
	ActionCheckPassword        = "checkPassword"
	ActionLobbyOn              = "lobbyOn"
	ActionLobbyOff             = "lobbyOff"
	ActionHostOnlyRecordingOn  = "hostOnlyRecordingOn"
	ActionHostOnlyRecordingOff = "hostOnlyRecordingOff"
	ActionBroadcastingOn       = "broadcastingOn"
	ActionBroadcastingOff      = "broadcastingOff"
)

// Targeted peer actions. Anything not listed here is relayed to the target
// as an opaque peerAction event.
const (
	PeerActionMute       = "mute"
	PeerActionUnmute     = "unmute"
	PeerActionHide       = "hide"
	PeerActionUnhide     = "unhide"
	PeerActionStopScreen = "stopScreen"
	PeerActionEject      = "eject"
	PeerActionBan        = "ban"
)

// CheckPassword verifies a candidate password for a peer that has not
// joined yet, so clients facing a locked room can prompt before retrying
// the join. The result also goes out as a roomPassword event.
func (r *Room) CheckPassword(sender Sender, password string) *api.RoomActionResponse {
	r.mu.Lock()
	result := "KO"
	if r.locked && hashPassword(password) == r.passwordHash {
		result = "OK"
	}
	r.mu.Unlock()

	resp := &api.RoomActionResponse{Action: ActionCheckPassword, Result: result}
	if sender != nil {
		sender.Send(api.NewEvent(api.EventRoomPassword, *resp))
	}
	return resp
}

// RoomAction mutates a room-wide flag. checkPassword is open to everyone;
// the rest require presenter rights, except that presenting the correct
// password on a locked room self-promotes the caller to presenter first.
func (r *Room) RoomAction(ctx context.Context, peerID string, req api.RoomActionRequest) (*api.RoomActionResponse, error) {
	r.mu.Lock()
	p, aerr := r.peerLocked(peerID)
	if aerr != nil {
		r.mu.Unlock()
		return nil, aerr
	}

	if req.Action == ActionCheckPassword {
		result := "KO"
		if r.locked && hashPassword(req.Password) == r.passwordHash {
			result = "OK"
		}
		p.send(api.NewEvent(api.EventRoomPassword, api.RoomActionResponse{Action: req.Action, Result: result}))
		r.mu.Unlock()
		return &api.RoomActionResponse{Action: req.Action, Result: result}, nil
	}

	if !p.Presenter {
		if r.locked && req.Password != "" && hashPassword(req.Password) == r.passwordHash {
			p.Presenter = true
		} else {
			r.mu.Unlock()
			return nil, api.NewError(api.KindModeratorForbidden, "action %s requires presenter rights", req.Action)
		}
	}

	var closeNonPresenterMedia []*Peer
	switch req.Action {
	case ActionLock:
		if req.Password == "" {
			r.mu.Unlock()
			return nil, api.NewError(api.KindInvalidArgument, "lock requires a password")
		}
		r.locked = true
		r.passwordHash = hashPassword(req.Password)
	case ActionUnlock:
		r.locked = false
		r.passwordHash = ""
	case ActionLobbyOn:
		r.lobbyEnabled = true
	case ActionLobbyOff:
		r.lobbyEnabled = false
	case ActionHostOnlyRecordingOn:
		r.hostOnlyRec = true
	case ActionHostOnlyRecordingOff:
		r.hostOnlyRec = false
	case ActionBroadcastingOn:
		r.broadcasting = true
		for _, id := range r.order {
			if q := r.peers[id]; !q.Presenter && len(q.producers) > 0 {
				closeNonPresenterMedia = append(closeNonPresenterMedia, q)
			}
		}
	case ActionBroadcastingOff:
		r.broadcasting = false
	default:
		r.mu.Unlock()
		return nil, api.NewError(api.KindInvalidArgument, "unknown room action %q", req.Action)
	}

	// Broadcasting implies nobody but the presenter holds producers.
	for _, q := range closeNonPresenterMedia {
		for producerID := range q.producers {
			r.closeProducerLocked(q, producerID)
		}
	}

	if req.Broadcast {
		r.broadcastLocked(peerID, api.NewEvent(api.EventRoomAction, api.RoomActionEvent{
			PeerName: p.Info.PeerName,
			Action:   req.Action,
		}))
	}
	r.log.Info("room action", "peer", peerID, "action", req.Action)
	r.mu.Unlock()

	return &api.RoomActionResponse{Action: req.Action}, nil
}

// RoomLobby accepts or rejects waiting peers. Accepted peers are admitted
// directly and told via a roomLobby accept event; rejected ones get a
// reject event and are dropped from the queue.
func (r *Room) RoomLobby(ctx context.Context, peerID string, req api.RoomLobbyRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, aerr := r.peerLocked(peerID)
	if aerr != nil {
		return aerr
	}
	if !p.Presenter {
		return api.NewError(api.KindModeratorForbidden, "lobby control requires presenter rights")
	}
	if req.LobbyStatus != "accept" && req.LobbyStatus != "reject" {
		return api.NewError(api.KindInvalidArgument, "unknown lobby status %q", req.LobbyStatus)
	}

	for _, waitingID := range req.PeersID {
		entry, ok := r.lobby[waitingID]
		if !ok {
			continue
		}
		delete(r.lobby, waitingID)
		metrics.LobbyWaiting.Dec()

		if req.LobbyStatus == "reject" {
			entry.peer.send(api.NewEvent(api.EventRoomLobby, api.RoomLobbyEvent{
				PeerID: waitingID,
				Status: "reject",
			}))
			continue
		}

		if len(r.peers) >= r.settings.Room.MaxParticipants {
			entry.peer.send(api.NewEvent(api.EventRoomLobby, api.RoomLobbyEvent{
				PeerID: waitingID,
				Status: "reject",
			}))
			continue
		}
		if _, err := r.admitLocked(ctx, entry.peer); err != nil {
			r.log.Warn("lobby admit failed", "peer", waitingID, "error", err)
			continue
		}
		entry.peer.send(api.NewEvent(api.EventRoomLobby, api.RoomLobbyEvent{
			PeerID: waitingID,
			Status: "accept",
		}))
	}
	return nil
}

// PeerAction applies a moderation command to one peer or, with Broadcast,
// to everyone else. Only presenters may act on other peers.
func (r *Room) PeerAction(ctx context.Context, peerID string, req api.PeerActionRequest) error {
	r.mu.Lock()
	p, aerr := r.peerLocked(peerID)
	if aerr != nil {
		r.mu.Unlock()
		return aerr
	}
	if !p.Presenter && (req.Broadcast || req.PeerID != peerID) {
		r.mu.Unlock()
		return api.NewError(api.KindModeratorForbidden, "peer action %s requires presenter rights", req.Action)
	}

	var targets []*Peer
	if req.Broadcast {
		for _, id := range r.order {
			if id != peerID {
				targets = append(targets, r.peers[id])
			}
		}
	} else {
		target, ok := r.peers[req.PeerID]
		if !ok {
			r.mu.Unlock()
			return api.NewError(api.KindNotFound, "peer %s is not in room %s", req.PeerID, r.ID)
		}
		targets = append(targets, target)
	}
	r.mu.Unlock()

	for _, target := range targets {
		if err := r.applyPeerAction(ctx, p, target, req); err != nil {
			return err
		}
	}
	return nil
}

func (r *Room) applyPeerAction(ctx context.Context, actor, target *Peer, req api.PeerActionRequest) error {
	notify := api.NewEvent(api.EventPeerAction, api.PeerActionEvent{
		PeerID:   target.ID,
		PeerName: actor.Info.PeerName,
		Action:   req.Action,
		Message:  req.Message,
	})

	switch req.Action {
	case PeerActionMute:
		r.pauseProducersOf(ctx, target, api.MediaTypeAudio)
	case PeerActionHide:
		r.pauseProducersOf(ctx, target, api.MediaTypeVideo)
	case PeerActionStopScreen:
		r.mu.Lock()
		for producerID, entry := range target.producers {
			if entry.mediaType == api.MediaTypeScreen || entry.mediaType == api.MediaTypeScreenAudio {
				r.closeProducerLocked(target, producerID)
			}
		}
		r.mu.Unlock()
	case PeerActionEject:
		target.send(notify)
		r.ExitPeer(target.ID)
		if target.sender != nil {
			target.sender.Close()
		}
		return nil
	case PeerActionBan:
		if err := r.store.BanPeer(ctx, r.ID, target.Info.PeerUUID); err != nil {
			return api.AsError(err)
		}
		target.send(notify)
		r.ExitPeer(target.ID)
		if target.sender != nil {
			target.sender.Close()
		}
		return nil
	}

	target.send(notify)
	return nil
}

func (r *Room) pauseProducersOf(ctx context.Context, target *Peer, mediaType api.MediaType) {
	r.mu.Lock()
	var producers []*peerProducer
	for _, entry := range target.producers {
		if entry.mediaType == mediaType {
			producers = append(producers, entry)
		}
	}
	r.mu.Unlock()
	for _, entry := range producers {
		if err := entry.producer.Pause(ctx); err != nil {
			r.log.Warn("pause producer failed", "peer", target.ID, "error", err)
		}
	}
}

// UpdatePeerInfo records a presence toggle (audio/video/screen/hand/notify)
// and propagates it to the rest of the room. Enforcement for the RTP path
// happens on produce; this is presence only. The notify toggle is also
// persisted per room so it survives a reconnect.
func (r *Room) UpdatePeerInfo(ctx context.Context, peerID string, req api.UpdatePeerInfoRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, aerr := r.peerLocked(peerID)
	if aerr != nil {
		return aerr
	}
	switch req.Type {
	case "audio":
		p.Info.PeerAudio = req.Status
	case "video":
		p.Info.PeerVideo = req.Status
	case "screen":
		p.Info.PeerScreen = req.Status
	case "hand":
		p.Info.PeerHand = req.Status
	case "notify":
		p.Info.PeerNotify = req.Status
		if err := r.store.SetNotification(ctx, r.ID, p.Info.PeerUUID, req.Status); err != nil {
			r.log.Warn("failed to persist notification preference", "peer", peerID, "error", err)
		}
	default:
		return api.NewError(api.KindInvalidArgument, "unknown peer info type %q", req.Type)
	}
	r.broadcastLocked(peerID, api.NewEvent(api.EventUpdatePeerInfo, api.UpdatePeerInfoEvent{
		PeerID:   p.ID,
		PeerName: p.Info.PeerName,
		Type:     req.Type,
		Status:   req.Status,
	}))
	return nil
}

// UpdateModerator flips one moderator rule; with all=true clients reconcile
// their whole moderation state from the event.
func (r *Room) UpdateModerator(peerID string, req api.ModeratorRequest, all bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, aerr := r.peerLocked(peerID)
	if aerr != nil {
		return aerr
	}
	if !p.Presenter {
		return api.NewError(api.KindModeratorForbidden, "moderator rules require presenter rights")
	}
	if !setModeratorRule(&r.moderator, req.Rule, req.Status) {
		return api.NewError(api.KindInvalidArgument, "unknown moderator rule %q", req.Rule)
	}
	if all {
		r.broadcastLocked(peerID, api.NewEvent(api.EventUpdateRoomModeratorALL, r.moderator))
	} else {
		r.broadcastLocked(peerID, api.NewEvent(api.EventUpdateRoomModerator, req))
	}
	return nil
}

func setModeratorRule(m *api.Moderator, rule string, status bool) bool {
	switch rule {
	case "audio_start_muted":
		m.AudioStartMuted = status
	case "video_start_hidden":
		m.VideoStartHidden = status
	case "video_start_privacy":
		m.VideoStartPrivacy = status
	case "audio_cant_unmute":
		m.AudioCantUnmute = status
	case "video_cant_unhide":
		m.VideoCantUnhide = status
	case "screen_cant_share":
		m.ScreenCantShare = status
	case "chat_cant_privately":
		m.ChatCantPrivately = status
	case "chat_cant_chatgpt":
		m.ChatCantChatGPT = status
	case "chat_cant_deep_seek":
		m.ChatCantDeepSeek = status
	case "media_cant_sharing":
		m.MediaCantSharing = status
	default:
		return false
	}
	return true
}

// Relay fans an opaque client event (chat, whiteboard, polls, file
// transfer) out to every other peer. The server keeps no state for these.
func (r *Room) Relay(peerID string, ev api.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, aerr := r.peerLocked(peerID); aerr != nil {
		return aerr
	}
	r.broadcastLocked(peerID, ev)
	return nil
}
