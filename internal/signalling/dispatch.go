package signalling

import (
	"encoding/json"
	"time"

	"github.com/confmesh/sfu/internal/api"
	"github.com/confmesh/sfu/internal/metrics"
	"github.com/confmesh/sfu/internal/room"
)

// relayedEvents are client frames the server fans out to the rest of the
// room without interpreting them.
var relayedEvents = map[api.EventType]bool{
	api.EventMessage:          true,
	api.EventCmd:              true,
	api.EventSetVideoOff:      true,
	api.EventRecordingAction:  true,
	api.EventEditorChange:     true,
	api.EventEditorActions:    true,
	api.EventEditorUpdate:     true,
	api.EventUpdatePolls:      true,
	api.EventWbCanvasToJson:   true,
	api.EventWhiteboardAction: true,
	api.EventFile:             true,
	api.EventFileInfo:         true,
	api.EventFileAbort:        true,
	api.EventReceiveFileAbort: true,
	api.EventShareVideoAction: true,
	api.EventEndRTMP:          true,
	api.EventEndRTMPfromURL:   true,
	api.EventErrorRTMP:        true,
	api.EventErrorRTMPfromURL: true,
}

func (s *Session) handleRequest(env api.Envelope) {
	started := time.Now()
	data, err := s.dispatch(env)
	outcome := "ok"
	if err != nil {
		outcome = string(api.AsError(err).Kind)
	}
	metrics.SignalingRequestsTotal.WithLabelValues(env.Type, outcome).Inc()
	metrics.SignalingRequestDuration.WithLabelValues(env.Type).Observe(time.Since(started).Seconds())
	s.reply(*env.AckID, data, err)
}

func (s *Session) dispatch(env api.Envelope) (any, error) {
	switch api.RequestType(env.Type) {
	case api.RequestCreateRoom:
		var req api.CreateRoomRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return nil, api.NewError(api.KindInvalidArgument, "bad createRoom payload")
		}
		if _, err := s.server.registry.GetOrCreate(s.ctx, req.RoomID); err != nil {
			return nil, err
		}
		return map[string]string{"room_id": req.RoomID}, nil

	case api.RequestJoin:
		var req api.JoinRequest
		if err := json.Unmarshal(env.Data, &req); err != nil || req.PeerInfo == nil {
			return nil, api.NewError(api.KindInvalidArgument, "bad join payload")
		}
		return s.handleJoin(req)

	case api.RequestExitRoom:
		s.leaveRoom()
		return map[string]bool{"ok": true}, nil

	case api.RequestRoomAction:
		var req api.RoomActionRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return nil, api.NewError(api.KindInvalidArgument, "bad roomAction payload")
		}
		if r := s.currentRoom(); r != nil {
			return r.RoomAction(s.ctx, s.id, req)
		}
		// checkPassword is the one room action a client needs before
		// joining: a locked room prompts for the password first.
		if req.Action != room.ActionCheckPassword {
			return nil, api.NewError(api.KindStateViolation, "%s requires a joined room", env.Type)
		}
		r, err := s.server.registry.Get(req.RoomID)
		if err != nil {
			return nil, err
		}
		return r.CheckPassword(s, req.Password), nil
	}

	r := s.currentRoom()
	if r == nil {
		return nil, api.NewError(api.KindStateViolation, "%s requires a joined room", env.Type)
	}

	switch api.RequestType(env.Type) {
	case api.RequestGetRouterRtpCapabilities:
		caps, err := r.RouterRtpCapabilities(s.id)
		if err != nil {
			return nil, err
		}
		return api.RtpCapabilitiesResponse{RtpCapabilities: caps}, nil

	case api.RequestCreateWebRtcTransport:
		var req api.CreateWebRtcTransportRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return nil, api.NewError(api.KindInvalidArgument, "bad createWebRtcTransport payload")
		}
		return r.CreateTransport(s.ctx, s.id, req.ForceTcp)

	case api.RequestConnectTransport:
		var req api.ConnectTransportRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return nil, api.NewError(api.KindInvalidArgument, "bad connectTransport payload")
		}
		if err := r.ConnectTransport(s.ctx, s.id, req.TransportID, req.DtlsParameters); err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil

	case api.RequestProduce:
		var req api.ProduceRequest
		if err := json.Unmarshal(env.Data, &req); err != nil || req.RtpParameters == nil {
			return nil, api.NewError(api.KindInvalidArgument, "bad produce payload")
		}
		return r.Produce(s.ctx, s.id, req)

	case api.RequestConsume:
		var req api.ConsumeRequest
		if err := json.Unmarshal(env.Data, &req); err != nil || req.RtpCapabilities == nil {
			return nil, api.NewError(api.KindInvalidArgument, "bad consume payload")
		}
		return r.Consume(s.ctx, s.id, req)

	case api.RequestPauseProducer, api.RequestResumeProducer:
		var req api.ProducerRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return nil, api.NewError(api.KindInvalidArgument, "bad producer payload")
		}
		var err error
		if api.RequestType(env.Type) == api.RequestPauseProducer {
			err = r.PauseProducer(s.ctx, s.id, req.ProducerID)
		} else {
			err = r.ResumeProducer(s.ctx, s.id, req.ProducerID)
		}
		if err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil

	case api.RequestPauseConsumer, api.RequestResumeConsumer:
		var req api.ConsumerRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return nil, api.NewError(api.KindInvalidArgument, "bad consumer payload")
		}
		var err error
		if api.RequestType(env.Type) == api.RequestPauseConsumer {
			err = r.PauseConsumer(s.ctx, s.id, req.ConsumerID)
		} else {
			err = r.ResumeConsumer(s.ctx, s.id, req.ConsumerID)
		}
		if err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil

	case api.RequestRestartIce:
		var req api.RestartIceRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return nil, api.NewError(api.KindInvalidArgument, "bad restartIce payload")
		}
		return r.RestartIce(s.ctx, s.id, req.TransportID)

	case api.RequestGetProducers:
		if err := r.GetProducers(s.id); err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil

	case api.RequestRoomLobby:
		var req api.RoomLobbyRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return nil, api.NewError(api.KindInvalidArgument, "bad roomLobby payload")
		}
		if err := r.RoomLobby(s.ctx, s.id, req); err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil

	case api.RequestPeerAction:
		var req api.PeerActionRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return nil, api.NewError(api.KindInvalidArgument, "bad peerAction payload")
		}
		if err := r.PeerAction(s.ctx, s.id, req); err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil

	case api.RequestUpdatePeerInfo:
		var req api.UpdatePeerInfoRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return nil, api.NewError(api.KindInvalidArgument, "bad updatePeerInfo payload")
		}
		if err := r.UpdatePeerInfo(s.ctx, s.id, req); err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil

	case api.RequestUpdateRoomModerator, api.RequestUpdateRoomModeratorALL:
		var req api.ModeratorRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return nil, api.NewError(api.KindInvalidArgument, "bad moderator payload")
		}
		all := api.RequestType(env.Type) == api.RequestUpdateRoomModeratorALL
		if err := r.UpdateModerator(s.id, req, all); err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil
	}

	return nil, api.NewError(api.KindInvalidArgument, "unknown request %q", env.Type)
}

// handleJoin runs the hub-owned admission steps (room id validity, host
// protection, the user-room map) before handing off to the room.
func (s *Session) handleJoin(req api.JoinRequest) (*api.JoinResponse, error) {
	if r := s.currentRoom(); r != nil {
		if r.HasPeer(s.id) {
			return nil, api.NewError(api.KindStateViolation, "already joined a room")
		}
		// A lobby reject or an eviction leaves the session pointing at a
		// room it no longer belongs to; a fresh join clears it.
		s.setRoom(nil)
	}
	if !room.ValidRoomID(req.RoomID) {
		return &api.JoinResponse{Status: api.JoinInvalid}, nil
	}

	authOK := false
	var claims *HostClaims
	if req.Token != "" {
		var err error
		if claims, err = s.server.auth.Verify(req.Token); err == nil {
			authOK = true
		}
	}
	if s.server.cfg.Auth.HostProtected && !authOK {
		return &api.JoinResponse{Status: api.JoinUnauthorized}, nil
	}
	if claims != nil && !claims.AllowedRoom(req.RoomID) {
		return &api.JoinResponse{Status: api.JoinNotAllowed}, nil
	}

	r, err := s.server.registry.GetOrCreate(s.ctx, req.RoomID)
	if err != nil {
		return nil, err
	}

	peer := room.NewPeer(s.id, *req.PeerInfo, authOK, s)
	resp, err := r.Join(s.ctx, peer, req.Password)
	if err != nil {
		return nil, err
	}
	if resp.Status == api.JoinOK || resp.Status == api.JoinIsLobby {
		// The lobby entry keeps a reference too; accept turns it into
		// membership without a second join round-trip.
		s.setRoom(r)
	}
	return resp, nil
}
