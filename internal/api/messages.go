package api

import (
	"encoding/json"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"
)

type RequestType string
type EventType string

const (
	RequestCreateRoom               = RequestType("createRoom")
	RequestJoin                     = RequestType("join")
	RequestGetRouterRtpCapabilities = RequestType("getRouterRtpCapabilities")
	RequestCreateWebRtcTransport    = RequestType("createWebRtcTransport")
	RequestConnectTransport         = RequestType("connectTransport")
	RequestProduce                  = RequestType("produce")
	RequestConsume                  = RequestType("consume")
	RequestPauseProducer            = RequestType("pauseProducer")
	RequestResumeProducer           = RequestType("resumeProducer")
	RequestPauseConsumer            = RequestType("pauseConsumer")
	RequestResumeConsumer           = RequestType("resumeConsumer")
	RequestRestartIce               = RequestType("restartIce")
	RequestGetProducers             = RequestType("getProducers")
	RequestExitRoom                 = RequestType("exitRoom")
	RequestRoomAction               = RequestType("roomAction")
	RequestRoomLobby                = RequestType("roomLobby")
	RequestPeerAction               = RequestType("peerAction")
	RequestUpdatePeerInfo           = RequestType("updatePeerInfo")
	RequestUpdateRoomModerator      = RequestType("updateRoomModerator")
	RequestUpdateRoomModeratorALL   = RequestType("updateRoomModeratorALL")
)

const (
	EventNewProducers             = EventType("newProducers")
	EventConsumerClosed           = EventType("consumerClosed")
	EventSetVideoOff              = EventType("setVideoOff")
	EventRemoveMe                 = EventType("removeMe")
	EventRefreshParticipantsCount = EventType("refreshParticipantsCount")
	EventMessage                  = EventType("message")
	EventCmd                      = EventType("cmd")
	EventPeerAction               = EventType("peerAction")
	EventUpdatePeerInfo           = EventType("updatePeerInfo")
	EventRoomAction               = EventType("roomAction")
	EventRoomPassword             = EventType("roomPassword")
	EventRoomLobby                = EventType("roomLobby")
	EventAudioVolume              = EventType("audioVolume")
	EventDominantSpeaker          = EventType("dominantSpeaker")
	EventRecordingAction          = EventType("recordingAction")
	EventUpdateRoomModerator      = EventType("updateRoomModerator")
	EventUpdateRoomModeratorALL   = EventType("updateRoomModeratorALL")
	EventTransportClosed          = EventType("transportClosed")
)

// Relayed events are fanned out to the rest of the room verbatim; the server
// keeps no state for them.
const (
	EventEditorChange     = EventType("editorChange")
	EventEditorActions    = EventType("editorActions")
	EventEditorUpdate     = EventType("editorUpdate")
	EventUpdatePolls      = EventType("updatePolls")
	EventWbCanvasToJson   = EventType("wbCanvasToJson")
	EventWhiteboardAction = EventType("whiteboardAction")
	EventFile             = EventType("file")
	EventFileInfo         = EventType("fileInfo")
	EventFileAbort        = EventType("fileAbort")
	EventReceiveFileAbort = EventType("receiveFileAbort")
	EventShareVideoAction = EventType("shareVideoAction")
	EventEndRTMP          = EventType("endRTMP")
	EventEndRTMPfromURL   = EventType("endRTMPfromURL")
	EventErrorRTMP        = EventType("errorRTMP")
	EventErrorRTMPfromURL = EventType("errorRTMPfromURL")
)

// Envelope is the single wire frame. Requests carry AckID and are answered
// with the same AckID holding either Data or Error; events carry neither.
type Envelope struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID *uint64         `json:"ack_id,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

func NewEvent(event EventType, data any) Envelope {
	raw, _ := json.Marshal(data)
	return Envelope{Type: string(event), Data: raw}
}

type CreateRoomRequest struct {
	RoomID string `json:"room_id"`
}

type JoinRequest struct {
	RoomID   string    `json:"room_id"`
	Password string    `json:"password,omitempty"`
	Token    string    `json:"token,omitempty"`
	PeerInfo *PeerInfo `json:"peer_info"`
}

type JoinStatus string

const (
	JoinOK              = JoinStatus("ok")
	JoinInvalid         = JoinStatus("invalid")
	JoinNotAllowed      = JoinStatus("notAllowed")
	JoinUnauthorized    = JoinStatus("unauthorized")
	JoinIsLocked        = JoinStatus("isLocked")
	JoinIsLobby         = JoinStatus("isLobby")
	JoinIsBanned        = JoinStatus("isBanned")
	JoinMaxParticipants = JoinStatus("maxParticipantsReached")
)

type JoinResponse struct {
	Status       JoinStatus  `json:"status"`
	Peers        []Peer      `json:"peers,omitempty"`
	Config       *RoomConfig `json:"config,omitempty"`
	Moderator    *Moderator  `json:"moderator,omitempty"`
	Recording    *Recording  `json:"recording,omitempty"`
	Broadcasting bool        `json:"broadcasting,omitempty"`
	Survey       *RoomSurvey `json:"survey,omitempty"`
	Redirect     *Redirect   `json:"redirect,omitempty"`
	IsPresenter  bool        `json:"is_presenter,omitempty"`
}

// RoomConfig is the room state an admitted peer needs to render the call
// without extra round trips.
type RoomConfig struct {
	MaxParticipants int  `json:"maxParticipants"`
	IsLocked        bool `json:"isLocked"`
	IsLobbyEnabled  bool `json:"isLobbyEnabled"`
	DominantSpeaker bool `json:"dominantSpeaker"`
}

type RtpCapabilitiesResponse struct {
	RtpCapabilities *mediasoup.RtpCapabilities `json:"rtpCapabilities"`
}

type CreateWebRtcTransportRequest struct {
	ForceTcp        bool                       `json:"forceTcp,omitempty"`
	RtpCapabilities *mediasoup.RtpCapabilities `json:"rtpCapabilities,omitempty"`
}

type CreateWebRtcTransportResponse struct {
	ID             string                    `json:"id"`
	IceParameters  *mediasoup.IceParameters  `json:"iceParameters"`
	IceCandidates  []mediasoup.IceCandidate  `json:"iceCandidates"`
	DtlsParameters *mediasoup.DtlsParameters `json:"dtlsParameters"`
	SctpParameters *mediasoup.SctpParameters `json:"sctpParameters,omitempty"`
}

type ConnectTransportRequest struct {
	TransportID    string                    `json:"transport_id"`
	DtlsParameters *mediasoup.DtlsParameters `json:"dtlsParameters"`
}

type ProduceRequest struct {
	TransportID   string                   `json:"transport_id"`
	Kind          string                   `json:"kind"`
	RtpParameters *mediasoup.RtpParameters `json:"rtpParameters"`
	AppData       map[string]any           `json:"appData,omitempty"`
}

type ProduceResponse struct {
	ProducerID string `json:"producer_id"`
}

type ConsumeRequest struct {
	TransportID     string                     `json:"transport_id"`
	ProducerID      string                     `json:"producer_id"`
	RtpCapabilities *mediasoup.RtpCapabilities `json:"rtpCapabilities"`
	Type            string                     `json:"type,omitempty"`
}

type ConsumeResponse struct {
	ID             string                   `json:"id"`
	ProducerID     string                   `json:"producer_id"`
	Kind           string                   `json:"kind"`
	Type           string                   `json:"type"`
	RtpParameters  *mediasoup.RtpParameters `json:"rtpParameters"`
	ProducerPaused bool                     `json:"producer_paused"`
}

type ProducerRequest struct {
	ProducerID string `json:"producer_id"`
	Type       string `json:"type,omitempty"`
}

type ConsumerRequest struct {
	ConsumerID string `json:"consumer_id"`
	Type       string `json:"type,omitempty"`
}

type RestartIceRequest struct {
	TransportID string `json:"transport_id"`
}

type RestartIceResponse struct {
	IceParameters *mediasoup.IceParameters `json:"iceParameters"`
}

type RoomActionRequest struct {
	Action    string `json:"action"`
	Password  string `json:"password,omitempty"`
	Broadcast bool   `json:"broadcast,omitempty"`
	// RoomID lets checkPassword run before the sender has joined the room.
	RoomID string `json:"room_id,omitempty"`
}

type RoomActionResponse struct {
	Action string `json:"action"`
	// Result is "OK" or "KO" for checkPassword, empty otherwise.
	Result string `json:"result,omitempty"`
}

type RoomLobbyRequest struct {
	LobbyStatus string   `json:"lobby_status"`
	PeersID     []string `json:"peers_id"`
}

type PeerActionRequest struct {
	PeerID    string `json:"peer_id"`
	Action    string `json:"action"`
	Message   string `json:"message,omitempty"`
	Broadcast bool   `json:"broadcast"`
}

type UpdatePeerInfoRequest struct {
	Type   string `json:"type"` // "audio" | "video" | "screen" | "hand" | "notify"
	Status bool   `json:"status"`
}

type ModeratorRequest struct {
	Rule   string `json:"rule"`
	Status bool   `json:"status"`
}

type NewProducer struct {
	ProducerID string    `json:"producer_id"`
	PeerID     string    `json:"peer_id"`
	PeerName   string    `json:"peer_name"`
	PeerInfo   *PeerInfo `json:"peer_info,omitempty"`
	Type       string    `json:"type"`
}

type ConsumerClosed struct {
	ConsumerID   string `json:"consumer_id"`
	ConsumerKind string `json:"consumer_kind"`
	ProducerID   string `json:"producer_id"`
}

type RoomLobbyEvent struct {
	PeerID     string `json:"peer_id"`
	PeerName   string `json:"peer_name,omitempty"`
	PeerAvatar string `json:"peer_avatar,omitempty"`
	Status     string `json:"lobby_status"` // "waiting" | "accept" | "reject"
}

type PeerActionEvent struct {
	PeerID   string `json:"peer_id"`
	PeerName string `json:"peer_name"`
	Action   string `json:"action"`
	Message  string `json:"message,omitempty"`
}

type RoomActionEvent struct {
	PeerName string `json:"peer_name"`
	Action   string `json:"action"`
}

type AudioVolumeEvent struct {
	Volumes []PeerVolume `json:"volumes"`
}

type PeerVolume struct {
	PeerID     string `json:"peer_id"`
	ProducerID string `json:"producer_id"`
	Volume     int    `json:"volume"` // dB level mapped to 0..100
}

type DominantSpeakerEvent struct {
	PeerID     string `json:"peer_id"`
	PeerName   string `json:"peer_name"`
	ProducerID string `json:"producer_id"`
}

type RemoveMeEvent struct {
	PeerID    string `json:"peer_id"`
	PeerName  string `json:"peer_name"`
	PeerCount int    `json:"peer_counts"`
}

type UpdatePeerInfoEvent struct {
	PeerID   string `json:"peer_id"`
	PeerName string `json:"peer_name"`
	Type     string `json:"type"`
	Status   bool   `json:"status"`
}

type TransportClosedEvent struct {
	TransportID string `json:"transport_id"`
	Reason      string `json:"reason"`
}
