package api

import "time"

// MediaType distinguishes sources on top of the RTP kind: a "video" kind
// producer is either a webcam or a shared screen, which changes the layer
// policy applied to it.
type MediaType string

const (
	MediaTypeAudio       = MediaType("audio")
	MediaTypeVideo       = MediaType("video")
	MediaTypeScreen      = MediaType("screen")
	MediaTypeScreenAudio = MediaType("screen-audio")
)

// PeerInfo is the client-supplied identity and presence block. PeerUUID is
// stable across reconnects and is the key for bans and notifications;
// PeerName is display-only.
type PeerInfo struct {
	PeerName    string `json:"peer_name"`
	PeerUUID    string `json:"peer_uuid"`
	PeerAvatar  string `json:"peer_avatar,omitempty"`
	PeerAudio   bool   `json:"peer_audio"`
	PeerVideo   bool   `json:"peer_video"`
	PeerScreen  bool   `json:"peer_screen"`
	PeerHand    bool   `json:"peer_hand"`
	PeerNotify  bool   `json:"peer_notify"`
	OsName      string `json:"os_name,omitempty"`
	OsVersion   string `json:"os_version,omitempty"`
	BrowserName string `json:"browser_name,omitempty"`
}

// Peer is the view of a room member returned from join and the admin API.
type Peer struct {
	PeerID    string    `json:"peer_id"`
	PeerInfo  PeerInfo  `json:"peer_info"`
	Presenter bool      `json:"presenter"`
	JoinedAt  time.Time `json:"joined_at"`
	Producers []string  `json:"producers,omitempty"`
}

type Moderator struct {
	AudioStartMuted   bool `json:"audio_start_muted"`
	VideoStartHidden  bool `json:"video_start_hidden"`
	VideoStartPrivacy bool `json:"video_start_privacy"`
	AudioCantUnmute   bool `json:"audio_cant_unmute"`
	VideoCantUnhide   bool `json:"video_cant_unhide"`
	ScreenCantShare   bool `json:"screen_cant_share"`
	ChatCantPrivately bool `json:"chat_cant_privately"`
	ChatCantChatGPT   bool `json:"chat_cant_chatgpt"`
	ChatCantDeepSeek  bool `json:"chat_cant_deep_seek"`
	MediaCantSharing  bool `json:"media_cant_sharing"`
}

type Recording struct {
	Enabled           bool   `json:"enabled"`
	HostOnlyRecording bool   `json:"host_only_recording"`
	Endpoint          string `json:"endpoint,omitempty"`
}

type RoomSurvey struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url,omitempty"`
}

type Redirect struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url,omitempty"`
}
