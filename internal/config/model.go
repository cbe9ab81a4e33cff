package config

import "time"

type AppConfig struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Media     MediaConfig     `json:"media" yaml:"media"`
	Auth      AuthConfig      `json:"auth" yaml:"auth"`
	Room      RoomConfig      `json:"room" yaml:"room"`
	Recording RecordingConfig `json:"recording" yaml:"recording"`
	Redis     RedisConfig     `json:"redis" yaml:"redis"`
}

type ServerConfig struct {
	ListenIP        string  `json:"listenIp" yaml:"listenIp"`
	ListenPort      int     `json:"listenPort" yaml:"listenPort"`
	HostURL         string  `json:"hostUrl" yaml:"hostUrl"`
	TLSCrtFile      *string `json:"tlsCrtFile" yaml:"tlsCrtFile"`
	TLSKeyFile      *string `json:"tlsKeyFile" yaml:"tlsKeyFile"`
	LogLevel        string  `json:"logLevel" yaml:"logLevel"`
	AdminCredential *string `json:"adminCredential" yaml:"adminCredential"`
}

type MediaConfig struct {
	WorkerBin   string `json:"workerBin" yaml:"workerBin"`
	NumWorkers  int    `json:"numWorkers" yaml:"numWorkers"`
	ListenIP    string `json:"listenIp" yaml:"listenIp"`
	AnnouncedIP string `json:"announcedIp" yaml:"announcedIp"`
	MinPort     uint16 `json:"minPort" yaml:"minPort"`
	MaxPort     uint16 `json:"maxPort" yaml:"maxPort"`

	// SingleListener enables the shared per-worker listener instead of a
	// port per transport.
	SingleListener bool `json:"singleListener" yaml:"singleListener"`

	MaxIncomingBitrate uint32 `json:"maxIncomingBitrate" yaml:"maxIncomingBitrate"`
}

type AuthConfig struct {
	JWTSecret     string        `json:"jwtSecret" yaml:"jwtSecret"`
	JWTExpiration time.Duration `json:"jwtExpiration" yaml:"jwtExpiration"`
	HostProtected bool          `json:"hostProtected" yaml:"hostProtected"`
	HostUserAuth  bool          `json:"hostUserAuth" yaml:"hostUserAuth"`
	HostUsers     []HostUser    `json:"hostUsers" yaml:"hostUsers"`
	OIDC          OIDCConfig    `json:"oidc" yaml:"oidc"`
}

type HostUser struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	// AllowedRooms restricts which rooms this user may enter; "*" or empty
	// means any.
	AllowedRooms []string `json:"allowedRooms" yaml:"allowedRooms"`
}

// OIDCConfig is parsed and propagated to clients; the login flow itself is
// handled by the front-end service.
type OIDCConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	Issuer       string `json:"issuer" yaml:"issuer"`
	ClientID     string `json:"clientId" yaml:"clientId"`
	ClientSecret string `json:"clientSecret" yaml:"clientSecret"`
	Secret       string `json:"secret" yaml:"secret"`
}

type RoomConfig struct {
	MaxParticipants    int      `json:"maxParticipants" yaml:"maxParticipants"`
	LobbyEnabled       bool     `json:"lobbyEnabled" yaml:"lobbyEnabled"`
	HostOnlyRecording  bool     `json:"hostOnlyRecording" yaml:"hostOnlyRecording"`
	Presenters         []string `json:"presenters" yaml:"presenters"`
	PresenterJoinFirst bool     `json:"presenterJoinFirst" yaml:"presenterJoinFirst"`
	DominantSpeaker    bool     `json:"dominantSpeaker" yaml:"dominantSpeaker"`

	// DestroyGrace is how long an empty room survives waiting for a
	// reconnect before its routers are torn down.
	DestroyGrace time.Duration `json:"destroyGrace" yaml:"destroyGrace"`

	SurveyEnabled   bool   `json:"surveyEnabled" yaml:"surveyEnabled"`
	SurveyURL       string `json:"surveyUrl" yaml:"surveyUrl"`
	RedirectEnabled bool   `json:"redirectEnabled" yaml:"redirectEnabled"`
	RedirectURL     string `json:"redirectUrl" yaml:"redirectUrl"`
}

type RecordingConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Endpoint, when set, is a remote sink chunks are forwarded to instead
	// of the local disk.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	Dir          string `json:"dir" yaml:"dir"`
	MaxFileBytes int64  `json:"maxFileBytes" yaml:"maxFileBytes"`

	UploadToS3 bool     `json:"uploadToS3" yaml:"uploadToS3"`
	S3         S3Config `json:"s3" yaml:"s3"`
}

type S3Config struct {
	Bucket          string `json:"bucket" yaml:"bucket"`
	Region          string `json:"region" yaml:"region"`
	AccessKeyID     string `json:"accessKeyId" yaml:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey" yaml:"secretAccessKey"`
}

// RedisConfig enables the persisted ban/notification store; with an empty
// Addr the in-memory store is used.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

func DefaultAppConfig() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			ListenIP:   "0.0.0.0",
			ListenPort: 3010,
			LogLevel:   "info",
		},
		Media: MediaConfig{
			WorkerBin:          "mediasoup-worker",
			NumWorkers:         0, // 0 means NumCPU
			ListenIP:           "0.0.0.0",
			MinPort:            40000,
			MaxPort:            40100,
			MaxIncomingBitrate: 1536000,
		},
		Auth: AuthConfig{
			JWTSecret:     "sfu_jwt_secret",
			JWTExpiration: time.Hour,
		},
		Room: RoomConfig{
			MaxParticipants:    1000,
			PresenterJoinFirst: true,
			DominantSpeaker:    true,
			DestroyGrace:       10 * time.Second,
		},
		Recording: RecordingConfig{
			Dir:          "./rec",
			MaxFileBytes: 1 << 30,
		},
	}
}
