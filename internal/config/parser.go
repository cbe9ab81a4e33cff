package config

import (
	"os"
	"time"
)

type RawServerConfig struct {
	ListenIP        *string `yaml:"listenIp" json:"listenIp"`
	ListenPort      *int    `yaml:"listenPort" json:"listenPort"`
	HostURL         *string `yaml:"hostUrl" json:"hostUrl"`
	TLSCrtFile      *string `yaml:"tlsCrtFile" json:"tlsCrtFile"`
	TLSKeyFile      *string `yaml:"tlsKeyFile" json:"tlsKeyFile"`
	LogLevel        *string `yaml:"logLevel" json:"logLevel"`
	AdminCredential *string `yaml:"adminCredential" json:"adminCredential"`
}

func (r RawServerConfig) ToDomain() ServerConfig {
	var cfg ServerConfig
	if r.ListenIP != nil {
		cfg.ListenIP = *r.ListenIP
	}
	if r.ListenPort != nil {
		cfg.ListenPort = *r.ListenPort
	}
	if r.HostURL != nil {
		cfg.HostURL = *r.HostURL
	}
	cfg.TLSCrtFile = r.TLSCrtFile
	cfg.TLSKeyFile = r.TLSKeyFile
	if r.LogLevel != nil {
		cfg.LogLevel = *r.LogLevel
	}
	cfg.AdminCredential = r.AdminCredential
	return cfg
}

type RawMediaConfig struct {
	WorkerBin          *string `yaml:"workerBin" json:"workerBin"`
	NumWorkers         *int    `yaml:"numWorkers" json:"numWorkers"`
	ListenIP           *string `yaml:"listenIp" json:"listenIp"`
	AnnouncedIP        *string `yaml:"announcedIp" json:"announcedIp"`
	MinPort            *uint16 `yaml:"minPort" json:"minPort"`
	MaxPort            *uint16 `yaml:"maxPort" json:"maxPort"`
	SingleListener     *bool   `yaml:"singleListener" json:"singleListener"`
	MaxIncomingBitrate *uint32 `yaml:"maxIncomingBitrate" json:"maxIncomingBitrate"`
}

func (r RawMediaConfig) ToDomain() MediaConfig {
	var cfg MediaConfig
	if r.WorkerBin != nil {
		cfg.WorkerBin = *r.WorkerBin
	}
	if r.NumWorkers != nil {
		cfg.NumWorkers = *r.NumWorkers
	}
	if r.ListenIP != nil {
		cfg.ListenIP = *r.ListenIP
	}
	if r.AnnouncedIP != nil {
		cfg.AnnouncedIP = *r.AnnouncedIP
	}
	if r.MinPort != nil {
		cfg.MinPort = *r.MinPort
	}
	if r.MaxPort != nil {
		cfg.MaxPort = *r.MaxPort
	}
	if r.SingleListener != nil {
		cfg.SingleListener = *r.SingleListener
	}
	if r.MaxIncomingBitrate != nil {
		cfg.MaxIncomingBitrate = *r.MaxIncomingBitrate
	}
	return cfg
}

type RawAuthConfig struct {
	JWTSecret     *string        `yaml:"jwtSecret" json:"jwtSecret"`
	JWTExpiration *string        `yaml:"jwtExpiration" json:"jwtExpiration"`
	HostProtected *bool          `yaml:"hostProtected" json:"hostProtected"`
	HostUserAuth  *bool          `yaml:"hostUserAuth" json:"hostUserAuth"`
	HostUsers     *[]HostUser    `yaml:"hostUsers" json:"hostUsers"`
	OIDC          *RawOIDCConfig `yaml:"oidc" json:"oidc"`
}

type RawOIDCConfig struct {
	Enabled      *bool   `yaml:"enabled" json:"enabled"`
	Issuer       *string `yaml:"issuer" json:"issuer"`
	ClientID     *string `yaml:"clientId" json:"clientId"`
	ClientSecret *string `yaml:"clientSecret" json:"clientSecret"`
	Secret       *string `yaml:"secret" json:"secret"`
}

func (r RawAuthConfig) ToDomain() (AuthConfig, error) {
	var cfg AuthConfig
	if r.JWTSecret != nil {
		cfg.JWTSecret = *r.JWTSecret
	}
	if r.JWTExpiration != nil {
		d, err := time.ParseDuration(*r.JWTExpiration)
		if err != nil {
			return AuthConfig{}, err
		}
		cfg.JWTExpiration = d
	}
	if r.HostProtected != nil {
		cfg.HostProtected = *r.HostProtected
	}
	if r.HostUserAuth != nil {
		cfg.HostUserAuth = *r.HostUserAuth
	}
	if r.HostUsers != nil {
		cfg.HostUsers = *r.HostUsers
	}
	if r.OIDC != nil {
		if r.OIDC.Enabled != nil {
			cfg.OIDC.Enabled = *r.OIDC.Enabled
		}
		if r.OIDC.Issuer != nil {
			cfg.OIDC.Issuer = *r.OIDC.Issuer
		}
		if r.OIDC.ClientID != nil {
			cfg.OIDC.ClientID = *r.OIDC.ClientID
		}
		if r.OIDC.ClientSecret != nil {
			cfg.OIDC.ClientSecret = *r.OIDC.ClientSecret
		}
		if r.OIDC.Secret != nil {
			cfg.OIDC.Secret = *r.OIDC.Secret
		}
	}
	return cfg, nil
}

type RawRoomConfig struct {
	MaxParticipants    *int      `yaml:"maxParticipants" json:"maxParticipants"`
	LobbyEnabled       *bool     `yaml:"lobbyEnabled" json:"lobbyEnabled"`
	HostOnlyRecording  *bool     `yaml:"hostOnlyRecording" json:"hostOnlyRecording"`
	Presenters         *[]string `yaml:"presenters" json:"presenters"`
	PresenterJoinFirst *bool     `yaml:"presenterJoinFirst" json:"presenterJoinFirst"`
	DominantSpeaker    *bool     `yaml:"dominantSpeaker" json:"dominantSpeaker"`
	DestroyGrace       *string   `yaml:"destroyGrace" json:"destroyGrace"`
	SurveyEnabled      *bool     `yaml:"surveyEnabled" json:"surveyEnabled"`
	SurveyURL          *string   `yaml:"surveyUrl" json:"surveyUrl"`
	RedirectEnabled    *bool     `yaml:"redirectEnabled" json:"redirectEnabled"`
	RedirectURL        *string   `yaml:"redirectUrl" json:"redirectUrl"`
}

func (r RawRoomConfig) ToDomain() (RoomConfig, error) {
	var cfg RoomConfig
	if r.MaxParticipants != nil {
		cfg.MaxParticipants = *r.MaxParticipants
	}
	if r.LobbyEnabled != nil {
		cfg.LobbyEnabled = *r.LobbyEnabled
	}
	if r.HostOnlyRecording != nil {
		cfg.HostOnlyRecording = *r.HostOnlyRecording
	}
	if r.Presenters != nil {
		cfg.Presenters = *r.Presenters
	}
	if r.PresenterJoinFirst != nil {
		cfg.PresenterJoinFirst = *r.PresenterJoinFirst
	}
	if r.DominantSpeaker != nil {
		cfg.DominantSpeaker = *r.DominantSpeaker
	}
	if r.DestroyGrace != nil {
		d, err := time.ParseDuration(*r.DestroyGrace)
		if err != nil {
			return RoomConfig{}, err
		}
		cfg.DestroyGrace = d
	}
	if r.SurveyEnabled != nil {
		cfg.SurveyEnabled = *r.SurveyEnabled
	}
	if r.SurveyURL != nil {
		cfg.SurveyURL = *r.SurveyURL
	}
	if r.RedirectEnabled != nil {
		cfg.RedirectEnabled = *r.RedirectEnabled
	}
	if r.RedirectURL != nil {
		cfg.RedirectURL = *r.RedirectURL
	}
	return cfg, nil
}

type RawRecordingConfig struct {
	Enabled      *bool        `yaml:"enabled" json:"enabled"`
	Endpoint     *string      `yaml:"endpoint" json:"endpoint"`
	Dir          *string      `yaml:"dir" json:"dir"`
	MaxFileBytes *int64       `yaml:"maxFileBytes" json:"maxFileBytes"`
	UploadToS3   *bool        `yaml:"uploadToS3" json:"uploadToS3"`
	S3           *RawS3Config `yaml:"s3" json:"s3"`
}

type RawS3Config struct {
	Bucket          *string `yaml:"bucket" json:"bucket"`
	Region          *string `yaml:"region" json:"region"`
	AccessKeyID     *string `yaml:"accessKeyId" json:"accessKeyId"`
	SecretAccessKey *string `yaml:"secretAccessKey" json:"secretAccessKey"`
}

func (r RawRecordingConfig) ToDomain() RecordingConfig {
	var cfg RecordingConfig
	if r.Enabled != nil {
		cfg.Enabled = *r.Enabled
	}
	if r.Endpoint != nil {
		cfg.Endpoint = *r.Endpoint
	}
	if r.Dir != nil {
		cfg.Dir = *r.Dir
		_ = os.MkdirAll(cfg.Dir, os.ModePerm)
	}
	if r.MaxFileBytes != nil {
		cfg.MaxFileBytes = *r.MaxFileBytes
	}
	if r.UploadToS3 != nil {
		cfg.UploadToS3 = *r.UploadToS3
	}
	if r.S3 != nil {
		if r.S3.Bucket != nil {
			cfg.S3.Bucket = *r.S3.Bucket
		}
		if r.S3.Region != nil {
			cfg.S3.Region = *r.S3.Region
		}
		if r.S3.AccessKeyID != nil {
			cfg.S3.AccessKeyID = *r.S3.AccessKeyID
		}
		if r.S3.SecretAccessKey != nil {
			cfg.S3.SecretAccessKey = *r.S3.SecretAccessKey
		}
	}
	return cfg
}

type RawRedisConfig struct {
	Addr     *string `yaml:"addr" json:"addr"`
	Password *string `yaml:"password" json:"password"`
	DB       *int    `yaml:"db" json:"db"`
}

func (r RawRedisConfig) ToDomain() RedisConfig {
	var cfg RedisConfig
	if r.Addr != nil {
		cfg.Addr = *r.Addr
	}
	if r.Password != nil {
		cfg.Password = *r.Password
	}
	if r.DB != nil {
		cfg.DB = *r.DB
	}
	return cfg
}
