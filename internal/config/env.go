package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnv overlays recognized environment variables onto cfg. Environment
// always wins over config files.
func applyEnv(cfg *AppConfig) error {
	setString(&cfg.Media.ListenIP, "SFU_LISTEN_IP")
	setString(&cfg.Media.AnnouncedIP, "SFU_ANNOUNCED_IP")
	if err := setUint16(&cfg.Media.MinPort, "SFU_MIN_PORT"); err != nil {
		return err
	}
	if err := setUint16(&cfg.Media.MaxPort, "SFU_MAX_PORT"); err != nil {
		return err
	}
	if err := setInt(&cfg.Media.NumWorkers, "SFU_NUM_WORKERS"); err != nil {
		return err
	}
	setBool(&cfg.Media.SingleListener, "SFU_SERVER")
	setString(&cfg.Media.WorkerBin, "SFU_WORKER_BIN")

	setString(&cfg.Server.ListenIP, "SERVER_LISTEN_IP")
	if err := setInt(&cfg.Server.ListenPort, "SERVER_LISTEN_PORT"); err != nil {
		return err
	}
	setString(&cfg.Server.HostURL, "SERVER_HOST_URL")
	setStringPtr(&cfg.Server.TLSCrtFile, "SERVER_SSL_CERT")
	setStringPtr(&cfg.Server.TLSKeyFile, "SERVER_SSL_KEY")
	setString(&cfg.Server.LogLevel, "SERVER_LOG_LEVEL")

	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	if err := setDuration(&cfg.Auth.JWTExpiration, "JWT_EXPIRATION"); err != nil {
		return err
	}
	setBool(&cfg.Auth.HostProtected, "HOST_PROTECTED")
	setBool(&cfg.Auth.HostUserAuth, "HOST_USER_AUTH")
	if v, ok := os.LookupEnv("HOST_USERS"); ok {
		users, err := parseHostUsers(v)
		if err != nil {
			return err
		}
		cfg.Auth.HostUsers = users
	}
	setBool(&cfg.Auth.OIDC.Enabled, "OIDC_ENABLED")
	setString(&cfg.Auth.OIDC.Issuer, "OIDC_ISSUER")
	setString(&cfg.Auth.OIDC.ClientID, "OIDC_CLIENT_ID")
	setString(&cfg.Auth.OIDC.ClientSecret, "OIDC_CLIENT_SECRET")
	setString(&cfg.Auth.OIDC.Secret, "OIDC_SECRET")

	if err := setInt(&cfg.Room.MaxParticipants, "ROOM_MAX_PARTICIPANTS"); err != nil {
		return err
	}
	setBool(&cfg.Room.LobbyEnabled, "ROOM_LOBBY")
	setBool(&cfg.Room.HostOnlyRecording, "HOST_ONLY_RECORDING")
	if v, ok := os.LookupEnv("PRESENTERS"); ok {
		cfg.Room.Presenters = splitTrim(v)
	}
	setBool(&cfg.Room.PresenterJoinFirst, "PRESENTER_JOIN_FIRST")

	setBool(&cfg.Recording.Enabled, "RECORDING_ENABLED")
	setString(&cfg.Recording.Endpoint, "RECORDING_ENDPOINT")
	setString(&cfg.Recording.Dir, "RECORDING_DIR")
	setBool(&cfg.Recording.UploadToS3, "RECORDING_UPLOAD_TO_S3")
	setString(&cfg.Recording.S3.AccessKeyID, "AWS_ACCESS_KEY_ID")
	setString(&cfg.Recording.S3.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	setString(&cfg.Recording.S3.Bucket, "AWS_S3_BUCKET")
	setString(&cfg.Recording.S3.Region, "AWS_REGION")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	if err := setInt(&cfg.Redis.DB, "REDIS_DB"); err != nil {
		return err
	}

	return nil
}

// parseHostUsers parses "user:pass" pairs separated by commas, with an
// optional |room1|room2 suffix restricting the user to specific rooms.
func parseHostUsers(raw string) ([]HostUser, error) {
	var users []HostUser
	for _, entry := range splitTrim(raw) {
		parts := strings.Split(entry, "|")
		creds := strings.SplitN(parts[0], ":", 2)
		if len(creds) != 2 || creds[0] == "" {
			return nil, fmt.Errorf("HOST_USERS entry %q is not user:password", entry)
		}
		user := HostUser{Username: creds[0], Password: creds[1]}
		if len(parts) > 1 {
			user.AllowedRooms = parts[1:]
		}
		users = append(users, user)
	}
	return users, nil
}

func splitTrim(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setStringPtr(dst **string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = &v
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v == "true" || v == "1" || v == "on"
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setUint16(dst *uint16, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = uint16(n)
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
