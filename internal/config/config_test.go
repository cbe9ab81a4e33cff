package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppConfigDefaults(t *testing.T) {
	cfg, err := LoadAppConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadAppConfig failed: %v", err)
	}

	def := DefaultAppConfig()
	if cfg.Server.ListenPort != def.Server.ListenPort {
		t.Errorf("listenPort = %d, want %d", cfg.Server.ListenPort, def.Server.ListenPort)
	}
	if cfg.Media.MinPort != 40000 || cfg.Media.MaxPort != 40100 {
		t.Errorf("rtc ports = %d-%d, want 40000-40100", cfg.Media.MinPort, cfg.Media.MaxPort)
	}
	if cfg.Room.MaxParticipants != 1000 {
		t.Errorf("maxParticipants = %d, want 1000", cfg.Room.MaxParticipants)
	}
	if !cfg.Room.PresenterJoinFirst {
		t.Error("presenterJoinFirst should default to true")
	}
	if cfg.Room.DestroyGrace != 10*time.Second {
		t.Errorf("destroyGrace = %v, want 10s", cfg.Room.DestroyGrace)
	}
}

func TestLoadAppConfigFileOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "room.yaml", "maxParticipants: 25\ndestroyGrace: 30s\npresenters:\n  - alice\n")
	writeConfig(t, dir, "server.yaml", "listenPort: 8080\nlogLevel: debug\n")

	cfg, err := LoadAppConfig(dir)
	if err != nil {
		t.Fatalf("LoadAppConfig failed: %v", err)
	}
	if cfg.Room.MaxParticipants != 25 {
		t.Errorf("maxParticipants = %d, want 25", cfg.Room.MaxParticipants)
	}
	if cfg.Room.DestroyGrace != 30*time.Second {
		t.Errorf("destroyGrace = %v, want 30s", cfg.Room.DestroyGrace)
	}
	if len(cfg.Room.Presenters) != 1 || cfg.Room.Presenters[0] != "alice" {
		t.Errorf("presenters = %v, want [alice]", cfg.Room.Presenters)
	}
	if cfg.Server.ListenPort != 8080 || cfg.Server.LogLevel != "debug" {
		t.Errorf("server = %+v", cfg.Server)
	}
	// Untouched sections keep their defaults.
	if cfg.Media.MaxIncomingBitrate != 1536000 {
		t.Errorf("maxIncomingBitrate = %d, want default", cfg.Media.MaxIncomingBitrate)
	}
}

func TestLoadAppConfigBadDuration(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "room.yaml", "destroyGrace: soon\n")
	if _, err := LoadAppConfig(dir); err == nil {
		t.Error("unparseable duration should fail the load")
	}
}

func TestEnvOverridesFiles(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "server.yaml", "listenPort: 8080\n")

	t.Setenv("SERVER_LISTEN_PORT", "9090")
	t.Setenv("SFU_ANNOUNCED_IP", "203.0.113.7")
	t.Setenv("SFU_MIN_PORT", "50000")
	t.Setenv("ROOM_LOBBY", "true")
	t.Setenv("PRESENTER_JOIN_FIRST", "false")
	t.Setenv("JWT_EXPIRATION", "15m")
	t.Setenv("REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("SERVER_SSL_CERT", "/tls/cert.pem")
	t.Setenv("PRESENTERS", "alice, bob")

	cfg, err := LoadAppConfig(dir)
	if err != nil {
		t.Fatalf("LoadAppConfig failed: %v", err)
	}
	if cfg.Server.ListenPort != 9090 {
		t.Errorf("listenPort = %d, want env value 9090", cfg.Server.ListenPort)
	}
	if cfg.Media.AnnouncedIP != "203.0.113.7" || cfg.Media.MinPort != 50000 {
		t.Errorf("media = %+v", cfg.Media)
	}
	if !cfg.Room.LobbyEnabled || cfg.Room.PresenterJoinFirst {
		t.Errorf("room flags = %+v", cfg.Room)
	}
	if cfg.Auth.JWTExpiration != 15*time.Minute {
		t.Errorf("jwtExpiration = %v, want 15m", cfg.Auth.JWTExpiration)
	}
	if cfg.Redis.Addr != "127.0.0.1:6379" {
		t.Errorf("redis addr = %s", cfg.Redis.Addr)
	}
	if cfg.Server.TLSCrtFile == nil || *cfg.Server.TLSCrtFile != "/tls/cert.pem" {
		t.Error("SERVER_SSL_CERT not applied")
	}
	want := []string{"alice", "bob"}
	if len(cfg.Room.Presenters) != 2 || cfg.Room.Presenters[0] != want[0] || cfg.Room.Presenters[1] != want[1] {
		t.Errorf("presenters = %v, want %v", cfg.Room.Presenters, want)
	}
}

func TestEnvRejectsBadNumbers(t *testing.T) {
	t.Setenv("SERVER_LISTEN_PORT", "eighty")
	if _, err := LoadAppConfig(t.TempDir()); err == nil {
		t.Error("non-numeric port should fail the load")
	}
}

func TestParseHostUsers(t *testing.T) {
	users, err := parseHostUsers("alice:pw1, bob:pw2|standup|retro")
	if err != nil {
		t.Fatalf("parseHostUsers failed: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("users = %d, want 2", len(users))
	}
	if users[0].Username != "alice" || users[0].Password != "pw1" || users[0].AllowedRooms != nil {
		t.Errorf("users[0] = %+v", users[0])
	}
	if users[1].Username != "bob" || len(users[1].AllowedRooms) != 2 || users[1].AllowedRooms[0] != "standup" {
		t.Errorf("users[1] = %+v", users[1])
	}

	if _, err := parseHostUsers("nopassword"); err == nil {
		t.Error("entry without a colon should fail")
	}
	if _, err := parseHostUsers(":pw"); err == nil {
		t.Error("empty username should fail")
	}
}

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}
