package signalling

import (
	"testing"
	"time"

	"github.com/confmesh/sfu/internal/config"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:     "test-secret",
		JWTExpiration: time.Hour,
		HostUsers: []config.HostUser{
			{Username: "host", Password: "pw", AllowedRooms: []string{"standup", "retro"}},
			{Username: "admin", Password: "pw2"},
		},
	}
}

func TestLoginAndVerify(t *testing.T) {
	h := NewAuthHandler(testAuthConfig())

	token, err := h.Login("host", "pw")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	claims, err := h.Verify(token)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if claims.Username != "host" {
		t.Errorf("username = %s, want host", claims.Username)
	}
	if len(claims.AllowedRooms) != 2 {
		t.Errorf("allowed rooms = %v", claims.AllowedRooms)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h := NewAuthHandler(testAuthConfig())
	if _, err := h.Login("host", "wrong"); err == nil {
		t.Error("wrong password should fail")
	}
	if _, err := h.Login("nobody", "pw"); err == nil {
		t.Error("unknown user should fail")
	}
}

func TestVerifyRejectsForeignToken(t *testing.T) {
	h := NewAuthHandler(testAuthConfig())
	token, err := h.Login("host", "pw")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	other := testAuthConfig()
	other.JWTSecret = "different-secret"
	if _, err := NewAuthHandler(other).Verify(token); err == nil {
		t.Error("token signed with another secret should fail verification")
	}
	if _, err := h.Verify("not-a-token"); err == nil {
		t.Error("garbage token should fail verification")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	cfg := testAuthConfig()
	cfg.JWTExpiration = -time.Minute
	h := NewAuthHandler(cfg)
	token, err := h.Login("host", "pw")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := h.Verify(token); err == nil {
		t.Error("expired token should fail verification")
	}
}

func TestAllowedRoom(t *testing.T) {
	restricted := &HostClaims{AllowedRooms: []string{"standup"}}
	if !restricted.AllowedRoom("standup") {
		t.Error("listed room should be allowed")
	}
	if restricted.AllowedRoom("retro") {
		t.Error("unlisted room should be denied")
	}

	open := &HostClaims{}
	if !open.AllowedRoom("anything") {
		t.Error("empty list should allow any room")
	}
	wildcard := &HostClaims{AllowedRooms: []string{"*"}}
	if !wildcard.AllowedRoom("anything") {
		t.Error("wildcard should allow any room")
	}
}
