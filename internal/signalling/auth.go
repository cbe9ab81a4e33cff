package signalling

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/confmesh/sfu/internal/config"
)

// HostClaims is the token body issued by /login and presented on join when
// host protection is on.
type HostClaims struct {
	Username     string   `json:"username"`
	AllowedRooms []string `json:"allowed_rooms,omitempty"`
	jwt.RegisteredClaims
}

type AuthHandler struct {
	cfg config.AuthConfig
}

func NewAuthHandler(cfg config.AuthConfig) *AuthHandler {
	return &AuthHandler{cfg: cfg}
}

// Login validates a configured host user and mints a token for it.
func (h *AuthHandler) Login(username, password string) (string, error) {
	var user *config.HostUser
	for i := range h.cfg.HostUsers {
		if h.cfg.HostUsers[i].Username == username && h.cfg.HostUsers[i].Password == password {
			user = &h.cfg.HostUsers[i]
			break
		}
	}
	if user == nil {
		return "", fmt.Errorf("unknown username or wrong password")
	}

	claims := HostClaims{
		Username:     user.Username,
		AllowedRooms: user.AllowedRooms,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(h.cfg.JWTExpiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.cfg.JWTSecret))
}

// Verify parses a token presented on join. A nil error means the caller is
// an authenticated host user.
func (h *AuthHandler) Verify(tokenString string) (*HostClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &HostClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(h.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*HostClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// AllowedRoom reports whether the claims admit entering roomID. An empty
// list or "*" means any room.
func (c *HostClaims) AllowedRoom(roomID string) bool {
	if len(c.AllowedRooms) == 0 {
		return true
	}
	for _, allowed := range c.AllowedRooms {
		if allowed == "*" || allowed == roomID {
			return true
		}
	}
	return false
}
