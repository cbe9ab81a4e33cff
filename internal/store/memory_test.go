package store

import (
	"context"
	"testing"
)

func TestMemoryStoreBans(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	banned, err := s.IsBanned(ctx, "room1", "uuid-a")
	if err != nil || banned {
		t.Fatalf("fresh store IsBanned = %v, %v", banned, err)
	}

	if err := s.BanPeer(ctx, "room1", "uuid-a"); err != nil {
		t.Fatalf("BanPeer failed: %v", err)
	}
	if banned, _ := s.IsBanned(ctx, "room1", "uuid-a"); !banned {
		t.Error("banned peer should report banned")
	}
	// Bans are scoped to a room.
	if banned, _ := s.IsBanned(ctx, "room2", "uuid-a"); banned {
		t.Error("ban leaked into another room")
	}
	if banned, _ := s.IsBanned(ctx, "room1", "uuid-b"); banned {
		t.Error("ban leaked onto another peer")
	}

	if err := s.ClearBans(ctx, "room1"); err != nil {
		t.Fatalf("ClearBans failed: %v", err)
	}
	if banned, _ := s.IsBanned(ctx, "room1", "uuid-a"); banned {
		t.Error("ban survived ClearBans")
	}
}

func TestMemoryStoreNotifications(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if enabled, _ := s.GetNotification(ctx, "room1", "uuid-a"); enabled {
		t.Error("notifications should default to off")
	}
	if err := s.SetNotification(ctx, "room1", "uuid-a", true); err != nil {
		t.Fatalf("SetNotification failed: %v", err)
	}
	if enabled, _ := s.GetNotification(ctx, "room1", "uuid-a"); !enabled {
		t.Error("notification preference not stored")
	}
	// Preferences are scoped to a room.
	if enabled, _ := s.GetNotification(ctx, "room2", "uuid-a"); enabled {
		t.Error("notification preference leaked into another room")
	}
	if err := s.SetNotification(ctx, "room1", "uuid-a", false); err != nil {
		t.Fatalf("SetNotification failed: %v", err)
	}
	if enabled, _ := s.GetNotification(ctx, "room1", "uuid-a"); enabled {
		t.Error("notification preference not cleared")
	}
}
