// Package store persists room moderation state that must survive a peer
// reconnecting with a fresh session: bans keyed by the client-stable peer
// UUID, and per-peer notification preferences.
package store

import "context"

type RoomStore interface {
	// BanPeer records that the given peer UUID may not re-enter the room.
	BanPeer(ctx context.Context, roomID, peerUUID string) error
	IsBanned(ctx context.Context, roomID, peerUUID string) (bool, error)
	// ClearBans removes all bans for a room. Only an explicit admin
	// destroy calls this; grace-period teardown keeps the list.
	ClearBans(ctx context.Context, roomID string) error

	// Notification preferences are scoped per room: the same client may
	// want sounds in one meeting and silence in another.
	SetNotification(ctx context.Context, roomID, peerUUID string, enabled bool) error
	GetNotification(ctx context.Context, roomID, peerUUID string) (bool, error)

	Close() error
}
