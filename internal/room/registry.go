package room

import (
	"context"
	"log/slog"
	"regexp"
	"sync"

	"github.com/confmesh/sfu/internal/api"
	"github.com/confmesh/sfu/internal/media"
	"github.com/confmesh/sfu/internal/store"
)

// roomIDPattern rejects path traversal and URL metacharacters in room ids.
var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

func ValidRoomID(id string) bool {
	return roomIDPattern.MatchString(id)
}

// Registry is the shared room_id -> Room map. It also subscribes to worker
// death notifications and evicts the affected peers from every room.
type Registry struct {
	log      *slog.Logger
	provider media.Provider
	store    store.RoomStore
	settings func() Settings

	mu    sync.Mutex
	rooms map[string]*Room
}

func NewRegistry(log *slog.Logger, provider media.Provider, st store.RoomStore, settings func() Settings) *Registry {
	reg := &Registry{
		log:      log,
		provider: provider,
		store:    st,
		settings: settings,
		rooms:    make(map[string]*Room),
	}
	provider.OnWorkerDown(reg.handleWorkerDown)
	return reg
}

// GetOrCreate returns the room, creating it on first reference. Creation is
// idempotent from the caller's point of view.
func (g *Registry) GetOrCreate(ctx context.Context, roomID string) (*Room, error) {
	if !ValidRoomID(roomID) {
		return nil, api.NewError(api.KindInvalidArgument, "invalid room id")
	}

	g.mu.Lock()
	if r, ok := g.rooms[roomID]; ok {
		g.mu.Unlock()
		return r, nil
	}
	g.mu.Unlock()

	// Router creation is a worker round-trip; do it outside the registry
	// lock and resolve the race on insert.
	r, err := NewRoom(ctx, roomID, g.log, g.provider, g.store, g.settings(), g.remove)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	if existing, ok := g.rooms[roomID]; ok {
		g.mu.Unlock()
		r.Destroy()
		return existing, nil
	}
	g.rooms[roomID] = r
	g.mu.Unlock()
	g.log.Info("room created", "room", roomID)
	return r, nil
}

func (g *Registry) Get(roomID string) (*Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[roomID]
	if !ok {
		return nil, api.NewError(api.KindNotFound, "room %s not found", roomID)
	}
	return r, nil
}

func (g *Registry) remove(r *Room) {
	g.mu.Lock()
	if g.rooms[r.ID] == r {
		delete(g.rooms, r.ID)
	}
	g.mu.Unlock()
}

// DestroyRoom immediately tears a room down (admin API). Unlike a
// grace-period expiry, an admin destroy also wipes the persisted ban list.
func (g *Registry) DestroyRoom(ctx context.Context, roomID string) error {
	g.mu.Lock()
	r, ok := g.rooms[roomID]
	if ok {
		delete(g.rooms, roomID)
	}
	g.mu.Unlock()
	if !ok {
		return api.NewError(api.KindNotFound, "room %s not found", roomID)
	}
	r.Destroy()
	r.ClearBans(ctx)
	return nil
}

func (g *Registry) Rooms() []*Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

func (g *Registry) handleWorkerDown(routerIDs []string) {
	dead := make(map[string]struct{}, len(routerIDs))
	for _, id := range routerIDs {
		dead[id] = struct{}{}
	}
	g.log.Warn("media worker died, evicting affected peers", "routers", len(routerIDs))
	for _, r := range g.Rooms() {
		r.EvictRouters(dead)
	}
}
