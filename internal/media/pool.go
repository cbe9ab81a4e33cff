package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"

	"github.com/confmesh/sfu/internal/metrics"
)

var ErrNoWorkers = errors.New("media: no alive workers")

// respawnDelay spaces out retries when a replacement worker fails to start.
const respawnDelay = 2 * time.Second

type Config struct {
	WorkerBin   string
	NumWorkers  int
	ListenIP    string
	AnnouncedIP string
	RtcMinPort  uint16
	RtcMaxPort  uint16

	// SingleListener makes every worker share one UDP/TCP port through a
	// WebRtcServer instead of allocating a port per transport.
	SingleListener bool

	LogLevel string
}

// Pool owns the media worker processes and places routers across them.
type Pool struct {
	log *slog.Logger
	cfg Config

	mu     sync.Mutex
	slots  []*workerSlot
	rrNext int
	pipes  map[string]struct{}
	onDown func(routerIDs []string)
	closed bool

	// newSlot is p.spawnWorker in production; tests stub it.
	newSlot func(id int) (*workerSlot, error)
}

type workerSlot struct {
	id     int
	worker *mediasoup.Worker
	server *mediasoup.WebRtcServer

	mu      sync.Mutex
	dead    bool
	routers map[string]*poolRouter

	consumers atomic.Int64
}

// NewPool spawns min(cfg.NumWorkers, NumCPU) workers. Failing to start any
// worker is fatal.
func NewPool(log *slog.Logger, cfg Config) (*Pool, error) {
	n := cfg.NumWorkers
	if n <= 0 || n > runtime.NumCPU() {
		n = runtime.NumCPU()
	}

	p := &Pool{
		log:   log,
		cfg:   cfg,
		pipes: make(map[string]struct{}),
	}
	p.newSlot = p.spawnWorker

	for i := 0; i < n; i++ {
		slot, err := p.newSlot(i)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("spawn media worker %d: %w", i, err)
		}
		p.slots = append(p.slots, slot)
		metrics.MediaWorkersAlive.Inc()
	}

	log.Info("media worker pool started", "workers", n,
		"rtcMinPort", cfg.RtcMinPort, "rtcMaxPort", cfg.RtcMaxPort,
		"singleListener", cfg.SingleListener)

	return p, nil
}

func (p *Pool) OnWorkerDown(f func(routerIDs []string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDown = f
}

// CreateRouter places a router on the least loaded alive worker. Load is the
// active consumer count; ties go round-robin.
func (p *Pool) CreateRouter(ctx context.Context) (Router, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrNoWorkers
	}

	var best *workerSlot
	var bestLoad int64
	for i := 0; i < len(p.slots); i++ {
		slot := p.slots[(p.rrNext+i)%len(p.slots)]
		if slot.isDead() {
			continue
		}
		load := slot.consumers.Load()
		if best == nil || load < bestLoad {
			best, bestLoad = slot, load
		}
	}
	if best == nil {
		p.mu.Unlock()
		return nil, ErrNoWorkers
	}
	p.rrNext = best.id + 1
	p.mu.Unlock()

	ctx, cancel := ipcContext(ctx)
	defer cancel()

	raw, err := best.worker.CreateRouterContext(ctx, &mediasoup.RouterOptions{
		MediaCodecs: RouterMediaCodecs(),
	})
	if err != nil {
		return nil, fmt.Errorf("create router on worker %d: %w", best.id, err)
	}

	r := &poolRouter{pool: p, slot: best, raw: raw}
	best.mu.Lock()
	best.routers[raw.Id()] = r
	best.mu.Unlock()

	metrics.RoutersActive.Inc()
	p.log.Debug("router created", "routerId", raw.Id(), "workerId", best.id)
	return r, nil
}

// EnsurePipe connects producerID from its origin router to target so peers
// placed on a different worker can consume it. The pipe is established once
// per (origin, target, producer) and reused for every later consumer.
func (p *Pool) EnsurePipe(ctx context.Context, origin, target Router, producerID string) error {
	if origin.ID() == target.ID() {
		return nil
	}

	from, ok := origin.(*poolRouter)
	if !ok {
		return errors.New("media: origin router is not pool managed")
	}
	to, ok := target.(*poolRouter)
	if !ok {
		return errors.New("media: target router is not pool managed")
	}

	key := from.ID() + "|" + to.ID() + "|" + producerID

	p.mu.Lock()
	if _, done := p.pipes[key]; done {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	_, err := from.raw.PipeToRouter(&mediasoup.PipeToRouterOptions{
		ProducerId: producerID,
		Router:     to.raw,
		EnableRtx:  true,
	})
	if err != nil {
		return fmt.Errorf("pipe producer %s to router %s: %w", producerID, to.ID(), err)
	}

	p.mu.Lock()
	p.pipes[key] = struct{}{}
	p.mu.Unlock()

	metrics.PipesEstablishedTotal.Inc()
	p.log.Debug("producer piped", "producerId", producerID,
		"from", from.ID(), "to", to.ID())
	return nil
}

func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	slots := p.slots
	p.mu.Unlock()

	for _, slot := range slots {
		if !slot.isDead() {
			slot.worker.Close()
		}
	}
}

// AliveWorkers reports the current pool health for the admin API.
func (p *Pool) AliveWorkers() (alive, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, slot := range p.slots {
		if !slot.isDead() {
			alive++
		}
	}
	return alive, len(p.slots)
}

func (p *Pool) handleWorkerDown(slot *workerSlot) {
	slot.mu.Lock()
	if slot.dead {
		slot.mu.Unlock()
		return
	}
	slot.dead = true
	routerIDs := make([]string, 0, len(slot.routers))
	for id := range slot.routers {
		routerIDs = append(routerIDs, id)
	}
	slot.routers = make(map[string]*poolRouter)
	slot.mu.Unlock()

	metrics.MediaWorkersAlive.Dec()
	metrics.MediaWorkerDeathsTotal.Inc()
	metrics.RoutersActive.Sub(float64(len(routerIDs)))
	p.log.Error("media worker died", "workerId", slot.id, "routers", len(routerIDs))

	p.mu.Lock()
	closed := p.closed
	onDown := p.onDown
	p.mu.Unlock()

	if closed {
		return
	}
	if onDown != nil {
		onDown(routerIDs)
	}
	go p.respawn(slot.id)
}

// respawn replaces a dead worker at the same slot index so pool capacity
// does not shrink over time. Retries until the spawn succeeds or the pool
// is closed.
func (p *Pool) respawn(id int) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		slot, err := p.newSlot(id)
		if err == nil {
			p.mu.Lock()
			if p.closed {
				p.mu.Unlock()
				if slot.worker != nil {
					slot.worker.Close()
				}
				return
			}
			p.slots[id] = slot
			p.mu.Unlock()

			metrics.MediaWorkersAlive.Inc()
			metrics.MediaWorkerRespawnsTotal.Inc()
			p.log.Info("media worker respawned", "workerId", id)
			return
		}

		p.log.Error("media worker respawn failed", "workerId", id, "err", err)
		time.Sleep(respawnDelay)
	}
}

func (s *workerSlot) isDead() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dead
}
