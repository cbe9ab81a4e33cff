package media

import (
	"log/slog"
	"testing"
	"time"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"
)

func TestTransportListenInfosCarryPortRange(t *testing.T) {
	cfg := Config{
		ListenIP:    "0.0.0.0",
		AnnouncedIP: "203.0.113.7",
		RtcMinPort:  40000,
		RtcMaxPort:  40999,
	}

	infos := transportListenInfos(cfg)
	if len(infos) != 2 {
		t.Fatalf("got %d listen infos, want 2", len(infos))
	}

	wantProto := []mediasoup.TransportProtocol{
		mediasoup.TransportProtocolUDP,
		mediasoup.TransportProtocolTCP,
	}
	for i, info := range infos {
		if info.Protocol != wantProto[i] {
			t.Errorf("info %d: protocol %q, want %q", i, info.Protocol, wantProto[i])
		}
		if info.Ip != cfg.ListenIP {
			t.Errorf("info %d: ip %q, want %q", i, info.Ip, cfg.ListenIP)
		}
		if info.AnnouncedAddress != cfg.AnnouncedIP {
			t.Errorf("info %d: announced %q, want %q", i, info.AnnouncedAddress, cfg.AnnouncedIP)
		}
		if info.PortRange.Min != cfg.RtcMinPort || info.PortRange.Max != cfg.RtcMaxPort {
			t.Errorf("info %d: port range %d..%d, want %d..%d",
				i, info.PortRange.Min, info.PortRange.Max, cfg.RtcMinPort, cfg.RtcMaxPort)
		}
	}
}

func TestWorkerLogLevelMapping(t *testing.T) {
	cases := map[string]mediasoup.WorkerLogLevel{
		"debug": mediasoup.WorkerLogLevelDebug,
		"warn":  mediasoup.WorkerLogLevelWarn,
		"error": mediasoup.WorkerLogLevelError,
		"none":  mediasoup.WorkerLogLevelNone,
		"bogus": mediasoup.WorkerLogLevelWarn,
		"":      mediasoup.WorkerLogLevelWarn,
	}
	for in, want := range cases {
		if got := workerLogLevel(in); got != want {
			t.Errorf("workerLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestPoolRespawnsDeadWorker(t *testing.T) {
	respawned := make(chan *workerSlot, 1)

	p := &Pool{
		log:   slog.Default(),
		pipes: make(map[string]struct{}),
	}
	p.newSlot = func(id int) (*workerSlot, error) {
		slot := &workerSlot{id: id, routers: make(map[string]*poolRouter)}
		respawned <- slot
		return slot, nil
	}

	dying := &workerSlot{id: 0, routers: make(map[string]*poolRouter)}
	p.slots = []*workerSlot{dying}

	p.handleWorkerDown(dying)

	var fresh *workerSlot
	select {
	case fresh = <-respawned:
	case <-time.After(time.Second):
		t.Fatal("no replacement worker was spawned")
	}

	deadline := time.Now().Add(time.Second)
	for {
		p.mu.Lock()
		current := p.slots[0]
		p.mu.Unlock()
		if current == fresh {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("dead slot was never replaced in the pool")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if alive, total := p.AliveWorkers(); alive != 1 || total != 1 {
		t.Fatalf("alive=%d total=%d after respawn, want 1/1", alive, total)
	}
}

func TestPoolDoesNotRespawnAfterClose(t *testing.T) {
	spawnCalls := make(chan int, 4)

	p := &Pool{
		log:   slog.Default(),
		pipes: make(map[string]struct{}),
	}
	p.newSlot = func(id int) (*workerSlot, error) {
		spawnCalls <- id
		return &workerSlot{id: id, routers: make(map[string]*poolRouter)}, nil
	}

	dying := &workerSlot{id: 0, routers: make(map[string]*poolRouter)}
	p.slots = []*workerSlot{dying}
	p.closed = true

	p.handleWorkerDown(dying)

	select {
	case id := <-spawnCalls:
		t.Fatalf("worker %d respawned after pool close", id)
	case <-time.After(50 * time.Millisecond):
	}
}
