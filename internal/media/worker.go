package media

import (
	"context"
	"time"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"
)

// IPCTimeout bounds every request into a media worker. A worker that does
// not answer within this window is treated as unhealthy.
const IPCTimeout = 15 * time.Second

func ipcContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, IPCTimeout)
}

// spawnWorker is the only place a worker process is created, so the whole
// worker surface of the mediasoup bindings stays in this file.
func (p *Pool) spawnWorker(id int) (*workerSlot, error) {
	worker, err := mediasoup.NewWorker(p.cfg.WorkerBin, func(settings *mediasoup.WorkerSettings) {
		settings.LogLevel = workerLogLevel(p.cfg.LogLevel)
		settings.Logger = p.log.With("workerId", id)
	})
	if err != nil {
		return nil, err
	}

	slot := &workerSlot{
		id:      id,
		worker:  worker,
		routers: make(map[string]*poolRouter),
	}

	if p.cfg.SingleListener {
		// One shared listener per worker: worker i owns port RtcMinPort+i
		// for every transport it hosts.
		port := p.cfg.RtcMinPort + uint16(id)
		server, err := worker.CreateWebRtcServer(&mediasoup.WebRtcServerOptions{
			ListenInfos: []*mediasoup.TransportListenInfo{
				{
					Protocol:         mediasoup.TransportProtocolUDP,
					Ip:               p.cfg.ListenIP,
					AnnouncedAddress: p.cfg.AnnouncedIP,
					Port:             port,
				},
				{
					Protocol:         mediasoup.TransportProtocolTCP,
					Ip:               p.cfg.ListenIP,
					AnnouncedAddress: p.cfg.AnnouncedIP,
					Port:             port,
				},
			},
		})
		if err != nil {
			worker.Close()
			return nil, err
		}
		slot.server = server
	}

	worker.OnClose(func(ctx context.Context) {
		p.handleWorkerDown(slot)
	})

	p.log.Debug("media worker spawned", "workerId", id)
	return slot, nil
}

func workerLogLevel(level string) mediasoup.WorkerLogLevel {
	switch level {
	case "debug":
		return mediasoup.WorkerLogLevelDebug
	case "warn":
		return mediasoup.WorkerLogLevelWarn
	case "error":
		return mediasoup.WorkerLogLevelError
	case "none":
		return mediasoup.WorkerLogLevelNone
	default:
		return mediasoup.WorkerLogLevelWarn
	}
}
