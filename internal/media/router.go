package media

import (
	"context"
	"time"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"

	"github.com/confmesh/sfu/internal/metrics"
)

type poolRouter struct {
	pool *Pool
	slot *workerSlot
	raw  *mediasoup.Router

	observer *mediasoup.RtpObserver
}

func (r *poolRouter) ID() string {
	return r.raw.Id()
}

func (r *poolRouter) WorkerID() int {
	return r.slot.id
}

func (r *poolRouter) RtpCapabilities() *mediasoup.RtpCapabilities {
	return r.raw.RtpCapabilities()
}

func (r *poolRouter) CanConsume(producerID string, caps *mediasoup.RtpCapabilities) bool {
	return r.raw.CanConsume(producerID, caps)
}

func (r *poolRouter) CreateTransport(ctx context.Context, opts TransportOptions) (Transport, error) {
	ctx, cancel := ipcContext(ctx)
	defer cancel()

	msOpts := &mediasoup.WebRtcTransportOptions{
		EnableUdp:  ref(!opts.ForceTcp),
		EnableTcp:  true,
		PreferUdp:  !opts.ForceTcp,
		EnableSctp: opts.EnableSctp,
	}
	if r.slot.server != nil {
		msOpts.WebRtcServer = r.slot.server
	} else {
		msOpts.ListenInfos = transportListenInfos(r.pool.cfg)
	}

	raw, err := r.raw.CreateWebRtcTransportContext(ctx, msOpts)
	if err != nil {
		return nil, err
	}

	if opts.MaxIncomingBitrate > 0 {
		if err := raw.SetMaxIncomingBitrateContext(ctx, opts.MaxIncomingBitrate); err != nil {
			r.pool.log.Warn("failed to set max incoming bitrate",
				"transportId", raw.Id(), "error", err)
		}
	}

	metrics.TransportsActive.Inc()
	metrics.TransportsCreatedTotal.Inc()
	return &poolTransport{router: r, raw: raw}, nil
}

// transportListenInfos builds the per-transport listen addresses used when no
// shared WebRtcServer is configured. Media ports are allocated inside the
// configured RtcMinPort..RtcMaxPort range.
func transportListenInfos(cfg Config) []mediasoup.TransportListenInfo {
	portRange := mediasoup.TransportPortRange{
		Min: cfg.RtcMinPort,
		Max: cfg.RtcMaxPort,
	}
	return []mediasoup.TransportListenInfo{
		{
			Protocol:         mediasoup.TransportProtocolUDP,
			Ip:               cfg.ListenIP,
			AnnouncedAddress: cfg.AnnouncedIP,
			PortRange:        portRange,
		},
		{
			Protocol:         mediasoup.TransportProtocolTCP,
			Ip:               cfg.ListenIP,
			AnnouncedAddress: cfg.AnnouncedIP,
			PortRange:        portRange,
		},
	}
}

func (r *poolRouter) StartAudioLevelObserver(interval time.Duration, onVolumes func([]VolumeEntry), onSilence func()) error {
	if r.observer != nil {
		return nil
	}

	obs, err := r.raw.CreateAudioLevelObserver(&mediasoup.AudioLevelObserverOptions{
		MaxEntries: 16,
		Threshold:  -70,
		Interval:   uint16(interval.Milliseconds()),
	})
	if err != nil {
		return err
	}

	obs.OnVolume(func(volumes []mediasoup.AudioLevelObserverVolume) {
		entries := make([]VolumeEntry, 0, len(volumes))
		for _, v := range volumes {
			entries = append(entries, VolumeEntry{
				ProducerID: v.Producer.Id(),
				Volume:     int(v.Volume),
			})
		}
		onVolumes(entries)
	})
	obs.OnSilence(onSilence)

	r.observer = obs
	return nil
}

func (r *poolRouter) ObserveAudioProducer(producerID string) error {
	if r.observer == nil {
		return nil
	}
	return r.observer.AddProducer(producerID)
}

func (r *poolRouter) Close() {
	r.slot.mu.Lock()
	delete(r.slot.routers, r.raw.Id())
	r.slot.mu.Unlock()

	_ = r.raw.Close()
	metrics.RoutersActive.Dec()
}
