package media

import (
	"context"
	"time"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"
)

// Provider hands out routers placed on media workers and wires producers
// across routers when a subscriber lives on a different worker than the
// producer. The signalling and room layers only ever talk to these
// interfaces; the mediasoup-backed implementation lives in this package and
// tests run against a fake.
type Provider interface {
	// CreateRouter places a router on the least loaded alive worker.
	CreateRouter(ctx context.Context) (Router, error)

	// EnsurePipe makes producerID consumable on target when it originates on
	// origin. Safe to call repeatedly; the underlying pipe is reused.
	EnsurePipe(ctx context.Context, origin, target Router, producerID string) error

	// OnWorkerDown registers a callback invoked with the ids of every router
	// that was hosted on a worker that died.
	OnWorkerDown(func(routerIDs []string))

	Close()
}

type Router interface {
	ID() string
	WorkerID() int
	RtpCapabilities() *mediasoup.RtpCapabilities
	CanConsume(producerID string, caps *mediasoup.RtpCapabilities) bool
	CreateTransport(ctx context.Context, opts TransportOptions) (Transport, error)

	// StartAudioLevelObserver begins periodic loudness reports for producers
	// registered with ObserveAudioProducer. onSilence fires when nobody is
	// speaking above the threshold.
	StartAudioLevelObserver(interval time.Duration, onVolumes func([]VolumeEntry), onSilence func()) error
	ObserveAudioProducer(producerID string) error

	Close()
}

type TransportOptions struct {
	ForceTcp           bool
	EnableSctp         bool
	MaxIncomingBitrate uint32
}

type Transport interface {
	ID() string
	IceParameters() *mediasoup.IceParameters
	IceCandidates() []mediasoup.IceCandidate
	DtlsParameters() *mediasoup.DtlsParameters
	SctpParameters() *mediasoup.SctpParameters

	Connect(ctx context.Context, dtls *mediasoup.DtlsParameters) error
	RestartIce(ctx context.Context) (*mediasoup.IceParameters, error)
	Produce(ctx context.Context, opts ProduceOptions) (Producer, error)
	Consume(ctx context.Context, opts ConsumeOptions) (Consumer, error)

	OnIceStateChange(func(state string))
	OnDtlsStateChange(func(state string))
	Close()
}

type ProduceOptions struct {
	Kind          string
	RtpParameters *mediasoup.RtpParameters
	Paused        bool
	AppData       map[string]any
}

type ConsumeOptions struct {
	ProducerID      string
	RtpCapabilities *mediasoup.RtpCapabilities
	Paused          bool
}

type Producer interface {
	ID() string
	Kind() string
	Paused() bool
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Close()
	OnClose(func())
}

type Consumer interface {
	ID() string
	ProducerID() string
	Kind() string
	Type() string
	RtpParameters() *mediasoup.RtpParameters
	ProducerPaused() bool
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Close()
	OnClose(func())
	OnProducerClose(func())
}

// VolumeEntry is one audio level report: Volume is in dBvo, -127 (silence)
// to 0 (loudest).
type VolumeEntry struct {
	ProducerID string
	Volume     int
}
