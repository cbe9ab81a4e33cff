// Package mediatest provides an in-memory media.Provider for tests. It
// mirrors the cascade semantics of the real engine: closing a transport
// closes its producers and consumers, closing a producer fires every derived
// consumer's producer-close hook.
package mediatest

import (
	"context"
	"fmt"
	"sync"
	"time"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"

	"github.com/confmesh/sfu/internal/media"
)

type Provider struct {
	mu      sync.Mutex
	nextID  int
	routers map[string]*Router
	onDown  func([]string)

	// Pipes records established pipes per "origin|target|producer" key.
	// Like the real pool, a pipe is set up once and reused afterwards.
	Pipes map[string]int

	// CanConsumeFunc overrides codec compatibility, defaults to always true.
	CanConsumeFunc func(producerID string, caps *mediasoup.RtpCapabilities) bool
}

func NewProvider() *Provider {
	return &Provider{
		routers: make(map[string]*Router),
		Pipes:   make(map[string]int),
	}
}

func (p *Provider) id(prefix string) string {
	p.nextID++
	return fmt.Sprintf("%s-%d", prefix, p.nextID)
}

func (p *Provider) CreateRouter(ctx context.Context) (media.Router, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := &Router{
		provider:  p,
		routerID:  p.id("router"),
		producers: make(map[string]*Producer),
	}
	p.routers[r.routerID] = r
	return r, nil
}

func (p *Provider) EnsurePipe(ctx context.Context, origin, target media.Router, producerID string) error {
	if origin.ID() == target.ID() {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	key := origin.ID() + "|" + target.ID() + "|" + producerID
	if _, done := p.Pipes[key]; !done {
		p.Pipes[key] = 1
	}
	return nil
}

func (p *Provider) OnWorkerDown(f func(routerIDs []string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDown = f
}

func (p *Provider) Close() {}

// Routers lists every router created so far.
func (p *Provider) Routers() []*Router {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Router, 0, len(p.routers))
	for _, r := range p.routers {
		out = append(out, r)
	}
	return out
}

// KillWorkerHosting simulates a worker death taking down the given routers.
func (p *Provider) KillWorkerHosting(routerIDs ...string) {
	p.mu.Lock()
	f := p.onDown
	p.mu.Unlock()
	if f != nil {
		f(routerIDs)
	}
}

type Router struct {
	provider *Provider
	routerID string
	workerID int

	mu        sync.Mutex
	closed    bool
	producers map[string]*Producer

	onVolumes func([]media.VolumeEntry)
	onSilence func()
	observed  []string
}

func (r *Router) ID() string    { return r.routerID }
func (r *Router) WorkerID() int { return r.workerID }

func (r *Router) RtpCapabilities() *mediasoup.RtpCapabilities {
	return &mediasoup.RtpCapabilities{
		Codecs: media.RouterMediaCodecs(),
		HeaderExtensions: []*mediasoup.RtpHeaderExtension{
			{Uri: "urn:ietf:params:rtp-hdrext:sdes:mid"},
			{Uri: "urn:3gpp:video-orientation"},
			{Uri: "urn:ietf:params:rtp-hdrext:toffset"},
		},
	}
}

func (r *Router) CanConsume(producerID string, caps *mediasoup.RtpCapabilities) bool {
	r.provider.mu.Lock()
	fn := r.provider.CanConsumeFunc
	r.provider.mu.Unlock()
	if fn != nil {
		return fn(producerID, caps)
	}
	return true
}

func (r *Router) CreateTransport(ctx context.Context, opts media.TransportOptions) (media.Transport, error) {
	return &Transport{
		router:      r,
		transportID: r.provider.id("transport"),
		producers:   make(map[string]*Producer),
		consumers:   make(map[string]*Consumer),
	}, nil
}

func (r *Router) StartAudioLevelObserver(interval time.Duration, onVolumes func([]media.VolumeEntry), onSilence func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onVolumes = onVolumes
	r.onSilence = onSilence
	return nil
}

func (r *Router) ObserveAudioProducer(producerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observed = append(r.observed, producerID)
	return nil
}

// EmitVolumes pushes a synthetic audio level report to the room.
func (r *Router) EmitVolumes(entries []media.VolumeEntry) {
	r.mu.Lock()
	f := r.onVolumes
	r.mu.Unlock()
	if f != nil {
		f(entries)
	}
}

func (r *Router) EmitSilence() {
	r.mu.Lock()
	f := r.onSilence
	r.mu.Unlock()
	if f != nil {
		f()
	}
}

func (r *Router) ObservedProducers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.observed...)
}

func (r *Router) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *Router) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type Transport struct {
	router      *Router
	transportID string

	mu        sync.Mutex
	closed    bool
	connected bool
	dtls      *mediasoup.DtlsParameters
	producers map[string]*Producer
	consumers map[string]*Consumer

	iceRestarts int
	onIceState  func(string)
	onDtlsState func(string)
}

func (t *Transport) ID() string { return t.transportID }

func (t *Transport) IceParameters() *mediasoup.IceParameters {
	return &mediasoup.IceParameters{
		UsernameFragment: fmt.Sprintf("ufrag-%s-%d", t.transportID, t.iceRestarts),
		Password:         "pwd",
	}
}

func (t *Transport) IceCandidates() []mediasoup.IceCandidate {
	return []mediasoup.IceCandidate{{Foundation: "udpcandidate", Port: 40000}}
}

func (t *Transport) DtlsParameters() *mediasoup.DtlsParameters {
	return &mediasoup.DtlsParameters{}
}

func (t *Transport) SctpParameters() *mediasoup.SctpParameters {
	return nil
}

func (t *Transport) Connect(ctx context.Context, dtls *mediasoup.DtlsParameters) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("transport %s closed", t.transportID)
	}
	// The real worker rejects a second connect on the same transport.
	if t.connected {
		return fmt.Errorf("transport %s already connected", t.transportID)
	}
	t.connected = true
	t.dtls = dtls
	return nil
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) RestartIce(ctx context.Context) (*mediasoup.IceParameters, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("transport %s closed", t.transportID)
	}
	t.iceRestarts++
	return &mediasoup.IceParameters{
		UsernameFragment: fmt.Sprintf("ufrag-%s-%d", t.transportID, t.iceRestarts),
		Password:         "pwd",
	}, nil
}

func (t *Transport) Produce(ctx context.Context, opts media.ProduceOptions) (media.Producer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("transport %s closed", t.transportID)
	}
	p := &Producer{
		producerID: t.router.provider.id("producer"),
		kind:       opts.Kind,
		paused:     opts.Paused,
	}
	t.producers[p.producerID] = p
	t.router.mu.Lock()
	t.router.producers[p.producerID] = p
	t.router.mu.Unlock()
	return p, nil
}

func (t *Transport) Consume(ctx context.Context, opts media.ConsumeOptions) (media.Consumer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("transport %s closed", t.transportID)
	}

	t.router.mu.Lock()
	producer := t.router.producers[opts.ProducerID]
	t.router.mu.Unlock()

	c := &Consumer{
		consumerID: t.router.provider.id("consumer"),
		producerID: opts.ProducerID,
		paused:     opts.Paused,
	}
	if producer != nil {
		c.kind = producer.kind
		producer.mu.Lock()
		producer.consumers = append(producer.consumers, c)
		producer.mu.Unlock()
	}
	t.consumers[c.consumerID] = c
	return c, nil
}

func (t *Transport) OnIceStateChange(f func(string))  { t.onIceState = f }
func (t *Transport) OnDtlsStateChange(f func(string)) { t.onDtlsState = f }

func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	producers := make([]*Producer, 0, len(t.producers))
	for _, p := range t.producers {
		producers = append(producers, p)
	}
	consumers := make([]*Consumer, 0, len(t.consumers))
	for _, c := range t.consumers {
		consumers = append(consumers, c)
	}
	t.mu.Unlock()

	for _, p := range producers {
		p.Close()
	}
	for _, c := range consumers {
		c.Close()
	}
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type Producer struct {
	producerID string
	kind       string

	mu        sync.Mutex
	paused    bool
	closed    bool
	consumers []*Consumer
	onClose   []func()
}

func (p *Producer) ID() string   { return p.producerID }
func (p *Producer) Kind() string { return p.kind }

func (p *Producer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Producer) Pause(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	return nil
}

func (p *Producer) Resume(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	return nil
}

func (p *Producer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	onClose := p.onClose
	consumers := p.consumers
	p.mu.Unlock()

	for _, f := range onClose {
		f()
	}
	for _, c := range consumers {
		c.producerClosed()
	}
}

func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Producer) OnClose(f func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClose = append(p.onClose, f)
}

type Consumer struct {
	consumerID string
	producerID string
	kind       string

	mu             sync.Mutex
	paused         bool
	closed         bool
	producerPaused bool
	onClose        []func()
	onProdClose    []func()
}

func (c *Consumer) ID() string         { return c.consumerID }
func (c *Consumer) ProducerID() string { return c.producerID }
func (c *Consumer) Kind() string       { return c.kind }
func (c *Consumer) Type() string       { return "simple" }

func (c *Consumer) RtpParameters() *mediasoup.RtpParameters {
	return &mediasoup.RtpParameters{}
}

func (c *Consumer) ProducerPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.producerPaused
}

func (c *Consumer) Pause(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
	return nil
}

func (c *Consumer) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	return nil
}

func (c *Consumer) PausedState() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Consumer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	onClose := c.onClose
	c.mu.Unlock()

	for _, f := range onClose {
		f()
	}
}

func (c *Consumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Consumer) OnClose(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = append(c.onClose, f)
}

func (c *Consumer) OnProducerClose(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onProdClose = append(c.onProdClose, f)
}

func (c *Consumer) producerClosed() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	callbacks := c.onProdClose
	c.mu.Unlock()

	for _, f := range callbacks {
		f()
	}
}
