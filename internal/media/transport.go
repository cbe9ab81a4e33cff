package media

import (
	"context"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"

	"github.com/confmesh/sfu/internal/metrics"
)

type poolTransport struct {
	router *poolRouter
	raw    *mediasoup.Transport
}

func (t *poolTransport) ID() string {
	return t.raw.Id()
}

func (t *poolTransport) IceParameters() *mediasoup.IceParameters {
	params := t.raw.Data().WebRtcTransportData.IceParameters
	return &params
}

func (t *poolTransport) IceCandidates() []mediasoup.IceCandidate {
	return t.raw.Data().WebRtcTransportData.IceCandidates
}

func (t *poolTransport) DtlsParameters() *mediasoup.DtlsParameters {
	params := t.raw.Data().WebRtcTransportData.DtlsParameters
	return &params
}

func (t *poolTransport) SctpParameters() *mediasoup.SctpParameters {
	return t.raw.Data().WebRtcTransportData.SctpParameters
}

func (t *poolTransport) Connect(ctx context.Context, dtls *mediasoup.DtlsParameters) error {
	ctx, cancel := ipcContext(ctx)
	defer cancel()
	return t.raw.ConnectContext(ctx, &mediasoup.TransportConnectOptions{
		DtlsParameters: dtls,
	})
}

func (t *poolTransport) RestartIce(ctx context.Context) (*mediasoup.IceParameters, error) {
	ctx, cancel := ipcContext(ctx)
	defer cancel()
	return t.raw.RestartIceContext(ctx)
}

func (t *poolTransport) Produce(ctx context.Context, opts ProduceOptions) (Producer, error) {
	ctx, cancel := ipcContext(ctx)
	defer cancel()

	raw, err := t.raw.ProduceContext(ctx, &mediasoup.ProducerOptions{
		Kind:          mediasoup.MediaKind(opts.Kind),
		RtpParameters: opts.RtpParameters,
		Paused:        opts.Paused,
		AppData:       mediasoup.H(opts.AppData),
	})
	if err != nil {
		return nil, err
	}

	metrics.ProducersActive.WithLabelValues(opts.Kind).Inc()
	metrics.ProducersCreatedTotal.WithLabelValues(opts.Kind).Inc()
	raw.OnClose(func(ctx context.Context) {
		metrics.ProducersActive.WithLabelValues(opts.Kind).Dec()
	})

	return &poolProducer{raw: raw}, nil
}

func (t *poolTransport) Consume(ctx context.Context, opts ConsumeOptions) (Consumer, error) {
	ctx, cancel := ipcContext(ctx)
	defer cancel()

	raw, err := t.raw.ConsumeContext(ctx, &mediasoup.ConsumerOptions{
		ProducerId:      opts.ProducerID,
		RtpCapabilities: opts.RtpCapabilities,
		Paused:          opts.Paused,
		EnableRtx:       ref(true),
		IgnoreDtx:       true,
	})
	if err != nil {
		return nil, err
	}

	kind := string(raw.Kind())
	t.router.slot.consumers.Add(1)
	metrics.ConsumersActive.WithLabelValues(kind).Inc()
	metrics.ConsumersCreatedTotal.WithLabelValues(kind).Inc()
	raw.OnClose(func(ctx context.Context) {
		t.router.slot.consumers.Add(-1)
		metrics.ConsumersActive.WithLabelValues(kind).Dec()
	})

	return &poolConsumer{raw: raw}, nil
}

func (t *poolTransport) OnIceStateChange(f func(state string)) {
	t.raw.OnIceStateChange(func(state mediasoup.IceState) {
		f(string(state))
	})
}

func (t *poolTransport) OnDtlsStateChange(f func(state string)) {
	t.raw.OnDtlsStateChange(func(state mediasoup.DtlsState) {
		f(string(state))
	})
}

func (t *poolTransport) Close() {
	_ = t.raw.Close()
	metrics.TransportsActive.Dec()
}

type poolProducer struct {
	raw *mediasoup.Producer
}

func (p *poolProducer) ID() string   { return p.raw.Id() }
func (p *poolProducer) Kind() string { return string(p.raw.Kind()) }
func (p *poolProducer) Paused() bool { return p.raw.Paused() }

func (p *poolProducer) Pause(ctx context.Context) error {
	ctx, cancel := ipcContext(ctx)
	defer cancel()
	return p.raw.PauseContext(ctx)
}

func (p *poolProducer) Resume(ctx context.Context) error {
	ctx, cancel := ipcContext(ctx)
	defer cancel()
	return p.raw.ResumeContext(ctx)
}

func (p *poolProducer) Close() {
	_ = p.raw.Close()
}

func (p *poolProducer) OnClose(f func()) {
	p.raw.OnClose(func(ctx context.Context) { f() })
}

type poolConsumer struct {
	raw *mediasoup.Consumer
}

func (c *poolConsumer) ID() string         { return c.raw.Id() }
func (c *poolConsumer) ProducerID() string { return c.raw.ProducerId() }
func (c *poolConsumer) Kind() string       { return string(c.raw.Kind()) }
func (c *poolConsumer) Type() string       { return string(c.raw.Type()) }

func (c *poolConsumer) RtpParameters() *mediasoup.RtpParameters {
	return c.raw.RtpParameters()
}

func (c *poolConsumer) ProducerPaused() bool {
	return c.raw.ProducerPaused()
}

func (c *poolConsumer) Pause(ctx context.Context) error {
	ctx, cancel := ipcContext(ctx)
	defer cancel()
	return c.raw.PauseContext(ctx)
}

func (c *poolConsumer) Resume(ctx context.Context) error {
	ctx, cancel := ipcContext(ctx)
	defer cancel()
	return c.raw.ResumeContext(ctx)
}

func (c *poolConsumer) Close() {
	_ = c.raw.Close()
}

func (c *poolConsumer) OnClose(f func()) {
	c.raw.OnClose(func(ctx context.Context) { f() })
}

func (c *poolConsumer) OnProducerClose(f func()) {
	c.raw.OnProducerClose(func(ctx context.Context) { f() })
}
