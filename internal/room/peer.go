package room

import (
	"time"

	"github.com/confmesh/sfu/internal/api"
	"github.com/confmesh/sfu/internal/media"
)

// Sender is the outbound half of a signalling session. Send enqueues an
// event for delivery and never blocks; Close tears the session down after
// an eviction.
type Sender interface {
	Send(ev api.Envelope)
	Close()
}

// Peer is one admitted room member. All fields besides the identity block
// are guarded by the owning room's lock.
type Peer struct {
	ID     string
	Info   api.PeerInfo
	AuthOK bool

	Presenter bool
	JoinedAt  time.Time

	router     media.Router
	sender     Sender
	transports map[string]media.Transport
	connected  map[string]bool
	producers  map[string]*peerProducer
	consumers  map[string]media.Consumer
}

type peerProducer struct {
	producer  media.Producer
	mediaType api.MediaType
}

func NewPeer(id string, info api.PeerInfo, authOK bool, sender Sender) *Peer {
	return &Peer{
		ID:         id,
		Info:       info,
		AuthOK:     authOK,
		sender:     sender,
		transports: make(map[string]media.Transport),
		connected:  make(map[string]bool),
		producers:  make(map[string]*peerProducer),
		consumers:  make(map[string]media.Consumer),
	}
}

func (p *Peer) view() api.Peer {
	v := api.Peer{
		PeerID:    p.ID,
		PeerInfo:  p.Info,
		Presenter: p.Presenter,
		JoinedAt:  p.JoinedAt,
	}
	for id := range p.producers {
		v.Producers = append(v.Producers, id)
	}
	return v
}

func (p *Peer) send(ev api.Envelope) {
	if p.sender != nil {
		p.sender.Send(ev)
	}
}
