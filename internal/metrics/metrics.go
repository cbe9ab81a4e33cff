package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sfu_active_sessions",
		Help: "Number of active signaling sessions",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sfu_sessions_total",
		Help: "Total number of signaling sessions opened",
	})

	SessionDisconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sfu_session_disconnects_total",
		Help: "Total number of signaling sessions closed",
	})

	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sfu_rooms_active",
		Help: "Number of live rooms",
	})

	RoomsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sfu_rooms_created_total",
		Help: "Total number of rooms created",
	})

	PeersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sfu_peers_active",
		Help: "Number of peers currently admitted to rooms",
	})

	PeersJoinedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sfu_peers_joined_total",
		Help: "Join attempts by admission outcome",
	}, []string{"status"})

	LobbyWaiting = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sfu_lobby_waiting",
		Help: "Number of peers waiting in lobbies",
	})

	MediaWorkersAlive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sfu_media_workers_alive",
		Help: "Number of alive media worker processes",
	})

	MediaWorkerDeathsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sfu_media_worker_deaths_total",
		Help: "Total number of media worker processes that died",
	})

	MediaWorkerRespawnsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sfu_media_worker_respawns_total",
		Help: "Total number of media worker processes respawned after a death",
	})

	RoutersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sfu_routers_active",
		Help: "Number of live routers",
	})

	TransportsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sfu_transports_active",
		Help: "Number of live WebRTC transports",
	})

	TransportsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sfu_transports_created_total",
		Help: "Total number of WebRTC transports created",
	})

	ProducersActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sfu_producers_active",
		Help: "Number of live producers",
	}, []string{"kind"})

	ProducersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sfu_producers_created_total",
		Help: "Total number of producers created",
	}, []string{"kind"})

	ConsumersActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sfu_consumers_active",
		Help: "Number of live consumers",
	}, []string{"kind"})

	ConsumersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sfu_consumers_created_total",
		Help: "Total number of consumers created",
	}, []string{"kind"})

	PipesEstablishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sfu_pipes_established_total",
		Help: "Total number of inter-router producer pipes established",
	})

	IceRestartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sfu_ice_restarts_total",
		Help: "Total number of ICE restarts served",
	})

	SignalingRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sfu_signaling_requests_total",
		Help: "Signaling requests by type and outcome",
	}, []string{"type", "outcome"}) // outcome: "ok" | error kind

	SignalingRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sfu_signaling_request_duration_seconds",
		Help:    "Time spent handling one signaling request",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"type"})

	OutboundEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sfu_outbound_events_total",
		Help: "Outbound events by type",
	}, []string{"type"})

	OutboundEventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sfu_outbound_events_dropped_total",
		Help: "Outbound events dropped because the session queue was full",
	}, []string{"type"})

	ProtocolViolationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sfu_protocol_violations_total",
		Help: "Malformed frames received over signaling sessions",
	})

	RecordingChunksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sfu_recording_chunks_total",
		Help: "Total recording chunks accepted",
	})

	RecordingBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sfu_recording_bytes_total",
		Help: "Total recording bytes written",
	})

	RecordingUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sfu_recording_uploads_total",
		Help: "Recording uploads to object storage by outcome",
	}, []string{"outcome"})
)
