// Package metrics exposes the Prometheus counters and gauges surfaced by
// the DTM session transport and key-package container.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	Namespace        = "cex"
	kexSubsystem     = "kex"
	sessionSubsystem = "session"
	packageSubsystem = "keypackage"
)

// Registry groups every metric this module registers, mirroring the single
// process-wide registry pattern the rest of this dependency stack uses.
type Registry struct {
	PacketsSent     *prometheus.CounterVec
	PacketsReceived *prometheus.CounterVec
	BytesEncrypted  prometheus.Counter
	BytesDecrypted  prometheus.Counter
	Rekeys          prometheus.Counter
	ExchangeFailed  *prometheus.CounterVec
	SubkeyReads     *prometheus.CounterVec
}

// NewRegistry constructs and registers every metric against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	m := &Registry{
		PacketsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: kexSubsystem,
			Name:      "packets_sent_total",
			Help:      "Number of DTM packets sent, by packet type.",
		}, []string{"packet_type"}),
		PacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: kexSubsystem,
			Name:      "packets_received_total",
			Help:      "Number of DTM packets received, by packet type.",
		}, []string{"packet_type"}),
		BytesEncrypted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: sessionSubsystem,
			Name:      "bytes_encrypted_total",
			Help:      "Bytes encrypted by the session forward cipher.",
		}),
		BytesDecrypted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: sessionSubsystem,
			Name:      "bytes_decrypted_total",
			Help:      "Bytes decrypted by the session return cipher.",
		}),
		Rekeys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: sessionSubsystem,
			Name:      "rekeys_total",
			Help:      "Number of completed Resync rekey operations.",
		}),
		ExchangeFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: kexSubsystem,
			Name:      "exchange_failed_total",
			Help:      "Failed DTM-KEX exchanges, by error kind.",
		}, []string{"reason"}),
		SubkeyReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: packageSubsystem,
			Name:      "subkey_reads_total",
			Help:      "Key-package subkey reads, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		m.PacketsSent, m.PacketsReceived, m.BytesEncrypted, m.BytesDecrypted,
		m.Rekeys, m.ExchangeFailed, m.SubkeyReads,
	)
	return m
}
