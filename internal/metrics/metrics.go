package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas Prometheus del core. Paquete standalone para evitar ciclos de
// import entre storage y los engines.

var (
	StorageOpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storage_op_duration_ms",
		Help:    "Latencia de operaciones de storage en milisegundos",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	}, []string{"backend", "kind", "op"})

	StorageOpErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_op_errors_total",
		Help: "Operaciones de storage fallidas",
	}, []string{"backend", "kind", "op"})

	CodesIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authorization_codes_issued_total",
		Help: "Authorization codes emitidos",
	})

	CodesRedeemed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authorization_codes_redeemed_total",
		Help: "Authorization codes canjeados con éxito",
	})

	TokensIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "token_pairs_issued_total",
		Help: "Pares access+refresh emitidos",
	})

	TokensRevoked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokens_revoked_total",
		Help: "Revocaciones procesadas",
	})

	RefreshRotations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "refresh_rotations_total",
		Help: "Rotaciones de refresh token completadas",
	})
)

// Register registra las métricas del core en el registry dado (default si es nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		StorageOpDuration, StorageOpErrors,
		CodesIssued, CodesRedeemed, TokensIssued, TokensRevoked, RefreshRotations,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
