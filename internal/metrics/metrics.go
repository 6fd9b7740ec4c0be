package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Identity-flow Prometheus metrics. Standalone package so handlers and
// services can record without import cycles.

var (
	Logins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_logins_total",
		Help: "Password login attempts by outcome (ok, invalid, error)",
	}, []string{"outcome"})

	Registrations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "identity_registrations_total",
		Help: "Accounts created through the register endpoint",
	})

	OAuthExchanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_oauth_exchanges_total",
		Help: "Authorization-code exchanges by provider and outcome",
	}, []string{"provider", "outcome"})

	TokensIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_tokens_issued_total",
		Help: "Session tokens issued by flow (password, oauth, reset)",
	}, []string{"flow"})
)

// Register registers all metrics on the given registry (default if nil).
// Re-registration is tolerated so tests can call this freely.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{Logins, Registrations, OAuthExchanges, TokensIssued} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
