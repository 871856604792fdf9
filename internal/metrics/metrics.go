package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	loginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "speechadmin",
			Subsystem: "auth",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome (success, failure, rate_limited).",
		}, []string{"result"},
	)
	controlCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "speechadmin",
			Subsystem: "bot",
			Name:      "control_commands_total",
			Help:      "Bot control commands issued (connect, reconnect, stop).",
		}, []string{"action"},
	)
	statusPolls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "speechadmin",
			Subsystem: "bot",
			Name:      "status_polls_total",
			Help:      "Bot status resolutions served.",
		},
	)
	supervisorFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "speechadmin",
			Subsystem: "bot",
			Name:      "supervisor_failures_total",
			Help:      "Process supervisor actions that failed or were unavailable.",
		},
	)
)

// Register registers all collectors with the given registerer.
// Safe to call once; repeated calls return an error from the registry.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		loginAttempts, controlCommands, statusPolls, supervisorFailures,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// RegisterDefault registers collectors with the default registry.
func RegisterDefault() error { return Register(prometheus.DefaultRegisterer) }

// Serve exposes /metrics on addr. Blocks until the server exits.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}
	return server.ListenAndServe()
}

func IncLoginAttempt(result string) {
	if regOK.Load() {
		loginAttempts.WithLabelValues(result).Inc()
	}
}

func IncControlCommand(action string) {
	if regOK.Load() {
		controlCommands.WithLabelValues(action).Inc()
	}
}

func IncStatusPoll() {
	if regOK.Load() {
		statusPolls.Inc()
	}
}

func IncSupervisorFailure() {
	if regOK.Load() {
		supervisorFailures.Inc()
	}
}
