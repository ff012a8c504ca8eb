package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Login outcome labels
const (
	LoginBound        = "bound"
	LoginFallback     = "fallback"
	LoginNoAssertion  = "no_assertion"
	LoginRejected     = "rejected"
	LoginFallbackMiss = "fallback_miss"
	LoginError        = "error"
)

// Recorder receives the bridge's counters.
type Recorder interface {
	RecordLogin(outcome string)
	RecordIdentityAPIRequest(result string)
	RecordSysadminChange(granted bool)
	RecordLogout()
}

// PrometheusRecorder records metrics using Prometheus.
type PrometheusRecorder struct {
	loginTotal       *prometheus.CounterVec
	identityAPITotal *prometheus.CounterVec
	sysadminTotal    *prometheus.CounterVec
	logoutTotal      prometheus.Counter
}

// NewPrometheusRecorder creates a recorder registered on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	loginTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cendari_auth_login_total",
		Help: "Login attempts by outcome",
	}, []string{"outcome"})

	identityAPITotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cendari_auth_identity_api_requests_total",
		Help: "Identity API resolution calls by result",
	}, []string{"result"})

	sysadminTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cendari_auth_sysadmin_changes_total",
		Help: "Sysadmin flag writes by direction",
	}, []string{"direction"})

	logoutTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cendari_auth_logout_total",
		Help: "Logouts",
	})

	reg.MustRegister(loginTotal, identityAPITotal, sysadminTotal, logoutTotal)

	return &PrometheusRecorder{
		loginTotal:       loginTotal,
		identityAPITotal: identityAPITotal,
		sysadminTotal:    sysadminTotal,
		logoutTotal:      logoutTotal,
	}
}

// RecordLogin counts one login attempt.
func (p *PrometheusRecorder) RecordLogin(outcome string) {
	p.loginTotal.WithLabelValues(outcome).Inc()
}

// RecordIdentityAPIRequest counts one identity API call; result is "ok"
// or a resolution error kind.
func (p *PrometheusRecorder) RecordIdentityAPIRequest(result string) {
	p.identityAPITotal.WithLabelValues(result).Inc()
}

// RecordSysadminChange counts one sysadmin flag write.
func (p *PrometheusRecorder) RecordSysadminChange(granted bool) {
	direction := "revoked"
	if granted {
		direction = "granted"
	}
	p.sysadminTotal.WithLabelValues(direction).Inc()
}

// RecordLogout counts one logout.
func (p *PrometheusRecorder) RecordLogout() {
	p.logoutTotal.Inc()
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) RecordLogin(string)              {}
func (NoopRecorder) RecordIdentityAPIRequest(string) {}
func (NoopRecorder) RecordSysadminChange(bool)       {}
func (NoopRecorder) RecordLogout()                   {}

var (
	_ Recorder = (*PrometheusRecorder)(nil)
	_ Recorder = NoopRecorder{}
)
