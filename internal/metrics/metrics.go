// Package metrics records login, token and HTTP metrics with Prometheus.
//
// Services depend on the Recorder interface. New returns the Prometheus
// implementation; NewNoop returns one that does nothing, used when
// METRICS_ENABLED=false and in tests that don't care.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Recorder is what the rest of the application records through.
type Recorder interface {
	// RecordLogin counts an OAuth or admin login. failure is the error
	// kind, or "" on success.
	RecordLogin(source, failure string)
	// RecordResolve counts identity resolutions by outcome: matched, linked
	// or created.
	RecordResolve(provider, outcome string)
	RecordTokenIssued(kind string)
	RecordRefresh(success bool)
	// RecordAuthentication counts bearer checks: "ok", "anonymous" or an
	// error kind.
	RecordAuthentication(result string)
	RecordProviderCall(provider, op string, d time.Duration, err error)
	RecordHTTPRequest(method, route string, status int, d time.Duration)
	// SetChatParticipants reports the number of open chat connections.
	SetChatParticipants(n int)
	RecordChatMessage()
	// Handler serves the scrape endpoint.
	Handler() http.Handler
}

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus collectors for the application.
type Metrics struct {
	LoginsTotal          *prometheus.CounterVec
	ResolvesTotal        *prometheus.CounterVec
	TokensIssuedTotal    *prometheus.CounterVec
	RefreshesTotal       *prometheus.CounterVec
	AuthenticationsTotal *prometheus.CounterVec
	ProviderCallDuration *prometheus.HistogramVec
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	ChatParticipants     prometheus.Gauge
	ChatMessagesTotal    prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors on reg and serves from g.
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LoginsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clans_logins_total",
				Help: "Total number of login attempts",
			},
			[]string{"source", "result"}, // source: github, google, discord, admin
		),
		ResolvesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clans_identity_resolves_total",
				Help: "Identity resolutions by outcome",
			},
			[]string{"provider", "outcome"}, // matched, linked, created
		),
		TokensIssuedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clans_tokens_issued_total",
				Help: "Total number of session tokens issued",
			},
			[]string{"kind"}, // access, refresh
		),
		RefreshesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clans_token_refreshes_total",
				Help: "Total number of refresh attempts",
			},
			[]string{"result"},
		),
		AuthenticationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clans_authentications_total",
				Help: "Bearer token checks by result",
			},
			[]string{"result"},
		),
		ProviderCallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clans_provider_call_duration_seconds",
				Help:    "Latency of calls to OAuth providers",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "op", "result"}, // op: exchange, identity
		),
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ChatParticipants: f.NewGauge(prometheus.GaugeOpts{
			Name: "clans_chat_participants",
			Help: "Open connections to the global chat room",
		}),
		ChatMessagesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "clans_chat_messages_total",
			Help: "Total number of chat messages posted",
		}),
		gatherer: g,
	}
}

func (m *Metrics) RecordLogin(source, failure string) {
	result := resultSuccess
	if failure != "" {
		result = failure
	}
	m.LoginsTotal.WithLabelValues(source, result).Inc()
}

func (m *Metrics) RecordResolve(provider, outcome string) {
	m.ResolvesTotal.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) RecordTokenIssued(kind string) {
	m.TokensIssuedTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordRefresh(success bool) {
	result := resultSuccess
	if !success {
		result = resultFailure
	}
	m.RefreshesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordAuthentication(result string) {
	m.AuthenticationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordProviderCall(provider, op string, d time.Duration, err error) {
	result := resultSuccess
	if err != nil {
		result = resultFailure
	}
	m.ProviderCallDuration.WithLabelValues(provider, op, result).Observe(d.Seconds())
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unknown"
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) SetChatParticipants(n int) {
	m.ChatParticipants.Set(float64(n))
}

func (m *Metrics) RecordChatMessage() {
	m.ChatMessagesTotal.Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
