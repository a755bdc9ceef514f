package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API endpoints
	APIEndpointRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaddesk_api_endpoint_requests_total",
		Help: "Total number of requests per API endpoint",
	}, []string{"endpoint"})
	APIEndpointErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaddesk_api_endpoint_errors_total",
		Help: "Responses with status >= 400 per API endpoint and status code",
	}, []string{"endpoint", "status_code"})
	APIEndpointDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "leaddesk_api_endpoint_duration_seconds",
		Help:    "Request latency per API endpoint",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	// Rate limiting
	RateLimitDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaddesk_ratelimit_decisions_total",
		Help: "Rate limiter decisions grouped by policy and decision (allowed/denied)",
	}, []string{"policy", "decision"})
	RateLimitStoreErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaddesk_ratelimit_store_errors_total",
		Help: "Rate limiter store failures; requests are allowed when this happens",
	}, []string{"policy"})

	// Session guard: rule is the matched rule name, outcome is admitted/no_token/invalid_token/public/passthrough
	GuardDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaddesk_session_guard_decisions_total",
		Help: "Session guard outcomes grouped by matched rule and outcome",
	}, []string{"rule", "outcome"})

	// Admin authentication
	AdminLogins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaddesk_admin_logins_total",
		Help: "Admin login attempts grouped by result (success/invalid_credentials/rate_limited/error)",
	}, []string{"result"})
	AdminLogouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "leaddesk_admin_logouts_total",
		Help: "Admin logout requests",
	})

	// Leads
	LeadsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaddesk_leads_created_total",
		Help: "Leads accepted from the public form grouped by source",
	}, []string{"source"})
	LeadsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaddesk_leads_rejected_total",
		Help: "Lead submissions rejected grouped by reason (validation/spam)",
	}, []string{"reason"})
	LeadsUpdated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "leaddesk_leads_updated_total",
		Help: "Leads updated by admins",
	})
	LeadsDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "leaddesk_leads_deleted_total",
		Help: "Leads deleted by admins",
	})
	LeadsExported = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaddesk_leads_exported_total",
		Help: "Lead rows exported grouped by format",
	}, []string{"format"})

	// Audit
	AuditEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaddesk_audit_events_total",
		Help: "Audit events written grouped by sink and result",
	}, []string{"sink", "result"})
	AuditEventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "leaddesk_audit_events_dropped_total",
		Help: "Audit events dropped because the queue was full or closed",
	})

	// Client logs
	ClientLogsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaddesk_client_logs_received_total",
		Help: "Frontend log reports grouped by kind (log/error) and level",
	}, []string{"kind", "level"})

	// Mail metrics
	MailSendSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaddesk_mail_send_success_total",
		Help: "Total number of successful mail sends",
	}, []string{"host"})
	MailSendFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaddesk_mail_send_failure_total",
		Help: "Total number of failed mail sends",
	}, []string{"host"})
	MailQueueDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaddesk_mail_queue_dropped_total",
		Help: "Mails dropped because the queue was full or shutting down",
	}, []string{"host"})
)

func init() {
	prometheus.MustRegister(APIEndpointRequests)
	prometheus.MustRegister(APIEndpointErrors)
	prometheus.MustRegister(APIEndpointDuration)
	prometheus.MustRegister(RateLimitDecisions)
	prometheus.MustRegister(RateLimitStoreErrors)
	prometheus.MustRegister(GuardDecisions)
	prometheus.MustRegister(AdminLogins)
	prometheus.MustRegister(AdminLogouts)
	prometheus.MustRegister(LeadsCreated)
	prometheus.MustRegister(LeadsRejected)
	prometheus.MustRegister(LeadsUpdated)
	prometheus.MustRegister(LeadsDeleted)
	prometheus.MustRegister(LeadsExported)
	prometheus.MustRegister(AuditEvents)
	prometheus.MustRegister(AuditEventsDropped)
	prometheus.MustRegister(ClientLogsReceived)
	prometheus.MustRegister(MailSendSuccess)
	prometheus.MustRegister(MailSendFailure)
	prometheus.MustRegister(MailQueueDropped)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
