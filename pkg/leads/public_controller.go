// SPDX-FileCopyrightText: 2025 NSLNV
//
// SPDX-License-Identifier: Apache-2.0

package leads

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/nslnv/leaddesk/pkg/apiresponses"
	"github.com/nslnv/leaddesk/pkg/audit"
	"github.com/nslnv/leaddesk/pkg/metrics"
	"github.com/nslnv/leaddesk/pkg/ratelimit"
	"github.com/nslnv/leaddesk/pkg/system"
)

// Error codes specific to lead handling
const (
	CodeSpamDetected  = "SPAM_DETECTED"
	CodeInvalidID     = "INVALID_ID"
	CodeInvalidIDs    = "INVALID_IDS"
	CodeInvalidAction = "INVALID_ACTION"
	CodeLeadNotFound  = "LEAD_NOT_FOUND"
)

var tracer = otel.Tracer("github.com/nslnv/leaddesk/pkg/leads")

// Notifier is told about every accepted lead. Implementations must not block.
type Notifier interface {
	NotifyNewLead(ctx context.Context, lead Lead)
}

type nopNotifier struct{}

func (nopNotifier) NotifyNewLead(context.Context, Lead) {}

// PublicController serves lead submissions from the public site
type PublicController struct {
	store    *Store
	limiter  ratelimit.Limiter
	log      *zap.SugaredLogger
	audit    audit.Emitter
	notifier Notifier
}

// NewPublicController creates the controller. limiter throttles submissions per client IP.
func NewPublicController(log *zap.SugaredLogger, store *Store, limiter ratelimit.Limiter) *PublicController {
	return &PublicController{
		store:    store,
		limiter:  limiter,
		log:      log,
		audit:    audit.Nop{},
		notifier: nopNotifier{},
	}
}

// WithAuditService sets where lead events are reported
func (pc *PublicController) WithAuditService(e audit.Emitter) *PublicController {
	if e != nil {
		pc.audit = e
	}
	return pc
}

// WithNotifier sets who is told about new leads
func (pc *PublicController) WithNotifier(n Notifier) *PublicController {
	if n != nil {
		pc.notifier = n
	}
	return pc
}

func (*PublicController) BasePath() string {
	return "leads"
}

func (*PublicController) Handlers() []gin.HandlerFunc {
	return nil
}

func (pc *PublicController) Register(rg *gin.RouterGroup) error {
	limit := ratelimit.Middleware(pc.limiter, ratelimit.MiddlewareOptions{
		Policy: "leads",
		Log:    pc.log,
		OnDeny: func(c *gin.Context, key string, _ ratelimit.Result) {
			metrics.LeadsRejected.WithLabelValues("rate_limited").Inc()
			pc.audit.Emit(c.Request.Context(), audit.NewEvent(audit.EventLeadRejected,
				"Lead creation rate limit exceeded", map[string]interface{}{
					"reason":    "rate_limited",
					"ip":        system.MaskIP(key),
					"userAgent": c.Request.UserAgent(),
				}))
		},
	})
	rg.POST("", limit, metrics.Instrumented("create_lead", pc.handleCreate))
	for _, m := range []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		rg.Handle(m, "", apiresponses.RespondMethodNotAllowed)
	}
	return nil
}

func (pc *PublicController) handleCreate(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "leads.Create")
	defer span.End()

	reqLog := system.GetReqLogger(c, pc.log)
	ip := system.MaskIP(c.ClientIP())
	userAgent := c.Request.UserAgent()

	var sub Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		span.SetStatus(codes.Error, "invalid body")
		apiresponses.RespondBindError(c, err, "Invalid JSON body")
		return
	}

	if sub.IsSpam() {
		metrics.LeadsRejected.WithLabelValues("spam").Inc()
		span.SetAttributes(attribute.String("lead.rejected", "spam"))
		reqLog.Warnw("Honeypot triggered", "ip", ip)
		pc.audit.Emit(ctx, audit.NewEvent(audit.EventLeadRejected, "Honeypot triggered - potential spam",
			map[string]interface{}{"reason": "spam", "ip": ip, "userAgent": userAgent}))
		apiresponses.RespondError(c, http.StatusBadRequest, CodeSpamDetected, "Spam detection triggered")
		return
	}

	sub.Normalize()
	if err := sub.Validate(); err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			apiresponses.RespondInternalError(c, "validate lead", err, reqLog)
			return
		}
		metrics.LeadsRejected.WithLabelValues("validation").Inc()
		span.SetAttributes(attribute.String("lead.rejected", "validation"))
		pc.audit.Emit(ctx, audit.NewEvent(audit.EventLeadRejected, "Lead creation validation failed",
			map[string]interface{}{"reason": "validation", "errors": verr.Fields, "ip": ip, "userAgent": userAgent}))
		apiresponses.RespondValidationError(c, verr.Fields)
		return
	}

	lead, err := pc.store.Create(ctx, sub.Lead())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		apiresponses.RespondInternalError(c, "create lead", err, reqLog)
		return
	}
	span.SetAttributes(attribute.Int64("lead.id", lead.ID), attribute.String("lead.source", deref(lead.Source)))

	metrics.LeadsCreated.WithLabelValues(deref(lead.Source)).Inc()
	// the request context is cancelled once the response is written
	pc.notifier.NotifyNewLead(context.WithoutCancel(ctx), lead)
	pc.audit.Emit(ctx, audit.NewEvent(audit.EventLeadCreated, "New lead created successfully", map[string]interface{}{
		"leadId":    lead.ID,
		"email":     lead.Email,
		"workType":  lead.WorkType,
		"source":    deref(lead.Source),
		"ip":        ip,
		"userAgent": userAgent,
	}))
	reqLog.Infow("Lead created", "leadId", lead.ID, "source", deref(lead.Source))

	apiresponses.RespondCreated(c, gin.H{
		"ok":      true,
		"id":      lead.ID,
		"message": "Lead created successfully",
	})
}
