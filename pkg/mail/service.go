// SPDX-FileCopyrightText: 2025 NSLNV
// SPDX-License-Identifier: Apache-2.0

package mail

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nslnv/leaddesk/pkg/audit"
	"github.com/nslnv/leaddesk/pkg/config"
	"github.com/nslnv/leaddesk/pkg/leads"
)

// Service owns the mail queue and turns new leads into notification mails.
// Without an SMTP host or recipients it is disabled and drops every
// notification.
type Service struct {
	queue      *Queue
	recipients []string
	adminURL   string
	branding   string
	logger     *zap.SugaredLogger
	audit      audit.Emitter
}

var _ leads.Notifier = (*Service)(nil)

// NewService builds the sender and queue from cfg. Call Start before use.
func NewService(cfg config.Mail, logger *zap.SugaredLogger) *Service {
	s := &Service{
		recipients: cfg.Recipients,
		adminURL:   cfg.AdminURL,
		branding:   cfg.SenderName,
		logger:     logger.Named("mail"),
		audit:      audit.Nop{},
	}
	if !cfg.Enabled() {
		s.logger.Info("SMTP host or recipients not configured - lead notifications disabled")
		return s
	}
	s.queue = NewQueue(NewSender(cfg, s.logger), s.logger, cfg.QueueSize).OnFailure(s.reportFailure)
	return s
}

// newServiceWithSender is used by tests to bypass SMTP
func newServiceWithSender(sender Sender, recipients []string, logger *zap.SugaredLogger) *Service {
	s := &Service{
		recipients: recipients,
		logger:     logger,
		audit:      audit.Nop{},
	}
	s.queue = NewQueue(sender, logger, 10).OnFailure(s.reportFailure)
	return s
}

// WithAuditService sets where delivery failures are reported
func (s *Service) WithAuditService(e audit.Emitter) *Service {
	if e != nil {
		s.audit = e
	}
	return s
}

// Start launches the queue worker. No-op when disabled.
func (s *Service) Start() {
	if s.queue != nil {
		s.queue.Start()
	}
}

// IsEnabled returns whether notifications are sent at all
func (s *Service) IsEnabled() bool {
	return s.queue != nil
}

// NotifyNewLead renders the notification for l and queues it. It never blocks
// on SMTP.
func (s *Service) NotifyNewLead(ctx context.Context, l leads.Lead) {
	if s.queue == nil {
		return
	}
	params := NewLeadParams(l, s.adminURL, s.branding)
	body, err := RenderNewLead(params)
	if err != nil {
		s.logger.Errorw("Failed to render new lead mail", "leadId", l.ID, "error", err)
		return
	}
	msg := Message{
		ID:        fmt.Sprintf("lead-%d", l.ID),
		Receivers: s.recipients,
		Subject:   NewLeadSubject(params),
		Body:      body,
	}
	if err := s.queue.Enqueue(msg); err != nil {
		s.logger.Warnw("New lead mail not queued", "leadId", l.ID, "error", err)
		s.emitFailure(ctx, msg, err)
	}
}

func (s *Service) reportFailure(msg Message, err error) {
	s.emitFailure(context.Background(), msg, err)
}

func (s *Service) emitFailure(ctx context.Context, msg Message, err error) {
	s.audit.Emit(ctx, audit.NewEvent(audit.EventMailFailed, "Notification mail could not be delivered", map[string]interface{}{
		"mailId":     msg.ID,
		"subject":    msg.Subject,
		"recipients": len(msg.Receivers),
		"error":      err.Error(),
	}))
}

// Stop flushes the queue within ctx
func (s *Service) Stop(ctx context.Context) error {
	if s.queue == nil {
		return nil
	}
	s.logger.Info("Stopping mail service")
	return s.queue.Stop(ctx)
}
