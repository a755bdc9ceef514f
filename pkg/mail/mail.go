package mail

import (
	"crypto/tls"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/nslnv/leaddesk/pkg/config"
	"github.com/nslnv/leaddesk/pkg/metrics"
)

// maxBackoff caps the delay between two send attempts
const maxBackoff = 30 * time.Second

type Sender interface {
	Send(receivers []string, subject, body string) error
	GetHost() string
}

// SMTPSender delivers HTML mail through a gomail dialer
type SMTPSender struct {
	dialer        *gomail.Dialer
	senderAddress string
	senderName    string
	retryCount    int
	retryBackoff  time.Duration
	log           *zap.SugaredLogger
	sleep         func(time.Duration)
}

var _ Sender = (*SMTPSender)(nil)

func NewSender(cfg config.Mail, log *zap.SugaredLogger) *SMTPSender {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	if cfg.InsecureSkipVerify {
		log.Warnw("TLS verification disabled for SMTP", "host", cfg.Host)
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for internal relays
	}

	senderAddr := cfg.SenderAddress
	if senderAddr == "" {
		senderAddr = cfg.User
	}
	retryCount := cfg.RetryCount
	if retryCount < 0 {
		retryCount = 0
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	log.Infow("Mail sender initialized",
		"host", cfg.Host,
		"port", cfg.Port,
		"retryCount", retryCount,
		"retryBackoff", backoff)

	return &SMTPSender{
		dialer:        d,
		senderAddress: senderAddr,
		senderName:    cfg.SenderName,
		retryCount:    retryCount,
		retryBackoff:  backoff,
		log:           log,
		sleep:         time.Sleep,
	}
}

// Send delivers one message to all receivers. It makes up to retryCount+1
// attempts, doubling the pause after each failure.
func (s *SMTPSender) Send(receivers []string, subject, body string) error {
	if len(receivers) == 0 {
		return fmt.Errorf("no receivers")
	}
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", s.senderAddress, s.senderName)
	msg.SetHeader("To", receivers...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	var lastErr error
	backoff := s.retryBackoff
	for attempt := 0; attempt <= s.retryCount; attempt++ {
		err := s.dialer.DialAndSend(msg)
		if err == nil {
			s.log.Debugw("Mail sent", "receivers", len(receivers), "attempt", attempt+1)
			metrics.MailSendSuccess.WithLabelValues(s.GetHost()).Inc()
			return nil
		}
		lastErr = err
		if attempt < s.retryCount {
			s.log.Warnw("Mail send attempt failed, retrying", "attempt", attempt+1, "retryIn", backoff, "error", err)
			s.sleep(backoff)
			backoff = min(backoff*2, maxBackoff)
		}
	}

	metrics.MailSendFailure.WithLabelValues(s.GetHost()).Inc()
	return fmt.Errorf("sending mail after %d attempts: %w", s.retryCount+1, lastErr)
}

func (s *SMTPSender) GetHost() string {
	return s.dialer.Host
}
