// -----------------------------------------------------------------------
// Mailer Service - SMTP notification for finished scrape runs
// -----------------------------------------------------------------------

package mailer

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobscout/internal/common"
	"github.com/ternarybob/jobscout/internal/interfaces"
	"github.com/ternarybob/jobscout/internal/models"
)

// Service emails a summary when a scrape run reaches a terminal state.
// It is disabled (every call a no-op) unless an SMTP host is
// configured.
type Service struct {
	config common.NotifyConfig
	logger arbor.ILogger

	// send is swapped out in tests.
	send func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

var _ interfaces.RunNotifier = (*Service)(nil)

// NewService creates the notification mailer.
func NewService(config common.NotifyConfig, logger arbor.ILogger) *Service {
	return &Service{
		config: config,
		logger: logger,
		send:   smtp.SendMail,
	}
}

// Enabled reports whether notifications are configured.
func (s *Service) Enabled() bool {
	return s.config.SMTPHost != "" && s.config.To != ""
}

// RunCompleted emails the run summary. Failures are logged, never
// propagated: notification is strictly best effort.
func (s *Service) RunCompleted(run *models.ScrapeRun) {
	if !s.Enabled() {
		return
	}

	subject, body := buildRunMessage(run)
	msg := s.buildEmail(subject, body)

	addr := fmt.Sprintf("%s:%d", s.config.SMTPHost, s.config.SMTPPort)
	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.SMTPHost)
	}

	if err := s.send(addr, auth, s.from(), []string{s.config.To}, msg); err != nil {
		s.logger.Warn().Err(err).Str("run_id", run.RunID).Msg("Failed to send run notification")
		return
	}
	s.logger.Debug().Str("run_id", run.RunID).Msg("Run notification sent")
}

func (s *Service) from() string {
	if s.config.From != "" {
		return s.config.From
	}
	return s.config.Username
}

func (s *Service) buildEmail(subject, body string) []byte {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: Jobscout <%s>\r\n", s.from()))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", s.config.To))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return []byte(msg.String())
}

// buildRunMessage renders the subject and plain-text body for a
// terminal run.
func buildRunMessage(run *models.ScrapeRun) (subject, body string) {
	subject = fmt.Sprintf("Scrape run %s: %d jobs (%s)", run.Status, run.JobsFound, run.Spec.Keywords)

	var b strings.Builder
	fmt.Fprintf(&b, "Run %s finished with status %s.\n\n", run.RunID, run.Status)
	fmt.Fprintf(&b, "Keywords: %s\n", run.Spec.Keywords)
	if run.Spec.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", run.Spec.Location)
	}
	fmt.Fprintf(&b, "Jobs found: %d\n", run.JobsFound)
	if run.SearchMethod != "" {
		fmt.Fprintf(&b, "Search method: %s\n", run.SearchMethod)
	}
	if run.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", run.Error)
	}

	if len(run.Jobs) > 0 {
		b.WriteString("\nTop matches:\n")
		limit := len(run.Jobs)
		if limit > 10 {
			limit = 10
		}
		for _, job := range run.Jobs[:limit] {
			fmt.Fprintf(&b, "  [%3d%%] %s at %s\n         %s\n", job.MatchScore, job.Title, job.Company, job.URL)
		}
	}

	return subject, b.String()
}
