package services

import (
	"crypto/tls"
	"fmt"
	"html"
	"net/smtp"
	"strings"

	"github.com/ensemble/backend/internal/config"
	"github.com/ensemble/backend/internal/models"
	"github.com/ensemble/backend/pkg/logger"
	"gorm.io/gorm"
)

// Notifier delivers team registration lifecycle messages. Calls are
// fire-and-forget; implementations log their own failures.
type Notifier interface {
	TeamRegistered(team *models.Team, requester *models.User, reviewers []models.User)
	TeamReviewed(team *models.Team, requester *models.User)
}

type noopNotifier struct{}

func (noopNotifier) TeamRegistered(*models.Team, *models.User, []models.User) {}
func (noopNotifier) TeamReviewed(*models.Team, *models.User)                  {}

// EmailService sends notifications over SMTP. The email_enabled system
// config switches delivery at runtime.
type EmailService struct {
	cfg     config.EmailConfig
	configs *SystemConfigService
	send    func(to []string, subject, body string) error
}

func NewEmailService(db *gorm.DB, cfg config.EmailConfig) *EmailService {
	s := &EmailService{cfg: cfg, configs: NewSystemConfigService(db)}
	s.send = s.sendEmail
	return s
}

func (s *EmailService) enabled() bool {
	if s.cfg.Host == "" {
		return false
	}
	return s.configs.GetWithDefault("email_enabled", fmt.Sprint(s.cfg.Enabled)) == "true"
}

func (s *EmailService) TeamRegistered(team *models.Team, requester *models.User, reviewers []models.User) {
	if !s.enabled() {
		return
	}
	var to []string
	for _, r := range reviewers {
		if r.Email != "" {
			to = append(to, r.Email)
		}
	}
	if len(to) == 0 {
		return
	}
	subject := fmt.Sprintf("[Ensemble] Team registration pending: %s", team.Name)
	body := buildTeamEmail("New team registration", []emailRow{
		{"Team", team.Name},
		{"Description", team.Description},
		{"Requested by", displayName(requester)},
	}, "Review the request in the Ensemble admin console.")
	if err := s.send(to, subject, body); err != nil {
		logger.Warnf("[Email] Team registration notice for %q failed: %v", team.Name, err)
	}
}

func (s *EmailService) TeamReviewed(team *models.Team, requester *models.User) {
	if !s.enabled() || requester == nil || requester.Email == "" {
		return
	}
	outcome := strings.ToLower(team.Status)
	subject := fmt.Sprintf("[Ensemble] Team %s was %s", team.Name, outcome)
	rows := []emailRow{{"Team", team.Name}, {"Status", team.Status}}
	if team.RejectionReason != "" {
		rows = append(rows, emailRow{"Reason", team.RejectionReason})
	}
	body := buildTeamEmail("Team registration "+outcome, rows, "")
	if err := s.send([]string{requester.Email}, subject, body); err != nil {
		logger.Warnf("[Email] Team review notice for %q failed: %v", team.Name, err)
	}
}

type emailRow struct{ label, value string }

func displayName(u *models.User) string {
	if u == nil {
		return ""
	}
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Username
}

func buildTeamEmail(heading string, rows []emailRow, footer string) string {
	var sb strings.Builder
	sb.WriteString("<html><body style=\"font-family: Arial, sans-serif;\">")
	sb.WriteString(fmt.Sprintf("<h2>%s</h2>", html.EscapeString(heading)))
	sb.WriteString("<table style=\"border-collapse: collapse; margin-bottom: 20px;\">")
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("<tr><td style=\"padding: 8px; border: 1px solid #ddd; font-weight: bold;\">%s</td><td style=\"padding: 8px; border: 1px solid #ddd;\">%s</td></tr>",
			html.EscapeString(r.label), html.EscapeString(r.value)))
	}
	sb.WriteString("</table>")
	if footer != "" {
		sb.WriteString(fmt.Sprintf("<p>%s</p>", html.EscapeString(footer)))
	}
	sb.WriteString("</body></html>")
	return sb.String()
}

func (s *EmailService) sendEmail(to []string, subject, body string) error {
	from := s.cfg.From
	if from == "" {
		from = s.cfg.Username
	}

	headers := [][2]string{
		{"From", from},
		{"To", strings.Join(to, ",")},
		{"Subject", subject},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=UTF-8"},
	}
	var message strings.Builder
	for _, h := range headers {
		message.WriteString(fmt.Sprintf("%s: %s\r\n", h[0], h[1]))
	}
	message.WriteString("\r\n")
	message.WriteString(body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.Username != "" && s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	var err error
	if s.cfg.UseTLS {
		err = s.sendEmailTLS(addr, auth, from, to, message.String())
	} else {
		err = smtp.SendMail(addr, auth, from, to, []byte(message.String()))
	}
	if err != nil {
		return err
	}

	logger.Infof("[Email] Sent notification to %v", to)
	return nil
}

func (s *EmailService) sendEmailTLS(addr string, auth smtp.Auth, from string, to []string, message string) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.cfg.Host})
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return err
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(message)); err != nil {
		return err
	}
	return w.Close()
}
