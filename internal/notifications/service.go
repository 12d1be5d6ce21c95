package notifications

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/azure/follower-milestone-bot/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// mailSender is the part of gomail.Dialer used to deliver email
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Service routes a message to the channel matching its destination:
// an email address, a Teams incoming webhook URL, or a Telegram chat id
// (numeric or @channel)
type Service struct {
	config   *config.Config
	client   *resty.Client
	telegram *TelegramChannel
	mailer   mailSender
}

// Ensure Service implements Channel
var _ Channel = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type    string `json:"@type"`
	Context string `json:"@context"`
	Title   string `json:"title"`
	Text    string `json:"text"`
}

var htmlTag = regexp.MustCompile(`<[^>]+>`)

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	s := &Service{
		config:   cfg,
		client:   resty.New().SetTimeout(30 * time.Second),
		telegram: NewTelegramChannel(cfg.TelegramBotToken),
	}

	if cfg.SMTPHost != "" {
		s.mailer = gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	}

	if s.telegram.MockMode() {
		logrus.Info("TELEGRAM_BOT_TOKEN not set, Telegram notifications run in mock mode")
	}

	return s
}

// Send delivers message to destination and reports whether it was accepted
func (s *Service) Send(ctx context.Context, destination, message string) bool {
	destination = strings.TrimSpace(destination)

	switch {
	case destination == "":
		logrus.Warn("Notification skipped: empty destination")
		return false
	case strings.HasPrefix(destination, "https://"):
		return s.sendToTeams(ctx, destination, message)
	case strings.Contains(destination, "@") && !strings.HasPrefix(destination, "@"):
		return s.sendEmail(destination, message)
	default:
		return s.telegram.Send(ctx, destination, message)
	}
}

func (s *Service) sendToTeams(ctx context.Context, webhookURL, message string) bool {
	card := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   "Milestone Achieved!",
		Text:    strings.ReplaceAll(message, "\n", "<br>"),
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(card).
		Post(webhookURL)
	if err != nil {
		logrus.Errorf("Failed to send Teams notification: %v", err)
		return false
	}

	if resp.StatusCode() != 200 {
		logrus.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
		return false
	}

	logrus.Info("Sent Teams notification")
	return true
}

func (s *Service) sendEmail(address, message string) bool {
	if s.mailer == nil {
		logrus.WithField("email", address).Infof("[EMAIL MOCK] Would send: %s", message)
		return true
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", address)
	m.SetHeader("Subject", "Milestone Achieved!")
	m.SetBody("text/plain", htmlTag.ReplaceAllString(message, ""))
	m.AddAlternative("text/html", strings.ReplaceAll(message, "\n", "<br>"))

	if err := s.mailer.DialAndSend(m); err != nil {
		logrus.Errorf("Failed to send email notification: %v", err)
		return false
	}

	logrus.WithField("email", address).Info("Sent email notification")
	return true
}
