package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjannette/microtrend-backend/internal/httputil"
)

const telegramAPI = "https://api.telegram.org"

type Options struct {
	WebhookURL       string
	BotName          string
	TelegramToken    string
	TelegramChatID   string
	TelegramEndpoint string // overrides telegramAPI, used by tests
	Logger           *zap.Logger
}

// Sender fans a message out to the log, a Slack/Discord webhook and a
// Telegram chat. Every channel is optional; delivery failures are logged
// and never returned to the caller.
type Sender struct {
	webhookURL     string
	botName        string
	telegramURL    string
	telegramChatID string
	httpClient     *http.Client
	retry          httputil.RetryConfig
	log            *zap.Logger
}

func NewSender(opts Options) *Sender {
	if opts.BotName == "" {
		opts.BotName = "MicroTrend"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	log := opts.Logger.Named("notify")

	s := &Sender{
		webhookURL: opts.WebhookURL,
		botName:    opts.BotName,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    5 * time.Second,
			Logger:      log,
		},
		log: log,
	}
	if opts.TelegramToken != "" && opts.TelegramChatID != "" {
		endpoint := opts.TelegramEndpoint
		if endpoint == "" {
			endpoint = telegramAPI
		}
		s.telegramURL = fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(endpoint, "/"), opts.TelegramToken)
		s.telegramChatID = opts.TelegramChatID
	}
	return s
}

func (s *Sender) Send(msg string) {
	formatted := fmt.Sprintf("[%s] %s", s.botName, msg)
	s.log.Info("notification", zap.String("message", msg))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.webhookURL != "" {
		s.post(ctx, "webhook", s.webhookURL, s.formatPayload(formatted))
	}
	if s.telegramURL != "" {
		s.post(ctx, "telegram", s.telegramURL, map[string]string{
			"chat_id":    s.telegramChatID,
			"text":       fmt.Sprintf("<b>%s</b>\n%s", escapeHTML(s.botName), escapeHTML(msg)),
			"parse_mode": "HTML",
		})
	}
}

func (s *Sender) post(ctx context.Context, channel, url string, payload map[string]string) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("marshal notification", zap.String("channel", channel), zap.Error(err))
		return
	}

	resp, err := httputil.Do(ctx, s.httpClient, s.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		s.log.Error("failed to send notification after retries", zap.String("channel", channel), zap.Error(err))
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.log.Warn("notification rejected", zap.String("channel", channel), zap.Int("status", resp.StatusCode))
	}
}

func (s *Sender) formatPayload(msg string) map[string]string {
	if strings.Contains(s.webhookURL, "discord") {
		return map[string]string{
			"content":  msg,
			"username": s.botName,
		}
	}
	return map[string]string{
		"text":     fmt.Sprintf("`%s`", msg),
		"username": s.botName,
	}
}

func (s *Sender) Enabled() bool {
	return s.webhookURL != "" || s.telegramURL != ""
}

func escapeHTML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
