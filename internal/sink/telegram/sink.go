// Package telegram delivers alerts through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/price-error-watch/internal/metrics"
)

// DefaultAPIURL is the Bot API root.
const DefaultAPIURL = "https://api.telegram.org"

// DefaultPace is the minimum gap between two messages.
const DefaultPace = 1500 * time.Millisecond

// DefaultTimeout bounds one Bot API call. It must outlast the command bot's
// long-poll window, which shares the client.
const DefaultTimeout = 40 * time.Second

// Config controls the client and the sink.
type Config struct {
	Token   string
	ChatID  string
	APIURL  string
	Pace    time.Duration
	Timeout time.Duration
}

// Sender is the part of the Bot API client the sink needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// NewClient builds a Bot API client on a traced HTTP client. The library checks
// the token with getMe before returning.
func NewClient(cfg Config) (*tgbotapi.BotAPI, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	endpoint := strings.TrimRight(cfg.APIURL, "/") + "/bot%s/%s"
	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram client: %w", err)
	}
	return api, nil
}

// Sink posts each alert as one HTML message.
type Sink struct {
	api     Sender
	chatID  string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New validates cfg and builds a Sink on api.
func New(api Sender, cfg Config, logger *zap.Logger) (*Sink, error) {
	if api == nil {
		return nil, errors.New("telegram client is required")
	}
	if cfg.ChatID == "" {
		return nil, errors.New("telegram chat id is required")
	}
	if cfg.Pace <= 0 {
		cfg.Pace = DefaultPace
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		api:     api,
		chatID:  cfg.ChatID,
		limiter: rate.NewLimiter(rate.Every(cfg.Pace), 1),
		logger:  logger,
	}, nil
}

// Deliver sends alerts in order, paced by the limiter. A failed message is logged
// and skipped; the returned error counts the failures.
func (s *Sink) Deliver(ctx context.Context, alerts []string) error {
	failed := 0
	for i, text := range alerts {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("telegram delivery interrupted after %d of %d: %w", i, len(alerts), err)
		}
		if err := s.send(text); err != nil {
			failed++
			metrics.ObserveDelivery("telegram", "error")
			s.logger.Warn("telegram send failed", zap.Int("index", i), zap.Error(err))
			continue
		}
		metrics.ObserveDelivery("telegram", "ok")
	}
	if failed > 0 {
		return fmt.Errorf("telegram: %d of %d alerts failed", failed, len(alerts))
	}
	return nil
}

// Notify sends a single message outside the alert flow, e.g. a startup notice.
func (s *Sink) Notify(ctx context.Context, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram notify: %w", err)
	}
	return s.send(text)
}

func (s *Sink) send(text string) error {
	if _, err := s.api.Send(s.message(text)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// message addresses a numeric chat id directly and anything else as a channel
// username such as "@precos".
func (s *Sink) message(text string) tgbotapi.MessageConfig {
	var msg tgbotapi.MessageConfig
	if id, err := strconv.ParseInt(s.chatID, 10, 64); err == nil {
		msg = tgbotapi.NewMessage(id, text)
	} else {
		msg = tgbotapi.NewMessageToChannel(s.chatID, text)
	}
	msg.ParseMode = tgbotapi.ModeHTML
	return msg
}
