// Package bot answers chat commands sent to the alert bot: a greeting, the
// monitor's status and the monitored categories.
package bot

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/price-error-watch/internal/catalog"
	"github.com/JakeFAU/price-error-watch/internal/monitor"
)

// Defaults for the update loop.
const (
	DefaultPollTimeout = 25 * time.Second
	DefaultRetryDelay  = 3 * time.Second
)

// keywordsShown caps the keywords listed per category.
const keywordsShown = 5

const divider = "━━━━━━━━━━━━━━━━━━━━"

// API is the part of the Bot API client the bot needs.
type API interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// StatusProvider reports orchestrator counters.
type StatusProvider interface {
	Status() monitor.Status
}

// CategoryLister lists the monitored categories in display order.
type CategoryLister interface {
	All() []catalog.Category
}

// Config controls the update loop.
type Config struct {
	PollTimeout time.Duration
	RetryDelay  time.Duration
	// Stores are the display names of the enabled collectors.
	Stores []string
}

// Bot long-polls for updates and replies to commands.
type Bot struct {
	api        API
	status     StatusProvider
	categories CategoryLister
	cfg        Config
	logger     *zap.Logger
}

// New creates a Bot.
func New(api API, status StatusProvider, categories CategoryLister, cfg Config, logger *zap.Logger) *Bot {
	if cfg.PollTimeout < 0 {
		cfg.PollTimeout = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		api:        api,
		status:     status,
		categories: categories,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run polls until ctx is done. A poll in flight is not interrupted, so Run can
// return up to one poll timeout after cancellation.
func (b *Bot) Run(ctx context.Context) {
	b.logger.Info("command bot started", zap.Duration("poll_timeout", b.cfg.PollTimeout))
	defer b.logger.Info("command bot stopped")

	updates := tgbotapi.NewUpdate(0)
	updates.Timeout = int(b.cfg.PollTimeout / time.Second)
	updates.AllowedUpdates = []string{"message"}

	for ctx.Err() == nil {
		batch, err := b.api.GetUpdates(updates)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Warn("get updates failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.cfg.RetryDelay):
			}
			continue
		}
		for _, u := range batch {
			if u.UpdateID >= updates.Offset {
				updates.Offset = u.UpdateID + 1
			}
			b.handle(u)
		}
	}
}

func (b *Bot) handle(u tgbotapi.Update) {
	msg := u.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	text, ok := b.Reply(msg)
	if !ok {
		return
	}
	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	reply.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(reply); err != nil {
		b.logger.Warn("command reply failed",
			zap.Int64("chat_id", msg.Chat.ID),
			zap.String("command", msg.Command()),
			zap.Error(err),
		)
		return
	}
	b.logger.Debug("command answered", zap.Int64("chat_id", msg.Chat.ID), zap.String("command", msg.Command()))
}

// Reply builds the answer to msg. Unknown commands get no answer; plain text
// gets a pointer to /start.
func (b *Bot) Reply(msg *tgbotapi.Message) (string, bool) {
	if !msg.IsCommand() {
		if strings.TrimSpace(msg.Text) == "" {
			return "", false
		}
		return "❓ Comando não reconhecido. Use /start para ver os comandos disponíveis.", true
	}
	switch msg.Command() {
	case "start":
		return b.start(), true
	case "status":
		return b.statusText(), true
	case "categorias":
		return b.categoriesText(), true
	case "ping":
		return "🏓 Pong! Bot online e funcionando!", true
	default:
		return "", false
	}
}

func (b *Bot) start() string {
	var sb strings.Builder
	sb.WriteString("💥 <b>ERRO DE PREÇO BOT</b>\n")
	sb.WriteString(divider + "\n\n")
	sb.WriteString("🤖 Olá! Estou monitorando erros de preço 24h em:\n\n")
	for _, c := range b.categories.All() {
		fmt.Fprintf(&sb, "%s <b>%s</b>\n", c.Glyph, html.EscapeString(c.DisplayName))
	}
	sb.WriteString("\n📡 Alertas chegam aqui automaticamente!\n\n")
	sb.WriteString("📋 <b>Comandos:</b>\n")
	sb.WriteString("/status — ver status do monitor\n")
	sb.WriteString("/categorias — categorias ativas\n")
	sb.WriteString("/ping — testar bot")
	return sb.String()
}

func (b *Bot) statusText() string {
	st := b.status.Status()
	stores := "nenhuma"
	if len(b.cfg.Stores) > 0 {
		stores = strings.Join(b.cfg.Stores, ", ")
	}
	var sb strings.Builder
	sb.WriteString("📊 <b>STATUS DO MONITOR</b>\n")
	sb.WriteString(divider + "\n\n")
	fmt.Fprintf(&sb, "🔄 Ciclos executados: <code>%d</code>\n", st.CyclesRun)
	fmt.Fprintf(&sb, "🎯 Erros encontrados: <code>%d</code>\n", st.TotalErrorsFound)
	fmt.Fprintf(&sb, "⏱ Último scan: <code>%s</code>\n", html.EscapeString(st.LastScanTimestamp))
	fmt.Fprintf(&sb, "⏰ Próximo scan: <code>%s</code>\n", html.EscapeString(st.NextScanEstimate))
	fmt.Fprintf(&sb, "🏪 Lojas monitoradas: <code>%s</code>\n\n", html.EscapeString(stores))
	sb.WriteString("✅ Bot operacional!")
	return sb.String()
}

func (b *Bot) categoriesText() string {
	var sb strings.Builder
	sb.WriteString("🗂 <b>CATEGORIAS MONITORADAS</b>\n")
	sb.WriteString(divider + "\n\n")
	for _, c := range b.categories.All() {
		keywords := c.Keywords
		if len(keywords) > keywordsShown {
			keywords = keywords[:keywordsShown]
		}
		fmt.Fprintf(&sb, "%s <b>%s</b>: %s\n", c.Glyph, html.EscapeString(c.DisplayName),
			html.EscapeString(strings.Join(keywords, ", ")))
	}
	if len(b.cfg.Stores) > 0 {
		fmt.Fprintf(&sb, "\n🔍 Lojas: %s", html.EscapeString(strings.Join(b.cfg.Stores, ", ")))
	}
	return strings.TrimRight(sb.String(), "\n")
}
