// Package bot is the Telegram side of the tracker: it delivers notifications and runs
// the /start dialog that collects a handle and a sheet id.
package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/PatGB5/codeforces-submission-bot/internal/models"
	"github.com/PatGB5/codeforces-submission-bot/internal/tracker"
)

// botAPI is the part of tgbotapi.BotAPI the bot uses
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// SessionController drives the tracking sessions
type SessionController interface {
	Begin(ctx context.Context, owner string, chatID int64) (models.TrackingSession, error)
	SubmitHandle(ctx context.Context, owner, handle string) (models.TrackingSession, error)
	SubmitSheetID(ctx context.Context, owner, sheetID string) (models.TrackingSession, error)
	Stop(ctx context.Context, owner string) error
	Get(owner string) (models.TrackingSession, error)
}

// Config holds bot configuration
type Config struct {
	// AllowedUsers restricts the bot to these Telegram user ids. Empty allows everyone.
	AllowedUsers []int64
	// ServiceAccountEmail is shown to users so they can share their sheet
	ServiceAccountEmail string
	UpdateTimeout       int
}

// Bot sends notifications and handles chat commands
type Bot struct {
	api      botAPI
	sessions SessionController
	cfg      Config
	allowed  map[int64]bool
}

// New creates a bot from a token
func New(token string, cfg Config) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	slog.Info("telegram bot authorized", "username", api.Self.UserName)
	return newBot(api, cfg), nil
}

func newBot(api botAPI, cfg Config) *Bot {
	if cfg.UpdateTimeout <= 0 {
		cfg.UpdateTimeout = 60
	}
	allowed := make(map[int64]bool, len(cfg.AllowedUsers))
	for _, id := range cfg.AllowedUsers {
		allowed[id] = true
	}
	return &Bot{api: api, cfg: cfg, allowed: allowed}
}

// SetSessions attaches the session controller. Must be called before Listen.
func (b *Bot) SetSessions(sessions SessionController) {
	b.sessions = sessions
}

// Owner returns the session owner key for a chat
func Owner(chatID int64) string {
	return fmt.Sprintf("chat:%d", chatID)
}

// Send delivers an HTML message to a chat
func (b *Bot) Send(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
	}
	return nil
}

// Listen processes updates until ctx is canceled. Updates are handled one at a time.
func (b *Bot) Listen(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.UpdateTimeout
	updates := b.api.GetUpdatesChan(u)

	slog.Info("telegram bot listening")
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			slog.Info("telegram bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID

	userID := chatID
	username := ""
	if msg.From != nil {
		userID = msg.From.ID
		username = msg.From.UserName
	}

	if len(b.allowed) > 0 && !b.allowed[userID] {
		slog.Warn("unauthorized telegram user", "user_id", userID, "username", username)
		b.reply(ctx, chatID, "Unauthorized")
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, chatID, msg.Command())
		return
	}
	b.handleText(ctx, chatID, msg.Text)
}

func (b *Bot) handleCommand(ctx context.Context, chatID int64, command string) {
	switch command {
	case "start":
		b.start(ctx, chatID)
	case "stop":
		b.stop(ctx, chatID)
	case "status":
		b.status(ctx, chatID)
	case "help":
		b.reply(ctx, chatID, helpText)
	default:
		b.reply(ctx, chatID, "Unknown command. "+helpText)
	}
}

func (b *Bot) start(ctx context.Context, chatID int64) {
	if _, err := b.sessions.Begin(ctx, Owner(chatID), chatID); err != nil {
		if errors.Is(err, tracker.ErrSessionExists) {
			b.reply(ctx, chatID, "A session is already active. Send /stop to end it first.")
			return
		}
		slog.Error("failed to begin session", "error", err, "chat_id", chatID)
		b.reply(ctx, chatID, "Something went wrong, please try again.")
		return
	}
	b.reply(ctx, chatID, "Enter the Codeforces handle whose recent submissions you want to track.")
}

func (b *Bot) stop(ctx context.Context, chatID int64) {
	if err := b.sessions.Stop(ctx, Owner(chatID)); err != nil {
		if errors.Is(err, tracker.ErrSessionNotFound) {
			b.reply(ctx, chatID, "Nothing is being tracked.")
			return
		}
		slog.Error("failed to stop session", "error", err, "chat_id", chatID)
		b.reply(ctx, chatID, "Something went wrong, please try again.")
		return
	}
	b.reply(ctx, chatID, "Tracking stopped.")
}

func (b *Bot) status(ctx context.Context, chatID int64) {
	s, err := b.sessions.Get(Owner(chatID))
	if err != nil {
		b.reply(ctx, chatID, "No active session. Send /start to begin.")
		return
	}
	b.reply(ctx, chatID, formatStatus(s))
}

func (b *Bot) handleText(ctx context.Context, chatID int64, text string) {
	owner := Owner(chatID)
	s, err := b.sessions.Get(owner)
	if err != nil {
		b.reply(ctx, chatID, "Send /start to begin tracking.")
		return
	}

	switch s.State {
	case models.SessionAwaitingHandle:
		if _, err := b.sessions.SubmitHandle(ctx, owner, text); err != nil {
			b.replyError(ctx, chatID, err)
			return
		}
		b.reply(ctx, chatID, b.sheetPrompt())

	case models.SessionAwaitingSheetID:
		b.typing(chatID)
		s, err = b.sessions.SubmitSheetID(ctx, owner, text)
		if err != nil {
			if errors.Is(err, tracker.ErrInitializationFailed) {
				b.reply(ctx, chatID, fmt.Sprintf(
					"Could not fetch submissions for <b>%s</b>. Check the handle and send /start to try again.",
					html.EscapeString(s.Handle)))
				return
			}
			b.replyError(ctx, chatID, err)
			return
		}
		b.reply(ctx, chatID, fmt.Sprintf("Tracking <b>%s</b>. New submissions will be reported here.",
			html.EscapeString(s.Handle)))

	case models.SessionInitializing:
		b.reply(ctx, chatID, "Still setting up, please wait.")

	default:
		b.reply(ctx, chatID, fmt.Sprintf("Already tracking <b>%s</b>. Send /stop to end tracking.",
			html.EscapeString(s.Handle)))
	}
}

func (b *Bot) replyError(ctx context.Context, chatID int64, err error) {
	switch {
	case errors.Is(err, tracker.ErrEmptyHandle):
		b.reply(ctx, chatID, "The handle cannot be empty.")
	case errors.Is(err, tracker.ErrEmptySheetID):
		b.reply(ctx, chatID, "The sheet id cannot be empty.")
	case errors.Is(err, tracker.ErrSessionNotFound), errors.Is(err, models.ErrInvalidTransition):
		b.reply(ctx, chatID, "This session has ended. Send /start to begin again.")
	default:
		slog.Error("dialog step failed", "error", err, "chat_id", chatID)
		b.reply(ctx, chatID, "Something went wrong, please try again.")
	}
}

func (b *Bot) sheetPrompt() string {
	var sb strings.Builder
	if b.cfg.ServiceAccountEmail != "" {
		sb.WriteString("First give this email editor access to your Google Sheet:\n")
		sb.WriteString("<code>" + html.EscapeString(b.cfg.ServiceAccountEmail) + "</code>\n\n")
	}
	sb.WriteString("Enter your Google Sheet id (the part of the URL between d/ and /edit).")
	return sb.String()
}

func (b *Bot) typing(chatID int64) {
	if _, err := b.api.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		slog.Debug("failed to send chat action", "error", err, "chat_id", chatID)
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.Send(ctx, chatID, text); err != nil {
		slog.Error("failed to reply", "error", err, "chat_id", chatID)
	}
}

const helpText = "Commands:\n/start - track a Codeforces handle\n/status - show the current session\n/stop - stop tracking"

func formatStatus(s models.TrackingSession) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "State: %s\n", s.State)
	if s.Handle != "" {
		fmt.Fprintf(&sb, "Handle: <b>%s</b>\n", html.EscapeString(s.Handle))
	}
	if s.SheetID != "" {
		fmt.Fprintf(&sb, "Sheet: <code>%s</code>\n", html.EscapeString(s.SheetID))
	}
	if s.IsReady() {
		fmt.Fprintf(&sb, "Last seen submission: %d\n", s.Cursor)
	}
	fmt.Fprintf(&sb, "Since: %s UTC", s.UpdatedAt.UTC().Format(models.RowTimeLayout))
	return sb.String()
}
