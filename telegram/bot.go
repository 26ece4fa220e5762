// Package telegram serves conversations over a long-polling Telegram
// bot. Each allowed user gets their own engine from the session store;
// tool calls run auto-approved since there is no interactive prompt.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ocode/config"
	"ocode/session"
)

const helpText = `I'm a coding assistant with sandboxed workspace access.

/start - greeting
/help - this help
/clear - reset the conversation
/model - session stats

Send any other message and I'll work on it, running tools as needed.`

type Bot struct {
	api     *tgbotapi.BotAPI
	store   *session.Store
	allowed map[int64]bool
	model   string
}

func NewBot(cfg *config.Config, store *session.Store) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("telegram auth failed: %w", err)
	}

	allowed := make(map[int64]bool, len(cfg.TelegramAllowed))
	for _, id := range cfg.TelegramAllowed {
		allowed[id] = true
	}

	return &Bot{
		api:     api,
		store:   store,
		allowed: allowed,
		model:   cfg.Model,
	}, nil
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if config.Debug {
		config.DebugLog.Printf("telegram bot authorized as @%s", b.api.Self.UserName)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

// allowedUser reports whether the user may talk to the bot. An empty
// allow-list admits everyone.
func (b *Bot) allowedUser(userID int64) bool {
	return len(b.allowed) == 0 || b.allowed[userID]
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if !b.allowedUser(userID) {
		if config.Debug {
			config.DebugLog.Printf("rejected user %d", userID)
		}
		b.sendPlain(chatID, "Access denied.")
		return
	}

	if msg.IsCommand() {
		b.handleCommand(chatID, userID, msg.Command())
		return
	}

	sess := b.store.GetOrCreate(userID)
	sess.Lock()
	defer sess.Unlock()

	b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))

	reply, err := sess.Engine.Respond(ctx, msg.Text)
	if err != nil {
		b.sendPlain(chatID, "Request failed: "+err.Error())
		return
	}

	formatted := FormatHTML(reply)
	if formatted == "" {
		formatted = "Done."
	}
	for _, part := range SplitMessage(formatted, MaxMessageLen) {
		b.sendHTML(chatID, part)
	}
}

func (b *Bot) handleCommand(chatID, userID int64, command string) {
	switch command {
	case "start":
		b.sendPlain(chatID, "Hi! I'm ocode. Send me a task and I'll work on it in my workspace. /help lists commands.")
	case "help":
		b.sendPlain(chatID, helpText)
	case "clear":
		sess := b.store.GetOrCreate(userID)
		sess.Lock()
		sess.Engine.Clear()
		sess.Unlock()
		b.sendPlain(chatID, "Conversation cleared.")
	case "model":
		sess := b.store.GetOrCreate(userID)
		sess.Lock()
		stats := fmt.Sprintf("model: %s\nmessages: %d\nestimated tokens: ~%d",
			b.model, sess.Engine.MessageCount(), sess.Engine.EstimatedTokens())
		sess.Unlock()
		b.sendPlain(chatID, stats)
	default:
		b.sendPlain(chatID, "Unknown command. /help lists commands.")
	}
}

func (b *Bot) sendHTML(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		// Malformed HTML from unusual model output; deliver it raw.
		if config.Debug {
			config.DebugLog.Printf("html send failed, falling back to plain: %v", err)
		}
		b.sendPlain(chatID, text)
	}
}

func (b *Bot) sendPlain(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil && config.Debug {
		config.DebugLog.Printf("send failed: %v", err)
	}
}
