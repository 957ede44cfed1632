package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/user/feynwatch/internal/types"
	"github.com/user/feynwatch/internal/workflow"
)

const maxTelegramMessage = 4096

// Telegram rejects bursts of more than about one message per second in a
// single chat.
const (
	chatRate  = rate.Limit(1)
	chatBurst = 3
)

// Engine is the workflow controller as seen by the bot.
type Engine interface {
	Submit(ctx context.Context, text string, opts ...workflow.RunOption) (*workflow.Run, error)
	Stop()
	Snapshot() workflow.Snapshot
}

// StatusSource reports backend connectivity.
type StatusSource interface {
	Status() types.ConnectionStatus
}

// sender is the part of the bot API used for replies.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Adapter bridges Telegram chats to the workflow engine.
type Adapter struct {
	bot    *tgbotapi.BotAPI
	out    sender
	engine Engine
	health StatusSource
	logger *slog.Logger

	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
}

// New creates a Telegram adapter. health may be nil.
func New(token string, engine Engine, health StatusSource) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	a := newAdapter(bot, engine, health)
	a.bot = bot
	a.logger.Info("telegram bot authorized", "username", bot.Self.UserName)
	return a, nil
}

func newAdapter(out sender, engine Engine, health StatusSource) *Adapter {
	return &Adapter{
		out:      out,
		engine:   engine,
		health:   health,
		logger:   slog.Default().With("component", "telegram"),
		limiters: make(map[int64]*rate.Limiter),
	}
}

// Start long-polls for updates until ctx is done.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		a.handleCommand(msg)
		return
	}

	chatID := msg.Chat.ID
	if _, err := a.out.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		a.logger.Debug("send chat action failed", "chat_id", chatID, "error", err)
	}

	run, err := a.engine.Submit(ctx, msg.Text, workflow.WithOnComplete(func(reply *types.ADKMessage, err error) {
		if err != nil {
			a.sendResponse(chatID, workflow.UserMessage(err))
			return
		}
		a.sendResponse(chatID, reply.Content)
	}))
	// A run that was created reports its own failure through the callback.
	if err != nil && run == nil {
		a.sendResponse(chatID, workflow.UserMessage(err))
	}
}

func (a *Adapter) handleCommand(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		a.sendResponse(chatID, "Hello! Describe a physics process and I'll ask the FeynmanCraft agents for a diagram.")

	case "status":
		a.sendResponse(chatID, a.statusText())

	case "stop":
		// A cancelled run replies through its completion callback.
		running := a.engine.Snapshot().State.Running()
		a.engine.Stop()
		if !running {
			a.sendResponse(chatID, "No active request.")
		}

	default:
		a.sendResponse(chatID, "Unknown command. Available: /start, /status, /stop")
	}
}

func (a *Adapter) statusText() string {
	snap := a.engine.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "State: %s\n", snap.State)
	if snap.Transport != "" {
		fmt.Fprintf(&b, "Transport: %s\n", snap.Transport)
	}
	if snap.SessionID != "" {
		fmt.Fprintf(&b, "Session: %s\n", snap.SessionID)
	}
	fmt.Fprintf(&b, "Events: %d (%d received)", snap.Events, snap.RawEvents)
	if a.health != nil {
		st := a.health.Status()
		if st.IsConnected {
			b.WriteString("\nBackend: connected")
		} else {
			fmt.Fprintf(&b, "\nBackend: %s", st.Error)
		}
	}
	return b.String()
}

func (a *Adapter) limiterFor(chatID int64) *rate.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.limiters[chatID]
	if !ok {
		l = rate.NewLimiter(chatRate, chatBurst)
		a.limiters[chatID] = l
	}
	return l
}

func (a *Adapter) sendResponse(chatID int64, text string) {
	limiter := a.limiterFor(chatID)
	for _, part := range splitMessage(text) {
		if err := limiter.Wait(context.Background()); err != nil {
			a.logger.Warn("rate limiter wait failed", "chat_id", chatID, "error", err)
		}
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := a.out.Send(msg); err != nil {
			// Agent output is not guaranteed to be valid Markdown.
			msg.ParseMode = ""
			if _, err := a.out.Send(msg); err != nil {
				a.logger.Error("send message failed", "chat_id", chatID, "error", err)
			}
		}
	}
}

// splitMessage cuts text into chunks of at most maxTelegramMessage bytes
// without splitting a UTF-8 sequence.
func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end >= len(text) {
			parts = append(parts, text)
			break
		}
		for end > 0 && !utf8.RuneStart(text[end]) {
			end--
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}
