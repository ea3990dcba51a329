// Package notify forwards short operator messages (sniper matches, volume
// job lifecycle, dispatch summaries) to Telegram.
package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/sirupsen/logrus"
)

type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Nop drops every message.
type Nop struct{}

func (Nop) Notify(context.Context, string) {}

// Telegram sends to a single chat. Send errors are logged and dropped.
type Telegram struct {
	bot    *bot.Bot
	chatID int64
	log    logrus.FieldLogger
}

func NewTelegram(token string, chatID int64, log logrus.FieldLogger) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, errors.New("telegram token and chat id are required")
	}
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, chatID: chatID, log: log}, nil
}

func (t *Telegram) Notify(ctx context.Context, text string) {
	p := &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   text,
	}
	if _, err := t.bot.SendMessage(ctx, p); err != nil {
		t.log.WithError(err).Warn("could not send telegram notification (ignored)")
	}
}

// Recorder keeps messages in memory; used by tests and dry runs.
type Recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *Recorder) Notify(_ context.Context, text string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, text)
	r.mu.Unlock()
}

func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}
