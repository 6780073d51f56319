// Package alerts delivers operator alerts to a Telegram chat. It backs the
// logging alert sink: log lines at or above the configured level end up as
// messages in the ops channel.
package alerts

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "costwatch/pkg/logx"
)

// telegram message hard limit, minus room for truncation markers.
const maxMessageLen = 4000

type Config struct {
	Token  string
	ChatID int64
}

// Telegram sends alert messages to a single chat. It implements
// logx.Sender.
type Telegram struct {
	bot  *tele.Bot
	chat tele.ChatID
	log  logx.Logger
}

var _ logx.Sender = (*Telegram)(nil)

func NewTelegram(cfg Config, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	// Send-only bot: no poller is ever started.
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Client: &http.Client{Timeout: 8 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, chat: tele.ChatID(cfg.ChatID), log: log}, nil
}

// SendAlert delivers one pre-formatted alert line. Failures are logged and
// swallowed; alerting must never take the orchestrator down.
func (t *Telegram) SendAlert(ctx context.Context, msg string) error {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return nil
	}
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen] + "..."
	}

	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(t.chat, msg)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			t.log.Warn("alert send failed", logx.Err(err))
		}
		return err
	}
}
