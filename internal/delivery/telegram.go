package delivery

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"digestd/internal/digest"
	logx "digestd/pkg/logx"
)

// Telegram caps messages at 4096 chars; stay under it so entity expansion
// never tips a chunk over.
const telegramTextLimit = 4000

// TelegramSender pushes the plain-text digest to one chat. Send-only: the
// bot never polls for updates.
type TelegramSender struct {
	bot    *tele.Bot
	chatID int64
	log    logx.Logger
}

func NewTelegramSender(token string, chatID int64, log logx.Logger) (*TelegramSender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram token is empty")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat id is required")
	}
	bot, err := tele.NewBot(tele.Settings{Token: token})
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &TelegramSender{bot: bot, chatID: chatID, log: log}, nil
}

func (t *TelegramSender) Name() string { return "telegram" }

func (t *TelegramSender) Send(ctx context.Context, r digest.Rendered) error {
	chat := &tele.Chat{ID: t.chatID}
	chunks := splitText(r.Plain, telegramTextLimit)
	for i, chunk := range chunks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, err := t.bot.Send(chat, chunk); err != nil {
			return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

// SendError carries a short plain-text failure notice.
func (t *TelegramSender) SendError(ctx context.Context, msg string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	_, err := t.bot.Send(&tele.Chat{ID: t.chatID}, msg)
	return err
}

// splitText splits long digests into Telegram-sized chunks, preferring
// newline boundaries so message entries stay intact.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}

		if end < len(rs) {
			cut := -1
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					cut = i + 1
					break
				}
			}
			if cut != -1 {
				end = cut
			}
		}

		chunk := strings.TrimRight(string(rs[start:end]), "\n")
		out = append(out, chunk)

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
