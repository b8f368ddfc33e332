// Package telegram provides an operational notifier via the Telegram Bot API.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Tankman61/VibeTrade/internal/models"
)

// Notifier sends operational notifications to a Telegram chat.
type Notifier struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewNotifier creates a new Telegram notifier.
func NewNotifier(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Notifier{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (n *Notifier) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < n.maxRetries; i++ {
		if _, err := n.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(n.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", n.maxRetries, lastErr)
}

// NotifyInterrupt notifies the ops chat that an interrupt fired.
func (n *Notifier) NotifyInterrupt(ev *models.InterruptEvent) error {
	kind := "threshold"
	if ev.Forced {
		kind = "forced"
	}
	text := fmt.Sprintf("🚨 *Interrupt fired* \\(%s\\)\n📊 Risk score: %s\n🕐 %s\n\n%s",
		kind,
		escapeMarkdownV2(fmt.Sprintf("%.1f", ev.Score)),
		escapeMarkdownV2(ev.FiredAt.Format("2006-01-02 15:04:05")),
		escapeMarkdownV2(ev.RoastText),
	)
	return n.sendMarkdownV2(text)
}

// NotifyDegraded notifies the ops chat that a feed fell back to synthetic data.
func (n *Notifier) NotifyDegraded(source models.Source) error {
	text := fmt.Sprintf("⚠️ *Feed degraded*\n`%s` exhausted its reconnect budget and switched to synthetic data", escapeMarkdownV2(string(source)))
	return n.sendMarkdownV2(text)
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
