// Package telegram adapts Telegram updates into lifecycle engine calls and
// renders the returned pool aggregates back into chat messages.
package telegram

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/oatsaysai/collect-in-telegram/internal/config"
	"github.com/oatsaysai/collect-in-telegram/internal/metrics"
	"github.com/oatsaysai/collect-in-telegram/internal/models"
	"github.com/oatsaysai/collect-in-telegram/internal/pool"
	"github.com/oatsaysai/collect-in-telegram/internal/user"
)

// Bot glues the Telegram API to the identity and pool services
type Bot struct {
	api   *tgbotapi.BotAPI
	cfg   config.TelegramConfig
	users *user.Service
	pools *pool.Service
	mtr   *metrics.Metrics
	flows *flows
	// username is resolved once at startup and used for deep links
	username string
	pageSize int

	httpSrv *http.Server
}

// New connects to Telegram and resolves the bot identity
func New(cfg config.TelegramConfig, users *user.Service, pools *pool.Service, mtr *metrics.Metrics, pageSize int) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	log.Printf("Authorized on Telegram as @%s", api.Self.UserName)

	if pageSize <= 0 {
		pageSize = 5
	}
	return &Bot{
		api:      api,
		cfg:      cfg,
		users:    users,
		pools:    pools,
		mtr:      mtr,
		flows:    newFlows(),
		username: api.Self.UserName,
		pageSize: pageSize,
	}, nil
}

// Run processes updates until ctx is canceled, via webhook or long polling
// depending on configuration
func (b *Bot) Run(ctx context.Context, webhookPath string) error {
	var updates tgbotapi.UpdatesChannel

	if b.cfg.WebhookEnabled {
		wh, err := tgbotapi.NewWebhook(strings.TrimRight(b.cfg.WebhookDomain, "/") + webhookPath)
		if err != nil {
			return err
		}
		if _, err := b.api.Request(wh); err != nil {
			return err
		}
		updates = b.api.ListenForWebhook(webhookPath)
		b.httpSrv = &http.Server{Addr: b.cfg.ListenAddr, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Printf("Webhook server listening on %s", b.cfg.ListenAddr)
			if err := b.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("Webhook server stopped: %v", err)
			}
		}()
	} else {
		// Drop a stale webhook so long polling works
		if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			log.Printf("Failed to delete webhook: %v", err)
		}
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 30
		updates = b.api.GetUpdatesChan(u)
	}

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			if b.httpSrv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = b.httpSrv.Shutdown(shutdownCtx)
			}
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.dispatch(ctx, upd)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic while handling update %d: %v", upd.UpdateID, r)
		}
	}()

	switch {
	case upd.CallbackQuery != nil:
		b.mtr.UpdatesTotal.WithLabelValues("callback").Inc()
		b.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil && upd.Message.IsCommand():
		b.mtr.UpdatesTotal.WithLabelValues("command").Inc()
		b.handleCommand(ctx, upd.Message)
	case upd.Message != nil:
		b.mtr.UpdatesTotal.WithLabelValues("message").Inc()
		b.handleMessage(ctx, upd.Message)
	}
}

// upsertSender refreshes the durable identity of whoever triggered the update
func (b *Bot) upsertSender(ctx context.Context, from *tgbotapi.User) (*models.User, error) {
	if from == nil {
		return nil, models.ErrNotFound
	}
	return b.users.UpsertIdentity(ctx, user.Identity{
		TelegramID:   from.ID,
		Username:     from.UserName,
		FirstName:    from.FirstName,
		LastName:     from.LastName,
		LanguageCode: from.LanguageCode,
	})
}

func (b *Bot) send(chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if kb != nil && len(kb.InlineKeyboard) > 0 {
		msg.ReplyMarkup = kb
	}
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("Failed to send message to chat %d: %v", chatID, err)
	}
}

func (b *Bot) edit(chatID int64, messageID int, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	var c tgbotapi.Chattable
	if kb != nil && len(kb.InlineKeyboard) > 0 {
		edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *kb)
		edit.ParseMode = tgbotapi.ModeHTML
		edit.DisableWebPagePreview = true
		c = edit
	} else {
		edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
		edit.ParseMode = tgbotapi.ModeHTML
		edit.DisableWebPagePreview = true
		c = edit
	}
	if _, err := b.api.Send(c); err != nil {
		log.Printf("Failed to edit message %d in chat %d: %v", messageID, chatID, err)
	}
}

func (b *Bot) answerCallback(id, text string, alert bool) {
	cb := tgbotapi.NewCallback(id, text)
	cb.ShowAlert = alert
	if _, err := b.api.Request(cb); err != nil {
		log.Printf("Failed to answer callback: %v", err)
	}
}
