package telegram

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/oatsaysai/collect-in-telegram/internal/models"
	"github.com/oatsaysai/collect-in-telegram/internal/pool"
)

func (b *Bot) handleCommand(ctx context.Context, m *tgbotapi.Message) {
	u, err := b.upsertSender(ctx, m.From)
	if err != nil {
		log.Printf("Failed to upsert sender: %v", err)
		b.send(m.Chat.ID, "⚠️ Не удалось загрузить твой профиль. Попробуй снова.", nil)
		return
	}

	switch m.Command() {
	case "start":
		payload := strings.TrimSpace(m.CommandArguments())
		if payload != "" {
			b.joinByCode(ctx, m.Chat.ID, 0, "", u, payload)
			return
		}
		b.flows.clear(m.Chat.ID)
		b.send(m.Chat.ID, helpText, nil)
	case "help":
		b.send(m.Chat.ID, helpText, nil)
	case "newpool":
		b.startCreateFlow(m.Chat.ID)
	case "mypools":
		b.sendPoolList(ctx, m.Chat.ID, 0, u, 1)
	default:
		b.send(m.Chat.ID, "Не знаю такую команду. Посмотри /help.", nil)
	}
}

func (b *Bot) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	st := b.flows.get(m.Chat.ID)
	if st == nil {
		b.send(m.Chat.ID, "Посмотри /help, чтобы узнать, что я умею.", nil)
		return
	}

	u, err := b.upsertSender(ctx, m.From)
	if err != nil {
		log.Printf("Failed to upsert sender: %v", err)
		b.send(m.Chat.ID, "⚠️ Не удалось загрузить твой профиль. Попробуй снова.", nil)
		return
	}

	text := strings.TrimSpace(m.Text)
	switch st.Step {
	case stepCreateTitle:
		b.flowTitle(m.Chat.ID, st, text)
	case stepCreateAmount:
		b.flowAmount(ctx, m.Chat.ID, st, u, text)
	case stepCreateExpectedCount:
		b.flowExpectedCount(m.Chat.ID, st, text)
	case stepCreateDetails:
		b.flowDetails(ctx, m.Chat.ID, st, u, text)
	case stepConfirmAmount:
		b.flowConfirmAmount(ctx, m.Chat.ID, st, u, text)
	default:
		b.send(m.Chat.ID, "Сейчас я жду нажатия кнопки выше 🙂", nil)
	}
}

// --- pool creation dialog ---

func (b *Bot) startCreateFlow(chatID int64) {
	b.flows.set(chatID, &flowState{Step: stepCreateTitle, Draft: &createDraft{Picked: map[int]bool{}}})
	b.send(chatID, "📝 Как назовем сбор? Например: «Подарок Кате на день рождения».", nil)
}

func (b *Bot) flowTitle(chatID int64, st *flowState, text string) {
	if text == "" {
		b.send(chatID, "Название не может быть пустым. Напиши его текстом.", nil)
		return
	}
	st.Draft.Title = text
	st.Step = stepCreateAmountType
	b.flows.set(chatID, st)

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Общая сумма на всех", "nf:type:total"),
			tgbotapi.NewInlineKeyboardButtonData("Взнос с человека", "nf:type:per_person"),
		),
	)
	b.send(chatID, "Как считаем деньги?", &kb)
}

func (b *Bot) flowAmountType(chatID int64, messageID int, st *flowState, t models.AmountType) {
	st.Draft.AmountType = t
	st.Step = stepCreateAmount
	b.flows.set(chatID, st)

	if t == models.AmountTypeTotal {
		b.edit(chatID, messageID, "Какую сумму собираем всего? Напиши число.", nil)
	} else {
		b.edit(chatID, messageID, "Сколько сдает каждый участник? Напиши число.", nil)
	}
}

func (b *Bot) flowAmount(ctx context.Context, chatID int64, st *flowState, u *models.User, text string) {
	amount, err := strconv.ParseInt(strings.ReplaceAll(text, " ", ""), 10, 64)
	if err != nil || amount <= 0 {
		b.send(chatID, "Нужно положительное число, например 1500. Попробуй еще раз.", nil)
		return
	}
	st.Draft.Amount = amount

	known, err := b.pools.KnownParticipants(ctx, u.ID)
	if err != nil {
		log.Printf("Failed to load known participants: %v", err)
		b.mtr.StoreFailuresTotal.Inc()
		known = nil
	}
	if len(known) > 0 {
		if len(known) > 10 {
			known = known[:10]
		}
		st.Draft.Suggested = known
		st.Step = stepCreateParticipants
		b.flows.set(chatID, st)
		text, kb := buildParticipantPicker(st.Draft)
		b.send(chatID, text, &kb)
		return
	}

	st.Step = stepCreateExpectedCount
	b.flows.set(chatID, st)
	b.send(chatID, "Сколько человек скинется? Напиши число — оно нужно, чтобы поделить сумму.", nil)
}

func (b *Bot) flowPickParticipant(chatID int64, messageID int, st *flowState, idx int) {
	if idx < 0 || idx >= len(st.Draft.Suggested) {
		return
	}
	st.Draft.Picked[idx] = !st.Draft.Picked[idx]
	b.flows.set(chatID, st)
	text, kb := buildParticipantPicker(st.Draft)
	b.edit(chatID, messageID, text, &kb)
}

func (b *Bot) flowParticipantsDone(chatID int64, messageID int, st *flowState, skip bool) {
	picked := 0
	if !skip {
		for _, v := range st.Draft.Picked {
			if v {
				picked++
			}
		}
	}
	if skip || picked == 0 {
		st.Draft.Picked = map[int]bool{}
		st.Step = stepCreateExpectedCount
		b.flows.set(chatID, st)
		b.edit(chatID, messageID, "Сколько человек скинется? Напиши число — оно нужно, чтобы поделить сумму.", nil)
		return
	}
	st.Step = stepCreateDetails
	b.flows.set(chatID, st)
	b.edit(chatID, messageID, "💳 Теперь напиши реквизиты для перевода (номер карты или телефона).", nil)
}

func (b *Bot) flowExpectedCount(chatID int64, st *flowState, text string) {
	n, err := strconv.Atoi(text)
	if err != nil || n < 1 {
		b.send(chatID, "Нужно целое число не меньше 1. Попробуй еще раз.", nil)
		return
	}
	st.Draft.ExpectedCount = n
	st.Step = stepCreateDetails
	b.flows.set(chatID, st)
	b.send(chatID, "💳 Теперь напиши реквизиты для перевода (номер карты или телефона).", nil)
}

func (b *Bot) flowDetails(ctx context.Context, chatID int64, st *flowState, u *models.User, text string) {
	if text == "" {
		b.send(chatID, "Реквизиты не могут быть пустыми — участникам нужно знать, куда переводить.", nil)
		return
	}
	st.Draft.Details = text

	var participants []*models.User
	for i, picked := range st.Draft.Picked {
		if picked {
			participants = append(participants, st.Draft.Suggested[i])
		}
	}

	p, err := b.pools.CreatePool(ctx, pool.CreatePoolInput{
		OwnerID:        u.ID,
		Title:          st.Draft.Title,
		AmountType:     st.Draft.AmountType,
		Amount:         st.Draft.Amount,
		PaymentDetails: st.Draft.Details,
		Participants:   participants,
		ExpectedCount:  st.Draft.ExpectedCount,
	})
	b.flows.clear(chatID)
	if err != nil {
		b.replyError(chatID, err, "создать сбор")
		return
	}
	b.mtr.PoolsCreatedTotal.Inc()

	view, kb := b.buildOwnerView(p)
	b.send(chatID, "🎉 Сбор создан!\n\n"+view, &kb)
	b.sendShareLink(chatID, p)
}

// --- pending custom-amount confirmation ---

func (b *Bot) flowConfirmAmount(ctx context.Context, chatID int64, st *flowState, u *models.User, text string) {
	amount, err := strconv.ParseInt(strings.ReplaceAll(text, " ", ""), 10, 64)
	if err != nil || amount <= 0 {
		b.send(chatID, "Нужно положительное число, например 500. Попробуй еще раз.", nil)
		return
	}
	poolID, participantID := st.PoolID, st.ParticipantID
	b.flows.clear(chatID)

	p, err := b.pools.ConfirmPayment(ctx, poolID, participantID, u.ID, &amount)
	if err != nil {
		b.replyError(chatID, err, "подтвердить взнос")
		return
	}
	b.mtr.ConfirmationsTotal.Inc()
	view, kb := b.buildOwnerView(p)
	b.send(chatID, "✅ Взнос подтвержден.\n\n"+view, &kb)
}

// replyError turns engine errors into user-facing chat messages
func (b *Bot) replyError(chatID int64, err error, action string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		b.send(chatID, "⚠️ Сбор не найден или закрыт. Проверь ссылку у организатора.", nil)
	case errors.Is(err, models.ErrForbidden):
		b.send(chatID, "⚠️ Это может делать только организатор сбора.", nil)
	case errors.Is(err, models.ErrPoolClosed):
		b.send(chatID, "🔒 Сбор закрыт организатором, оплату отметить нельзя.", nil)
	case errors.Is(err, models.ErrPoolOpen):
		b.send(chatID, "⚠️ Сначала закрой сбор, потом его можно будет удалить.", nil)
	case models.IsValidationError(err):
		b.send(chatID, "⚠️ Проверь данные: "+esc(err.Error()), nil)
	default:
		log.Printf("Failed to %s: %v", action, err)
		b.mtr.StoreFailuresTotal.Inc()
		b.send(chatID, "⚠️ Что-то пошло не так. Попробуй еще раз чуть позже.", nil)
	}
}
