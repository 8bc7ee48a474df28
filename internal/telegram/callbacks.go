package telegram

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/oatsaysai/collect-in-telegram/internal/models"
	"github.com/oatsaysai/collect-in-telegram/pkg/qrcode"
)

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	u, err := b.upsertSender(ctx, cq.From)
	if err != nil {
		log.Printf("Failed to upsert sender: %v", err)
		b.answerCallback(cq.ID, "Ошибка авторизации", true)
		return
	}
	if cq.Message == nil {
		b.answerCallback(cq.ID, "", false)
		return
	}
	chatID := cq.Message.Chat.ID
	messageID := cq.Message.MessageID

	parts := strings.Split(cq.Data, ":")
	switch parts[0] {
	case "jn":
		if len(parts) == 2 {
			b.joinByCode(ctx, chatID, messageID, cq.ID, u, parts[1])
		}
	case "dc":
		if len(parts) == 2 {
			b.declineByCode(ctx, chatID, messageID, cq.ID, u, parts[1])
		}
	case "py":
		if len(parts) == 3 {
			b.selfReport(ctx, chatID, messageID, cq.ID, u, DecodeID(parts[1]), parts[2])
		}
	case "pl":
		if len(parts) == 2 {
			b.showOwnerPool(ctx, chatID, messageID, cq.ID, u, DecodeID(parts[1]))
		}
	case "pls":
		if len(parts) == 2 {
			page, _ := strconv.Atoi(parts[1])
			b.answerCallback(cq.ID, "", false)
			b.sendPoolList(ctx, chatID, messageID, u, page)
		}
	case "cf":
		if len(parts) == 3 {
			b.confirmPayment(ctx, chatID, messageID, cq.ID, u, DecodeID(parts[1]), DecodeID(parts[2]), nil)
		}
	case "ca":
		if len(parts) == 3 {
			b.askConfirmAmount(chatID, cq.ID, DecodeID(parts[1]), DecodeID(parts[2]))
		}
	case "sp":
		if len(parts) == 2 {
			b.ownerSelfPayment(ctx, chatID, messageID, cq.ID, u, DecodeID(parts[1]))
		}
	case "sh":
		if len(parts) == 2 {
			b.shareLink(ctx, cq.ID, chatID, u, DecodeID(parts[1]))
		}
	case "cl":
		if len(parts) == 2 {
			b.askClosePool(chatID, messageID, cq.ID, DecodeID(parts[1]))
		}
	case "cl!":
		if len(parts) == 2 {
			b.setClosed(ctx, chatID, messageID, cq.ID, u, DecodeID(parts[1]), true)
		}
	case "op":
		if len(parts) == 2 {
			b.setClosed(ctx, chatID, messageID, cq.ID, u, DecodeID(parts[1]), false)
		}
	case "de":
		if len(parts) == 2 {
			b.askDeletePool(chatID, messageID, cq.ID, DecodeID(parts[1]))
		}
	case "de!":
		if len(parts) == 2 {
			b.deletePool(ctx, chatID, messageID, cq.ID, u, DecodeID(parts[1]))
		}
	case "nf":
		b.createFlowCallback(chatID, messageID, cq.ID, parts[1:])
	default:
		b.answerCallback(cq.ID, "", false)
	}
}

func (b *Bot) createFlowCallback(chatID int64, messageID int, cqID string, parts []string) {
	st := b.flows.get(chatID)
	if st == nil || st.Draft == nil {
		b.answerCallback(cqID, "Этот диалог уже завершен", false)
		return
	}
	b.answerCallback(cqID, "", false)

	switch {
	case len(parts) == 2 && parts[0] == "type":
		t := models.AmountType(parts[1])
		if !t.Valid() || st.Step != stepCreateAmountType {
			return
		}
		b.flowAmountType(chatID, messageID, st, t)
	case len(parts) == 2 && parts[0] == "pick":
		idx, err := strconv.Atoi(parts[1])
		if err != nil || st.Step != stepCreateParticipants {
			return
		}
		b.flowPickParticipant(chatID, messageID, st, idx)
	case len(parts) == 1 && parts[0] == "done":
		if st.Step == stepCreateParticipants {
			b.flowParticipantsDone(chatID, messageID, st, false)
		}
	case len(parts) == 1 && parts[0] == "skip":
		if st.Step == stepCreateParticipants {
			b.flowParticipantsDone(chatID, messageID, st, true)
		}
	}
}

// --- participant side ---

// joinByCode admits the user into the pool behind the code. messageID is 0
// when the entry point was a deep link rather than a button.
func (b *Bot) joinByCode(ctx context.Context, chatID int64, messageID int, cqID string, u *models.User, code string) {
	p, err := b.pools.ResolveJoinCode(ctx, code)
	if err != nil {
		if cqID != "" {
			b.answerCallback(cqID, "Сбор не найден или закрыт", true)
		}
		b.replyError(chatID, err, "найти сбор")
		return
	}

	p, err = b.pools.AdmitParticipant(ctx, p.ID, u)
	if err != nil {
		b.replyError(chatID, err, "присоединиться к сбору")
		return
	}

	text, kb := b.buildParticipantView(p, u.ID)
	if messageID != 0 {
		b.edit(chatID, messageID, text, &kb)
		b.answerCallback(cqID, "Ты присоединился к сбору!", false)
	} else {
		b.send(chatID, text, &kb)
	}
}

func (b *Bot) declineByCode(ctx context.Context, chatID int64, messageID int, cqID string, u *models.User, code string) {
	p, err := b.pools.ResolveJoinCode(ctx, code)
	if err != nil {
		b.answerCallback(cqID, "Сбор не найден", true)
		return
	}
	p, err = b.pools.DeclineInvitation(ctx, p.ID, u.ID)
	if err != nil {
		b.answerCallback(cqID, "Не получилось отказаться", true)
		b.replyError(chatID, err, "отказаться от участия")
		return
	}
	b.edit(chatID, messageID, "❌ Ты отказался от участия в сборе <b>«"+esc(p.Title)+"»</b>.", nil)
	b.answerCallback(cqID, "Ты отказался от участия", false)
}

func (b *Bot) selfReport(ctx context.Context, chatID int64, messageID int, cqID string, u *models.User, poolID, methodCode string) {
	method := models.PayMethodTransfer
	if methodCode == "c" {
		method = models.PayMethodCash
	}

	p, err := b.pools.SelfReportPayment(ctx, poolID, u.ID, method, "")
	if err != nil {
		if errors.Is(err, models.ErrPoolClosed) {
			b.answerCallback(cqID, "Сбор закрыт организатором", true)
			return
		}
		b.answerCallback(cqID, "Не удалось отметить оплату", true)
		b.replyError(chatID, err, "отметить оплату")
		return
	}
	b.mtr.SelfReportsTotal.WithLabelValues(string(method)).Inc()

	text, kb := b.buildParticipantView(p, u.ID)
	b.edit(chatID, messageID, text, &kb)
	b.answerCallback(cqID, "Отметил оплату. Ждет подтверждения.", false)

	b.notifyOwner(p, u, method)
}

// notifyOwner pings the organizer that money was reported, with a one-tap
// confirm button
func (b *Bot) notifyOwner(p *models.Pool, payer *models.User, method models.PayMethod) {
	if p.Owner == nil || p.Owner.TelegramID == payer.TelegramID {
		return
	}
	participant := p.ParticipantByUser(payer.ID)
	text := "💸 <b>" + esc(payer.DisplayName()) + "</b> сообщил о взносе в сбор <b>«" + esc(p.Title) + "»</b> (" +
		payMethodLabel(method) + "). Подтверди взнос, когда получишь деньги."

	var kb *tgbotapi.InlineKeyboardMarkup
	if participant != nil {
		markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить взнос",
				"cf:"+EncodeID(p.ID)+":"+EncodeID(participant.ID)),
		))
		kb = &markup
	}
	b.send(p.Owner.TelegramID, text, kb)
}

// --- owner side ---

func (b *Bot) sendPoolList(ctx context.Context, chatID int64, messageID int, u *models.User, page int) {
	pools, total, err := b.pools.ListPoolsByOwner(ctx, u.ID, page, b.pageSize)
	if err != nil {
		b.replyError(chatID, err, "загрузить сборы")
		return
	}
	text, kb := buildPoolList(pools, total, page, b.pageSize)
	if messageID != 0 {
		b.edit(chatID, messageID, text, &kb)
	} else {
		b.send(chatID, text, &kb)
	}
}

func (b *Bot) showOwnerPool(ctx context.Context, chatID int64, messageID int, cqID string, u *models.User, poolID string) {
	p, err := b.pools.GetPoolForOwner(ctx, poolID, u.ID)
	if err != nil {
		b.answerCallback(cqID, "Сбор не найден", true)
		return
	}
	b.answerCallback(cqID, "", false)
	text, kb := b.buildOwnerView(p)
	b.edit(chatID, messageID, text, &kb)
}

func (b *Bot) confirmPayment(ctx context.Context, chatID int64, messageID int, cqID string, u *models.User, poolID, participantID string, amount *int64) {
	p, err := b.pools.ConfirmPayment(ctx, poolID, participantID, u.ID, amount)
	if err != nil {
		b.answerCallback(cqID, "Не удалось подтвердить", true)
		b.replyError(chatID, err, "подтвердить взнос")
		return
	}
	b.mtr.ConfirmationsTotal.Inc()
	b.answerCallback(cqID, "Взнос подтвержден", false)
	text, kb := b.buildOwnerView(p)
	b.edit(chatID, messageID, text, &kb)
}

// askConfirmAmount switches the owner's chat into amount-entry mode
func (b *Bot) askConfirmAmount(chatID int64, cqID, poolID, participantID string) {
	b.flows.set(chatID, &flowState{
		Step:          stepConfirmAmount,
		PoolID:        poolID,
		ParticipantID: participantID,
	})
	b.answerCallback(cqID, "", false)
	b.send(chatID, "Какую сумму записать? Напиши число.", nil)
}

func (b *Bot) ownerSelfPayment(ctx context.Context, chatID int64, messageID int, cqID string, u *models.User, poolID string) {
	p, err := b.pools.OwnerSelfPayment(ctx, poolID, u, nil)
	if err != nil {
		b.answerCallback(cqID, "Не удалось отметить взнос", true)
		b.replyError(chatID, err, "отметить свой взнос")
		return
	}
	b.mtr.ConfirmationsTotal.Inc()
	b.answerCallback(cqID, "Твой взнос записан", false)
	text, kb := b.buildOwnerView(p)
	b.edit(chatID, messageID, text, &kb)
}

func (b *Bot) shareLink(ctx context.Context, cqID string, chatID int64, u *models.User, poolID string) {
	p, err := b.pools.GetPoolForOwner(ctx, poolID, u.ID)
	if err != nil {
		b.answerCallback(cqID, "Сбор не найден", true)
		return
	}
	b.answerCallback(cqID, "", false)
	b.sendShareLink(chatID, p)
}

// sendShareLink posts the join link plus a QR code image for offline sharing
func (b *Bot) sendShareLink(chatID int64, p *models.Pool) {
	link := b.joinLink(p)
	b.send(chatID, "🔗 Ссылка для участников:\n"+link+"\n\nПерешли ее в чат или покажи QR-код.", nil)

	file, err := qrcode.Generate(link)
	if err != nil {
		log.Printf("Failed to generate join QR code: %v", err)
		return
	}
	defer func() {
		if err := qrcode.Remove(file); err != nil {
			log.Printf("Failed to remove QR file %s: %v", file, err)
		}
	}()

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(file))
	photo.Caption = "QR-код сбора «" + p.Title + "»"
	if _, err := b.api.Send(photo); err != nil {
		log.Printf("Failed to send QR photo: %v", err)
	}
}

func (b *Bot) askClosePool(chatID int64, messageID int, cqID, poolID string) {
	b.answerCallback(cqID, "", false)
	kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔒 Да, закрыть", "cl!:"+EncodeID(poolID)),
		tgbotapi.NewInlineKeyboardButtonData("Отмена", "pl:"+EncodeID(poolID)),
	))
	b.edit(chatID, messageID,
		"Закрыть сбор? Новые участники не смогут присоединиться, а оплаты — отмечаться. Открыть снова можно в любой момент.", &kb)
}

func (b *Bot) setClosed(ctx context.Context, chatID int64, messageID int, cqID string, u *models.User, poolID string, closed bool) {
	p, err := b.pools.SetPoolClosed(ctx, poolID, u.ID, closed)
	if err != nil {
		b.answerCallback(cqID, "Не получилось", true)
		b.replyError(chatID, err, "изменить статус сбора")
		return
	}
	if closed {
		b.answerCallback(cqID, "Сбор закрыт", false)
	} else {
		b.answerCallback(cqID, "Сбор снова открыт", false)
	}
	text, kb := b.buildOwnerView(p)
	b.edit(chatID, messageID, text, &kb)
}

func (b *Bot) askDeletePool(chatID int64, messageID int, cqID, poolID string) {
	b.answerCallback(cqID, "", false)
	kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🗑 Да, удалить навсегда", "de!:"+EncodeID(poolID)),
		tgbotapi.NewInlineKeyboardButtonData("Отмена", "pl:"+EncodeID(poolID)),
	))
	b.edit(chatID, messageID, "Удалить сбор вместе со списком участников? Это действие необратимо.", &kb)
}

func (b *Bot) deletePool(ctx context.Context, chatID int64, messageID int, cqID string, u *models.User, poolID string) {
	p, err := b.pools.DeletePool(ctx, poolID, u.ID)
	if err != nil {
		b.answerCallback(cqID, "Не получилось удалить", true)
		b.replyError(chatID, err, "удалить сбор")
		return
	}
	b.answerCallback(cqID, "Сбор удален", false)
	b.edit(chatID, messageID, "🗑 Сбор <b>«"+esc(p.Title)+"»</b> удален.", nil)
}
