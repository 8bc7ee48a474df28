package telegram

import (
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/oatsaysai/collect-in-telegram/internal/models"
)

func esc(s string) string {
	return html.EscapeString(s)
}

func formatAmount(amount int64, currency string) string {
	switch currency {
	case "RUB", "":
		return fmt.Sprintf("%d ₽", amount)
	default:
		return fmt.Sprintf("%d %s", amount, currency)
	}
}

func statusLabel(s models.ParticipantStatus) string {
	switch s {
	case models.StatusInvited:
		return "⏳ приглашен"
	case models.StatusJoined:
		return "👀 открыл сбор"
	case models.StatusMarkedPaid:
		return "💸 сообщил об оплате"
	case models.StatusConfirmed:
		return "✅ подтверждено"
	case models.StatusDeclined:
		return "❌ отказался"
	}
	return string(s)
}

func payMethodLabel(m models.PayMethod) string {
	switch m {
	case models.PayMethodCash:
		return "наличными"
	case models.PayMethodTransfer:
		return "по реквизитам"
	}
	return ""
}

// joinLink builds the t.me deep link carrying the pool's join code
func (b *Bot) joinLink(p *models.Pool) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", b.username, p.JoinCode)
}

func poolHeader(p *models.Pool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>«%s»</b>\n", esc(p.Title))
	if p.AmountType == models.AmountTypeTotal {
		fmt.Fprintf(&sb, "Общая сумма: <b>%s</b>\n", formatAmount(p.TotalAmount, p.Currency))
	}
	fmt.Fprintf(&sb, "Взнос с человека: <b>%s</b>\n", formatAmount(p.ShareAmount, p.Currency))
	if p.IsClosed {
		sb.WriteString("Статус: 🔒 <b>закрыт</b>\n")
	}
	return sb.String()
}

// buildParticipantView renders the pool as seen by a (potential) contributor
func (b *Bot) buildParticipantView(p *models.Pool, userID string) (string, tgbotapi.InlineKeyboardMarkup) {
	var sb strings.Builder
	sb.WriteString("🎯 Сбор ")
	sb.WriteString(poolHeader(p))
	fmt.Fprintf(&sb, "Организатор: %s\n", esc(p.Owner.DisplayName()))
	if p.PaymentDetails != "" {
		fmt.Fprintf(&sb, "\n💳 Реквизиты:\n%s\n", esc(p.PaymentDetails))
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	participant := p.ParticipantByUser(userID)
	switch {
	case participant != nil && participant.Status == models.StatusConfirmed:
		sb.WriteString("\n✅ Твой взнос подтвержден. Спасибо!")
	case participant != nil && participant.Status == models.StatusMarkedPaid:
		sb.WriteString("\n💸 Ты сообщил об оплате. Ждем подтверждения организатора.")
	case participant != nil && participant.Status == models.StatusDeclined:
		sb.WriteString("\n❌ Ты отказался от участия в этом сборе.")
	case p.IsClosed:
		sb.WriteString("\n🔒 Сбор закрыт организатором.")
	default:
		fmt.Fprintf(&sb, "\nТвой взнос: <b>%s</b>. Отметь оплату, когда переведешь деньги.",
			formatAmount(p.ShareAmount, p.Currency))
		enc := EncodeID(p.ID)
		rows = append(rows,
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("💳 Оплатил по реквизитам", "py:"+enc+":t"),
				tgbotapi.NewInlineKeyboardButtonData("💵 Оплатил наличными", "py:"+enc+":c"),
			),
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("❌ Не участвую", "dc:"+p.JoinCode),
			),
		)
	}
	return sb.String(), tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// buildOwnerView renders the pool card with per-participant controls
func (b *Bot) buildOwnerView(p *models.Pool) (string, tgbotapi.InlineKeyboardMarkup) {
	var sb strings.Builder
	sb.WriteString("📋 Твой сбор ")
	sb.WriteString(poolHeader(p))

	active := p.ActiveParticipants()
	collected := p.CollectedAmount()
	fmt.Fprintf(&sb, "Собрано: <b>%s</b> из %s\n",
		formatAmount(collected, p.Currency), formatAmount(p.TargetAmount(), p.Currency))

	encPool := EncodeID(p.ID)
	var rows [][]tgbotapi.InlineKeyboardButton

	if len(active) == 0 {
		sb.WriteString("\nПока никто не присоединился. Отправь друзьям ссылку на сбор.\n")
	} else {
		sb.WriteString("\n👥 Участники:\n")
		for i, pt := range active {
			fmt.Fprintf(&sb, "%d. %s — %s", i+1, esc(pt.DisplayName), statusLabel(pt.Status))
			if pt.Status == models.StatusMarkedPaid || pt.Status == models.StatusConfirmed {
				fmt.Fprintf(&sb, " (%s)", formatAmount(pt.PaidAmount, p.Currency))
			}
			sb.WriteString("\n")
			if pt.Status != models.StatusConfirmed && !p.IsClosed {
				encPart := EncodeID(pt.ID)
				label := "✅ Подтвердить: " + pt.DisplayName
				if r := []rune(label); len(r) > 32 {
					label = string(r[:32]) + "…"
				}
				rows = append(rows, tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData(label, "cf:"+encPool+":"+encPart),
					tgbotapi.NewInlineKeyboardButtonData("✏️ Сумма", "ca:"+encPool+":"+encPart),
				))
			}
		}
	}

	if !p.IsClosed {
		rows = append(rows,
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("🔗 Поделиться ссылкой", "sh:"+encPool),
			),
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("💰 Мой взнос", "sp:"+encPool),
				tgbotapi.NewInlineKeyboardButtonData("🔒 Закрыть сбор", "cl:"+encPool),
			),
		)
	} else {
		rows = append(rows,
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("🔓 Открыть снова", "op:"+encPool),
				tgbotapi.NewInlineKeyboardButtonData("🗑 Удалить сбор", "de:"+encPool),
			),
		)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ К списку сборов", "pls:1"),
	))

	return sb.String(), tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// buildPoolList renders one page of the owner's pools
func buildPoolList(pools []*models.Pool, total, page, limit int) (string, tgbotapi.InlineKeyboardMarkup) {
	var sb strings.Builder
	if total == 0 {
		sb.WriteString("У тебя пока нет сборов. Создай первый командой /newpool.")
		return sb.String(), tgbotapi.NewInlineKeyboardMarkup()
	}

	fmt.Fprintf(&sb, "📚 Твои сборы (всего %d):\n\n", total)
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, p := range pools {
		state := "🟢"
		if p.IsClosed {
			state = "🔒"
		}
		fmt.Fprintf(&sb, "%s «%s» — собрано %s\n", state, esc(p.Title), formatAmount(p.CollectedAmount(), p.Currency))
		label := p.Title
		if len([]rune(label)) > 30 {
			label = string([]rune(label)[:30]) + "…"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(state+" "+label, "pl:"+EncodeID(p.ID)),
		))
	}

	lastPage := (total + limit - 1) / limit
	var nav []tgbotapi.InlineKeyboardButton
	if page > 1 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️", fmt.Sprintf("pls:%d", page-1)))
	}
	if page < lastPage {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("➡️", fmt.Sprintf("pls:%d", page+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(nav...))
	}
	return sb.String(), tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// buildParticipantPicker renders the known-contacts selection step of the
// pool creation dialog
func buildParticipantPicker(draft *createDraft) (string, tgbotapi.InlineKeyboardMarkup) {
	var sb strings.Builder
	sb.WriteString("Кого позвать из прошлых сборов? Отметь участников и нажми «Готово», " +
		"или пропусти этот шаг — тогда укажешь ожидаемое число участников.")

	var rows [][]tgbotapi.InlineKeyboardButton
	for i, u := range draft.Suggested {
		mark := "▫️"
		if draft.Picked[i] {
			mark = "✅"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%s %s", mark, u.DisplayName()), fmt.Sprintf("nf:pick:%d", i)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Готово", "nf:done"),
		tgbotapi.NewInlineKeyboardButtonData("Пропустить", "nf:skip"),
	))
	return sb.String(), tgbotapi.NewInlineKeyboardMarkup(rows...)
}

const helpText = `Я помогаю собирать деньги с группы людей.

/newpool — создать новый сбор
/mypools — мои сборы
/help — эта справка

Создай сбор, отправь друзьям ссылку, и я буду отмечать, кто уже внес деньги.`
