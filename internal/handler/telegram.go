package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Ettore000/RoccaMint/internal/models"
	"github.com/Ettore000/RoccaMint/internal/repository"
	"github.com/Ettore000/RoccaMint/internal/service"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type Service interface {
	Now() time.Time

	RegisterChat(ctx context.Context, chatID int64, username string) error
	PauseReminders(ctx context.Context, chatID int64) (bool, error)
	ResumeReminders(ctx context.Context, chatID int64) (bool, error)

	DailyTotal(ctx context.Context, chatID int64, day time.Time) (float64, error)
	AddManualMinutes(ctx context.Context, chatID int64, minutes float64) error
	CurrentBlock(ctx context.Context) (current, next *models.PlanBlock)

	StartTimer(chatID int64) bool
	StopTimer(ctx context.Context, chatID int64) (minutes float64, logged bool, err error)
	TimerElapsed(chatID int64) (int, bool)

	Confirm(ctx context.Context, chatID int64, answeredYes bool) error
	ApplyPlanDowngrade(ctx context.Context, chatID int64, accepted bool) error
	SetPlanMode(ctx context.Context, mode models.PlanMode) error

	RequestUndo(ctx context.Context, chatID int64) (*models.Session, error)
	ConfirmUndo(ctx context.Context, chatID int64, accept bool) (*models.Session, error)

	SendWeeklyChart(ctx context.Context)
}

type TelegramHandler struct {
	api     *tgbotapi.BotAPI
	service Service
}

func NewTelegramHandler(api *tgbotapi.BotAPI, service Service) *TelegramHandler {
	return &TelegramHandler{
		api:     api,
		service: service,
	}
}

// Start consumes the long-poll update stream until ctx is cancelled.
func (h *TelegramHandler) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := h.api.GetUpdatesChan(u)

	zap.S().Info("bot started", zap.String("username", h.api.Self.UserName))

	go func() {
		<-ctx.Done()
		h.api.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.Message == nil && update.CallbackQuery == nil {
			continue
		}

		h.handleUpdate(update)
	}
}

func (h *TelegramHandler) handleUpdate(update tgbotapi.Update) {
	ctx := context.Background()

	if update.Message != nil && update.Message.IsCommand() {
		if update.Message.From == nil {
			zap.S().Warn("received command from nil user")
			return
		}
		h.handleCommand(ctx, update)
	} else if update.Message != nil {
		h.sendMessage(update.Message.Chat.ID, "Non capisco questo messaggio. Usa /help per i comandi disponibili.")
	} else if update.CallbackQuery != nil {
		if update.CallbackQuery.From == nil {
			zap.S().Warn("received callback from nil user")
			return
		}
		h.handleCallback(ctx, update)
	}
}

func (h *TelegramHandler) handleCommand(ctx context.Context, update tgbotapi.Update) {
	switch update.Message.Command() {
	case "start":
		h.handleStart(ctx, update)
	case "ferma":
		h.handleStop(ctx, update)
	case "riprendi":
		h.handleResume(ctx, update)
	case "status":
		h.handleStatus(ctx, update)
	case "attuale":
		h.handleCurrent(ctx, update)
	case "aggiungi":
		h.handleAddMinutes(ctx, update)
	case "annulla":
		h.handleUndo(ctx, update)
	case "piano":
		h.handlePlanMode(ctx, update)
	case "inizia":
		h.handleTimerStart(ctx, update)
	case "termina":
		h.handleTimerStop(ctx, update)
	case "timer":
		h.handleTimerStatus(ctx, update)
	case "test_settimanale":
		h.handleWeeklyTest(ctx, update)
	case "help":
		h.handleHelp(ctx, update)
	default:
		h.sendMessage(update.Message.Chat.ID, "Comando sconosciuto. Usa /help")
	}
}

func (h *TelegramHandler) handleStart(ctx context.Context, update tgbotapi.Update) {
	chatID := update.Message.Chat.ID

	if err := h.service.RegisterChat(ctx, chatID, update.Message.From.UserName); err != nil {
		zap.S().Error("register chat", zap.Error(err), zap.Int64("chat_id", chatID))
		h.sendMessage(chatID, "Si è verificato un errore. Riprova più tardi.")
		return
	}

	h.sendMessage(chatID, "Bot attivo. Ti invierò i reminder per lo studio.")
}

func (h *TelegramHandler) handleStop(ctx context.Context, update tgbotapi.Update) {
	chatID := update.Message.Chat.ID

	changed, err := h.service.PauseReminders(ctx, chatID)
	if err != nil {
		zap.S().Error("pause reminders", zap.Error(err), zap.Int64("chat_id", chatID))
		h.sendMessage(chatID, "Si è verificato un errore. Riprova più tardi.")
		return
	}

	if changed {
		h.sendMessage(chatID, "✅ Reminder interrotti. Usa /riprendi per riattivarli.")
	} else {
		h.sendMessage(chatID, "I reminder erano già interrotti.")
	}
}

func (h *TelegramHandler) handleResume(ctx context.Context, update tgbotapi.Update) {
	chatID := update.Message.Chat.ID

	changed, err := h.service.ResumeReminders(ctx, chatID)
	if err != nil {
		zap.S().Error("resume reminders", zap.Error(err), zap.Int64("chat_id", chatID))
		h.sendMessage(chatID, "Si è verificato un errore. Riprova più tardi.")
		return
	}

	if changed {
		h.sendMessage(chatID, "✅ Reminder riattivati.")
	} else {
		h.sendMessage(chatID, "I reminder erano già attivi.")
	}
}

func (h *TelegramHandler) handleStatus(ctx context.Context, update tgbotapi.Update) {
	chatID := update.Message.Chat.ID

	total, err := h.service.DailyTotal(ctx, chatID, h.service.Now())
	if err != nil {
		zap.S().Error("daily total", zap.Error(err), zap.Int64("chat_id", chatID))
		h.sendMessage(chatID, "Si è verificato un errore. Riprova più tardi.")
		return
	}

	if total == 0 {
		h.sendMessage(chatID, "Oggi non hai studiato nulla. 🥲")
		return
	}

	hours := int(total) / 60
	minutes := int(total) % 60
	h.sendMessage(chatID, fmt.Sprintf("Hai studiato %dh %dm oggi. 📚", hours, minutes))
}

func (h *TelegramHandler) handleCurrent(ctx context.Context, update tgbotapi.Update) {
	chatID := update.Message.Chat.ID
	hhmm := h.service.Now().Format("15:04")

	current, next := h.service.CurrentBlock(ctx)

	var text string
	switch {
	case current != nil && next != nil:
		text = fmt.Sprintf("Sono le *%s* - in corso: _%s_\n\n⏳ *Prossimo* alle *%s*: _%s_",
			hhmm, current.Label, next.Time, next.Label)
	case current != nil:
		text = fmt.Sprintf("Sono le *%s* - in corso: _%s_", hhmm, current.Label)
	case next != nil:
		text = fmt.Sprintf("Sono le *%s* - ancora nessun blocco iniziato.\n\n⏳ *Prossimo* alle *%s*: _%s_",
			hhmm, next.Time, next.Label)
	default:
		text = fmt.Sprintf("Sono le *%s* - non ci sono blocchi programmati per oggi.", hhmm)
	}

	h.sendMessage(chatID, text)
}

func (h *TelegramHandler) handleAddMinutes(ctx context.Context, update tgbotapi.Update) {
	chatID := update.Message.Chat.ID

	parts := strings.Fields(update.Message.Text)
	if len(parts) < 2 {
		h.sendMessage(chatID, "Uso: /aggiungi <minuti>, es. /aggiungi 20")
		return
	}

	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes <= 0 {
		h.sendMessage(chatID, "Uso: /aggiungi <minuti>, es. /aggiungi 20")
		return
	}

	if err := h.service.AddManualMinutes(ctx, chatID, float64(minutes)); err != nil {
		zap.S().Error("add manual minutes", zap.Error(err), zap.Int64("chat_id", chatID), zap.Int("minutes", minutes))
		h.sendMessage(chatID, "Si è verificato un errore. Riprova più tardi.")
		return
	}

	h.sendMessage(chatID, fmt.Sprintf("👍 Aggiunti manualmente %d minuti di studio.", minutes))
}

func (h *TelegramHandler) handleUndo(ctx context.Context, update tgbotapi.Update) {
	chatID := update.Message.Chat.ID

	last, err := h.service.RequestUndo(ctx, chatID)
	if errors.Is(err, service.ErrNothingToUndo) {
		h.sendMessage(chatID, "Nessuna registrazione da annullare.")
		return
	}
	if err != nil {
		zap.S().Error("request undo", zap.Error(err), zap.Int64("chat_id", chatID))
		h.sendMessage(chatID, "Si è verificato un errore. Riprova più tardi.")
		return
	}

	text := fmt.Sprintf("Confermi di cancellare questa registrazione?\n`%s`", last)
	h.sendYesNo(chatID, text, service.CallbackUndoYes, service.CallbackUndoNo)
}

func (h *TelegramHandler) handlePlanMode(ctx context.Context, update tgbotapi.Update) {
	chatID := update.Message.Chat.ID

	parts := strings.Fields(update.Message.Text)
	if len(parts) < 2 {
		h.sendMessage(chatID, "Uso: /piano normale|ridotto|superridotto")
		return
	}

	mode, err := models.ParsePlanMode(parts[1])
	if err != nil {
		h.sendMessage(chatID, "Uso: /piano normale|ridotto|superridotto")
		return
	}

	if err := h.service.SetPlanMode(ctx, mode); err != nil {
		zap.S().Error("set plan mode", zap.Error(err), zap.Int64("chat_id", chatID), zap.String("mode", string(mode)))
		h.sendMessage(chatID, "Si è verificato un errore. Riprova più tardi.")
		return
	}

	h.sendMessage(chatID, fmt.Sprintf("Piano impostato su *%s*", strings.ToUpper(mode.Label())))
}

func (h *TelegramHandler) handleTimerStart(ctx context.Context, update tgbotapi.Update) {
	chatID := update.Message.Chat.ID

	if !h.service.StartTimer(chatID) {
		h.sendMessage(chatID, "C'è già una sessione in corso. Usa /termina per chiuderla.")
		return
	}

	h.sendMessage(chatID, "▶️ Sessione di studio avviata. Usa /termina quando hai finito.")
}

func (h *TelegramHandler) handleTimerStop(ctx context.Context, update tgbotapi.Update) {
	chatID := update.Message.Chat.ID

	minutes, logged, err := h.service.StopTimer(ctx, chatID)
	if err != nil {
		zap.S().Error("stop timer", zap.Error(err), zap.Int64("chat_id", chatID))
		h.sendMessage(chatID, "Si è verificato un errore. Riprova più tardi.")
		return
	}

	if !logged {
		h.sendMessage(chatID, "Nessuna sessione in corso.")
		return
	}

	h.sendMessage(chatID, fmt.Sprintf("⏹️ Ho studiato %d minuti.", int(minutes)))
}

func (h *TelegramHandler) handleTimerStatus(ctx context.Context, update tgbotapi.Update) {
	chatID := update.Message.Chat.ID

	elapsed, running := h.service.TimerElapsed(chatID)
	if !running {
		h.sendMessage(chatID, "Nessuna sessione in corso.")
		return
	}

	h.sendMessage(chatID, fmt.Sprintf("⏱️ Sessione in corso da %d minuti.", elapsed))
}

func (h *TelegramHandler) handleWeeklyTest(ctx context.Context, update tgbotapi.Update) {
	zap.S().Info("weekly chart requested manually", zap.Int64("chat_id", update.Message.Chat.ID))
	h.service.SendWeeklyChart(ctx)
	h.sendMessage(update.Message.Chat.ID, "✅ Grafico settimanale generato.")
}

func (h *TelegramHandler) handleHelp(ctx context.Context, update tgbotapi.Update) {
	text := `📚 *RoccaMint*

Comandi disponibili:

/start - Attiva i reminder per questa chat
/ferma - Interrompi i reminder
/riprendi - Riattiva i reminder
/status - Minuti studiati oggi
/attuale - Blocco del piano in corso
/aggiungi <minuti> - Registra minuti manualmente
/annulla - Annulla l'ultima registrazione
/piano <modalità> - Imposta il piano (normale, ridotto, superridotto)
/inizia - Avvia una sessione col timer
/termina - Chiudi la sessione e registrala
/timer - Minuti della sessione in corso
/test_settimanale - Genera subito il grafico settimanale
/help - Questa guida`

	h.sendMessage(update.Message.Chat.ID, text)
}

func (h *TelegramHandler) handleCallback(ctx context.Context, update tgbotapi.Update) {
	callback := update.CallbackQuery
	data := callback.Data

	if callback.Message == nil {
		zap.S().Warn("callback without message", zap.String("data", data))
		return
	}
	chatID := callback.Message.Chat.ID

	switch data {
	case service.CallbackStudyYes, service.CallbackStudyNo:
		h.handleStudyAnswer(ctx, callback, data == service.CallbackStudyYes)
	case service.CallbackAdaptYes, service.CallbackAdaptNo:
		h.handleAdaptAnswer(ctx, callback, data == service.CallbackAdaptYes)
	case service.CallbackUndoYes, service.CallbackUndoNo:
		h.handleUndoAnswer(ctx, callback, data == service.CallbackUndoYes)
	default:
		zap.S().Warn("unknown callback data", zap.String("data", data), zap.Int64("chat_id", chatID))
		h.sendMessage(chatID, "Comando sconosciuto. Usa /help")
	}

	// Always answer the callback to clear the loading indicator.
	callbackConfig := tgbotapi.NewCallback(callback.ID, "")
	if _, err := h.api.Request(callbackConfig); err != nil {
		zap.S().Error("send callback answer", zap.Error(err), zap.String("callback_id", callback.ID))
	}
}

func (h *TelegramHandler) handleStudyAnswer(ctx context.Context, callback *tgbotapi.CallbackQuery, answeredYes bool) {
	chatID := callback.Message.Chat.ID

	if err := h.service.Confirm(ctx, chatID, answeredYes); err != nil {
		zap.S().Error("confirm study answer", zap.Error(err), zap.Int64("chat_id", chatID))
		h.sendMessage(chatID, "Si è verificato un errore. Riprova più tardi.")
		return
	}

	answer := "NO"
	if answeredYes {
		answer = "SÌ"
	}
	h.editMessage(chatID, callback.Message.MessageID, fmt.Sprintf("Risposta registrata: %s", answer))
}

func (h *TelegramHandler) handleAdaptAnswer(ctx context.Context, callback *tgbotapi.CallbackQuery, accepted bool) {
	chatID := callback.Message.Chat.ID

	if err := h.service.ApplyPlanDowngrade(ctx, chatID, accepted); err != nil {
		zap.S().Error("apply plan downgrade", zap.Error(err), zap.Int64("chat_id", chatID))
		h.sendMessage(chatID, "Si è verificato un errore. Riprova più tardi.")
	}
}

func (h *TelegramHandler) handleUndoAnswer(ctx context.Context, callback *tgbotapi.CallbackQuery, accept bool) {
	chatID := callback.Message.Chat.ID

	removed, err := h.service.ConfirmUndo(ctx, chatID, accept)
	if errors.Is(err, service.ErrNoPendingUndo) {
		h.editMessage(chatID, callback.Message.MessageID, "Nessuna operazione in sospeso.")
		return
	}
	if errors.Is(err, repository.ErrSessionNotFound) {
		h.editMessage(chatID, callback.Message.MessageID, "Registrazione non trovata, niente da cancellare.")
		return
	}
	if err != nil {
		zap.S().Error("confirm undo", zap.Error(err), zap.Int64("chat_id", chatID))
		h.sendMessage(chatID, "Si è verificato un errore. Riprova più tardi.")
		return
	}

	if removed == nil {
		h.editMessage(chatID, callback.Message.MessageID, "❌ Annullamento operazione.")
		return
	}

	h.editMessage(chatID, callback.Message.MessageID, fmt.Sprintf("🗑️ Registrazione cancellata:\n`%s`", removed))
}

func (h *TelegramHandler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := h.api.Send(msg); err != nil {
		zap.S().Error("send message", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}

func (h *TelegramHandler) sendYesNo(chatID int64, text, yesData, noData string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Sì", yesData),
			tgbotapi.NewInlineKeyboardButtonData("No", noData),
		),
	)
	if _, err := h.api.Send(msg); err != nil {
		zap.S().Error("send yes/no prompt", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}

func (h *TelegramHandler) editMessage(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	if _, err := h.api.Send(edit); err != nil {
		zap.S().Error("edit message", zap.Error(err), zap.Int64("chat_id", chatID), zap.Int("message_id", messageID))
	}
}
