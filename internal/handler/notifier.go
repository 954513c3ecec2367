package handler

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier adapts the bot API to the outbound transport the service
// expects. Unlike the handler's own helpers it returns errors, so the
// service can decide per recipient what a failed send means.
type Notifier struct {
	api *tgbotapi.BotAPI
}

func NewNotifier(api *tgbotapi.BotAPI) *Notifier {
	return &Notifier{api: api}
}

func (n *Notifier) SendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("send message (chat_id: %d): %w", chatID, err)
	}
	return nil
}

func (n *Notifier) SendYesNo(chatID int64, text, yesData, noData string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Sì", yesData),
			tgbotapi.NewInlineKeyboardButtonData("No", noData),
		),
	)
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("send yes/no prompt (chat_id: %d): %w", chatID, err)
	}
	return nil
}

func (n *Notifier) SendPhoto(chatID int64, image []byte, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "report.png", Bytes: image})
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.api.Send(photo); err != nil {
		return fmt.Errorf("send photo (chat_id: %d): %w", chatID, err)
	}
	return nil
}
