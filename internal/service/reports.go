package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Ettore000/RoccaMint/internal/chart"
	"github.com/Ettore000/RoccaMint/internal/models"
	"github.com/Ettore000/RoccaMint/internal/plan"
	"github.com/Ettore000/RoccaMint/pkg/utils"
	"go.uber.org/zap"
)

var weekdayLabels = [7]string{"Lun", "Mar", "Mer", "Gio", "Ven", "Sab", "Dom"}

// FireDueReminders runs on every minute boundary. The plan is reloaded
// from the active mode on each tick, so a block dropped by a mode change
// never fires.
func (s *Service) FireDueReminders(ctx context.Context, now time.Time) {
	now = now.In(s.loc)
	hhmm := now.Format("15:04")

	blocks := s.plans.Blocks(s.planMode(ctx))
	block, ok := plan.BlockAt(blocks, hhmm)
	if !ok {
		return
	}

	text := block.Label
	if next, ok := plan.NextAfter(blocks, block.Time); ok {
		text = fmt.Sprintf("%s\n\n⏳ Hai tempo fino alle *%s*, poi *%s*.", block.Label, next.Time, next.Label)
	}

	chats, err := s.repo.GetActiveChats(ctx)
	if err != nil {
		zap.S().Error("get active chats for reminder", zap.Error(err))
		return
	}

	isStudy := strings.Contains(block.Label, studyKeyword)
	for _, chat := range chats {
		if err := s.notifier.SendText(chat.ChatID, text); err != nil {
			zap.S().Error("send reminder", zap.Error(err), zap.Int64("chat_id", chat.ChatID))
			continue
		}
		zap.S().Info("reminder sent", zap.Int64("chat_id", chat.ChatID), zap.String("block", block.Label))

		if !isStudy {
			continue
		}

		err := s.notifier.SendYesNo(chat.ChatID, "Stai studiando?", CallbackStudyYes, CallbackStudyNo)
		if err != nil {
			zap.S().Error("send study prompt", zap.Error(err), zap.Int64("chat_id", chat.ChatID))
			continue
		}
		s.setPendingConfirmation(chat.ChatID, block.Label, now)
	}
}

// MiddayCheck tells each chat how the first half of the day went.
func (s *Service) MiddayCheck(ctx context.Context) {
	chats, err := s.repo.GetActiveChats(ctx)
	if err != nil {
		zap.S().Error("get active chats for midday check", zap.Error(err))
		return
	}

	today := s.now().In(s.loc)
	for _, chat := range chats {
		total, err := s.DailyTotal(ctx, chat.ChatID, today)
		if err != nil {
			zap.S().Error("midday total", zap.Error(err), zap.Int64("chat_id", chat.ChatID))
			continue
		}

		var text string
		if total > 0 {
			h, m := utils.SplitMinutes(total)
			text = fmt.Sprintf("⏰ È già passata metà giornata e tu hai studiato %dh %dm.", h, m)
		} else {
			text = "⏰ È già passata metà giornata e non hai ancora studiato! 😱"
		}
		s.sendText(chat.ChatID, text)
	}
}

// SendDailyChart renders today's minutes per hour of day and sends it
// to every chat with activity. Chats with an empty day are skipped.
func (s *Service) SendDailyChart(ctx context.Context) {
	chats, err := s.repo.GetActiveChats(ctx)
	if err != nil {
		zap.S().Error("get active chats for daily chart", zap.Error(err))
		return
	}

	today := s.now().In(s.loc)
	from, to := utils.DayRange(today)

	for _, chat := range chats {
		sessions, err := s.repo.SessionsInRange(ctx, chat.ChatID, from, to)
		if err != nil {
			zap.S().Error("daily chart sessions", zap.Error(err), zap.Int64("chat_id", chat.ChatID))
			continue
		}

		points, total := hourlyPoints(sessions)
		if total == 0 {
			zap.S().Info("no study activity today, skipping daily chart", zap.Int64("chat_id", chat.ChatID))
			continue
		}

		title := fmt.Sprintf("Studio oggi (%s) per fasce orarie", today.Format("2006-01-02"))
		image, err := s.render(title, "Ora del giorno", "Minuti di studio", points)
		if err != nil {
			zap.S().Error("render daily chart", zap.Error(err), zap.Int64("chat_id", chat.ChatID))
			continue
		}

		h, m := utils.SplitMinutes(total)
		caption := fmt.Sprintf("📈 Oggi hai studiato *%dh %dm*", h, m)
		if err := s.notifier.SendPhoto(chat.ChatID, image, caption); err != nil {
			zap.S().Error("send daily chart", zap.Error(err), zap.Int64("chat_id", chat.ChatID))
		}
	}
}

// SendWeeklyChart renders the trailing seven days as hours per weekday.
func (s *Service) SendWeeklyChart(ctx context.Context) {
	chats, err := s.repo.GetActiveChats(ctx)
	if err != nil {
		zap.S().Error("get active chats for weekly chart", zap.Error(err))
		return
	}

	now := s.now().In(s.loc)
	from := utils.StartOfDay(now).AddDate(0, 0, -6)

	for _, chat := range chats {
		sessions, err := s.repo.SessionsInRange(ctx, chat.ChatID, from, now)
		if err != nil {
			zap.S().Error("weekly chart sessions", zap.Error(err), zap.Int64("chat_id", chat.ChatID))
			continue
		}

		points, total := weekdayPoints(sessions)
		if total == 0 {
			zap.S().Info("no study activity this week, skipping weekly chart", zap.Int64("chat_id", chat.ChatID))
			continue
		}

		image, err := s.render("Andamento settimanale studio (ultimi 7 giorni)",
			"Giorno della settimana", "Ore di studio", points)
		if err != nil {
			zap.S().Error("render weekly chart", zap.Error(err), zap.Int64("chat_id", chat.ChatID))
			continue
		}

		h, m := utils.SplitMinutes(total)
		caption := fmt.Sprintf("📊 Ultimi 7 giorni: hai studiato *%dh %dm*", h, m)
		if err := s.notifier.SendPhoto(chat.ChatID, image, caption); err != nil {
			zap.S().Error("send weekly chart", zap.Error(err), zap.Int64("chat_id", chat.ChatID))
		}
	}
}

// SendEveningReports runs at the end of each day and sends the daily
// text total, plus the week/month/year totals when their period closes
// with this day.
func (s *Service) SendEveningReports(ctx context.Context) {
	chats, err := s.repo.GetActiveChats(ctx)
	if err != nil {
		zap.S().Error("get active chats for evening report", zap.Error(err))
		return
	}

	now := s.now().In(s.loc)
	tomorrow := utils.StartOfDay(now).AddDate(0, 0, 1)
	weekCloses := tomorrow.Weekday() == time.Monday
	monthCloses := tomorrow.Day() == 1
	yearCloses := monthCloses && tomorrow.Month() == time.January

	type period struct {
		prefix string
		total  func(context.Context, int64, time.Time) (float64, error)
		send   bool
	}
	periods := []period{
		{"Oggi hai studiato", s.DailyTotal, true},
		{"Questa settimana hai studiato", s.WeeklyTotal, weekCloses},
		{"Questo mese hai studiato", s.MonthlyTotal, monthCloses},
		{"Quest'anno hai studiato", s.YearlyTotal, yearCloses},
	}

	for _, chat := range chats {
		for _, p := range periods {
			if !p.send {
				continue
			}

			total, err := p.total(ctx, chat.ChatID, now)
			if err != nil {
				zap.S().Error("evening report total", zap.Error(err), zap.Int64("chat_id", chat.ChatID))
				continue
			}

			h, m := utils.SplitMinutes(total)
			s.sendText(chat.ChatID, fmt.Sprintf("%s %d ore e %d minuti", p.prefix, h, m))
		}
	}
}

// hourlyPoints buckets session minutes by hour of day, 00 through 23.
func hourlyPoints(sessions []*models.Session) ([]chart.Point, float64) {
	points := make([]chart.Point, 24)
	for h := range points {
		points[h].Label = fmt.Sprintf("%02d", h)
	}

	total := 0.0
	for _, session := range sessions {
		points[session.StartedAt.Hour()].Value += session.Minutes
		total += session.Minutes
	}

	return points, total
}

// weekdayPoints buckets session hours by weekday, Monday first.
func weekdayPoints(sessions []*models.Session) ([]chart.Point, float64) {
	points := make([]chart.Point, 7)
	for i := range points {
		points[i].Label = weekdayLabels[i]
	}

	total := 0.0
	for _, session := range sessions {
		idx := (int(session.StartedAt.Weekday()) + 6) % 7
		points[idx].Value += session.Minutes / 60
		total += session.Minutes
	}

	return points, total
}
