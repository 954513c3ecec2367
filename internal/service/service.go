package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Ettore000/RoccaMint/internal/chart"
	"github.com/Ettore000/RoccaMint/internal/models"
	"github.com/Ettore000/RoccaMint/internal/plan"
	"github.com/Ettore000/RoccaMint/internal/service/tracker"
	"github.com/Ettore000/RoccaMint/pkg/utils"
	"go.uber.org/zap"
)

// Confirmations always log a whole nominal block or nothing, never a
// measured duration.
const confirmQuantum = 30.0

// Consecutive zero-minute confirmations in one day before a lighter plan
// is proposed.
const missStreakThreshold = 3

// Blocks whose label contains this word trigger the study confirmation.
const studyKeyword = "Studio"

// Callback payloads for the inline yes/no keyboards.
const (
	CallbackStudyYes = "scoring_si"
	CallbackStudyNo  = "scoring_no"
	CallbackAdaptYes = "adatta_si"
	CallbackAdaptNo  = "adatta_no"
	CallbackUndoYes  = "annulla_si"
	CallbackUndoNo   = "annulla_no"
)

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNoPendingUndo = errors.New("no pending undo")
)

type Repository interface {
	AppendSession(ctx context.Context, session *models.Session) error
	SumMinutes(ctx context.Context, chatID int64, from, to time.Time) (float64, error)
	SessionsInRange(ctx context.Context, chatID int64, from, to time.Time) ([]*models.Session, error)
	LastSession(ctx context.Context, chatID int64) (*models.Session, error)
	RemoveSession(ctx context.Context, session *models.Session) error

	RegisterChat(ctx context.Context, chatID int64, username string) error
	SetChatActive(ctx context.Context, chatID int64, active bool) (bool, error)
	GetActiveChats(ctx context.Context) ([]*models.Chat, error)

	GetPlanMode(ctx context.Context) (models.PlanMode, error)
	SetPlanMode(ctx context.Context, mode models.PlanMode) error
}

// Notifier is the outbound half of the chat transport.
type Notifier interface {
	SendText(chatID int64, text string) error
	SendYesNo(chatID int64, text, yesData, noData string) error
	SendPhoto(chatID int64, image []byte, caption string) error
}

type renderFunc func(title, xLabel, yLabel string, points []chart.Point) ([]byte, error)

type Service struct {
	repo     Repository
	plans    *plan.Store
	notifier Notifier
	tracker  *tracker.Tracker
	loc      *time.Location

	render renderFunc
	now    func() time.Time

	mu             sync.Mutex
	pendingConfirm map[int64]models.PendingConfirmation
	pendingUndo    map[int64]models.Session
}

func NewService(repo Repository, plans *plan.Store, notifier Notifier, loc *time.Location) *Service {
	return &Service{
		repo:           repo,
		plans:          plans,
		notifier:       notifier,
		tracker:        tracker.New(),
		loc:            loc,
		render:         chart.RenderLine,
		now:            time.Now,
		pendingConfirm: make(map[int64]models.PendingConfirmation),
		pendingUndo:    make(map[int64]models.Session),
	}
}

// Now is the current instant in the configured study timezone. Every
// day boundary and wall-clock shown to the user derives from it.
func (s *Service) Now() time.Time {
	return s.now().In(s.loc)
}

// --- chat registry ---

func (s *Service) RegisterChat(ctx context.Context, chatID int64, username string) error {
	if err := s.repo.RegisterChat(ctx, chatID, username); err != nil {
		return fmt.Errorf("register chat (chat_id: %d): %w", chatID, err)
	}

	zap.S().Info("chat registered", zap.Int64("chat_id", chatID), zap.String("username", username))
	return nil
}

func (s *Service) PauseReminders(ctx context.Context, chatID int64) (bool, error) {
	return s.repo.SetChatActive(ctx, chatID, false)
}

func (s *Service) ResumeReminders(ctx context.Context, chatID int64) (bool, error) {
	return s.repo.SetChatActive(ctx, chatID, true)
}

// --- totals ---

func (s *Service) DailyTotal(ctx context.Context, chatID int64, day time.Time) (float64, error) {
	from, to := utils.DayRange(day)
	return s.repo.SumMinutes(ctx, chatID, from, to)
}

func (s *Service) WeeklyTotal(ctx context.Context, chatID int64, day time.Time) (float64, error) {
	from, to := utils.WeekRange(day)
	return s.repo.SumMinutes(ctx, chatID, from, to)
}

func (s *Service) MonthlyTotal(ctx context.Context, chatID int64, day time.Time) (float64, error) {
	from, to := utils.MonthRange(day)
	return s.repo.SumMinutes(ctx, chatID, from, to)
}

func (s *Service) YearlyTotal(ctx context.Context, chatID int64, day time.Time) (float64, error) {
	from, to := utils.YearRange(day)
	return s.repo.SumMinutes(ctx, chatID, from, to)
}

// --- manual entries and the timer ---

func (s *Service) AddManualMinutes(ctx context.Context, chatID int64, minutes float64) error {
	now := s.now().In(s.loc)
	session := &models.Session{
		ChatID:    chatID,
		StartedAt: now,
		EndedAt:   now,
		Minutes:   minutes,
		CreatedAt: now,
	}

	if err := s.repo.AppendSession(ctx, session); err != nil {
		return fmt.Errorf("append manual session (chat_id: %d, minutes: %g): %w", chatID, minutes, err)
	}
	return nil
}

// StartTimer begins a manual session. False when one is already running;
// the original start time is kept.
func (s *Service) StartTimer(chatID int64) bool {
	return s.tracker.Start(chatID)
}

// StopTimer closes the running session and appends it to the log.
// logged is false when no session was running, which logs nothing and
// returns zero minutes.
func (s *Service) StopTimer(ctx context.Context, chatID int64) (minutes float64, logged bool, err error) {
	start, end, minutes, ok := s.tracker.Stop(chatID)
	if !ok {
		return 0, false, nil
	}

	session := &models.Session{
		ChatID:    chatID,
		StartedAt: start,
		EndedAt:   end,
		Minutes:   minutes,
		CreatedAt: end,
	}

	if err := s.repo.AppendSession(ctx, session); err != nil {
		return minutes, true, fmt.Errorf("append timer session (chat_id: %d, minutes: %g): %w", chatID, minutes, err)
	}

	return minutes, true, nil
}

func (s *Service) TimerElapsed(chatID int64) (int, bool) {
	return s.tracker.Elapsed(chatID)
}

// --- plan ---

// planMode reads the active mode, falling back to normal so a broken
// state row never takes the scheduler down.
func (s *Service) planMode(ctx context.Context) models.PlanMode {
	mode, err := s.repo.GetPlanMode(ctx)
	if err != nil {
		zap.S().Warn("get plan mode, using normal", zap.Error(err))
		return models.ModeNormal
	}
	return mode
}

// CurrentBlock returns the block in progress and the upcoming one for
// the active plan, either of which may be nil.
func (s *Service) CurrentBlock(ctx context.Context) (current, next *models.PlanBlock) {
	blocks := s.plans.Blocks(s.planMode(ctx))
	return plan.CurrentAt(blocks, s.now().In(s.loc))
}

func (s *Service) SetPlanMode(ctx context.Context, mode models.PlanMode) error {
	if err := s.repo.SetPlanMode(ctx, mode); err != nil {
		return fmt.Errorf("set plan mode (mode: %s): %w", mode, err)
	}

	zap.S().Info("plan mode set", zap.String("mode", string(mode)))
	return nil
}

// ApplyPlanDowngrade resolves a downgrade proposal. Accepting advances
// the mode one step (clamped at super_reduced); declining keeps it.
// Either way the user gets a confirmation message.
func (s *Service) ApplyPlanDowngrade(ctx context.Context, chatID int64, accepted bool) error {
	if !accepted {
		s.sendText(chatID, "Manteniamo piano attuale ✔️")
		return nil
	}

	next := s.planMode(ctx).Next()
	if err := s.repo.SetPlanMode(ctx, next); err != nil {
		return fmt.Errorf("apply plan downgrade (chat_id: %d, mode: %s): %w", chatID, next, err)
	}

	zap.S().Info("plan downgraded", zap.Int64("chat_id", chatID), zap.String("mode", string(next)))
	s.sendText(chatID, fmt.Sprintf("Piano cambiato a %s ✔️", strings.ToUpper(next.Label())))
	return nil
}

// --- confirmations and the miss streak ---

// Confirm reconciles a yes/no reply to a study prompt into the log.
// Without a pending prompt it is a warned no-op. A yes logs the fixed
// 30-minute quantum, a no logs zero; the confirmation instant is stored
// as both start and end on purpose, the duration is nominal.
func (s *Service) Confirm(ctx context.Context, chatID int64, answeredYes bool) error {
	s.mu.Lock()
	_, ok := s.pendingConfirm[chatID]
	delete(s.pendingConfirm, chatID)
	s.mu.Unlock()

	if !ok {
		zap.S().Warn("confirmation with no pending prompt", zap.Int64("chat_id", chatID))
		return nil
	}

	minutes := 0.0
	if answeredYes {
		minutes = confirmQuantum
	}

	now := s.now().In(s.loc)
	session := &models.Session{
		ChatID:    chatID,
		StartedAt: now,
		EndedAt:   now,
		Minutes:   minutes,
		CreatedAt: now,
	}

	if err := s.repo.AppendSession(ctx, session); err != nil {
		return fmt.Errorf("append confirmed session (chat_id: %d, minutes: %g): %w", chatID, minutes, err)
	}

	s.evaluateMissStreak(ctx, chatID)
	return nil
}

// TodayZeroStreak counts consecutive zero-minute records ending at the
// most recent entry of the current day. Derived from the log on every
// call; there is no separate counter to drift.
func (s *Service) TodayZeroStreak(ctx context.Context, chatID int64) (int, error) {
	from, to := utils.DayRange(s.now().In(s.loc))
	sessions, err := s.repo.SessionsInRange(ctx, chatID, from, to)
	if err != nil {
		return 0, fmt.Errorf("query today's sessions (chat_id: %d): %w", chatID, err)
	}

	return trailingZeroStreak(sessions), nil
}

func trailingZeroStreak(sessions []*models.Session) int {
	streak := 0
	for i := len(sessions) - 1; i >= 0; i-- {
		if sessions[i].Minutes != 0 {
			break
		}
		streak++
	}
	return streak
}

// evaluateMissStreak proposes a lighter plan after enough empty blocks
// in one day. It only proposes; the mode changes when the user accepts.
func (s *Service) evaluateMissStreak(ctx context.Context, chatID int64) {
	streak, err := s.TodayZeroStreak(ctx, chatID)
	if err != nil {
		zap.S().Error("evaluate miss streak", zap.Error(err), zap.Int64("chat_id", chatID))
		return
	}

	if streak < missStreakThreshold {
		return
	}

	err = s.notifier.SendYesNo(chatID,
		"3 blocchi vuoti! Vuoi un piano più leggero domani?",
		CallbackAdaptYes, CallbackAdaptNo)
	if err != nil {
		zap.S().Error("send downgrade proposal", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}

// --- undo ---

// RequestUndo proposes the most recent record for deletion. The proposal
// replaces any unresolved previous one.
func (s *Service) RequestUndo(ctx context.Context, chatID int64) (*models.Session, error) {
	last, err := s.repo.LastSession(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("get last session (chat_id: %d): %w", chatID, err)
	}
	if last == nil {
		return nil, ErrNothingToUndo
	}

	s.mu.Lock()
	s.pendingUndo[chatID] = *last
	s.mu.Unlock()

	return last, nil
}

// ConfirmUndo resolves a pending undo. Accepting removes exactly the
// proposed record and returns it; declining returns nil. Both consume
// the pending entry.
func (s *Service) ConfirmUndo(ctx context.Context, chatID int64, accept bool) (*models.Session, error) {
	s.mu.Lock()
	pending, ok := s.pendingUndo[chatID]
	delete(s.pendingUndo, chatID)
	s.mu.Unlock()

	if !ok {
		return nil, ErrNoPendingUndo
	}
	if !accept {
		return nil, nil
	}

	if err := s.repo.RemoveSession(ctx, &pending); err != nil {
		return nil, fmt.Errorf("remove session (chat_id: %d): %w", chatID, err)
	}

	return &pending, nil
}

// --- helpers ---

func (s *Service) sendText(chatID int64, text string) {
	if err := s.notifier.SendText(chatID, text); err != nil {
		zap.S().Error("send message", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}

func (s *Service) setPendingConfirmation(chatID int64, label string, at time.Time) {
	s.mu.Lock()
	s.pendingConfirm[chatID] = models.PendingConfirmation{Label: label, SentAt: at}
	s.mu.Unlock()
}
