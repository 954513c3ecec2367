package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ettore000/RoccaMint/internal/chart"
	"github.com/Ettore000/RoccaMint/internal/models"
	"github.com/Ettore000/RoccaMint/internal/plan"
	"github.com/Ettore000/RoccaMint/internal/repository"
)

type fakeRepository struct {
	sessions []*models.Session
	nextID   int64
	chats    []*models.Chat
	mode     models.PlanMode
	modeErr  error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{nextID: 1, mode: models.ModeNormal}
}

func (r *fakeRepository) AppendSession(_ context.Context, session *models.Session) error {
	copied := *session
	copied.ID = r.nextID
	r.nextID++
	r.sessions = append(r.sessions, &copied)
	return nil
}

func (r *fakeRepository) SumMinutes(_ context.Context, chatID int64, from, to time.Time) (float64, error) {
	total := 0.0
	for _, s := range r.sessions {
		if s.ChatID == chatID && !s.StartedAt.Before(from) && s.StartedAt.Before(to) {
			total += s.Minutes
		}
	}
	return total, nil
}

func (r *fakeRepository) SessionsInRange(_ context.Context, chatID int64, from, to time.Time) ([]*models.Session, error) {
	var out []*models.Session
	for _, s := range r.sessions {
		if s.ChatID == chatID && !s.StartedAt.Before(from) && s.StartedAt.Before(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeRepository) LastSession(_ context.Context, chatID int64) (*models.Session, error) {
	for i := len(r.sessions) - 1; i >= 0; i-- {
		if r.sessions[i].ChatID == chatID {
			return r.sessions[i], nil
		}
	}
	return nil, nil
}

func (r *fakeRepository) RemoveSession(_ context.Context, session *models.Session) error {
	for i, s := range r.sessions {
		if s.SameRecord(*session) {
			r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
			return nil
		}
	}
	return repository.ErrSessionNotFound
}

func (r *fakeRepository) RegisterChat(_ context.Context, chatID int64, username string) error {
	for _, c := range r.chats {
		if c.ChatID == chatID {
			c.Active = true
			return nil
		}
	}
	r.chats = append(r.chats, &models.Chat{ChatID: chatID, Username: username, Active: true})
	return nil
}

func (r *fakeRepository) SetChatActive(_ context.Context, chatID int64, active bool) (bool, error) {
	for _, c := range r.chats {
		if c.ChatID == chatID && c.Active != active {
			c.Active = active
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepository) GetActiveChats(_ context.Context) ([]*models.Chat, error) {
	var out []*models.Chat
	for _, c := range r.chats {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeRepository) GetPlanMode(_ context.Context) (models.PlanMode, error) {
	return r.mode, r.modeErr
}

func (r *fakeRepository) SetPlanMode(_ context.Context, mode models.PlanMode) error {
	r.mode = mode
	return nil
}

type sentYesNo struct {
	chatID  int64
	text    string
	yesData string
	noData  string
}

type sentPhoto struct {
	chatID  int64
	caption string
}

type fakeNotifier struct {
	texts  map[int64][]string
	yesNos []sentYesNo
	photos []sentPhoto
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{texts: make(map[int64][]string)}
}

func (n *fakeNotifier) SendText(chatID int64, text string) error {
	n.texts[chatID] = append(n.texts[chatID], text)
	return nil
}

func (n *fakeNotifier) SendYesNo(chatID int64, text, yesData, noData string) error {
	n.yesNos = append(n.yesNos, sentYesNo{chatID, text, yesData, noData})
	return nil
}

func (n *fakeNotifier) SendPhoto(chatID int64, _ []byte, caption string) error {
	n.photos = append(n.photos, sentPhoto{chatID, caption})
	return nil
}

const testChat int64 = 7

func writeTestPlan(t *testing.T, dir string, mode models.PlanMode, content string) {
	t.Helper()
	path := filepath.Join(dir, "plan_"+string(mode)+".json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestService(t *testing.T) (*Service, *fakeRepository, *fakeNotifier) {
	t.Helper()

	dir := t.TempDir()
	writeTestPlan(t, dir, models.ModeNormal, `{"blocks": [
		{"time": "10:00", "label": "Studio - matematica"},
		{"time": "12:00", "label": "Pausa pranzo"},
		{"time": "15:00", "label": "Studio - fisica"}
	]}`)
	writeTestPlan(t, dir, models.ModeReduced, `{"blocks": [
		{"time": "10:00", "label": "Studio - matematica"}
	]}`)

	repo := newFakeRepository()
	notifier := newFakeNotifier()
	svc := NewService(repo, plan.NewStore(dir), notifier, time.UTC)
	svc.render = func(_, _, _ string, _ []chart.Point) ([]byte, error) {
		return []byte("png"), nil
	}
	return svc, repo, notifier
}

func setClock(svc *Service, at time.Time) {
	svc.now = func() time.Time { return at }
}

func TestConfirmYesLogsQuantum(t *testing.T) {
	svc, repo, _ := newTestService(t)
	at := time.Date(2024, time.March, 13, 10, 5, 0, 0, time.UTC)
	setClock(svc, at)
	svc.setPendingConfirmation(testChat, "Studio - matematica", at)

	require.NoError(t, svc.Confirm(context.Background(), testChat, true))

	require.Len(t, repo.sessions, 1)
	got := repo.sessions[0]
	assert.Equal(t, 30.0, got.Minutes)
	assert.Equal(t, at, got.StartedAt)
	assert.Equal(t, at, got.EndedAt)
}

func TestConfirmNoLogsZero(t *testing.T) {
	svc, repo, _ := newTestService(t)
	at := time.Date(2024, time.March, 13, 10, 5, 0, 0, time.UTC)
	setClock(svc, at)
	svc.setPendingConfirmation(testChat, "Studio - matematica", at)

	require.NoError(t, svc.Confirm(context.Background(), testChat, false))

	require.Len(t, repo.sessions, 1)
	assert.Zero(t, repo.sessions[0].Minutes)
}

func TestConfirmWithoutPendingIsNoOp(t *testing.T) {
	svc, repo, _ := newTestService(t)

	require.NoError(t, svc.Confirm(context.Background(), testChat, true))

	assert.Empty(t, repo.sessions)
}

func TestConfirmConsumesPending(t *testing.T) {
	svc, repo, _ := newTestService(t)
	at := time.Date(2024, time.March, 13, 10, 5, 0, 0, time.UTC)
	setClock(svc, at)
	svc.setPendingConfirmation(testChat, "Studio - matematica", at)

	require.NoError(t, svc.Confirm(context.Background(), testChat, true))
	require.NoError(t, svc.Confirm(context.Background(), testChat, true))

	assert.Len(t, repo.sessions, 1)
}

func TestTrailingZeroStreak(t *testing.T) {
	mk := func(minutes ...float64) []*models.Session {
		out := make([]*models.Session, len(minutes))
		for i, m := range minutes {
			out[i] = &models.Session{Minutes: m}
		}
		return out
	}

	tests := []struct {
		name string
		in   []*models.Session
		want int
	}{
		{"empty", nil, 0},
		{"trailing three", mk(30, 0, 0, 0), 3},
		{"broken by study", mk(0, 30, 0, 0), 2},
		{"all zero", mk(0, 0, 0, 0, 0), 5},
		{"ends with study", mk(0, 0, 30), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, trailingZeroStreak(tt.in))
		})
	}
}

func TestMissStreakProposesDowngrade(t *testing.T) {
	svc, _, notifier := newTestService(t)
	at := time.Date(2024, time.March, 13, 10, 5, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		at = at.Add(30 * time.Minute)
		setClock(svc, at)
		svc.setPendingConfirmation(testChat, "Studio - matematica", at)
		require.NoError(t, svc.Confirm(context.Background(), testChat, false))
	}

	require.Len(t, notifier.yesNos, 1)
	proposal := notifier.yesNos[0]
	assert.Equal(t, testChat, proposal.chatID)
	assert.Equal(t, "3 blocchi vuoti! Vuoi un piano più leggero domani?", proposal.text)
	assert.Equal(t, CallbackAdaptYes, proposal.yesData)
	assert.Equal(t, CallbackAdaptNo, proposal.noData)
}

func TestMissStreakBelowThresholdStaysQuiet(t *testing.T) {
	svc, _, notifier := newTestService(t)
	at := time.Date(2024, time.March, 13, 10, 5, 0, 0, time.UTC)
	setClock(svc, at)

	svc.setPendingConfirmation(testChat, "Studio - matematica", at)
	require.NoError(t, svc.Confirm(context.Background(), testChat, true))

	for i := 0; i < 2; i++ {
		svc.setPendingConfirmation(testChat, "Studio - matematica", at)
		require.NoError(t, svc.Confirm(context.Background(), testChat, false))
	}

	assert.Empty(t, notifier.yesNos)
}

func TestMissStreakResetsAtMidnight(t *testing.T) {
	svc, _, notifier := newTestService(t)

	yesterday := time.Date(2024, time.March, 12, 23, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		setClock(svc, yesterday.Add(time.Duration(i)*time.Minute))
		svc.setPendingConfirmation(testChat, "Studio - matematica", yesterday)
		require.NoError(t, svc.Confirm(context.Background(), testChat, false))
	}

	today := time.Date(2024, time.March, 13, 10, 0, 0, 0, time.UTC)
	setClock(svc, today)
	svc.setPendingConfirmation(testChat, "Studio - matematica", today)
	require.NoError(t, svc.Confirm(context.Background(), testChat, false))

	assert.Empty(t, notifier.yesNos)
}

func TestApplyPlanDowngrade(t *testing.T) {
	svc, repo, notifier := newTestService(t)

	require.NoError(t, svc.ApplyPlanDowngrade(context.Background(), testChat, true))
	assert.Equal(t, models.ModeReduced, repo.mode)
	require.Len(t, notifier.texts[testChat], 1)
	assert.Equal(t, "Piano cambiato a RIDOTTO ✔️", notifier.texts[testChat][0])

	require.NoError(t, svc.ApplyPlanDowngrade(context.Background(), testChat, true))
	assert.Equal(t, models.ModeSuperReduced, repo.mode)

	// Clamped at the lightest plan.
	require.NoError(t, svc.ApplyPlanDowngrade(context.Background(), testChat, true))
	assert.Equal(t, models.ModeSuperReduced, repo.mode)
}

func TestApplyPlanDowngradeDeclined(t *testing.T) {
	svc, repo, notifier := newTestService(t)

	require.NoError(t, svc.ApplyPlanDowngrade(context.Background(), testChat, false))

	assert.Equal(t, models.ModeNormal, repo.mode)
	require.Len(t, notifier.texts[testChat], 1)
	assert.Equal(t, "Manteniamo piano attuale ✔️", notifier.texts[testChat][0])
}

func TestTotalsRespectDayBoundaries(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	add := func(at time.Time, minutes float64) {
		require.NoError(t, repo.AppendSession(ctx, &models.Session{
			ChatID: testChat, StartedAt: at, EndedAt: at, Minutes: minutes,
		}))
	}

	add(time.Date(2024, time.March, 12, 23, 59, 0, 0, time.UTC), 30)
	add(time.Date(2024, time.March, 13, 0, 0, 0, 0, time.UTC), 45)
	add(time.Date(2024, time.March, 13, 23, 59, 0, 0, time.UTC), 15)
	add(time.Date(2024, time.March, 14, 0, 0, 0, 0, time.UTC), 60)

	day := time.Date(2024, time.March, 13, 12, 0, 0, 0, time.UTC)
	total, err := svc.DailyTotal(ctx, testChat, day)
	require.NoError(t, err)
	assert.Equal(t, 60.0, total)

	weekTotal, err := svc.WeeklyTotal(ctx, testChat, day)
	require.NoError(t, err)
	assert.Equal(t, 150.0, weekTotal)
}

func TestAddManualMinutes(t *testing.T) {
	svc, repo, _ := newTestService(t)
	at := time.Date(2024, time.March, 13, 18, 0, 0, 0, time.UTC)
	setClock(svc, at)

	require.NoError(t, svc.AddManualMinutes(context.Background(), testChat, 25))

	require.Len(t, repo.sessions, 1)
	assert.Equal(t, 25.0, repo.sessions[0].Minutes)
	assert.Equal(t, at, repo.sessions[0].StartedAt)
}

func TestStopTimerWhileIdle(t *testing.T) {
	svc, repo, _ := newTestService(t)

	minutes, logged, err := svc.StopTimer(context.Background(), testChat)

	require.NoError(t, err)
	assert.False(t, logged)
	assert.Zero(t, minutes)
	assert.Empty(t, repo.sessions)
}

func TestUndoRequestWithEmptyLog(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.RequestUndo(context.Background(), testChat)

	assert.ErrorIs(t, err, ErrNothingToUndo)
}

func TestUndoAcceptRemovesLastRecord(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	at := time.Date(2024, time.March, 13, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.AppendSession(ctx, &models.Session{ChatID: testChat, StartedAt: at, EndedAt: at, Minutes: 30}))
	require.NoError(t, repo.AppendSession(ctx, &models.Session{ChatID: testChat, StartedAt: at.Add(time.Hour), EndedAt: at.Add(time.Hour), Minutes: 45}))

	proposed, err := svc.RequestUndo(ctx, testChat)
	require.NoError(t, err)
	assert.Equal(t, 45.0, proposed.Minutes)

	removed, err := svc.ConfirmUndo(ctx, testChat, true)
	require.NoError(t, err)
	require.NotNil(t, removed)
	assert.Equal(t, 45.0, removed.Minutes)

	require.Len(t, repo.sessions, 1)
	assert.Equal(t, 30.0, repo.sessions[0].Minutes)
}

func TestUndoDeclineKeepsRecord(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	at := time.Date(2024, time.March, 13, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.AppendSession(ctx, &models.Session{ChatID: testChat, StartedAt: at, EndedAt: at, Minutes: 30}))

	_, err := svc.RequestUndo(ctx, testChat)
	require.NoError(t, err)

	removed, err := svc.ConfirmUndo(ctx, testChat, false)
	require.NoError(t, err)
	assert.Nil(t, removed)
	assert.Len(t, repo.sessions, 1)

	// Declining consumed the proposal.
	_, err = svc.ConfirmUndo(ctx, testChat, true)
	assert.ErrorIs(t, err, ErrNoPendingUndo)
}

func TestUndoConfirmWithoutRequest(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ConfirmUndo(context.Background(), testChat, true)

	assert.ErrorIs(t, err, ErrNoPendingUndo)
}

func TestUndoRequestReplacesPrevious(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	at := time.Date(2024, time.March, 13, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.AppendSession(ctx, &models.Session{ChatID: testChat, StartedAt: at, EndedAt: at, Minutes: 30}))
	_, err := svc.RequestUndo(ctx, testChat)
	require.NoError(t, err)

	require.NoError(t, repo.AppendSession(ctx, &models.Session{ChatID: testChat, StartedAt: at.Add(time.Hour), EndedAt: at.Add(time.Hour), Minutes: 45}))
	_, err = svc.RequestUndo(ctx, testChat)
	require.NoError(t, err)

	removed, err := svc.ConfirmUndo(ctx, testChat, true)
	require.NoError(t, err)
	assert.Equal(t, 45.0, removed.Minutes)
}

func TestNowFollowsConfiguredZone(t *testing.T) {
	rome := time.FixedZone("CET", 3600)

	dir := t.TempDir()
	writeTestPlan(t, dir, models.ModeNormal, `{"blocks": []}`)

	repo := newFakeRepository()
	svc := NewService(repo, plan.NewStore(dir), newFakeNotifier(), rome)

	// A session logged yesterday at noon local time.
	logged := time.Date(2024, time.March, 12, 12, 0, 0, 0, rome)
	require.NoError(t, repo.AppendSession(context.Background(), &models.Session{
		ChatID: testChat, StartedAt: logged, EndedAt: logged, Minutes: 30,
	}))

	// Host clock at 23:30 UTC, which is already 00:30 of the next day
	// in the configured zone.
	setClock(svc, time.Date(2024, time.March, 12, 23, 30, 0, 0, time.UTC))

	now := svc.Now()
	assert.Equal(t, rome, now.Location())
	assert.Equal(t, 13, now.Day())

	// The new local day has no study time yet; the host's UTC day
	// must not leak yesterday's session into the total.
	total, err := svc.DailyTotal(context.Background(), testChat, now)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestPlanModeFallsBackToNormal(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.modeErr = assert.AnError

	assert.Equal(t, models.ModeNormal, svc.planMode(context.Background()))
}
