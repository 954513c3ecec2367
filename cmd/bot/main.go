package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ettore000/RoccaMint/internal/handler"
	"github.com/Ettore000/RoccaMint/internal/plan"
	"github.com/Ettore000/RoccaMint/internal/repository"
	"github.com/Ettore000/RoccaMint/internal/scheduler"
	"github.com/Ettore000/RoccaMint/internal/service"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	tzName := os.Getenv("STUDY_TIMEZONE")
	if tzName == "" {
		tzName = "Europe/Rome"
	}

	zone, err := time.LoadLocation(tzName)
	if err != nil {
		zone = time.UTC
		zap.S().Warn("failed to load timezone, using UTC", zap.String("timezone", tzName), zap.Error(err))
	}

	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.In(zone).Format("2006-01-02T15:04:05-07:00"))
	}

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer logger.Sync()

	zap.ReplaceGlobals(logger)
	zap.S().Info("logger initialized")

	if err := godotenv.Load(); err != nil {
		zap.S().Debug("load .env file", zap.Error(err))
	}

	telegramToken := os.Getenv("TELEGRAM_BOT_TOKEN")
	postgresHost := os.Getenv("POSTGRES_HOST")
	postgresPort := os.Getenv("POSTGRES_PORT")
	postgresUser := os.Getenv("POSTGRES_USER")
	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	postgresDB := os.Getenv("POSTGRES_DB")
	planDir := os.Getenv("PLAN_DIR")
	if planDir == "" {
		planDir = "plans"
	}

	if telegramToken == "" || postgresHost == "" {
		zap.S().Fatal("missing required environment variables")
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		postgresHost, postgresPort, postgresUser, postgresPassword, postgresDB)

	repo, err := repository.NewDB(dsn, 10, 20)
	if err != nil {
		zap.S().Error("connect to PostgreSQL", zap.Error(err), zap.String("host", postgresHost))
		os.Exit(1)
	}
	defer repo.Close()

	if err = repo.Up("migrations"); err != nil {
		zap.S().Error("run migrations", zap.Error(err))
		os.Exit(1)
	}

	api, err := tgbotapi.NewBotAPI(telegramToken)
	if err != nil {
		zap.S().Error("create bot API", zap.Error(err))
		os.Exit(1)
	}

	plans := plan.NewStore(planDir)
	svc := service.NewService(repo, plans, handler.NewNotifier(api), zone)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(zone)
	sched.EveryMinute("plan-reminders", func(now time.Time) { svc.FireDueReminders(ctx, now) })
	sched.Daily("midday-check", 12, 0, func() { svc.MiddayCheck(ctx) })
	sched.Daily("daily-chart", 22, 0, func() { svc.SendDailyChart(ctx) })
	sched.Daily("evening-reports", 23, 59, func() { svc.SendEveningReports(ctx) })
	sched.Weekly("weekly-chart", time.Sunday, 23, 50, func() { svc.SendWeeklyChart(ctx) })
	sched.Start(ctx)

	bot := handler.NewTelegramHandler(api, svc)
	bot.Start(ctx)

	// The update stream is closed once ctx is cancelled; let scheduled
	// jobs finish before exiting.
	sched.Wait()
	zap.S().Info("shutdown complete")
}
