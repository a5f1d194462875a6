package main

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"live-arena-system/services"
	"live-arena-system/utils"
	"live-arena-system/workers"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	settings, err := services.LoadSettingsFromEnv()
	if err != nil {
		log.Fatal("invalid game settings:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	if err := services.Migrate(db); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	notifiers := services.Fanout{
		services.LogNotifier{},
		&services.EventLogNotifier{DB: db},
	}
	recorder := services.NewRoundRecorder(db, nil)
	switch err := utils.InitR2(); {
	case err == nil:
		recorder.Upload = utils.UploadJSON
		log.Println("✅ Round archive upload enabled (R2)")
	case errors.Is(err, utils.ErrR2NotConfigured):
		log.Println("⚠️  R2 not configured, round standings are kept in the database only")
	default:
		log.Fatal("failed to initialize R2 client:", err)
	}
	notifiers = append(notifiers, recorder)
	recorder.Start()

	clock := clockwork.NewRealClock()
	seed := uint64(time.Now().UnixNano())
	session, err := services.NewSession(db, clock, settings, notifiers, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
	if err != nil {
		log.Fatal("failed to create session:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := session.StartSession(ctx); err != nil {
		log.Fatal("failed to start session:", err)
	}
	go session.Run(ctx)

	sched, err := session.StartScheduler(ctx)
	if err != nil {
		log.Fatal("failed to start scheduler:", err)
	}

	if syncURL := os.Getenv("MEMBERSHIP_SYNC_URL"); syncURL != "" {
		path := os.Getenv("MEMBERSHIP_SYNC_PATH")
		if path == "" {
			path = "/api/v1/memberships"
		}
		syncWorker := workers.NewMembershipSyncWorker(session, syncURL, path, os.Getenv("MEMBERSHIP_SERVICE_TOKEN"))
		syncWorker.Start(ctx)
		log.Println("✅ Membership Sync Worker running")
	}

	feedErr := make(chan error, 1)
	if feedURL := os.Getenv("FEED_URL"); feedURL != "" {
		attempts := uint(5)
		if v, err := strconv.ParseUint(os.Getenv("FEED_MAX_ATTEMPTS"), 10, 32); err == nil && v > 0 {
			attempts = uint(v)
		}
		feed := workers.NewFeedWorker(feedURL, session, attempts)
		if token := os.Getenv("FEED_TOKEN"); token != "" {
			feed.SetHeader("Authorization", "Bearer "+token)
		}
		go func() { feedErr <- feed.Run(ctx) }()
	} else {
		log.Println("⚠️  FEED_URL not set, no live events will arrive")
	}

	log.Printf("✅ Arena session running (capacity %d, danger zone %d)", settings.ArenaCapacity, settings.DangerZoneSize)

	fatal := false
	select {
	case <-ctx.Done():
	case err := <-feedErr:
		if errors.Is(err, workers.ErrFeedExhausted) {
			log.Printf("❌ FATAL: %v", err)
			fatal = true
		}
	}

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := session.StopSession(shutdownCtx); err != nil && !errors.Is(err, services.ErrSessionInactive) {
		log.Printf("⚠️ stopping session: %v", err)
	}
	if err := sched.Shutdown(); err != nil {
		log.Printf("⚠️ scheduler shutdown: %v", err)
	}
	recorder.Close()
	if fatal {
		os.Exit(1)
	}
}
