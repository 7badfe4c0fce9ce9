package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codenvibe/internal/api"
	"codenvibe/internal/app/service"
	"codenvibe/internal/app/worker"
	"codenvibe/internal/common/security"
	"codenvibe/internal/domain/repository"
	"codenvibe/internal/judge/harness"
	"codenvibe/internal/judge/runner"
	"codenvibe/internal/platform/cache"
	"codenvibe/internal/platform/config"
	"codenvibe/internal/platform/database"
	"codenvibe/internal/platform/events"
	"codenvibe/internal/platform/lock"
	"codenvibe/internal/platform/logger"
	"codenvibe/internal/realtime"

	"go.uber.org/zap"
)

type stores struct {
	questions   repository.QuestionRepository
	teams       repository.TeamRepository
	submissions repository.SubmissionRepository
	scores      repository.ScoreRepository
}

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	config.Load()
	cfg := config.AppConfig

	// 2. Initialize Logger
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, OutputPath: cfg.LogOutput}); err != nil {
		panic(err)
	}
	defer logger.Sync()
	logger.Info(ctx, "configuration loaded", zap.String("store", cfg.StoreDriver))

	// 3. Initialize JWT
	security.InitJWT()

	// 4. Initialize Stores
	st := openStores(ctx, cfg)
	defer database.Close()

	// 5. Initialize Redis (optional)
	if err := cache.ConnectRedis(); err != nil {
		logger.Fatal(ctx, "redis unavailable", zap.Error(err))
	}
	defer cache.CloseRedis()

	var locker lock.Locker = lock.NewLocalLocker()
	var snapshots cache.SnapshotStore = cache.NewMemorySnapshotStore()
	if cache.RDB != nil {
		snapshots = cache.NewRedisSnapshotStore(cache.RDB, "", cfg.LeaderboardCacheTTL)
		if cfg.TeamLockBackend == "redis" {
			locker = lock.NewRedisLocker(cache.RDB, "", time.Duration(cfg.TeamLockTTLSeconds)*time.Second)
		}
	} else if cfg.TeamLockBackend == "redis" {
		logger.Fatal(ctx, "TEAM_LOCK_BACKEND=redis requires REDIS_ADDR")
	}

	// 6. Initialize Submission Event Stream
	var publisher events.SubmissionPublisher = events.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaSubmissionTopic)
		logger.Info(ctx, "publishing submission events", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaSubmissionTopic))
	}
	defer publisher.Close()

	// 7. Initialize Judge
	runners, err := runner.NewRegistryFromConfig(runner.Config{
		WorkRoot:          cfg.RunnerWorkRoot,
		DefaultTimeLimit:  cfg.RunnerTimeLimit,
		MemoryLimitBytes:  uint64(cfg.RunnerMemoryLimitMB) << 20,
		OutputLimitBytes:  int64(cfg.RunnerOutputLimitKB) << 10,
		IsolateNamespaces: cfg.RunnerIsolateNamespace,
		AllowUnisolated:   cfg.RunnerAllowUnisolated,
		MaxProcesses:      uint64(cfg.RunnerMaxProcesses),
		CgroupRoot:        cfg.RunnerCgroupRoot,
	}, cfg.RunnerLanguage)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize code runners", zap.Error(err))
	}
	judge := harness.New(runners, cfg.HarnessParallelism)

	// 8. Initialize Realtime Hub & Leaderboard Worker
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	hub := realtime.NewHub()
	go hub.Run(workerCtx)

	leaderboardService := service.NewLeaderboardService(st.scores, st.teams, snapshots)
	leaderboardWorker := worker.NewLeaderboardWorker(leaderboardService, hub)
	workerDone := make(chan struct{})
	go func() {
		leaderboardWorker.Start(workerCtx)
		close(workerDone)
	}()
	warmLeaderboards(ctx, st.teams, leaderboardWorker)

	// 9. Initialize Services
	scoringService := service.NewScoringService(st.scores, locker, cfg.ScoreRetryLimit)
	submissionService := service.NewSubmissionService(st.questions, st.teams, st.submissions, judge, scoringService, leaderboardWorker, publisher)
	questionService := service.NewQuestionService(st.questions, judge)

	// 10. Initialize Router & HTTP Server
	router := api.NewRouter(questionService, submissionService, leaderboardService, hub)

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 70 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 11. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info(ctx, "server starting", zap.String("port", cfg.APIPort), zap.Strings("languages", runners.Languages()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "could not listen", zap.String("port", cfg.APIPort), zap.Error(err))
		}
	}()

	<-stop

	logger.Info(ctx, "shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "server shutdown failed", zap.Error(err))
	}
	if err := submissionService.Drain(shutdownCtx); err != nil {
		logger.Warn(ctx, "submission events still in flight at shutdown", zap.Error(err))
	}
	workerCancel()
	<-workerDone

	logger.Info(ctx, "server and worker stopped gracefully")
}

func openStores(ctx context.Context, cfg *config.Config) stores {
	switch cfg.StoreDriver {
	case "memory":
		mem := repository.NewMemoryStore()
		if cfg.SeedFile != "" {
			teams, questions, err := mem.LoadSeedFile(cfg.SeedFile)
			if err != nil {
				logger.Fatal(ctx, "failed to load seed file", zap.String("path", cfg.SeedFile), zap.Error(err))
			}
			logger.Info(ctx, "seed data loaded", zap.Int("teams", teams), zap.Int("questions", questions))
		}
		return stores{questions: mem, teams: mem, submissions: mem, scores: mem}

	case "postgres":
		if err := database.Connect(); err != nil {
			logger.Fatal(ctx, "database unavailable", zap.Error(err))
		}
		migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := database.Migrate(migrateCtx, database.DB); err != nil {
			logger.Fatal(ctx, "database migration failed", zap.Error(err))
		}
		submissions := repository.NewPgSubmissionRepository(database.DB)
		return stores{
			questions:   repository.NewPgQuestionRepository(database.DB),
			teams:       repository.NewPgTeamRepository(database.DB),
			submissions: submissions,
			scores:      repository.NewPgScoreRepository(database.DB, submissions),
		}

	default:
		logger.Fatal(ctx, "unknown STORE_DRIVER", zap.String("driver", cfg.StoreDriver))
		return stores{}
	}
}

// warmLeaderboards schedules a refresh of every known cohort so the first
// GET is served from the snapshot.
func warmLeaderboards(ctx context.Context, teams repository.TeamRepository, w *worker.LeaderboardWorker) {
	years, err := teams.ListCohorts(ctx)
	if err != nil {
		logger.Warn(ctx, "could not list cohorts for warm-up", zap.Error(err))
		return
	}
	for _, y := range years {
		w.Notify(y)
	}
}
