package cmd

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/jonadableite/WhatLead-sub000/core/config"
	"github.com/jonadableite/WhatLead-sub000/core/database"
	dispatchApp "github.com/jonadableite/WhatLead-sub000/dispatch/application"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/common"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/job"
	dispatchRepo "github.com/jonadableite/WhatLead-sub000/dispatch/repository"
	dispatchUsecase "github.com/jonadableite/WhatLead-sub000/dispatch/usecase"
	"github.com/jonadableite/WhatLead-sub000/infrastructure/eventbus"
	"github.com/jonadableite/WhatLead-sub000/infrastructure/valkey"
	"github.com/jonadableite/WhatLead-sub000/infrastructure/whatsapp"
	"github.com/jonadableite/WhatLead-sub000/pkg/events"
	"github.com/jonadableite/WhatLead-sub000/pkg/jobpool"
	"github.com/jonadableite/WhatLead-sub000/pkg/utils"
	trustApp "github.com/jonadableite/WhatLead-sub000/trust/application"
	trustRepo "github.com/jonadableite/WhatLead-sub000/trust/repository"
	trustUsecase "github.com/jonadableite/WhatLead-sub000/trust/usecase"
)

var (
	db       *gorm.DB
	vkClient *valkey.Client

	instanceRepo trustRepo.IInstanceRepository
	signalRepo   trustRepo.ISignalRepository
	intentRepo   dispatchRepo.IIntentRepository
	jobRepo      dispatchRepo.IMessageJobRepository
	convJobRepo  dispatchRepo.IConversationJobRepository
	warmupDir    *dispatchRepo.WarmupDirectoryGorm

	bus       events.Bus
	registry  *whatsapp.Registry
	transport *whatsapp.Transport

	healthService *trustApp.HealthService
	gate          *dispatchApp.Gate
	warmupOrch    *dispatchApp.WarmupOrchestrator
	execWorker    *dispatchApp.ExecutionWorker
	convWorker    *dispatchApp.ConversationWorker
	workerPool    *jobpool.Pool

	instanceUsecase *trustUsecase.InstanceUsecase
	sendUsecase     *dispatchUsecase.SendUsecase
)

// Flag overrides applied on top of the environment after LoadConfig.
var (
	flagPort      string
	flagDebug     bool
	flagBasicAuth []string
	flagDBDriver  string
	flagDBName    string
)

var rootCmd = &cobra.Command{
	Use:   "whatlead",
	Short: "WhatsApp instance trust and dispatch control plane",
	Long: `Scores instance reputation from delivery signals, drives the health
state machine, admits outbound messages through the dispatch gate and runs
the warm-up and execution schedulers.`,
}

func init() {
	utils.LoadConfig(".")

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	initFlags()

	cobra.OnInitialize(initApp)
}

func initFlags() {
	rootCmd.PersistentFlags().StringVarP(
		&flagPort,
		"port", "p",
		"",
		"change port number with --port <number> | example: --port=8080",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&flagDebug,
		"debug", "d",
		false,
		"hide or displaying log with --debug <true/false> | example: --debug=true",
	)
	rootCmd.PersistentFlags().StringSliceVarP(
		&flagBasicAuth,
		"basic-auth", "b",
		nil,
		"basic auth credential | -b=yourUsername:yourPassword",
	)
	rootCmd.PersistentFlags().StringVarP(
		&flagDBDriver,
		"db-driver", "",
		"",
		`database driver --db-driver <string> | example: --db-driver="postgres"`,
	)
	rootCmd.PersistentFlags().StringVarP(
		&flagDBName,
		"db-name", "",
		"",
		`database name, or file path for sqlite --db-name <string> | example: --db-name="storages/trustplane.db"`,
	)
}

func initApp() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("[APP] Failed to load config: %v", err)
	}
	applyFlagOverrides(cfg)

	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg.App.ServerID = utils.GetPersistentServerID(cfg.App.ServerID, "storages")

	if cfg.Database.Driver == "sqlite" {
		if dir := filepath.Dir(cfg.Database.Name); dir != "." {
			_ = os.MkdirAll(dir, 0o755)
		}
	}

	ctx := context.Background()

	db, err = database.NewDatabase(cfg)
	if err != nil {
		logrus.Fatalf("[APP] Failed to open database: %v", err)
	}

	// Relational repositories.
	gormInstances := trustRepo.NewInstanceGormRepository(db)
	gormSignals := trustRepo.NewSignalGormRepository(db)
	gormIntents := dispatchRepo.NewIntentGormRepository(db)
	gormJobs := dispatchRepo.NewMessageJobGormRepository(db)
	gormConvJobs := dispatchRepo.NewConversationJobGormRepository(db)
	warmupDir = dispatchRepo.NewWarmupDirectoryGorm(db)

	for _, m := range []interface {
		Init(ctx context.Context) error
	}{gormInstances, gormSignals, gormIntents, gormJobs, gormConvJobs, warmupDir} {
		if err := m.Init(ctx); err != nil {
			logrus.Fatalf("[APP] Failed to migrate schema: %v", err)
		}
	}

	instanceRepo = gormInstances
	signalRepo = gormSignals
	intentRepo = gormIntents
	jobRepo = gormJobs
	convJobRepo = gormConvJobs

	// Rate counters, delayed queues and locks live in Valkey when enabled so
	// several nodes can share them. Without Valkey everything is in-process.
	var (
		rates     common.RateStore
		msgQueue  common.DelayedQueue
		convQueue common.DelayedQueue

		healthLocker trustApp.Locker    = trustApp.NoopLocker{}
		warmupLocker dispatchApp.Locker = dispatchApp.NoopLocker{}
	)
	if cfg.Database.ValkeyEnabled {
		vkClient, err = valkey.NewClient(valkey.Config{
			Address:   cfg.Database.ValkeyAddress,
			Password:  cfg.Database.ValkeyPassword,
			DB:        cfg.Database.ValkeyDB,
			KeyPrefix: cfg.Database.ValkeyKeyPrefix,
		})
		if err != nil {
			logrus.Fatalf("[APP] Failed to connect to Valkey: %v", err)
		}
		rates = dispatchRepo.NewValkeyRateStore(vkClient, cfg.Dispatch.DuplicateWindow)
		msgQueue = dispatchRepo.NewValkeyDelayedQueue(vkClient, "message_jobs")
		convQueue = dispatchRepo.NewValkeyDelayedQueue(vkClient, "conversation_jobs")
		healthLocker = vkClient
		warmupLocker = vkClient
	} else {
		rates = dispatchRepo.NewMemoryRateStore(cfg.Dispatch.DuplicateWindow)
		msgQueue = dispatchRepo.NewMemoryDelayedQueue()
		convQueue = dispatchRepo.NewMemoryDelayedQueue()
	}

	bus = eventbus.NewLogBus()
	registry = whatsapp.NewRegistry()
	transport = whatsapp.NewTransport(registry)

	healthService = trustApp.NewHealthService(instanceRepo, signalRepo, bus, healthLocker, cfg.Trust.WindowSize)
	gate = dispatchApp.NewGate(intentRepo, instanceRepo, rates, bus, cfg.Dispatch)
	warmupOrch = dispatchApp.NewWarmupOrchestrator(instanceRepo, signalRepo, intentRepo, gate, transport, warmupDir, warmupLocker)
	execWorker = dispatchApp.NewExecutionWorker(intentRepo, jobRepo, gate, transport, rates, signalRepo, msgQueue, bus, cfg.Execution)

	convWorker = dispatchApp.NewConversationWorker(convJobRepo, nil, convQueue, bus, cfg.Execution)
	registerConversationHandlers(convWorker)

	workerPool = jobpool.New(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize)

	instanceUsecase = trustUsecase.NewInstanceUsecase(instanceRepo)
	sendUsecase = dispatchUsecase.NewSendUsecase(intentRepo, gate)
}

func applyFlagOverrides(cfg *config.Config) {
	if flagPort != "" {
		cfg.App.Port = flagPort
	}
	if flagDebug {
		cfg.App.Debug = true
	}
	if len(flagBasicAuth) > 0 {
		cfg.App.BasicAuth = flagBasicAuth
	}
	if flagDBDriver != "" {
		cfg.Database.Driver = flagDBDriver
	}
	if flagDBName != "" {
		cfg.Database.Name = flagDBName
	}
}

// registerConversationHandlers wires the executors for timeline-triggered
// jobs. The worker publishes the outcome event after a handler succeeds, so
// handlers only do the side work the trigger itself requires.
func registerConversationHandlers(w *dispatchApp.ConversationWorker) {
	w.Handle(job.ConvSLATimeout, func(ctx context.Context, j *job.ConversationExecutionJob, now time.Time) error {
		logrus.Warnf("[CONVERSATION] SLA timed out for conversation %s", j.ConversationID)
		return nil
	})
	w.Handle(job.ConvAutoClose, func(ctx context.Context, j *job.ConversationExecutionJob, now time.Time) error {
		logrus.Infof("[CONVERSATION] Auto-closing conversation %s", j.ConversationID)
		return nil
	})
	w.Handle(job.ConvAssignmentEvaluation, func(ctx context.Context, j *job.ConversationExecutionJob, now time.Time) error {
		logrus.Infof("[CONVERSATION] Assignment evaluation due for conversation %s", j.ConversationID)
		return nil
	})
	w.Handle(job.ConvWarmupCheck, func(ctx context.Context, j *job.ConversationExecutionJob, now time.Time) error {
		logrus.Debugf("[CONVERSATION] Warm-up check due for conversation %s", j.ConversationID)
		return nil
	})
	w.Handle(job.ConvWebhookDispatch, func(ctx context.Context, j *job.ConversationExecutionJob, now time.Time) error {
		logrus.Infof("[CONVERSATION] Webhook dispatch due for conversation %s", j.ConversationID)
		return nil
	})
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// StopApp performs a clean shutdown of the pool and all connections.
func StopApp() {
	logrus.Info("[APP] Stopping application...")

	if workerPool != nil {
		workerPool.Stop()
	}
	if vkClient != nil {
		vkClient.Close()
	}
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	logrus.Info("[APP] Application stopped cleanly.")
}
