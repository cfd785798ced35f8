package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jonadableite/WhatLead-sub000/core/config"
	"github.com/jonadableite/WhatLead-sub000/pkg/jobpool"
	"github.com/jonadableite/WhatLead-sub000/trust/domain/instance"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the health, warm-up and execution schedulers without the API",
	Run:   workerServer,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func workerServer(_ *cobra.Command, _ []string) {
	doneCtx, stop := startSchedulers()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logrus.Info("[WORKER] Reception of termination signal, shutting down gracefully...")
	stop()
	<-doneCtx.Done()
	StopApp()
}

// startSchedulers launches the periodic loops: health evaluation, warm-up
// sweeps and the execution tick. The returned context is done once every
// loop has exited after stop is called.
func startSchedulers() (context.Context, context.CancelFunc) {
	cfg := config.Global
	ctx, cancel := context.WithCancel(context.Background())
	doneCtx, markDone := context.WithCancel(context.Background())

	workerPool.Start(ctx)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(cfg.Trust.EvaluationInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				healthService.EvaluateAll(ctx, time.Now().UTC())
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(cfg.Warmup.RunInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweepWarmup(ctx)
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(cfg.Execution.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now().UTC()
				if err := execWorker.Tick(ctx, now); err != nil {
					logrus.Errorf("[EXECUTION] Tick failed: %v", err)
				}
				if err := convWorker.Tick(ctx, now); err != nil {
					logrus.Errorf("[CONVERSATION] Tick failed: %v", err)
				}
			}
		}
	}()

	go func() {
		wg.Wait()
		markDone()
	}()

	return doneCtx, cancel
}

// sweepWarmup fans warm-up runs out over the pool so instances warm in
// parallel while each instance stays serialized on its shard.
func sweepWarmup(ctx context.Context) {
	now := time.Now().UTC()
	instances, err := instanceRepo.ListEvaluable(ctx)
	if err != nil {
		logrus.Errorf("[WARMUP] Failed to list instances: %v", err)
		return
	}

	for _, inst := range instances {
		if inst.Purpose == instance.PurposeDispatch {
			continue
		}
		id := inst.ID
		dispatched := workerPool.TryDispatch(jobpool.Task{
			InstanceID: id,
			JobID:      "warmup:" + id,
			Handler: func(taskCtx context.Context) error {
				_, err := warmupOrch.Run(taskCtx, id, now)
				return err
			},
		})
		if !dispatched {
			logrus.Warnf("[WARMUP] Pool saturated, skipping %s this sweep", id)
		}
	}
}
