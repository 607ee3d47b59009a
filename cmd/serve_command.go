package main

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"orderproof/internal/core/batch"
	"orderproof/internal/core/job"
	"orderproof/internal/health"
	"orderproof/internal/logger"
	rds "orderproof/internal/platform/redis"
	"orderproof/internal/platform/storage"
	tasks "orderproof/internal/platform/tasks"
	"orderproof/internal/server"
	"orderproof/internal/worker"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the batch worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			logr := logger.New("main")
			logr.LogInfof("Starting at %s (env=%s)", cfg.HTTPAddr, cfg.AppEnv)

			redisSvc, err := rds.New(rds.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
			if err != nil {
				return err
			}
			defer redisSvc.Close()

			backend, container, err := storage.New(cfg)
			if err != nil {
				return err
			}

			taskClient := tasks.New(redisSvc)
			defer taskClient.Close()
			// One batch at a time: batches share the report and checkpoint.
			asynqServer := asynq.NewServer(redisSvc.AsynqRedisOpt(), asynq.Config{
				Concurrency: 1,
				Queues:      map[string]int{tasks.DefaultQueue: 1},
			})

			jobSvc := job.NewJobService(redisSvc)
			batchSvc := batch.New(jobSvc, batch.NewPipelineFactory(batch.WorkerSetup{
				Config:    cfg,
				Redis:     redisSvc,
				Backend:   backend,
				Container: container,
			}), batch.FileLinks(cfg), cfg.TaskMaxRetries)

			mux := worker.NewMux()
			mux.HandleFunc(batch.TaskTypeBatch, batchSvc.HandleTask)
			if err := asynqServer.Start(mux.Mux()); err != nil {
				return err
			}
			defer asynqServer.Shutdown()

			app := fiber.New(fiber.Config{
				AppName: "orderproof",
				JSONEncoder: func(v interface{}) ([]byte, error) {
					var buf bytes.Buffer
					encoder := json.NewEncoder(&buf)
					encoder.SetEscapeHTML(false)
					if err := encoder.Encode(v); err != nil {
						return nil, err
					}
					return buf.Bytes(), nil
				},
			})
			healthHandler := server.RegisterRoutes(app, server.Dependencies{
				Job:   jobSvc,
				Batch: batchSvc,
				Tasks: taskClient,
				Checks: map[string]health.Check{
					"redis":   redisSvc.HealthCheck,
					"storage": backend.Ping,
				},
				FilesDir: cfg.DataDir,
			})
			healthHandler.SetReady()

			go func() {
				<-cmd.Context().Done()
				logr.LogInfo("Shutting down...")
				_ = app.ShutdownWithTimeout(5 * time.Second)
			}()
			return app.Listen(cfg.HTTPAddr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default HTTP_ADDR)")
	return cmd
}
