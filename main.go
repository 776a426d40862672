package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/raushankrgupta/nima-backend/ai"
	"github.com/raushankrgupta/nima-backend/api"
	"github.com/raushankrgupta/nima-backend/bootstrap"
	"github.com/raushankrgupta/nima-backend/catalog"
	"github.com/raushankrgupta/nima-backend/config"
	"github.com/raushankrgupta/nima-backend/credits"
	"github.com/raushankrgupta/nima-backend/generation"
	"github.com/raushankrgupta/nima-backend/logging"
	"github.com/raushankrgupta/nima-backend/queue"
	"github.com/raushankrgupta/nima-backend/status"
	"github.com/raushankrgupta/nima-backend/storage"
	"github.com/raushankrgupta/nima-backend/tryon"
	"github.com/raushankrgupta/nima-backend/workflow"
)

func main() {
	config.LoadConfig()
	log := logging.New(config.IsProduction())

	if err := run(log); err != nil {
		log.Error(context.Background(), "server stopped", "error", err)
		os.Exit(1)
	}
}

func run(log logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := bootstrap.OpenStore(ctx, log)
	if err != nil {
		return err
	}
	defer db.Close(context.Background())

	files, err := bootstrap.OpenFileStore(ctx, log)
	if err != nil {
		return err
	}

	notifier, err := bootstrap.OpenNotifier(ctx, log)
	if err != nil {
		return err
	}

	gemini, err := ai.NewGemini(ctx, config.GeminiAPIKey, config.GeminiTextModel, config.GeminiImageModel)
	if err != nil {
		return err
	}
	defer gemini.Close()

	policy := generation.DefaultRetryPolicy(config.StepMaxRetries)
	ledger := credits.NewLedger(db.Users(), log)
	renderer := generation.NewRenderer(db, files, gemini, log)

	// Workers run with their own context so in-flight generation survives
	// the request that started it and drains on shutdown.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	router := queue.NewRouter(log)
	pool := queue.NewLocalDispatcher(router, config.QueueWorkers, log)

	var dispatcher queue.Dispatcher = pool
	if config.QueueBackend == "kafka" {
		kafka := queue.NewKafkaDispatcher(config.KafkaBrokers, config.KafkaTopic, log)
		defer kafka.Close()
		dispatcher = kafka

		consumer := queue.NewConsumer(config.KafkaBrokers, config.KafkaTopic, config.KafkaGroupID, pool, log)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Error(ctx, "task consumer stopped", "error", err)
			}
		}()
	}

	workflows := workflow.NewService(db, ledger, dispatcher, log, config.LooksPerBatch, config.MinInventory)
	tryOns := tryon.NewService(db, ledger, dispatcher, renderer, policy, log)
	looks := workflow.NewLookGeneration(workflow.LookGenerationDeps{
		Store:         db,
		Engine:        workflow.NewEngine(db.Workflows(), policy, log),
		Curator:       gemini,
		Renderer:      renderer,
		Notifier:      notifier,
		Ledger:        ledger,
		Log:           log,
		LooksPerBatch: config.LooksPerBatch,
	})

	router.Handle(queue.KindWorkflowRun, looks.Run)
	router.Handle(queue.KindTryOnGenerate, tryOns.Generate)
	pool.Start(workerCtx)

	if _, err := workflows.ResumeRunning(ctx); err != nil {
		log.Error(ctx, "failed to resume workflows", "error", err)
	}
	if _, err := tryOns.ResumePending(ctx); err != nil {
		log.Error(ctx, "failed to resume try-ons", "error", err)
	}

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	query := status.NewQuery(db, files)
	importer := catalog.NewImporter(db.Items(), files, catalog.NewFetcher(true, log), log)
	engine := api.NewRouter(api.Handlers{
		Auth:       api.NewAuthHandler(db.Users(), api.GoogleOAuthConfig(), config.FreeCreditsPerWeek, log),
		Generation: api.NewGenerationHandler(workflows, query, log),
		TryOns:     api.NewTryOnHandler(tryOns, query, log),
		Profile:    api.NewProfileHandler(db, ledger, files, log),
		Items:      api.NewItemHandler(db.Items(), query, importer, log),
	}, log)

	// serve in-memory uploads the way the old static image folders were served
	if mem, ok := files.(*storage.Memory); ok {
		engine.GET("/files/*key", func(c *gin.Context) {
			data, err := mem.Download(c.Request.Context(), strings.TrimPrefix(c.Param("key"), "/"))
			if err != nil {
				c.Status(http.StatusNotFound)
				return
			}
			c.Data(http.StatusOK, http.DetectContentType(data), data)
		})
	}

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "server starting", "port", config.Port, "queue", config.QueueBackend, "store", config.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "http shutdown", "error", err)
	}

	// queued tasks finish; unfinished runs are resumed from the step log on next start
	done := make(chan struct{})
	go func() {
		_ = pool.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		cancelWorkers()
	}
	return nil
}
