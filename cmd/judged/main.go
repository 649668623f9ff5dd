package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arbiter/internal/common/cache"
	"arbiter/internal/common/db"
	"arbiter/internal/common/httpmw"
	"arbiter/internal/common/mq"
	"arbiter/internal/common/storage"
	"arbiter/internal/judge/controller"
	"arbiter/internal/judge/coordinator"
	"arbiter/internal/judge/events"
	"arbiter/internal/judge/executor"
	"arbiter/internal/judge/limiter"
	"arbiter/internal/judge/queue"
	"arbiter/internal/judge/repository"
	"arbiter/internal/judge/sandbox"
	"arbiter/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judged.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		logger.Error(context.Background(), "init minio failed", zap.Error(err))
		return
	}

	mqClient, err := mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
	if err != nil {
		logger.Error(context.Background(), "init kafka failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mqClient.Close()
	}()

	lim, err := limiter.New(appCfg.Limiter)
	if err != nil {
		logger.Error(context.Background(), "init resource limiter failed", zap.Error(err))
		return
	}
	runner := sandbox.NewRunner(appCfg.Sandbox, lim)
	exec := executor.New(executor.Config{
		MaxStdoutBytes: appCfg.Executor.MaxStdoutBytes,
		Policy:         appCfg.Executor.Policy,
	}, runner)

	submissionRepo := repository.NewSubmissionRepository(mysqlDB)
	testcaseRowRepo := repository.NewSubmissionTestcaseRepository(mysqlDB)
	problemRepo := repository.NewProblemRepository(mysqlDB)
	languageRepo := repository.NewLanguageRepository(mysqlDB)
	testcaseRepo := repository.NewTestcaseRepository(mysqlDB)
	contentStore := repository.NewContentStore(objStorage, appCfg.Content.Bucket, appCfg.Content.MaxEntries)
	snapshots := repository.NewSnapshotLoader(submissionRepo, problemRepo, languageRepo, testcaseRepo, contentStore)

	leaseRepo := repository.NewLeaseRepository(redisCache, appCfg.Judging.LeaseTTL)
	statusRepo := repository.NewStatusRepository(redisCache, appCfg.Judging.StatusTTL)
	cancelRepo := repository.NewCancelFlagRepository(redisCache)
	publisher := events.NewMQPublisher(mqClient, appCfg.Kafka.TerminalTopic)

	sandboxSlots := make(chan struct{}, appCfg.Judging.SandboxSlots)
	coord := coordinator.New(appCfg.Judging.Coordinator, coordinator.Deps{
		Database:     mysqlDB,
		Lease:        leaseRepo,
		Snapshots:    snapshots,
		Submissions:  submissionRepo,
		Rows:         testcaseRowRepo,
		Problems:     problemRepo,
		Status:       statusRepo,
		Cancels:      cancelRepo,
		Publisher:    publisher,
		Runner:       runner,
		Executor:     exec,
		WorkRoot:     appCfg.Sandbox.WorkRoot,
		SandboxSlots: sandboxSlots,
	})

	judgeQueue := queue.New(appCfg.Queue, coord, submissionRepo, leaseRepo, cancelRepo, runner)

	rootCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	judgeQueue.Start(rootCtx)

	err = mqClient.SubscribeWithOptions(rootCtx, appCfg.Kafka.IntakeTopic, judgeQueue.HandleMessage, &mq.SubscribeOptions{
		ConsumerGroup:   appCfg.Kafka.ConsumerGroup,
		Concurrency:     appCfg.Kafka.Concurrency,
		MaxRetries:      appCfg.Kafka.MaxRetries,
		RetryDelay:      appCfg.Kafka.RetryDelay,
		DeadLetterTopic: appCfg.Kafka.DeadLetter,
		MessageTTL:      appCfg.Kafka.MessageTTL,
	})
	if err != nil {
		logger.Error(context.Background(), "subscribe kafka failed", zap.Error(err))
		return
	}
	if err := mqClient.Start(); err != nil {
		logger.Error(context.Background(), "start kafka consumer failed", zap.Error(err))
		return
	}

	go reclaimLoop(rootCtx, judgeQueue, appCfg.Reclaim)

	httpServer := buildHTTPServer(appCfg.Server, statusRepo, judgeQueue)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "judge http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
	_ = mqClient.Stop()
	stopWorkers()
	judgeQueue.Stop()
}

func reclaimLoop(ctx context.Context, q *queue.Queue, cfg ReclaimConfig) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			requeued, err := q.ReclaimStale(ctx, cfg.OlderThan, cfg.BatchSize)
			if err != nil {
				logger.Warn(ctx, "reclaim stale submissions failed", zap.Error(err))
				continue
			}
			if requeued > 0 {
				logger.Info(ctx, "reclaimed stale submissions", zap.Int("count", requeued))
			}
		}
	}
}

func buildHTTPServer(cfg ServerConfig, statusRepo *repository.StatusRepository, q *queue.Queue) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpmw.TraceContext())
	router.Use(requestLogger())

	judgeController := controller.NewJudgeController(statusRepo, q)
	router.GET("/healthz", judgeController.Health)

	api := router.Group("/api/v1/judge")
	api.GET("/submissions/:id", judgeController.GetStatus)
	api.POST("/submissions/:id", judgeController.Submit)
	api.POST("/submissions/:id/rejudge", judgeController.Rejudge)
	api.POST("/submissions/:id/cancel", judgeController.Cancel)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
