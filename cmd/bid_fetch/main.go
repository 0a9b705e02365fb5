package main

import (
	"bid-fetch/internal/bid_fetch/api"
	"bid-fetch/internal/bid_fetch/cache"
	"bid-fetch/internal/bid_fetch/files"
	"bid-fetch/internal/bid_fetch/helper"
	"bid-fetch/internal/bid_fetch/model"
	"bid-fetch/internal/bid_fetch/processor"
	"bid-fetch/internal/bid_fetch/scheduler"
	"bid-fetch/internal/bid_fetch/search"
	"bid-fetch/internal/bid_fetch/storage"
	"bid-fetch/internal/middleware/logger"
	"bid-fetch/pkg/config"
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const mb = 1024 * 1024

func main() {
	defaultPath := config.DefaultPath
	if p := os.Getenv("BID_FETCH_CONFIG"); p != "" {
		defaultPath = p
	}
	configPath := flag.String("config", defaultPath, "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.IsDevelopment())
	if err != nil {
		panic(err)
	}
	defer func(log *zap.Logger) {
		_ = log.Sync()
	}(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting Bid Fetch Service...", zap.String("config", *configPath))
	if cfg.G2B.ServiceKey == "" {
		log.Warn("G2B service key is empty, the remote API will refuse searches")
	}

	lib, err := files.NewLibrary(cfg.Download.Dir, cfg.Download.MaxFileSizeMB*mb, cfg.Download.MaxZipMB*mb)
	if err != nil {
		log.Fatal("Failed to prepare downloads directory", zap.String("dir", cfg.Download.Dir), zap.Error(err))
	}

	var archive helper.Archive = helper.NopArchive{}
	if cfg.Mongo.Host != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		stores := helper.MustMongo(
			connectCtx,
			cfg.Mongo.Host,
			cfg.Mongo.DBName,
			cfg.Mongo.Username,
			cfg.Mongo.Password,
			cfg.Mongo.AuthSource,
		)
		cancel()
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = stores.Close(closeCtx)
		}()
		archive = &helper.MongoArchive{Stores: stores}
		log.Info("Search archive connected", zap.String("host", cfg.Mongo.Host), zap.String("db", cfg.Mongo.DBName))
	}

	client := processor.NewSearchClient(log, &http.Client{}, cfg.G2B.BaseURL, cfg.G2B.ServiceKey)
	client.MaxAttempts = cfg.G2B.MaxAttempts
	client.BackoffStep = cfg.G2B.BackoffStep
	client.Timeout = cfg.G2B.Timeout

	downloader := processor.NewDownloader(log, &http.Client{})
	downloader.BatchSize = cfg.Download.BatchSize
	downloader.BatchDelay = cfg.Download.BatchDelay
	downloader.MaxAttempts = cfg.Download.MaxAttempts
	downloader.RetryDelay = cfg.Download.RetryDelay
	downloader.Timeout = cfg.Download.Timeout

	if cfg.Minio.Endpoint != "" {
		mirror, err := storage.New(ctx, cfg.Minio.Endpoint, cfg.Minio.Region, cfg.Minio.Bucket,
			cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.UseSSL)
		if err != nil {
			log.Fatal("Failed to connect attachment mirror", zap.String("endpoint", cfg.Minio.Endpoint), zap.Error(err))
		}
		downloader.Mirror = mirror
		log.Info("Attachment mirror enabled", zap.String("endpoint", cfg.Minio.Endpoint), zap.String("bucket", cfg.Minio.Bucket))
	}

	svc := search.NewService(log, client, downloader, lib,
		cache.New[*model.SearchResult](cfg.Cache.MaxEntries, cfg.Cache.TTL),
		cache.New[model.SearchProgress](cfg.Cache.MaxEntries, cfg.Cache.TTL),
		archive,
	)

	if cfg.Cleanup.On() {
		worker := &scheduler.Worker{
			Log:           log,
			Cleaner:       lib,
			Spec:          cfg.Cleanup.Schedule,
			OlderThanDays: cfg.Cleanup.OlderThanDays,
		}
		if err := worker.Start(ctx); err != nil {
			log.Fatal("Failed to start maintenance scheduler", zap.Error(err))
		}
		defer worker.Stop()
	}

	gin.SetMode(cfg.Server.Mode)
	srv := &api.Server{
		Log:         log,
		Searches:    svc,
		Library:     lib,
		CORSOrigins: cfg.Server.CORSOrigins,
		BaseCtx:     ctx,
	}
	r := srv.Router()
	_ = r.SetTrustedProxies(nil)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("Bid Fetch Service is running", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}
}
