package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/LJTian/PresseHub/internal/api"
	"github.com/LJTian/PresseHub/internal/catalog"
	"github.com/LJTian/PresseHub/internal/collector"
	"github.com/LJTian/PresseHub/internal/config"
	"github.com/LJTian/PresseHub/internal/events"
	"github.com/LJTian/PresseHub/internal/processor"
	"github.com/LJTian/PresseHub/internal/scheduler"
	"github.com/LJTian/PresseHub/internal/storage"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("load catalog failed: %v", err)
	}
	log.Printf("catalog: %d regions, %d sources", len(cat.Regions), cat.SourceCount())

	store, err := storage.NewStore(cfg.DBDriver, cfg.DSN(), cfg.RedisAddr)
	if err != nil {
		log.Fatalf("init store failed: %v", err)
	}
	defer store.Close()

	var pub events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			// Kafka 只是旁路通知，不可用时不影响采集
			log.Printf("warn: kafka publisher disabled: %v", err)
		} else {
			pub = kp
		}
	}
	defer pub.Close()

	fetcher := collector.NewRSSFetcher(cfg.FetchTimeout, cfg.FetchMaxEntries)
	orch := scheduler.NewOrchestrator(cat, fetcher, processor.NewSimpleProcessor(), store, pub, cfg.FetchWorkers)
	s, err := scheduler.New(cfg.CronSpec, orch)
	if err != nil {
		log.Fatalf("init scheduler failed: %v", err)
	}
	s.StartupDelay = cfg.StartupDelay

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	s.Start(ctx)

	// API
	r := gin.Default()
	apiServer := api.NewServer(store, cat, s)
	apiServer.RegisterRoutes(r)

	// 若配置了前端目录，则托管 SPA 静态文件并做 fallback
	if cfg.WebRoot != "" {
		assetsDir := filepath.Join(cfg.WebRoot, "assets")
		indexFile := filepath.Join(cfg.WebRoot, "index.html")
		r.Static("/assets", assetsDir)
		r.NoRoute(func(c *gin.Context) {
			if c.Request.Method != http.MethodGet {
				c.Status(http.StatusNotFound)
				return
			}
			// SPA：未匹配 API 的 GET 均返回 index.html
			c.File(indexFile)
		})
	}

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}
	go func() {
		log.Printf("starting api server at %s ...", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server exit: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("warn: http shutdown: %v", err)
	}
	s.Stop()
	log.Println("server stopped")
}
