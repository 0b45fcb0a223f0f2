package main

import (
	"context"
	"log"

	"github.com/LJTian/PresseHub/internal/catalog"
	"github.com/LJTian/PresseHub/internal/collector"
	"github.com/LJTian/PresseHub/internal/config"
	"github.com/LJTian/PresseHub/internal/events"
	"github.com/LJTian/PresseHub/internal/processor"
	"github.com/LJTian/PresseHub/internal/scheduler"
	"github.com/LJTian/PresseHub/internal/storage"
)

// 一个仅执行一次采集任务的命令行入口：适合手动触发采集或由外部 cron 调用
func main() {
	cfg := config.Load()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("load catalog failed: %v", err)
	}

	store, err := storage.NewStore(cfg.DBDriver, cfg.DSN(), cfg.RedisAddr)
	if err != nil {
		log.Fatalf("init store failed: %v", err)
	}
	defer store.Close()

	var pub events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		if kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic); err != nil {
			log.Printf("warn: kafka publisher disabled: %v", err)
		} else {
			pub = kp
		}
	}
	defer pub.Close()

	fetcher := collector.NewRSSFetcher(cfg.FetchTimeout, cfg.FetchMaxEntries)
	orch := scheduler.NewOrchestrator(cat, fetcher, processor.NewSimpleProcessor(), store, pub, cfg.FetchWorkers)

	// 只执行一轮采集任务后退出
	sum, err := orch.RunOnce(context.Background())
	if err != nil {
		log.Fatalf("collect failed: %v", err)
	}
	log.Printf("collect finished: sources=%d/%d new=%d", sum.SourcesOK, sum.SourcesTotal, sum.NewArticles)
}
