package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/LJTian/PresseHub/internal/catalog"
	"github.com/LJTian/PresseHub/internal/collector"
	"github.com/LJTian/PresseHub/internal/events"
	"github.com/LJTian/PresseHub/internal/processor"
	"github.com/LJTian/PresseHub/internal/storage"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

// ArticleStore 是编排器需要的存储能力，*storage.Store 实现了它
type ArticleStore interface {
	SaveBatch(ctx context.Context, items []processor.Article) int
	SaveRun(ctx context.Context, run *storage.CollectionRun) error
}

// RunSummary 一轮采集的汇总，Regions 与目录中的区域顺序一致
type RunSummary struct {
	RunAt        time.Time              `json:"runAt"`
	SourcesTotal int                    `json:"sourcesTotal"`
	SourcesOK    int                    `json:"sourcesOk"`
	NewArticles  int                    `json:"newArticles"`
	ArticlesSeen int                    `json:"articlesSeen"`
	Duration     time.Duration          `json:"duration"`
	Regions      []storage.RegionDetail `json:"regions"`
}

type Orchestrator struct {
	catalog   *catalog.Catalog
	fetcher   collector.FeedFetcher
	processor *processor.SimpleProcessor
	store     ArticleStore
	publisher events.Publisher
	workers   int
}

// NewOrchestrator workers 为单个区域内并发抓取的源数上限，<=1 时顺序抓取
func NewOrchestrator(cat *catalog.Catalog, f collector.FeedFetcher, p *processor.SimpleProcessor, store ArticleStore, pub events.Publisher, workers int) *Orchestrator {
	if pub == nil {
		pub = events.Nop{}
	}
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		catalog:   cat,
		fetcher:   f,
		processor: p,
		store:     store,
		publisher: pub,
		workers:   workers,
	}
}

// RunOnce 按目录顺序采集全部区域并写入一条 CollectionRun。
// 单个源的失败只影响该源；只有采集记录写入失败时才返回错误（已写入的文章不回滚）。
func (o *Orchestrator) RunOnce(ctx context.Context) (RunSummary, error) {
	start := time.Now()
	summary := RunSummary{RunAt: start.UTC()}
	log.Println("start collect job...")

	for _, region := range o.catalog.Regions {
		detail := o.collectRegion(ctx, region)
		summary.Regions = append(summary.Regions, detail)
		summary.SourcesTotal += detail.SourcesTotal
		summary.SourcesOK += detail.SourcesOK
		summary.NewArticles += detail.NewArticles
		summary.ArticlesSeen += detail.ArticlesSeen
	}
	summary.Duration = time.Since(start)

	run := &storage.CollectionRun{
		RunAt:        summary.RunAt,
		SourcesTotal: summary.SourcesTotal,
		SourcesOK:    summary.SourcesOK,
		NewArticles:  summary.NewArticles,
		DurationMs:   summary.Duration.Milliseconds(),
		Details:      datatypes.NewJSONType(summary.Regions),
	}
	if err := o.store.SaveRun(ctx, run); err != nil {
		return summary, fmt.Errorf("scheduler: persist collection run: %w", err)
	}

	log.Printf("collect job done: sources=%d/%d new=%d seen=%d duration=%s",
		summary.SourcesOK, summary.SourcesTotal, summary.NewArticles, summary.ArticlesSeen, summary.Duration.Round(time.Millisecond))

	if err := o.publisher.PublishRun(ctx, summary.event()); err != nil {
		log.Printf("warn: publish run summary: %v", err)
	}
	return summary, nil
}

func (o *Orchestrator) collectRegion(ctx context.Context, region catalog.Region) storage.RegionDetail {
	detail := storage.RegionDetail{
		Region:       region.Name,
		Slug:         region.Slug,
		SourcesTotal: len(region.Sources),
	}

	// 结果按源下标存放，保证批次内顺序与目录一致，与完成先后无关
	results := make([][]collector.RawEntry, len(region.Sources))
	var g errgroup.Group
	g.SetLimit(o.workers)
	for i, src := range region.Sources {
		i, src := i, src
		g.Go(func() error {
			results[i] = o.fetch(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	// 源至少产出 1 篇有效文章才算成功；条目全部缺标题或链接时不计入
	var batch []processor.Article
	for i, src := range region.Sources {
		articles := o.processor.Process(results[i], src)
		if len(articles) == 0 {
			continue
		}
		detail.SourcesOK++
		batch = append(batch, articles...)
	}
	detail.ArticlesSeen = len(batch)

	if len(batch) > 0 {
		detail.NewArticles = o.store.SaveBatch(ctx, batch)
	}
	log.Printf("region %s done: sources=%d/%d seen=%d new=%d",
		region.Name, detail.SourcesOK, detail.SourcesTotal, detail.ArticlesSeen, detail.NewArticles)
	return detail
}

// fetch 隔离单个源：抓取器 panic 也只当作该源不可用
func (o *Orchestrator) fetch(ctx context.Context, src catalog.Source) (entries []collector.RawEntry) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("warn: fetch %s panic: %v", src.Name, r)
			entries = nil
		}
	}()
	return o.fetcher.Fetch(ctx, src)
}

func (s RunSummary) event() events.RunEvent {
	return events.RunEvent{
		RunAt:        s.RunAt,
		SourcesTotal: s.SourcesTotal,
		SourcesOK:    s.SourcesOK,
		NewArticles:  s.NewArticles,
		ArticlesSeen: s.ArticlesSeen,
		DurationMs:   s.Duration.Milliseconds(),
		Regions:      s.Regions,
	}
}
