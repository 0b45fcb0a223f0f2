package storage

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/LJTian/PresseHub/internal/processor"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Article 已入库的文章；url 为全局唯一的去重键
type Article struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	Title       string    `gorm:"type:text;not null" json:"title"`
	URL         string    `gorm:"type:text;not null;uniqueIndex:idx_articles_url" json:"url"`
	Description string    `gorm:"type:text" json:"description"`
	Source      string    `gorm:"size:256;not null;index:idx_articles_source" json:"source"`
	Region      string    `gorm:"size:128;not null;index:idx_articles_region" json:"region"`
	PublishedAt time.Time `gorm:"column:date_publication;index:idx_articles_date,sort:desc" json:"publishedAt"`
	CollectedAt time.Time `gorm:"column:date_collecte" json:"collectedAt"`
}

func (Article) TableName() string { return "articles" }

// RegionDetail 单个区域在一轮采集中的统计
type RegionDetail struct {
	Region       string `json:"region"`
	Slug         string `json:"slug"`
	SourcesOK    int    `json:"sourcesOk"`
	SourcesTotal int    `json:"sourcesTotal"`
	NewArticles  int    `json:"articlesNouveaux"`
	ArticlesSeen int    `json:"articlesTotal"`
}

// CollectionRun 每轮采集结束后写入一条，之后不再修改
type CollectionRun struct {
	ID           uint                                `gorm:"primaryKey" json:"id"`
	RunAt        time.Time                           `gorm:"index:idx_collection_runs_run_at" json:"runAt"`
	SourcesTotal int                                 `json:"sourcesTotal"`
	SourcesOK    int                                 `gorm:"column:sources_ok" json:"sourcesOk"`
	NewArticles  int                                 `json:"newArticles"`
	DurationMs   int64                               `json:"durationMs"`
	Details      datatypes.JSONType[[]RegionDetail] `json:"details"`
}

func (CollectionRun) TableName() string { return "collection_runs" }

type Store struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStore 按驱动打开存储：postgres（网络关系库）或 sqlite（内嵌文件）
func NewStore(driver, dsn, redisAddr string) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	case "sqlite", "":
		dialector = sqlite.Open(sqliteDSN(dsn))
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", driver)
	}
	return Open(dialector, redisAddr)
}

func Open(dialector gorm.Dialector, redisAddr string) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}

	// sqlite 单写者，串行化连接避免 database is locked
	if db.Dialector.Name() == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("storage: sql db: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&Article{}, &CollectionRun{}); err != nil {
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}

	s := &Store{DB: db}
	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr: redisAddr,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("warn: redis ping failed: %v", err)
		}
		s.Redis = rdb
	}

	return s, nil
}

func sqliteDSN(path string) string {
	if path == "" {
		path = "pressehub.db"
	}
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (s *Store) Close() error {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// toValidUTF8 将字符串规范为合法 UTF-8，避免 PostgreSQL invalid byte sequence 错误（部分源编码声明与实际不符）
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

// SaveBatch 逐条以 INSERT ... ON CONFLICT (url) DO NOTHING 写入，返回实际新增的行数。
// 单条失败只记录日志并跳过；并发的多轮采集依靠唯一约束保证最多插入一次。
func (s *Store) SaveBatch(ctx context.Context, items []processor.Article) int {
	inserted := 0
	for _, it := range items {
		a := &Article{
			Title:       toValidUTF8(it.Title),
			URL:         toValidUTF8(it.URL),
			Description: toValidUTF8(it.Description),
			Source:      it.Source,
			Region:      it.Region,
			// 统一存 UTC，保证 sqlite 文本时间列的排序正确
			PublishedAt: it.PublishedAt.UTC(),
			CollectedAt: time.Now().UTC(),
		}

		res := s.DB.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "url"}}, DoNothing: true}).
			Create(a)
		if res.Error != nil {
			log.Printf("store: save article url=%q error: %v", it.URL, res.Error)
			continue
		}
		inserted += int(res.RowsAffected)
	}

	if inserted > 0 {
		s.bumpCacheGeneration(ctx)
	}
	return inserted
}

// SaveRun 写入一轮采集的汇总；错误需要返回给调用方
func (s *Store) SaveRun(ctx context.Context, run *CollectionRun) error {
	if err := s.DB.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("storage: save collection run: %w", err)
	}
	s.bumpCacheGeneration(ctx)
	return nil
}
