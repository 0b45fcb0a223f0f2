package collector

import (
	"context"
	"time"

	"github.com/LJTian/PresseHub/internal/catalog"
)

// RawEntry 单条原始 feed 条目，字段保持上游原样（仅做类型化），清洗交给 processor
type RawEntry struct {
	Title string
	Link  string
	// Summary 优先于 Description 作为简介来源
	Summary     string
	Description string
	Published   *time.Time
	Updated     *time.Time
}

// FeedFetcher 抽象一次对单个源的抓取；任何失败都转换为空结果，不向调用方返回错误
type FeedFetcher interface {
	Fetch(ctx context.Context, src catalog.Source) []RawEntry
}
