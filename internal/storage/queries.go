package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	MaxListLimit   = 100
	MaxSearchLimit = 50
	MaxRunsLimit   = 50
)

func clampLimit(limit, upper int) int {
	if limit <= 0 || limit > upper {
		return upper
	}
	return limit
}

// ListArticles 按发布时间倒序返回文章，region 为空时不过滤
func (s *Store) ListArticles(ctx context.Context, region string, limit int) ([]Article, error) {
	limit = clampLimit(limit, MaxListLimit)
	key := fmt.Sprintf("articles:%s:%d", region, limit)

	return cachedQuery(ctx, s, key, func() ([]Article, error) {
		var list []Article
		db := s.DB.WithContext(ctx).Model(&Article{})
		if region != "" {
			db = db.Where("region = ?", region)
		}
		if err := db.Order("date_publication DESC").Order("id DESC").Limit(limit).Find(&list).Error; err != nil {
			return nil, err
		}
		return list, nil
	})
}

// escapeLike 转义 LIKE 通配符，用户输入按字面匹配
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Search 在标题、简介、来源中做不区分大小写的子串匹配
func (s *Store) Search(ctx context.Context, query, region string, limit int) ([]Article, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Article{}, nil
	}
	limit = clampLimit(limit, MaxSearchLimit)
	key := fmt.Sprintf("search:%s:%s:%d", strings.ToLower(query), region, limit)

	return cachedQuery(ctx, s, key, func() ([]Article, error) {
		pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
		var list []Article
		lower := s.lowerFunc()
		cond := fmt.Sprintf(`%[1]s(title) LIKE ? ESCAPE '\' OR %[1]s(description) LIKE ? ESCAPE '\' OR %[1]s(source) LIKE ? ESCAPE '\'`, lower)
		db := s.DB.WithContext(ctx).Model(&Article{}).Where(cond, pattern, pattern, pattern)
		if region != "" {
			db = db.Where("region = ?", region)
		}
		if err := db.Order("date_publication DESC").Order("id DESC").Limit(limit).Find(&list).Error; err != nil {
			return nil, err
		}
		return list, nil
	})
}

// CountByRegion 返回各区域已入库的文章数
func (s *Store) CountByRegion(ctx context.Context) (map[string]int64, error) {
	return cachedQuery(ctx, s, "count:region", func() (map[string]int64, error) {
		var rows []struct {
			Region string
			N      int64
		}
		if err := s.DB.WithContext(ctx).Model(&Article{}).
			Select("region, COUNT(*) AS n").
			Group("region").
			Scan(&rows).Error; err != nil {
			return nil, err
		}
		out := make(map[string]int64, len(rows))
		for _, r := range rows {
			out[r.Region] = r.N
		}
		return out, nil
	})
}

type Stats struct {
	TotalArticles  int64          `json:"totalArticles"`
	ActiveSources  int64          `json:"activeSources"`
	ActiveRegions  int64          `json:"activeRegions"`
	LastCollection *time.Time     `json:"lastCollection"`
	LastRun        *CollectionRun `json:"lastRun,omitempty"`
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	return cachedQuery(ctx, s, "stats", func() (Stats, error) {
		var st Stats
		db := s.DB.WithContext(ctx)
		if err := db.Model(&Article{}).Count(&st.TotalArticles).Error; err != nil {
			return st, err
		}
		if err := db.Model(&Article{}).Distinct("source").Count(&st.ActiveSources).Error; err != nil {
			return st, err
		}
		if err := db.Model(&Article{}).Distinct("region").Count(&st.ActiveRegions).Error; err != nil {
			return st, err
		}

		runs, err := s.listRuns(ctx, 1)
		if err != nil {
			return st, err
		}
		if len(runs) > 0 {
			last := runs[0]
			st.LastRun = &last
			st.LastCollection = &last.RunAt
		}
		return st, nil
	})
}

// ListRuns 返回最近的采集记录，新的在前
func (s *Store) ListRuns(ctx context.Context, limit int) ([]CollectionRun, error) {
	limit = clampLimit(limit, MaxRunsLimit)
	return cachedQuery(ctx, s, fmt.Sprintf("runs:%d", limit), func() ([]CollectionRun, error) {
		return s.listRuns(ctx, limit)
	})
}

func (s *Store) listRuns(ctx context.Context, limit int) ([]CollectionRun, error) {
	var runs []CollectionRun
	if err := s.DB.WithContext(ctx).Order("run_at DESC").Order("id DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
