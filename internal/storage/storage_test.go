package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/LJTian/PresseHub/internal/processor"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore("sqlite", filepath.Join(t.TempDir(), "test.db"), "")
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func article(url, title, region string, published time.Time) processor.Article {
	return processor.Article{
		Title:       title,
		URL:         url,
		Description: "desc " + title,
		Source:      "Ouest-France",
		Region:      region,
		PublishedAt: published,
	}
}

func TestSaveBatchIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	batch := []processor.Article{
		article("https://example.fr/1", "Un", "Bretagne", base),
		article("https://example.fr/2", "Deux", "Bretagne", base.Add(time.Hour)),
		article("https://example.fr/3", "Trois", "Bretagne", base.Add(2*time.Hour)),
	}
	if n := s.SaveBatch(ctx, batch); n != 3 {
		t.Fatalf("first SaveBatch = %d, want 3", n)
	}
	if n := s.SaveBatch(ctx, batch); n != 0 {
		t.Fatalf("second SaveBatch = %d, want 0", n)
	}

	var count int64
	s.DB.Model(&Article{}).Count(&count)
	if count != 3 {
		t.Fatalf("row count = %d, want 3", count)
	}
}

func TestSaveBatchDuplicateWithinBatchKeepsFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	n := s.SaveBatch(ctx, []processor.Article{
		article("https://example.fr/a", "Premier", "Bretagne", now),
		article("https://example.fr/a", "Second", "Normandie", now),
	})
	if n != 1 {
		t.Fatalf("SaveBatch = %d, want 1", n)
	}

	var got Article
	if err := s.DB.Where("url = ?", "https://example.fr/a").First(&got).Error; err != nil {
		t.Fatalf("load article: %v", err)
	}
	if got.Title != "Premier" || got.Region != "Bretagne" {
		t.Fatalf("stored %+v, want first occurrence", got)
	}
	if got.CollectedAt.IsZero() {
		t.Fatalf("CollectedAt should be set")
	}
}

func TestSaveBatchSkipsFailedRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	// 指定 url 的插入失败，其余行不受影响
	const badURL = "https://example.fr/2"
	err := s.DB.Callback().Create().Before("gorm:create").Register("test:fail_one_url", func(db *gorm.DB) {
		if a, ok := db.Statement.Dest.(*Article); ok && a.URL == badURL {
			_ = db.AddError(errors.New("insert refused"))
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	n := s.SaveBatch(ctx, []processor.Article{
		article("https://example.fr/1", "Un", "Bretagne", base),
		article(badURL, "Deux", "Bretagne", base),
		article("https://example.fr/3", "Trois", "Bretagne", base),
	})
	if n != 2 {
		t.Fatalf("SaveBatch = %d, want 2", n)
	}

	var urls []string
	s.DB.Model(&Article{}).Order("url").Pluck("url", &urls)
	if len(urls) != 2 || urls[0] != "https://example.fr/1" || urls[1] != "https://example.fr/3" {
		t.Fatalf("stored urls = %v", urls)
	}
}

func TestSaveBatchEmpty(t *testing.T) {
	s := newTestStore(t)
	if n := s.SaveBatch(context.Background(), nil); n != 0 {
		t.Fatalf("SaveBatch(nil) = %d, want 0", n)
	}
}

func TestSaveRunRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	details := []RegionDetail{
		{Region: "Bretagne", Slug: "bretagne", SourcesOK: 3, SourcesTotal: 4, NewArticles: 3, ArticlesSeen: 3},
		{Region: "Normandie", Slug: "normandie", SourcesOK: 0, SourcesTotal: 3},
	}
	run := &CollectionRun{
		RunAt:        time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		SourcesTotal: 7,
		SourcesOK:    3,
		NewArticles:  3,
		DurationMs:   1200,
		Details:      datatypes.NewJSONType(details),
	}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun error: %v", err)
	}
	if run.ID == 0 {
		t.Fatalf("run id not assigned")
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns error: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	got := runs[0]
	if got.SourcesTotal != 7 || got.SourcesOK != 3 || got.NewArticles != 3 || got.DurationMs != 1200 {
		t.Fatalf("unexpected run: %+v", got)
	}
	d := got.Details.Data()
	if len(d) != 2 || d[0].Slug != "bretagne" || d[0].SourcesOK != 3 || d[1].SourcesTotal != 3 {
		t.Fatalf("details = %+v", d)
	}
}

func TestSaveRunErrorIsReturned(t *testing.T) {
	s := newTestStore(t)
	sqlDB, _ := s.DB.DB()
	_ = sqlDB.Close()

	if err := s.SaveRun(context.Background(), &CollectionRun{RunAt: time.Now().UTC()}); err == nil {
		t.Fatalf("expected error on closed database")
	}
}

func TestListArticlesOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	s.SaveBatch(ctx, []processor.Article{
		article("https://example.fr/old", "Ancien", "Bretagne", base),
		article("https://example.fr/new", "Récent", "Bretagne", base.Add(2*time.Hour)),
		article("https://example.fr/mid", "Milieu", "Normandie", base.Add(time.Hour)),
	})

	all, err := s.ListArticles(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListArticles error: %v", err)
	}
	if len(all) != 3 || all[0].Title != "Récent" || all[1].Title != "Milieu" || all[2].Title != "Ancien" {
		t.Fatalf("unexpected order: %+v", all)
	}

	bzh, _ := s.ListArticles(ctx, "Bretagne", 1)
	if len(bzh) != 1 || bzh[0].Title != "Récent" {
		t.Fatalf("region filter/limit failed: %+v", bzh)
	}
}

func TestSearchIsCaseInsensitiveAndLiteral(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	s.SaveBatch(ctx, []processor.Article{
		article("https://example.fr/1", "Tempête à Brest", "Bretagne", base),
		article("https://example.fr/2", "Marché de Caen", "Normandie", base),
		article("https://example.fr/3", "Remise de 100% sur le ferry", "Bretagne", base),
	})

	got, err := s.Search(ctx, "BREST", "", 0)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(got) != 1 || got[0].URL != "https://example.fr/1" {
		t.Fatalf("search BREST = %+v", got)
	}

	got, _ = s.Search(ctx, "%", "", 0)
	if len(got) != 1 || got[0].URL != "https://example.fr/3" {
		t.Fatalf("wildcard should match literally, got %+v", got)
	}

	got, _ = s.Search(ctx, "ouest-france", "Normandie", 0)
	if len(got) != 1 || got[0].Region != "Normandie" {
		t.Fatalf("source match with region filter = %+v", got)
	}

	got, _ = s.Search(ctx, "   ", "", 0)
	if len(got) != 0 {
		t.Fatalf("blank query should return nothing, got %d", len(got))
	}
}

func TestSearchFoldsAccentedCapitals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	s.SaveBatch(ctx, []processor.Article{
		article("https://example.fr/ecole", "École de Brest", "Bretagne", base),
		article("https://example.fr/etang", "Étang de Berre", "Provence-Alpes-Côte d'Azur", base),
	})

	for _, q := range []string{"école", "ÉCOLE", "École"} {
		got, err := s.Search(ctx, q, "", 0)
		if err != nil {
			t.Fatalf("Search(%q) error: %v", q, err)
		}
		if len(got) != 1 || got[0].URL != "https://example.fr/ecole" {
			t.Fatalf("Search(%q) = %+v", q, got)
		}
	}
}

func TestStatsAndCountByRegion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	s.SaveBatch(ctx, []processor.Article{
		article("https://example.fr/1", "Un", "Bretagne", base),
		article("https://example.fr/2", "Deux", "Bretagne", base),
		article("https://example.fr/3", "Trois", "Normandie", base),
	})
	runAt := base.Add(time.Hour)
	if err := s.SaveRun(ctx, &CollectionRun{RunAt: runAt, SourcesTotal: 2, SourcesOK: 2, NewArticles: 3}); err != nil {
		t.Fatalf("SaveRun error: %v", err)
	}

	counts, err := s.CountByRegion(ctx)
	if err != nil {
		t.Fatalf("CountByRegion error: %v", err)
	}
	if counts["Bretagne"] != 2 || counts["Normandie"] != 1 {
		t.Fatalf("counts = %v", counts)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if st.TotalArticles != 3 || st.ActiveSources != 1 || st.ActiveRegions != 2 {
		t.Fatalf("stats = %+v", st)
	}
	if st.LastCollection == nil || !st.LastCollection.Equal(runAt) {
		t.Fatalf("LastCollection = %v, want %v", st.LastCollection, runAt)
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct{ in, upper, want int }{
		{0, 100, 100},
		{-1, 100, 100},
		{20, 100, 20},
		{500, 100, 100},
	}
	for _, c := range cases {
		if got := clampLimit(c.in, c.upper); got != c.want {
			t.Fatalf("clampLimit(%d, %d) = %d, want %d", c.in, c.upper, got, c.want)
		}
	}
}
