package api

import (
	"net/http"
	"strconv"

	"github.com/LJTian/PresseHub/internal/catalog"
	"github.com/LJTian/PresseHub/internal/storage"
	"github.com/gin-gonic/gin"
)

// Trigger 由调度器实现，非阻塞地请求一轮采集
type Trigger interface {
	Trigger() bool
}

type Server struct {
	store   *storage.Store
	catalog *catalog.Catalog
	trigger Trigger
}

func NewServer(store *storage.Store, cat *catalog.Catalog, trigger Trigger) *Server {
	return &Server{store: store, catalog: cat, trigger: trigger}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	g := r.Group("/api")
	{
		g.GET("/regions", s.listRegions)
		g.GET("/regions/:slug/articles", s.regionArticles)
		g.GET("/articles/top", s.topArticles)
		g.GET("/search", s.search)
		g.GET("/stats", s.stats)
		g.GET("/runs", s.listRuns)
		g.POST("/collect", s.collect)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	})
}

func internalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "internal_error",
		"message": "internal server error",
	})
}

func queryLimit(c *gin.Context, def int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}

type regionView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	NbArticles int64  `json:"nbArticles"`
	NbSources  int    `json:"nbSources"`
}

func (s *Server) listRegions(c *gin.Context) {
	counts, err := s.store.CountByRegion(c.Request.Context())
	if err != nil {
		internalError(c)
		return
	}
	out := make([]regionView, 0, len(s.catalog.Regions))
	for _, r := range s.catalog.Regions {
		out = append(out, regionView{
			ID:         r.Slug,
			Name:       r.Name,
			NbArticles: counts[r.Name],
			NbSources:  len(r.Sources),
		})
	}
	ok(c, out)
}

func (s *Server) regionArticles(c *gin.Context) {
	region, found := s.catalog.RegionBySlug(c.Param("slug"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "not_found",
			"message": "region not found",
		})
		return
	}
	items, err := s.store.ListArticles(c.Request.Context(), region.Name, queryLimit(c, storage.MaxListLimit))
	if err != nil {
		internalError(c)
		return
	}
	ok(c, items)
}

func (s *Server) topArticles(c *gin.Context) {
	items, err := s.store.ListArticles(c.Request.Context(), "", queryLimit(c, storage.MaxListLimit))
	if err != nil {
		internalError(c)
		return
	}
	ok(c, items)
}

// search region 参数可以是 slug 或区域名；未知区域返回空列表
func (s *Server) search(c *gin.Context) {
	q := c.Query("q")
	regionName := ""
	if key := c.Query("region"); key != "" {
		region, found := s.catalog.Resolve(key)
		if !found {
			ok(c, []storage.Article{})
			return
		}
		regionName = region.Name
	}

	items, err := s.store.Search(c.Request.Context(), q, regionName, queryLimit(c, storage.MaxSearchLimit))
	if err != nil {
		internalError(c)
		return
	}
	ok(c, items)
}

func (s *Server) stats(c *gin.Context) {
	st, err := s.store.Stats(c.Request.Context())
	if err != nil {
		internalError(c)
		return
	}
	ok(c, gin.H{
		"totalArticles":  st.TotalArticles,
		"totalSources":   s.catalog.SourceCount(),
		"totalRegions":   len(s.catalog.Regions),
		"activeSources":  st.ActiveSources,
		"activeRegions":  st.ActiveRegions,
		"lastCollection": st.LastCollection,
		"lastRun":        st.LastRun,
	})
}

func (s *Server) listRuns(c *gin.Context) {
	runs, err := s.store.ListRuns(c.Request.Context(), queryLimit(c, 10))
	if err != nil {
		internalError(c)
		return
	}
	ok(c, runs)
}

// collect 只负责入队，立即返回 202
func (s *Server) collect(c *gin.Context) {
	status := "queued"
	if !s.trigger.Trigger() {
		status = "already_queued"
	}
	c.JSON(http.StatusAccepted, gin.H{"status": status})
}
