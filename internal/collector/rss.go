package collector

import (
	"bytes"
	"context"
	"io"
	"log"
	"mime"
	"regexp"
	"strings"
	"time"

	"github.com/LJTian/PresseHub/internal/catalog"
	"github.com/gocolly/colly/v2"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html/charset"
)

const (
	DefaultFetchTimeout = 10 * time.Second
	DefaultMaxEntries   = 20

	// 部分地方报站点会拦截非浏览器 UA
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	feedAccept       = "application/rss+xml, application/xml, text/xml, */*"
	feedAcceptLang   = "fr-FR,fr;q=0.9,en;q=0.8"
)

// RSSFetcher 通过 colly 拉取 feed，再用 gofeed 自动识别 RSS / Atom / JSON Feed
type RSSFetcher struct {
	Timeout    time.Duration
	MaxEntries int
	UserAgent  string
}

func NewRSSFetcher(timeout time.Duration, maxEntries int) *RSSFetcher {
	return &RSSFetcher{Timeout: timeout, MaxEntries: maxEntries}
}

func (f *RSSFetcher) timeout() time.Duration {
	if f.Timeout <= 0 {
		return DefaultFetchTimeout
	}
	return f.Timeout
}

func (f *RSSFetcher) maxEntries() int {
	if f.MaxEntries <= 0 {
		return DefaultMaxEntries
	}
	return f.MaxEntries
}

func (f *RSSFetcher) userAgent() string {
	if f.UserAgent == "" {
		return browserUserAgent
	}
	return f.UserAgent
}

func (f *RSSFetcher) Fetch(ctx context.Context, src catalog.Source) []RawEntry {
	if err := ctx.Err(); err != nil {
		log.Printf("fetch: source=%q region=%q status=error err=%v", src.Name, src.Region, err)
		return nil
	}

	body, err := f.download(src.URL)
	if err != nil {
		log.Printf("fetch: source=%q region=%q status=error err=%v", src.Name, src.Region, err)
		return nil
	}

	// gofeed 以非严格模式解析 XML，能容忍大部分结构瑕疵；彻底无法解析时按空结果处理
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		log.Printf("warn: fetch: source=%q region=%q malformed feed: %v", src.Name, src.Region, err)
		return nil
	}

	items := feed.Items
	if limit := f.maxEntries(); len(items) > limit {
		items = items[:limit]
	}

	entries := make([]RawEntry, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		entries = append(entries, toRawEntry(it))
	}

	log.Printf("fetch: source=%q region=%q status=ok entries=%d", src.Name, src.Region, len(entries))
	return entries
}

// download 每次新建 collector，避免 colly 的已访问 URL 去重影响下一轮采集。
// 返回的是未经转码的原始字节，编码交给 gofeed 按 XML 声明处理。
func (f *RSSFetcher) download(feedURL string) ([]byte, error) {
	c := colly.NewCollector(
		colly.UserAgent(f.userAgent()),
	)
	c.SetRequestTimeout(f.timeout())

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", feedAccept)
		r.Headers.Set("Accept-Language", feedAcceptLang)
		r.Headers.Set("Cache-Control", "no-cache")
	})

	// colly 会按 Content-Type 的 charset 把 body 转成 UTF-8，gofeed 再按 XML 声明解码一次就成了乱码；
	// 这里去掉 charset 参数，只在 XML 未声明编码时才用它兜底
	var headerCharset string
	c.OnResponseHeaders(func(r *colly.Response) {
		ct := r.Headers.Get("Content-Type")
		mediaType, params, err := mime.ParseMediaType(ct)
		if err != nil || params["charset"] == "" {
			return
		}
		headerCharset = params["charset"]
		r.Headers.Set("Content-Type", mediaType)
	})

	var body []byte
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})

	// 非 2xx、超时与网络错误都会从 Visit 返回
	if err := c.Visit(feedURL); err != nil {
		return nil, err
	}
	return decodeUndeclared(body, headerCharset), nil
}

var xmlEncodingDecl = regexp.MustCompile(`^\s*\x{FEFF}?\s*<\?xml[^>]*encoding\s*=`)

// decodeUndeclared XML 已声明编码或 HTTP 头未给出非 UTF-8 编码时原样返回
func decodeUndeclared(body []byte, label string) []byte {
	if label == "" || strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		return body
	}
	if xmlEncodingDecl.Match(body) {
		return body
	}
	r, err := charset.NewReaderLabel(label, bytes.NewReader(body))
	if err != nil {
		return body
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return body
	}
	return out
}

func toRawEntry(it *gofeed.Item) RawEntry {
	link := it.Link
	if strings.TrimSpace(link) == "" && len(it.Links) > 0 {
		link = it.Links[0]
	}
	return RawEntry{
		Title:       it.Title,
		Link:        link,
		Summary:     it.Description,
		Description: it.Content,
		Published:   it.PublishedParsed,
		Updated:     it.UpdatedParsed,
	}
}
