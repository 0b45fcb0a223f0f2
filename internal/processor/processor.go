package processor

import (
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/LJTian/PresseHub/internal/catalog"
	"github.com/LJTian/PresseHub/internal/collector"
)

const (
	// DescriptionMaxRunes 简介最大长度（按 rune 计），超出部分截断并追加 descriptionEllipsis
	DescriptionMaxRunes = 300
	descriptionEllipsis = "..."
)

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// Article 是写入存储层前的统一结构；PublishedAt 永远不为零值
type Article struct {
	Title       string
	URL         string
	Description string
	Source      string
	Region      string
	PublishedAt time.Time
}

// SimpleProcessor 把原始 feed 条目规范化为 Article
type SimpleProcessor struct {
	// Now 用于缺少发布时间时的兜底，测试中可替换
	Now func() time.Time
}

func NewSimpleProcessor() *SimpleProcessor {
	return &SimpleProcessor{Now: time.Now}
}

// Process 按原顺序规范化一个源的全部条目，无效条目直接跳过
func (p *SimpleProcessor) Process(entries []collector.RawEntry, src catalog.Source) []Article {
	out := make([]Article, 0, len(entries))
	for _, e := range entries {
		if a, ok := p.Normalize(e, src); ok {
			out = append(out, a)
		}
	}
	return out
}

// Normalize 规范化单条条目；缺少标题或链接、或处理过程中 panic 时返回 false
func (p *SimpleProcessor) Normalize(e collector.RawEntry, src catalog.Source) (a Article, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("warn: normalize: source=%q skip entry: %v", src.Name, r)
			a, ok = Article{}, false
		}
	}()

	title := strings.TrimSpace(e.Title)
	link := strings.TrimSpace(e.Link)
	if title == "" || link == "" {
		return Article{}, false
	}

	desc := e.Summary
	if strings.TrimSpace(desc) == "" {
		desc = e.Description
	}

	return Article{
		Title:       title,
		URL:         link,
		Description: cleanDescription(desc),
		Source:      src.Name,
		Region:      src.Region,
		PublishedAt: p.publishedAt(e),
	}, true
}

// publishedAt 顺序：published → updated → 当前时间
func (p *SimpleProcessor) publishedAt(e collector.RawEntry) time.Time {
	if e.Published != nil && !e.Published.IsZero() {
		return *e.Published
	}
	if e.Updated != nil && !e.Updated.IsZero() {
		return *e.Updated
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return now()
}

// cleanDescription 先去首尾空白，再去掉 HTML 标签、只替换 &nbsp; 与 &amp; 两个实体，最后按 rune 截断。
// 清洗后不再 trim，结果始终是清洗文本的前缀。
func cleanDescription(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = tagPattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	return truncateRunes(s, DescriptionMaxRunes)
}

func truncateRunes(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit]) + descriptionEllipsis
}
