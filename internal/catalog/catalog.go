// Package catalog 描述按区域分组的 RSS 源目录。
//
// 目录在进程启动时加载一次，之后只读；由 main 构造后以指针注入采集与 API 层。
package catalog

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Source 一个具体的 RSS 源，属于且仅属于一个区域
type Source struct {
	Name   string `yaml:"name" json:"name"`
	URL    string `yaml:"url" json:"url"`
	Region string `yaml:"-" json:"region"`
}

// Region 区域：Slug 为显式声明的规范标识，不从显示名推导
type Region struct {
	Name    string   `yaml:"name" json:"name"`
	Slug    string   `yaml:"slug" json:"slug"`
	Sources []Source `yaml:"sources" json:"sources"`
}

type Catalog struct {
	Regions []Region `yaml:"regions" json:"regions"`

	bySlug map[string]int
	byName map[string]int
}

// Default 返回内置目录（18 个区域 / 68 个源）
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load 从 YAML 文件加载目录，path 为空时使用内置目录
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog: parse yaml: %w", err)
	}
	if err := c.init(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) init() error {
	if len(c.Regions) == 0 {
		return fmt.Errorf("catalog: no regions")
	}
	c.bySlug = make(map[string]int, len(c.Regions))
	c.byName = make(map[string]int, len(c.Regions))

	for i := range c.Regions {
		r := &c.Regions[i]
		r.Name = strings.TrimSpace(r.Name)
		r.Slug = strings.TrimSpace(r.Slug)
		if r.Name == "" {
			return fmt.Errorf("catalog: region #%d has no name", i+1)
		}
		if !validSlug(r.Slug) {
			return fmt.Errorf("catalog: region %q has invalid slug %q", r.Name, r.Slug)
		}
		if _, dup := c.bySlug[r.Slug]; dup {
			return fmt.Errorf("catalog: duplicate slug %q", r.Slug)
		}
		if _, dup := c.byName[r.Name]; dup {
			return fmt.Errorf("catalog: duplicate region %q", r.Name)
		}
		if len(r.Sources) == 0 {
			return fmt.Errorf("catalog: region %q has no sources", r.Name)
		}
		for j := range r.Sources {
			s := &r.Sources[j]
			s.Name = strings.TrimSpace(s.Name)
			s.URL = strings.TrimSpace(s.URL)
			s.Region = r.Name
			if s.Name == "" {
				return fmt.Errorf("catalog: region %q source #%d has no name", r.Name, j+1)
			}
			if u, err := url.Parse(s.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return fmt.Errorf("catalog: source %q has invalid url %q", s.Name, s.URL)
			}
		}
		c.bySlug[r.Slug] = i
		c.byName[r.Name] = i
	}
	return nil
}

// validSlug 只允许小写字母、数字与连字符
func validSlug(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return false
		}
	}
	return true
}

func (c *Catalog) RegionBySlug(slug string) (Region, bool) {
	i, ok := c.bySlug[strings.ToLower(strings.TrimSpace(slug))]
	if !ok {
		return Region{}, false
	}
	return c.Regions[i], true
}

func (c *Catalog) RegionByName(name string) (Region, bool) {
	i, ok := c.byName[strings.TrimSpace(name)]
	if !ok {
		return Region{}, false
	}
	return c.Regions[i], true
}

// Resolve 同时接受 slug 或显示名
func (c *Catalog) Resolve(key string) (Region, bool) {
	if r, ok := c.RegionBySlug(key); ok {
		return r, true
	}
	return c.RegionByName(key)
}

func (c *Catalog) SourceCount() int {
	n := 0
	for _, r := range c.Regions {
		n += len(r.Sources)
	}
	return n
}

func (c *Catalog) RegionNames() []string {
	names := make([]string, 0, len(c.Regions))
	for _, r := range c.Regions {
		names = append(names, r.Name)
	}
	return names
}
