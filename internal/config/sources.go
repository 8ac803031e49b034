package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gilliek/go-opml/opml"

	"github.com/hitoshi/secfeed/internal/model"
)

// DefaultSources はSOURCES_FILE未指定時に使用するセキュリティ系フィード一覧。
func DefaultSources() []model.Source {
	return []model.Source{
		{Name: "The Hacker News", FeedURL: "https://feeds.feedburner.com/TheHackersNews", IconURL: "https://thehackernews.com/favicon.ico"},
		{Name: "BleepingComputer", FeedURL: "https://www.bleepingcomputer.com/feed/", IconURL: "https://www.bleepingcomputer.com/favicon.ico"},
		{Name: "Krebs on Security", FeedURL: "https://krebsonsecurity.com/feed/", IconURL: "https://krebsonsecurity.com/favicon.ico"},
		{Name: "Dark Reading", FeedURL: "https://www.darkreading.com/rss.xml", IconURL: "https://www.darkreading.com/favicon.ico"},
		{Name: "SecurityWeek", FeedURL: "https://www.securityweek.com/feed/", IconURL: "https://www.securityweek.com/favicon.ico"},
		{Name: "Schneier on Security", FeedURL: "https://www.schneier.com/feed/atom/", IconURL: "https://www.schneier.com/favicon.ico"},
	}
}

// LoadSources はソース定義ファイルを読み込む。
// 拡張子が .opml の場合はOPMLとして、それ以外はJSON配列として解釈する。
// pathが空の場合はDefaultSourcesを返す。
func LoadSources(path string) ([]model.Source, error) {
	if path == "" {
		return DefaultSources(), nil
	}

	var sources []model.Source
	var err error
	if strings.EqualFold(filepath.Ext(path), ".opml") {
		sources, err = loadOPML(path)
	} else {
		sources, err = loadJSON(path)
	}
	if err != nil {
		return nil, err
	}

	if err := validateSources(sources); err != nil {
		return nil, err
	}
	return sources, nil
}

func loadJSON(path string) ([]model.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}
	var sources []model.Source
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}
	return sources, nil
}

func loadOPML(path string) ([]model.Source, error) {
	doc, err := opml.NewOPMLFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OPML file: %w", err)
	}
	var sources []model.Source
	for _, outline := range doc.Outlines() {
		sources = append(sources, outlineSources(outline)...)
	}
	return sources, nil
}

// outlineSources はoutlineを再帰的に辿り、xmlUrlを持つ要素をソースに変換する。
// アイコンURLはhtmlUrlから /favicon.ico を推測する。
func outlineSources(outline opml.Outline) []model.Source {
	var sources []model.Source
	if outline.XMLURL != "" {
		name := outline.Title
		if name == "" {
			name = outline.Text
		}
		sources = append(sources, model.Source{
			Name:    name,
			FeedURL: outline.XMLURL,
			IconURL: guessFaviconURL(outline.HTMLURL),
		})
	}
	for _, child := range outline.Outlines {
		sources = append(sources, outlineSources(child)...)
	}
	return sources
}

// guessFaviconURL はサイトURLからデフォルトのfavicon URLを推測する。
func guessFaviconURL(siteURL string) string {
	if siteURL == "" {
		return ""
	}
	u, err := url.Parse(siteURL)
	if err != nil || u.Host == "" {
		return ""
	}
	u.Path = "/favicon.ico"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// validateSources は名前とURLの欠落、および名前の重複を検出する。
// ソース名はfeedStatusのキーになるため一意でなければならない。
// 正規化後の名前はfaviconの保存キーになるため、これも一意でなければならない。
func validateSources(sources []model.Source) error {
	if len(sources) == 0 {
		return fmt.Errorf("no sources defined")
	}
	seen := make(map[string]bool, len(sources))
	sanitized := make(map[string]string, len(sources))
	for i, s := range sources {
		if s.Name == "" || s.FeedURL == "" {
			return fmt.Errorf("source #%d: name and url are required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate source name: %s", s.Name)
		}
		seen[s.Name] = true

		key := model.SanitizeName(s.Name)
		if other, ok := sanitized[key]; ok {
			return fmt.Errorf("source names %q and %q both normalize to %q", other, s.Name, key)
		}
		sanitized[key] = s.Name
	}
	return nil
}
