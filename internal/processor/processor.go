// Package processor は1つの購読ソースについてフィード取得・本文抽出・画像キャッシュを
// まとめて実行し、表示用の記事一覧とソース単位の結果を組み立てる。
package processor

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/secfeed/internal/extract"
	"github.com/hitoshi/secfeed/internal/imagecache"
	"github.com/hitoshi/secfeed/internal/model"
)

const (
	// MaxDescriptionLength は記事概要の最大文字数。
	MaxDescriptionLength = 300

	defaultEntryConcurrency = 5
)

// FeedReader はフィード取得のインターフェース。
type FeedReader interface {
	Read(ctx context.Context, feedURL string) ([]model.RawEntry, error)
}

// ContentExtractor は記事本文抽出のインターフェース。
type ContentExtractor interface {
	Extract(ctx context.Context, articleURL string) extract.Result
}

// AssetCache は画像とfaviconのキャッシュのインターフェース。
type AssetCache interface {
	CacheImage(ctx context.Context, rawURL string) string
	CacheFavicon(ctx context.Context, rawURL, sourceName string) string
}

// TextStripper はHTMLタグ除去のインターフェース。
type TextStripper interface {
	Strip(rawHTML string) string
}

// Processor は1ソース分の処理を行う。
type Processor struct {
	reader      FeedReader
	extractor   ContentExtractor
	assets      AssetCache
	stripper    TextStripper
	logger      *slog.Logger
	concurrency int
	now         func() time.Time
}

// New はProcessorの新しいインスタンスを生成する。
// concurrencyは1ソース内で同時に処理するエントリ数の上限。
func New(
	reader FeedReader,
	extractor ContentExtractor,
	assets AssetCache,
	stripper TextStripper,
	logger *slog.Logger,
	concurrency int,
) *Processor {
	if concurrency <= 0 {
		concurrency = defaultEntryConcurrency
	}
	return &Processor{
		reader:      reader,
		extractor:   extractor,
		assets:      assets,
		stripper:    stripper,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// Process はソースを処理し、結果を返す。
// フィード取得に失敗した場合はSuccess=falseの結果を返し、エラーは返さない。
// 個々のエントリの失敗はそのエントリを結果から除外するだけで、ソース全体は失敗としない。
func (p *Processor) Process(ctx context.Context, source model.Source) model.ProcessResult {
	entries, err := p.reader.Read(ctx, source.FeedURL)
	if err != nil {
		p.logger.Warn("フィード取得に失敗しました",
			slog.String("source", source.Name),
			slog.String("url", source.FeedURL),
			slog.String("error", err.Error()),
		)
		return model.ProcessResult{
			Source:    source,
			Success:   false,
			Error:     err.Error(),
			Items:     []model.FeedItem{},
			FetchedAt: p.now(),
		}
	}

	sourceIcon := source.IconURL
	if cached := p.assets.CacheFavicon(ctx, source.IconURL, source.Name); cached != "" {
		sourceIcon = cached
	}

	results := make([]*model.FeedItem, len(entries))

	// 各goroutineはエラーを返さないため、1エントリの失敗が他をキャンセルすることはない
	g := new(errgroup.Group)
	g.SetLimit(p.concurrency)
	for i, entry := range entries {
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					p.logger.Error("エントリ処理中にパニックが発生しました",
						slog.String("source", source.Name),
						slog.String("link", entry.Link),
						slog.Any("panic", rec),
					)
				}
			}()

			item := p.processEntry(ctx, source, sourceIcon, entry)
			results[i] = &item
			return nil
		})
	}
	_ = g.Wait()

	items := make([]model.FeedItem, 0, len(results))
	for _, item := range results {
		if item != nil {
			items = append(items, *item)
		}
	}

	p.logger.Info("ソースを処理しました",
		slog.String("source", source.Name),
		slog.Int("entries", len(entries)),
		slog.Int("items", len(items)),
	)

	return model.ProcessResult{
		Source:    source,
		Success:   true,
		ItemCount: len(items),
		Items:     items,
		FetchedAt: p.now(),
	}
}

// processEntry は1エントリから表示用のFeedItemを組み立てる。IDは呼び出し側で付与する。
func (p *Processor) processEntry(
	ctx context.Context,
	source model.Source,
	sourceIcon string,
	entry model.RawEntry,
) model.FeedItem {
	extracted := p.extractor.Extract(ctx, entry.Link)

	rawDescription := entry.Description
	if rawDescription == "" {
		rawDescription = entry.Content
	}
	plain := p.stripper.Strip(rawDescription)

	fullText := extracted.FullText
	if fullText == "" {
		fullText = extract.Truncate(plain, extract.MaxFullTextLength)
	}

	image := extracted.Image
	if image == "" {
		image = entry.Image
	}
	image = imagecache.ResolveURL(image, entry.Link)
	if image != "" {
		if cached := p.assets.CacheImage(ctx, image); cached != "" {
			image = cached
		}
	}

	author := extracted.Author
	if author == "" {
		author = entry.Author
	}

	return model.FeedItem{
		Title:       entry.Title,
		Link:        entry.Link,
		Description: truncateDescription(plain),
		FullText:    fullText,
		PubDate:     entry.PubDate,
		Source:      source.Name,
		SourceIcon:  sourceIcon,
		Image:       model.StringPtr(image),
		Author:      model.StringPtr(author),
	}
}

// truncateDescription は末尾の"..."を含めてMaxDescriptionLength文字以内に収める。
func truncateDescription(plain string) string {
	if len([]rune(plain)) <= MaxDescriptionLength {
		return plain
	}
	return extract.Truncate(plain, MaxDescriptionLength-len("..."))
}
