package feed

import (
	"regexp"
	"strings"
)

// ImageMatcher はHTML断片から画像URLを1つ探す純粋関数。
// 見つからない場合は空文字列を返す。
type ImageMatcher func(html string) string

// descriptionMatchers はdescriptionに対して順に試す画像検出ルール。
// 先頭から評価し、最初に見つかったURLを採用する。
var descriptionMatchers = []ImageMatcher{
	MatchImgSrc,
	MatchOGImage,
	MatchTwitterImage,
	MatchWordPressFeatured,
	MatchImageExtension,
}

var (
	imgSrcPattern       = regexp.MustCompile(`(?i)<img\b[^>]*?\ssrc\s*=\s*["']([^"']+)["']`)
	wpFeaturedPattern   = regexp.MustCompile(`(?i)<img\b[^>]*?class\s*=\s*["'][^"']*wp-post-image[^"']*["'][^>]*?\s(?:data-lazy-src|data-src|src)\s*=\s*["']([^"']+)["']`)
	imageExtPattern     = regexp.MustCompile(`(?i)<img\b[^>]*?\ssrc\s*=\s*["']([^"']+\.(?:jpe?g|png|gif|webp|avif|svg)(?:\?[^"']*)?)["']`)
	ogImagePatterns     = metaPatterns(`og:image`)
	twitterImagePattern = metaPatterns(`twitter:image(?::src)?`)
)

// metaPatterns はmetaタグのkey属性とcontent属性の両方の並び順に対応する正規表現を返す。
func metaPatterns(key string) []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`(?i)<meta\b[^>]*?(?:property|name)\s*=\s*["']` + key + `["'][^>]*?\scontent\s*=\s*["']([^"']+)["']`),
		regexp.MustCompile(`(?i)<meta\b[^>]*?\scontent\s*=\s*["']([^"']+)["'][^>]*?(?:property|name)\s*=\s*["']` + key + `["']`),
	}
}

func firstSubmatch(re *regexp.Regexp, html string) string {
	if m := re.FindStringSubmatch(html); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// MatchImgSrc は最初の <img src> を返す。
func MatchImgSrc(html string) string {
	return firstSubmatch(imgSrcPattern, html)
}

// MatchOGImage は og:image メタタグのcontentを返す。
func MatchOGImage(html string) string {
	for _, re := range ogImagePatterns {
		if u := firstSubmatch(re, html); u != "" {
			return u
		}
	}
	return ""
}

// MatchTwitterImage は twitter:image メタタグのcontentを返す。
func MatchTwitterImage(html string) string {
	for _, re := range twitterImagePattern {
		if u := firstSubmatch(re, html); u != "" {
			return u
		}
	}
	return ""
}

// MatchWordPressFeatured はWordPressのアイキャッチ画像（wp-post-imageクラス）を返す。
// 遅延読み込み用のdata-src属性にも対応する。
func MatchWordPressFeatured(html string) string {
	return firstSubmatch(wpFeaturedPattern, html)
}

// MatchImageExtension はsrcが一般的な画像拡張子で終わる <img> を返す。
func MatchImageExtension(html string) string {
	return firstSubmatch(imageExtPattern, html)
}

// FindImage はdescriptionに検出ルールを順に適用し、
// 何も見つからなければcontentに対して <img src> を探す。
func FindImage(description, content string) string {
	for _, match := range descriptionMatchers {
		if u := match(description); u != "" {
			return u
		}
	}
	return MatchImgSrc(content)
}
