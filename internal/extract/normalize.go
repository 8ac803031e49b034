package extract

import (
	"html"
	"regexp"
	"strings"
)

var (
	closingParagraph = regexp.MustCompile(`(?i)</p\s*>`)
	openingParagraph = regexp.MustCompile(`(?i)<p(\s[^>]*)?>`)
	lineBreak        = regexp.MustCompile(`(?i)<br\s*/?>`)
	closingDiv       = regexp.MustCompile(`(?i)</div\s*>`)
	openingDiv       = regexp.MustCompile(`(?i)<div(\s[^>]*)?>`)
	anyTag           = regexp.MustCompile(`<[^>]*>`)
	horizontalSpace  = regexp.MustCompile(`[ \t\x{00A0}]+`)
	spaceAroundBreak = regexp.MustCompile(` *\n *`)
	excessBreaks     = regexp.MustCompile(`\n{3,}`)
)

// Normalize は抽出したHTMLを段落・改行を保持したプレーンテキストに変換する。
// 置換の順序に意味があるため、並べ替えないこと。
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = closingParagraph.ReplaceAllString(s, "\n\n")
	s = openingParagraph.ReplaceAllString(s, "")
	s = lineBreak.ReplaceAllString(s, "\n")
	s = closingDiv.ReplaceAllString(s, "\n")
	s = openingDiv.ReplaceAllString(s, "")
	s = anyTag.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = horizontalSpace.ReplaceAllString(s, " ")
	s = spaceAroundBreak.ReplaceAllString(s, "\n")
	s = excessBreaks.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Truncate はsを最大max文字（rune単位）に切り詰め、切り詰めた場合は末尾に"..."を付ける。
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
