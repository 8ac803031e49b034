// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextStripper はフィード記事のHTMLからタグを全て除去し、
// ダッシュボードに表示できるプレーンテキストへ変換する。
// bluemondayのStrictPolicyを使用するため、script/styleの中身も含めて除去される。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextStripper はHTMLからプレーンテキストを取り出す機能のインターフェース。
type TextStripper interface {
	// Strip はHTMLタグを全て除去し、エンティティを復元した上で
	// 連続する空白を1つのスペースにまとめたテキストを返す。
	// 空文字列の入力には空文字列を返す。
	Strip(rawHTML string) string
}

// textStripper はTextStripperの実装。
// bluemondayのポリシーはスレッドセーフなため、1インスタンスを共有してよい。
type textStripper struct {
	policy *bluemonday.Policy
}

// NewTextStripper はTextStripperの新しいインスタンスを生成する。
// タグ除去時にスペースを挿入し、隣接するブロック要素の単語が連結されないようにする。
func NewTextStripper() *textStripper {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return &textStripper{policy: p}
}

// Strip はHTMLタグを除去したプレーンテキストを返す。
func (s *textStripper) Strip(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	text := html.UnescapeString(s.policy.Sanitize(rawHTML))
	return strings.Join(strings.Fields(text), " ")
}

var _ TextStripper = (*textStripper)(nil)
