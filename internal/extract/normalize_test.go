package extract

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "段落は空行で区切られる",
			in:   "<p>First paragraph.</p><p class=\"x\">Second paragraph.</p>",
			want: "First paragraph.\n\nSecond paragraph.",
		},
		{
			name: "brは単一改行",
			in:   "line one<br>line two<br/>line three<BR />end",
			want: "line one\nline two\nline three\nend",
		},
		{
			name: "divの閉じタグは改行",
			in:   "<div>block one</div><div id=\"b\">block two</div>",
			want: "block one\nblock two",
		},
		{
			name: "その他のタグは空白に置換される",
			in:   "<p>Hello <strong>bold</strong> <a href=\"#\">link</a>world</p>",
			want: "Hello bold link world",
		},
		{
			name: "連続する空白とタブは1つにまとめる",
			in:   "a  \t  b",
			want: "a b",
		},
		{
			name: "3つ以上の改行は2つにまとめる",
			in:   "<p>a</p>\n\n\n<p>b</p>",
			want: "a\n\nb",
		},
		{
			name: "改行前後の空白は除去される",
			in:   "a   <br>   b",
			want: "a\nb",
		},
		{
			name: "preはpとして扱わない",
			in:   "<pre>code</pre>",
			want: "code",
		},
		{
			name: "エンティティはデコードされる",
			in:   "<p>Tom &amp; Jerry&nbsp;show</p>",
			want: "Tom & Jerry show",
		},
		{
			name: "空文字列",
			in:   "",
			want: "",
		},
		{
			name: "タグのみ",
			in:   "<div><span></span></div>",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestTruncate_LongBody は5000文字の本文が2000文字+"..."に切り詰められることを検証する。
func TestTruncate_LongBody(t *testing.T) {
	body := strings.Repeat("a", 5000)
	got := Truncate(body, MaxFullTextLength)

	if len(got) != 2003 {
		t.Errorf("len(Truncate()) = %d, want 2003", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("truncated text should end with ...")
	}
}

func TestTruncate_ShortUnchanged(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate() = %q, want unchanged", got)
	}
	exact := strings.Repeat("b", 10)
	if got := Truncate(exact, 10); got != exact {
		t.Errorf("Truncate() at exact length = %q, want unchanged", got)
	}
}

func TestTruncate_MultiByte(t *testing.T) {
	got := Truncate(strings.Repeat("脆", 10), 5)
	if !utf8.ValidString(got) {
		t.Fatal("truncated string is not valid UTF-8")
	}
	if got != "脆脆脆脆脆..." {
		t.Errorf("Truncate() = %q", got)
	}
}
