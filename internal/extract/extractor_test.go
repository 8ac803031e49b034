package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// mockSSRFGuard はSSRFValidatorのテスト用モック。
type mockSSRFGuard struct {
	validateErr error
}

func (m *mockSSRFGuard) NewSafeClient(timeout time.Duration, _ int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (m *mockSSRFGuard) ValidateURL(_ string) error {
	return m.validateErr
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

var articleParagraph = "Researchers disclosed a critical remote code execution vulnerability affecting " +
	"widely deployed VPN appliances, urging administrators to patch immediately because active " +
	"exploitation has been observed in the wild against government and enterprise networks."

func articlePage() string {
	var body strings.Builder
	for i := 0; i < 6; i++ {
		fmt.Fprintf(&body, "<p>%s Paragraph %d.</p>\n", articleParagraph, i)
	}
	return `<!DOCTYPE html>
<html><head>
<title>Critical VPN flaw exploited</title>
<meta name="author" content="Jane Doe">
<meta property="og:image" content="https://example.com/lead.jpg">
</head><body>
<nav><a href="/">Home</a></nav>
<article><h1>Critical VPN flaw exploited</h1>` + body.String() + `</article>
<footer>Copyright</footer>
</body></html>`
}

func TestExtractor_Extract_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, articlePage())
	}))
	defer server.Close()

	var buf bytes.Buffer
	e := NewExtractor(&mockSSRFGuard{}, newTestLogger(&buf), 5*time.Second, 1<<20)

	res := e.Extract(context.Background(), server.URL+"/post")
	if !strings.Contains(res.FullText, "critical remote code execution") {
		t.Errorf("FullText does not contain article body: %q", res.FullText)
	}
	if strings.Contains(res.FullText, "<p>") {
		t.Error("FullText should not contain HTML tags")
	}
	if res.Image != "https://example.com/lead.jpg" {
		t.Errorf("Image = %q", res.Image)
	}
	if res.Author != "Jane Doe" {
		t.Errorf("Author = %q, want Jane Doe", res.Author)
	}
}

func TestExtractor_Extract_FailuresYieldEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	var buf bytes.Buffer
	tests := []struct {
		name  string
		url   string
		guard *mockSSRFGuard
	}{
		{name: "403", url: server.URL, guard: &mockSSRFGuard{}},
		{name: "SSRFブロック", url: "http://169.254.169.254/", guard: &mockSSRFGuard{validateErr: errors.New("blocked")}},
		{name: "不正なURL", url: "#", guard: &mockSSRFGuard{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExtractor(tt.guard, newTestLogger(&buf), 5*time.Second, 1<<20)
			if got := e.Extract(context.Background(), tt.url); got != (Result{}) {
				t.Errorf("Extract() = %+v, want empty result", got)
			}
		})
	}
}

func TestExtractor_Extract_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	var buf bytes.Buffer
	e := NewExtractor(&mockSSRFGuard{}, newTestLogger(&buf), 50*time.Millisecond, 1<<20)

	start := time.Now()
	if got := e.Extract(context.Background(), server.URL); got != (Result{}) {
		t.Errorf("Extract() = %+v, want empty result", got)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Extract() took %v, timeout was not applied", elapsed)
	}
}

// TestExtractFromHTML_MetaFallback はreadabilityが画像を返さない場合にmetaタグが使われることを検証する。
func TestExtractFromHTML_MetaFallback(t *testing.T) {
	page := `<html><head>
<meta name="twitter:image" content="https://example.com/card.png">
<meta property="article:author" content="Security Desk">
</head><body></body></html>`

	u, _ := url.Parse("https://example.com/post")
	res := extractFromHTML([]byte(page), u)

	if res.Image != "https://example.com/card.png" {
		t.Errorf("Image = %q, want twitter:image", res.Image)
	}
	if res.Author != "Security Desk" {
		t.Errorf("Author = %q, want article:author", res.Author)
	}
	if len(res.FullText) > MaxFullTextLength+3 {
		t.Errorf("FullText exceeds limit: %d", len(res.FullText))
	}
}
