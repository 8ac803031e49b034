package imagecache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// download はURLから画像を取得し、destにアトミックに書き込む。
// 2xx以外、画像以外のContent-Typeまたは本文、サイズ超過はエラーとする。
func (c *Cache) download(ctx context.Context, rawURL, dest string) error {
	if err := c.ssrfGuard.ValidateURL(rawURL); err != nil {
		return fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", "SecFeed/1.0 RSS Aggregator")
	req.Header.Set("Accept", "image/*,*/*;q=0.8")

	client := c.ssrfGuard.NewSafeClient(c.timeout, c.maxSize)
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	// 2xx以外は取得失敗として扱う
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}

	// Content-Typeが明示されている場合は画像であることを要求する
	mimeType := extractMimeType(resp.Header.Get("Content-Type"))
	if mimeType != "" && mimeType != "application/octet-stream" && !isImageMime(mimeType) {
		return fmt.Errorf("%w: %s", ErrNotImage, mimeType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}
	if int64(len(body)) > c.maxSize {
		return fmt.Errorf("image exceeds %d bytes", c.maxSize)
	}
	if len(body) == 0 {
		return fmt.Errorf("empty image body")
	}

	// ヘッダーに関わらず本文が画像であることを確認する。SVGは画像として判定されない
	if sniffed := http.DetectContentType(body); !isImageMime(sniffed) && !(sniffed == "application/octet-stream" && mimeType == "image/avif") {
		return fmt.Errorf("%w: detected %s", ErrNotImage, sniffed)
	}

	return writeAtomic(c.dir, dest, body)
}

// writeAtomic は一時ファイルに書き込んでからリネームし、
// 読み手が書きかけのファイルを観測しないようにする。
func writeAtomic(dir, dest string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("キャッシュディレクトリの作成に失敗: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("一時ファイルへの書き込みに失敗: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("一時ファイルのクローズに失敗: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("パーミッション設定に失敗: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("キャッシュファイルの保存に失敗: %w", err)
	}
	return nil
}

// extractMimeType はContent-Typeヘッダーからメディアタイプを抽出する。
func extractMimeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	// セミコロンの前の部分（charset等を除去）
	parts := strings.SplitN(contentType, ";", 2)
	return strings.TrimSpace(strings.ToLower(parts[0]))
}

// isImageMime はMIMEタイプが画像かどうかを判定する。
func isImageMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}
