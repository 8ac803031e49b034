// Package store はスナップショットとキャッシュ済みアセットの永続化を担う。
//
// スナップショットは単一のJSONファイルに全体を書き込み、
// アセットはイメージディレクトリ配下にキャッシュキー名で保存される。
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hitoshi/secfeed/internal/model"
)

// Store はスナップショットファイルとアセットディレクトリを管理する。
type Store struct {
	snapshotPath string
	assetDir     string
	logger       *slog.Logger
}

// New はStoreの新しいインスタンスを生成する。
func New(snapshotPath, assetDir string, logger *slog.Logger) *Store {
	return &Store{
		snapshotPath: snapshotPath,
		assetDir:     assetDir,
		logger:       logger,
	}
}

// Init はアセットディレクトリとスナップショットの親ディレクトリを作成する。
func (s *Store) Init() error {
	if err := os.MkdirAll(s.assetDir, 0o755); err != nil {
		return fmt.Errorf("アセットディレクトリの作成に失敗: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.snapshotPath), 0o755); err != nil {
		return fmt.Errorf("キャッシュディレクトリの作成に失敗: %w", err)
	}
	return nil
}

// Load は永続化されたスナップショットを読み込む。
// ファイルが無い場合や壊れている場合は空のスナップショットを返す。
func (s *Store) Load() *model.Snapshot {
	data, err := os.ReadFile(s.snapshotPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("スナップショットの読み込みに失敗しました",
				slog.String("path", s.snapshotPath),
				slog.String("error", err.Error()),
			)
		}
		return model.EmptySnapshot()
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("スナップショットの形式が不正です",
			slog.String("path", s.snapshotPath),
			slog.String("error", err.Error()),
		)
		return model.EmptySnapshot()
	}

	if snap.Items == nil {
		snap.Items = []model.FeedItem{}
	}
	if snap.FeedStatus == nil {
		snap.FeedStatus = map[string]model.SourceStatus{}
	}
	if snap.FeedTimestamps == nil {
		snap.FeedTimestamps = map[string]time.Time{}
	}
	return &snap
}

// Save はスナップショット全体を書き込み、以前の内容を置き換える。
// 一時ファイルに書いてからリネームするため、読み手が書きかけの状態を見ることはない。
func (s *Store) Save(snap *model.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("スナップショットのエンコードに失敗: %w", err)
	}

	dir := filepath.Dir(s.snapshotPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("キャッシュディレクトリの作成に失敗: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".feeds-*.json")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("スナップショットの書き込みに失敗: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("スナップショットの書き込みに失敗: %w", err)
	}
	if err := os.Rename(tmpName, s.snapshotPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("スナップショットの保存に失敗: %w", err)
	}
	return nil
}

// Clear は全てのキャッシュ済みアセットとスナップショットファイルを削除する。
// この操作は取り消せない。
func (s *Store) Clear() error {
	if err := os.RemoveAll(s.assetDir); err != nil {
		return fmt.Errorf("アセットの削除に失敗: %w", err)
	}
	if err := os.Remove(s.snapshotPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("スナップショットの削除に失敗: %w", err)
	}
	if err := os.MkdirAll(s.assetDir, 0o755); err != nil {
		return fmt.Errorf("アセットディレクトリの再作成に失敗: %w", err)
	}
	s.logger.Info("キャッシュを削除しました", slog.String("asset_dir", s.assetDir))
	return nil
}

// Stats はスナップショットとアセットディレクトリから統計情報を集計する。
// ディレクトリの読み取りエラーは0として扱う。
func (s *Store) Stats(snap *model.Snapshot) model.Stats {
	var st model.Stats
	if snap != nil {
		st.SourceCount = len(snap.FeedStatus)
		st.ItemCount = len(snap.Items)
		st.LastUpdated = snap.LastUpdated
	}

	_ = filepath.WalkDir(s.assetDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// 読めないディレクトリは集計対象外とし、走査は継続する
			if d != nil && d.IsDir() && path != s.assetDir {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		st.AssetCount++
		st.TotalBytes += info.Size()
		return nil
	})

	return st
}
