package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	apperrors "github.com/barbmarcio/megastore-search/pkg/errors"
	"github.com/barbmarcio/megastore-search/services/search/internal/domain"
)

// ExportSnapshot writes every product and relation to w as JSON.
func (s *SearchService) ExportSnapshot(ctx context.Context, w io.Writer) (domain.Stats, error) {
	var st domain.Stats
	err := s.observe(ctx, "export_snapshot", func(context.Context) error {
		snap := s.engine.Snapshot()
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		st = domain.Stats{Products: len(snap.Products), Nodes: len(snap.Products), Edges: len(snap.Relations)}
		return nil
	})
	return st, err
}

// ImportSnapshot replaces the engine contents with the snapshot read from r.
// On error the engine is left unchanged.
func (s *SearchService) ImportSnapshot(ctx context.Context, r io.Reader) (domain.Stats, error) {
	err := s.observe(ctx, "import_snapshot", func(context.Context) error {
		var snap domain.Snapshot
		if err := json.NewDecoder(r).Decode(&snap); err != nil {
			return fmt.Errorf("decode snapshot: %w: %w", apperrors.ErrInvalidInput, err)
		}
		if err := s.engine.Restore(snap); err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Stats{}, err
	}

	s.refreshGauges()
	st := s.engine.Stats()
	s.log(ctx).InfoContext(ctx, "snapshot imported",
		slog.Int("products", st.Products),
		slog.Int("edges", st.Edges),
	)
	return st, nil
}

// SaveSnapshotFile writes a snapshot to path atomically by renaming a
// temporary file in the same directory.
func (s *SearchService) SaveSnapshotFile(ctx context.Context, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	st, err := s.ExportSnapshot(ctx, tmp)
	if err != nil {
		_ = tmp.Close()
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	s.log(ctx).InfoContext(ctx, "snapshot saved",
		slog.String("path", path),
		slog.Int("products", st.Products),
		slog.Int("edges", st.Edges),
	)
	return nil
}

// LoadSnapshotFile restores the engine from path. A missing file is not an
// error and reports false.
func (s *SearchService) LoadSnapshotFile(ctx context.Context, path string) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log(ctx).InfoContext(ctx, "no snapshot found, starting empty", slog.String("path", path))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := s.ImportSnapshot(ctx, f); err != nil {
		return false, fmt.Errorf("load snapshot %s: %w", path, err)
	}
	return true, nil
}
