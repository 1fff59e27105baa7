// internal/storage/file/file.go
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rovshanmuradov/solana-pnl/internal/storage"
	"github.com/rovshanmuradov/solana-pnl/internal/storage/models"
	"go.uber.org/zap"
)

// Store keeps one JSON document per wallet in a directory. Writes go to a
// temporary file that is renamed over the previous state. The version check
// and the rename run under <wallet>.lock, so several processes may share dir.
type Store struct {
	mu     sync.Mutex
	dir    string
	logger *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// New creates the directory if needed.
func New(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Store{dir: dir, logger: logger.Named("file-store")}, nil
}

func (s *Store) path(walletID string) (string, error) {
	if walletID == "" || strings.ContainsAny(walletID, `/\`) || strings.HasPrefix(walletID, ".") {
		return "", fmt.Errorf("invalid wallet id %q", walletID)
	}
	return filepath.Join(s.dir, walletID+".json"), nil
}

func (s *Store) lockPath(walletID string) string {
	return filepath.Join(s.dir, walletID+".lock")
}

func (s *Store) Load(ctx context.Context, walletID string) (*models.WalletState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(walletID)
}

func (s *Store) read(walletID string) (*models.WalletState, error) {
	p, err := s.path(walletID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	return models.UnmarshalWalletState(data)
}

func (s *Store) Save(ctx context.Context, walletID string, state *models.WalletState, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := s.path(walletID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := lockFile(ctx, s.lockPath(walletID))
	if err != nil {
		return err
	}
	defer unlock()

	current, err := s.read(walletID)
	if err != nil {
		return err
	}
	var version int64
	if current != nil {
		version = current.Version
	}
	if version != expectedVersion {
		return storage.ErrVersionConflict
	}

	data, err := state.Marshal()
	if err != nil {
		return err
	}

	if err := writeAtomic(p, data); err != nil {
		return err
	}

	s.logger.Debug("State written",
		zap.String("wallet", walletID),
		zap.Int64("version", state.Version),
		zap.Int("bytes", len(data)))
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}
