// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/rovshanmuradov/solana-pnl/internal/storage/models"
)

// ErrVersionConflict is returned by Save when the stored version is not the
// expected one.
var ErrVersionConflict = errors.New("wallet state version conflict")

// Store определяет интерфейс для хранения состояния кошелька целиком
type Store interface {
	// Load returns nil, nil for an unknown wallet.
	Load(ctx context.Context, walletID string) (*models.WalletState, error)
	// Save replaces the whole state if the stored version equals
	// expectedVersion (0 for a wallet that has never been saved).
	Save(ctx context.Context, walletID string, state *models.WalletState, expectedVersion int64) error
	Close() error
}
