// internal/storage/memory/memory.go
package memory

import (
	"context"
	"sync"

	"github.com/rovshanmuradov/solana-pnl/internal/storage"
	"github.com/rovshanmuradov/solana-pnl/internal/storage/models"
)

// Store keeps encoded wallet states in process memory.
type Store struct {
	mu     sync.RWMutex
	states map[string][]byte
}

var _ storage.Store = (*Store)(nil)

// New creates an empty memory store.
func New() *Store {
	return &Store{states: make(map[string][]byte)}
}

func (s *Store) Load(ctx context.Context, walletID string) (*models.WalletState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, ok := s.states[walletID]
	s.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	return models.UnmarshalWalletState(data)
}

func (s *Store) Save(ctx context.Context, walletID string, state *models.WalletState, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := state.Marshal()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if existing, ok := s.states[walletID]; ok {
		prev, err := models.UnmarshalWalletState(existing)
		if err != nil {
			return err
		}
		current = prev.Version
	}
	if current != expectedVersion {
		return storage.ErrVersionConflict
	}

	s.states[walletID] = data
	return nil
}

func (s *Store) Close() error {
	return nil
}
