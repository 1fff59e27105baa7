// internal/storage/redis/redis.go
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rovshanmuradov/solana-pnl/internal/storage"
	"github.com/rovshanmuradov/solana-pnl/internal/storage/models"
	"go.uber.org/zap"
)

const keyPrefix = "pnl:state:"

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Store keeps each wallet state as one JSON string. Save uses WATCH/MULTI so
// concurrent writers from different processes cannot interleave.
type Store struct {
	client *goredis.Client
	logger *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// New connects and pings the server.
func New(ctx context.Context, opts Options, logger *zap.Logger) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewWithClient(client, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client, logger *zap.Logger) *Store {
	return &Store{client: client, logger: logger.Named("redis-store")}
}

func key(walletID string) string {
	return keyPrefix + walletID
}

func (s *Store) Load(ctx context.Context, walletID string) (*models.WalletState, error) {
	data, err := s.client.Get(ctx, key(walletID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	return models.UnmarshalWalletState(data)
}

func (s *Store) Save(ctx context.Context, walletID string, state *models.WalletState, expectedVersion int64) error {
	data, err := state.Marshal()
	if err != nil {
		return err
	}
	k := key(walletID)

	txf := func(tx *goredis.Tx) error {
		var current int64
		raw, err := tx.Get(ctx, k).Bytes()
		switch {
		case errors.Is(err, goredis.Nil):
		case err != nil:
			return err
		default:
			prev, err := models.UnmarshalWalletState(raw)
			if err != nil {
				return err
			}
			current = prev.Version
		}
		if current != expectedVersion {
			return storage.ErrVersionConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, k, data, 0)
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, k)
	if errors.Is(err, goredis.TxFailedErr) {
		return storage.ErrVersionConflict
	}
	if err != nil && !errors.Is(err, storage.ErrVersionConflict) {
		return fmt.Errorf("failed to save state: %w", err)
	}
	if err == nil {
		s.logger.Debug("State written",
			zap.String("wallet", walletID),
			zap.Int64("version", state.Version))
	}
	return err
}

func (s *Store) Close() error {
	return s.client.Close()
}
