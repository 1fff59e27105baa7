// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rovshanmuradov/solana-pnl/internal/storage"
	"github.com/rovshanmuradov/solana-pnl/internal/storage/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// gormLogger реализует интерфейс logger.Interface для GORM
type gormLogger struct {
	zapLogger *zap.Logger
	logLevel  logger.LogLevel
}

// newGormLogger создает новый логгер для GORM
func newGormLogger(zapLogger *zap.Logger) logger.Interface {
	return &gormLogger{
		zapLogger: zapLogger,
		logLevel:  logger.Warn,
	}
}

// LogMode реализация интерфейса logger.Interface
func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		l.zapLogger.Sugar().Infof(msg, data...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		l.zapLogger.Sugar().Warnf(msg, data...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		l.zapLogger.Sugar().Errorf(msg, data...)
	}
}

// Trace пишет SQL с длительностью; ошибки всегда, остальное только на Info
func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		l.zapLogger.Error("trace", append(fields, zap.Error(err))...)
		return
	}

	if l.logLevel >= logger.Info {
		l.zapLogger.Debug("trace", fields...)
	}
}

// Store хранит состояние кошелька одной строкой jsonb с версией
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// NewStore открывает пул соединений и создает таблицу при необходимости
func NewStore(dsn string, zapLogger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newGormLogger(zapLogger.Named("gorm")),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// Настройка пула соединений
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		logger: zapLogger.Named("postgres-store"),
	}
	if err := s.RunMigrations(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// RunMigrations создает таблицу wallet_states под advisory lock
func (s *Store) RunMigrations() error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(101)").Error; err != nil {
			return fmt.Errorf("failed to acquire migration lock: %w", err)
		}
		if err := tx.AutoMigrate(&models.WalletStateRecord{}); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		return nil
	})
}

func (s *Store) Load(ctx context.Context, walletID string) (*models.WalletState, error) {
	var rec models.WalletStateRecord
	err := s.db.WithContext(ctx).Where("wallet_id = ?", walletID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	state, err := models.UnmarshalWalletState(rec.Payload)
	if err != nil {
		return nil, err
	}
	state.Version = rec.Version
	return state, nil
}

func (s *Store) Save(ctx context.Context, walletID string, state *models.WalletState, expectedVersion int64) error {
	payload, err := state.Marshal()
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if expectedVersion == 0 {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.WalletStateRecord{
				WalletID: walletID,
				Version:  state.Version,
				Payload:  payload,
			})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return storage.ErrVersionConflict
			}
			return nil
		}

		res := tx.Model(&models.WalletStateRecord{}).
			Where("wallet_id = ? AND version = ?", walletID, expectedVersion).
			Updates(map[string]interface{}{
				"version":    state.Version,
				"payload":    payload,
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return storage.ErrVersionConflict
		}
		return nil
	})

	if err != nil && !errors.Is(err, storage.ErrVersionConflict) {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return err
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
