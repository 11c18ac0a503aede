// Package gormstore implements port.ExpenseStore with GORM on PostgreSQL.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/garyjia/expense-desk/internal/application/port"
	"github.com/garyjia/expense-desk/internal/domain/entity"
	pgstore "github.com/garyjia/expense-desk/internal/infrastructure/persistence/postgres"
)

// Config holds connection settings
type Config struct {
	DSN          string
	MaxOpenConns int
	AutoMigrate  bool
}

// Store implements port.ExpenseStore
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects through the GORM postgres driver. The schema comes from the shared
// versioned migrations rather than GORM's AutoMigrate so both Postgres stores agree on it.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, entity.Unavailable("open gorm", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, entity.Unavailable("ping gorm", err)
	}

	if cfg.AutoMigrate {
		if err := pgstore.Migrate(cfg.DSN, logger); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}

	logger.Info("GORM connection established")
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Insert(ctx context.Context, expense *entity.Expense) (string, error) {
	m := toModel(expense)
	m.ID = uuid.NewString()

	if err := s.db.WithContext(ctx).Omit("seq").Create(m).Error; err != nil {
		s.logger.Error("Failed to insert expense", zap.Error(err))
		return "", entity.Unavailable("insert expense", err)
	}

	expense.ID = m.ID
	return m.ID, nil
}

func (s *Store) List(ctx context.Context) ([]*entity.Expense, error) {
	var models []expenseModel
	if err := s.db.WithContext(ctx).Order("submission_date DESC").Order("seq DESC").Find(&models).Error; err != nil {
		s.logger.Error("Failed to list expenses", zap.Error(err))
		return nil, entity.Unavailable("list expenses", err)
	}

	expenses := make([]*entity.Expense, len(models))
	for i := range models {
		expenses[i] = models[i].toEntity()
	}
	return expenses, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*entity.Expense, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, entity.ErrNotFound
	}
	return s.first(s.db.WithContext(ctx), id)
}

func (s *Store) UpdateByID(ctx context.Context, id string, update entity.ExpenseUpdate) (*entity.Expense, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, entity.ErrNotFound
	}

	changes := make(map[string]interface{})
	if update.Status != nil {
		changes["status"] = *update.Status
	}
	if update.ProcessedDate != nil {
		changes["processed_date"] = update.ProcessedDate.UTC()
	}
	if update.ProcessedBy != nil {
		changes["processed_by"] = *update.ProcessedBy
	}
	if update.AccountingRef != nil {
		changes["accounting_ref"] = *update.AccountingRef
	}
	if len(changes) == 0 {
		return s.GetByID(ctx, id)
	}

	var updated *entity.Expense
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&expenseModel{}).Where("id = ?", id).Updates(changes)
		if result.Error != nil {
			return entity.Unavailable("update expense", result.Error)
		}
		if result.RowsAffected == 0 {
			return entity.ErrNotFound
		}

		var err error
		updated, err = s.first(tx, id)
		return err
	})
	if err != nil {
		if !errors.Is(err, entity.ErrNotFound) {
			s.logger.Error("Failed to update expense", zap.String("id", id), zap.Error(err))
		}
		return nil, err
	}
	return updated, nil
}

func (s *Store) DeleteByID(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return entity.ErrNotFound
	}

	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&expenseModel{})
	if result.Error != nil {
		s.logger.Error("Failed to delete expense", zap.String("id", id), zap.Error(result.Error))
		return entity.Unavailable("delete expense", result.Error)
	}
	if result.RowsAffected == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return entity.Unavailable("ping gorm", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return entity.Unavailable("ping gorm", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.logger.Info("Closing GORM connection")
	return sqlDB.Close()
}

func (s *Store) first(db *gorm.DB, id string) (*entity.Expense, error) {
	var m expenseModel
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entity.ErrNotFound
		}
		return nil, entity.Unavailable("get expense", err)
	}
	return m.toEntity(), nil
}

var _ port.ExpenseStore = (*Store)(nil)
