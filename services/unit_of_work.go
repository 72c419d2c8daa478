package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// UnitOfWork выполняет функцию в одной транзакции базы данных
type UnitOfWork interface {
	Do(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// GormUnitOfWork - UnitOfWork поверх gorm
type GormUnitOfWork struct {
	db *gorm.DB
}

// NewUnitOfWork создает новый экземпляр GormUnitOfWork
func NewUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

// Do начинает транзакцию, вызывает fn и фиксирует результат.
// Ошибка или паника внутри fn откатывает все изменения.
func (u *GormUnitOfWork) Do(ctx context.Context, fn func(tx *gorm.DB) error) error {
	// Начинаем транзакцию
	tx := u.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("ошибка при начале транзакции: %w", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	// Подтверждаем транзакцию
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("ошибка при подтверждении транзакции: %w", err)
	}
	return nil
}
