package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"schoolcoop/models"
)

// CreateSchoolDTO представляет данные для создания школы
type CreateSchoolDTO struct {
	Name    string `json:"name" validate:"required,min=2,max=150"`
	Address string `json:"address" validate:"max=255"`
}

// SchoolService предоставляет методы для работы со школами
type SchoolService struct {
	db        *gorm.DB
	validator *validator.Validate
}

// NewSchoolService создает новый экземпляр SchoolService
func NewSchoolService(db *gorm.DB) *SchoolService {
	return &SchoolService{db: db, validator: NewValidator()}
}

// Create создает новую школу
func (s *SchoolService) Create(ctx context.Context, dto CreateSchoolDTO) (*models.School, error) {
	dto.Name = strings.TrimSpace(dto.Name)
	if err := validate(s.validator, dto); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var existing models.School
	err := db.Where("LOWER(name) = LOWER(?)", dto.Name).First(&existing).Error
	if err == nil {
		return nil, fmt.Errorf("школа %q: %w", dto.Name, ErrDuplicate)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("ошибка при поиске школы: %w", err)
	}

	school := &models.School{Name: dto.Name, Address: dto.Address}
	if err := db.Create(school).Error; err != nil {
		return nil, fmt.Errorf("ошибка при создании школы: %w", err)
	}
	return school, nil
}

// List возвращает все школы по алфавиту
func (s *SchoolService) List(ctx context.Context) ([]models.School, error) {
	var schools []models.School
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&schools).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении школ: %w", err)
	}
	return schools, nil
}
