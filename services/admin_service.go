package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"schoolcoop/models"
)

var (
	// ErrInvalidCredentials возвращается при неверном email или пароле
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSignUpClosed - анонимная регистрация возможна только для первого сотрудника
	ErrSignUpClosed = errors.New("sign-up requires an authenticated admin")
)

// AdminService предоставляет методы для работы с сотрудниками кассы
type AdminService struct {
	db *gorm.DB
}

// CreateAdminRequest представляет данные для регистрации сотрудника
type CreateAdminRequest struct {
	FirstName string `json:"firstName" validate:"required,min=2,max=50"`
	LastName  string `json:"lastName" validate:"required,min=2,max=50"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
}

// AdminDTO - сотрудник без пароля
type AdminDTO struct {
	ID        uint   `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

func NewAdminService(db *gorm.DB) *AdminService {
	return &AdminService{db: db}
}

// Register создает нового сотрудника
func (s *AdminService) Register(ctx context.Context, req CreateAdminRequest) (*models.AdminUser, error) {
	return register(s.db.WithContext(ctx), req)
}

// Bootstrap создает первого сотрудника. Когда сотрудники уже есть, возвращает ErrSignUpClosed.
func (s *AdminService) Bootstrap(ctx context.Context, req CreateAdminRequest) (*models.AdminUser, error) {
	var admin *models.AdminUser
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.AdminUser{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrSignUpClosed
		}

		var err error
		admin, err = register(tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return admin, nil
}

func register(db *gorm.DB, req CreateAdminRequest) (*models.AdminUser, error) {
	// Проверяем, существует ли сотрудник с таким email
	var existing models.AdminUser
	if err := db.Where("LOWER(email) = LOWER(?)", strings.TrimSpace(req.Email)).First(&existing).Error; err == nil {
		return nil, fmt.Errorf("admin with email %s: %w", req.Email, ErrDuplicate)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// Хешируем пароль
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	admin := &models.AdminUser{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     strings.TrimSpace(req.Email),
		Password:  string(hashedPassword),
	}
	if err := db.Create(admin).Error; err != nil {
		return nil, err
	}

	return admin, nil
}

// FindByEmail ищет сотрудника по email (игнорируя регистр и пробелы)
func (s *AdminService) FindByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	var admin models.AdminUser
	if err := s.db.WithContext(ctx).Where("LOWER(TRIM(email)) = LOWER(TRIM(?))", email).First(&admin).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("admin %s: %w", email, ErrNotFound)
		}
		return nil, err
	}
	return &admin, nil
}

// Authenticate проверяет email и пароль сотрудника
func (s *AdminService) Authenticate(ctx context.Context, email, password string) (*models.AdminUser, error) {
	admin, err := s.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return admin, nil
}

// ToAdminDTO убирает хеш пароля из ответа
func ToAdminDTO(admin *models.AdminUser) AdminDTO {
	return AdminDTO{
		ID:        admin.ID,
		FirstName: admin.FirstName,
		LastName:  admin.LastName,
		Email:     admin.Email,
	}
}
