package controllers

import (
	"net/http"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"

	"schoolcoop/config"
	"schoolcoop/database"
	"schoolcoop/models"
	"schoolcoop/services"
)

var (
	hasNumber  = regexp.MustCompile(`[0-9]`)
	hasUpper   = regexp.MustCompile(`[A-Z]`)
	hasLower   = regexp.MustCompile(`[a-z]`)
	hasSpecial = regexp.MustCompile(`[!@#$%^&*]`)
)

type AuthController struct {
	admins   *services.AdminService
	validate *validator.Validate
	config   *config.Config
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type SignUpRequest struct {
	FirstName string `json:"firstName" validate:"required,min=2,max=50,alpha"`
	LastName  string `json:"lastName" validate:"required,min=2,max=50,alpha"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,password"`
}

type Token struct {
	Token   string `json:"token"`
	Email   string `json:"email"`
	AdminID uint   `json:"adminId"`
}

type AuthResponse struct {
	Token Token             `json:"token"`
	Admin services.AdminDTO `json:"admin"`
}

func NewAuthController(db *database.Database, cfg *config.Config) *AuthController {
	validate := validator.New()

	// Пароль: цифра, заглавная, строчная буква и спецсимвол
	validate.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		password := fl.Field().String()
		return hasNumber.MatchString(password) &&
			hasUpper.MatchString(password) &&
			hasLower.MatchString(password) &&
			hasSpecial.MatchString(password)
	})

	return &AuthController{
		admins:   services.NewAdminService(db.GetDB()),
		validate: validate,
		config:   cfg,
	}
}

// SignIn обрабатывает вход сотрудника
func (c *AuthController) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := c.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	admin, err := c.admins.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := c.generateToken(admin.ID, admin.Email)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to generate token"})
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: *token, Admin: services.ToAdminDTO(admin)})
}

// SignUp регистрирует сотрудника кассы. Без токена допускается только первая регистрация.
func (c *AuthController) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := c.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	create := services.CreateAdminRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	}

	var admin *models.AdminUser
	var err error
	if currentAdmin(r) == 0 {
		admin, err = c.admins.Bootstrap(r.Context(), create)
	} else {
		admin, err = c.admins.Register(r.Context(), create)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := c.generateToken(admin.ID, admin.Email)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to generate token"})
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{Token: *token, Admin: services.ToAdminDTO(admin)})
}

// GetJWTKey возвращает ключ для JWT
func (c *AuthController) GetJWTKey() string {
	return c.config.JWT.SecretKey
}

// generateToken создает JWT токен
func (c *AuthController) generateToken(adminID uint, email string) (*Token, error) {
	expiresIn := time.Duration(c.config.JWT.ExpiresIn) * time.Hour
	if expiresIn <= 0 {
		expiresIn = 24 * time.Hour
	}
	claims := jwt.MapClaims{
		"admin_id": adminID,
		"email":    email,
		"exp":      time.Now().Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(c.config.JWT.SecretKey))
	if err != nil {
		return nil, err
	}

	return &Token{
		Token:   tokenString,
		Email:   email,
		AdminID: adminID,
	}, nil
}
