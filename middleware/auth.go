package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"schoolcoop/utils"
)

type contextKey string

const (
	adminIDKey contextKey = "admin_id"
	emailKey   contextKey = "email"
)

type LoggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *LoggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware логирует запрос и записывает метрики
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lrw := &LoggingResponseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(lrw, r)

		duration := time.Since(start)
		utils.GetMetrics().RecordRequest(duration, lrw.statusCode >= http.StatusInternalServerError)
		utils.LogInfo("Method: %s, Path: %s, Status: %d, Duration: %v",
			r.Method,
			r.URL.Path,
			lrw.statusCode,
			duration,
		)
	})
}

// AuthMiddleware проверяет JWT токен сотрудника и кладет его данные в контекст
func AuthMiddleware(jwtKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				http.Error(w, "Authorization header is required", http.StatusUnauthorized)
				return
			}

			ctx, err := authenticate(r, jwtKey)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuthMiddleware пропускает запрос без токена, но неверный токен отклоняет
func OptionalAuthMiddleware(jwtKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx, err := authenticate(r, jwtKey)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, jwtKey []byte) (context.Context, error) {
	tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtKey, nil
	})
	if err != nil {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	// числа в MapClaims приходят как float64
	adminID, ok := claims["admin_id"].(float64)
	if !ok {
		return nil, errors.New("invalid admin_id in token")
	}
	email, _ := claims["email"].(string)

	ctx := context.WithValue(r.Context(), adminIDKey, uint(adminID))
	ctx = context.WithValue(ctx, emailKey, email)
	return ctx, nil
}

// GetAdminFromContext получает сотрудника, выполнившего запрос
func GetAdminFromContext(r *http.Request) (uint, string, error) {
	adminID, ok := r.Context().Value(adminIDKey).(uint)
	if !ok {
		return 0, "", fmt.Errorf("admin_id not found in context")
	}

	email, ok := r.Context().Value(emailKey).(string)
	if !ok {
		return 0, "", fmt.Errorf("email not found in context")
	}

	return adminID, email, nil
}
