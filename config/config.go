package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server struct {
		Port int
	}
	DB struct {
		Host           string
		Port           int
		User           string
		Password       string
		DBName         string
		SSLMode        string
		MigrationsPath string
	}
	JWT struct {
		SecretKey string
		ExpiresIn int // в часах
	}
	SMTP struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
	}
	Log struct {
		Dir string // пустая строка - писать в stderr
	}
	RateLimit struct {
		PerMinute int
		// прокси, которым доверяем X-Forwarded-For; пусто - ключом служит адрес соединения
		TrustedProxies []*net.IPNet
	}
	Scheduler struct {
		IntervalMinutes int
		LoanLateFee     decimal.Decimal // штраф за просроченный взнос по займу, 0 - не начислять
	}
}

var defaults = map[string]any{
	"SERVER_PORT":                "8080",
	"DB_HOST":                    "localhost",
	"DB_PORT":                    "5432",
	"DB_USER":                    "postgres",
	"DB_PASSWORD":                "postgres",
	"DB_NAME":                    "schoolcoop_db",
	"DB_SSLMODE":                 "disable",
	"MIGRATIONS_PATH":            "migrations",
	"JWT_SECRET_KEY":             "your-secret-key-here",
	"JWT_EXPIRES_IN":             "24",
	"SMTP_HOST":                  "",
	"SMTP_PORT":                  "587",
	"SMTP_USERNAME":              "",
	"SMTP_PASSWORD":              "",
	"SMTP_FROM":                  "noreply@schoolcoop.local",
	"LOG_DIR":                    "",
	"RATE_LIMIT_PER_MINUTE":      "100",
	"TRUSTED_PROXIES":            "",
	"SCHEDULER_INTERVAL_MINUTES": "60",
	"LOAN_LATE_FEE":              "0",
}

// NewConfig создает новый экземпляр конфигурации из переменных окружения
func NewConfig() (*Config, error) {
	return Load("")
}

// Load читает конфигурацию. Значения из окружения имеют приоритет над файлом,
// файл (если указан) - над значениями по умолчанию.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("ошибка чтения файла конфигурации %s: %w", configFile, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	var err error

	// Настройки сервера
	if cfg.Server.Port, err = intValue(v, "SERVER_PORT"); err != nil {
		return nil, err
	}

	// Настройки базы данных
	cfg.DB.Host = v.GetString("DB_HOST")
	if cfg.DB.Port, err = intValue(v, "DB_PORT"); err != nil {
		return nil, err
	}
	cfg.DB.User = v.GetString("DB_USER")
	cfg.DB.Password = v.GetString("DB_PASSWORD")
	cfg.DB.DBName = v.GetString("DB_NAME")
	cfg.DB.SSLMode = v.GetString("DB_SSLMODE")
	cfg.DB.MigrationsPath = v.GetString("MIGRATIONS_PATH")

	// Настройки JWT
	cfg.JWT.SecretKey = v.GetString("JWT_SECRET_KEY")
	if cfg.JWT.ExpiresIn, err = intValue(v, "JWT_EXPIRES_IN"); err != nil {
		return nil, err
	}

	// Настройки SMTP
	cfg.SMTP.Host = v.GetString("SMTP_HOST")
	if cfg.SMTP.Port, err = intValue(v, "SMTP_PORT"); err != nil {
		return nil, err
	}
	cfg.SMTP.Username = v.GetString("SMTP_USERNAME")
	cfg.SMTP.Password = v.GetString("SMTP_PASSWORD")
	cfg.SMTP.From = v.GetString("SMTP_FROM")

	cfg.Log.Dir = v.GetString("LOG_DIR")

	// Ограничение частоты запросов
	if cfg.RateLimit.PerMinute, err = intValue(v, "RATE_LIMIT_PER_MINUTE"); err != nil {
		return nil, err
	}
	if cfg.RateLimit.PerMinute <= 0 {
		return nil, errors.New("RATE_LIMIT_PER_MINUTE должен быть больше 0")
	}
	if cfg.RateLimit.TrustedProxies, err = ParseTrustedProxies(v.GetString("TRUSTED_PROXIES")); err != nil {
		return nil, err
	}

	// Настройки планировщика
	if cfg.Scheduler.IntervalMinutes, err = intValue(v, "SCHEDULER_INTERVAL_MINUTES"); err != nil {
		return nil, err
	}
	if cfg.Scheduler.IntervalMinutes <= 0 {
		return nil, errors.New("SCHEDULER_INTERVAL_MINUTES должен быть больше 0")
	}
	fee, err := decimal.NewFromString(strings.TrimSpace(v.GetString("LOAN_LATE_FEE")))
	if err != nil {
		return nil, fmt.Errorf("неверный формат LOAN_LATE_FEE: %w", err)
	}
	if fee.IsNegative() {
		return nil, errors.New("LOAN_LATE_FEE не может быть отрицательным")
	}
	cfg.Scheduler.LoanLateFee = fee

	return cfg, nil
}

// intValue читает целое значение и возвращает понятную ошибку вместо тихого нуля
func intValue(v *viper.Viper, key string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return 0, fmt.Errorf("неверный формат %s: %w", key, err)
	}
	return n, nil
}

// ParseTrustedProxies разбирает список адресов и подсетей через запятую.
// Одиночный адрес превращается в подсеть из одного адреса.
func ParseTrustedProxies(raw string) ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("неверная подсеть в TRUSTED_PROXIES %q: %w", entry, err)
			}
			nets = append(nets, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("неверный адрес в TRUSTED_PROXIES %q", entry)
		}
		bits := 128
		if v4 := ip.To4(); v4 != nil {
			ip, bits = v4, 32
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets, nil
}

// DSN возвращает строку подключения для драйвера postgres
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.DBName,
		c.DB.SSLMode,
	)
}

// MigrationURL возвращает URL базы данных для golang-migrate
func (c *Config) MigrationURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User,
		c.DB.Password,
		c.DB.Host,
		c.DB.Port,
		c.DB.DBName,
		c.DB.SSLMode,
	)
}

// MailEnabled сообщает, настроена ли отправка почты
func (c *Config) MailEnabled() bool {
	return c.SMTP.Host != ""
}
