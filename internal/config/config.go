package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервера движения.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Movement  MovementConfig  `yaml:"movement"`
	World     WorldConfig     `yaml:"world"`
	Storage   StorageConfig   `yaml:"storage"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	TCPPort     int `yaml:"tcp_port"`
	KCPPort     int `yaml:"kcp_port"`
	WSPort      int `yaml:"ws_port"`
	RESTPort    int `yaml:"rest_port"`
	MetricsPort int `yaml:"metrics_port"`
}

type MovementConfig struct {
	IntervalMs      int `yaml:"interval_ms"`
	TickMs          int `yaml:"tick_ms"`
	MaxPendingMoves int `yaml:"max_pending_moves"`
	AreaRadius      int `yaml:"area_radius"`
	Workers         int `yaml:"workers"`
}

type WorldConfig struct {
	MapDir     string `yaml:"map_dir"`
	BadgerPath string `yaml:"badger_path"`
	SpawnMap   uint16 `yaml:"spawn_map"`
	SpawnX     uint16 `yaml:"spawn_x"`
	SpawnY     uint16 `yaml:"spawn_y"`
}

type StorageConfig struct {
	Backend         string `yaml:"backend"` // memory | redis | maria | postgres | mongo
	RedisAddr       string `yaml:"redis_addr"`
	MariaDSN        string `yaml:"maria_dsn"`
	PostgresDSN     string `yaml:"postgres_dsn"`
	MongoURI        string `yaml:"mongo_uri"`
	MongoDatabase   string `yaml:"mongo_database"`
	CacheRedisAddr  string `yaml:"cache_redis_addr"` // Redis перед maria/postgres/mongo
	AutosaveSeconds int    `yaml:"autosave_seconds"`
}

type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

type AuthConfig struct {
	JWTSecret         string `yaml:"jwt_secret"`
	TokenTTLMinutes   int    `yaml:"token_ttl_minutes"`
	AdminUser         string `yaml:"admin_user"`
	AdminPasswordHash string `yaml:"admin_password_hash"` // bcrypt
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
}

type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// GetTCPPort возвращает TCP порт с поддержкой fallback значений
func (s *ServerConfig) GetTCPPort() int {
	return getIntWithEnvFallback(s.TCPPort, "GAME_TCP_PORT", 7777)
}

// GetKCPPort возвращает KCP (UDP) порт с поддержкой fallback значений
func (s *ServerConfig) GetKCPPort() int {
	return getIntWithEnvFallback(s.KCPPort, "GAME_KCP_PORT", 7778)
}

// GetWSPort возвращает порт WebSocket
func (s *ServerConfig) GetWSPort() int {
	return getIntWithEnvFallback(s.WSPort, "GAME_WS_PORT", 7779)
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getIntWithEnvFallback(s.RESTPort, "GAME_REST_PORT", 8088)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getIntWithEnvFallback(s.MetricsPort, "GAME_METRICS_PORT", 2112)
}

// Interval возвращает интервал между авторитетными шагами (200ms по умолчанию)
func (m *MovementConfig) Interval() time.Duration {
	return time.Duration(getIntWithEnvFallback(m.IntervalMs, "GAME_MOVE_INTERVAL_MS", 200)) * time.Millisecond
}

// Tick возвращает период обхода очередей планировщика
func (m *MovementConfig) Tick() time.Duration {
	return time.Duration(getIntWithEnvFallback(m.TickMs, "GAME_TICK_MS", 10)) * time.Millisecond
}

// PendingLimit возвращает ёмкость очереди ожидающих шагов
func (m *MovementConfig) PendingLimit() int {
	return getIntWithEnvFallback(m.MaxPendingMoves, "GAME_MAX_PENDING_MOVES", 8)
}

// Radius возвращает радиус области видимости в тайлах
func (m *MovementConfig) Radius() int {
	return getIntWithEnvFallback(m.AreaRadius, "GAME_AREA_RADIUS", 12)
}

// WorkerCount возвращает число воркеров тика (1 = последовательный обход)
func (m *MovementConfig) WorkerCount() int {
	return getIntWithEnvFallback(m.Workers, "GAME_TICK_WORKERS", 1)
}

// Autosave возвращает период автосохранения позиций
func (s *StorageConfig) Autosave() time.Duration {
	return time.Duration(getIntWithEnvFallback(s.AutosaveSeconds, "GAME_AUTOSAVE_SECONDS", 60)) * time.Second
}

// GetBackend возвращает выбранный backend хранилища позиций
func (s *StorageConfig) GetBackend() string {
	return getStringWithEnvFallback(s.Backend, "GAME_STORAGE", "memory")
}

// GetJWTSecret возвращает секрет для подписи токенов админ API
func (a *AuthConfig) GetJWTSecret() string {
	return getStringWithEnvFallback(a.JWTSecret, "GAME_JWT_SECRET", "")
}

// TokenTTL возвращает время жизни токена админ API
func (a *AuthConfig) TokenTTL() time.Duration {
	return time.Duration(getIntWithEnvFallback(a.TokenTTLMinutes, "GAME_TOKEN_TTL_MINUTES", 60)) * time.Minute
}

// GetAdminUser возвращает имя администратора
func (a *AuthConfig) GetAdminUser() string {
	return getStringWithEnvFallback(a.AdminUser, "GAME_ADMIN_USER", "admin")
}

// GetAdminPasswordHash возвращает bcrypt-хеш пароля администратора.
// Пустое значение отключает вход в админ API.
func (a *AuthConfig) GetAdminPasswordHash() string {
	return getStringWithEnvFallback(a.AdminPasswordHash, "GAME_ADMIN_PASSWORD_HASH", "")
}

// getIntWithEnvFallback возвращает значение с приоритетом: config -> env -> default
func getIntWithEnvFallback(configVal int, envVar string, defaultVal int) int {
	if configVal > 0 {
		return configVal
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if v, err := strconv.Atoi(envVal); err == nil && v > 0 {
			return v
		}
	}

	return defaultVal
}

func getStringWithEnvFallback(configVal, envVar, defaultVal string) string {
	if configVal != "" {
		return configVal
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		return envVal
	}
	return defaultVal
}

// Default возвращает конфигурацию, в которой все значения берутся из env/дефолтов.
func Default() *Config {
	return &Config{
		World: WorldConfig{SpawnMap: 1, SpawnX: 50, SpawnY: 50},
		EventBus: EventBusConfig{
			Stream:    "MOVEMENT",
			Retention: 24,
		},
		Telemetry: TelemetryConfig{ServiceName: "tile-movement"},
		Logging:   LoggingConfig{Dir: "logs", Level: "info"},
	}
}

// Load читает YAML файл конфигурации поверх Default().
// Если path == "", пытается прочитать из ENV GAME_CONFIG, иначе возвращает дефолты.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("GAME_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
	}

	return cfg, nil
}
