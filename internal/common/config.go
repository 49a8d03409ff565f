package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	gormlogger "gorm.io/gorm/logger"
)

// Config는 애플리케이션의 모든 설정을 관리합니다.
type Config struct {
	App          AppConfig          `yaml:"app"`
	Database     DatabaseConfig     `yaml:"database"`
	Discord      DiscordConfig      `yaml:"discord"`
	APIKeys      APIKeysConfig      `yaml:"api_keys"`
	TextGen      TextGenConfig      `yaml:"textgen"`
	Video        VideoConfig        `yaml:"video"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Directory    DirectoryConfig    `yaml:"directory"`
}

// AppConfig는 애플리케이션 기본 설정입니다.
type AppConfig struct {
	// ENV는 실행 환경입니다 (development, production)
	ENV string `yaml:"env"`
	// LogLevel은 애플리케이션 로그 레벨입니다 (debug, info, warn, error)
	LogLevel string `yaml:"log_level"`
	// ListenAddr는 HTTP API 서버 주소입니다
	ListenAddr string `yaml:"listen_addr"`
}

// DatabaseConfig는 데이터베이스 설정입니다.
type DatabaseConfig struct {
	// DSN은 데이터베이스 연결 문자열입니다 (postgres:// 또는 SQLite 파일 경로)
	DSN string `yaml:"dsn"`
	// LogLevel은 GORM 로그 레벨입니다
	LogLevel gormlogger.LogLevel `yaml:"log_level"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	SkipDefaultTxn  bool          `yaml:"skip_default_txn"`
	PrepareStmt     bool          `yaml:"prepare_stmt"`
}

// DiscordConfig는 Discord 봇 설정입니다.
type DiscordConfig struct {
	// Token이 비어 있으면 봇을 시작하지 않습니다
	Token string `yaml:"token"`
	// PublicURL은 임베드의 영상 링크 앞에 붙는 API 서버 주소입니다
	PublicURL string `yaml:"public_url"`
}

// APIKeysConfig는 외부 API 키 설정입니다.
type APIKeysConfig struct {
	Anthropic string `yaml:"anthropic"`
	OpenAI    string `yaml:"openai"`
	// Video는 비디오 합성 서비스 API 키입니다
	Video string `yaml:"video"`
}

// TextGenConfig는 텍스트 생성 서비스 설정입니다.
type TextGenConfig struct {
	// Provider는 anthropic 또는 openai 입니다
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	// RequestsPerMinute가 0이면 제한하지 않습니다
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
}

// VideoConfig는 비디오 합성 서비스 설정입니다.
type VideoConfig struct {
	BaseURL      string        `yaml:"base_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	// MaxPollDuration이 0이면 원격 작업이 끝날 때까지 무기한 폴링합니다
	MaxPollDuration   time.Duration `yaml:"max_poll_duration"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// OrchestratorConfig는 Run 관리 정책입니다.
type OrchestratorConfig struct {
	// RunRetention이 0이면 Run을 프로세스 수명 동안 유지합니다
	RunRetention    time.Duration `yaml:"run_retention"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DirectoryConfig는 디렉토리 경로 설정입니다.
type DirectoryConfig struct {
	// DataDir은 기본 데이터 디렉토리입니다 (환경 변수 GRIDION_DIR로만 설정 가능, 기본값: $HOME/.gridion)
	DataDir string `yaml:"-"`
	// VideosDir은 Run별 영상이 저장되는 디렉토리입니다
	VideosDir string `yaml:"videos_dir"`
	// SQLiteDatabase는 SQLite 데이터베이스 파일 경로입니다
	SQLiteDatabase string `yaml:"sqlite_database"`
}

var (
	instance *Config
	once     sync.Once
	mu       sync.RWMutex
)

// InitConfig는 설정을 초기화합니다.
// configPath가 비어있으면 ${GRIDION_DIR}/config.yaml에서 로드를 시도하고, 파일이 없으면 환경 변수에서 로드합니다.
// .env 파일이 있으면 먼저 환경 변수로 읽어들입니다.
func InitConfig(configPath string) error {
	var err error
	once.Do(func() {
		_ = godotenv.Load()

		if configPath == "" {
			configPath = filepath.Join(getDataDir(), "config.yaml")
		}

		var cfg *Config
		if _, statErr := os.Stat(configPath); statErr == nil {
			cfg, err = LoadConfigFromFile(configPath)
		} else {
			cfg, err = LoadConfigFromEnv()
		}

		mu.Lock()
		instance = cfg
		mu.Unlock()
	})
	return err
}

// GetConfig는 싱글톤 Config 인스턴스를 반환합니다.
func GetConfig() *Config {
	mu.RLock()
	cfg := instance
	mu.RUnlock()
	if cfg == nil {
		// InitConfig가 호출되지 않은 경우 환경 변수에서 로드 시도
		_ = InitConfig("")
		mu.RLock()
		cfg = instance
		mu.RUnlock()
	}
	if cfg == nil {
		cfg, _ = LoadConfigFromEnv()
	}
	return cfg
}

// LoadConfig는 GetConfig의 에러 반환 버전입니다.
func LoadConfig() (*Config, error) {
	return GetConfig(), nil
}

// LoadConfigFromFile은 YAML 파일에서 설정을 로드합니다.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("설정 파일 읽기 실패: %w", err)
	}

	// 파일에 없는 값은 환경 변수 기본값으로 채웁니다
	cfg, _ := LoadConfigFromEnv()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("설정 파일 파싱 실패: %w", err)
	}

	return mergeWithEnv(cfg), nil
}

// LoadConfigFromEnv는 환경 변수에서 설정을 로드합니다.
func LoadConfigFromEnv() (*Config, error) {
	cfg := &Config{
		App:          loadAppConfig(),
		Database:     loadDatabaseConfig(),
		Discord:      DiscordConfig{Token: os.Getenv("GRIDION_DISCORD_TOKEN"), PublicURL: os.Getenv("GRIDION_PUBLIC_URL")},
		APIKeys:      loadAPIKeysConfig(),
		TextGen:      loadTextGenConfig(),
		Video:        loadVideoConfig(),
		Orchestrator: loadOrchestratorConfig(),
		Directory:    loadDirectoryConfig(),
	}

	return cfg, nil
}

// mergeWithEnv는 YAML 설정을 환경 변수로 오버라이드합니다.
func mergeWithEnv(cfg *Config) *Config {
	// App
	if env := os.Getenv("GRIDION_ENV"); env != "" {
		cfg.App.ENV = env
	}
	if logLevel := os.Getenv("GRIDION_LOG_LEVEL"); logLevel != "" {
		cfg.App.LogLevel = logLevel
	}
	if addr := os.Getenv("GRIDION_LISTEN_ADDR"); addr != "" {
		cfg.App.ListenAddr = addr
	}

	// Database
	if dsn := os.Getenv("GRIDION_DATABASE_URL"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if logLevel := os.Getenv("GRIDION_DB_LOG_LEVEL"); logLevel != "" {
		cfg.Database.LogLevel = parseLogLevel(logLevel)
	}
	if maxIdle := os.Getenv("GRIDION_DB_MAX_IDLE"); maxIdle != "" {
		cfg.Database.MaxIdleConns = parseIntWithDefault(maxIdle, cfg.Database.MaxIdleConns)
	}
	if maxOpen := os.Getenv("GRIDION_DB_MAX_OPEN"); maxOpen != "" {
		cfg.Database.MaxOpenConns = parseIntWithDefault(maxOpen, cfg.Database.MaxOpenConns)
	}

	// Discord
	if token := os.Getenv("GRIDION_DISCORD_TOKEN"); token != "" {
		cfg.Discord.Token = token
	}
	if publicURL := os.Getenv("GRIDION_PUBLIC_URL"); publicURL != "" {
		cfg.Discord.PublicURL = publicURL
	}

	// API Keys
	if apiKey := os.Getenv("GRIDION_ANTHROPIC_API_KEY"); apiKey != "" {
		cfg.APIKeys.Anthropic = apiKey
	}
	if apiKey := os.Getenv("GRIDION_OPENAI_API_KEY"); apiKey != "" {
		cfg.APIKeys.OpenAI = apiKey
	}
	if apiKey := os.Getenv("GRIDION_VIDEO_API_KEY"); apiKey != "" {
		cfg.APIKeys.Video = apiKey
	}

	// TextGen
	if provider := os.Getenv("GRIDION_TEXTGEN_PROVIDER"); provider != "" {
		cfg.TextGen.Provider = provider
	}
	if model := os.Getenv("GRIDION_TEXTGEN_MODEL"); model != "" {
		cfg.TextGen.Model = model
	}

	// Video
	if baseURL := os.Getenv("GRIDION_VIDEO_BASE_URL"); baseURL != "" {
		cfg.Video.BaseURL = baseURL
	}
	if interval := os.Getenv("GRIDION_VIDEO_POLL_INTERVAL"); interval != "" {
		cfg.Video.PollInterval = parseDurationWithDefault(interval, cfg.Video.PollInterval)
	}
	if maxPoll := os.Getenv("GRIDION_VIDEO_MAX_POLL_DURATION"); maxPoll != "" {
		cfg.Video.MaxPollDuration = parseDurationWithDefault(maxPoll, cfg.Video.MaxPollDuration)
	}

	// Orchestrator
	if retention := os.Getenv("GRIDION_RUN_RETENTION"); retention != "" {
		cfg.Orchestrator.RunRetention = parseDurationWithDefault(retention, cfg.Orchestrator.RunRetention)
	}

	// Directory
	if dataDir := os.Getenv("GRIDION_DIR"); dataDir != "" {
		cfg.Directory.DataDir = dataDir
	}
	if videosDir := os.Getenv("GRIDION_VIDEOS_DIR"); videosDir != "" {
		cfg.Directory.VideosDir = videosDir
	}
	if sqliteDB := os.Getenv("GRIDION_SQLITE_DATABASE"); sqliteDB != "" {
		cfg.Directory.SQLiteDatabase = sqliteDB
	}

	return cfg
}

func loadAppConfig() AppConfig {
	return AppConfig{
		ENV:        getEnvOrDefault("GRIDION_ENV", "production"),
		LogLevel:   getEnvOrDefault("GRIDION_LOG_LEVEL", "info"),
		ListenAddr: getEnvOrDefault("GRIDION_LISTEN_ADDR", ":8080"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	dsn := os.Getenv("GRIDION_DATABASE_URL")
	if dsn == "" {
		// GRIDION_DATABASE_URL이 없으면 SQLite 기본값 사용 (로컬 개발용)
		sqliteDB := os.Getenv("GRIDION_SQLITE_DATABASE")
		if sqliteDB == "" {
			sqliteDB = filepath.Join(getDataDir(), "gridion.db")
		}
		dsn = sqliteDB
	}

	return DatabaseConfig{
		DSN:             dsn,
		LogLevel:        parseLogLevel(os.Getenv("GRIDION_DB_LOG_LEVEL")),
		MaxIdleConns:    parseIntWithDefault(os.Getenv("GRIDION_DB_MAX_IDLE"), 5),
		MaxOpenConns:    parseIntWithDefault(os.Getenv("GRIDION_DB_MAX_OPEN"), 20),
		ConnMaxLifetime: parseDurationWithDefault(os.Getenv("GRIDION_DB_CONN_LIFETIME"), 30*time.Minute),
		SkipDefaultTxn:  parseBoolWithDefault(os.Getenv("GRIDION_DB_SKIP_DEFAULT_TXN"), true),
		PrepareStmt:     parseBoolWithDefault(os.Getenv("GRIDION_DB_PREPARE_STMT"), false),
	}
}

func loadAPIKeysConfig() APIKeysConfig {
	return APIKeysConfig{
		Anthropic: os.Getenv("GRIDION_ANTHROPIC_API_KEY"),
		OpenAI:    os.Getenv("GRIDION_OPENAI_API_KEY"),
		Video:     os.Getenv("GRIDION_VIDEO_API_KEY"),
	}
}

func loadTextGenConfig() TextGenConfig {
	return TextGenConfig{
		Provider:          getEnvOrDefault("GRIDION_TEXTGEN_PROVIDER", "anthropic"),
		Model:             os.Getenv("GRIDION_TEXTGEN_MODEL"),
		RequestsPerMinute: parseFloatWithDefault(os.Getenv("GRIDION_TEXTGEN_RPM"), 0),
	}
}

func loadVideoConfig() VideoConfig {
	return VideoConfig{
		BaseURL:           getEnvOrDefault("GRIDION_VIDEO_BASE_URL", "https://api.odyssey.ml/v1"),
		PollInterval:      parseDurationWithDefault(os.Getenv("GRIDION_VIDEO_POLL_INTERVAL"), 5*time.Second),
		MaxPollDuration:   parseDurationWithDefault(os.Getenv("GRIDION_VIDEO_MAX_POLL_DURATION"), 0),
		RequestsPerSecond: parseFloatWithDefault(os.Getenv("GRIDION_VIDEO_RPS"), 0),
	}
}

func loadOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		RunRetention:    parseDurationWithDefault(os.Getenv("GRIDION_RUN_RETENTION"), 0),
		CleanupInterval: parseDurationWithDefault(os.Getenv("GRIDION_RUN_CLEANUP_INTERVAL"), time.Minute),
		ShutdownTimeout: parseDurationWithDefault(os.Getenv("GRIDION_SHUTDOWN_TIMEOUT"), 30*time.Second),
	}
}

func loadDirectoryConfig() DirectoryConfig {
	return DirectoryConfig{
		DataDir:        getDataDir(),
		VideosDir:      os.Getenv("GRIDION_VIDEOS_DIR"),
		SQLiteDatabase: os.Getenv("GRIDION_SQLITE_DATABASE"),
	}
}

// getDataDir은 GRIDION_DIR 환경 변수를 반환하거나 기본값을 계산합니다.
func getDataDir() string {
	if dataDir := os.Getenv("GRIDION_DIR"); dataDir != "" {
		return dataDir
	}

	// GRIDION_DIR이 없으면 $HOME/.gridion 사용
	if homeDir := os.Getenv("HOME"); homeDir != "" {
		return filepath.Join(homeDir, ".gridion")
	}

	// Fallback: ./data
	return "./data"
}

// Helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseLogLevel(value string) gormlogger.LogLevel {
	switch value {
	case "silent", "SILENT":
		return gormlogger.Silent
	case "error", "ERROR":
		return gormlogger.Error
	case "warn", "WARN":
		return gormlogger.Warn
	case "info", "INFO":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

func parseIntWithDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func parseFloatWithDefault(value string, def float64) float64 {
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func parseDurationWithDefault(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

func parseBoolWithDefault(value string, def bool) bool {
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}

// Validate는 serve 명령 실행에 필요한 설정 값들을 검증합니다.
func (c *Config) Validate() error {
	switch c.TextGen.Provider {
	case "anthropic":
		if c.APIKeys.Anthropic == "" {
			return fmt.Errorf("GRIDION_ANTHROPIC_API_KEY is required")
		}
	case "openai":
		if c.APIKeys.OpenAI == "" {
			return fmt.Errorf("GRIDION_OPENAI_API_KEY is required")
		}
	default:
		return fmt.Errorf("unknown textgen provider: %q", c.TextGen.Provider)
	}
	if c.APIKeys.Video == "" {
		return fmt.Errorf("GRIDION_VIDEO_API_KEY is required")
	}
	if c.Video.PollInterval <= 0 {
		return fmt.Errorf("video poll interval must be positive")
	}
	return nil
}
