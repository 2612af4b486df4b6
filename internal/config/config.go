package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"time"

	"zapis/internal/calendar"
	"zapis/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrFatalConfig marks configuration problems that must stop startup.
var ErrFatalConfig = errors.New("fatal configuration error")

type Config struct {
	App           AppConfig           `yaml:"app"`
	Telegram      TelegramConfig      `yaml:"telegram"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Backup        BackupConfig        `yaml:"backup"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Logging       LoggingConfig       `yaml:"logging"`
	API           APIConfig           `yaml:"api"`
	Schedule      ScheduleConfig      `yaml:"schedule"`
	Booking       BookingConfig       `yaml:"booking"`
	Session       SessionConfig       `yaml:"session"`
	Reminders     ReminderConfig      `yaml:"reminders"`
	Callbacks     CallbackConfig      `yaml:"callbacks"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Exports       ExportConfig        `yaml:"exports"`
}

type ScheduleConfig struct {
	Timezone            string `yaml:"timezone"`
	WorkingDays         []int  `yaml:"working_days"` // 0 = воскресенье
	Start               string `yaml:"start"`
	End                 string `yaml:"end"`
	LunchStart          string `yaml:"lunch_start"`
	LunchEnd            string `yaml:"lunch_end"`
	SlotIntervalMinutes int    `yaml:"slot_interval_minutes"`
	AdvanceBookingDays  int    `yaml:"advance_booking_days"`
}

type BookingConfig struct {
	PhonePattern     string        `yaml:"phone_pattern"`
	SkipToken        string        `yaml:"skip_token"`
	DefaultFirstName string        `yaml:"default_first_name"`
	MaxNotesLength   int           `yaml:"max_notes_length"`
	StoreTimeout     time.Duration `yaml:"store_timeout"`
}

type SessionConfig struct {
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
}

type ReminderConfig struct {
	Enabled   bool          `yaml:"enabled"`
	LeadHours int           `yaml:"lead_hours"`
	Interval  time.Duration `yaml:"interval"`
}

type CallbackConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	PollInterval time.Duration `yaml:"poll_interval"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

type NotificationsConfig struct {
	AdminUserID string `yaml:"admin_user_id"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database path is required", ErrFatalConfig)
	}

	if _, err := c.Schedule.Rules(); err != nil {
		return err
	}

	if _, err := regexp.Compile(c.Booking.PhonePattern); err != nil {
		return fmt.Errorf("%w: booking.phone_pattern: %v", ErrFatalConfig, err)
	}

	if c.Reminders.LeadHours < 0 {
		return fmt.Errorf("%w: reminders.lead_hours must not be negative", ErrFatalConfig)
	}

	return nil
}

// Rules converts the schedule section into calendar rules.
func (s ScheduleConfig) Rules() (calendar.Rules, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return calendar.Rules{}, fmt.Errorf("%w: schedule.timezone: %v", ErrFatalConfig, err)
	}

	clocks := make([]calendar.Clock, 4)
	for i, raw := range []string{s.Start, s.End, s.LunchStart, s.LunchEnd} {
		if raw == "" && i >= 2 {
			continue
		}
		c, err := calendar.ParseClock(raw)
		if err != nil {
			return calendar.Rules{}, fmt.Errorf("%w: schedule: %v", ErrFatalConfig, err)
		}
		clocks[i] = c
	}
	if clocks[0] >= clocks[1] {
		return calendar.Rules{}, fmt.Errorf("%w: schedule.start must be before schedule.end", ErrFatalConfig)
	}

	days := make([]time.Weekday, 0, len(s.WorkingDays))
	for _, d := range s.WorkingDays {
		if d < 0 || d > 6 {
			return calendar.Rules{}, fmt.Errorf("%w: schedule.working_days: invalid weekday %d", ErrFatalConfig, d)
		}
		days = append(days, time.Weekday(d))
	}

	if s.SlotIntervalMinutes <= 0 {
		return calendar.Rules{}, fmt.Errorf("%w: schedule.slot_interval_minutes must be positive", ErrFatalConfig)
	}

	return calendar.Rules{
		Location:     loc,
		WorkingDays:  days,
		Open:         clocks[0],
		Close:        clocks[1],
		LunchStart:   clocks[2],
		LunchEnd:     clocks[3],
		SlotInterval: time.Duration(s.SlotIntervalMinutes) * time.Minute,
		HorizonDays:  s.AdvanceBookingDays,
	}, nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = models.RateLimitRPS
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = models.RateLimitBurst
	}

	// Расписание клиники
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "Asia/Jerusalem"
	}
	if len(c.Schedule.WorkingDays) == 0 {
		c.Schedule.WorkingDays = []int{1, 2, 3, 4, 5, 6}
	}
	if c.Schedule.Start == "" {
		c.Schedule.Start = "09:00"
	}
	if c.Schedule.End == "" {
		c.Schedule.End = "18:00"
	}
	if c.Schedule.LunchStart == "" && c.Schedule.LunchEnd == "" {
		c.Schedule.LunchStart = "13:00"
		c.Schedule.LunchEnd = "14:00"
	}
	if c.Schedule.SlotIntervalMinutes == 0 {
		c.Schedule.SlotIntervalMinutes = models.DefaultSlotIntervalMinutes
	}
	if c.Schedule.AdvanceBookingDays == 0 {
		c.Schedule.AdvanceBookingDays = models.DefaultAdvanceBookingDays
	}

	if c.Booking.PhonePattern == "" {
		c.Booking.PhonePattern = models.DefaultPhonePattern
	}
	if c.Booking.SkipToken == "" {
		c.Booking.SkipToken = models.DefaultSkipToken
	}
	if c.Booking.DefaultFirstName == "" {
		c.Booking.DefaultFirstName = models.DefaultFirstName
	}
	if c.Booking.MaxNotesLength == 0 {
		c.Booking.MaxNotesLength = models.DefaultMaxNotesLength
	}
	if c.Booking.StoreTimeout == 0 {
		c.Booking.StoreTimeout = 5 * time.Second
	}

	if c.Session.IdleTimeout == 0 {
		c.Session.IdleTimeout = models.DefaultSessionIdleTimeout * time.Second
	}
	if c.Session.JanitorInterval == 0 {
		c.Session.JanitorInterval = time.Minute
	}

	if c.Reminders.LeadHours == 0 {
		c.Reminders.LeadHours = models.DefaultReminderLeadHours
	}
	if c.Reminders.Interval == 0 {
		c.Reminders.Interval = models.DefaultReminderInterval * time.Second
	}

	if c.Callbacks.MaxAttempts == 0 {
		c.Callbacks.MaxAttempts = models.DefaultCallbackMaxAttempts
	}
	if c.Callbacks.PollInterval == 0 {
		c.Callbacks.PollInterval = time.Minute
	}
	if c.Callbacks.RetryDelay == 0 {
		c.Callbacks.RetryDelay = 15 * time.Minute
	}
	if c.Callbacks.MaxDelay == 0 {
		c.Callbacks.MaxDelay = 2 * time.Hour
	}

	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
