package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Game    GameConfig    `mapstructure:"game"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress    string        `mapstructure:"http_address"`
	RPCAddress     string        `mapstructure:"rpc_address"`
	PublicURL      string        `mapstructure:"public_url"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	Heartbeat      time.Duration `mapstructure:"heartbeat"`
}

type GameConfig struct {
	DefaultMaxPlayers      int              `mapstructure:"default_max_players"`
	DefaultUndercoverCount int              `mapstructure:"default_undercover_count"`
	RoomIdleTimeout        time.Duration    `mapstructure:"room_idle_timeout"`
	SweepInterval          time.Duration    `mapstructure:"sweep_interval"`
	WordPairs              []WordPairConfig `mapstructure:"word_pairs"`
}

type WordPairConfig struct {
	Civilian   string `mapstructure:"civilian"`
	Undercover string `mapstructure:"undercover"`
}

type LimitsConfig struct {
	ActionsPerSecond float64 `mapstructure:"actions_per_second"`
	Burst            int     `mapstructure:"burst"`
}

// ArchiveConfig selects where finished games are recorded: memory, gorm or postgres.
type ArchiveConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// DSN is the lib/pq keyword connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		p.Host, p.Port, p.User, p.Password, p.DBName)
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.heartbeat", 30*time.Second)

	v.SetDefault("game.default_max_players", 8)
	v.SetDefault("game.default_undercover_count", 1)
	v.SetDefault("game.room_idle_timeout", 30*time.Minute)
	v.SetDefault("game.sweep_interval", time.Minute)

	v.SetDefault("limits.actions_per_second", 5.0)
	v.SetDefault("limits.burst", 10)

	v.SetDefault("archive.driver", "memory")
	v.SetDefault("archive.postgres.host", "localhost")
	v.SetDefault("archive.postgres.port", 5432)
	v.SetDefault("archive.postgres.user", "postgres")
	v.SetDefault("archive.postgres.dbname", "undercover")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// New returns a viper instance with defaults and UNDERCOVER_* env binding,
// so cobra flags can be bound onto it before Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("UNDERCOVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadDotEnv loads a .env file when present. Existing variables win.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Load reads config.yaml from path (missing file is fine) and unmarshals it.
func Load(v *viper.Viper, path string) (*Config, error) {
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Game.DefaultMaxPlayers < 3 {
		return fmt.Errorf("game.default_max_players must be at least 3, got %d", c.Game.DefaultMaxPlayers)
	}
	if c.Game.DefaultUndercoverCount < 1 {
		return fmt.Errorf("game.default_undercover_count must be at least 1, got %d", c.Game.DefaultUndercoverCount)
	}
	if c.Limits.ActionsPerSecond <= 0 || c.Limits.Burst < 1 {
		return errors.New("limits.actions_per_second and limits.burst must be positive")
	}
	switch c.Archive.Driver {
	case "memory", "gorm", "postgres":
	default:
		return fmt.Errorf("unknown archive.driver %q", c.Archive.Driver)
	}
	for i, p := range c.Game.WordPairs {
		if p.Civilian == "" || p.Undercover == "" || p.Civilian == p.Undercover {
			return fmt.Errorf("game.word_pairs[%d] must hold two different words", i)
		}
	}
	return nil
}
