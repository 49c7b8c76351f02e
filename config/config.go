package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Pinata    PinataConfig    `mapstructure:"pinata"`
	Algorand  AlgorandConfig  `mapstructure:"algorand"`
	Templates TemplatesConfig `mapstructure:"templates"`
	Security  SecurityConfig  `mapstructure:"security"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Debug        bool   `mapstructure:"debug"`
	AdminKey     string `mapstructure:"admin_key"`
	DashboardDir string `mapstructure:"dashboard_dir"` // Path to the built dashboard (served at /)
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
	ListTTL         time.Duration `mapstructure:"list_ttl"`
}

type ArchiveConfig struct {
	Dir           string        `mapstructure:"dir"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SweepMinAge   time.Duration `mapstructure:"sweep_min_age"`
}

// PinataConfig holds the remote pinning credentials. The API key and
// secret are normally supplied via CHARVAULT_PINATA_API_KEY and
// CHARVAULT_PINATA_SECRET_KEY rather than the config file.
type PinataConfig struct {
	Endpoint  string        `mapstructure:"endpoint"`
	Gateway   string        `mapstructure:"gateway"`
	APIKey    string        `mapstructure:"api_key"`
	SecretKey string        `mapstructure:"secret_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// AlgorandConfig configures the optional algod node connection. Account
// generation is offline and needs no node; asset operations do.
type AlgorandConfig struct {
	AlgodURL   string `mapstructure:"algod_url"`
	AlgodToken string `mapstructure:"algod_token"`
	WaitRounds uint64 `mapstructure:"wait_rounds"`
}

type TemplatesConfig struct {
	Path string `mapstructure:"path"` // optional JSON file overriding the built-in type templates
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AdminIPs restricts admin endpoints to these client IPs.
	// An empty slice allows all IPs.
	AdminIPs []string `mapstructure:"admin_ips"`
	// VaultKey seals wallet mnemonics at rest.
	VaultKey string `mapstructure:"vault_key"`
}

// Load reads config from the given YAML file path. Environment variables
// prefixed with CHARVAULT_ override file values; a missing config file is
// not an error (defaults + env only).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("charvault")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/character_storage.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("cache.list_ttl", "30s")
	v.SetDefault("archive.dir", "./generated")
	v.SetDefault("archive.sweep_interval", "1h")
	v.SetDefault("archive.sweep_min_age", "24h")
	v.SetDefault("pinata.endpoint", "https://api.pinata.cloud")
	v.SetDefault("pinata.gateway", "https://gateway.pinata.cloud")
	v.SetDefault("pinata.timeout", "30s")
	v.SetDefault("algorand.wait_rounds", 4)
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
