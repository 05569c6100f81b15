package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	BackendMariaDB    = "mariadb"
	BackendPocketBase = "pocketbase"
	BackendFirestore  = "firestore"

	LocalFile  = "file"
	LocalRedis = "redis"

	FeedMemory = "memory"
	FeedRedis  = "redis"
)

type Config struct {
	Env            string `yaml:"env" env:"ENV" env-required:"true"`
	StorageBackend string `yaml:"storage_backend" env:"STORAGE_BACKEND" env-default:"mariadb"`
	Local          Local  `yaml:"local"`
	Database       `yaml:"database"`
	PocketBase     PocketBase `yaml:"pocketbase"`
	Firestore      Firestore  `yaml:"firestore"`
	Redis          Redis      `yaml:"redis"`
	RAWG           RAWG       `yaml:"rawg"`
	Auth           Auth       `yaml:"auth"`
	HTTPServer     `yaml:"http_server"`
	Session        Session `yaml:"session"`
	Backup         Backup  `yaml:"backup"`
}

// Local selects where the device and fallback collections live.
type Local struct {
	Backend string `yaml:"backend" env:"LOCAL_BACKEND" env-default:"file"`
	Path    string `yaml:"path" env:"LOCAL_PATH" env-default:"./data"`
}

type Database struct {
	Host       string `yaml:"host" env:"HOST" env-default:"localhost"`
	Port       int    `yaml:"port" env:"PORT" env-default:"3306"`
	UsernameDB string `yaml:"username-db" env:"USERNAMEDB"`
	Password   string `yaml:"password" env:"PASSWORD"`
	DBName     string `yaml:"dbname" env:"DBNAME" env-default:"gametrack"`
	Feed       string `yaml:"feed" env:"DB_FEED" env-default:"memory"`
}

type PocketBase struct {
	URL           string        `yaml:"url" env:"POCKETBASE_URL" env-default:"http://127.0.0.1:8090"`
	AdminEmail    string        `yaml:"admin_email" env:"POCKETBASE_ADMIN_EMAIL"`
	AdminPassword string        `yaml:"admin_password" env:"POCKETBASE_ADMIN_PASSWORD"`
	Timeout       time.Duration `yaml:"timeout" env-default:"10s"`
}

type Firestore struct {
	ProjectID       string `yaml:"project_id" env:"FIRESTORE_PROJECT_ID"`
	CredentialsFile string `yaml:"credentials_file" env:"GOOGLE_APPLICATION_CREDENTIALS"`
	Collection      string `yaml:"collection" env-default:"userGames"`
}

type Redis struct {
	Addr          string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password      string `yaml:"password" env:"REDIS_PASSWORD"`
	DB            int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	ChannelPrefix string `yaml:"channel_prefix" env-default:"gametrack:user_games:"`
}

type RAWG struct {
	BaseURL string        `yaml:"base_url" env:"RAWG_BASE_URL" env-default:"https://api.rawg.io/api"`
	APIKey  string        `yaml:"api_key" env:"RAWG_API_KEY" env-required:"true"`
	Timeout time.Duration `yaml:"timeout" env-default:"10s"`
}

type Auth struct {
	AppSecret string        `yaml:"app_secret" env:"APP_SECRET"`
	Issuer    string        `yaml:"issuer" env-default:"gametrack"`
	TokenTTL  time.Duration `yaml:"token_ttl" env-default:"720h"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	Cors        []string      `yaml:"cors" env-default:"http://localhost:5173"`
}

type Session struct {
	IdleTimeout     time.Duration `yaml:"idle_timeout" env-default:"30m"`
	JanitorInterval time.Duration `yaml:"janitor_interval" env-default:"1m"`
}

type Backup struct {
	Enabled   bool   `yaml:"enabled" env:"BACKUP_ENABLED"`
	Endpoint  string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"MINIO_ACCESS_KEY_ID"`
	SecretKey string `yaml:"secret_key" env:"MINIO_SECRET_ACCESS_KEY"`
	Bucket    string `yaml:"bucket" env:"MINIO_BUCKET_NAME" env-default:"gametrack-backups"`
	UseSSL    bool   `yaml:"use_ssl" env:"MINIO_USE_SSL"`
}

// MustLoad reads the config file, falling back to CONFIG_PATH when configPath is empty.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("cannot load .env: %w", err)
		}
	}

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		return nil, fmt.Errorf("CONFIG_PATH is not set")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %s - %w", configPath, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (cfg *Config) validate() error {
	switch cfg.StorageBackend {
	case BackendMariaDB:
		if cfg.Auth.AppSecret == "" {
			return fmt.Errorf("auth.app_secret is required for the %s backend", BackendMariaDB)
		}
	case BackendPocketBase, BackendFirestore:
	default:
		return fmt.Errorf("unknown storage_backend %q", cfg.StorageBackend)
	}

	switch cfg.Local.Backend {
	case LocalFile, LocalRedis:
	default:
		return fmt.Errorf("unknown local.backend %q", cfg.Local.Backend)
	}

	switch cfg.Database.Feed {
	case FeedMemory, FeedRedis:
	default:
		return fmt.Errorf("unknown database.feed %q", cfg.Database.Feed)
	}

	return nil
}

func (cfg *Database) GetDSN() string {
	dsn := mysql.NewConfig()
	dsn.User = cfg.UsernameDB
	dsn.Passwd = cfg.Password
	dsn.Net = "tcp"
	dsn.Addr = cfg.Host + ":" + strconv.Itoa(cfg.Port)
	dsn.DBName = cfg.DBName
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	dsn.MultiStatements = true

	return dsn.FormatDSN()
}
