package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       string         `yaml:"server"`
	Database     DatabaseConfig `yaml:"database"`
	Feed         FeedConfig     `yaml:"feed"`
	Site         SiteConfig     `yaml:"site"`
	Auth         AuthConfig     `yaml:"auth"`
	Photos       PhotosConfig   `yaml:"photos"`
	QR           QRConfig       `yaml:"qr"`
	Translations string         `yaml:"translations"`
	// PostBlockExpire is the minimum time between two comments from one device.
	PostBlockExpire time.Duration `yaml:"post_block_expire"`
}

type DatabaseConfig struct {
	// Driver is one of memory, sqlite, postgres or pgx.
	Driver string `yaml:"driver"`
	Dsn    string `yaml:"dsn"`
	Cached bool   `yaml:"cached"`
}

type FeedConfig struct {
	// Driver is one of memory, redis or nats.
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

type SiteConfig struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	// BaseURL is the public origin used in QR codes and feeds. The request
	// host is used when empty.
	BaseURL     string `yaml:"base_url"`
	Language    string `yaml:"language"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
	PerPage     int    `yaml:"per_page"`
}

type AuthConfig struct {
	SessionSecret string `yaml:"session_secret"`
	AllowSignUp   bool   `yaml:"allow_sign_up"`
	SecureCookie  bool   `yaml:"secure_cookie"`
}

type PhotosConfig struct {
	Dir     string `yaml:"dir"`
	MaxSize int64  `yaml:"max_size"`
}

type QRConfig struct {
	Size   int    `yaml:"size"`
	Margin int    `yaml:"margin"`
	Dark   string `yaml:"dark"`
	Light  string `yaml:"light"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ":8080",
		Database: DatabaseConfig{
			Driver: "sqlite",
			Dsn:    "./db/treeboard.sqlite",
			Cached: true,
		},
		Feed: FeedConfig{
			Driver: "memory",
		},
		Site: SiteConfig{
			Title:       "Campus Trees",
			Description: "Discover the stories behind the trees on campus",
			Language:    "en",
			PerPage:     24,
		},
		Auth: AuthConfig{
			AllowSignUp: true,
		},
		Photos: PhotosConfig{
			Dir:     "./public_html/photos",
			MaxSize: 10 << 20,
		},
		QR: QRConfig{
			Size:   512,
			Margin: 2,
			Dark:   "#2d5016",
			Light:  "#ffffff",
		},
		Translations:    "./translations",
		PostBlockExpire: 10 * time.Second,
	}
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory", "sqlite", "postgres", "pgx":
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if c.Database.Driver != "memory" && c.Database.Dsn == "" {
		return errors.New("database.dsn is required")
	}
	switch c.Feed.Driver {
	case "memory":
	case "redis", "nats":
		if c.Feed.URL == "" {
			return fmt.Errorf("feed.url is required for the %s feed", c.Feed.Driver)
		}
	default:
		return fmt.Errorf("feed.driver %q is not supported", c.Feed.Driver)
	}
	if len(c.Auth.SessionSecret) < 32 {
		return errors.New("auth.session_secret must be at least 32 characters")
	}
	if c.Site.PerPage <= 0 {
		return errors.New("site.per_page must be positive")
	}
	if c.QR.Size <= 0 || c.QR.Margin < 0 {
		return errors.New("qr.size must be positive and qr.margin not negative")
	}
	if c.Site.BaseURL != "" && !strings.HasPrefix(c.Site.BaseURL, "http") {
		return errors.New("site.base_url must be an http(s) URL")
	}
	return nil
}

// LoadFromFile layers the YAML file at path over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// ApplyEnv lets hosted environments override the file.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if port := getenv("PORT"); port != "" {
		if !strings.Contains(port, ":") {
			port = ":" + port
		}
		c.Server = port
	}
	if dsn := getenv("TREEBOARD_DSN"); dsn != "" {
		c.Database.Dsn = dsn
	}
	if secret := getenv("TREEBOARD_SESSION_SECRET"); secret != "" {
		c.Auth.SessionSecret = secret
	}
}

// loadConfig reads path when given, applies the environment and validates.
func loadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	if path != "" {
		var err error
		if c, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	c.ApplyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

func (c *Config) baseURL(host string, tls bool) string {
	if c.Site.BaseURL != "" {
		return strings.TrimSuffix(c.Site.BaseURL, "/")
	}
	if tls {
		return "https://" + host
	}
	return "http://" + host
}
