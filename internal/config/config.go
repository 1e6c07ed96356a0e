// Package config loads the application configuration.
//
// LAYERING (later wins):
//  1. Default() values
//  2. an optional TOML file named by CONFIG_FILE
//  3. a .env file in the working directory (never overrides real env vars)
//  4. environment variables
//
// The result is built once at startup and passed by pointer to every
// component. Nothing reads os.Getenv after Load returns.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Server holds HTTP listener and session settings.
type Server struct {
	Port      int    `toml:"port"`
	SecretKey string `toml:"secret_key"`
	// SessionTTLHours is how long a login stays valid.
	SessionTTLHours int  `toml:"session_ttl_hours"`
	DebugRoutes     bool `toml:"debug_routes"`
	// BaseURL is the externally visible origin, used for the GitHub
	// callback when GITHUB_CALLBACK_URL is not set.
	BaseURL string `toml:"base_url"`
}

// Database selects the SQL backend.
//
// For PostgreSQL, URL wins when set; otherwise the DSN is assembled from
// the discrete Host/Name/User/Password/Port/SSLMode fields. For SQLite only
// Path is used.
type Database struct {
	Driver   string `toml:"driver"`
	URL      string `toml:"url"`
	Host     string `toml:"host"`
	Name     string `toml:"name"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Port     int    `toml:"port"`
	SSLMode  string `toml:"sslmode"`
	Path     string `toml:"path"`
}

// Spoonacular holds the external recipe provider settings. An empty APIKey
// disables external search and import.
type Spoonacular struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Storage configures where recipe images go.
//
// S3 is used when Bucket and both credentials are set. Otherwise, when
// UploadDir is set, images are written to local disk and served from
// /uploads/. With neither, image uploads are disabled.
type Storage struct {
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	// Endpoint points the client at an S3-compatible service (MinIO, R2).
	Endpoint string `toml:"endpoint"`
	// PublicBaseURL replaces https://<bucket>.s3.<region>.amazonaws.com in
	// returned image URLs.
	PublicBaseURL string `toml:"public_base_url"`
	UploadDir     string `toml:"upload_dir"`
}

// GitHub enables "Sign in with GitHub" when ClientID and ClientSecret are set.
type GitHub struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	CallbackURL  string `toml:"callback_url"`
}

// Logging controls the slog handler.
type Logging struct {
	Level string `toml:"level"`
	// Format is "text", "json", or "auto" (text on a terminal, JSON otherwise).
	Format string `toml:"format"`
}

// RateLimit bounds POST /login and POST /signup per client IP.
type RateLimit struct {
	PerSecond float64 `toml:"per_second"`
	Burst     int     `toml:"burst"`
}

// Config is the full application configuration.
type Config struct {
	Server      Server      `toml:"server"`
	Database    Database    `toml:"database"`
	Spoonacular Spoonacular `toml:"spoonacular"`
	Storage     Storage     `toml:"storage"`
	GitHub      GitHub      `toml:"github"`
	Logging     Logging     `toml:"logging"`
	RateLimit   RateLimit   `toml:"rate_limit"`
}

// DefaultSecretKey is the development fallback for SECRET_KEY. Load accepts
// it, and the server logs a warning when it is in use.
const DefaultSecretKey = "dev-secret-change-me"

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: Server{
			Port:            8080,
			SecretKey:       DefaultSecretKey,
			SessionTTLHours: 7 * 24,
		},
		Database: Database{
			Driver:  "postgres",
			Host:    "localhost",
			Name:    "recipes_db",
			User:    "recipe_user",
			Port:    5432,
			SSLMode: "prefer",
			Path:    "data/recipebox.db",
		},
		Spoonacular: Spoonacular{
			BaseURL:        "https://api.spoonacular.com",
			TimeoutSeconds: 10,
		},
		Storage: Storage{
			Region: "us-east-1",
		},
		Logging: Logging{
			Level:  "info",
			Format: "auto",
		},
		RateLimit: RateLimit{
			PerSecond: 5,
			Burst:     10,
		},
	}
}

// Load reads .env from the working directory, then builds the configuration
// from the process environment.
func Load() (*Config, error) {
	// godotenv.Load only sets variables that are not already present, so
	// real environment variables keep precedence over the file.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds the configuration using lookup for every variable.
// Tests pass a map-backed lookup instead of touching the process env.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path, ok := lookup("CONFIG_FILE"); ok && path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) readFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open %s: %w", path, err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays environment variables. Variable names are the ones the
// deployment already uses (Heroku-style DATABASE_URL, AWS_* credentials).
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}

	e.int("PORT", &c.Server.Port)
	e.str("SECRET_KEY", &c.Server.SecretKey)
	e.int("SESSION_TTL_HOURS", &c.Server.SessionTTLHours)
	e.bool("DEBUG_ROUTES", &c.Server.DebugRoutes)
	e.str("BASE_URL", &c.Server.BaseURL)

	e.str("DB_DRIVER", &c.Database.Driver)
	e.str("DATABASE_URL", &c.Database.URL)
	e.str("DB_HOST", &c.Database.Host)
	e.str("DB_NAME", &c.Database.Name)
	e.str("DB_USER", &c.Database.User)
	e.str("DB_PASSWORD", &c.Database.Password)
	e.int("DB_PORT", &c.Database.Port)
	e.str("DB_SSLMODE", &c.Database.SSLMode)
	e.str("DB_PATH", &c.Database.Path)

	e.str("SPOONACULAR_API_KEY", &c.Spoonacular.APIKey)
	e.str("SPOONACULAR_BASE_URL", &c.Spoonacular.BaseURL)

	e.str("S3_BUCKET", &c.Storage.Bucket)
	e.str("AWS_REGION", &c.Storage.Region)
	e.str("AWS_ACCESS_KEY_ID", &c.Storage.AccessKeyID)
	e.str("AWS_SECRET_ACCESS_KEY", &c.Storage.SecretAccessKey)
	e.str("S3_ENDPOINT", &c.Storage.Endpoint)
	e.str("S3_PUBLIC_BASE_URL", &c.Storage.PublicBaseURL)
	e.str("UPLOAD_DIR", &c.Storage.UploadDir)

	e.str("GITHUB_CLIENT_ID", &c.GitHub.ClientID)
	e.str("GITHUB_CLIENT_SECRET", &c.GitHub.ClientSecret)
	e.str("GITHUB_CALLBACK_URL", &c.GitHub.CallbackURL)

	e.str("LOG_LEVEL", &c.Logging.Level)
	e.str("LOG_FORMAT", &c.Logging.Format)

	e.float("RATE_LIMIT_PER_SECOND", &c.RateLimit.PerSecond)
	e.int("RATE_LIMIT_BURST", &c.RateLimit.Burst)

	return e.err
}

func (c *Config) normalize() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Spoonacular.BaseURL = strings.TrimRight(c.Spoonacular.BaseURL, "/")
	c.Storage.PublicBaseURL = strings.TrimRight(c.Storage.PublicBaseURL, "/")
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	if c.Server.SecretKey == "" {
		return errors.New("config: SECRET_KEY must not be empty")
	}
	if c.Server.SessionTTLHours <= 0 {
		return errors.New("config: session TTL must be positive")
	}
	switch c.Database.Driver {
	case "postgres", "postgresql", "pgx", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("config: unknown DB_DRIVER %q", c.Database.Driver)
	}
	switch c.Logging.Format {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Logging.Format)
	}
	if c.RateLimit.PerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("config: rate limit must be positive")
	}
	return nil
}

// SessionTTL returns the session lifetime.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Server.SessionTTLHours) * time.Hour
}

// SpoonacularTimeout returns the provider request timeout.
func (c *Config) SpoonacularTimeout() time.Duration {
	return time.Duration(c.Spoonacular.TimeoutSeconds) * time.Second
}

// IsSQLite reports whether the SQLite backend is selected.
func (c *Config) IsSQLite() bool {
	return c.Database.Driver == "sqlite" || c.Database.Driver == "sqlite3"
}

// DatabaseDSN returns the connection string for the selected driver.
//
// A DATABASE_URL gets sslmode=require unless it already names a mode;
// hosted PostgreSQL providers refuse plain connections.
func (c *Config) DatabaseDSN() (string, error) {
	if c.IsSQLite() {
		return c.Database.Path, nil
	}

	if c.Database.URL != "" {
		u, err := url.Parse(c.Database.URL)
		if err != nil {
			return "", fmt.Errorf("config: parsing DATABASE_URL: %w", err)
		}
		// Older providers hand out postgres:// and postgresql:// interchangeably.
		if u.Scheme == "postgresql" {
			u.Scheme = "postgres"
		}
		q := u.Query()
		if q.Get("sslmode") == "" {
			q.Set("sslmode", "require")
			u.RawQuery = q.Encode()
		}
		return u.String(), nil
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     net.JoinHostPort(c.Database.Host, strconv.Itoa(c.Database.Port)),
		Path:     "/" + c.Database.Name,
		RawQuery: url.Values{"sslmode": {c.Database.SSLMode}}.Encode(),
	}
	return u.String(), nil
}

// S3Enabled reports whether S3 storage is fully configured.
func (c *Config) S3Enabled() bool {
	return c.Storage.Bucket != "" && c.Storage.AccessKeyID != "" && c.Storage.SecretAccessKey != ""
}

// GitHubEnabled reports whether GitHub sign-in is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHub.ClientID != "" && c.GitHub.ClientSecret != ""
}

// GitHubCallbackURL returns the OAuth redirect URL.
func (c *Config) GitHubCallbackURL() string {
	if c.GitHub.CallbackURL != "" {
		return c.GitHub.CallbackURL
	}
	base := c.Server.BaseURL
	if base == "" {
		base = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
	return base + "/auth/github/callback"
}
