// Package config loads server and build settings from a TOML file, a .env
// file and the process environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/natefinch/lumberjack"

	"pathforge/pkg/source"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid config")

// Duration is a time.Duration written as a string ("5s") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the full configuration of the server and the CLI tools.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Graph    GraphConfig    `toml:"graph"`
	Log      LogConfig      `toml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string   `toml:"addr"`
	ReadTimeout    Duration `toml:"read_timeout"`
	WriteTimeout   Duration `toml:"write_timeout"`
	RequestTimeout Duration `toml:"request_timeout"`
	MaxConcurrent  int      `toml:"max_concurrent"`
	CORSOrigins    []string `toml:"cors_origins"`
	EnableReload   bool     `toml:"enable_reload"`
}

// DatabaseConfig holds the PostGIS connection.
type DatabaseConfig struct {
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Name     string `toml:"name"`
	SSLMode  string `toml:"sslmode"`
	Table    string `toml:"table"`
}

// PostGIS converts the settings for source.NewPostGIS.
func (d DatabaseConfig) PostGIS() source.PostGISConfig {
	return source.PostGISConfig{
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: d.Password,
		Database: d.Name,
		SSLMode:  d.SSLMode,
		Table:    d.Table,
	}
}

// Source kinds.
const (
	SourcePostGIS = "postgis"
	SourceGeoJSON = "geojson"
	SourceOSM     = "osm"
)

// GraphConfig controls where road data comes from and how it becomes a graph.
type GraphConfig struct {
	Source        string    `toml:"source"`      // postgis, geojson or osm
	SourcePath    string    `toml:"source_path"` // file for geojson and osm
	BBox          []float64 `toml:"bbox"`        // minLat, minLng, maxLat, maxLng (osm only)
	CachePath     string    `toml:"cache_path"`  // empty disables the snapshot
	Mode          string    `toml:"mode"`        // endpoints or vertices
	Index         string    `toml:"index"`       // rtree or linear
	MaxExpansions int       `toml:"max_expansions"`
}

// LogConfig sends the log to a rotating file when File is set.
type LogConfig struct {
	File       string `toml:"file"`
	MaxSize    int    `toml:"max_size"` // megabytes
	MaxAge     int    `toml:"max_age"`  // days
	MaxBackups int    `toml:"max_backups"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8080",
			ReadTimeout:    Duration{5 * time.Second},
			WriteTimeout:   Duration{10 * time.Second},
			RequestTimeout: Duration{5 * time.Second},
			MaxConcurrent:  runtime.NumCPU() * 2,
			CORSOrigins:    []string{"*"},
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			Name:    "osm",
			SSLMode: "disable",
			Table:   source.DefaultTable,
		},
		Graph: GraphConfig{
			Source:    SourcePostGIS,
			CachePath: "graph.cache",
			Mode:      "endpoints",
			Index:     "rtree",
		},
		Log: LogConfig{
			MaxSize: 100,
			MaxAge:  28,
		},
	}
}

// Load reads the optional TOML file at path over the defaults, then applies
// environment overrides and validates the result. Call LoadDotEnv first to
// have .env values take part.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			log.Printf("Warning: unknown config keys in %s: %v", path, undecoded)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv loads KEY=value pairs from the given files (".env" when none)
// into the process environment without overriding variables already set.
// Missing files are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
		log.Printf("Loaded environment from %s", f)
	}
	return nil
}

// ApplyEnv overrides settings from environment variables. The PG* names are
// the standard libpq ones.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"PGHOST", &c.Database.Host},
		{"PGPORT", &c.Database.Port},
		{"PGUSER", &c.Database.User},
		{"PGPASSWORD", &c.Database.Password},
		{"PGDATABASE", &c.Database.Name},
		{"PGSSLMODE", &c.Database.SSLMode},
		{"PATHFORGE_ROADS_TABLE", &c.Database.Table},
		{"PATHFORGE_ADDR", &c.Server.Addr},
		{"PATHFORGE_SOURCE", &c.Graph.Source},
		{"PATHFORGE_SOURCE_PATH", &c.Graph.SourcePath},
		{"PATHFORGE_CACHE", &c.Graph.CachePath},
		{"PATHFORGE_BUILD_MODE", &c.Graph.Mode},
		{"PATHFORGE_INDEX", &c.Graph.Index},
		{"PATHFORGE_LOG_FILE", &c.Log.File},
	}
	for _, s := range strs {
		if v, ok := lookup(s.key); ok {
			*s.dst = v
		}
	}

	if v, ok := lookup("PATHFORGE_CORS_ORIGINS"); ok {
		c.Server.CORSOrigins = splitList(v)
	}
	if v, ok := lookup("PATHFORGE_ENABLE_RELOAD"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: PATHFORGE_ENABLE_RELOAD: %w", ErrInvalid, err)
		}
		c.Server.EnableReload = b
	}
	if v, ok := lookup("PATHFORGE_MAX_EXPANSIONS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PATHFORGE_MAX_EXPANSIONS: %w", ErrInvalid, err)
		}
		c.Graph.MaxExpansions = n
	}
	if v, ok := lookup("PATHFORGE_REQUEST_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: PATHFORGE_REQUEST_TIMEOUT: %w", ErrInvalid, err)
		}
		c.Server.RequestTimeout = Duration{d}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the settings for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Server.Addr == "" {
		bad("server.addr is empty")
	}
	if c.Server.MaxConcurrent <= 0 {
		bad("server.max_concurrent must be positive, got %d", c.Server.MaxConcurrent)
	}
	if c.Server.RequestTimeout.Duration <= 0 {
		bad("server.request_timeout must be positive")
	}

	switch c.Graph.Source {
	case SourcePostGIS:
	case SourceGeoJSON, SourceOSM:
		if c.Graph.SourcePath == "" {
			bad("graph.source_path is required for source %q", c.Graph.Source)
		}
	default:
		bad("graph.source %q is not one of postgis, geojson, osm", c.Graph.Source)
	}
	switch c.Graph.Mode {
	case "", "endpoints", "vertices":
	default:
		bad("graph.mode %q is not one of endpoints, vertices", c.Graph.Mode)
	}
	switch c.Graph.Index {
	case "", "rtree", "linear":
	default:
		bad("graph.index %q is not one of rtree, linear", c.Graph.Index)
	}
	if c.Graph.MaxExpansions < 0 {
		bad("graph.max_expansions must not be negative")
	}
	if n := len(c.Graph.BBox); n != 0 && n != 4 {
		bad("graph.bbox needs 4 values, got %d", n)
	} else if n == 4 && (c.Graph.BBox[0] > c.Graph.BBox[2] || c.Graph.BBox[1] > c.Graph.BBox[3]) {
		bad("graph.bbox min exceeds max")
	}

	return errors.Join(errs...)
}

// Setup sends log output to a rotating file. It returns nil when no file is
// configured; otherwise the caller closes the returned writer on exit.
func (c LogConfig) Setup() io.Closer {
	if c.File == "" {
		return nil
	}
	log.Printf("Sending log messages to %s", c.File)
	l := &lumberjack.Logger{
		Filename:   c.File,
		MaxSize:    c.MaxSize, // megabytes
		MaxAge:     c.MaxAge,  // days
		MaxBackups: c.MaxBackups,
	}
	log.SetOutput(l)
	return l
}
