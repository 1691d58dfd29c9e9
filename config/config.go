// Package config provides loading and parsing of designer.yaml configuration files.
// A designer configuration selects the persistence backend, the table names
// used for nodes and edges, and the tuning knobs of layout and canvas behavior.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "DESIGNER_CONFIG"

// Config represents a designer.yaml configuration file.
type Config struct {
	// Service is the service name sent with every persistence request.
	Service string `yaml:"service,omitempty"`

	Backend   *BackendConfig   `yaml:"backend,omitempty"`
	Tables    *TablesConfig    `yaml:"tables,omitempty"`
	Layout    *LayoutConfig    `yaml:"layout,omitempty"`
	Canvas    *CanvasConfig    `yaml:"canvas,omitempty"`
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`

	// LogLevel is one of debug, info, warn, error. Default: info
	LogLevel string `yaml:"log_level,omitempty"`
}

// BackendConfig selects and configures the key-value backend.
type BackendConfig struct {
	// Type is one of memory, redis, etcd, neo4j, sqlite, grpc. Default: memory
	Type string `yaml:"type,omitempty"`

	// URL is the Redis URL or Neo4j URI.
	URL string `yaml:"url,omitempty"`

	// Endpoints lists etcd cluster members.
	Endpoints []string `yaml:"endpoints,omitempty"`

	// Namespace prefixes keys for redis and etcd. Default: "designer"
	Namespace string `yaml:"namespace,omitempty"`

	// Path is the SQLite database file.
	Path string `yaml:"path,omitempty"`

	// Address is the host:port of a remote store server.
	Address string `yaml:"address,omitempty"`

	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database,omitempty"`

	// DialTimeout bounds connection establishment.
	// Format: Go duration string (e.g., "5s")
	// Default: 5s
	DialTimeout string `yaml:"dial_timeout,omitempty"`

	TLS *TLSConfig `yaml:"tls,omitempty"`
}

// TLSConfig names certificate files for mutual TLS.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file,omitempty"`
	KeyFile  string `yaml:"key_file,omitempty"`
	CAFile   string `yaml:"ca_file,omitempty"`
}

// TablesConfig names the node and edge tables.
type TablesConfig struct {
	Node string `yaml:"node,omitempty"`
	Edge string `yaml:"edge,omitempty"`
}

// LayoutConfig tunes the layered auto-layout.
type LayoutConfig struct {
	NodeWidth    float64 `yaml:"node_width,omitempty"`
	NodeHeight   float64 `yaml:"node_height,omitempty"`
	NodeSpacing  float64 `yaml:"node_spacing,omitempty"`
	LayerSpacing float64 `yaml:"layer_spacing,omitempty"`
	Padding      float64 `yaml:"padding,omitempty"`

	// Timeout bounds a single layout computation.
	// Format: Go duration string (e.g., "2s")
	// Default: 2s
	Timeout string `yaml:"timeout,omitempty"`
}

// CanvasConfig tunes interactive canvas behavior.
type CanvasConfig struct {
	// DefaultEdgeType is the type given to edges drawn by the user. Default: "flow"
	DefaultEdgeType string `yaml:"default_edge_type,omitempty"`

	// BannerTimeout is how long on-node error banners stay visible.
	// Format: Go duration string. Default: 3s
	BannerTimeout string `yaml:"banner_timeout,omitempty"`

	// ConnectionRule is an optional CEL expression over `source` and `target`
	// that must evaluate to true for a connection to be accepted.
	ConnectionRule string `yaml:"connection_rule,omitempty"`

	// DataRadius is the radius of the circle data items are spawned on. Default: 200
	DataRadius float64 `yaml:"data_radius,omitempty"`

	// Mode is "designer" (default) or "ontology".
	Mode string `yaml:"mode,omitempty"`

	// ViewportWidth and ViewportHeight are the screen size the view is fit
	// to after auto-layout. Default: 1280x800
	ViewportWidth  float64 `yaml:"viewport_width,omitempty"`
	ViewportHeight float64 `yaml:"viewport_height,omitempty"`
}

// TelemetryConfig configures OpenTelemetry resources.
type TelemetryConfig struct {
	// ServiceName is reported as service.name. Default: "captify-designer"
	ServiceName string `yaml:"service_name,omitempty"`
}

// Default returns a configuration with every section present and defaulted.
func Default() *Config {
	return &Config{
		Backend:   &BackendConfig{},
		Tables:    &TablesConfig{},
		Layout:    &LayoutConfig{},
		Canvas:    &CanvasConfig{},
		Telemetry: &TelemetryConfig{},
	}
}

// GetService returns the service name or the default value.
func (c *Config) GetService() string {
	if c == nil || c.Service == "" {
		return "platform.dynamodb"
	}
	return c.Service
}

// GetLogLevel parses the log level, defaulting to info.
func (c *Config) GetLogLevel() slog.Level {
	if c == nil {
		return slog.LevelInfo
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetType returns the backend type or the default value.
func (b *BackendConfig) GetType() string {
	if b == nil || b.Type == "" {
		return "memory"
	}
	return strings.ToLower(b.Type)
}

// GetNamespace returns the key namespace or the default value.
func (b *BackendConfig) GetNamespace() string {
	if b == nil || b.Namespace == "" {
		return "designer"
	}
	return b.Namespace
}

// GetDialTimeout parses the dial timeout string and returns a duration.
// Returns the default value if not set or invalid.
func (b *BackendConfig) GetDialTimeout() time.Duration {
	return parseDuration(b.dialTimeout(), 5*time.Second)
}

func (b *BackendConfig) dialTimeout() string {
	if b == nil {
		return ""
	}
	return b.DialTimeout
}

// GetNode returns the node table name or the default value.
func (t *TablesConfig) GetNode() string {
	if t == nil || t.Node == "" {
		return "core-ontology-node"
	}
	return t.Node
}

// GetEdge returns the edge table name or the default value.
func (t *TablesConfig) GetEdge() string {
	if t == nil || t.Edge == "" {
		return "core-ontology-edge"
	}
	return t.Edge
}

// GetNodeWidth returns the layout box width or the default value.
func (l *LayoutConfig) GetNodeWidth() float64 {
	if l == nil || l.NodeWidth <= 0 {
		return 180
	}
	return l.NodeWidth
}

// GetNodeHeight returns the layout box height or the default value.
func (l *LayoutConfig) GetNodeHeight() float64 {
	if l == nil || l.NodeHeight <= 0 {
		return 60
	}
	return l.NodeHeight
}

// GetNodeSpacing returns the spacing between nodes in a layer or the default value.
func (l *LayoutConfig) GetNodeSpacing() float64 {
	if l == nil || l.NodeSpacing <= 0 {
		return 80
	}
	return l.NodeSpacing
}

// GetLayerSpacing returns the spacing between layers or the default value.
func (l *LayoutConfig) GetLayerSpacing() float64 {
	if l == nil || l.LayerSpacing <= 0 {
		return 120
	}
	return l.LayerSpacing
}

// GetPadding returns the layout padding or the default value.
func (l *LayoutConfig) GetPadding() float64 {
	if l == nil || l.Padding <= 0 {
		return 100
	}
	return l.Padding
}

// GetTimeout returns the layout timeout or the default value.
func (l *LayoutConfig) GetTimeout() time.Duration {
	if l == nil {
		return 2 * time.Second
	}
	return parseDuration(l.Timeout, 2*time.Second)
}

// GetDefaultEdgeType returns the default edge type or "flow".
func (c *CanvasConfig) GetDefaultEdgeType() string {
	if c == nil || c.DefaultEdgeType == "" {
		return "flow"
	}
	return c.DefaultEdgeType
}

// GetBannerTimeout returns the banner timeout or the default value.
func (c *CanvasConfig) GetBannerTimeout() time.Duration {
	if c == nil {
		return 3 * time.Second
	}
	return parseDuration(c.BannerTimeout, 3*time.Second)
}

// GetDataRadius returns the data item circle radius or the default value.
func (c *CanvasConfig) GetDataRadius() float64 {
	if c == nil || c.DataRadius <= 0 {
		return 200
	}
	return c.DataRadius
}

// GetMode returns the canvas mode or "designer".
func (c *CanvasConfig) GetMode() string {
	if c == nil || c.Mode == "" {
		return "designer"
	}
	return c.Mode
}

// GetViewportSize returns the screen size used for fitting the view.
func (c *CanvasConfig) GetViewportSize() (width, height float64) {
	width, height = 1280, 800
	if c == nil {
		return width, height
	}
	if c.ViewportWidth > 0 {
		width = c.ViewportWidth
	}
	if c.ViewportHeight > 0 {
		height = c.ViewportHeight
	}
	return width, height
}

// GetConnectionRule returns the CEL connection rule, which may be empty.
func (c *CanvasConfig) GetConnectionRule() string {
	if c == nil {
		return ""
	}
	return c.ConnectionRule
}

// GetServiceName returns the telemetry service name or the default value.
func (t *TelemetryConfig) GetServiceName() string {
	if t == nil || t.ServiceName == "" {
		return "captify-designer"
	}
	return t.ServiceName
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Load reads and parses a designer.yaml file from the given path.
// If the path is a directory, it looks for designer.yaml or designer.yml in that directory.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	var configPath string
	if info.IsDir() {
		yamlPath := filepath.Join(path, "designer.yaml")
		if _, err := os.Stat(yamlPath); err == nil {
			configPath = yamlPath
		} else {
			ymlPath := filepath.Join(path, "designer.yml")
			if _, err := os.Stat(ymlPath); err == nil {
				configPath = ymlPath
			} else {
				return nil, fmt.Errorf("no designer.yaml or designer.yml found in %s", path)
			}
		}
	} else {
		configPath = path
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// LoadFromEnv loads the file named by DESIGNER_CONFIG. When the variable is
// unset it returns Default() so the designer runs against an in-memory store.
func LoadFromEnv() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}
