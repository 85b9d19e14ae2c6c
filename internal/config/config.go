// Package config loads server configuration from a YAML file with
// environment-variable overrides, in the idiom of the teacher's
// pkg/config/loader.go (a viper.Viper wrapped by a small loader type).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full set of tunables for the server process.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`
	DataDir    string `mapstructure:"data_dir"`

	CRDT      CRDTConfig      `mapstructure:"crdt"`
	Diffusion DiffusionConfig `mapstructure:"diffusion"`
	Save      SaveConfig      `mapstructure:"save"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Cache     CacheConfig     `mapstructure:"cache"`
}

// CacheConfig selects the recap cache backend for prompt-context packing
// (spec §4.4). An empty Address keeps the no-op default; setting it dials
// Redis instead.
type CacheConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	Database     int           `mapstructure:"database"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
}

// CRDTConfig bounds the document manager's command queue (spec §4.1: 256).
type CRDTConfig struct {
	CommandQueueDepth int `mapstructure:"command_queue_depth"`
	UpdateBroadcastDepth int `mapstructure:"update_broadcast_depth"`
	ChangeNotifyDepth int `mapstructure:"change_notify_depth"`
	SnapshotCacheSize int `mapstructure:"snapshot_cache_size"`
}

// DiffusionConfig bounds the diffusion coordinator's command queue and
// progress broadcast (spec §4.3: 16 / 64) plus the default model to load.
type DiffusionConfig struct {
	CommandQueueDepth  int    `mapstructure:"command_queue_depth"`
	ProgressBroadcastDepth int `mapstructure:"progress_broadcast_depth"`
	ModelPath          string `mapstructure:"model_path"`
	Device             string `mapstructure:"device"`
}

// SaveConfig controls the debounced-save scheduler (spec §5).
type SaveConfig struct {
	DebounceInterval time.Duration `mapstructure:"debounce_interval"`
}

// WebSocketConfig controls the multiplex (spec §6).
type WebSocketConfig struct {
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	RateLimitPerSec float64       `mapstructure:"rate_limit_per_sec"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
}

// Default returns the baseline configuration matching every bound named
// explicitly in spec §4 and §5.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		DataDir:    "./data",
		CRDT: CRDTConfig{
			CommandQueueDepth:      256,
			UpdateBroadcastDepth:   256,
			ChangeNotifyDepth:      256,
			SnapshotCacheSize:      512,
		},
		Diffusion: DiffusionConfig{
			CommandQueueDepth:      16,
			ProgressBroadcastDepth: 64,
			ModelPath:              "",
			Device:                 "cpu",
		},
		Save: SaveConfig{
			DebounceInterval: 2 * time.Second,
		},
		WebSocket: WebSocketConfig{
			MaxMessageBytes: 4 << 20,
			PingInterval:    30 * time.Second,
			RateLimitPerSec: 50,
			RateLimitBurst:  100,
		},
		Cache: CacheConfig{
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
		},
	}
}

// Loader loads and merges a YAML config file with environment overrides.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a Loader with environment overrides enabled; Load
// seeds the Default() values.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix("STORYENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return &Loader{v: v}
}

// Load reads path (if non-empty and present) over the defaults and returns
// the merged Config.
func (l *Loader) Load(path string) (Config, error) {
	cfg := Default()

	// Seed viper's defaults from the struct so AutomaticEnv-only overrides
	// (no file at all) still resolve every key.
	for k, v := range map[string]interface{}{
		"listen_addr":                    cfg.ListenAddr,
		"data_dir":                       cfg.DataDir,
		"crdt.command_queue_depth":       cfg.CRDT.CommandQueueDepth,
		"crdt.update_broadcast_depth":    cfg.CRDT.UpdateBroadcastDepth,
		"crdt.change_notify_depth":       cfg.CRDT.ChangeNotifyDepth,
		"crdt.snapshot_cache_size":       cfg.CRDT.SnapshotCacheSize,
		"diffusion.command_queue_depth":  cfg.Diffusion.CommandQueueDepth,
		"diffusion.progress_broadcast_depth": cfg.Diffusion.ProgressBroadcastDepth,
		"diffusion.model_path":           cfg.Diffusion.ModelPath,
		"diffusion.device":               cfg.Diffusion.Device,
		"save.debounce_interval":         cfg.Save.DebounceInterval,
		"websocket.max_message_bytes":    cfg.WebSocket.MaxMessageBytes,
		"websocket.ping_interval":        cfg.WebSocket.PingInterval,
		"websocket.rate_limit_per_sec":   cfg.WebSocket.RateLimitPerSec,
		"websocket.rate_limit_burst":     cfg.WebSocket.RateLimitBurst,
		"cache.address":                  cfg.Cache.Address,
		"cache.database":                 cfg.Cache.Database,
		"cache.dial_timeout":             cfg.Cache.DialTimeout,
		"cache.read_timeout":             cfg.Cache.ReadTimeout,
		"cache.write_timeout":            cfg.Cache.WriteTimeout,
		"cache.pool_size":                cfg.Cache.PoolSize,
	} {
		l.v.SetDefault(k, v)
	}

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", path, err)
		}
	}

	if err := l.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
