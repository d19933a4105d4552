package config

import (
	"github.com/spf13/viper"
)

// Config is the loader application configuration.
type Config struct {
	BundlePaths []string    `mapstructure:"bundle_paths"`
	LogLevel    string      `mapstructure:"log_level"`
	Wasm        WasmConfig  `mapstructure:"wasm"`
	Fetch       FetchConfig `mapstructure:"fetch"`
}

// WasmConfig holds Wasm runtime and loader configuration.
type WasmConfig struct {
	// Memory limit per module (in pages, 64KB each).
	MemoryPages uint32 `mapstructure:"memory_pages"`
	// Keep debug info for guest stack traces.
	Debug bool `mapstructure:"debug"`
	// Compilation cache directory. Empty keeps the cache in memory.
	CacheDir string `mapstructure:"cache_dir"`
	// Maximum concurrently open instances.
	MaxInstances int `mapstructure:"max_instances"`
	// Link wasi_snapshot_preview1 for every module that imports it.
	EnableWASI bool `mapstructure:"enable_wasi"`
	// Provide host.log_message to guests.
	HostLogging bool `mapstructure:"host_logging"`
	// Exported start routines run once after instantiation.
	StartFunctions []string `mapstructure:"start_functions"`
}

// FetchConfig configures module retrieval by reference.
type FetchConfig struct {
	UserAgent string `mapstructure:"user_agent"`
}

// Load reads configuration from configPath on top of the defaults.
// An empty path returns the defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("bundle_paths", []string{"./bundles"})
	v.SetDefault("log_level", "info")

	// Wasm defaults
	v.SetDefault("wasm.memory_pages", 256) // 16MB
	v.SetDefault("wasm.debug", false)
	v.SetDefault("wasm.cache_dir", "")
	v.SetDefault("wasm.max_instances", 100)
	v.SetDefault("wasm.enable_wasi", false)
	v.SetDefault("wasm.host_logging", true)
	v.SetDefault("wasm.start_functions", []string{"_initialize", "__wbindgen_start"})

	v.SetDefault("fetch.user_agent", "wasm-loader")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
