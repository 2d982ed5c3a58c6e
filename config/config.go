package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// AppConfig holds the application-level configuration shared by the relay,
// the signaling server and the transfer engine.
type AppConfig struct {
	RelayHost     string `mapstructure:"relay_host"`
	RelayPort     int    `mapstructure:"relay_port"`
	SignalingHost string `mapstructure:"signaling_host"`
	SignalingPort int    `mapstructure:"signaling_port"`

	UploadDir     string `mapstructure:"upload_dir"`
	HistoryDBPath string `mapstructure:"history_db_path"`

	ChunkSizeLAN   int64 `mapstructure:"chunk_size_lan"`
	ChunkSizeP2P   int64 `mapstructure:"chunk_size_p2p"`
	ChunkSizeRelay int64 `mapstructure:"chunk_size_relay"`

	MaxParallelChunks int           `mapstructure:"max_parallel_chunks"`
	MinParallelChunks int           `mapstructure:"min_parallel_chunks"`
	MaxRetryAttempts  int           `mapstructure:"max_retry_attempts"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`

	CleanupAfter time.Duration `mapstructure:"cleanup_after"`

	PairCodeLength int           `mapstructure:"pair_code_length"`
	PairCodeExpiry time.Duration `mapstructure:"pair_code_expiry"`

	LANPort           int           `mapstructure:"lan_port"`
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	ChunkTimeout      time.Duration `mapstructure:"chunk_timeout"`
}

var Config *AppConfig

// LoadConfig reads config.yaml from the given path, applies environment
// overrides, and fills the global Config. Missing files fall back to
// defaults so a bare binary still runs.
func LoadConfig(path string) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(path)
	viper.AutomaticEnv()

	viper.SetDefault("relay_host", "0.0.0.0")
	viper.SetDefault("relay_port", 8000)
	viper.SetDefault("signaling_host", "0.0.0.0")
	viper.SetDefault("signaling_port", 3000)
	viper.SetDefault("upload_dir", "uploads")
	viper.SetDefault("history_db_path", "./data/history")
	viper.SetDefault("chunk_size_lan", 2*1024*1024)
	viper.SetDefault("chunk_size_p2p", 512*1024)
	viper.SetDefault("chunk_size_relay", 1*1024*1024)
	viper.SetDefault("max_parallel_chunks", 5)
	viper.SetDefault("min_parallel_chunks", 1)
	viper.SetDefault("max_retry_attempts", 3)
	viper.SetDefault("retry_delay", 2*time.Second)
	viper.SetDefault("cleanup_after", 24*time.Hour)
	viper.SetDefault("pair_code_length", 6)
	viper.SetDefault("pair_code_expiry", time.Hour)
	viper.SetDefault("lan_port", 9000)
	viper.SetDefault("connection_timeout", 30*time.Second)
	viper.SetDefault("chunk_timeout", 60*time.Second)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("could not read config file, using defaults: %v", err)
	}

	var appConfig AppConfig
	if err := viper.Unmarshal(&appConfig); err != nil {
		log.Fatalf("unable to decode config into struct: %v", err)
	}

	Config = &appConfig
}

// Get returns the loaded config, loading defaults first when no explicit
// LoadConfig call happened (tests and library use).
func Get() *AppConfig {
	if Config == nil {
		LoadConfig(".")
	}
	return Config
}

// ChunkSizeFor maps a transfer mode to its configured chunk size. Unknown
// modes use the relay size.
func ChunkSizeFor(mode string) int64 {
	cfg := Get()
	switch mode {
	case "lan":
		return cfg.ChunkSizeLAN
	case "p2p":
		return cfg.ChunkSizeP2P
	default:
		return cfg.ChunkSizeRelay
	}
}
