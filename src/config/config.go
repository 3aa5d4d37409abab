package config

import (
	"errors"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mosaicnetworks/mempool/src/engine"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the validator's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"
)

// Default configuration values.
const (
	DefaultLogLevel    = "debug"
	DefaultBindAddr    = "127.0.0.1:1337"
	DefaultServiceAddr = "127.0.0.1:8000"
	DefaultTCPTimeout  = 1000 * time.Millisecond
	DefaultCacheSize   = 10000
	DefaultMaxPool     = 2
	DefaultStore       = false
)

// ErrNoGenesisKey is returned by Validate when the genesis key is missing.
var ErrNoGenesisKey = errors.New("genesis-key is required")

// Config contains all the configuration properties of a mempool node.
type Config struct {
	// DataDir is the top-level directory containing the configuration and
	// data of the node
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// BindAddr is the local address:port where this node exchanges points
	// with the other members of the committee.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the HTTP service exposing stats and
	// prometheus metrics.
	ServiceAddr string `mapstructure:"service-listen"`

	// MaxPool controls how many connections are pooled per target.
	MaxPool int `mapstructure:"max-pool"`

	// TCPTimeout is the timeout of RPC connections.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// Store activates persistant storage.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// CacheSize is the max number of points in in-memory caches.
	CacheSize int `mapstructure:"cache-size"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// GenesisKey is the hex encoded key that signs the genesis point. Every
	// member of the committee must use the same one.
	GenesisKey string `mapstructure:"genesis-key"`

	// Engine holds the options of the consensus engine.
	Engine engine.Config `mapstructure:",squash"`

	// Key is the private key of the validator.
	Key *btcec.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:     DefaultDataDir(),
		LogLevel:    DefaultLogLevel,
		BindAddr:    DefaultBindAddr,
		ServiceAddr: DefaultServiceAddr,
		TCPTimeout:  DefaultTCPTimeout,
		CacheSize:   DefaultCacheSize,
		MaxPool:     DefaultMaxPool,
		Store:       DefaultStore,
		DatabaseDir: DefaultDatabaseDir(),
		Engine:      *engine.DefaultConfig(),
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t *testing.T) *Config {
	config := NewDefaultConfig()
	config.Engine = *engine.TestConfig(t)
	config.logger = config.Engine.Logger
	return config
}

// SetDataDir sets the top-level directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// Validate checks the options that have no usable default.
func (c *Config) Validate() error {
	if c.GenesisKey == "" {
		return ErrNoGenesisKey
	}
	if c.Engine.BatchBytes > c.Engine.BufferBytes {
		return errors.New("batch-bytes must not exceed buffer-bytes")
	}
	return nil
}

// Logger returns a formatted logrus Entry, with prefix set to "mempool".
func (c *Config) Logger() *logrus.Entry {
	return c.BaseLogger().WithField("prefix", "mempool")
}

// BaseLogger returns the logger shared by every component of the node.
func (c *Config) BaseLogger() *logrus.Logger {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger
}

// EngineConfig returns the engine options with the node logger.
func (c *Config) EngineConfig() *engine.Config {
	conf := c.Engine
	conf.Logger = c.BaseLogger()
	return &conf
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level mempool
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Mempool")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Mempool")
		} else {
			return filepath.Join(home, ".mempool")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}

