package engine

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/mempool/src/common"
	"github.com/mosaicnetworks/mempool/src/intercom"
	"github.com/sirupsen/logrus"
)

// Config ...
type Config struct {
	// Depth is the number of rounds kept below the top of the DAG
	Depth int `mapstructure:"dag-depth"`
	// PollInterval is how often the engine checks whether it may advance
	PollInterval time.Duration `mapstructure:"poll-interval"`
	// BufferBytes is the budget of the input buffer
	BufferBytes int `mapstructure:"buffer-bytes"`
	// BatchBytes bounds the payload of a single point
	BatchBytes int `mapstructure:"batch-bytes"`

	Intercom intercom.Config `mapstructure:",squash"`

	Logger *logrus.Logger
}

// DefaultConfig ...
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		Depth:        8,
		PollInterval: 20 * time.Millisecond,
		BufferBytes:  16 * 1024 * 1024,
		BatchBytes:   256 * 1024,
		Intercom:     intercom.DefaultConfig(),
		Logger:       logger,
	}
}

// TestConfig ...
func TestConfig(t *testing.T) *Config {
	config := DefaultConfig()
	config.PollInterval = 5 * time.Millisecond
	config.Intercom.DownloadMinBackoff = time.Millisecond
	config.Intercom.DownloadMaxBackoff = 10 * time.Millisecond
	config.Intercom.DownloadSlowInterval = 50 * time.Millisecond
	config.Intercom.BroadcastInterval = 10 * time.Millisecond
	config.Logger = common.NewTestLogger(t)
	return config
}
