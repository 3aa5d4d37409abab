package intercom

import "time"

const (
	// DefaultDownloadParallel is how many peers are queried at once
	DefaultDownloadParallel = 4
	// DefaultDownloadAttempts is how many fast retries precede slow ones
	DefaultDownloadAttempts = 5
	// DefaultDownloadMinBackoff ...
	DefaultDownloadMinBackoff = 50 * time.Millisecond
	// DefaultDownloadMaxBackoff ...
	DefaultDownloadMaxBackoff = time.Second
	// DefaultDownloadSlowInterval is the retry interval once fast retries are
	// exhausted
	DefaultDownloadSlowInterval = 5 * time.Second
	// DefaultBroadcastInterval is how often unanswered peers are asked again
	DefaultBroadcastInterval = 200 * time.Millisecond
	// DefaultBroadcastPoolSize ...
	DefaultBroadcastPoolSize = 8
)

// Config tunes the network side of the DAG.
type Config struct {
	DownloadParallel     int           `mapstructure:"download-parallel"`
	DownloadAttempts     uint64        `mapstructure:"download-attempts"`
	DownloadMinBackoff   time.Duration `mapstructure:"download-min-backoff"`
	DownloadMaxBackoff   time.Duration `mapstructure:"download-max-backoff"`
	DownloadSlowInterval time.Duration `mapstructure:"download-slow-interval"`
	BroadcastInterval    time.Duration `mapstructure:"broadcast-interval"`
	BroadcastPoolSize    int           `mapstructure:"broadcast-pool-size"`
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		DownloadParallel:     DefaultDownloadParallel,
		DownloadAttempts:     DefaultDownloadAttempts,
		DownloadMinBackoff:   DefaultDownloadMinBackoff,
		DownloadMaxBackoff:   DefaultDownloadMaxBackoff,
		DownloadSlowInterval: DefaultDownloadSlowInterval,
		BroadcastInterval:    DefaultBroadcastInterval,
		BroadcastPoolSize:    DefaultBroadcastPoolSize,
	}
}
