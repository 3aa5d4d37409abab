package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaicnetworks/mempool/src/config"
	"github.com/mosaicnetworks/mempool/src/mempool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a mempool node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runMempool,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runMempool(cmd *cobra.Command, args []string) error {
	node := mempool.NewMempool(_config)

	if err := node.Init(); err != nil {
		_config.Logger().WithError(err).Error("Cannot initialize node")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := node.Run(ctx)

	if err := node.Shutdown(); err != nil {
		_config.Logger().WithError(err).Warn("Shutdown")
	}

	return runErr
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("moniker", _config.Moniker, "Optional name")
	cmd.Flags().String("genesis-key", _config.GenesisKey, "Hex encoded key of the genesis point, shared by the committee")

	// Network
	cmd.Flags().StringP("listen", "l", _config.BindAddr, "Listen IP:Port for mempool node")
	cmd.Flags().StringP("advertise", "a", _config.AdvertiseAddr, "Advertise IP:Port for mempool node")
	cmd.Flags().DurationP("timeout", "t", _config.TCPTimeout, "TCP Timeout")
	cmd.Flags().Int("max-pool", _config.MaxPool, "Connection pool size max")

	// Service
	cmd.Flags().Bool("no-service", _config.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.DatabaseDir, "Dabatabase directory")
	cmd.Flags().Int("cache-size", _config.CacheSize, "Number of points in LRU caches")

	// Engine
	cmd.Flags().Int("dag-depth", _config.Engine.Depth, "Number of rounds kept in the DAG")
	cmd.Flags().Duration("poll-interval", _config.Engine.PollInterval, "Time between checks for a complete round")
	cmd.Flags().Int("buffer-bytes", _config.Engine.BufferBytes, "Max payload bytes waiting for a point")
	cmd.Flags().Int("batch-bytes", _config.Engine.BatchBytes, "Max payload bytes in a point")

	// Intercom
	cmd.Flags().Int("download-parallel", _config.Engine.Intercom.DownloadParallel, "Peers queried at once for a missing point")
	cmd.Flags().Uint64("download-attempts", _config.Engine.Intercom.DownloadAttempts, "Fast download attempts before slowing down")
	cmd.Flags().Duration("download-min-backoff", _config.Engine.Intercom.DownloadMinBackoff, "First delay between download attempts")
	cmd.Flags().Duration("download-max-backoff", _config.Engine.Intercom.DownloadMaxBackoff, "Max delay between fast download attempts")
	cmd.Flags().Duration("download-slow-interval", _config.Engine.Intercom.DownloadSlowInterval, "Delay between slow download attempts")
	cmd.Flags().Duration("broadcast-interval", _config.Engine.Intercom.BroadcastInterval, "Time between broadcast retries")
	cmd.Flags().Int("broadcast-pool-size", _config.Engine.Intercom.BroadcastPoolSize, "Workers sending broadcasts and signature requests")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	logFields := logrus.Fields{
		"mempool.DataDir":       _config.DataDir,
		"mempool.BindAddr":      _config.BindAddr,
		"mempool.AdvertiseAddr": _config.AdvertiseAddr,
		"mempool.ServiceAddr":   _config.ServiceAddr,
		"mempool.NoService":     _config.NoService,
		"mempool.MaxPool":       _config.MaxPool,
		"mempool.Store":         _config.Store,
		"mempool.LogLevel":      _config.LogLevel,
		"mempool.Moniker":       _config.Moniker,
		"mempool.TCPTimeout":    _config.TCPTimeout,
		"mempool.CacheSize":     _config.CacheSize,
		"engine.Depth":          _config.Engine.Depth,
		"engine.PollInterval":   _config.Engine.PollInterval,
		"engine.BufferBytes":    _config.Engine.BufferBytes,
		"engine.BatchBytes":     _config.Engine.BatchBytes,
		"intercom":              _config.Engine.Intercom,
	}

	if _config.Store {
		logFields["mempool.DatabaseDir"] = _config.DatabaseDir
	}

	_config.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/mempool.toml (.json, .yaml also work)
	viper.SetConfigName("mempool")       // name of config file (without extension)
	viper.AddConfigPath(_config.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// the log level is only known now
	_config.BaseLogger().SetLevel(config.LogLevel(_config.LogLevel))
	return nil
}
