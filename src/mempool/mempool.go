// Package mempool assembles a committee member from its configuration: keys,
// committee, store, transport, engine and HTTP service.
package mempool

import (
	"context"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/mosaicnetworks/mempool/src/config"
	"github.com/mosaicnetworks/mempool/src/crypto/keys"
	"github.com/mosaicnetworks/mempool/src/dag"
	"github.com/mosaicnetworks/mempool/src/engine"
	"github.com/mosaicnetworks/mempool/src/models"
	"github.com/mosaicnetworks/mempool/src/net"
	"github.com/mosaicnetworks/mempool/src/peers"
	"github.com/mosaicnetworks/mempool/src/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Mempool is a committee member and the resources it owns.
type Mempool struct {
	Config    *config.Config
	Engine    *engine.Engine
	Transport net.Transport
	Store     dag.Store
	Peers     *peers.PeerSet
	Schedule  *peers.Schedule
	Service   *service.Service
	Registry  *prometheus.Registry

	genesis       *models.Point
	genesisAuthor *peers.Peer
	logger        *logrus.Entry
}

// NewMempool ...
func NewMempool(conf *config.Config) *Mempool {
	return &Mempool{
		Config:   conf,
		Registry: prometheus.NewRegistry(),
		logger:   conf.Logger(),
	}
}

// Init loads or creates every resource of the node and initialises the engine.
func (m *Mempool) Init() error {
	if err := m.Config.Validate(); err != nil {
		return err
	}
	if err := m.initKey(); err != nil {
		return err
	}
	if err := m.initPeers(); err != nil {
		return err
	}
	if err := m.initGenesis(); err != nil {
		return err
	}
	if err := m.initStore(); err != nil {
		return err
	}
	if err := m.initTransport(); err != nil {
		return err
	}
	if err := m.initEngine(); err != nil {
		return err
	}
	m.initService()
	return nil
}

func (m *Mempool) initKey() error {
	if m.Config.Key != nil {
		return nil
	}

	privKey, err := keys.NewSimpleKeyfile(m.Config.Keyfile()).ReadKey()
	if err != nil {
		m.logger.WithError(err).Warn("Cannot read private key from file")

		privKey, err = Keygen(m.Config.Keyfile())
		if err != nil {
			m.logger.WithError(err).Error("Cannot generate a new private key")
			return err
		}

		m.logger.WithField("pub", keys.PublicKeyHex(privKey)).Info("Created a new key")
	}

	m.Config.Key = privKey
	return nil
}

func (m *Mempool) initPeers() error {
	if m.Peers != nil {
		return nil
	}

	peerSet, err := peers.NewJSONPeerSet(m.Config.DataDir).PeerSet()
	if err != nil {
		return err
	}
	if _, err := peerSet.NodeCount(); err != nil {
		return err
	}

	m.Peers = peerSet
	return nil
}

func (m *Mempool) initGenesis() error {
	genesis, author, err := engine.Genesis(m.Config.GenesisKey)
	if err != nil {
		return fmt.Errorf("genesis key: %w", err)
	}
	m.genesis, m.genesisAuthor = genesis, author
	return nil
}

func (m *Mempool) initStore() error {
	if !m.Config.Store {
		m.Store = dag.NewInmemStore(m.Config.CacheSize)

		m.logger.Debug("created new in-mem store")
		return nil
	}

	m.logger.WithField("path", m.Config.DatabaseDir).Debug("Attempting to load or create database")

	store, err := dag.NewBadgerStore(m.Config.CacheSize, m.Config.DatabaseDir, m.logger)
	if err != nil {
		return err
	}
	if last, ok := store.LastRound(); ok {
		m.logger.WithField("last_round", last).Debug("loaded badger store from existing database")
	} else {
		m.logger.Debug("created new badger store from fresh database")
	}

	m.Store = store
	return nil
}

func (m *Mempool) initTransport() error {
	if m.Transport != nil {
		return nil
	}

	trans, err := net.NewTCPTransport(
		m.Config.BindAddr,
		m.Config.AdvertiseAddr,
		m.Config.MaxPool,
		m.Config.TCPTimeout,
		m.Config.BaseLogger().WithField("prefix", "net"),
	)
	if err != nil {
		return err
	}

	m.Transport = trans
	return nil
}

func (m *Mempool) initEngine() error {
	validator := engine.NewValidator(m.Config.Key, m.Config.Moniker)

	if !m.Peers.Contains(validator.ID()) {
		return fmt.Errorf("cannot find self pubkey %s in peers.json", validator.PublicKeyHex())
	}

	m.Schedule = peers.NewSchedule(validator.ID(), m.genesisAuthor, m.Peers)

	m.logger.WithFields(logrus.Fields{
		"committee": m.Peers.Len(),
		"id":        validator.ID(),
		"genesis":   m.genesis.ID(),
	}).Debug("PARTICIPANTS")

	m.Engine = engine.NewEngine(
		m.Config.EngineConfig(),
		validator,
		m.Schedule,
		m.genesis,
		m.Store,
		m.Transport,
		m.Registry,
	)

	if err := m.Engine.Init(); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	return nil
}

func (m *Mempool) initService() {
	if !m.Config.NoService {
		m.Service = service.NewService(m.Config.ServiceAddr, m.Engine, m.Registry, m.logger.WithField("prefix", "service"))
	}
}

// Run starts the transport, the service and the engine. It blocks until ctx
// is done.
func (m *Mempool) Run(ctx context.Context) error {
	go m.Transport.Listen()

	if m.Service != nil {
		go m.Service.Serve()
	}

	return m.Engine.Run(ctx)
}

// Shutdown stops the engine and releases the transport and the store.
func (m *Mempool) Shutdown() error {
	if m.Engine != nil {
		return m.Engine.Shutdown()
	}

	var result error
	if m.Transport != nil {
		if err := m.Transport.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if m.Store != nil {
		if err := m.Store.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// Keygen creates a new key and writes it to keyfile, unless a key already
// lives there.
func Keygen(keyfile string) (*btcec.PrivateKey, error) {
	if _, err := os.Stat(keyfile); err == nil {
		return nil, fmt.Errorf("another key already lives in %s", keyfile)
	}

	privKey, err := keys.GenerateKey()
	if err != nil {
		return nil, err
	}

	if err := keys.NewSimpleKeyfile(keyfile).WriteKey(privKey); err != nil {
		return nil, err
	}

	return privKey, nil
}
