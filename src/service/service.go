package service

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/mosaicnetworks/mempool/src/models"
	"github.com/mosaicnetworks/mempool/src/peers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Source is what the service reports on. The engine implements it.
type Source interface {
	GetStats() map[string]string
	GetPeers() []*peers.Peer
	GetRound(round models.Round) (map[string]string, error)
}

// Service ...
type Service struct {
	bindAddress string
	source      Source
	mux         *http.ServeMux
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, source Source, gatherer prometheus.Gatherer, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		source:      source,
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers(gatherer)

	return &service
}

func (s *Service) registerHandlers(gatherer prometheus.Gatherer) {
	s.logger.Debug("Registering mempool API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/peers", s.makeHandler(s.GetPeers))
	s.mux.HandleFunc("/round/", s.makeHandler(s.GetRound))
	if gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler exposes the routes of the service.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving mempool API")

	err := http.ListenAndServe(s.bindAddress, s.mux)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.source.GetStats()

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// GetPeers ...
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(s.source.GetPeers())
}

// GetRound ...
func (s *Service) GetRound(w http.ResponseWriter, r *http.Request) {
	param := r.URL.Path[len("/round/"):]

	round, err := strconv.ParseUint(param, 10, 32)
	if err != nil {
		s.logger.WithError(err).Errorf("Parsing round parameter %s", param)

		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	res, err := s.source.GetRound(models.Round(round))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(res)
}
