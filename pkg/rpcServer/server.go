package rpcServer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Layr-Labs/feeledger/internal/metrics"
	"github.com/Layr-Labs/feeledger/internal/metrics/metricsTypes"
	"github.com/Layr-Labs/feeledger/pkg/ledgerService"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type RpcServerConfig struct {
	HttpPort int
	// AllowedOrigins defaults to every origin.
	AllowedOrigins []string
}

type RpcServer struct {
	Logger      *zap.Logger
	config      *RpcServerConfig
	service     *ledgerService.Service
	metricsSink *metrics.MetricsSink
}

func NewRpcServer(
	cfg *RpcServerConfig,
	svc *ledgerService.Service,
	ms *metrics.MetricsSink,
	l *zap.Logger,
) *RpcServer {
	return &RpcServer{
		Logger:      l,
		config:      cfg,
		service:     svc,
		metricsSink: ms,
	}
}

type routeLabelKey struct{}

// routeLabel carries the matched path template back out of the router.
type routeLabel struct {
	path string
}

func (s *RpcServer) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.labelRoute)

	sub := router.PathPrefix("/v1").Subrouter()

	sub.Path("/stake").Methods(http.MethodPost).Name("stake").HandlerFunc(s.Stake)
	sub.Path("/unstake").Methods(http.MethodPost).Name("unstake").HandlerFunc(s.Unstake)
	sub.Path("/harvest").Methods(http.MethodPost).Name("harvest").HandlerFunc(s.HarvestAll)
	sub.Path("/harvest/paginated").Methods(http.MethodPost).Name("harvest_paginated").HandlerFunc(s.HarvestPaginated)
	sub.Path("/dao/harvest/paginated").Methods(http.MethodPost).Name("dao_harvest_paginated").HandlerFunc(s.DaoHarvestPaginated)
	sub.Path("/fees").Methods(http.MethodPost).Name("deposit_fees").HandlerFunc(s.DepositFees)
	sub.Path("/epochs/configure").Methods(http.MethodPost).Name("configure_epochs").HandlerFunc(s.ConfigureEpochs)

	sub.Path("/migrate/epochs").Methods(http.MethodPost).Name("migrate_epochs").HandlerFunc(s.MigrateEpochs)
	sub.Path("/migrate/participants").Methods(http.MethodPost).Name("migrate_participants").HandlerFunc(s.MigrateParticipants)
	sub.Path("/migrate/snapshots").Methods(http.MethodPost).Name("migrate_snapshots").HandlerFunc(s.MigrateSnapshots)
	sub.Path("/migrate/treasury").Methods(http.MethodPost).Name("migrate_treasury").HandlerFunc(s.MigrateTreasury)

	sub.Path("/epoch").Methods(http.MethodGet).Name("get_epoch").HandlerFunc(s.GetEpoch)
	sub.Path("/epochs/{epoch}").Methods(http.MethodGet).Name("get_epoch_detail").HandlerFunc(s.GetEpochDetail)
	sub.Path("/participants/{address}").Methods(http.MethodGet).Name("get_participant").HandlerFunc(s.GetParticipant)
	sub.Path("/participants/{address}/events").Methods(http.MethodGet).Name("list_participant_events").HandlerFunc(s.ListParticipantEvents)
	sub.Path("/treasury").Methods(http.MethodGet).Name("get_treasury").HandlerFunc(s.GetTreasury)
	sub.Path("/health").Methods(http.MethodGet).Name("health").HandlerFunc(s.Health)
	return router
}

// labelRoute only runs for matched routes; anything else keeps "unmatched".
func (s *RpcServer) labelRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if label, ok := r.Context().Value(routeLabelKey{}).(*routeLabel); ok {
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					label.path = tpl
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Handler is the full HTTP surface: routes, request ids, metrics and CORS.
func (s *RpcServer) Handler() http.Handler {
	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", CallerHeader},
		ExposedHeaders: []string{RequestIdHeader},
	})
	return c.Handler(s.instrument(s.routes()))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *RpcServer) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestId, err := uuid.NewRandom()
		if err != nil {
			s.Logger.Sugar().Errorw("Failed to generate request ID", zap.Error(err))
			http.Error(w, "failed to generate request id", http.StatusInternalServerError)
			return
		}
		w.Header().Set(RequestIdHeader, requestId.String())
		label := &routeLabel{path: "unmatched"}
		ctx := context.WithValue(r.Context(), requestIdKey{}, requestId.String())
		r = r.WithContext(context.WithValue(ctx, routeLabelKey{}, label))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := label.path
		s.Logger.Sugar().Debugw("Handled request",
			zap.String("requestId", requestId.String()),
			zap.String("path", path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
		if s.metricsSink == nil {
			return
		}
		_ = s.metricsSink.Incr(metricsTypes.Metric_Incr_HttpRequest, []metricsTypes.MetricsLabel{
			{Name: "path", Value: path},
			{Name: "status", Value: strconv.Itoa(rec.status)},
		}, 1)
		_ = s.metricsSink.Timing(metricsTypes.Metric_Timing_HttpDuration, time.Since(start), []metricsTypes.MetricsLabel{
			{Name: "path", Value: path},
		})
	})
}

func (s *RpcServer) Start(gracefulShutdown chan bool) error {
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HttpPort),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		for range gracefulShutdown {
			s.Logger.Sugar().Info("Shutting down rpc server")
			if err := httpServer.Shutdown(context.Background()); err != nil {
				s.Logger.Sugar().Errorw("Failed to shutdown rpc server", zap.Error(err))
			}
		}
	}()
	go func() {
		s.Logger.Sugar().Infow("Starting rpc server", zap.Int("port", s.config.HttpPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Sugar().Fatalw("Failed to start rpc server", zap.Error(err))
		}
	}()
	return nil
}
