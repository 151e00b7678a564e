package cmd

import (
	"time"

	"github.com/Layr-Labs/feeledger/internal/config"
	"github.com/Layr-Labs/feeledger/internal/logger"
	"github.com/Layr-Labs/feeledger/internal/metrics/prometheus"
	"github.com/Layr-Labs/feeledger/internal/shutdown"
	"github.com/Layr-Labs/feeledger/pkg/rpcServer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ledger and its http rpc server",
	Run: func(cmd *cobra.Command, args []string) {
		bindCommandFlags(cmd)
		cfg := config.NewConfig()

		l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})

		sink, pm, err := newMetricsSink(cfg, l)
		if err != nil {
			l.Sugar().Fatalw("Failed to setup metrics sink", zap.Error(err))
		}

		grm, err := openDatabase(cfg, cfg.DatabaseConfig.DbName, l)
		if err != nil {
			l.Sugar().Fatalw("Failed to open database", zap.Error(err))
		}

		svc, err := openLedgerService(cfg, grm, newBlockSource(cfg, l), sink, l)
		if err != nil {
			l.Sugar().Fatalw("Failed to open ledger", zap.Error(err))
		}

		// channels to notify the servers to shutdown gracefully
		rpcChannel := make(chan bool)
		server := rpcServer.NewRpcServer(&rpcServer.RpcServerConfig{
			HttpPort:       cfg.RpcConfig.HttpPort,
			AllowedOrigins: cfg.RpcConfig.AllowedOrigins,
		}, svc, sink, l)
		if err := server.Start(rpcChannel); err != nil {
			l.Sugar().Fatalw("Failed to start rpc server", zap.Error(err))
		}

		var promChannel chan bool
		if cfg.PrometheusConfig.Enabled {
			promChannel = make(chan bool)
			promServer := prometheus.NewPrometheusServer(&prometheus.PrometheusServerConfig{
				Port: cfg.PrometheusConfig.Port,
			}, pm, l)
			if err := promServer.Start(promChannel); err != nil {
				l.Sugar().Fatalw("Failed to start prometheus server", zap.Error(err))
			}
		}

		l.Sugar().Info("Started fee ledger")

		gracefulShutdown := shutdown.CreateGracefulShutdownChannel()

		done := make(chan bool)
		shutdown.ListenForShutdown(gracefulShutdown, done, func() {
			l.Sugar().Info("Shutting down...")
			rpcChannel <- true
			if promChannel != nil {
				promChannel <- true
			}
			svc.Close()
		}, time.Second*5, l)
	},
}
