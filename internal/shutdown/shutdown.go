package shutdown

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

func CreateGracefulShutdownChannel() chan os.Signal {
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGTERM, syscall.SIGINT)
	return gracefulShutdown
}

// ListenForShutdown blocks until SIGTERM or SIGINT arrives, runs the handler,
// then waits up to timeToWait for in-flight work before closing done.
func ListenForShutdown(
	signalChan chan os.Signal,
	done chan bool,
	signalHandler func(),
	timeToWait time.Duration,
	l *zap.Logger,
) {
	for sig := range signalChan {
		if sig != syscall.SIGTERM && sig != syscall.SIGINT {
			continue
		}
		l.Sugar().Infow("Caught signal", zap.String("signal", sig.String()))

		signalHandler()

		l.Sugar().Infow("Waiting before exit", zap.Duration("timeToWait", timeToWait))
		time.Sleep(timeToWait)

		l.Sugar().Info("Exiting")
		close(done)
		return
	}
}
