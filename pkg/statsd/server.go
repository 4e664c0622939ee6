package statsd

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/ash2k/stager/wait"
	"github.com/libp2p/go-reuseport"
	"github.com/sirupsen/logrus"

	"github.com/jc2k/cwstatsd"
	"github.com/jc2k/cwstatsd/pkg/healthcheck"
	"github.com/jc2k/cwstatsd/pkg/stats"
	"github.com/jc2k/cwstatsd/pkg/web"
)

// Server encapsulates all of the parameters necessary for starting up
// the statsd server. These can either be set via command line or directly.
type Server struct {
	Logger              logrus.FieldLogger
	Publishers          []cwstatsd.Publisher
	Runnables           []cwstatsd.Runnable
	MetricsAddr         string
	Namespace           string
	InternalNamespace   string
	StatserType         string
	FlushInterval       time.Duration
	FlushOffset         time.Duration
	FlushAligned        bool
	PublishTimeout      time.Duration
	ShutdownTimeout     time.Duration
	PercentThreshold    []float64
	ExpiryIntervalGauge time.Duration
	Filter              Filter
	MaxReaders          int
	ConnPerReader       bool
	ReceiveBufferSize   int
	BadLinesPerMinute   float64
	HTTPAddr            string
}

// SocketFactory is an indirection layer over net.ListenPacket() to allow for different implementations.
type SocketFactory func() (net.PacketConn, error)

// Run runs the server until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithCustomSocket(ctx, s.socketFactory())
}

func (s *Server) socketFactory() SocketFactory {
	if s.ConnPerReader {
		return func() (net.PacketConn, error) {
			return reuseport.ListenPacket("udp", s.MetricsAddr)
		}
	}
	return func() (net.PacketConn, error) {
		return net.ListenPacket("udp", s.MetricsAddr)
	}
}

// RunWithCustomSocket runs the server until ctx is done, or a receiver fails.  Listening sockets are
// created using sf, one per reader if ConnPerReader is set.
//
// On shutdown the sockets are closed and the receivers drained, the flusher is stopped, and a final
// flush is published.  Waiting for an outstanding publish and the final flush together take at most
// ShutdownTimeout.  A nil error is returned for a graceful shutdown.
func (s *Server) RunWithCustomSocket(ctx context.Context, sf SocketFactory) error {
	logger := s.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	if s.FlushInterval <= 0 {
		return fmt.Errorf("flush-interval must be positive, got %s", s.FlushInterval)
	}
	if s.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown-timeout must be positive, got %s", s.ShutdownTimeout)
	}

	aggregator := NewMetricAggregator(s.PercentThreshold, s.ExpiryIntervalGauge)
	statser := s.createStatser(logger, aggregator)
	ctx = stats.NewContext(ctx, statser)

	// Sockets are opened first, so a bind failure is reported before anything starts.
	numReaders := s.numReaders(logger)
	numSockets := 1
	if s.ConnPerReader {
		numSockets = numReaders
	}
	conns := make([]net.PacketConn, 0, numSockets)
	closeConns := func() {
		for _, c := range conns {
			// This makes receivers error out and stop
			if err := c.Close(); err != nil {
				logger.WithError(err).Warn("Error closing socket")
			}
		}
		conns = nil
	}
	defer closeConns()
	for i := 0; i < numSockets; i++ {
		c, err := sf()
		if err != nil {
			return fmt.Errorf("failed to open socket on %s: %w", s.MetricsAddr, err)
		}
		s.setReceiveBuffer(logger, c)
		conns = append(conns, c)
	}

	receiver := NewMetricReceiver(logger.WithField("component", "receiver"), s.Namespace, s.Filter, aggregator, s.BadLinesPerMinute)
	flusher := NewMetricFlusher(
		logger.WithField("component", "flusher"),
		s.FlushInterval, s.FlushOffset, s.FlushAligned,
		s.PublishTimeout,
		aggregator,
		s.Publishers,
	)

	// Background tasks outlive the flusher, so internal metrics and health checks keep working until the end.
	var wgBackground wait.Group
	defer wgBackground.Wait()
	ctxBackground, cancelBackground := context.WithCancel(valueOnlyContext{ctx})
	defer cancelBackground()

	for _, runnable := range s.Runnables {
		wgBackground.StartWithContext(ctxBackground, runnable)
	}
	for _, p := range s.Publishers {
		if r, ok := p.(cwstatsd.Runner); ok {
			wgBackground.StartWithContext(ctxBackground, r.Run)
		}
	}
	wgBackground.StartWithContext(ctxBackground, func(ctx context.Context) { aggregator.RunMetrics(ctx, statser) })
	wgBackground.StartWithContext(ctxBackground, func(ctx context.Context) { receiver.RunMetrics(ctx, statser) })
	wgBackground.StartWithContext(ctxBackground, func(ctx context.Context) { flusher.RunMetrics(ctx, statser) })
	wgBackground.StartWithContext(ctxBackground, stats.NewHeartBeater("heartbeat").Run)

	var listening int32
	if s.HTTPAddr != "" {
		healthChecks := []healthcheck.HealthcheckFunc{func() (string, healthcheck.HealthyStatus) {
			if atomic.LoadInt32(&listening) == 0 {
				return "not listening", healthcheck.Unhealthy
			}
			return "listening on " + s.MetricsAddr, healthcheck.Healthy
		}}
		var deepChecks []healthcheck.HealthcheckFunc
		healthChecks, deepChecks = healthcheck.MaybeAppendHealthChecks(healthChecks, deepChecks, flusher)
		for _, p := range s.Publishers {
			healthChecks, deepChecks = healthcheck.MaybeAppendHealthChecks(healthChecks, deepChecks, p)
		}
		hs, err := web.NewHttpServer(logger.WithField("component", "web"), s.HTTPAddr, healthChecks, deepChecks, func() interface{} {
			return serverStats{
				Receiver:   receiver.GetStats(),
				Aggregator: aggregator.Stats(),
				Flusher:    flusher.GetStats(),
			}
		}, aggregator.DeleteGauge)
		if err != nil {
			return err
		}
		wgBackground.StartWithContext(ctxBackground, hs.Run)
	}

	// Flusher
	var wgFlusher wait.Group
	ctxFlusher, cancelFlusher := context.WithCancel(ctx)
	defer cancelFlusher()
	wgFlusher.StartWithContext(ctxFlusher, flusher.Run)

	// Receivers
	var wgReceivers wait.Group
	ctxReceivers, cancelReceivers := context.WithCancel(ctx)
	defer cancelReceivers()
	chErr := make(chan error, numReaders)
	for r := 0; r < numReaders; r++ {
		c := conns[r%len(conns)]
		wgReceivers.Start(func() {
			if err := receiver.Receive(ctxReceivers, c); err != nil {
				chErr <- err
			}
		})
	}

	atomic.StoreInt32(&listening, 1)
	logger.WithFields(logrus.Fields{
		"address": s.MetricsAddr,
		"readers": numReaders,
		"sockets": numSockets,
	}).Info("Listening for metrics")

	// Listen until done
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case runErr = <-chErr:
		logger.WithError(runErr).Error("Receiver failed, shutting down")
	}

	// 1. stop accepting new datagrams
	atomic.StoreInt32(&listening, 0)
	cancelReceivers()
	closeConns()
	wgReceivers.Wait()

	// 2. stop the flusher.  An outstanding publish and the final flush share ShutdownTimeout.
	ctxFinal, cancelFinal := context.WithTimeout(valueOnlyContext{ctx}, s.ShutdownTimeout)
	defer cancelFinal()
	cancelFlusher()
	flusherStopped := make(chan struct{})
	go func() {
		wgFlusher.Wait()
		close(flusherStopped)
	}()
	select {
	case <-flusherStopped:
	case <-ctxFinal.Done():
		logger.Warn("Outstanding publish exceeded the shutdown timeout, cancelling it")
		flusher.Abort()
		<-flusherStopped
	}

	// 3. publish whatever arrived since the last flush
	if err := flusher.Flush(ctxFinal); err != nil {
		logger.WithError(err).Warn("Final flush failed")
	}

	cancelBackground()
	return runErr
}

func (s *Server) createStatser(logger logrus.FieldLogger, recorder cwstatsd.Recorder) stats.Statser {
	switch s.StatserType {
	case cwstatsd.StatserNull:
		return stats.NewNullStatser()
	case cwstatsd.StatserLogging:
		return stats.NewLoggingStatser(logger.WithField("component", "statser"))
	default:
		namespace := s.Namespace
		if s.InternalNamespace != "" {
			if namespace != "" {
				namespace = namespace + "." + s.InternalNamespace
			} else {
				namespace = s.InternalNamespace
			}
		}
		return stats.NewInternalStatser(namespace, recorder)
	}
}

func (s *Server) numReaders(logger logrus.FieldLogger) int {
	n := s.MaxReaders
	if n < 1 {
		n = 1
	}
	if n > cwstatsd.MaxReadersLimit {
		logger.WithFields(logrus.Fields{
			"requested": n,
			"limit":     cwstatsd.MaxReadersLimit,
		}).Warn("Too many readers requested, limiting")
		n = cwstatsd.MaxReadersLimit
	}
	return n
}

func (s *Server) setReceiveBuffer(logger logrus.FieldLogger, c net.PacketConn) {
	if s.ReceiveBufferSize <= 0 {
		return
	}
	rb, ok := c.(interface{ SetReadBuffer(bytes int) error })
	if !ok {
		logger.Warnf("Socket of type %T does not support setting the receive buffer size", c)
		return
	}
	if err := rb.SetReadBuffer(s.ReceiveBufferSize); err != nil {
		logger.WithError(err).Warn("Failed to set receive buffer size")
	}
}

type serverStats struct {
	Receiver   ReceiverStats
	Aggregator AggregatorStats
	Flusher    FlusherStats
}
