package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"refkit/api/grpcserver"
	"refkit/config"
	"refkit/infra/journal"
	"refkit/infra/kafka"
	"refkit/infra/ledger"
	"refkit/infra/logutil"
	"refkit/jobs/broadcaster"
	"refkit/service"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}
	log, err := logutil.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("refkit exited", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	// ---------------- Journal ----------------

	j, err := journal.Open(journal.Config{
		Dir:          cfg.Journal.Dir,
		SegmentSize:  cfg.Journal.SegmentSize,
		SyncInterval: cfg.Journal.SyncInterval.Duration,
	})
	if err != nil {
		return errors.Wrap(err, "journal init")
	}
	defer j.Close()

	// ---------------- Ledger / outbox ----------------

	// the ledger only exists to feed the broadcaster, which also prunes it
	pub, err := newPublisher(cfg.Broadcast)
	if err != nil {
		return err
	}
	var l *ledger.Ledger
	if pub != nil {
		defer pub.Close()
		if l, err = ledger.Open(cfg.Ledger.Dir); err != nil {
			return errors.Wrap(err, "ledger init")
		}
		defer func() {
			if err := l.Flush(); err != nil {
				log.Warn("ledger flush failed", zap.Error(err))
			}
			_ = l.Close()
		}()
	}

	// ---------------- Service ----------------

	svc, err := service.New(service.Options{
		Journal:        j,
		Ledger:         l,
		SnapshotDir:    cfg.Snapshot.Dir,
		BlockLimit:     cfg.Memory.BlockLimit,
		RetireRingSize: cfg.Memory.RetireRingSize,
		Workload:       workloadConfig(cfg.Workload),
		Log:            log,
	})
	if err != nil {
		return err
	}
	defer svc.Close()

	// ---------------- Background Jobs ----------------

	var wg sync.WaitGroup
	defer wg.Wait()

	jobsCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()

	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.Run(jobsCtx, service.Intervals{
			Epoch:    cfg.Memory.EpochInterval.Duration,
			Snapshot: cfg.Snapshot.Interval.Duration,
			Workload: workloadInterval(cfg.Workload),
		})
	}()

	if pub != nil {
		codec, err := broadcaster.CodecFor(cfg.Broadcast.Format)
		if err != nil {
			return err
		}
		bc := broadcaster.New(l, pub, codec, broadcaster.Options{
			Interval: cfg.Broadcast.Interval.Duration,
		}, log)

		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = bc.Run(jobsCtx)
		}()
	}

	// ---------------- gRPC ----------------

	lis, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", cfg.Server.Listen)
	}
	gs, hs := grpcserver.NewGRPCServer(svc, log)

	serveErr := make(chan error, 1)
	go func() { serveErr <- gs.Serve(lis) }()
	log.Info("refkit running", zap.String("listen", lis.Addr().String()))

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-serveErr:
		err = errors.Wrap(err, "grpc server exited")
	}

	hs.Shutdown()
	stopGRPC(gs, 5*time.Second)
	cancelJobs()
	wg.Wait()

	if seq, _, serr := svc.TakeSnapshot(); serr != nil {
		log.Warn("final snapshot failed", zap.Error(serr))
	} else {
		log.Info("final snapshot written", zap.Uint64("seq", seq))
	}
	return err
}

type gracefulStopper interface {
	GracefulStop()
	Stop()
}

func stopGRPC(gs gracefulStopper, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		gs.Stop()
	}
}

func workloadConfig(c config.WorkloadConfig) service.WorkloadConfig {
	if !c.Enabled {
		return service.WorkloadConfig{}
	}
	return service.WorkloadConfig{
		Workers:    c.Workers,
		Objects:    c.Objects,
		Iterations: c.Iterations,
	}
}

func workloadInterval(c config.WorkloadConfig) time.Duration {
	if !c.Enabled {
		return 0
	}
	return c.Interval.Duration
}

func newPublisher(c config.BroadcastConfig) (broadcaster.Publisher, error) {
	switch c.Driver {
	case "":
		return nil, nil
	case "sarama":
		return broadcaster.NewSaramaPublisher(c.Brokers, c.Topic)
	case "kafka-go":
		return kafka.NewProducer(kafka.Config{Brokers: c.Brokers, Topic: c.Topic})
	default:
		return nil, errors.Newf("unknown broadcast driver %q", c.Driver)
	}
}
