package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/alfredjeanlab/baywatch/internal/config"
	"github.com/alfredjeanlab/baywatch/internal/correlator"
	"github.com/alfredjeanlab/baywatch/internal/dedup"
	"github.com/alfredjeanlab/baywatch/internal/detect"
	"github.com/alfredjeanlab/baywatch/internal/events"
	"github.com/alfredjeanlab/baywatch/internal/idgen"
	"github.com/alfredjeanlab/baywatch/internal/reader"
	"github.com/alfredjeanlab/baywatch/internal/recorder"
	"github.com/alfredjeanlab/baywatch/internal/server"
	"github.com/alfredjeanlab/baywatch/internal/store"
	"github.com/alfredjeanlab/baywatch/internal/store/memory"
	"github.com/alfredjeanlab/baywatch/internal/store/postgres"
	bwsync "github.com/alfredjeanlab/baywatch/internal/sync"
	"google.golang.org/grpc"
)

const shutdownTimeout = 10 * time.Second

// daemon owns every long-lived component of `bw serve`.
type daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store    store.Store
	pub      *events.MultiPublisher
	recorder *recorder.Recorder
	dedup    *dedup.Cache
	ctrl     *correlator.Controller
	frames   detect.Source
	loop     *correlator.FrameLoop
	reader   *reader.Listener
	srv      *server.Server

	grpcServer *grpc.Server
	grpcLis    net.Listener
	httpServer *http.Server
	httpLis    net.Listener
	scheduler  *bwsync.Scheduler

	closers []func() // run in reverse on shutdown
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// startDaemon opens every resource and starts the flows. Any failure here is
// a startup failure: what was already opened is closed and the error is
// returned.
func startDaemon(parent context.Context, cfg *config.Config, logger *slog.Logger) (_ *daemon, err error) {
	ctx, cancel := context.WithCancel(parent)
	d := &daemon{cfg: cfg, logger: logger, cancel: cancel}
	defer func() {
		if err != nil {
			cancel()
			d.closeAll()
		}
	}()

	if err := d.openStore(); err != nil {
		return nil, err
	}
	if err := d.openPublishers(); err != nil {
		return nil, err
	}

	d.recorder = recorder.New(d.store, d.pub, logger)
	d.closers = append(d.closers, func() {
		if err := d.recorder.Close(); err != nil {
			logger.Error("error closing recorder", "err", err)
		}
		if n := d.recorder.Dropped(); n > 0 {
			logger.Warn("recorder dropped events", "count", n)
		}
	})

	d.dedup = dedup.New(cfg.BufferWindow.Duration)
	if cfg.DedupSweepInterval.Duration > 0 {
		d.dedup.StartSweeper(cfg.DedupSweepInterval.Duration)
		d.closers = append(d.closers, d.dedup.Stop)
	}

	d.ctrl = correlator.New(correlator.Options{
		TargetLabel: cfg.TargetLabel,
		Dedup:       d.dedup,
		NewID:       idgen.SessionID,
		Sink:        d.recorder,
		Logger:      logger,
	})

	classifier, err := detect.NewClassifier(cfg.TargetLabel, cfg.ConfidenceThreshold)
	if err != nil {
		return nil, err
	}

	dec, err := reader.NewDecoder(cfg.ReaderMarker, cfg.TagHexLength)
	if err != nil {
		return nil, err
	}
	d.reader, err = reader.Listen(cfg.ReaderAddr, dec, logger)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, func() { d.reader.Close() })

	if err := d.openFrames(ctx); err != nil {
		return nil, err
	}
	d.loop = correlator.NewFrameLoop(d.frames, classifier, d.ctrl, logger)

	d.srv = server.New(server.Options{
		Store:    d.store,
		Status:   d.ctrl,
		Reader:   d.reader,
		Detector: d.loop,
		Logger:   logger,
	})
	d.pub.Add(d.srv.Hub())

	if err := d.listen(); err != nil {
		return nil, err
	}

	d.startSync()
	d.run(ctx)

	logger.Info("baywatch started",
		"target_label", cfg.TargetLabel,
		"confidence_threshold", cfg.ConfidenceThreshold,
		"buffer_window", cfg.BufferWindow.String(),
		"frame_source", d.frames.Name(),
		"reader_addr", d.reader.Addr().String(),
		"http_addr", d.httpLis.Addr().String(),
		"grpc_addr", d.grpcLis.Addr().String(),
	)
	return d, nil
}

func (d *daemon) openStore() error {
	if d.cfg.DatabaseURL == "" {
		d.store = memory.New()
		d.logger.Info("using in-memory session store (database_url not set)")
	} else {
		pg, err := postgres.New(d.cfg.DatabaseURL)
		if err != nil {
			return err
		}
		d.store = pg
		d.logger.Info("connected to postgres")
	}
	d.closers = append(d.closers, func() {
		if err := d.store.Close(); err != nil {
			d.logger.Error("error closing store", "err", err)
		}
	})
	return nil
}

func (d *daemon) openPublishers() error {
	d.pub = events.NewMultiPublisher()
	d.closers = append(d.closers, func() {
		if err := d.pub.Close(); err != nil {
			d.logger.Error("error closing publishers", "err", err)
		}
	})

	if d.cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(d.cfg.NATSURL)
		if err != nil {
			return err
		}
		d.pub.Add(pub)
		d.logger.Info("nats events enabled", "nats_url", d.cfg.NATSURL)
	}
	if d.cfg.MQTTBroker != "" {
		pub, err := events.NewMQTTPublisher(d.cfg.MQTTBroker, d.cfg.MQTTClientID, d.cfg.MQTTTopicPrefix)
		if err != nil {
			return err
		}
		d.pub.Add(pub)
		d.logger.Info("mqtt events enabled", "broker", d.cfg.MQTTBroker, "prefix", d.cfg.MQTTTopicPrefix)
	}
	return nil
}

// openFrames starts the configured frame source. A detector that cannot
// start, or a model that cannot load, is fatal.
func (d *daemon) openFrames(ctx context.Context) error {
	dc := d.cfg.Detector
	switch dc.Source {
	case "exec":
		src, err := detect.StartExec(ctx, dc.Command, dc.Args, d.logger)
		if err != nil {
			return err
		}
		d.frames = src
	case "nats":
		sub, err := events.NewNATSSubscriber(d.cfg.NATSURL)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, func() { sub.Close() })
		src, err := detect.NewNATSSource(sub, dc.Subject)
		if err != nil {
			return err
		}
		d.frames = src
	case "replay":
		src, err := detect.OpenReplay(dc.ReplayFile, dc.ReplaySpeed)
		if err != nil {
			return err
		}
		d.frames = src
	case "gocv":
		src, err := detect.OpenCapture(detect.CaptureConfig{
			Camera:      dc.Camera,
			Weights:     dc.Weights,
			ModelConfig: dc.ModelConfig,
			Names:       dc.Names,
			InputSize:   dc.InputSize,
			MinScore:    d.cfg.ConfidenceThreshold,
		})
		if err != nil {
			return err
		}
		d.frames = src
	default:
		return fmt.Errorf("unknown detector source %q", dc.Source)
	}
	d.closers = append(d.closers, func() {
		if err := d.frames.Close(); err != nil {
			d.logger.Warn("error closing frame source", "err", err)
		}
	})
	return nil
}

// listen binds the API ports so bind failures surface at startup.
func (d *daemon) listen() error {
	var err error
	d.grpcLis, err = net.Listen("tcp", d.cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen for gRPC on %s: %w", d.cfg.GRPCAddr, err)
	}
	d.grpcServer = server.NewGRPCServer(d.srv, d.cfg.AuthToken)

	d.httpLis, err = net.Listen("tcp", d.cfg.HTTPAddr)
	if err != nil {
		d.grpcLis.Close()
		return fmt.Errorf("listen for HTTP on %s: %w", d.cfg.HTTPAddr, err)
	}
	d.httpServer = &http.Server{
		Handler:           d.srv.NewHTTPHandler(d.cfg.AuthToken),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

func (d *daemon) startSync() {
	sc := d.cfg.Sync
	if sc.Interval.Duration <= 0 {
		return
	}

	var dests []bwsync.Destination
	if sc.S3Bucket != "" {
		s3Dest, err := bwsync.NewS3Destination(context.Background(), bwsync.S3Config{
			Bucket:   sc.S3Bucket,
			Key:      sc.S3Key,
			Region:   sc.S3Region,
			Endpoint: sc.S3Endpoint,
		})
		if err != nil {
			d.logger.Error("failed to create S3 sync destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			d.logger.Info("sync S3 destination enabled", "bucket", sc.S3Bucket, "key", sc.S3Key)
		}
	}
	if sc.GitRepo != "" {
		dests = append(dests, bwsync.NewGitDestination(sc.GitRepo, sc.GitFile, sc.GitBranch))
		d.logger.Info("sync git destination enabled", "repo", sc.GitRepo, "file", sc.GitFile)
	}
	if len(dests) == 0 {
		d.logger.Warn("sync interval set but no destinations configured")
		return
	}

	d.scheduler = bwsync.NewScheduler(d.store, dests, sc.Interval.Duration, d.logger)
	d.scheduler.Start()
	d.logger.Info("sync scheduler started", "interval", sc.Interval.String())
}

// run starts the presence flow, the tag flow and the API servers.
func (d *daemon) run(ctx context.Context) {
	d.wg.Add(4)

	go func() {
		defer d.wg.Done()
		if err := d.loop.Run(ctx); err != nil {
			d.logger.Error("presence flow stopped", "err", err)
			return
		}
		if ctx.Err() == nil {
			d.logger.Warn("frame source ended; presence state is frozen", "source", d.frames.Name())
		}
	}()

	go func() {
		defer d.wg.Done()
		d.runTags(ctx)
	}()

	go func() {
		defer d.wg.Done()
		if err := d.grpcServer.Serve(d.grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			d.logger.Error("gRPC server error", "err", err)
		}
	}()

	go func() {
		defer d.wg.Done()
		if err := d.httpServer.Serve(d.httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("HTTP server error", "err", err)
		}
	}()
}

// runTags waits for the reader and feeds its reads to the controller. When
// the reader goes away the tag flow ends; presence keeps running.
func (d *daemon) runTags(ctx context.Context) {
	conn, err := d.reader.Accept(ctx)
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Error("tag reader accept failed", "err", err)
		}
		return
	}
	defer conn.Close()

	d.srv.SetReaderServing(true)
	defer d.srv.SetReaderServing(false)

	if err := correlator.RunTags(ctx, conn, d.ctrl); err != nil {
		d.logger.Warn("tag flow ended", "err", err)
	}
}

// shutdown stops the flows and servers, then closes resources. An open
// session is not drained.
func (d *daemon) shutdown() {
	d.cancel()
	d.srv.Shutdown()

	if d.scheduler != nil {
		d.scheduler.Stop()
		d.logger.Info("sync scheduler stopped")
	}

	d.grpcServer.GracefulStop()
	d.logger.Info("gRPC server stopped")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.httpServer.Shutdown(ctx); err != nil {
		d.logger.Error("HTTP server shutdown error", "err", err)
	}
	d.logger.Info("HTTP server stopped")

	// The frame source must close before the loop can return from a
	// blocking read on some sources.
	d.closeAll()
	d.wg.Wait()

	if open := d.ctrl.OpenSession(); open != nil {
		d.logger.Warn("shutting down with an open session", "session", open.ID, "tags", open.Tags)
	}
	d.logger.Info("shutdown complete")
}

func (d *daemon) closeAll() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}
