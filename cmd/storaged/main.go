package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/ruteri/storage-control-plane/cmd/flags"
	"github.com/ruteri/storage-control-plane/common"
	"github.com/ruteri/storage-control-plane/events"
	"github.com/ruteri/storage-control-plane/httpserver"
	"github.com/ruteri/storage-control-plane/manager"
	"github.com/ruteri/storage-control-plane/metrics"
	"github.com/ruteri/storage-control-plane/policy"
	"github.com/ruteri/storage-control-plane/storage"
	"github.com/urfave/cli/v2"
)

var cliFlags = append([]cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for operational API",
	},
	flags.StoreURIFlag,
	flags.NATSAddrFlag,
	flags.IndexBucketFlag,
	flags.PolicyFileFlag,
	flags.DefaultQuotaFlag,
	flags.DedupMinSizeFlag,
	&cli.DurationFlag{
		Name:  "gc-interval",
		Value: 5 * time.Minute,
		Usage: "interval between garbage collection sweeps",
	},
	&cli.DurationFlag{
		Name:  "reevaluate-interval",
		Value: 15 * time.Minute,
		Usage: "interval between replication re-evaluation passes",
	},
	&cli.DurationFlag{
		Name:  "verify-interval",
		Value: time.Hour,
		Usage: "interval between backup verification passes",
	},
	&cli.DurationFlag{
		Name:  "drill-interval",
		Value: 24 * time.Hour,
		Usage: "interval between disaster recovery drills",
	},
	flags.LogServiceFlagFn("storaged"),
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:   "storaged",
		Usage:  "Policy-driven storage control plane",
		Flags:  cliFlags,
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	listenAddr := cCtx.String("listen-addr")
	storeURI := cCtx.String("store-uri")
	natsAddr := cCtx.String(flags.NATSAddrFlag.Name)
	indexBucket := cCtx.String(flags.IndexBucketFlag.Name)
	policyFile := cCtx.String(flags.PolicyFileFlag.Name)

	logger := flags.SetupLogger(cCtx)

	// Content store.
	storeFactory := storage.NewFactory(logger)
	store, err := storeFactory.StoreFor(storeURI)
	if err != nil {
		logger.Error("Failed to create content store", "err", err, "uri", storeURI)
		return err
	}
	if !store.Available(cCtx.Context) {
		logger.Warn("Content store not reachable at startup", "uri", storeURI)
	}

	// NATS carries both the event bus and the reference index.
	logger.Info("Connecting to NATS", "address", natsAddr)
	conn, err := nats.Connect(natsAddr,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		logger.Error("Failed to connect to NATS", "err", err)
		return err
	}
	defer conn.Close()

	indexCtx, indexCancel := context.WithTimeout(cCtx.Context, 30*time.Second)
	index, err := storage.NewNATSIndex(indexCtx, conn, indexBucket, 5*time.Second, logger)
	indexCancel()
	if err != nil {
		logger.Error("Failed to open reference index bucket", "err", err, "bucket", indexBucket)
		return err
	}

	// Pinning policies.
	var registry *policy.Registry
	if policyFile != "" {
		registry, err = policy.LoadFile(policyFile)
		if err != nil {
			logger.Error("Failed to load policy file", "err", err, "file", policyFile)
			return err
		}
		logger.Info("Loaded pinning policies", "file", policyFile)
	} else {
		registry = policy.NewRegistry(nil)
		logger.Info("Using built-in default pinning policies")
	}

	cpm := metrics.New(prometheus.DefaultRegisterer)

	emitter := events.NewEmitter(
		events.NewNATSPublisher(conn, logger),
		events.NewNATSAuditSink(conn, logger),
		logger,
	)

	mgr := manager.New(store, index, registry, emitter, cpm, manager.Config{
		DedupMinSize:       cCtx.Int64(flags.DedupMinSizeFlag.Name),
		DefaultQuotaBytes:  cCtx.Int64(flags.DefaultQuotaFlag.Name),
		GCInterval:         cCtx.Duration("gc-interval"),
		ReevaluateInterval: cCtx.Duration("reevaluate-interval"),
		VerifyInterval:     cCtx.Duration("verify-interval"),
		DrillInterval:      cCtx.Duration("drill-interval"),
	}, logger)

	subscriber := events.NewSubscriber(conn, logger)
	err = subscriber.Subscribe(events.Handlers{
		OnExternalFileCreated: mgr.HandleExternalFileCreated,
		OnPaymentCompleted:    mgr.HandlePaymentCompleted,
	})
	if err != nil {
		logger.Error("Failed to subscribe to inbound events", "err", err)
		return err
	}
	defer subscriber.Drain()

	scheduler := manager.NewScheduler(mgr, logger)
	scheduler.Start()
	defer scheduler.Stop()

	srv := httpserver.New(flags.ConfigureServer(cCtx, logger, listenAddr))
	srv.RunInBackground()

	logger.With(
		"listenAddress", listenAddr,
		"store", store.Name(),
		"version", common.Version,
	).Info("Storage control plane started")

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	<-exit
	logger.Info("Shutting down")

	srv.Shutdown()
	return nil
}
