// Command fibagentd wires a RouteProgrammer, its persistent store and
// platform fib client, a telemetry gNMI server, and a demo upstream
// publisher onto one errgroup, following the teacher's daemon wiring:
// signal-driven shutdown context, one goroutine per component, and a
// final g.Wait() that treats context cancellation as a clean exit.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	pb "github.com/openconfig/gnmi/proto/gnmi"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/openr-go/fib-agent/internal/config"
	"github.com/openr-go/fib-agent/pkg/api"
	"github.com/openr-go/fib-agent/pkg/fibclient"
	"github.com/openr-go/fib-agent/pkg/mockupstream"
	"github.com/openr-go/fib-agent/pkg/programmer"
	"github.com/openr-go/fib-agent/pkg/store"
	"github.com/openr-go/fib-agent/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file; defaults built in if empty")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load config")
		}
		cfg = loaded
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	persist := store.New(store.Config{
		NodeName:           cfg.NodeName,
		StorageFilePath:    cfg.StorageFilePath,
		SaveInitialBackoff: cfg.StoreBackoffInit(),
		SaveMaxBackoff:     cfg.StoreBackoffMax(),
		Dryrun:             cfg.Dryrun,
	}, log)
	storeReqCh := make(chan api.StoreRequest)
	g.Go(func() error {
		persist.Run(ctx, storeReqCh)
		return nil
	})

	client := fibclient.New(fibclient.Config{
		Addr:            cfg.FibAgentAddr,
		DialTimeout:     cfg.DialTimeout(),
		ResponseTimeout: cfg.ResponseTimeout(),
	})
	defer client.Close()

	prog := programmer.New(programmer.Config{
		NodeName:             cfg.NodeName,
		ClientID:             cfg.ClientID,
		Dryrun:               cfg.Dryrun,
		EnableFibSync:        cfg.EnableFibSync,
		EnableSegmentRouting: cfg.EnableSegmentRouting,
		EnableOrderedFib:     cfg.EnableOrderedFib,
		ColdStartDuration:    cfg.ColdStartDuration(),
		HealthCheckInterval:  cfg.HealthCheckInterval(),
		PlatformSyncInterval: cfg.PlatformSyncInterval(),
		BackoffInitial:       cfg.BackoffInitial(),
		BackoffMax:           cfg.BackoffMax(),
		MaxConvergenceMs:     cfg.MaxConvergenceMs,
		PerfBufferSize:       cfg.PerfBufferSize,
	}, client, log)

	telemetryCh := make(chan api.RouteDatabase, 16)
	prog.SetTelemetryChannel(telemetryCh)

	routeDBCh := make(chan api.RouteDatabase)
	interfaceDBCh := make(chan api.InterfaceDatabase)
	fibReqCh := make(chan api.FibRequest)

	g.Go(func() error {
		prog.Run(ctx, routeDBCh, interfaceDBCh, fibReqCh)
		return nil
	})

	ts := telemetry.New(telemetryCh)
	lis, err := net.Listen("tcp", portAddr(cfg.GNMIPort))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to listen for gnmi")
	}
	grpcServer := grpc.NewServer()
	pb.RegisterGNMIServer(grpcServer, ts)
	reflection.Register(grpcServer)

	g.Go(func() error {
		log.Info().Str("addr", lis.Addr().String()).Msg("gnmi server listening")
		errCh := make(chan error, 1)
		go func() { errCh <- grpcServer.Serve(lis) }()
		select {
		case <-ctx.Done():
			grpcServer.GracefulStop()
			return <-errCh
		case err := <-errCh:
			return err
		}
	})

	if cfg.Mock.Enabled {
		pub := mockupstream.New(cfg.NodeName, cfg.Mock.RouteCount, log)
		pub.Start(routeDBCh, interfaceDBCh)
		g.Go(func() error {
			<-ctx.Done()
			pub.Stop()
			return nil
		})
	}

	log.Info().Str("node", cfg.NodeName).Msg("fibagentd running")
	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("fibagentd exited with error")
	}
	log.Info().Msg("fibagentd stopped")
}

func portAddr(port int) string {
	return net.JoinHostPort("", strconv.Itoa(port))
}
