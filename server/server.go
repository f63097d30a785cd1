// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package server serves the network runner control API over gRPC and,
// unless disabled, over an HTTP gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lnsim/ln-network-runner/driver"
	"github.com/lnsim/ln-network-runner/driver/simulated"
	"github.com/lnsim/ln-network-runner/events"
	"github.com/lnsim/ln-network-runner/images"
	"github.com/lnsim/ln-network-runner/local"
	"github.com/lnsim/ln-network-runner/network"
	"github.com/lnsim/ln-network-runner/rpcpb"
	"github.com/lnsim/ln-network-runner/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

const (
	DriverSimulated = "simulated"
	DriverLocal     = "local"

	stopOnSignalTimeout = 30 * time.Second
)

var ErrInvalidPort = errors.New("invalid port")

type Config struct {
	Port   string
	GwPort string
	// true to disable the HTTP gateway
	GwDisabled  bool
	DialTimeout time.Duration

	// Networks are kept in memory only if empty.
	DBPath string
	// Events are also published to NATS if set.
	NatsURL string

	// "simulated" or "local"
	Driver string
	// image --> executable, for the local driver
	Executables map[string]string
	// Root of the node data dirs, for the local driver
	DataDir             string
	RedirectNodesOutput bool
	// Images the simulated driver reports as available
	SimulatedImages []string

	RequireImages     bool
	ReadyTimeout      time.Duration
	ReadyPollInterval time.Duration
	MaxConcurrency    int

	// Print spans to stdout
	Tracing bool
}

type Server interface {
	Run(rootCtx context.Context) error
	// Addr is the address the gRPC server listens on.
	Addr() string
}

type server struct {
	cfg Config
	log *zap.Logger

	closeOnce sync.Once
	closed    chan struct{}

	ln               net.Listener
	gRPCServer       *grpc.Server
	gRPCRegisterOnce sync.Once

	gwLock   sync.Mutex
	gwLn     net.Listener
	gwServer *http.Server

	promRegistry    *prometheus.Registry
	db              *store.BadgerStore
	nats            *events.NatsPublisher
	shutdownTracing func(context.Context) error

	controller *network.Controller
	svc        *service
}

func New(cfg Config, log *zap.Logger) (Server, error) {
	if cfg.Port == "" || (!cfg.GwDisabled && cfg.GwPort == "") {
		return nil, ErrInvalidPort
	}
	if log == nil {
		log = zap.L()
	}

	s := &server{
		cfg:          cfg,
		log:          log,
		closed:       make(chan struct{}),
		promRegistry: prometheus.NewRegistry(),
	}
	if err := s.init(); err != nil {
		_ = s.release()
		return nil, err
	}
	return s, nil
}

func (s *server) init() error {
	var err error
	if s.cfg.Tracing {
		s.shutdownTracing, err = setupTracing()
		if err != nil {
			return err
		}
	}

	d, provider, err := s.newDriver()
	if err != nil {
		return err
	}

	if s.cfg.DBPath == "" {
		s.db, err = store.OpenInMemory(s.log)
	} else {
		s.db, err = store.Open(s.cfg.DBPath, s.log)
	}
	if err != nil {
		return err
	}
	registry := network.NewRegistry(s.log, s.db)
	restored, err := registry.Restore(context.Background())
	if err != nil {
		return err
	}
	s.log.Info("restored networks", zap.Int("count", restored))

	hub := events.NewHub(s.log)
	publishers := []events.Publisher{hub}
	if s.cfg.NatsURL != "" {
		s.nats, err = events.NewNatsPublisher(s.cfg.NatsURL, s.log)
		if err != nil {
			return err
		}
		publishers = append(publishers, s.nats)
	}

	s.promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := network.NewMetrics(s.promRegistry)
	if err != nil {
		return err
	}

	s.controller, err = network.NewController(network.ControllerConfig{
		Registry:          registry,
		Driver:            d,
		Images:            provider,
		RequireImages:     s.cfg.RequireImages,
		Events:            events.Multi(publishers...),
		Metrics:           metrics,
		Log:               s.log,
		ReadyTimeout:      s.cfg.ReadyTimeout,
		ReadyPollInterval: s.cfg.ReadyPollInterval,
		MaxConcurrency:    s.cfg.MaxConcurrency,
	})
	if err != nil {
		return err
	}
	s.svc = &service{
		log:        s.log,
		controller: s.controller,
		hub:        hub,
		closed:     s.closed,
	}

	s.ln, err = net.Listen("tcp", s.cfg.Port)
	if err != nil {
		return err
	}
	s.gRPCServer = grpc.NewServer()
	return nil
}

func (s *server) newDriver() (driver.Driver, images.Provider, error) {
	switch s.cfg.Driver {
	case "", DriverSimulated:
		d := simulated.New(simulated.Config{
			Log:    s.log,
			Images: s.cfg.SimulatedImages,
		})
		return d, d, nil
	case DriverLocal:
		executors := local.NewExecutorRegistry(s.cfg.Executables)
		d, err := local.NewDriver(local.Config{
			Log:            s.log,
			Executors:      executors,
			DataDir:        s.cfg.DataDir,
			RedirectOutput: s.cfg.RedirectNodesOutput,
		})
		if err != nil {
			return nil, nil, err
		}
		return d, executors, nil
	default:
		return nil, nil, fmt.Errorf("unknown driver %q", s.cfg.Driver)
	}
}

func (s *server) Addr() string {
	return s.ln.Addr().String()
}

// Blocking call until server listeners return.
func (s *server) Run(rootCtx context.Context) (err error) {
	s.gRPCRegisterOnce.Do(func() {
		rpcpb.RegisterControlServiceServer(s.gRPCServer, s.svc)
	})

	gRPCErrc := make(chan error)
	go func() {
		s.log.Info("serving gRPC server", zap.String("addr", s.Addr()))
		gRPCErrc <- s.gRPCServer.Serve(s.ln)
	}()

	gwErrc := make(chan error)
	if s.cfg.GwDisabled {
		s.log.Info("gateway server is disabled")
	} else {
		gwLn, err := net.Listen("tcp", s.cfg.GwPort)
		if err != nil {
			s.gRPCServer.Stop()
			<-gRPCErrc
			s.shutdown()
			return err
		}
		go func() {
			s.log.Info("dialing gRPC server for gateway", zap.String("addr", s.Addr()))
			ctx, cancel := context.WithTimeout(rootCtx, s.cfg.DialTimeout)
			gwConn, err := grpc.DialContext(
				ctx,
				dialAddr(s.Addr()),
				grpc.WithBlock(),
				grpc.WithTransportCredentials(insecure.NewCredentials()),
			)
			cancel()
			if err != nil {
				_ = gwLn.Close()
				gwErrc <- err
				return
			}
			defer gwConn.Close()

			gwServer := &http.Server{
				Handler:           newGateway(rpcpb.NewControlServiceClient(gwConn), s.promRegistry, s.log),
				ReadHeaderTimeout: 10 * time.Second,
			}
			s.gwLock.Lock()
			s.gwServer = gwServer
			s.gwLock.Unlock()
			s.log.Info("serving gateway", zap.String("addr", gwLn.Addr().String()))
			gwErrc <- gwServer.Serve(gwLn)
		}()
	}

	select {
	case <-rootCtx.Done():
		s.log.Warn("root context is done")

		if !s.cfg.GwDisabled {
			s.closeGateway()
			<-gwErrc
		}

		s.gRPCServer.Stop()
		s.log.Warn("closed gRPC server")
		<-gRPCErrc
		s.log.Warn("gRPC terminated")

	case err = <-gRPCErrc:
		s.log.Warn("gRPC server failed", zap.Error(err))
		if !s.cfg.GwDisabled {
			s.closeGateway()
			<-gwErrc
		}

	case err = <-gwErrc: // if disabled, this will never be selected
		s.log.Warn("gateway server failed", zap.Error(err))
		s.gRPCServer.Stop()
		s.log.Warn("closed gRPC server")
		<-gRPCErrc
	}

	s.shutdown()
	if errors.Is(err, http.ErrServerClosed) || errors.Is(err, grpc.ErrServerStopped) {
		err = nil
	}
	return err
}

func (s *server) closeGateway() {
	s.gwLock.Lock()
	defer s.gwLock.Unlock()
	// nil if the dial is still pending or failed
	if s.gwServer != nil {
		s.log.Warn("closed gateway server", zap.Error(s.gwServer.Close()))
		return
	}
	// makes a pending Serve return at once
	_ = s.gwLn.Close()
}

// shutdown stops every running network, then persists and releases
// everything New opened.
func (s *server) shutdown() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})

	stopCtx, cancel := context.WithTimeout(context.Background(), stopOnSignalTimeout)
	defer cancel()
	if err := s.controller.StopAll(stopCtx); err != nil {
		s.log.Warn("couldn't stop every network", zap.Error(err))
	} else {
		s.log.Warn("networks stopped")
	}
	if err := s.controller.Registry().Save(stopCtx); err != nil {
		s.log.Warn("couldn't persist networks", zap.Error(err))
	}
	if err := s.release(); err != nil {
		s.log.Warn("couldn't release resources", zap.Error(err))
	}
}

func (s *server) release() error {
	var errs error
	if s.nats != nil {
		s.nats.Close()
	}
	if s.db != nil {
		errs = multierr.Append(errs, s.db.Close())
	}
	if s.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = multierr.Append(errs, s.shutdownTracing(ctx))
	}
	return errs
}

// dialAddr replaces an unspecified listen host with the loopback address.
func dialAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func isClientCanceled(ctxErr error, err error) bool {
	if ctxErr != nil {
		return true
	}

	ev, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch ev.Code() {
	case codes.Canceled, codes.DeadlineExceeded:
		// client-side context cancel or deadline exceeded
		// "rpc error: code = Canceled desc = context canceled"
		// "rpc error: code = DeadlineExceeded desc = context deadline exceeded"
		return true
	case codes.Unavailable:
		msg := ev.Message()
		// "rpc error: code = Unavailable desc = client disconnected"
		if msg == "client disconnected" {
			return true
		}
		// "rpc error: code = Unavailable desc = stream error: stream ID 21; CANCEL")
		if strings.HasPrefix(msg, "stream error: ") && strings.HasSuffix(msg, "; CANCEL") {
			return true
		}
	}
	return false
}
