// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// e2e implements the e2e tests.
package e2e_test

import (
	"context"
	"flag"
	"testing"
	"time"

	"github.com/lnsim/ln-network-runner/client"
	"github.com/lnsim/ln-network-runner/e2e"
	"github.com/lnsim/ln-network-runner/network"
	"github.com/lnsim/ln-network-runner/network/node"
	"github.com/lnsim/ln-network-runner/network/node/status"
	"github.com/lnsim/ln-network-runner/pkg/color"
	"github.com/lnsim/ln-network-runner/pkg/logutil"
	"github.com/lnsim/ln-network-runner/rpcpb"
	"github.com/lnsim/ln-network-runner/server"
	"github.com/lnsim/ln-network-runner/utils/constants"
	ginkgo "github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

func TestE2e(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "ln-network-runner e2e test suites")
}

var (
	logLevel string
	gRPCEp   string
)

func init() {
	flag.StringVar(
		&logLevel,
		"log-level",
		logutil.DefaultLogLevel.String(),
		"log level",
	)
	flag.StringVar(
		&gRPCEp,
		"grpc-endpoint",
		"",
		"gRPC server endpoint; if empty, a server with the simulated driver is run in-process",
	)
}

var (
	cli          client.Client
	stopServer   context.CancelFunc
	serverClosed chan error
)

var _ = ginkgo.BeforeSuite(func() {
	log, err := logutil.NewLogger(logLevel, "console")
	gomega.Ω(err).Should(gomega.BeNil())

	endpoint := gRPCEp
	if endpoint == "" {
		s, err := server.New(server.Config{
			Port:              "127.0.0.1:0",
			GwDisabled:        true,
			DialTimeout:       10 * time.Second,
			Driver:            server.DriverSimulated,
			SimulatedImages:   []string{constants.DefaultBitcoinImage, constants.DefaultLightningImage},
			RequireImages:     true,
			ReadyPollInterval: 50 * time.Millisecond,
		}, log.Named(constants.LogNameMain))
		gomega.Ω(err).Should(gomega.BeNil())

		var ctx context.Context
		ctx, stopServer = context.WithCancel(context.Background())
		serverClosed = make(chan error, 1)
		go func() { serverClosed <- s.Run(ctx) }()
		endpoint = s.Addr()
	}

	cli, err = client.New(client.Config{
		Endpoint:    endpoint,
		DialTimeout: 10 * time.Second,
	}, log.Named(constants.LogNameTest))
	gomega.Ω(err).Should(gomega.BeNil())
})

var _ = ginkgo.AfterSuite(func() {
	color.Outf("{{red}}shutting down client{{/}}\n")
	gomega.Ω(cli.Close()).Should(gomega.BeNil())

	if stopServer != nil {
		color.Outf("{{red}}shutting down server{{/}}\n")
		stopServer()
		gomega.Eventually(serverClosed, time.Minute).Should(gomega.Receive(gomega.BeNil()))
	}
})

func requestCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

var _ = ginkgo.Describe("[Ping]", func() {
	ginkgo.It("can ping", func() {
		ctx, cancel := requestCtx()
		resp, err := cli.Ping(ctx)
		cancel()
		gomega.Ω(err).Should(gomega.BeNil())
		color.Outf("{{green}}successfully pinged, pid:{{/}} %d\n", resp.Pid)
	})
})

var _ = ginkgo.Describe("[Create/Start/Stop/Rename/Remove]", ginkgo.Ordered, func() {
	var id uint64

	ginkgo.It("can create", func() {
		ctx, cancel := requestCtx()
		info, err := cli.Create(ctx, "e2e")
		cancel()
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(info.Status).Should(gomega.Equal(status.Stopped.String()))
		gomega.Ω(info.Summary).Should(gomega.Equal("1 bitcoind, 2 LND"))
		id = info.Id
		color.Outf("{{green}}successfully created:{{/}} %d\n", id)
	})

	ginkgo.It("can stream status while starting", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		ch, err := cli.StreamStatus(ctx, id)
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Eventually(ch).Should(gomega.Receive())

		ginkgo.By("calling start API", func() {
			resp, err := cli.Start(ctx, id)
			gomega.Ω(err).Should(gomega.BeNil())
			gomega.Ω(resp.NodeErrors).Should(gomega.BeEmpty())
		})

		var seen []string
		for ev := range ch {
			seen = append(seen, ev.Network.Status)
			if ev.Network.Status == status.Started.String() {
				break
			}
		}
		gomega.Ω(seen).Should(gomega.ContainElement(status.Starting.String()))
		gomega.Ω(seen).Should(gomega.ContainElement(status.Started.String()))
	})

	ginkgo.It("rejects a second start", func() {
		ctx, cancel := requestCtx()
		_, err := cli.Start(ctx, id)
		cancel()
		gomega.Ω(err).Should(gomega.MatchError(network.ErrAlreadyRunning))
	})

	ginkgo.It("rejects removing a running network", func() {
		ctx, cancel := requestCtx()
		err := cli.Remove(ctx, id)
		cancel()
		gomega.Ω(err).Should(gomega.MatchError(network.ErrNetworkRunning))
	})

	ginkgo.It("can rename while running", func() {
		ctx, cancel := requestCtx()
		info, err := cli.Rename(ctx, id, "e2e-renamed")
		cancel()
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(info.Name).Should(gomega.Equal("e2e-renamed"))
		gomega.Ω(info.Status).Should(gomega.Equal(status.Started.String()))
	})

	ginkgo.It("can stop", func() {
		ctx, cancel := requestCtx()
		defer cancel()
		resp, err := cli.Stop(ctx, id)
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(resp.Network.Status).Should(gomega.Equal(status.Stopped.String()))
		gomega.Ω(e2e.AwaitStatus(ctx, cli, id, status.Stopped, 50*time.Millisecond)).Should(gomega.BeNil())
	})

	ginkgo.It("can remove", func() {
		ctx, cancel := requestCtx()
		defer cancel()
		gomega.Ω(cli.Remove(ctx, id)).Should(gomega.BeNil())
		_, err := cli.Find(ctx, id)
		gomega.Ω(err).Should(gomega.MatchError(network.ErrNotFound))
	})
})

var _ = ginkgo.Describe("[Topology]", func() {
	ginkgo.It("rejects a network without a bitcoin node", func() {
		ctx, cancel := requestCtx()
		_, err := cli.Create(ctx, "no-chain", client.WithNodes(
			node.Config{ID: "alice", Kind: node.Lightning, Image: constants.DefaultLightningImage},
		))
		cancel()
		gomega.Ω(err).Should(gomega.MatchError(network.ErrInvalidTopology))
	})

	ginkgo.It("refuses to start with missing images", func() {
		ctx, cancel := requestCtx()
		defer cancel()
		info, err := cli.Create(ctx, "exotic", client.WithLightningImage("cln:23"))
		gomega.Ω(err).Should(gomega.BeNil())

		missing, err := cli.MissingImages(ctx, info.Id)
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(missing).Should(gomega.Equal([]string{"cln:23"}))

		_, err = cli.Start(ctx, info.Id)
		gomega.Ω(err).Should(gomega.MatchError(network.ErrMissingImages))
		gomega.Ω(cli.Remove(ctx, info.Id)).Should(gomega.BeNil())
	})
})

var _ = ginkgo.Describe("[Many networks]", func() {
	ginkgo.It("can start several networks at once", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		var ids []uint64
		for _, name := range []string{"one", "two", "three"} {
			info, err := cli.Create(ctx, name, client.WithNumBitcoin(1), client.WithNumLightning(4))
			gomega.Ω(err).Should(gomega.BeNil())
			ids = append(ids, info.Id)
		}

		done := make(chan *rpcpb.StartResponse, len(ids))
		for _, id := range ids {
			id := id
			go func() {
				defer ginkgo.GinkgoRecover()
				resp, err := cli.Start(ctx, id)
				gomega.Ω(err).Should(gomega.BeNil())
				done <- resp
			}()
		}
		for range ids {
			gomega.Eventually(done, 30*time.Second).Should(gomega.Receive())
		}
		gomega.Ω(e2e.AwaitAll(ctx, cli, ids, status.Started, 50*time.Millisecond)).Should(gomega.BeNil())

		for _, id := range ids {
			_, err := cli.Stop(ctx, id)
			gomega.Ω(err).Should(gomega.BeNil())
			gomega.Ω(cli.Remove(ctx, id)).Should(gomega.BeNil())
		}
	})

	ginkgo.It("runs the lifecycle scenario", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		e2e.RunLifecycle(ctx, ginkgo.GinkgoT(), cli)
	})
})
