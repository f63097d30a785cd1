package network_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lnsim/ln-network-runner/driver"
	"github.com/lnsim/ln-network-runner/driver/simulated"
	"github.com/lnsim/ln-network-runner/events"
	"github.com/lnsim/ln-network-runner/images"
	"github.com/lnsim/ln-network-runner/network"
	"github.com/lnsim/ln-network-runner/network/node/status"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var errBoom = errors.New("boom")

type controllerSuite struct {
	suite.Suite

	ctx     context.Context
	driver  *simulated.Driver
	hub     *events.Hub
	metrics *prometheus.Registry
	c       *network.Controller
}

func TestController(t *testing.T) {
	suite.Run(t, new(controllerSuite))
}

func (s *controllerSuite) SetupTest() {
	s.ctx = context.Background()
	s.driver = simulated.New(simulated.Config{Images: []string{"bitcoind:24"}})
	s.c = s.newController(s.driver, nil)
}

func (s *controllerSuite) newController(d driver.Driver, tweak func(*network.ControllerConfig)) *network.Controller {
	s.hub = events.NewHub(zap.NewNop())
	s.metrics = prometheus.NewRegistry()
	metrics, err := network.NewMetrics(s.metrics)
	s.Require().NoError(err)
	cfg := network.ControllerConfig{
		Registry:          network.NewRegistry(zap.NewNop(), nil),
		Driver:            d,
		Images:            s.driver,
		Events:            s.hub,
		Metrics:           metrics,
		Log:               zap.NewNop(),
		ReadyTimeout:      time.Second,
		ReadyPollInterval: 5 * time.Millisecond,
	}
	if tweak != nil {
		tweak(&cfg)
	}
	c, err := network.NewController(cfg)
	s.Require().NoError(err)
	return c
}

func (s *controllerSuite) createAlpha() *network.Network {
	n, err := s.c.Create(s.ctx, "alpha", network.DefaultTopology("bitcoind:24", "lnd:0.17", 1, 2))
	s.Require().NoError(err)
	return n
}

func (s *controllerSuite) nodeStatus(n *network.Network, id string) status.Status {
	ni, err := n.Node(id)
	s.Require().NoError(err)
	return ni.Status
}

func (s *controllerSuite) requireAllNodes(n *network.Network, expected status.Status) {
	for _, ni := range n.Nodes() {
		s.Require().Equal(expected, ni.Status, "node %s", ni.ID)
	}
}

func callsOf(calls []simulated.Call, op simulated.Op) []string {
	var ids []string
	for _, c := range calls {
		if c.Op == op {
			ids = append(ids, c.NodeID)
		}
	}
	return ids
}

func (s *controllerSuite) TestStartStopDependencyOrder() {
	require := s.Require()
	n := s.createAlpha()
	require.Equal(status.Stopped, n.Status())

	require.NoError(s.c.Start(s.ctx, n.ID()))
	require.Equal(status.Started, n.Status())
	s.requireAllNodes(n, status.Started)

	started := callsOf(s.driver.Calls(), simulated.OpStart)
	require.Len(started, 3)
	require.Equal("backend-1", started[0])
	require.ElementsMatch([]string{"alice", "bob"}, started[1:])

	s.driver.ResetCalls()
	require.NoError(s.c.Stop(s.ctx, n.ID()))
	require.Equal(status.Stopped, n.Status())
	s.requireAllNodes(n, status.Stopped)

	stopped := callsOf(s.driver.Calls(), simulated.OpStop)
	require.Len(stopped, 3)
	require.ElementsMatch([]string{"alice", "bob"}, stopped[:2])
	require.Equal("backend-1", stopped[2])
}

func (s *controllerSuite) TestLightningStartFailure() {
	require := s.Require()
	n := s.createAlpha()
	s.driver.FailStart("alice", errBoom)

	err := s.c.Start(s.ctx, n.ID())
	require.ErrorIs(err, errBoom)
	var driverErr *network.DriverError
	require.ErrorAs(err, &driverErr)
	require.Equal("alice", driverErr.NodeID)
	require.Len(multierr.Errors(err), 1)

	require.Equal(status.Error, s.nodeStatus(n, "alice"))
	require.Equal(status.Started, s.nodeStatus(n, "backend-1"))
	require.Equal(status.Started, s.nodeStatus(n, "bob"))
	require.Equal(status.Error, n.Status())

	// no rollback, and no second start until stopped
	require.ErrorIs(s.c.Start(s.ctx, n.ID()), network.ErrInvalidTransition)

	require.NoError(s.c.Stop(s.ctx, n.ID()))
	require.Equal(status.Stopped, n.Status())
	s.requireAllNodes(n, status.Stopped)

	// the user retries after fixing the node
	s.driver.FailStart("alice", nil)
	require.NoError(s.c.Start(s.ctx, n.ID()))
	require.Equal(status.Started, n.Status())
}

func (s *controllerSuite) TestBitcoinStartFailure() {
	require := s.Require()
	n := s.createAlpha()
	s.driver.FailStart("backend-1", errBoom)

	err := s.c.Start(s.ctx, n.ID())
	require.ErrorIs(err, errBoom)
	require.ErrorIs(err, network.ErrDependencyFailed)
	require.Len(multierr.Errors(err), 3)
	require.Equal(status.Error, n.Status())
	s.requireAllNodes(n, status.Error)

	// lightning nodes were never issued
	require.Equal([]string{"backend-1"}, callsOf(s.driver.Calls(), simulated.OpStart))

	require.NoError(s.c.Stop(s.ctx, n.ID()))
	s.requireAllNodes(n, status.Stopped)
}

func (s *controllerSuite) TestStopFailure() {
	require := s.Require()
	n := s.createAlpha()
	require.NoError(s.c.Start(s.ctx, n.ID()))

	s.driver.FailStop("alice", errBoom)
	err := s.c.Stop(s.ctx, n.ID())
	var driverErr *network.DriverError
	require.ErrorAs(err, &driverErr)
	require.Equal("alice", driverErr.NodeID)
	require.Equal("stop", driverErr.Op)

	// the bitcoin node is still stopped
	require.Equal(status.Stopped, s.nodeStatus(n, "backend-1"))
	require.Equal(status.Stopped, s.nodeStatus(n, "bob"))
	require.Equal(status.Error, s.nodeStatus(n, "alice"))
	require.Equal(status.Error, n.Status())
	require.ErrorIs(s.c.Remove(s.ctx, n.ID()), network.ErrNetworkRunning)

	s.driver.FailStop("alice", nil)
	s.driver.ResetCalls()
	require.NoError(s.c.Stop(s.ctx, n.ID()))
	require.Equal(status.Stopped, n.Status())
	// only the node that wasn't stopped is stopped again
	require.Equal([]string{"alice"}, callsOf(s.driver.Calls(), simulated.OpStop))
}

func (s *controllerSuite) TestStartTwice() {
	require := s.Require()
	n := s.createAlpha()
	require.NoError(s.c.Start(s.ctx, n.ID()))
	require.ErrorIs(s.c.Start(s.ctx, n.ID()), network.ErrAlreadyRunning)
	require.Equal(status.Started, n.Status())
}

func (s *controllerSuite) TestStopStoppedNetwork() {
	require := s.Require()
	n := s.createAlpha()
	require.NoError(s.c.Stop(s.ctx, n.ID()))
	require.Empty(s.driver.Calls())
	require.Equal(status.Stopped, n.Status())
}

func (s *controllerSuite) TestUnknownNetwork() {
	require := s.Require()
	require.ErrorIs(s.c.Start(s.ctx, 42), network.ErrNotFound)
	require.ErrorIs(s.c.Stop(s.ctx, 42), network.ErrNotFound)
	require.ErrorIs(s.c.Rename(s.ctx, 42, "x"), network.ErrNotFound)
	require.ErrorIs(s.c.Rename(s.ctx, 42, ""), network.ErrNotFound)
	require.ErrorIs(s.c.Remove(s.ctx, 42), network.ErrNotFound)
	_, err := s.c.MissingImages(s.ctx, 42)
	require.ErrorIs(err, network.ErrNotFound)
}

func (s *controllerSuite) TestOperationInProgress() {
	require := s.Require()
	gate := make(chan struct{})
	s.driver = simulated.New(simulated.Config{Gate: gate})
	s.c = s.newController(s.driver, nil)
	n := s.createAlpha()

	done := make(chan error, 1)
	go func() { done <- s.c.Start(s.ctx, n.ID()) }()
	require.Eventually(func() bool {
		op, ok := s.c.InFlight(n.ID())
		return ok && op == "start" && n.Status() == status.Starting
	}, time.Second, time.Millisecond)

	require.ErrorIs(s.c.Start(s.ctx, n.ID()), network.ErrOperationInProgress)
	require.ErrorIs(s.c.Stop(s.ctx, n.ID()), network.ErrOperationInProgress)
	require.ErrorIs(s.c.Rename(s.ctx, n.ID(), "beta"), network.ErrOperationInProgress)
	require.ErrorIs(s.c.Remove(s.ctx, n.ID()), network.ErrOperationInProgress)
	require.Equal("alpha", n.Name())

	// readers aren't blocked while the start is in flight
	require.Len(s.c.List(), 1)
	_, ok := s.c.Find(n.ID())
	require.True(ok)

	close(gate)
	require.NoError(<-done)
	require.Equal(status.Started, n.Status())
	_, ok = s.c.InFlight(n.ID())
	require.False(ok)
}

func (s *controllerSuite) TestStartIgnoresCancellation() {
	require := s.Require()
	s.driver = simulated.New(simulated.Config{StartDelay: 10 * time.Millisecond})
	s.c = s.newController(s.driver, nil)
	n := s.createAlpha()

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	require.NoError(s.c.Start(ctx, n.ID()))
	require.Equal(status.Started, n.Status())
}

func (s *controllerSuite) TestReadiness() {
	require := s.Require()
	s.driver = simulated.New(simulated.Config{ReadyAfter: 20 * time.Millisecond})
	s.c = s.newController(s.driver, nil)
	n := s.createAlpha()

	require.NoError(s.c.Start(s.ctx, n.ID()))
	require.Equal(status.Started, n.Status())

	s.driver.NeverReady("bob")
	s.c = s.newController(s.driver, func(cfg *network.ControllerConfig) {
		cfg.ReadyTimeout = 50 * time.Millisecond
	})
	other, err := s.c.Create(s.ctx, "beta", network.DefaultTopology("bitcoind:24", "lnd:0.17", 1, 2))
	require.NoError(err)
	err = s.c.Start(s.ctx, other.ID())
	require.ErrorIs(err, network.ErrNodeNotReady)
	require.Equal(status.Error, s.nodeStatus(other, "bob"))
	require.Equal(status.Started, s.nodeStatus(other, "alice"))
}

// unconfirmedDriver never reports a node ready and can't be polled.
type unconfirmedDriver struct {
	*simulated.Driver
}

func (d unconfirmedDriver) StartNode(ctx context.Context, n driver.Node) (bool, error) {
	_, err := d.Driver.StartNode(ctx, n)
	return false, err
}

func (s *controllerSuite) TestStartNotConfirmed() {
	require := s.Require()
	var d driver.Driver = struct{ driver.Driver }{unconfirmedDriver{s.driver}}
	_, polls := d.(driver.ReadinessChecker)
	require.False(polls)
	s.c = s.newController(d, nil)
	n := s.createAlpha()

	err := s.c.Start(s.ctx, n.ID())
	require.ErrorIs(err, network.ErrNotConfirmed)
	require.Equal(status.Error, n.Status())
}

func (s *controllerSuite) TestRename() {
	require := s.Require()
	n := s.createAlpha()
	require.NoError(s.c.Start(s.ctx, n.ID()))

	require.ErrorIs(s.c.Rename(s.ctx, n.ID(), ""), network.ErrInvalidName)
	require.ErrorIs(s.c.Rename(s.ctx, n.ID(), "   "), network.ErrInvalidName)
	require.Equal("alpha", n.Name())

	require.NoError(s.c.Rename(s.ctx, n.ID(), "valid"))
	found, ok := s.c.Find(n.ID())
	require.True(ok)
	require.Equal("valid", found.Name())
	require.Equal(status.Started, found.Status())
}

func (s *controllerSuite) TestRemove() {
	require := s.Require()
	n := s.createAlpha()
	require.NoError(s.c.Start(s.ctx, n.ID()))
	require.ErrorIs(s.c.Remove(s.ctx, n.ID()), network.ErrNetworkRunning)
	require.Len(s.c.List(), 1)
	require.Empty(callsOf(s.driver.Calls(), simulated.OpRelease))

	require.NoError(s.c.Stop(s.ctx, n.ID()))
	require.NoError(s.c.Remove(s.ctx, n.ID()))
	require.Empty(s.c.List())
	_, ok := s.c.Find(n.ID())
	require.False(ok)
	for _, ni := range n.Nodes() {
		require.True(s.driver.Released(driver.Node{NetworkID: n.ID(), Config: ni.Config}))
	}
	require.Equal(0.0, gaugeValue(s.T(), s.metrics, "lnr_networks"))
}

// releaseFailingDriver can't release one node.
type releaseFailingDriver struct {
	*simulated.Driver
	nodeID string
}

func (d releaseFailingDriver) ReleaseNode(ctx context.Context, n driver.Node) error {
	if n.ID == d.nodeID {
		return errBoom
	}
	return d.Driver.ReleaseNode(ctx, n)
}

func (s *controllerSuite) TestRemoveReleaseFailure() {
	require := s.Require()
	s.c = s.newController(releaseFailingDriver{Driver: s.driver, nodeID: "bob"}, nil)
	n := s.createAlpha()

	err := s.c.Remove(s.ctx, n.ID())
	require.ErrorIs(err, errBoom)
	var driverErr *network.DriverError
	require.ErrorAs(err, &driverErr)
	require.Equal("bob", driverErr.NodeID)
	// kept so the remove can be retried
	require.Len(s.c.List(), 1)
}

func (s *controllerSuite) TestMissingImages() {
	require := s.Require()
	n := s.createAlpha()

	missing, err := s.c.MissingImages(s.ctx, n.ID())
	require.NoError(err)
	require.Equal([]string{"lnd:0.17"}, missing.List())

	s.driver.AddImages("lnd:0.17", "lnd:0.18")
	missing, err = s.c.MissingImages(s.ctx, n.ID())
	require.NoError(err)
	require.Zero(missing.Len())

	s.c = s.newController(s.driver, func(cfg *network.ControllerConfig) { cfg.Images = nil })
	n = s.createAlpha()
	_, err = s.c.MissingImages(s.ctx, n.ID())
	require.ErrorIs(err, network.ErrNoImageProvider)
}

func (s *controllerSuite) TestRequireImages() {
	require := s.Require()
	s.c = s.newController(s.driver, func(cfg *network.ControllerConfig) { cfg.RequireImages = true })
	n := s.createAlpha()

	require.ErrorIs(s.c.Start(s.ctx, n.ID()), network.ErrMissingImages)
	require.Empty(s.driver.Calls())
	s.requireAllNodes(n, status.Stopped)

	s.driver.AddImages("lnd:0.17")
	require.NoError(s.c.Start(s.ctx, n.ID()))

	s.c = s.newController(s.driver, func(cfg *network.ControllerConfig) {
		cfg.RequireImages = true
		cfg.Images = images.ProviderFunc(func(context.Context) (images.Set, error) { return nil, errBoom })
	})
	n = s.createAlpha()
	require.ErrorIs(s.c.Start(s.ctx, n.ID()), errBoom)
}

func (s *controllerSuite) TestEvents() {
	require := s.Require()
	all, unsubscribe := s.hub.Subscribe(0)
	defer unsubscribe()

	n := s.createAlpha()
	require.NoError(s.c.Start(s.ctx, n.ID()))

	ev := <-all
	require.Equal(events.Created, ev.Kind)
	require.Equal(n.ID(), ev.NetworkID)
	require.Equal(status.Stopped, ev.Status)

	var last events.Event
	for i := 0; i < 6; i++ {
		last = <-all
		require.Equal(events.Changed, last.Kind)
		require.Equal(network.AggregateStatus(nodeStatuses(last)), last.Status)
	}
	require.Equal(status.Started, last.Status)

	require.NoError(s.c.Rename(s.ctx, n.ID(), "beta"))
	ev = <-all
	require.Equal(events.Renamed, ev.Kind)
	require.Equal("beta", ev.Name)
}

func nodeStatuses(ev events.Event) []status.Status {
	out := make([]status.Status, len(ev.Nodes))
	for i, ni := range ev.Nodes {
		out[i] = ni.Status
	}
	return out
}

func (s *controllerSuite) TestStopAll() {
	require := s.Require()
	a := s.createAlpha()
	b := s.createAlpha()
	c := s.createAlpha()
	require.NoError(s.c.Start(s.ctx, a.ID()))
	require.NoError(s.c.Start(s.ctx, c.ID()))

	s.driver.ResetCalls()
	require.NoError(s.c.StopAll(s.ctx))
	for _, n := range []*network.Network{a, b, c} {
		require.Equal(status.Stopped, n.Status())
	}
	require.Len(callsOf(s.driver.Calls(), simulated.OpStop), 6)
}

func (s *controllerSuite) TestMetrics() {
	require := s.Require()
	n := s.createAlpha()
	require.NoError(s.c.Start(s.ctx, n.ID()))
	require.ErrorIs(s.c.Start(s.ctx, n.ID()), network.ErrAlreadyRunning)

	require.Equal(1.0, gaugeValue(s.T(), s.metrics, "lnr_networks"))
	require.Equal(1.0, counterValue(s.T(), s.metrics, "lnr_lifecycle_operations_total", map[string]string{"op": "start", "result": "ok"}))
	require.Equal(1.0, counterValue(s.T(), s.metrics, "lnr_lifecycle_operations_total", map[string]string{"op": "start", "result": "rejected"}))
	require.Equal(3.0, counterValue(s.T(), s.metrics, "lnr_node_status_transitions_total", map[string]string{"to": "Started"}))
}

func TestNewControllerRequiresRegistryAndDriver(t *testing.T) {
	_, err := network.NewController(network.ControllerConfig{Driver: simulated.New(simulated.Config{})})
	require.Error(t, err)
	_, err = network.NewController(network.ControllerConfig{Registry: network.NewRegistry(nil, nil)})
	require.Error(t, err)
}

func findFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("no metric %s", name)
	return nil
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	f := findFamily(t, reg, name)
	require.Len(t, f.GetMetric(), 1)
	return f.GetMetric()[0].GetGauge().GetValue()
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	f := findFamily(t, reg, name)
	for _, m := range f.GetMetric() {
		matched := 0
		for _, lp := range m.GetLabel() {
			if labels[lp.GetName()] == lp.GetValue() {
				matched++
			}
		}
		if matched == len(labels) {
			return m.GetCounter().GetValue()
		}
	}
	return 0
}
