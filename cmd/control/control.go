// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lnsim/ln-network-runner/client"
	"github.com/lnsim/ln-network-runner/network"
	"github.com/lnsim/ln-network-runner/network/node"
	"github.com/lnsim/ln-network-runner/network/node/status"
	"github.com/lnsim/ln-network-runner/pkg/color"
	"github.com/lnsim/ln-network-runner/pkg/logutil"
	"github.com/lnsim/ln-network-runner/rpcpb"
	"github.com/lnsim/ln-network-runner/utils"
	"github.com/lnsim/ln-network-runner/utils/constants"
	"github.com/lnsim/ln-network-runner/ux"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func init() {
	cobra.EnablePrefixMatching = true
}

var (
	logLevel       string
	endpoint       string
	dialTimeout    time.Duration
	requestTimeout time.Duration
)

var errAborted = errors.New("aborted")

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "control [options]",
		Short: "Manage the networks of a network runner server.",
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", logutil.DefaultLogLevel.String(), "log level")
	cmd.PersistentFlags().StringVar(&endpoint, "endpoint", "0.0.0.0"+constants.DefaultPort, "server endpoint")
	cmd.PersistentFlags().DurationVar(&dialTimeout, "dial-timeout", 10*time.Second, "server dial timeout")
	cmd.PersistentFlags().DurationVar(&requestTimeout, "request-timeout", 3*time.Minute, "client request timeout")

	cmd.AddCommand(
		newCreateCommand(),
		newListCommand(),
		newFindCommand(),
		newStartCommand(),
		newStopCommand(),
		newRenameCommand(),
		newRemoveCommand(),
		newMissingImagesCommand(),
		newWatchCommand(),
	)

	return cmd
}

var (
	numBitcoin     uint32
	numLightning   uint32
	bitcoinImage   string
	lightningImage string
	nodeSpecs      []string
)

func newCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create name [options]",
		Short: "Creates a stopped network.",
		RunE:  createFunc,
		Args:  cobra.ExactArgs(1),
	}
	cmd.PersistentFlags().Uint32Var(
		&numBitcoin,
		"bitcoin-nodes",
		constants.DefaultNumBitcoin,
		"number of bitcoin nodes, named backend-1, backend-2...",
	)
	cmd.PersistentFlags().Uint32Var(
		&numLightning,
		"lightning-nodes",
		constants.DefaultNumLightning,
		"number of lightning nodes, named alice, bob...",
	)
	cmd.PersistentFlags().StringVar(
		&bitcoinImage,
		"bitcoin-image",
		constants.DefaultBitcoinImage,
		"image of the bitcoin nodes",
	)
	cmd.PersistentFlags().StringVar(
		&lightningImage,
		"lightning-image",
		constants.DefaultLightningImage,
		"image of the lightning nodes",
	)
	cmd.PersistentFlags().StringSliceVar(
		&nodeSpecs,
		"node",
		nil,
		"[optional] id:kind:image of every node, e.g. chain:bitcoin-daemon:bitcoind:24. Overrides the other options",
	)
	return cmd
}

// parseNodeSpec parses "id:kind:image". The image may itself contain ':'.
func parseNodeSpec(spec string) (node.Config, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 {
		return node.Config{}, fmt.Errorf("invalid node %q, expected id:kind:image", spec)
	}
	cfg := node.Config{ID: parts[0], Kind: node.Kind(parts[1]), Image: parts[2]}
	if err := cfg.Validate(); err != nil {
		return node.Config{}, fmt.Errorf("invalid node %q: %w", spec, err)
	}
	return cfg, nil
}

func createFunc(_ *cobra.Command, args []string) error {
	opts := []client.OpOption{
		client.WithNumBitcoin(numBitcoin),
		client.WithNumLightning(numLightning),
		client.WithBitcoinImage(bitcoinImage),
		client.WithLightningImage(lightningImage),
	}
	for _, spec := range nodeSpecs {
		cfg, err := parseNodeSpec(spec)
		if err != nil {
			return err
		}
		opts = append(opts, client.WithNodes(cfg))
	}

	return withClient(func(ctx context.Context, cli client.Client) error {
		info, err := cli.Create(ctx, args[0], opts...)
		if err != nil {
			return err
		}
		color.Outf("{{green}}created network{{/}} %d\n", info.Id)
		printNetwork(info)
		return nil
	})
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists the networks.",
		RunE:  listFunc,
		Args:  cobra.ExactArgs(0),
	}
}

func listFunc(*cobra.Command, []string) error {
	return withClient(func(ctx context.Context, cli client.Client) error {
		networks, err := cli.List(ctx)
		if err != nil {
			return err
		}
		if len(networks) == 0 {
			color.Outf("{{gray}}no networks{{/}}\n")
			return nil
		}
		for _, info := range networks {
			color.Outf("%d\t{{bold}}%s{{/}}\t%s\t%s\n", info.Id, info.Name, styledStatus(info.Status), info.Summary)
		}
		return nil
	})
}

func newFindCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "find network-id",
		Short: "Shows a network and its nodes.",
		RunE:  findFunc,
		Args:  cobra.ExactArgs(1),
	}
}

func findFunc(_ *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withClient(func(ctx context.Context, cli client.Client) error {
		info, err := cli.Find(ctx, id)
		if err != nil {
			return err
		}
		printNetwork(info)
		return nil
	})
}

func newStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start network-id",
		Short: "Starts every node of a network, bitcoin nodes first.",
		RunE:  startFunc,
		Args:  cobra.ExactArgs(1),
	}
}

func startFunc(_ *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withClient(func(ctx context.Context, cli client.Client) error {
		resp, err := cli.Start(ctx, id)
		if resp == nil {
			return err
		}
		printNetwork(resp.Network)
		return nodeFailures(err)
	})
}

func newStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop network-id",
		Short: "Stops every node of a network, lightning nodes first.",
		RunE:  stopFunc,
		Args:  cobra.ExactArgs(1),
	}
}

func stopFunc(_ *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withClient(func(ctx context.Context, cli client.Client) error {
		resp, err := cli.Stop(ctx, id)
		if resp == nil {
			return err
		}
		printNetwork(resp.Network)
		return nodeFailures(err)
	})
}

func newRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename network-id new-name",
		Short: "Renames a network.",
		RunE:  renameFunc,
		Args:  cobra.ExactArgs(2),
	}
}

func renameFunc(_ *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withClient(func(ctx context.Context, cli client.Client) error {
		info, err := cli.Rename(ctx, id, args[1])
		if err != nil {
			return err
		}
		color.Outf("{{green}}renamed network{{/}} %d to {{bold}}%s{{/}}\n", info.Id, info.Name)
		return nil
	})
}

var assumeYes bool

func newRemoveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove network-id",
		Short: "Removes a stopped network and its node data.",
		RunE:  removeFunc,
		Args:  cobra.ExactArgs(1),
	}
	cmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "don't ask for confirmation")
	return cmd
}

func removeFunc(_ *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withClient(func(ctx context.Context, cli client.Client) error {
		info, err := cli.Find(ctx, id)
		if err != nil {
			return err
		}
		if !assumeYes {
			ok, err := confirm(os.Stdin, fmt.Sprintf("Remove network %d (%s)? Its node data will be deleted.", info.Id, info.Name))
			if err != nil {
				return err
			}
			if !ok {
				return errAborted
			}
		}
		if err := cli.Remove(ctx, id); err != nil {
			if errors.Is(err, network.ErrNetworkRunning) {
				color.Outf("{{yellow}}stop the network first:{{/}} control stop %d\n", id)
			}
			return err
		}
		color.Outf("{{green}}removed network{{/}} %d\n", id)
		return nil
	})
}

// confirm asks [question] and reads a y/N answer from [r].
func confirm(r io.Reader, question string) (bool, error) {
	color.Outf("{{yellow}}%s{{/}} [y/N] ", question)
	answer, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func newMissingImagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "missing-images network-id",
		Short: "Lists the images a network needs that aren't available.",
		RunE:  missingImagesFunc,
		Args:  cobra.ExactArgs(1),
	}
}

func missingImagesFunc(_ *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withClient(func(ctx context.Context, cli client.Client) error {
		missing, err := cli.MissingImages(ctx, id)
		if err != nil {
			return err
		}
		if len(missing) == 0 {
			color.Outf("{{green}}every image is available{{/}}\n")
			return nil
		}
		for _, image := range missing {
			color.Outf("{{red}}missing{{/}} %s\n", image)
		}
		return nil
	})
}

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [network-id]",
		Short: "Prints network changes as they happen, of every network if no id is given.",
		RunE:  watchFunc,
		Args:  cobra.MaximumNArgs(1),
	}
}

func watchFunc(_ *cobra.Command, args []string) error {
	var id uint64
	if len(args) == 1 {
		var err error
		if id, err = parseID(args[0]); err != nil {
			return err
		}
	}

	cli, log, err := newClient()
	if err != nil {
		return err
	}
	defer cli.Close()

	// stream until the request timeout or os signal
	sigCtx, stop := utils.SignalContext(context.Background(), log)
	defer stop()
	ctx, cancel := context.WithTimeout(sigCtx, requestTimeout)
	defer cancel()

	ch, err := cli.StreamStatus(ctx, id)
	if err != nil {
		return err
	}
	for ev := range ch {
		color.Outf("{{cyan}}%s{{/}} %s network %d {{bold}}%s{{/}} %s\n",
			ev.Time.Local().Format(time.TimeOnly), ev.Kind, ev.Network.Id, ev.Network.Name, styledStatus(ev.Network.Status))
	}
	return nil
}

func newClient() (client.Client, *zap.Logger, error) {
	log, err := logutil.NewLogger(logLevel, "console")
	if err != nil {
		return nil, nil, err
	}
	log = log.Named(constants.LogNameControl)
	cli, err := client.New(client.Config{
		Endpoint:    endpoint,
		DialTimeout: dialTimeout,
	}, log)
	if err != nil {
		return nil, nil, err
	}
	return cli, log, nil
}

func withClient(f func(context.Context, client.Client) error) error {
	cli, log, err := newClient()
	if err != nil {
		return err
	}
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := f(ctx, cli); err != nil {
		log.Debug("request failed", zap.Error(err))
		return err
	}
	return nil
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid network id %q", s)
	}
	return id, nil
}

func styledStatus(s string) string {
	st, err := status.Parse(s)
	if err != nil {
		return s
	}
	return color.Status(st)
}

func printNetwork(info *rpcpb.NetworkInfo) {
	log := zap.L()
	ux.Print(log, "{{bold}}%s{{/}} (%d) %s, %s", info.Name, info.Id, styledStatus(info.Status), info.Summary)
	if info.Operation != "" {
		ux.Print(log, "  {{yellow}}%s in progress{{/}}", info.Operation)
	}
	for _, n := range info.Nodes {
		ux.Print(log, "  %-12s %-18s %-14s %s", n.Id, n.Kind, n.Image, styledStatus(n.Status))
	}
}

// nodeFailures prints the node errors in [err] and returns an error if there
// were any.
func nodeFailures(err error) error {
	errs := multierr.Errors(err)
	if len(errs) == 0 {
		return nil
	}
	for _, e := range errs {
		var driverErr *network.DriverError
		if errors.As(e, &driverErr) {
			color.Outf("  {{red}}%s{{/}}: couldn't %s: %v\n", driverErr.NodeID, driverErr.Op, driverErr.Err)
			continue
		}
		color.Outf("  {{red}}%v{{/}}\n", e)
	}
	return fmt.Errorf("%d node(s) failed", len(errs))
}
