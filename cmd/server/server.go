// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package server

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/lnsim/ln-network-runner/network"
	"github.com/lnsim/ln-network-runner/pkg/logutil"
	"github.com/lnsim/ln-network-runner/server"
	"github.com/lnsim/ln-network-runner/utils"
	"github.com/lnsim/ln-network-runner/utils/constants"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func init() {
	cobra.EnablePrefixMatching = true
}

const (
	configFileKey         = "config"
	logLevelKey           = "log-level"
	logEncodingKey        = "log-encoding"
	portKey               = "port"
	gwPortKey             = "gateway-port"
	gwDisabledKey         = "disable-gateway"
	dialTimeoutKey        = "dial-timeout"
	dataDirKey            = "data-dir"
	inMemoryKey           = "in-memory"
	natsURLKey            = "nats-url"
	driverKey             = "driver"
	bitcoindPathKey       = "bitcoind-path"
	lndPathKey            = "lnd-path"
	executablesKey        = "executables"
	disableNodesOutputKey = "disable-nodes-output"
	simulatedImagesKey    = "simulated-images"
	requireImagesKey      = "require-images"
	readyTimeoutKey       = "ready-timeout"
	readyPollIntervalKey  = "ready-poll-interval"
	maxConcurrencyKey     = "max-concurrency"
	tracingKey            = "tracing"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server [options]",
		Short: "Start a network runner server.",
		Long: "Start a network runner server. Every flag may also be set with an " +
			"LNR_ environment variable, e.g. LNR_NATS_URL, or in the --config file.",
		RunE: serverFunc,
		Args: cobra.ExactArgs(0),
	}
	addFlags(cmd.PersistentFlags())
	return cmd
}

func addFlags(fs *pflag.FlagSet) {
	fs.String(configFileKey, "", "config file (yaml, json or toml)")
	fs.String(logLevelKey, logutil.DefaultLogLevel.String(), "log level for server logs")
	fs.String(logEncodingKey, "json", "log encoding, json or console")
	fs.String(portKey, constants.DefaultPort, "server port")
	fs.String(gwPortKey, constants.DefaultGwPort, "HTTP gateway port")
	fs.Bool(gwDisabledKey, false, "true to disable the HTTP gateway (overrides --gateway-port)")
	fs.Duration(dialTimeoutKey, 10*time.Second, "server dial timeout")
	fs.String(dataDirKey, constants.BaseDataDir, "directory holding the network database and the node data")
	fs.Bool(inMemoryKey, false, "true to keep networks in memory only")
	fs.String(natsURLKey, "", "[optional] NATS server to also publish network events to")
	fs.String(driverKey, server.DriverSimulated, "node process driver, simulated or local")
	fs.String(bitcoindPathKey, "bitcoind", "executable running the default bitcoin image, for the local driver")
	fs.String(lndPathKey, "lnd", "executable running the default lightning image, for the local driver")
	fs.StringToString(executablesKey, nil, "[optional] more image=executable pairs, for the local driver")
	fs.Bool(disableNodesOutputKey, false, "true to disable nodes stdout/stderr")
	fs.StringSlice(simulatedImagesKey, []string{constants.DefaultBitcoinImage, constants.DefaultLightningImage}, "images the simulated driver has")
	fs.Bool(requireImagesKey, true, "true to refuse starting networks with missing images")
	fs.Duration(readyTimeoutKey, network.DefaultReadyTimeout, "how long a node may take to become ready")
	fs.Duration(readyPollIntervalKey, network.DefaultReadyPollInterval, "how often node readiness is checked")
	fs.Int(maxConcurrencyKey, network.DefaultMaxConcurrency, "max nodes started or stopped at once")
	fs.Bool(tracingKey, false, "true to print trace spans to stdout")
}

// buildViper layers flags over LNR_ env vars over the config file.
func buildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix(constants.EnvPrefix)
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("couldn't bind flags: %w", err)
	}
	if configFile := v.GetString(configFileKey); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("couldn't read config file %s: %w", configFile, err)
		}
	}
	return v, nil
}

func buildConfig(v *viper.Viper) server.Config {
	dataDir := v.GetString(dataDirKey)

	executables := map[string]string{
		constants.DefaultBitcoinImage:   v.GetString(bitcoindPathKey),
		constants.DefaultLightningImage: v.GetString(lndPathKey),
	}
	for image, executable := range v.GetStringMapString(executablesKey) {
		executables[image] = executable
	}

	cfg := server.Config{
		Port:                v.GetString(portKey),
		GwPort:              v.GetString(gwPortKey),
		GwDisabled:          v.GetBool(gwDisabledKey),
		DialTimeout:         v.GetDuration(dialTimeoutKey),
		NatsURL:             v.GetString(natsURLKey),
		Driver:              v.GetString(driverKey),
		Executables:         executables,
		DataDir:             dataDir,
		RedirectNodesOutput: !v.GetBool(disableNodesOutputKey),
		SimulatedImages:     v.GetStringSlice(simulatedImagesKey),
		RequireImages:       v.GetBool(requireImagesKey),
		ReadyTimeout:        v.GetDuration(readyTimeoutKey),
		ReadyPollInterval:   v.GetDuration(readyPollIntervalKey),
		MaxConcurrency:      v.GetInt(maxConcurrencyKey),
		Tracing:             v.GetBool(tracingKey),
	}
	if !v.GetBool(inMemoryKey) {
		cfg.DBPath = filepath.Join(dataDir, "db")
	}
	return cfg
}

func serverFunc(cmd *cobra.Command, _ []string) error {
	v, err := buildViper(cmd.Flags())
	if err != nil {
		return err
	}

	log, err := logutil.NewLogger(v.GetString(logLevelKey), v.GetString(logEncodingKey))
	if err != nil {
		return err
	}
	log = log.Named(constants.LogNameMain)

	s, err := server.New(buildConfig(v), log)
	if err != nil {
		return err
	}

	// on SIGINT or SIGTERM, Run stops every network before returning
	ctx, cancel := utils.SignalContext(context.Background(), log)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		log.Error("server Run error", zap.Error(err))
		return err
	}
	log.Warn("closed server")
	_ = log.Sync()
	return nil
}
