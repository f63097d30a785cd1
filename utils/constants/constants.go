// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.
package constants

import (
	"os"
	"path/filepath"
)

const (
	LogNameMain    = "main"
	LogNameControl = "control"
	LogNameTest    = "test"

	EnvPrefix = "lnr"

	DefaultBitcoinImage   = "bitcoind:24"
	DefaultLightningImage = "lnd:0.17"
	DefaultNumBitcoin     = 1
	DefaultNumLightning   = 2

	DefaultPort   = ":8080"
	DefaultGwPort = ":8081"
)

var BaseDataDir = filepath.Join(os.ExpandEnv("$HOME"), ".ln-network-runner")
