// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.
package ux

import (
	"fmt"

	"github.com/lnsim/ln-network-runner/pkg/color"
	"go.uber.org/zap"
)

// Print writes the message to stdout and the log.
// [msg] may carry formatter styles, e.g. "{{green}}ok{{/}}".
func Print(log *zap.Logger, msg string, args ...interface{}) {
	color.Outf(msg+"\n", args...)
	log.Debug(fmt.Sprintf(msg, args...))
}
