// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"fmt"
	"sync"
)

// opLocks allows one lifecycle operation per network at a time.
// A second operation fails instead of queueing behind the first.
type opLocks struct {
	lock sync.Mutex
	// network ID --> name of the operation holding it
	inFlight map[uint64]string
}

func newOpLocks() *opLocks {
	return &opLocks{inFlight: make(map[uint64]string)}
}

// tryAcquire returns a release func, or ErrOperationInProgress.
func (o *opLocks) tryAcquire(id uint64, op string) (func(), error) {
	o.lock.Lock()
	defer o.lock.Unlock()

	if holder, busy := o.inFlight[id]; busy {
		return nil, fmt.Errorf("%w: %s is running on network %d", ErrOperationInProgress, holder, id)
	}
	o.inFlight[id] = op

	var once sync.Once
	return func() {
		once.Do(func() {
			o.lock.Lock()
			delete(o.inFlight, id)
			o.lock.Unlock()
		})
	}, nil
}

// holder returns the operation in flight on [id], if any.
func (o *opLocks) holder(id uint64) (string, bool) {
	o.lock.Lock()
	defer o.lock.Unlock()
	op, ok := o.inFlight[id]
	return op, ok
}
