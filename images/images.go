// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package images compares the container images a network needs against
// the images available on this machine.
package images

import (
	"context"
	"sort"
	"strings"
)

// Set of image identifiers, e.g. "lnd:0.17".
type Set map[string]struct{}

func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	s.Add(ids...)
	return s
}

func (s Set) Add(ids ...string) {
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		s[id] = struct{}{}
	}
}

// Contains ignores surrounding spaces, as Add does.
func (s Set) Contains(id string) bool {
	_, ok := s[strings.TrimSpace(id)]
	return ok
}

func (s Set) Len() int { return len(s) }

// List returns the images sorted.
func (s Set) List() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s Set) String() string {
	return strings.Join(s.List(), ", ")
}

// Missing returns the distinct images in [required] that are not in
// [available]. An empty result means nothing needs to be pulled.
// Missing never caches: [available] may change between calls.
func Missing(required []string, available Set) Set {
	missing := Set{}
	for _, id := range required {
		if !available.Contains(id) {
			missing.Add(id)
		}
	}
	return missing
}

// Provider reports which images are currently available.
type Provider interface {
	AvailableImages(ctx context.Context) (Set, error)
}

// ProviderFunc adapts a function to a Provider.
type ProviderFunc func(ctx context.Context) (Set, error)

func (f ProviderFunc) AvailableImages(ctx context.Context) (Set, error) { return f(ctx) }

// Static returns a Provider that always reports [ids].
func Static(ids ...string) Provider {
	return ProviderFunc(func(context.Context) (Set, error) {
		return NewSet(ids...), nil
	})
}
