// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

package service

import "context"

// Service is the minimal contract shared by everything the agent runs:
// the poller, the sampler, the flush-log writer and the providers.
type Service interface {
	// Name returns the name of the service
	Name() string
}

// Initializer is implemented by services that need one-time setup
// before the run group starts
type Initializer interface {
	Service
	Init() error
}

// Runner is implemented by services that run in the background.
// Run blocks until the context is cancelled or the service fails.
type Runner interface {
	Service
	Run(ctx context.Context) error
}

// Shutdowner is implemented by services that hold resources
// which must be released on teardown
type Shutdowner interface {
	Service
	Shutdown() error
}
