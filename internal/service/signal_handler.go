// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
)

// SignalHandler translates OS interrupts into run-group termination: when a
// signal arrives its Run returns, interrupting every other actor. The signal
// that caused termination is retained so main can map it to an exit code.
type SignalHandler struct {
	logger   *slog.Logger
	signals  []os.Signal
	received atomic.Value // os.Signal
}

func NewSignalHandler(logger *slog.Logger, signals ...os.Signal) *SignalHandler {
	return &SignalHandler{
		logger:  logger,
		signals: signals,
	}
}

func (sh *SignalHandler) Name() string {
	return "signal-handler"
}

func (sh *SignalHandler) Run(ctx context.Context) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, sh.signals...)
	defer signal.Stop(c)

	sh.logger.Info("Press Ctrl+C to shutdown")

	select {
	case sig := <-c:
		sh.received.Store(sig)
		sh.logger.Info("Received signal; shutting down", "signal", sig.String())
		return nil

	case <-ctx.Done():
		return ctx.Err()
	}
}

// Received returns the signal that terminated the run group, or nil
func (sh *SignalHandler) Received() os.Signal {
	sig, _ := sh.received.Load().(os.Signal)
	return sig
}
