// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

// Package docker discovers collection targets from the Docker daemon.
package docker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"k8s.io/utils/clock"

	"github.com/elba-docker/radvisor/internal/cgroup"
	"github.com/elba-docker/radvisor/internal/provider"
	"github.com/elba-docker/radvisor/internal/target"
)

const providerName = "docker"

const connectionSuggestion = "Could not connect to the docker socket. " +
	"Are you running rAdvisor as root? " +
	"If running at a non-standard URL, set DOCKER_HOST to the correct URL."

// Docker lists running containers from the daemon at DOCKER_HOST (defaulting
// to the local unix socket) and resolves each one's cgroup
type Docker struct {
	logger   *slog.Logger
	client   client.APIClient
	resolver *cgroup.Resolver
	cache    *provider.MetadataCache
	clock    clock.PassiveClock
}

var _ provider.Provider = (*Docker)(nil)

type Opts struct {
	logger       *slog.Logger
	clock        clock.PassiveClock
	pollInterval time.Duration
	client       client.APIClient
}

type OptionFn func(*Opts)

func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) { o.logger = logger }
}

func WithClock(c clock.PassiveClock) OptionFn {
	return func(o *Opts) { o.clock = c }
}

func WithPollInterval(d time.Duration) OptionFn {
	return func(o *Opts) { o.pollInterval = d }
}

// WithClient overrides the API client (used by tests)
func WithClient(c client.APIClient) OptionFn {
	return func(o *Opts) { o.client = c }
}

func defaultOpts() Opts {
	return Opts{
		logger:       slog.Default(),
		clock:        clock.RealClock{},
		pollInterval: time.Second,
	}
}

func New(resolver *cgroup.Resolver, opts ...OptionFn) *Docker {
	opt := defaultOpts()
	for _, apply := range opts {
		apply(&opt)
	}

	return &Docker{
		logger:   opt.logger.With("provider", providerName),
		client:   opt.client,
		resolver: resolver,
		cache:    provider.NewMetadataCache(opt.pollInterval, opt.clock),
		clock:    opt.clock,
	}
}

func (d *Docker) Name() string {
	return providerName
}

// Init connects to the daemon and pings it to make sure the current process
// can actually reach the socket
func (d *Docker) Init(ctx context.Context) error {
	d.logger.Info("Initializing Docker API provider")

	if d.client == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return fmt.Errorf("%s: %w", connectionSuggestion, err)
		}
		d.client = cli
	}

	if _, err := d.client.Ping(ctx); err != nil {
		return fmt.Errorf("%s: %w", connectionSuggestion, err)
	}
	return nil
}

// Fetch lists the currently-running containers and converts each one whose
// cgroup resolves into a target
func (d *Docker) Fetch(ctx context.Context) ([]*target.Target, error) {
	containers, err := d.client.ContainerList(ctx, types.ContainerListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	targets := make([]*target.Target, 0, len(containers))
	for i := range containers {
		if t := d.convert(&containers[i]); t != nil {
			targets = append(targets, t)
		}
	}
	d.cache.Prune()

	d.logger.Debug("Received containers from the Docker API",
		"listed", len(containers), "converted", len(targets))
	return targets, nil
}

func (d *Docker) convert(c *types.Container) *target.Target {
	path, err := d.resolver.Resolve(cgroup.Candidates{
		Cgroupfs: "docker/" + c.ID,
		Systemd:  "system.slice/docker-" + c.ID + ".scope",
	})
	if err != nil {
		d.logger.Debug("Skipping container without resolvable cgroup",
			"container", containerName(c), "error", err)
		return nil
	}

	return &target.Target{
		ID:       c.ID,
		Name:     containerName(c),
		Provider: providerName,
		Metadata: d.cache.Get(c.ID, func() any { return metadataFor(c) }),
		Cgroup:   path,
		PolledAt: d.clock.Now().UnixNano(),
	}
}

// containerMetadata is the Metadata block of the log file header for Docker
// targets, preserving the daemon's view of the container verbatim
type containerMetadata struct {
	Id         string            `yaml:"Id"`
	Names      []string          `yaml:"Names,omitempty"`
	Image      string            `yaml:"Image"`
	ImageId    string            `yaml:"ImageId,omitempty"`
	Command    string            `yaml:"Command,omitempty"`
	Created    int64             `yaml:"Created"`
	Ports      []string          `yaml:"Ports,omitempty"`
	Labels     map[string]string `yaml:"Labels,omitempty"`
	State      string            `yaml:"State,omitempty"`
	Status     string            `yaml:"Status,omitempty"`
	SizeRw     int64             `yaml:"SizeRw,omitempty"`
	SizeRootFs int64             `yaml:"SizeRootFs,omitempty"`
}

func metadataFor(c *types.Container) containerMetadata {
	ports := make([]string, 0, len(c.Ports))
	for _, p := range c.Ports {
		ports = append(ports, formatPort(p))
	}

	return containerMetadata{
		Id:         c.ID,
		Names:      c.Names,
		Image:      c.Image,
		ImageId:    c.ImageID,
		Command:    c.Command,
		Created:    c.Created,
		Ports:      ports,
		Labels:     c.Labels,
		State:      c.State,
		Status:     c.Status,
		SizeRw:     c.SizeRw,
		SizeRootFs: c.SizeRootFs,
	}
}

func formatPort(p types.Port) string {
	if p.PublicPort != 0 {
		ip := p.IP
		if ip == "" {
			ip = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d->%d/%s", ip, p.PublicPort, p.PrivatePort, p.Type)
	}
	return fmt.Sprintf("%d/%s", p.PrivatePort, p.Type)
}

func containerName(c *types.Container) string {
	if len(c.Names) > 0 {
		return strings.TrimPrefix(c.Names[0], "/")
	}
	return c.ID
}
