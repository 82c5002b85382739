// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

// Package kubernetes discovers collection targets from the Kubernetes API:
// one target per pod scheduled on the local node.
package kubernetes

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
	"k8s.io/utils/clock"

	"github.com/elba-docker/radvisor/internal/cgroup"
	"github.com/elba-docker/radvisor/internal/provider"
	"github.com/elba-docker/radvisor/internal/target"
)

const providerName = "kubernetes"

// hostnameLabel is the well-known node label used to map the local hostname
// to a node object
const hostnameLabel = "kubernetes.io/hostname"

// rootCgroup is the parent cgroup the kubelet places all pods under
const rootCgroup = "kubepods"

// Kubernetes lists the pods scheduled on the local node and resolves each
// pod's cgroup from its uid and quality-of-service class
type Kubernetes struct {
	logger         *slog.Logger
	clientset      kubernetes.Interface
	resolver       *cgroup.Resolver
	cache          *provider.MetadataCache
	clock          clock.PassiveClock
	kubeConfigPath string

	nodeName string
}

var _ provider.Provider = (*Kubernetes)(nil)

type Opts struct {
	logger         *slog.Logger
	clock          clock.PassiveClock
	pollInterval   time.Duration
	kubeConfigPath string
	clientset      kubernetes.Interface
	nodeName       string
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

// WithKubeConfig sets an explicit kubeconfig path instead of auto-detection
func WithKubeConfig(path string) OptionFn {
	return func(o *Opts) { o.kubeConfigPath = path }
}

// WithClientset overrides the API client (used by tests)
func WithClientset(clientset kubernetes.Interface) OptionFn {
	return func(o *Opts) { o.clientset = clientset }
}

// WithNodeName skips node auto-detection (used by tests)
func WithNodeName(name string) OptionFn {
	return func(o *Opts) { o.nodeName = name }
}

func defaultOpts() Opts {
	return Opts{
		logger:       slog.Default(),
		clock:        clock.RealClock{},
		pollInterval: time.Second,
	}
}

func New(resolver *cgroup.Resolver, opts ...OptionFn) *Kubernetes {
	opt := defaultOpts()
	for _, apply := range opts {
		apply(&opt)
	}

	return &Kubernetes{
		logger:         opt.logger.With("provider", providerName),
		clientset:      opt.clientset,
		resolver:       resolver,
		cache:          provider.NewMetadataCache(opt.pollInterval, opt.clock),
		clock:          opt.clock,
		kubeConfigPath: opt.kubeConfigPath,
		nodeName:       opt.nodeName,
	}
}

func (k *Kubernetes) Name() string {
	return providerName
}

// Init loads the cluster config, builds the clientset and determines the
// local node's name from the machine hostname
func (k *Kubernetes) Init(ctx context.Context) error {
	k.logger.Info("Initializing Kubernetes API provider")

	if k.clientset == nil {
		cfg, err := buildConfig(k.kubeConfigPath)
		if err != nil {
			return fmt.Errorf("could not load kubernetes config; make sure the current "+
				"machine is part of a cluster and has the cluster configuration: %w", err)
		}
		clientset, err := kubernetes.NewForConfig(cfg)
		if err != nil {
			return fmt.Errorf("could not create kubernetes client: %w", err)
		}
		k.clientset = clientset
	}

	if k.nodeName == "" {
		nodeName, err := k.detectNodeName(ctx)
		if err != nil {
			return err
		}
		k.nodeName = nodeName
	}
	k.logger.Info("Resolved local node", "node", k.nodeName)

	return nil
}

// buildConfig resolves the cluster configuration: an explicit path wins,
// then KUBECONFIG, then ~/.kube/config, then the in-cluster service account
func buildConfig(explicit string) (*rest.Config, error) {
	if explicit != "" {
		return clientcmd.BuildConfigFromFlags("", explicit)
	}
	if env := os.Getenv("KUBECONFIG"); env != "" {
		return clientcmd.BuildConfigFromFlags("", env)
	}
	if home := homedir.HomeDir(); home != "" {
		path := filepath.Join(home, ".kube", "config")
		if _, err := os.Stat(path); err == nil {
			return clientcmd.BuildConfigFromFlags("", path)
		}
	}
	return rest.InClusterConfig()
}

// detectNodeName maps the machine hostname to a node via the well-known
// kubernetes.io/hostname label
func (k *Kubernetes) detectNodeName(ctx context.Context) (string, error) {
	hostname := os.Getenv("HOSTNAME")
	if hostname == "" {
		var err error
		if hostname, err = os.Hostname(); err != nil {
			return "", fmt.Errorf("could not retrieve hostname for node detection: %w", err)
		}
	}

	nodes, err := k.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("could not fetch the list of nodes in the cluster: %w", err)
	}
	for i := range nodes.Items {
		node := &nodes.Items[i]
		if node.Labels[hostnameLabel] == hostname {
			return node.Name, nil
		}
	}
	return "", fmt.Errorf("could not find a node matching hostname %q; "+
		"make sure the current machine is running its own node", hostname)
}

// Fetch lists the pods scheduled on the local node and converts each one
// whose QoS class is known and whose cgroup resolves into a target
func (k *Kubernetes) Fetch(ctx context.Context) ([]*target.Target, error) {
	pods, err := k.clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{
		FieldSelector: "spec.nodeName=" + k.nodeName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods on node %s: %w", k.nodeName, err)
	}

	targets := make([]*target.Target, 0, len(pods.Items))
	for i := range pods.Items {
		if t := k.convert(&pods.Items[i]); t != nil {
			targets = append(targets, t)
		}
	}
	k.cache.Prune()

	k.logger.Debug("Received pods from the Kubernetes API",
		"listed", len(pods.Items), "converted", len(targets))
	return targets, nil
}

func (k *Kubernetes) convert(pod *corev1.Pod) *target.Target {
	uid := string(pod.UID)
	if uid == "" {
		k.logger.Debug("Skipping pod without uid", "pod", pod.Name)
		return nil
	}

	qos := qosSlice(pod.Status.QOSClass)
	if qos == "" {
		k.logger.Debug("Skipping pod with unknown quality of service class",
			"pod", pod.Name, "qosClass", string(pod.Status.QOSClass))
		return nil
	}

	path, err := k.resolver.Resolve(cgroup.Candidates{
		Cgroupfs: strings.Join([]string{rootCgroup, qos, "pod" + uid}, "/"),
		Systemd:  cgroup.SystemdSliceHierarchy(rootCgroup, qos, "pod"+uid),
	})
	if err != nil {
		k.logger.Debug("Skipping pod without resolvable cgroup",
			"pod", pod.Name, "error", err)
		return nil
	}

	return &target.Target{
		ID:       uid,
		Name:     pod.Name,
		Provider: providerName,
		Metadata: k.cache.Get(uid, func() any { return metadataFor(pod) }),
		Cgroup:   path,
		PolledAt: k.clock.Now().UnixNano(),
	}
}

// qosSlice converts a pod QoS class to its cgroup name component
func qosSlice(class corev1.PodQOSClass) string {
	switch class {
	case corev1.PodQOSGuaranteed:
		return "guaranteed"
	case corev1.PodQOSBurstable:
		return "burstable"
	case corev1.PodQOSBestEffort:
		return "besteffort"
	default:
		return ""
	}
}

// podMetadata is the Metadata block of the log file header for Kubernetes
// targets
type podMetadata struct {
	Uid       string            `yaml:"Uid"`
	Name      string            `yaml:"Name"`
	CreatedAt string            `yaml:"CreatedAt,omitempty"`
	Labels    map[string]string `yaml:"Labels,omitempty"`
	Namespace string            `yaml:"Namespace"`
	NodeName  string            `yaml:"NodeName,omitempty"`
	HostIp    string            `yaml:"HostIp,omitempty"`
	Phase     string            `yaml:"Phase,omitempty"`
	QosClass  string            `yaml:"QosClass,omitempty"`
	StartedAt string            `yaml:"StartedAt,omitempty"`
}

func metadataFor(pod *corev1.Pod) podMetadata {
	meta := podMetadata{
		Uid:       string(pod.UID),
		Name:      pod.Name,
		CreatedAt: formatTime(&pod.CreationTimestamp),
		Labels:    pod.Labels,
		Namespace: pod.Namespace,
		NodeName:  pod.Spec.NodeName,
		HostIp:    pod.Status.HostIP,
		Phase:     string(pod.Status.Phase),
		QosClass:  string(pod.Status.QOSClass),
		StartedAt: formatTime(pod.Status.StartTime),
	}
	return meta
}

func formatTime(t *metav1.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
