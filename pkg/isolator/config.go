package isolator

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"netisolator/pkg/cniplugin"
	"netisolator/pkg/layout"
	"netisolator/pkg/mount"
)

// Config is the construction-time configuration a containerizer supplies,
// either directly (embedding this core as a library) or via
// cmd/netisolatorctl's CLI flags.
type Config struct {
	// StateRootDir is the isolator's exclusively-owned state root, R in
	// §4.1. Required.
	StateRootDir string

	// PluginDir is the CNI plugin binary directory. Leave empty along with
	// ConfigDir to run in degenerate (host-network-only) mode, §4.3.
	PluginDir string

	// ConfigDir is the CNI network configuration directory, §4.3.
	ConfigDir string
}

// Isolator is the public contract's implementation: the lifecycle engine,
// its ContainerInfo table, and the collaborators (path layout, mount
// propagation, plugin invocation) it fans work out to.
type Isolator struct {
	mu         sync.Mutex
	containers map[string]*ContainerInfo

	configs map[string]*cniplugin.NetworkConfig
	paths   *layout.Paths
	mounter mount.Mounter
	invoker cniplugin.Invoker

	log *logrus.Entry
}

// New constructs an Isolator: it prepares mount propagation on the state
// root (§4.2) and loads the CNI network configuration (§4.3), both once,
// synchronously, before returning. A configuration error here is fatal to
// construction (§7).
func New(cfg Config) (*Isolator, error) {
	return newIsolator(cfg, mount.New(), nil)
}

// newIsolator is the fully-injectable constructor tests use to substitute
// a fake Mounter and/or Invoker, so the engine is exercisable without root
// or real plugin binaries.
func newIsolator(cfg Config, mounter mount.Mounter, invoker cniplugin.Invoker) (*Isolator, error) {
	if cfg.StateRootDir == "" {
		return nil, fmt.Errorf("a state root directory is required")
	}

	if err := mounter.Setup(cfg.StateRootDir); err != nil {
		return nil, fmt.Errorf("preparing state root %s: %w", cfg.StateRootDir, err)
	}

	loader := cniplugin.NewLoader(cfg.PluginDir, cfg.ConfigDir)
	configs, err := loader.Load()
	if err != nil {
		return nil, err
	}

	if invoker == nil {
		invoker = cniplugin.NewInvoker(cfg.PluginDir)
	}

	return &Isolator{
		containers: make(map[string]*ContainerInfo),
		configs:    configs,
		paths:      layout.New(cfg.StateRootDir),
		mounter:    mounter,
		invoker:    invoker,
		log:        logrus.WithField("component", "isolator"),
	}, nil
}
