// Package cniplugin loads CNI network configuration files and invokes CNI
// plugin binaries, the two leaf concerns §4.3 and §4.4 describe.
package cniplugin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/containernetworking/cni/pkg/types"
)

// NetworkConfig is an immutable, loaded network configuration. Its name is
// unique within the Loader that produced it (invariant 1, §3).
type NetworkConfig struct {
	name      string
	pluginBin string
	ipamBin   string
	raw       []byte
	path      string
}

// Name is the unique network name, as referenced by container specs.
func (c *NetworkConfig) Name() string { return c.name }

// PluginBinary is the plugin binary name (not a path) declared by "type".
func (c *NetworkConfig) PluginBinary() string { return c.pluginBin }

// IPAMBinary is the optional "ipam.type" binary name; empty if unset.
func (c *NetworkConfig) IPAMBinary() string { return c.ipamBin }

// Raw is the original serialized configuration bytes, used verbatim as
// plugin stdin (§4.4).
func (c *NetworkConfig) Raw() []byte { return c.raw }

// Path is the source file this config was loaded from, retained for
// diagnostics only (§3).
func (c *NetworkConfig) Path() string { return c.path }

// NewNetworkConfig constructs a NetworkConfig directly from already-parsed
// fields, for callers that build configuration programmatically instead of
// through Loader.Load (e.g. tests, or an embedding caller that already has
// its own config source). path is left empty.
func NewNetworkConfig(name, pluginBinary, ipamBinary string, raw []byte) *NetworkConfig {
	return &NetworkConfig{
		name:      name,
		pluginBin: pluginBinary,
		ipamBin:   ipamBinary,
		raw:       raw,
	}
}

// Loader scans a config directory once at construction time and validates
// every referenced plugin (and optional IPAM plugin) binary exists and is
// executable (§4.3).
type Loader struct {
	pluginDir string
	configDir string
}

// NewLoader returns a Loader for the given plugin binary directory and
// network configuration directory. Both may be empty, which Degenerate
// reports; Load rejects a Loader with only one of the two set.
func NewLoader(pluginDir, configDir string) *Loader {
	return &Loader{pluginDir: pluginDir, configDir: configDir}
}

// Degenerate reports whether neither directory was configured, in which
// case this core acts as a pass-through and rejects any named network at
// prepare time (§4.3, §6).
func (l *Loader) Degenerate() bool {
	return l.pluginDir == "" && l.configDir == ""
}

// PluginDir returns the configured plugin binary directory.
func (l *Loader) PluginDir() string { return l.pluginDir }

// Load parses every regular file in the config directory into a
// NetworkConfig, validating plugin executability and name uniqueness. In
// degenerate mode it returns an empty map and no error.
func (l *Loader) Load() (map[string]*NetworkConfig, error) {
	if l.Degenerate() {
		return map[string]*NetworkConfig{}, nil
	}

	if os.Geteuid() != 0 {
		return nil, fmt.Errorf("the network isolator requires root privilege when a CNI configuration is supplied")
	}

	if l.pluginDir == "" || l.configDir == "" {
		return nil, fmt.Errorf("both a CNI plugin directory and a CNI config directory are required once either is set")
	}

	if _, err := os.Stat(l.pluginDir); err != nil {
		return nil, fmt.Errorf("CNI plugin directory %s: %w", l.pluginDir, err)
	}
	if _, err := os.Stat(l.configDir); err != nil {
		return nil, fmt.Errorf("CNI config directory %s: %w", l.configDir, err)
	}

	pluginEntries, err := os.ReadDir(l.pluginDir)
	if err != nil {
		return nil, fmt.Errorf("listing CNI plugin directory %s: %w", l.pluginDir, err)
	}
	if len(pluginEntries) == 0 {
		return nil, fmt.Errorf("CNI plugin directory %s is empty", l.pluginDir)
	}

	configEntries, err := os.ReadDir(l.configDir)
	if err != nil {
		return nil, fmt.Errorf("listing CNI config directory %s: %w", l.configDir, err)
	}

	configs := make(map[string]*NetworkConfig)
	for _, entry := range configEntries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(l.configDir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading CNI config %s: %w", path, err)
		}

		var netConf types.NetConf
		if err := json.Unmarshal(raw, &netConf); err != nil {
			return nil, fmt.Errorf("parsing CNI config %s: %w", path, err)
		}
		if netConf.Name == "" {
			return nil, fmt.Errorf("CNI config %s has no network name", path)
		}
		if netConf.Type == "" {
			return nil, fmt.Errorf("CNI config %s has no plugin type", path)
		}

		if _, exists := configs[netConf.Name]; exists {
			return nil, fmt.Errorf("duplicate CNI network name %q (second definition in %s)", netConf.Name, path)
		}

		if err := l.requireExecutable(netConf.Type); err != nil {
			return nil, fmt.Errorf("network %q: %w", netConf.Name, err)
		}
		if netConf.IPAM.Type != "" {
			if err := l.requireExecutable(netConf.IPAM.Type); err != nil {
				return nil, fmt.Errorf("network %q ipam: %w", netConf.Name, err)
			}
		}

		configs[netConf.Name] = &NetworkConfig{
			name:      netConf.Name,
			pluginBin: netConf.Type,
			ipamBin:   netConf.IPAM.Type,
			raw:       raw,
			path:      path,
		}
	}

	if len(configs) == 0 {
		return nil, fmt.Errorf("no valid CNI network configurations found in %s", l.configDir)
	}

	return configs, nil
}

func (l *Loader) requireExecutable(binary string) error {
	path := filepath.Join(l.pluginDir, binary)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("plugin binary %s: %w", path, err)
	}
	if info.Mode()&0o111 == 0 {
		return fmt.Errorf("plugin binary %s is not executable", path)
	}
	return nil
}
