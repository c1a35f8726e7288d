package cniplugin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Command is a CNI verb.
type Command string

const (
	// Add is the CNI ADD command, attaching an interface to a namespace.
	Add Command = "ADD"
	// Del is the CNI DEL command, detaching an interface.
	Del Command = "DEL"
)

// defaultPATH is the PATH passed to the plugin when the isolator's own
// environment has none set (§4.4).
const defaultPATH = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// Result is the outcome of one plugin invocation: its exit code and the
// full bytes written to stdout, captured regardless of success so failures
// can carry the plugin's diagnostic verbatim.
type Result struct {
	ExitCode int
	Stdout   []byte
}

// Invoker runs a single CNI plugin binary as a child process. Implementors
// must drain stdout to EOF and wait for exit before returning (§4.4); tests
// substitute a fake Invoker so the Lifecycle Engine can be exercised
// without real plugin binaries.
type Invoker interface {
	Invoke(ctx context.Context, cmd Command, containerID, ifName, netnsPath string, cfg *NetworkConfig) (*Result, error)
}

// execInvoker runs plugins with os/exec, the same primitive CNI's own
// pkg/invoke is built on.
type execInvoker struct {
	pluginDir string
}

// NewInvoker returns an Invoker that runs plugin binaries out of pluginDir.
func NewInvoker(pluginDir string) Invoker {
	return &execInvoker{pluginDir: pluginDir}
}

func (e *execInvoker) Invoke(ctx context.Context, cmd Command, containerID, ifName, netnsPath string, cfg *NetworkConfig) (*Result, error) {
	binary := cfg.PluginBinary()
	binPath := filepath.Join(e.pluginDir, binary)

	absPluginDir, err := filepath.Abs(e.pluginDir)
	if err != nil {
		return nil, fmt.Errorf("resolving CNI plugin directory %s: %w", e.pluginDir, err)
	}

	c := exec.CommandContext(ctx, binPath)
	c.Args = []string{binary}
	c.Stdin = bytes.NewReader(cfg.Raw())
	c.Env = buildEnv(cmd, containerID, ifName, netnsPath, absPluginDir)
	// Stderr is left nil: exec.Cmd connects a nil Stderr to /dev/null,
	// matching §4.4's "stderr discarded to the null device".
	// No SysProcAttr.Setsid: the child stays in the isolator's session, so
	// its lifetime is bounded by the isolator's own (§4.4).

	var stdout bytes.Buffer
	c.Stdout = &stdout

	runErr := c.Run()

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("running CNI plugin %s: %w", binPath, runErr)
		}
	}

	return &Result{ExitCode: exitCode, Stdout: stdout.Bytes()}, nil
}

func buildEnv(cmd Command, containerID, ifName, netnsPath, pluginDir string) []string {
	path := os.Getenv("PATH")
	if path == "" {
		path = defaultPATH
	}
	return []string{
		"CNI_COMMAND=" + string(cmd),
		"CNI_CONTAINERID=" + containerID,
		"CNI_PATH=" + pluginDir,
		"CNI_IFNAME=" + ifName,
		"CNI_NETNS=" + netnsPath,
		"PATH=" + path,
	}
}
