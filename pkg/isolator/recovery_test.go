package isolator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netisolator/pkg/cniplugin"
)

// buildOnDiskContainer drives a throwaway Isolator through Prepare+Isolate
// against root so a later Recover call against a fresh Isolator sharing the
// same root has real on-disk state (container dir, interface dir,
// checkpoint) to reconstruct from.
func buildOnDiskContainer(t *testing.T, root, containerID string, networks ...string) {
	t.Helper()

	mounter := newFakeMounter()
	invoker := newFakeInvoker()
	iso, err := newIsolator(Config{StateRootDir: root}, mounter, invoker)
	require.NoError(t, err)
	for _, n := range networks {
		iso.configs[n] = cniplugin.NewNetworkConfig(n, "bridge", "", []byte(`{"name":"`+n+`","type":"bridge"}`))
	}

	reqs := make([]RequestedNetwork, 0, len(networks))
	for _, n := range networks {
		reqs = append(reqs, RequestedNetwork{Name: n})
	}
	_, err = iso.Prepare(containerID, ContainerSpec{ContainerType: AgentNativeContainerType, Networks: reqs})
	require.NoError(t, err)
	require.NoError(t, iso.Isolate(context.Background(), containerID, 999))
}

func newRecoveringIsolator(t *testing.T, root string, networks ...string) (*Isolator, *fakeInvoker) {
	t.Helper()

	mounter := newFakeMounter()
	invoker := newFakeInvoker()
	iso, err := newIsolator(Config{StateRootDir: root}, mounter, invoker)
	require.NoError(t, err)
	for _, n := range networks {
		iso.configs[n] = cniplugin.NewNetworkConfig(n, "bridge", "", []byte(`{"name":"`+n+`","type":"bridge"}`))
	}
	return iso, invoker
}

func TestRecoverReconstructsLiveContainerState(t *testing.T) {
	root := t.TempDir()
	buildOnDiskContainer(t, root, "c1", "net1", "net2")

	iso, invoker := newRecoveringIsolator(t, root, "net1", "net2")

	require.NoError(t, iso.Recover(context.Background(), []string{"c1"}, nil))

	iso.mu.Lock()
	ci := iso.containers["c1"]
	iso.mu.Unlock()
	require.NotNil(t, ci)
	assert.Len(t, ci.Networks, 2)
	assert.Equal(t, "eth0", ci.Networks["net1"].IfName)
	assert.Equal(t, "eth1", ci.Networks["net2"].IfName)
	require.NotNil(t, ci.Networks["net1"].Result)

	// A live container is never reaped.
	assert.Empty(t, invoker.calls)
}

func TestRecoverReapsContainerThatIsNeitherLiveNorOrphan(t *testing.T) {
	root := t.TempDir()
	buildOnDiskContainer(t, root, "stale", "net1")

	iso, invoker := newRecoveringIsolator(t, root, "net1")

	require.NoError(t, iso.Recover(context.Background(), nil, nil))

	assert.Equal(t, 1, invoker.callCount(cniplugin.Del, "net1"))

	iso.mu.Lock()
	_, stillPresent := iso.containers["stale"]
	iso.mu.Unlock()
	assert.False(t, stillPresent)

	containerDir, err := iso.paths.ContainerDir("stale")
	require.NoError(t, err)
	assert.NoDirExists(t, containerDir)
}

func TestRecoverKeepsOrphanWithoutReaping(t *testing.T) {
	root := t.TempDir()
	buildOnDiskContainer(t, root, "orphan1", "net1")

	iso, invoker := newRecoveringIsolator(t, root, "net1")

	require.NoError(t, iso.Recover(context.Background(), nil, []string{"orphan1"}))

	assert.Empty(t, invoker.calls)

	iso.mu.Lock()
	_, present := iso.containers["orphan1"]
	iso.mu.Unlock()
	assert.True(t, present)
}

func TestRecoverFailsOnNetworkNoLongerConfigured(t *testing.T) {
	root := t.TempDir()
	buildOnDiskContainer(t, root, "c1", "net1")

	// net1 is deliberately omitted from this isolator's configuration.
	iso, _ := newRecoveringIsolator(t, root)

	err := iso.Recover(context.Background(), []string{"c1"}, nil)
	assert.Error(t, err)
}

func TestRecoverSkipsNetworkWithNoInterfaceDirectory(t *testing.T) {
	root := t.TempDir()
	buildOnDiskContainer(t, root, "c1", "net1")

	// Simulate a crash between interface-directory removal and
	// container-directory removal: remove just the interface subdirectory.
	networkDir := filepath.Join(root, "c1", "networks", "net1")
	entries, err := os.ReadDir(networkDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, os.RemoveAll(filepath.Join(networkDir, entries[0].Name())))

	iso, invoker := newRecoveringIsolator(t, root, "net1")
	require.NoError(t, iso.Recover(context.Background(), []string{"c1"}, nil))

	iso.mu.Lock()
	ci := iso.containers["c1"]
	iso.mu.Unlock()
	require.NotNil(t, ci)
	assert.Empty(t, ci.Networks)
	assert.Empty(t, invoker.calls)
}

func TestRecoverIsIdempotentAcrossRepeatedCalls(t *testing.T) {
	root := t.TempDir()
	buildOnDiskContainer(t, root, "c1", "net1")

	iso, _ := newRecoveringIsolator(t, root, "net1")

	require.NoError(t, iso.Recover(context.Background(), []string{"c1"}, nil))
	require.NoError(t, iso.Recover(context.Background(), []string{"c1"}, nil))

	iso.mu.Lock()
	ci := iso.containers["c1"]
	iso.mu.Unlock()
	require.NotNil(t, ci)
	assert.Len(t, ci.Networks, 1)
}
