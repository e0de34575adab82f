package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/clustercore/clustercore/pkg/app"
	"github.com/clustercore/clustercore/pkg/config"
	"github.com/clustercore/clustercore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFactory is a minimal Factory for exercising Manager's ordering,
// rollback and reload behavior without a real service's side effects.
type fakeFactory struct {
	name       string
	deps       []string
	initErr    error
	shutdownFn func()
	initCount  int
	started    *[]string // append here on successful Init, shared across a test's factories
}

func (f *fakeFactory) Name() string           { return f.name }
func (f *fakeFactory) Version() string        { return "0.0.1" }
func (f *fakeFactory) Dependencies() []string { return f.deps }

func (f *fakeFactory) Init(ctx context.Context, c *app.Context) error {
	f.initCount++
	if f.initErr != nil {
		return f.initErr
	}
	if f.started != nil {
		*f.started = append(*f.started, f.name)
	}
	return nil
}

func (f *fakeFactory) Shutdown(ctx context.Context) error {
	if f.shutdownFn != nil {
		f.shutdownFn()
	}
	return nil
}

func (f *fakeFactory) Methods() []types.MethodEntry {
	return []types.MethodEntry{{Path: f.name + "/ping", Public: true}}
}

func testAppContext(t *testing.T) *app.Context {
	t.Helper()
	cfg := config.Default()
	cfg.NodeID = "node-a"
	cfg.CoordinatorMode = true
	cfg.BindAddress = "127.0.0.1"
	cfg.Port = 19100
	cfg.JWTSecret = "test-secret"
	cfg.StateDirectory = t.TempDir()

	c, err := app.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Store.Close() })
	return c
}

// uniqueName keeps factory names from colliding with another test's
// registrations in the shared package-level manifest.
func uniqueName(t *testing.T, base string) string {
	t.Helper()
	return fmt.Sprintf("%s-%s", t.Name(), base)
}

func TestManagerStartsInDependencyOrder(t *testing.T) {
	var started []string

	base := uniqueName(t, "")
	a := &fakeFactory{name: base + "a", started: &started}
	b := &fakeFactory{name: base + "b", deps: []string{base + "a"}, started: &started}
	c := &fakeFactory{name: base + "c", deps: []string{base + "b"}, started: &started}

	Register(c)
	Register(a)
	Register(b)

	m := NewManager(testAppContext(t))
	require.NoError(t, m.Start(context.Background()))

	assert.Equal(t, []string{base + "a", base + "b", base + "c"}, started)

	inst, ok := m.Get(base + "c")
	require.True(t, ok)
	assert.Equal(t, types.ServiceRunning, inst.Status)
}

func TestManagerDetectsMissingDependency(t *testing.T) {
	base := uniqueName(t, "")
	Register(&fakeFactory{name: base + "a", deps: []string{base + "ghost"}})

	m := NewManager(testAppContext(t))
	err := m.Start(context.Background())
	require.Error(t, err)
}

func TestManagerDetectsCycle(t *testing.T) {
	base := uniqueName(t, "")
	Register(&fakeFactory{name: base + "a", deps: []string{base + "b"}})
	Register(&fakeFactory{name: base + "b", deps: []string{base + "a"}})

	m := NewManager(testAppContext(t))
	err := m.Start(context.Background())
	require.Error(t, err)
}

func TestManagerRollsBackOnInitFailure(t *testing.T) {
	var shutdownCalls []string

	base := uniqueName(t, "")
	a := &fakeFactory{
		name:       base + "a",
		shutdownFn: func() { shutdownCalls = append(shutdownCalls, base+"a") },
	}
	b := &fakeFactory{
		name:    base + "b",
		deps:    []string{base + "a"},
		initErr: fmt.Errorf("boom"),
	}

	Register(a)
	Register(b)

	m := NewManager(testAppContext(t))
	err := m.Start(context.Background())
	require.Error(t, err)

	assert.Equal(t, []string{base + "a"}, shutdownCalls)

	instA, ok := m.Get(base + "a")
	require.True(t, ok)
	assert.Equal(t, types.ServiceStopped, instA.Status)
}

func TestManagerReloadReinitializes(t *testing.T) {
	base := uniqueName(t, "")
	a := &fakeFactory{name: base + "a"}
	Register(a)

	m := NewManager(testAppContext(t))
	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, 1, a.initCount)

	require.NoError(t, m.Reload(context.Background(), base+"a"))
	assert.Equal(t, 2, a.initCount)

	inst, ok := m.Get(base + "a")
	require.True(t, ok)
	assert.Equal(t, types.ServiceRunning, inst.Status)
}

func TestManagerViewsProjectsLoadedServices(t *testing.T) {
	base := uniqueName(t, "")
	Register(&fakeFactory{name: base + "a"})

	m := NewManager(testAppContext(t))
	require.NoError(t, m.Start(context.Background()))

	views := m.Views()
	view, ok := views[base+"a"]
	require.True(t, ok)
	assert.Equal(t, "running", view.Status)
	assert.Contains(t, view.Methods, base+"a/ping")
}
