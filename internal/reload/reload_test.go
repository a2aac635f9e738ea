package reload

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurasky/neurasky/internal/artifact"
	"github.com/neurasky/neurasky/internal/encoder"
	"github.com/neurasky/neurasky/internal/features"
	"github.com/neurasky/neurasky/internal/gbdt"
	"github.com/neurasky/neurasky/internal/inference"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func saveBundle(t *testing.T, root, id string) string {
	t.Helper()
	schema := features.Current()
	enc, err := encoder.Fit(features.CategoricalColumns(), []map[string]string{
		{features.ColAirline: "MH", features.ColOrigin: "KUL", features.ColDest: "PEN", features.ColTimeOfDay: "Morning"},
	})
	require.NoError(t, err)
	dir, err := artifact.Save(root, &artifact.Bundle{
		ID:      id,
		Schema:  schema,
		Encoder: enc,
		Model: &gbdt.Booster{
			NumFeatures: schema.Len(),
			Trees:       []gbdt.Tree{{Nodes: []gbdt.Node{{Leaf: true, Value: 0.5}}}},
		},
	})
	require.NoError(t, err)
	return dir
}

func TestReload(t *testing.T) {
	root := t.TempDir()
	svc := inference.NewService(discardLogger())
	w := New(root, svc, time.UTC, discardLogger())

	assert.ErrorIs(t, w.Reload(), artifact.ErrNoActiveBundle)
	assert.False(t, svc.Available())

	saveBundle(t, root, "bundle-a")
	require.NoError(t, artifact.Activate(root, "bundle-a"))
	require.NoError(t, w.Reload())
	require.True(t, svc.Available())
	assert.Equal(t, "bundle-a", svc.Current().Bundle().ID)

	// Reloading the same bundle keeps the existing context.
	before := svc.Current()
	require.NoError(t, w.Reload())
	assert.Same(t, before, svc.Current())
}

func TestReload_FailureKeepsPrevious(t *testing.T) {
	root := t.TempDir()
	svc := inference.NewService(discardLogger())
	w := New(root, svc, time.UTC, discardLogger())

	saveBundle(t, root, "bundle-a")
	require.NoError(t, artifact.Activate(root, "bundle-a"))
	require.NoError(t, w.Reload())

	dir := saveBundle(t, root, "bundle-b")
	require.NoError(t, os.WriteFile(filepath.Join(dir, artifact.ModelFile), []byte("{"), 0o644))
	require.NoError(t, artifact.Activate(root, "bundle-b"))

	err := w.Reload()
	require.Error(t, err)
	var le *artifact.LoadError
	assert.ErrorAs(t, err, &le)
	assert.Equal(t, "bundle-a", svc.Current().Bundle().ID)
}

func TestRun_SwapsOnActivate(t *testing.T) {
	root := t.TempDir()
	saveBundle(t, root, "bundle-a")
	saveBundle(t, root, "bundle-b")

	svc := inference.NewService(discardLogger())
	w := New(root, svc, time.UTC, discardLogger())
	w.Debounce = 20 * time.Millisecond

	var mu sync.Mutex
	var seen []string
	ready := make(chan struct{})
	var once sync.Once
	w.OnReload = func(id string, err error) {
		once.Do(func() { close(ready) })
		if err == nil {
			mu.Lock()
			seen = append(seen, id)
			mu.Unlock()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not start")
	}
	assert.False(t, svc.Available())

	require.NoError(t, artifact.Activate(root, "bundle-a"))
	require.Eventually(t, func() bool {
		c := svc.Current()
		return c != nil && c.Bundle().ID == "bundle-a"
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, artifact.Activate(root, "bundle-b"))
	require.Eventually(t, func() bool {
		return svc.Current().Bundle().ID == "bundle-b"
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, slices.Contains(seen, "bundle-a"))
	assert.True(t, slices.Contains(seen, "bundle-b"))
}

func TestRun_CreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "artifacts")
	svc := inference.NewService(discardLogger())
	w := New(root, svc, time.UTC, discardLogger())
	w.Debounce = 20 * time.Millisecond

	ready := make(chan struct{})
	var once sync.Once
	w.OnReload = func(string, error) { once.Do(func() { close(ready) }) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("Run returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not start")
	}
	assert.DirExists(t, root)
	assert.False(t, svc.Available())

	saveBundle(t, root, "bundle-a")
	require.NoError(t, artifact.Activate(root, "bundle-a"))
	require.Eventually(t, svc.Available, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "bundle-a", svc.Current().Bundle().ID)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_RootNotCreatable(t *testing.T) {
	file := filepath.Join(t.TempDir(), "artifacts")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	w := New(filepath.Join(file, "sub"), inference.NewService(discardLogger()), time.UTC, discardLogger())
	assert.Error(t, w.Run(context.Background()))
}
