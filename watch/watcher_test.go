package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu    sync.Mutex
	paths []string
}

func (c *collector) handle(_ context.Context, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, path)
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func startWatcher(t *testing.T, dir string) *collector {
	t.Helper()
	w, err := New(dir, 50*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c := &collector{}
	go func() {
		defer close(done)
		_ = w.Run(ctx, c.handle)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c
}

func TestDirWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	c := startWatcher(t, dir)

	path := filepath.Join(dir, "orders.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := f.WriteString("id,name\n")
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []string{path}, c.snapshot(), "a burst of writes is reported once")
}

func TestDirWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	c := startWatcher(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".orders.csv.swp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.CSV"), []byte("id\n1\n"), 0o644))

	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, filepath.Join(dir, "b.CSV"), c.snapshot()[0])
}

func TestNew_MissingDir(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent"), 0, nil)
	assert.Error(t, err)
}

func TestIsCSV(t *testing.T) {
	assert.True(t, IsCSV("/data/a.csv"))
	assert.True(t, IsCSV("A.Csv"))
	assert.False(t, IsCSV("a.xlsx"))
	assert.False(t, IsCSV(".a.csv"))
	assert.False(t, IsCSV("a.csv~"))
}
