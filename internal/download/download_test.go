package download

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// blockingFetcher holds transfers open until released, for cancel and
// dedupe tests.
type blockingFetcher struct {
	started chan string
	release chan struct{}
}

func newBlockingFetcher() *blockingFetcher {
	return &blockingFetcher{started: make(chan string, 16), release: make(chan struct{})}
}

func (f *blockingFetcher) Fetch(ctx context.Context, sourceURI, dest string, progress func(pct int)) error {
	f.started <- sourceURI
	select {
	case <-f.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func waitStatus(t *testing.T, m *Manager, jobID, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		j, ok := m.Status(jobID)
		require.True(t, ok, "job %s unknown", jobID)
		if j.Status == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s stuck at %s, want %s", jobID, j.Status, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubmitValidation(t *testing.T) {
	m := NewManager(Config{Dir: t.TempDir()})
	_, err := m.Submit("m", "ftp", "ftp://x")
	require.True(t, IsUnknownSource(err), "got %v", err)
	_, err = m.Submit("", "http", "https://x")
	require.True(t, IsBadSubmit(err), "got %v", err)
	_, err = m.Submit("m", "http", "  ")
	require.True(t, IsBadSubmit(err), "got %v", err)
}

func TestFileFetchRegistersArtifact(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.gguf")
	require.NoError(t, os.WriteFile(src, []byte("weights"), 0o644))

	var mu sync.Mutex
	var gotModel, gotPath string
	m := NewManager(Config{
		Dir: filepath.Join(dir, "artifacts"),
		OnComplete: func(modelID, artifactPath string) {
			mu.Lock()
			gotModel, gotPath = modelID, artifactPath
			mu.Unlock()
		},
	})
	m.Start()
	defer m.Close()

	id, err := m.Submit("tiny", "file", "file://"+src)
	require.NoError(t, err)
	waitStatus(t, m, id, StatusCompleted)

	j, _ := m.Status(id)
	require.Equal(t, 100, j.Progress)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "tiny", gotModel)
	b, err := os.ReadFile(gotPath)
	require.NoError(t, err)
	require.Equal(t, "weights", string(b))
	_, err = os.Stat(gotPath + ".part")
	require.True(t, os.IsNotExist(err), "temp file left behind")
}

func TestDedupeWhileActive(t *testing.T) {
	f := newBlockingFetcher()
	m := NewManager(Config{Dir: t.TempDir(), Fetchers: map[string]Fetcher{"http": f}})
	m.Start()
	defer m.Close()

	id1, err := m.Submit("m", "http", "https://example.com/m.gguf")
	require.NoError(t, err)
	<-f.started

	// Same source while running: same job id, no second transfer.
	id2, err := m.Submit("m", "http", "https://example.com/m.gguf")
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	// A different source is a new job.
	id3, err := m.Submit("m2", "http", "https://example.com/other.gguf")
	require.NoError(t, err)
	require.NotEqual(t, id1, id3)

	close(f.release)
	waitStatus(t, m, id1, StatusCompleted)

	// After the job completes the same source may be fetched again.
	f.release = make(chan struct{})
	close(f.release)
	id4, err := m.Submit("m", "http", "https://example.com/m.gguf")
	require.NoError(t, err)
	require.NotEqual(t, id1, id4)
}

func TestCancelRunning(t *testing.T) {
	f := newBlockingFetcher()
	completed := false
	m := NewManager(Config{Dir: t.TempDir(), Fetchers: map[string]Fetcher{"http": f},
		OnComplete: func(string, string) { completed = true }})
	m.Start()
	defer m.Close()

	id, err := m.Submit("m", "http", "https://example.com/m.gguf")
	require.NoError(t, err)
	<-f.started
	require.True(t, m.Cancel(id))
	waitStatus(t, m, id, StatusCancelled)
	require.False(t, completed, "cancelled job must not register its artifact")

	// Terminal transitions are monotonic: cancel again is a no-op.
	require.False(t, m.Cancel(id))
}

func TestCancelQueued(t *testing.T) {
	f := newBlockingFetcher()
	m := NewManager(Config{Dir: t.TempDir(), Workers: 1, Fetchers: map[string]Fetcher{"http": f}})
	m.Start()
	defer m.Close()

	id1, err := m.Submit("m1", "http", "https://example.com/a.gguf")
	require.NoError(t, err)
	<-f.started
	id2, err := m.Submit("m2", "http", "https://example.com/b.gguf")
	require.NoError(t, err)

	require.True(t, m.Cancel(id2))
	j, _ := m.Status(id2)
	require.Equal(t, StatusCancelled, j.Status)

	// The worker skips the cancelled job when it reaches it.
	close(f.release)
	waitStatus(t, m, id1, StatusCompleted)
	j, _ = m.Status(id2)
	require.Equal(t, StatusCancelled, j.Status)
}

func TestCancelUnknown(t *testing.T) {
	m := NewManager(Config{Dir: t.TempDir()})
	require.False(t, m.Cancel("nope"))
}

func TestListNewestFirstAndActiveCount(t *testing.T) {
	f := newBlockingFetcher()
	m := NewManager(Config{Dir: t.TempDir(), Workers: 2, Fetchers: map[string]Fetcher{"http": f}})
	m.Start()
	defer m.Close()

	id1, _ := m.Submit("m1", "http", "https://example.com/a.gguf")
	time.Sleep(2 * time.Millisecond)
	id2, _ := m.Submit("m2", "http", "https://example.com/b.gguf")
	<-f.started
	<-f.started

	require.Equal(t, 2, m.ActiveCount())
	jobs := m.List()
	require.Len(t, jobs, 2)
	require.Equal(t, id2, jobs[0].ID, "newest first")
	require.Equal(t, id1, jobs[1].ID)

	close(f.release)
	waitStatus(t, m, id1, StatusCompleted)
	waitStatus(t, m, id2, StatusCompleted)
	require.Equal(t, 0, m.ActiveCount())
}

func TestDestName(t *testing.T) {
	require.Equal(t, "tiny.gguf", destName("tiny", "https://x/weights.gguf"))
	require.Equal(t, "tiny.bin", destName("tiny", "https://x/weights.bin"))
	require.Equal(t, "tiny.gguf", destName("tiny", "https://x/weights"))
}
