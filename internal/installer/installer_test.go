package installer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lynx96-creator/ets2-mod-api/internal/config"
	apperrors "github.com/Lynx96-creator/ets2-mod-api/internal/errors"
	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/domain"
)

const testMinSize = 1000

type fakeFetcher struct {
	data      []byte
	sizeKnown bool
	failures  int32 // number of leading calls that fail
	calls     atomic.Int32
	ids       []string
	mu        sync.Mutex
}

func (f *fakeFetcher) Fetch(_ context.Context, contentID string) (io.ReadCloser, int64, error) {
	f.mu.Lock()
	f.ids = append(f.ids, contentID)
	f.mu.Unlock()

	if n := f.calls.Add(1); n <= f.failures {
		return nil, 0, errors.New("connection reset")
	}
	size := int64(-1)
	if f.sizeKnown {
		size = int64(len(f.data))
	}
	return io.NopCloser(bytes.NewReader(f.data)), size, nil
}

// stallingFetcher returns a body that blocks until the context ends
type stallingFetcher struct{}

func (stallingFetcher) Fetch(ctx context.Context, _ string) (io.ReadCloser, int64, error) {
	return io.NopCloser(readerFunc(func([]byte) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})), -1, nil
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }

type recordingProtector struct {
	mu          sync.Mutex
	protected   []string
	unprotected []string
	protectErr  error
}

func (p *recordingProtector) Protect(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.protectErr != nil {
		return p.protectErr
	}
	p.protected = append(p.protected, path)
	return nil
}

func (p *recordingProtector) Unprotect(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unprotected = append(p.unprotected, path)
	return nil
}

func testConfig(t *testing.T) config.InstallConfig {
	return config.InstallConfig{
		InstallRoot:       filepath.Join(t.TempDir(), "mod"),
		ArtifactExtension: ".scs",
		MinArtifactSize:   testMinSize,
		DownloadTimeout:   5 * time.Second,
		RetryAttempts:     1,
	}
}

func testEntry() domain.CatalogEntry {
	return domain.CatalogEntry{
		DisplayName:  "Mod A",
		InternalName: "mod_a",
		Locator:      "https://drive.google.com/file/d/FILE123/view?usp=sharing",
	}
}

func stagingLeftovers(t *testing.T, dir string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, ".*.part"))
	require.NoError(t, err)
	return matches
}

func TestInstall_Success(t *testing.T) {
	cfg := testConfig(t)
	fetcher := &fakeFetcher{data: bytes.Repeat([]byte("x"), 4096), sizeKnown: true}
	protector := &recordingProtector{}
	inst := NewInstaller(cfg, fetcher, protector, nil)

	var events []Progress
	result, err := inst.Install(context.Background(), testEntry(), func(p Progress) {
		events = append(events, p)
	})
	require.NoError(t, err)

	wantPath := filepath.Join(cfg.InstallRoot, "mod_a.scs")
	assert.Equal(t, domain.PhaseInstalled, result.Phase)
	assert.Equal(t, wantPath, result.Path)
	assert.Equal(t, int64(4096), result.Size)
	assert.Nil(t, result.ProtectionErr)
	assert.Equal(t, []string{"FILE123"}, fetcher.ids)
	assert.Equal(t, []string{wantPath}, protector.protected)
	assert.True(t, inst.IsInstalled("mod_a"))
	assert.Empty(t, stagingLeftovers(t, cfg.InstallRoot))

	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Percent, events[i-1].Percent)
	}
	last := events[len(events)-1]
	assert.Equal(t, 100, last.Percent)
	assert.Equal(t, domain.PhaseInstalled, last.Phase)
}

func TestInstall_SizeBoundary(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr error
	}{
		{"exactly threshold", testMinSize, nil},
		{"one byte short", testMinSize - 1, apperrors.ErrArtifactTooSmall},
		{"empty", 0, apperrors.ErrArtifactTooSmall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			inst := NewInstaller(cfg, &fakeFetcher{data: make([]byte, tt.size)}, NoopProtector{}, nil)

			_, err := inst.Install(context.Background(), testEntry(), nil)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.True(t, inst.IsInstalled("mod_a"))
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, inst.IsInstalled("mod_a"))
			assert.Empty(t, stagingLeftovers(t, cfg.InstallRoot))
		})
	}
}

func TestInstall_UnrecognizedLocator(t *testing.T) {
	cfg := testConfig(t)
	fetcher := &fakeFetcher{data: make([]byte, testMinSize)}
	inst := NewInstaller(cfg, fetcher, NoopProtector{}, nil)

	// an existing artifact survives a bad link
	require.NoError(t, os.MkdirAll(cfg.InstallRoot, 0o755))
	existing := filepath.Join(cfg.InstallRoot, "mod_a.scs")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0o644))

	entry := testEntry()
	entry.Locator = "https://example.com/download/mod_a"
	_, err := inst.Install(context.Background(), entry, nil)

	assert.ErrorIs(t, err, apperrors.ErrLocatorUnrecognized)
	assert.Zero(t, fetcher.calls.Load())
	assert.FileExists(t, existing)
}

func TestInstall_ReplacesExisting(t *testing.T) {
	cfg := testConfig(t)
	protector := &recordingProtector{}
	inst := NewInstaller(cfg, &fakeFetcher{data: bytes.Repeat([]byte("n"), testMinSize)}, protector, nil)

	require.NoError(t, os.MkdirAll(cfg.InstallRoot, 0o755))
	path := filepath.Join(cfg.InstallRoot, "mod_a.scs")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o444))

	_, err := inst.Install(context.Background(), testEntry(), nil)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, data, testMinSize)
	assert.Equal(t, []string{path}, protector.unprotected)
}

func TestInstall_ProtectionFailureKeepsFile(t *testing.T) {
	cfg := testConfig(t)
	protector := &recordingProtector{protectErr: errors.New("operation not permitted")}
	inst := NewInstaller(cfg, &fakeFetcher{data: make([]byte, testMinSize)}, protector, nil)

	result, err := inst.Install(context.Background(), testEntry(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseInstalledUnprotected, result.Phase)
	assert.ErrorIs(t, result.ProtectionErr, apperrors.ErrProtectionFailed)
	assert.FileExists(t, result.Path)
}

// blockArtifact puts a non-empty directory at the artifact path of mod_a so
// that removing it fails
func blockArtifact(t *testing.T, cfg config.InstallConfig) string {
	path := filepath.Join(cfg.InstallRoot, "mod_a.scs")
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "keep"), []byte("x"), 0o644))
	return path
}

func TestRemovalFailureRestoresProtection(t *testing.T) {
	t.Run("reinstall", func(t *testing.T) {
		cfg := testConfig(t)
		fetcher := &fakeFetcher{data: make([]byte, testMinSize)}
		protector := &recordingProtector{}
		inst := NewInstaller(cfg, fetcher, protector, nil)
		path := blockArtifact(t, cfg)

		_, err := inst.Install(context.Background(), testEntry(), nil)
		require.Error(t, err)
		assert.DirExists(t, path)
		assert.Equal(t, []string{path}, protector.unprotected)
		assert.Equal(t, []string{path}, protector.protected)
		assert.Zero(t, fetcher.calls.Load())
	})

	t.Run("uninstall", func(t *testing.T) {
		cfg := testConfig(t)
		protector := &recordingProtector{}
		inst := NewInstaller(cfg, nil, protector, nil)
		path := blockArtifact(t, cfg)

		removed, err := inst.Uninstall(context.Background(), "mod_a")
		require.Error(t, err)
		assert.False(t, removed)
		assert.DirExists(t, path)
		assert.Equal(t, []string{path}, protector.unprotected)
		assert.Equal(t, []string{path}, protector.protected)
	})

	t.Run("protection cannot be restored", func(t *testing.T) {
		cfg := testConfig(t)
		protector := &recordingProtector{protectErr: errors.New("operation not permitted")}
		inst := NewInstaller(cfg, nil, protector, nil)
		blockArtifact(t, cfg)

		_, err := inst.Uninstall(context.Background(), "mod_a")
		assert.ErrorContains(t, err, "failed to remove artifact")
		assert.ErrorContains(t, err, "failed to restore protection")
		assert.ErrorContains(t, err, "operation not permitted")
	})
}

func TestInstall_Timeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.DownloadTimeout = 50 * time.Millisecond
	inst := NewInstaller(cfg, stallingFetcher{}, NoopProtector{}, nil)

	_, err := inst.Install(context.Background(), testEntry(), nil)
	require.ErrorIs(t, err, apperrors.ErrRetrievalFailed)
	assert.Equal(t, "Download failed: download timed out", apperrors.StatusText(err))
	assert.Empty(t, stagingLeftovers(t, cfg.InstallRoot))
}

func TestInstall_Retry(t *testing.T) {
	t.Run("disabled by default", func(t *testing.T) {
		fetcher := &fakeFetcher{data: make([]byte, testMinSize), failures: 1}
		inst := NewInstaller(testConfig(t), fetcher, NoopProtector{}, nil)

		_, err := inst.Install(context.Background(), testEntry(), nil)
		assert.ErrorIs(t, err, apperrors.ErrRetrievalFailed)
		assert.Equal(t, int32(1), fetcher.calls.Load())
	})

	t.Run("retries retrieval failures", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.RetryAttempts = 3
		cfg.RetryInitialDelay = time.Second
		fetcher := &fakeFetcher{data: make([]byte, testMinSize), failures: 2}
		inst := NewInstaller(cfg, fetcher, NoopProtector{}, nil)

		var delays []time.Duration
		inst.sleep = func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		}

		_, err := inst.Install(context.Background(), testEntry(), nil)
		require.NoError(t, err)
		assert.Equal(t, int32(3), fetcher.calls.Load())
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
	})

	t.Run("too small is not retried", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.RetryAttempts = 3
		fetcher := &fakeFetcher{data: make([]byte, 10)}
		inst := NewInstaller(cfg, fetcher, NoopProtector{}, nil)

		_, err := inst.Install(context.Background(), testEntry(), nil)
		assert.ErrorIs(t, err, apperrors.ErrArtifactTooSmall)
		assert.Equal(t, int32(1), fetcher.calls.Load())
	})
}

func TestRetryDelayCapped(t *testing.T) {
	cfg := testConfig(t)
	cfg.RetryInitialDelay = time.Second
	cfg.RetryMaxDelay = 3 * time.Second
	inst := NewInstaller(cfg, nil, nil, nil)

	assert.Equal(t, time.Second, inst.retryDelay(1))
	assert.Equal(t, 2*time.Second, inst.retryDelay(2))
	assert.Equal(t, 3*time.Second, inst.retryDelay(3))
	assert.Equal(t, 3*time.Second, inst.retryDelay(10))
}

func TestUninstall(t *testing.T) {
	cfg := testConfig(t)
	protector := &recordingProtector{}
	inst := NewInstaller(cfg, &fakeFetcher{data: make([]byte, testMinSize)}, protector, nil)
	ctx := context.Background()

	removed, err := inst.Uninstall(ctx, "mod_a")
	require.NoError(t, err)
	assert.False(t, removed)

	result, err := inst.Install(ctx, testEntry(), nil)
	require.NoError(t, err)

	removed, err = inst.Uninstall(ctx, "mod_a")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NoFileExists(t, result.Path)
	assert.Contains(t, protector.unprotected, result.Path)

	// round trip
	_, err = inst.Install(ctx, testEntry(), nil)
	require.NoError(t, err)
	assert.True(t, inst.IsInstalled("mod_a"))
}

func TestPathFor(t *testing.T) {
	inst := NewInstaller(config.InstallConfig{InstallRoot: "/games/mod", ArtifactExtension: ".scs"}, nil, nil, nil)

	path, err := inst.PathFor("mod_a")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/games/mod", "mod_a.scs"), path)

	for _, bad := range []string{"", " ", "..", "../evil", `a\b`, "a/b"} {
		_, err := inst.PathFor(bad)
		assert.Error(t, err, bad)
	}
	assert.False(t, inst.IsInstalled("../evil"))
}
