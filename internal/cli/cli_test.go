package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lynx96-creator/ets2-mod-api/internal/app"
	"github.com/Lynx96-creator/ets2-mod-api/internal/config"
	apperrors "github.com/Lynx96-creator/ets2-mod-api/internal/errors"
	"github.com/Lynx96-creator/ets2-mod-api/internal/security"
	"github.com/Lynx96-creator/ets2-mod-api/internal/shared/testutil"
	"github.com/Lynx96-creator/ets2-mod-api/internal/store"
	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts"
	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/domain"
)

const artifactSize = 4096

type harness struct {
	cfg        *config.Config
	records    *store.MemoryStore
	sessionDir string
	device     string
	out        bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	restore := isTerminal
	isTerminal = func(int) bool { return false }
	t.Cleanup(func() { isTerminal = restore })

	cfg := config.Default()
	cfg.Store.Driver = config.StoreDriverMemory
	cfg.Install.InstallRoot = filepath.Join(t.TempDir(), "mod")
	cfg.Install.MinArtifactSize = artifactSize
	cfg.Install.DownloadTimeout = 5 * time.Second
	cfg.Install.Protect = false
	cfg.Auth.TokenSecret = "test-secret"
	cfg.Telemetry.Enabled = false

	return &harness{
		cfg:        cfg,
		records:    store.NewMemoryStore(testutil.SeedAccounts(), testutil.SeedCatalog()),
		sessionDir: t.TempDir(),
		device:     testutil.Fingerprint,
	}
}

func (h *harness) services(ctx context.Context) (*app.Services, error) {
	logger := slog.New(testutil.NewBufferedSlogHandler(nil))
	return app.NewServices(ctx, h.cfg, logger,
		app.WithStore(h.records),
		app.WithFingerprinter(security.StaticFingerprint(h.device)),
		app.WithFetcher(testutil.NewStaticFetcher(artifactSize)))
}

// run executes one command line and returns its error and output
func (h *harness) run(stdin string, args ...string) (string, error) {
	h.out.Reset()
	cmd := NewRootCmd(Options{
		In:         strings.NewReader(stdin),
		Out:        &h.out,
		SessionDir: h.sessionDir,
		Services:   h.services,
	})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return h.out.String(), err
}

func (h *harness) login(t *testing.T) {
	_, err := h.run("hunter2\n", "login", "--email", "driver@example.com")
	require.NoError(t, err)
}

func TestLogin_SavesToken(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("hunter2\n", "login", "--email", "Driver@Example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Password: ")
	assert.Contains(t, out, "Logged in as driver@example.com")

	info, err := os.Stat(filepath.Join(h.sessionDir, config.SessionFileName))
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	account, err := h.records.FindAccountByEmail(context.Background(), "driver@example.com")
	require.NoError(t, err)
	assert.Equal(t, testutil.Fingerprint, account.DeviceFingerprint)
}

func TestDefaultSessionDir(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("XDG_CONFIG_HOME is not consulted on " + runtime.GOOS)
	}
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)

	dir := defaultSessionDir()
	assert.Equal(t, filepath.Join(base, config.ConfigDirName), dir)
	assert.DirExists(t, dir)
	assert.Equal(t, filepath.Join(dir, "session.jwt"), tokenStore{dir: dir}.path())
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		sentinel error
		text     string
	}{
		{"wrong password", "driver@example.com", "nope", apperrors.ErrCredentialInvalid, "Invalid credentials"},
		{"unknown account", "ghost@example.com", "hunter2", apperrors.ErrCredentialInvalid, "Invalid credentials"},
		{"other device", "other@example.com", "hunter2", apperrors.ErrDeviceMismatch, "This account is registered to a different device"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			_, err := h.run(tt.password+"\n", "login", "--email", tt.email)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.text, err.Error())
			assert.NoFileExists(t, filepath.Join(h.sessionDir, config.SessionFileName))
		})
	}
}

func TestCommands_RequireLogin(t *testing.T) {
	h := newHarness(t)

	for _, args := range [][]string{
		{"mods"},
		{"install", "Mod A", "--key", "KEY-A"},
		{"uninstall", "Mod A"},
	} {
		_, err := h.run("", args...)
		assert.ErrorIs(t, err, errNotLoggedIn, args)
	}
}

func TestCommands_RejectSessionFromAnotherDevice(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	h.device = "99:99:99:99:99:99"
	_, err := h.run("", "mods")
	assert.ErrorIs(t, err, apperrors.ErrDeviceMismatch)
}

func TestCommands_RejectTamperedToken(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(filepath.Join(h.sessionDir, config.SessionFileName), []byte("not.a.token"), 0o600))

	_, err := h.run("", "mods")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log in again")
}

func TestInstallLifecycle(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	out, err := h.run("", "mods")
	require.NoError(t, err)
	assert.Equal(t, "[ ] Mod A\n[ ] Mod C\n", out)

	out, err = h.run("", "install", "Mod A", "--key", "  KEY-A ")
	require.NoError(t, err)
	assert.Contains(t, out, "Preparing Mod A...")
	assert.True(t, strings.HasSuffix(out, "Installed\n"), out)
	assert.FileExists(t, filepath.Join(h.cfg.Install.InstallRoot, "mod_a.scs"))

	out, err = h.run("", "mods")
	require.NoError(t, err)
	assert.Contains(t, out, "[x] Mod A")

	// the key was consumed by the first install
	_, err = h.run("", "install", "Mod A", "--key", "KEY-A")
	assert.ErrorIs(t, err, apperrors.ErrSerialKeyInvalid)
	assert.EqualError(t, err, "Invalid serial key")

	out, err = h.run("", "uninstall", "Mod A")
	require.NoError(t, err)
	assert.Contains(t, out, "Uninstalled")
	assert.NoFileExists(t, filepath.Join(h.cfg.Install.InstallRoot, "mod_a.scs"))

	_, err = h.run("", "uninstall", "Mod A")
	assert.EqualError(t, err, "Mod not found")
}

func TestInstall_PromptsForKey(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	out, err := h.run("KEY-C\n", "install", "Mod C")
	require.NoError(t, err)
	assert.Contains(t, out, "Serial key: ")
	assert.Contains(t, out, "Installed")
}

func TestInstall_UnknownMod(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	// Mod B has no download link and is not listed
	_, err := h.run("", "install", "Mod B", "--key", "KEY-B")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	out, err := h.run("", "logout")
	require.NoError(t, err)
	assert.Equal(t, "Logged out\n", out)

	out, err = h.run("", "logout")
	require.NoError(t, err)
	assert.Equal(t, "Not logged in\n", out)
}

func TestEntitlements(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "entitlements", "--email", "driver@example.com", "--json")
	require.NoError(t, err)

	var entries []domain.CatalogEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "Mod A", entries[0].DisplayName)
	assert.Equal(t, "KEY-C", entries[1].SerialKey)

	out, err = h.run("", "entitlements", "--email", "driver@example.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "NAME"))
	assert.Contains(t, out, "mod_c")

	out, err = h.run("", "entitlements", "--email", "ghost@example.com", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestInitWorkbook(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "records.xlsx")

	out, err := h.run("", "init-workbook", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Created")
	assert.FileExists(t, path)

	_, err = h.run("", "init-workbook", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = h.run("", "init-workbook", path, "--force")
	assert.NoError(t, err)
}

func TestHashSecret(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("hunter2\n", "hash-secret")
	require.NoError(t, err)

	hash := strings.TrimSpace(strings.TrimPrefix(out, "Password: "))
	assert.True(t, security.VerifySecret(hash, "hunter2"))
	assert.False(t, security.VerifySecret(hash, "hunter3"))

	_, err = h.run("\n", "hash-secret")
	assert.Error(t, err)
}

func TestVersionFlag(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "--version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ETS2 Mod Installer v"+contracts.Version), out)
	assert.Contains(t, out, "commit: ")
}

func TestPromptSecret(t *testing.T) {
	restoreTerm, restoreRead := isTerminal, readPassword
	t.Cleanup(func() { isTerminal, readPassword = restoreTerm, restoreRead })

	t.Run("terminal", func(t *testing.T) {
		isTerminal = func(int) bool { return true }
		readPassword = func(int) ([]byte, error) { return []byte("s3cret"), nil }

		var out bytes.Buffer
		got, err := promptSecret(bufio.NewReader(strings.NewReader("")), &out, "Password: ")
		require.NoError(t, err)
		assert.Equal(t, "s3cret", got)
		assert.Equal(t, "Password: \n", out.String())
	})

	t.Run("terminal read error", func(t *testing.T) {
		isTerminal = func(int) bool { return true }
		readPassword = func(int) ([]byte, error) { return nil, errors.New("boom") }

		_, err := promptSecret(bufio.NewReader(strings.NewReader("")), &bytes.Buffer{}, "Password: ")
		assert.ErrorContains(t, err, "boom")
	})

	t.Run("piped without newline", func(t *testing.T) {
		isTerminal = func(int) bool { return false }

		got, err := promptSecret(bufio.NewReader(strings.NewReader("value\r")), &bytes.Buffer{}, "> ")
		require.NoError(t, err)
		assert.Equal(t, "value", got)
	})

	t.Run("empty input", func(t *testing.T) {
		isTerminal = func(int) bool { return false }

		_, err := promptSecret(bufio.NewReader(strings.NewReader("")), &bytes.Buffer{}, "> ")
		assert.Error(t, err)
	})
}
