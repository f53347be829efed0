package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lynx96-creator/ets2-mod-api/internal/config"
	"github.com/Lynx96-creator/ets2-mod-api/internal/security"
	"github.com/Lynx96-creator/ets2-mod-api/internal/shared/testutil"
	"github.com/Lynx96-creator/ets2-mod-api/internal/store"
	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/domain"
	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/events"
)

const artifactSize = 4096

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Server.RateLimit = 0
	cfg.Store.Driver = config.StoreDriverMemory
	cfg.Install.InstallRoot = filepath.Join(t.TempDir(), "mod")
	cfg.Install.MinArtifactSize = artifactSize
	cfg.Install.DownloadTimeout = 5 * time.Second
	cfg.Install.Protect = false
	cfg.Auth.TokenSecret = "test-secret"
	cfg.Telemetry.Enabled = false
	return cfg
}

func newTestApp(t *testing.T) *Application {
	logger := slog.New(testutil.NewBufferedSlogHandler(nil))
	services, err := NewServices(context.Background(), testConfig(t), logger,
		WithStore(store.NewMemoryStore(testutil.SeedAccounts(), testutil.SeedCatalog())),
		WithFingerprinter(security.StaticFingerprint(testutil.Fingerprint)),
		WithFetcher(testutil.NewStaticFetcher(artifactSize)))
	require.NoError(t, err)

	application, err := New(services)
	require.NoError(t, err)
	return application
}

func login(t *testing.T, baseURL string) string {
	body, _ := json.Marshal(map[string]string{"email": "driver@example.com", "password": "hunter2"})
	resp, err := http.Post(baseURL+"/api/session", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Token
}

type frame struct {
	Type events.MessageType `json:"type"`
	Data json.RawMessage    `json:"data"`
}

func TestApplication_InstallPushesEvents(t *testing.T) {
	application := newTestApp(t)
	application.Hub.Start()
	t.Cleanup(application.Hub.Stop)

	srv := httptest.NewServer(application.Router)
	t.Cleanup(srv.Close)

	token := login(t, srv.URL)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Authorization": {"Bearer " + token}})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	read := func() frame {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		return f
	}
	require.Equal(t, events.MessageTypeConnect, read().Type)

	body, _ := json.Marshal(map[string]string{"serial_key": "KEY-A"})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/mods/Mod%20A/install", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var complete *domain.SessionEvent
	var refresh *events.ModsRefresh
	for complete == nil || refresh == nil {
		f := read()
		switch f.Type {
		case events.MessageTypeSessionComplete:
			complete = &domain.SessionEvent{}
			require.NoError(t, json.Unmarshal(f.Data, complete))
		case events.MessageTypeModsRefresh:
			refresh = &events.ModsRefresh{}
			require.NoError(t, json.Unmarshal(f.Data, refresh))
		}
	}

	assert.Equal(t, domain.PhaseInstalled, complete.Phase)
	assert.Equal(t, "Installed", complete.Status)
	assert.Equal(t, "install", refresh.Reason)
	require.Len(t, refresh.Mods, 2)
	assert.True(t, refresh.Mods[0].Installed)
	assert.False(t, refresh.Mods[1].Installed)
	assert.True(t, application.Installer.IsInstalled("mod_a"))
}

func TestApplication_RunAndShutdown(t *testing.T) {
	application := newTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestServices_StoreReady(t *testing.T) {
	application := newTestApp(t)
	assert.NoError(t, application.StoreReady(context.Background()))
}
