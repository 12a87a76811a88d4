package application

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/staffgrid/internal/config"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(func(k string) string { return env[k] })
	require.NoError(t, err)
	return cfg
}

func TestNewWiresOptionalComponents(t *testing.T) {
	ctx := context.Background()

	a, err := New(ctx, testConfig(t, map[string]string{"METRICS_ENABLED": "false"}), nil)
	require.NoError(t, err)
	assert.Nil(t, a.Metrics)
	assert.Nil(t, a.Archive)
	assert.Nil(t, a.DropFolder)
	assert.Equal(t, 10, a.Store.Len())

	a, err = New(ctx, testConfig(t, map[string]string{
		"EXPORT_ARCHIVE_DRIVER": "fs",
		"EXPORT_ARCHIVE_DIR":    t.TempDir(),
		"DROP_FOLDER_DIR":       t.TempDir(),
	}), nil)
	require.NoError(t, err)
	assert.NotNil(t, a.Metrics)
	assert.NotNil(t, a.Archive)
	assert.NotNil(t, a.DropFolder)
}

func TestNewRejectsBadSeed(t *testing.T) {
	_, err := New(context.Background(), testConfig(t, map[string]string{
		"SEED_FILE": filepath.Join(t.TempDir(), "missing.yaml"),
	}), nil)
	assert.ErrorContains(t, err, "seed")
}

func TestRunServesAndShutsDown(t *testing.T) {
	port := freePort(t)
	dropDir := t.TempDir()
	cfg := testConfig(t, map[string]string{
		"SERVER_HOST":             "127.0.0.1",
		"SERVER_PORT":             strconv.Itoa(port),
		"SERVER_SHUTDOWN_TIMEOUT": "5s",
		"EXPORT_ARCHIVE_DRIVER":   "memory",
		"DROP_FOLDER_DIR":         dropDir,
		"DROP_FOLDER_DEBOUNCE":    "20ms",
	})

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	base := "http://" + cfg.Server.Addr()
	require.Eventually(t, func() bool {
		res, err := client.Get(base + "/health")
		if err != nil {
			return false
		}
		res.Body.Close()
		return res.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dropDir, "batch.csv"),
		[]byte("Name,Department,JoinDate\n폴더,개발,2024-06-01\n"), 0o644))
	require.Eventually(t, func() bool { return a.Store.Len() == 11 }, 5*time.Second, 20*time.Millisecond)

	res, err := client.Get(base + "/api/export")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, res.Body)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	archived, err := a.Archive.List(context.Background(), cfg.Export.Prefix)
	require.NoError(t, err)
	assert.Len(t, archived, 1)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
