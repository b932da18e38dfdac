package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []int{200, 201, 202, 203, 204, 301, 302, 303, 304}, cfg.Scan.SuccessCodes)
	assert.Equal(t, []string{".html", ".php"}, cfg.Scan.FileExtensions)
	assert.Equal(t, 8, cfg.Scan.Threads)
	assert.Equal(t, 5*time.Second, cfg.Scan.BlindThreshold)
	assert.Equal(t, 8081, cfg.Proxy.Port)
	assert.Equal(t, "127.0.0.1:8081", cfg.Proxy.Addr())
	assert.Contains(t, cfg.Crawl.Extensions, "")
	assert.Len(t, cfg.ScanTypes["default"], 13)
	assert.Equal(t, []string{"info_disclosure"}, cfg.ScanTypes["info"])
}

func TestLoadFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wavs.yaml")
	yaml := `
scan:
  threads: 2
  blind_threshold: 2s
  success_codes: [200]
scan_types:
  quick:
    - files
    - parser
    - csrf
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Scan.Threads)
	assert.Equal(t, 2*time.Second, cfg.Scan.BlindThreshold)
	assert.Equal(t, []int{200}, cfg.Scan.SuccessCodes)
	assert.Equal(t, []string{"files", "parser", "csrf"}, cfg.ScanTypes["quick"])
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WAVS_SCAN_THREADS", "3")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Scan.Threads)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsZeroThreads(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Scan.Threads = 0
	assert.Error(t, cfg.Validate())
}

func TestAdjustSuccessCodes(t *testing.T) {
	s := ScanConfig{SuccessCodes: []int{200, 301, 302}}
	got := s.AdjustSuccessCodes([]int{403, 200}, []int{302})
	assert.Equal(t, []int{200, 301, 403}, got)
}
