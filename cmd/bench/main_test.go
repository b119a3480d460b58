package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags_ConfigFileWithOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"shards_cnt": 64, // overridden below
		"max_size": 1048576,
		"expire": "30s",
	}`), 0o600))

	o, err := parseFlags(&bytes.Buffer{}, []string{"--config", path, "--shards", "16", "--keys", "100"})
	require.NoError(t, err)
	assert.Equal(t, 16, o.cfg.Shards)
	assert.Equal(t, int64(1<<20), o.cfg.MaxSize)
	assert.Equal(t, int64(30*time.Second), o.cfg.ExpireNs)
	assert.Equal(t, 50, o.preload)
}

// A config file without max_size keeps the --max-size default.
func TestParseFlags_ConfigFileWithoutMaxSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{"shards_cnt": 8}`), 0o600))

	o, err := parseFlags(&bytes.Buffer{}, []string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, 8, o.cfg.Shards)
	assert.Equal(t, int64(256<<20), o.cfg.MaxSize)

	o, err = parseFlags(&bytes.Buffer{}, []string{"--config", path, "--max-size", "4096"})
	require.NoError(t, err)
	assert.Equal(t, int64(4096), o.cfg.MaxSize)
}

func TestParseFlags_Validation(t *testing.T) {
	for _, args := range [][]string{
		{"--reads", "101"},
		{"--keys", "1"},
		{"--value-size", "0"},
		{"--zipf-s", "1"},
		{"--no-such-flag"},
	} {
		_, err := parseFlags(&bytes.Buffer{}, args)
		assert.Error(t, err, strings.Join(args, " "))
	}
}

func TestRun_ShortWorkload(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{
		"--shards", "4", "--max-size", "1048576", "--keys", "1000",
		"--value-size", "64", "--workers", "2", "--duration", "50ms", "-v", "0",
	}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "shards=4")
	assert.Contains(t, out.String(), "hit-rate=")
}
