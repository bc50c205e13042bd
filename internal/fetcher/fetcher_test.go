package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadbatch/internal/config"
	"github.com/sells-group/leadbatch/internal/resilience"
)

func testResolver(t *testing.T) *Resolver {
	t.Helper()
	opts := testOptions()
	opts.WorkDir = t.TempDir()
	return NewResolver(opts)
}

func TestResolve_LocalPassthrough(t *testing.T) {
	src, err := testResolver(t).Resolve(context.Background(), "testdata/leads.csv")
	require.NoError(t, err)
	assert.Equal(t, "testdata/leads.csv", src.Path)
	assert.False(t, src.Remote)
	assert.NoError(t, src.Close())
}

func TestResolve_LocalZip(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{"leads.tsv": "Company\tEmail\n"})

	src, err := testResolver(t).Resolve(context.Background(), zipPath)
	require.NoError(t, err)
	assert.Equal(t, "leads.tsv", filepath.Base(src.Path))
	assert.FileExists(t, src.Path)

	require.NoError(t, src.Close())
	assert.NoFileExists(t, src.Path)
}

func TestResolve_HTTPKeepsFileName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/exports/q3.csv", r.URL.Path)
		_, _ = w.Write([]byte("Company\nAcme\n"))
	}))
	defer srv.Close()

	src, err := testResolver(t).Resolve(context.Background(), srv.URL+"/exports/q3.csv?token=abc")
	require.NoError(t, err)
	defer src.Close() //nolint:errcheck

	assert.True(t, src.Remote)
	assert.Equal(t, "q3.csv", filepath.Base(src.Path))
	data, err := os.ReadFile(src.Path)
	require.NoError(t, err)
	assert.Equal(t, "Company\nAcme\n", string(data))
}

func TestResolve_HTTPFailureCleansUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	r := testResolver(t)
	_, err := r.Resolve(context.Background(), srv.URL+"/leads.csv")
	require.Error(t, err)

	entries, err := os.ReadDir(r.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestResolve_UnsupportedScheme(t *testing.T) {
	_, err := testResolver(t).Resolve(context.Background(), "s3://bucket/leads.csv")
	require.Error(t, err)
	assert.True(t, resilience.IsFatalConfig(err))
}

func TestRemoteScheme(t *testing.T) {
	tests := []struct {
		input  string
		scheme string
		remote bool
	}{
		{"leads.csv", "", false},
		{"/data/leads.csv", "", false},
		{`C:\data\leads.csv`, "", false},
		{"HTTPS://example.com/leads.csv", "https", true},
		{"ftp://ftp.example.com/leads.csv", "ftp", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			scheme, remote := remoteScheme(tt.input)
			assert.Equal(t, tt.remote, remote)
			assert.Equal(t, tt.scheme, scheme)
		})
	}
}

func TestRemoteName(t *testing.T) {
	assert.Equal(t, "leads.xlsx", remoteName("https://example.com/a/leads.xlsx"))
	assert.Equal(t, "input.csv", remoteName("https://example.com/"))
	assert.Equal(t, "input.csv", remoteName("https://example.com"))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{
		Fetch: config.FetchConfig{TimeoutSecs: 30, UserAgent: "ua", RateLimitRPS: 2},
		Retry: config.RetryConfig{MaxAttempts: 5},
	}
	opts := OptionsFromConfig(cfg)
	assert.Equal(t, "ua", opts.UserAgent)
	assert.Equal(t, 30.0, opts.Timeout.Seconds())
	assert.Equal(t, 5, opts.Retry.MaxAttempts)
}
