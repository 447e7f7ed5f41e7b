package provision

import (
	"archive/tar"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darwinia-network/darwinia-builder/internal/config"
	"github.com/darwinia-network/darwinia-builder/internal/crossenv"
	"github.com/darwinia-network/darwinia-builder/internal/fetch"
	"github.com/darwinia-network/darwinia-builder/internal/target"
	"github.com/darwinia-network/darwinia-builder/internal/toolchain"
	"github.com/darwinia-network/darwinia-builder/internal/utils/shell"
)

func rustupCommands(toolchainID string) []shell.MockCommand {
	return []shell.MockCommand{
		{Pattern: `^rustup --version$`, Output: "rustup 1.18.3\n"},
		{Pattern: `^cargo --version$`, Output: "cargo 1.38.0-nightly\n"},
		{Pattern: `^rustc --version$`, Output: "rustc 1.38.0-nightly\n"},
		{Pattern: `^rustup toolchain list$`, Output: toolchainID + " (default)\n"},
		{Pattern: `^rustup target list --toolchain ` + toolchainID + `$`, Output: "wasm32-unknown-unknown (installed)\nx86_64-unknown-linux-gnu (installed)\nx86_64-apple-darwin (default)\n"},
	}
}

func useMock(t *testing.T, commands []shell.MockCommand) *shell.MockExecutor {
	t.Helper()
	original := shell.Default
	mock := shell.NewMockExecutor(commands)
	shell.Default = mock
	t.Cleanup(func() { shell.Default = original })
	return mock
}

type countingServer struct {
	*httptest.Server
	hits atomic.Int32
}

func serve(t *testing.T, archive []byte) *countingServer {
	cs := &countingServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.hits.Add(1)
		if archive == nil {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, "bundle.tar.gz", time.Time{}, bytes.NewReader(archive))
	}))
	t.Cleanup(cs.Close)
	return cs
}

func linuxBundle(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := pgzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, f := range []string{
		"x86_64-linux/bin/x86_64-unknown-linux-gnu-gcc",
		"x86_64-linux/sysroot/lib/libc.so.6",
		"x86_64-linux/include/openssl/ssl.h",
		"x86_64-linux/lib/openssl/libssl.a",
		"x86_64-linux/lib/rocksdb/librocksdb.a",
	} {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: f, Mode: 0o755, Size: 1, Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte("x"))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func newConfig(t *testing.T, host, run, baseURL string) *config.ProvisioningConfig {
	t.Helper()
	gc := config.DefaultGlobalConfig()
	gc.WorkDir = t.TempDir()
	gc.CargoConfig = filepath.Join(t.TempDir(), "config")
	gc.BundleBaseURL = baseURL
	pc, err := config.NewProvisioningConfig(gc, host, run)
	require.NoError(t, err)
	pc.LookupEnv = func(string) (string, bool) { return "", false }
	return pc
}

func resolverFor(srv *countingServer) *crossenv.Resolver {
	return &crossenv.Resolver{Fetcher: &fetch.Fetcher{Client: srv.Client()}}
}

func TestNativeLinuxReady(t *testing.T) {
	srv := serve(t, nil)
	cfg := newConfig(t, "x86_64-unknown-linux-gnu", "", srv.URL)
	mock := useMock(t, rustupCommands(cfg.Toolchain))

	c := NewChecker(cfg, resolverFor(srv))
	assert.Equal(t, Unchecked, c.State())

	rep, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Ready, rep.State)
	assert.Equal(t, Ready, c.State())
	assert.Nil(t, rep.CrossEnv)
	assert.Empty(t, rep.Env())
	assert.Zero(t, srv.hits.Load(), "native builds never fetch a bundle")
	assert.Empty(t, mock.CallsMatching(`install|target add`))
}

func TestCrossDarwinToLinuxReady(t *testing.T) {
	srv := serve(t, linuxBundle(t))
	cfg := newConfig(t, "x86_64-apple-darwin", "x86_64-unknown-linux-gnu", srv.URL)
	useMock(t, append(rustupCommands(cfg.Toolchain),
		shell.MockCommand{Pattern: `x86_64-unknown-linux-gnu-gcc --version$`, Output: "x86_64-unknown-linux-gnu-gcc (GCC) 9.1.0\n"}))

	rep, err := NewChecker(cfg, resolverFor(srv)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Ready, rep.State, "gaps: %v", rep.Gaps)
	require.NotNil(t, rep.CrossEnv)
	assert.True(t, rep.CrossEnv.Fetched)

	bundleDir := filepath.Join(cfg.WorkDir, "x86_64-linux")
	assert.ElementsMatch(t, []string{
		"TARGET_CC=" + filepath.Join(bundleDir, "bin", "x86_64-unknown-linux-gnu-gcc"),
		"SYSROOT=" + filepath.Join(bundleDir, "sysroot"),
		"OPENSSL_INCLUDE_DIR=" + filepath.Join(bundleDir, "include"),
		"OPENSSL_LIB_DIR=" + filepath.Join(bundleDir, "lib", "openssl"),
		"ROCKSDB_LIB_DIR=" + filepath.Join(bundleDir, "lib", "rocksdb"),
	}, rep.Env())
}

func TestCrossGapsAreNotFatal(t *testing.T) {
	srv := serve(t, nil)
	cfg := newConfig(t, "x86_64-apple-darwin", "x86_64-unknown-linux-gnu", srv.URL)
	useMock(t, rustupCommands(cfg.Toolchain))

	rep, err := NewChecker(cfg, resolverFor(srv)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NotReady, rep.State)
	assert.NotEmpty(t, rep.Gaps)
	assert.True(t, rep.Toolchain.Ready(), "the toolchain part is still reported as ready")
}

func TestFatalManagerMissing(t *testing.T) {
	srv := serve(t, nil)
	cfg := newConfig(t, "x86_64-unknown-linux-gnu", "", srv.URL)
	useMock(t, nil)

	c := NewChecker(cfg, resolverFor(srv))
	rep, err := c.Run(context.Background())
	require.ErrorIs(t, err, toolchain.ErrManagerNotFound)
	assert.Equal(t, NotReady, rep.State)
	assert.Equal(t, NotReady, c.State())

	_, err = c.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyChecked)
}

func TestUnsupportedTripleRejectedFirst(t *testing.T) {
	srv := serve(t, nil)
	mock := useMock(t, rustupCommands("nightly-2019-07-14-x86_64-unknown-linux-gnu"))

	tests := []*config.ProvisioningConfig{
		{Host: target.X86_64Linux, Target: target.Wasm32, Aux: target.Wasm32, Cross: true},
		{Host: target.ARMLinux, Target: target.ARMLinux, Aux: target.Wasm32},
		{Host: target.X86_64Linux, Target: target.X86_64Linux, Aux: target.X86_64Linux},
	}
	for _, cfg := range tests {
		cfg.WorkDir = t.TempDir()
		cfg.BundleBaseURL = srv.URL
		rep, err := NewChecker(cfg, resolverFor(srv)).Run(context.Background())
		assert.ErrorIs(t, err, target.ErrUnsupported)
		assert.Equal(t, NotReady, rep.State)
	}
	assert.Empty(t, mock.Calls(), "no subprocess may run")
	assert.Zero(t, srv.hits.Load(), "no request may be sent")
}
