package fetch

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProgress struct {
	mu       sync.Mutex
	total    int64
	set      int64
	added    int64
	chunks   int
	finished bool
}

func (p *fakeProgress) Set64(n int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.set = n
	return nil
}

func (p *fakeProgress) Add64(n int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.added += n
	p.chunks++
	return nil
}

func (p *fakeProgress) Finish() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished = true
	return nil
}

type recorder struct {
	mu     sync.Mutex
	bars   []*fakeProgress
	ranges []string
	gets   int
}

func (r *recorder) factory(total int64, _ string) Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := &fakeProgress{total: total}
	r.bars = append(r.bars, p)
	return p
}

func (r *recorder) seeGet(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	r.ranges = append(r.ranges, req.Header.Get("Range"))
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func newFetcher(rec *recorder) *Fetcher {
	f := NewFetcher(10 * time.Second)
	f.NewProgress = rec.factory
	return f
}

// contentServer serves content with full HEAD and Range support.
func contentServer(t *testing.T, rec *recorder, content []byte) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			rec.seeGet(r)
		}
		http.ServeContent(w, r, "x86_64-linux.tar.gz", time.Time{}, bytes.NewReader(content))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFileName(t *testing.T) {
	name, err := FileName("https://example.org/releases/download/deps/x86_64-linux.tar.gz?x=1")
	require.NoError(t, err)
	assert.Equal(t, "x86_64-linux.tar.gz", name)

	_, err = FileName("https://example.org/")
	assert.Error(t, err)
}

func TestFetchFresh(t *testing.T) {
	content := payload(64 * 1024)
	rec := &recorder{}
	srv := contentServer(t, rec, content)
	dir := t.TempDir()

	s, err := newFetcher(rec).Fetch(context.Background(), srv.URL+"/deps/x86_64-linux.tar.gz", dir)
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dir, "x86_64-linux.tar.gz"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, int64(0), s.BytesOnDisk)
	assert.Equal(t, int64(len(content)), s.TotalSize)
	assert.Equal(t, int64(len(content)), s.BytesTransferred)
	assert.Equal(t, []string{""}, rec.ranges)

	require.Len(t, rec.bars, 1)
	assert.Equal(t, int64(len(content)), rec.bars[0].total)
	assert.Equal(t, int64(len(content)), rec.bars[0].added)
	assert.True(t, rec.bars[0].finished)
}

func TestFetchResume(t *testing.T) {
	const total, partial = 10000, 3000
	content := payload(total)
	rec := &recorder{}
	srv := contentServer(t, rec, content)
	dir := t.TempDir()
	dest := filepath.Join(dir, "x86_64-linux.tar.gz")
	require.NoError(t, os.WriteFile(dest, content[:partial], 0o644))

	s, err := newFetcher(rec).Fetch(context.Background(), srv.URL+"/x86_64-linux.tar.gz", dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"bytes=" + strconv.Itoa(partial) + "-"}, rec.ranges)
	assert.Equal(t, int64(partial), s.BytesOnDisk)
	assert.Equal(t, int64(total-partial), s.BytesTransferred)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Len(t, got, total)
	assert.Equal(t, content, got)

	require.Len(t, rec.bars, 1)
	bar := rec.bars[0]
	assert.Equal(t, int64(total), bar.total, "indicator total is the full length")
	assert.Equal(t, int64(partial), bar.set)
	assert.Equal(t, int64(total-partial), bar.added)
	assert.Equal(t, int64(total), bar.set+bar.added)
}

func TestFetchResumeTotalFromContentRange(t *testing.T) {
	content := payload(5000)
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rec.seeGet(r)
		http.ServeContent(w, r, "b.tar.gz", time.Time{}, bytes.NewReader(content))
	}))
	defer srv.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.tar.gz"), content[:1000], 0o644))

	s, err := newFetcher(rec).Fetch(context.Background(), srv.URL+"/b.tar.gz", dir)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), s.TotalSize)
	require.Len(t, rec.bars, 1)
	assert.Equal(t, int64(5000), rec.bars[0].total)
}

func TestFetchAlreadyComplete(t *testing.T) {
	content := payload(2048)
	rec := &recorder{}
	srv := contentServer(t, rec, content)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x86_64-linux.tar.gz"), content, 0o644))

	s, err := newFetcher(rec).Fetch(context.Background(), srv.URL+"/x86_64-linux.tar.gz", dir)
	require.NoError(t, err)
	assert.True(t, s.Skipped)
	assert.Zero(t, rec.gets, "a complete file must not be requested again")
	assert.Empty(t, rec.bars)
}

func TestFetchServerIgnoresRange(t *testing.T) {
	content := payload(4096)
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		if r.Method == http.MethodHead {
			return
		}
		rec.seeGet(r)
		_, _ = w.Write(content)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "b.tar.gz")
	require.NoError(t, os.WriteFile(dest, content[:100], 0o644))

	s, err := newFetcher(rec).Fetch(context.Background(), srv.URL+"/b.tar.gz", dir)
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.BytesOnDisk)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, got, "file must be restarted, not appended to")
}

func TestFetchMismatchedRangeRestarts(t *testing.T) {
	content := payload(6000)
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		if r.Method == http.MethodHead {
			return
		}
		rec.seeGet(r)
		if r.Header.Get("Range") != "" {
			// Answers every range from the first byte.
			w.Header().Set("Content-Range", "bytes 0-5999/6000")
			w.WriteHeader(http.StatusPartialContent)
		}
		_, _ = w.Write(content)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "b.tar.gz")
	require.NoError(t, os.WriteFile(dest, content[:1000], 0o644))

	s, err := newFetcher(rec).Fetch(context.Background(), srv.URL+"/b.tar.gz", dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"bytes=1000-", ""}, rec.ranges)
	assert.Equal(t, int64(0), s.BytesOnDisk)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, got, "a misplaced range must not be appended")
}

func TestFetchStalledServerFails(t *testing.T) {
	content := payload(4096)
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(content[:1000])
		if fl, ok := w.(http.Flusher); ok {
			fl.Flush()
		}
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := newFetcher(rec)
	f.StallTimeout = 100 * time.Millisecond

	_, err := f.Fetch(context.Background(), srv.URL+"/b.tar.gz", dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetch)
	assert.ErrorIs(t, err, errStalled)

	got, err := os.ReadFile(filepath.Join(dir, "b.tar.gz"))
	require.NoError(t, err)
	assert.Equal(t, content[:1000], got)
}

func TestFetchSlowSteadyDownloadCompletes(t *testing.T) {
	content := payload(10 * 512)
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		if r.Method == http.MethodHead {
			return
		}
		fl, _ := w.(http.Flusher)
		for i := 0; i < len(content); i += 512 {
			_, _ = w.Write(content[i : i+512])
			if fl != nil {
				fl.Flush()
			}
			time.Sleep(30 * time.Millisecond)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := newFetcher(rec)
	f.StallTimeout = 200 * time.Millisecond

	_, err := f.Fetch(context.Background(), srv.URL+"/b.tar.gz", dir)
	require.NoError(t, err, "the transfer outlasts the timeout but never stalls")
	got, err := os.ReadFile(filepath.Join(dir, "b.tar.gz"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestFetchInterruptedKeepsPartialFile(t *testing.T) {
	content := payload(8192)
	const sent = 3000
	rec := &recorder{}
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		if r.Method == http.MethodHead {
			return
		}
		rec.seeGet(r)
		_, _ = w.Write(content[:sent])
		if fl, ok := w.(http.Flusher); ok {
			fl.Flush()
		}
		panic(http.ErrAbortHandler)
	}))
	defer broken.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "b.tar.gz")

	_, err := newFetcher(rec).Fetch(context.Background(), broken.URL+"/b.tar.gz", dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetch)

	got, err := os.ReadFile(dest)
	require.NoError(t, err, "partial file must remain on disk")
	assert.Equal(t, content[:sent], got)

	good := contentServer(t, rec, content)
	_, err = newFetcher(rec).Fetch(context.Background(), good.URL+"/b.tar.gz", dir)
	require.NoError(t, err)
	got, err = os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, "bytes=3000-", rec.ranges[len(rec.ranges)-1])
}

func TestFetchBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	dir := t.TempDir()

	_, err := newFetcher(&recorder{}).Fetch(context.Background(), srv.URL+"/missing.tar.gz", dir)
	assert.ErrorIs(t, err, ErrFetch)
	_, statErr := os.Stat(filepath.Join(dir, "missing.tar.gz"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/b.tar.gz"
	srv.Close()

	_, err := newFetcher(&recorder{}).Fetch(context.Background(), url, t.TempDir())
	assert.ErrorIs(t, err, ErrFetch)
}

func TestTotalFromContentRange(t *testing.T) {
	assert.Equal(t, int64(1000), totalFromContentRange("bytes 300-999/1000"))
	assert.Equal(t, int64(-1), totalFromContentRange("bytes 300-999/*"))
	assert.Equal(t, int64(-1), totalFromContentRange(""))
}

func TestStartFromContentRange(t *testing.T) {
	assert.Equal(t, int64(300), startFromContentRange("bytes 300-999/1000"))
	assert.Equal(t, int64(0), startFromContentRange("bytes 0-999/*"))
	assert.Equal(t, int64(-1), startFromContentRange("bytes */1000"))
	assert.Equal(t, int64(-1), startFromContentRange(""))
}
