// Package fetch downloads dependency bundles, resuming partial files left
// by an earlier run.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"github.com/darwinia-network/darwinia-builder/internal/utils/file"
	"github.com/darwinia-network/darwinia-builder/internal/utils/logger"
	"github.com/darwinia-network/darwinia-builder/internal/utils/network"
	"github.com/darwinia-network/darwinia-builder/internal/utils/security"
)

// ErrFetch wraps every network, HTTP status and local write failure of a
// download. The partial file stays on disk so the next run can resume.
var ErrFetch = errors.New("fetch failed")

var errStalled = errors.New("download stalled")

// Progress receives the byte count of every chunk written to disk.
type Progress interface {
	Set64(n int64) error
	Add64(n int64) error
	Finish() error
}

// ProgressFactory creates the indicator for one download. total is the full
// content length, or -1 when the server does not report it.
type ProgressFactory func(total int64, description string) Progress

// DownloadSession describes one fetch from start to completion or failure.
type DownloadSession struct {
	ID               uuid.UUID
	URL              string
	LocalPath        string
	BytesOnDisk      int64 // size of the local file before this session
	TotalSize        int64 // -1 when unknown
	BytesTransferred int64
	// Skipped is set when the local file was already complete.
	Skipped bool
}

type Fetcher struct {
	Client      *http.Client
	NewProgress ProgressFactory
	// StallTimeout aborts a download that receives no bytes for this long.
	// Zero disables the check.
	StallTimeout time.Duration
}

// NewFetcher returns a Fetcher whose requests fail when the server stays
// silent for timeout, however long the whole transfer takes.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		Client:       network.NewSecureHTTPClient(timeout),
		NewProgress:  NewProgressBar,
		StallTimeout: timeout,
	}
}

// NewProgressBar renders a byte-count bar with throughput and ETA on stderr.
func NewProgressBar(total int64, description string) Progress {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// FileName is the last path segment of rawURL.
func FileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("URL %q has no file name", rawURL)
	}
	return name, nil
}

// Fetch downloads rawURL into destDir under its last path segment. An
// existing file is treated as a prefix of the remote content and only the
// remaining bytes are requested.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, destDir string) (*DownloadSession, error) {
	name, err := FileName(rawURL)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create dest dir %s: %w", destDir, err)
	}

	s := &DownloadSession{
		ID:        uuid.New(),
		URL:       rawURL,
		LocalPath: filepath.Join(destDir, name),
		TotalSize: f.contentLength(ctx, rawURL),
	}
	log := logger.With("session", s.ID.String())

	onDisk, _, err := file.Size(s.LocalPath)
	if err != nil {
		return nil, err
	}
	s.BytesOnDisk = onDisk

	if s.TotalSize >= 0 && onDisk > 0 && onDisk >= s.TotalSize {
		log.Infof("%s already downloaded (%d bytes)", name, onDisk)
		s.Skipped = true
		return s, nil
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stall := newStallTimer(f.StallTimeout, func() { cancel(errStalled) })
	defer stall.stop()

	var resp *http.Response
	flag := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	for resp == nil {
		if s.BytesOnDisk > 0 {
			log.Infof("Resuming %s from byte %d", name, s.BytesOnDisk)
		}
		r, err := f.get(ctx, rawURL, s.BytesOnDisk)
		if err != nil {
			return s, fmt.Errorf("%w: GET %s: %w", ErrFetch, rawURL, stallCause(ctx, err))
		}

		switch {
		case r.StatusCode == http.StatusPartialContent && s.BytesOnDisk > 0:
			cr := r.Header.Get("Content-Range")
			if start := startFromContentRange(cr); start != s.BytesOnDisk {
				r.Body.Close()
				log.Warnf("Server sent range %q for %s instead of byte %d, restarting download", cr, name, s.BytesOnDisk)
				s.BytesOnDisk = 0
				continue
			}
			if s.TotalSize < 0 {
				s.TotalSize = totalFromContentRange(cr)
			}
			resp = r
		case r.StatusCode == http.StatusRequestedRangeNotSatisfiable && s.BytesOnDisk > 0:
			r.Body.Close()
			log.Infof("%s already downloaded (%d bytes)", name, s.BytesOnDisk)
			s.Skipped = true
			return s, nil
		case r.StatusCode == http.StatusOK:
			if s.BytesOnDisk > 0 {
				log.Warnf("Server ignored the range request for %s, restarting download", name)
				s.BytesOnDisk = 0
			}
			flag = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
			if s.TotalSize < 0 && r.ContentLength >= 0 {
				s.TotalSize = r.ContentLength
			}
			resp = r
		default:
			r.Body.Close()
			return s, fmt.Errorf("%w: GET %s: bad status: %s", ErrFetch, rawURL, r.Status)
		}
	}
	defer resp.Body.Close()

	out, err := security.SafeOpenFile(s.LocalPath, flag, 0o644, security.RejectSymlinks)
	if err != nil {
		return s, fmt.Errorf("%w: opening %s: %w", ErrFetch, s.LocalPath, err)
	}
	defer out.Close()

	bar := f.progress(s.TotalSize, name)
	if s.BytesOnDisk > 0 {
		if err := bar.Set64(s.BytesOnDisk); err != nil {
			log.Debugf("failed to set progress bar: %v", err)
		}
	}

	w := &progressWriter{w: out, bar: bar, onWrite: stall.touch}
	n, copyErr := io.Copy(w, resp.Body)
	s.BytesTransferred = n
	if copyErr != nil {
		log.Warnf("Download of %s interrupted after %d bytes, partial file kept at %s", name, n, s.LocalPath)
		return s, fmt.Errorf("%w: streaming %s: %w", ErrFetch, rawURL, stallCause(ctx, copyErr))
	}

	if err := out.Sync(); err != nil {
		return s, fmt.Errorf("%w: syncing %s: %w", ErrFetch, s.LocalPath, err)
	}
	if err := bar.Finish(); err != nil {
		log.Debugf("failed to finish progress bar: %v", err)
	}
	log.Infof("Downloaded %s (%d new bytes)", name, n)
	return s, nil
}

// contentLength asks for the size with a HEAD request. Failures are not
// fatal; the GET response is consulted instead.
func (f *Fetcher) contentLength(ctx context.Context, rawURL string) int64 {
	log := logger.Logger()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return -1
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		log.Debugf("HEAD %s failed: %v", rawURL, err)
		return -1
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Debugf("HEAD %s: %s", rawURL, resp.Status)
		return -1
	}
	return resp.ContentLength
}

func (f *Fetcher) progress(total int64, name string) Progress {
	if f.NewProgress == nil {
		return nopProgress{}
	}
	return f.NewProgress(total, name)
}

func (f *Fetcher) get(ctx context.Context, rawURL string, offset int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	return f.Client.Do(req)
}

// stallCause reports errStalled instead of the bare cancellation when the
// stall timer ended the request.
func stallCause(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); errors.Is(cause, errStalled) {
		return fmt.Errorf("%w: %w", cause, err)
	}
	return err
}

// startFromContentRange reads a from "bytes a-b/T", or -1.
func startFromContentRange(v string) int64 {
	v, ok := strings.CutPrefix(strings.TrimSpace(v), "bytes ")
	if !ok {
		return -1
	}
	i := strings.IndexByte(v, '-')
	if i < 0 {
		return -1
	}
	start, err := strconv.ParseInt(v[:i], 10, 64)
	if err != nil {
		return -1
	}
	return start
}

// totalFromContentRange reads T from "bytes a-b/T".
func totalFromContentRange(v string) int64 {
	i := strings.LastIndexByte(v, '/')
	if i < 0 {
		return -1
	}
	total, err := strconv.ParseInt(v[i+1:], 10, 64)
	if err != nil {
		return -1
	}
	return total
}

type progressWriter struct {
	w       io.Writer
	bar     Progress
	onWrite func()
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if n > 0 {
		_ = p.bar.Add64(int64(n))
		if p.onWrite != nil {
			p.onWrite()
		}
	}
	return n, err
}

// stallTimer fires when touch has not been called for d.
type stallTimer struct {
	t *time.Timer
	d time.Duration
}

func newStallTimer(d time.Duration, onStall func()) *stallTimer {
	if d <= 0 {
		return &stallTimer{}
	}
	return &stallTimer{t: time.AfterFunc(d, onStall), d: d}
}

func (st *stallTimer) touch() {
	if st.t != nil {
		st.t.Reset(st.d)
	}
}

func (st *stallTimer) stop() {
	if st.t != nil {
		st.t.Stop()
	}
}

type nopProgress struct{}

func (nopProgress) Set64(int64) error { return nil }
func (nopProgress) Add64(int64) error { return nil }
func (nopProgress) Finish() error     { return nil }
