// Package download fetches negotiated stream pairs to local files with
// retry, resumption where the server allows it, and a shared concurrency
// ceiling across jobs.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/bilifetch/bilifetch"
)

// CredentialSource provides a stable snapshot of the current credentials for
// authorized stream requests and receives the expiry signal when the platform
// rejects them. The session implements it; downloads never mutate credentials
// beyond that one signal.
type CredentialSource interface {
	Snapshot() (creds bilifetch.Credentials, ok bool)
	MarkExpired()
}

type Config struct {
	Client *http.Client
	// Concurrency caps how many jobs fetch simultaneously.
	Concurrency int64
	// MaxAttempts bounds retries per stream, including the first attempt.
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffFactor int
	UserAgent     string
	Referer       string
	// ProgressFunc, if set, receives cumulative (downloaded, expected) bytes.
	ProgressFunc func(downloaded, expected int64)
}

var DefaultConfig = Config{
	Concurrency:   3,
	MaxAttempts:   5,
	BackoffBase:   time.Second,
	BackoffFactor: 2,
	UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	Referer:       "https://www.bilibili.com",
}

type Downloader struct {
	config Config
	sem    *semaphore.Weighted
	creds  CredentialSource
	log    *zap.SugaredLogger

	progressMu sync.Mutex
	downloaded int64
	expected   int64
}

func New(config Config, creds CredentialSource) *Downloader {
	if config.Client == nil {
		config.Client = &http.Client{Timeout: 60 * time.Second}
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConfig.Concurrency
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultConfig.MaxAttempts
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = DefaultConfig.BackoffBase
	}
	if config.BackoffFactor <= 0 {
		config.BackoffFactor = DefaultConfig.BackoffFactor
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultConfig.UserAgent
	}
	if config.Referer == "" {
		config.Referer = DefaultConfig.Referer
	}
	return &Downloader{
		config: config,
		sem:    semaphore.NewWeighted(config.Concurrency),
		creds:  creds,
		log:    zap.S().Named("download"),
	}
}

// Run executes one job under the shared concurrency ceiling: video and audio
// streams fetch concurrently, each with its own retry budget, then both files
// are finalized with an atomic rename. The job ends Completed or Failed.
func (d *Downloader) Run(ctx context.Context, job *Job) error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		job.setStatus(StatusFailed)
		return err
	}
	defer d.sem.Release(1)

	job.setStatus(StatusInProgress)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.fetch(gctx, job, job.Pair.Video, job.VideoPath) })
	g.Go(func() error { return d.fetch(gctx, job, job.Pair.Audio, job.AudioPath) })
	if err := g.Wait(); err != nil {
		job.setStatus(StatusFailed)
		return err
	}
	job.setStatus(StatusCompleted)
	return nil
}

// fetch downloads one stream to finalPath with retry. Transient failures back
// off exponentially up to the attempt cap; auth rejection and cancellation
// abort immediately. Partial temp data survives a retry only when the server
// advertised byte-range support, otherwise it is discarded first.
func (d *Downloader) fetch(ctx context.Context, job *Job, opt bilifetch.StreamOption, finalPath string) error {
	if err := os.MkdirAll(filepath.Dir(finalPath), 0775); err != nil {
		return err
	}
	tempPath := fmt.Sprintf("%s.%s.tmp", finalPath, uuid.NewString())
	defer os.Remove(tempPath)

	urls := append([]string{opt.URL}, opt.BackupURLs...)
	backoff := d.config.BackoffBase
	var lastErr error
	var offset int64
	canResume := false

	for attempt := 1; attempt <= d.config.MaxAttempts; attempt++ {
		job.bumpAttempts()
		if attempt > 1 {
			job.setStatus(StatusRetrying)
			if !canResume {
				if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
					return err
				}
				offset = 0
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= time.Duration(d.config.BackoffFactor)
		}

		confirmed, resumable, err := d.fetchOnce(ctx, urls[(attempt-1)%len(urls)], tempPath, offset)
		offset, canResume = confirmed, resumable
		if err == nil {
			job.setStatus(StatusInProgress)
			return os.Rename(tempPath, finalPath)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, bilifetch.ErrAuthExpired) || !isTransient(err) {
			return err
		}
		lastErr = err
		d.log.Warnw("stream fetch failed",
			"job", job.ID, "kind", opt.Kind, "attempt", attempt, "error", err)
	}
	return &bilifetch.DownloadExhaustedError{Attempts: d.config.MaxAttempts, Cause: lastErr}
}

// fetchOnce performs a single transfer attempt, appending from offset when
// the previous attempt's data can be resumed. It returns the confirmed byte
// count now in the temp file and whether the server supports ranges.
func (d *Downloader) fetchOnce(ctx context.Context, rawURL, tempPath string, offset int64) (confirmed int64, resumable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return offset, false, err
	}
	req.Header.Set("User-Agent", d.config.UserAgent)
	req.Header.Set("Referer", d.config.Referer)
	creds, authorized := d.creds.Snapshot()
	if authorized {
		req.AddCookie(&http.Cookie{Name: "SESSDATA", Value: creds.SessionToken})
	}
	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
	}

	resp, err := d.config.Client.Do(req)
	if err != nil {
		return offset, false, fmt.Errorf("%w: %v", bilifetch.ErrTransientFetch, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if authorized {
			d.creds.MarkExpired()
			return offset, false, bilifetch.ErrAuthExpired
		}
		return offset, false, fmt.Errorf("stream request rejected: http %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return offset, false, fmt.Errorf("%w: http %d", bilifetch.ErrTransientFetch, resp.StatusCode)
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		// resuming from the confirmed offset
	case resp.StatusCode == http.StatusOK:
		offset = 0 // server ignored the range header; restart the file
	default:
		return offset, false, fmt.Errorf("unexpected http status %d", resp.StatusCode)
	}
	resumable = resp.StatusCode == http.StatusPartialContent ||
		strings.EqualFold(resp.Header.Get("Accept-Ranges"), "bytes")

	var f *os.File
	if offset > 0 {
		f, err = os.OpenFile(tempPath, os.O_WRONLY|os.O_APPEND, 0664)
	} else {
		f, err = os.OpenFile(tempPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0664)
	}
	if err != nil {
		return offset, resumable, err
	}
	defer f.Close()

	if resp.ContentLength > 0 {
		d.addExpected(resp.ContentLength)
	}
	n, err := io.Copy(f, &readerContext{ctx: ctx, r: io.TeeReader(resp.Body, progressWriter{d})})
	confirmed = offset + n
	if err != nil {
		return confirmed, resumable, fmt.Errorf("%w: %v", bilifetch.ErrTransientFetch, err)
	}
	return confirmed, resumable, nil
}

func isTransient(err error) bool {
	if errors.Is(err, bilifetch.ErrTransientFetch) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

type progressWriter struct {
	d *Downloader
}

func (w progressWriter) Write(p []byte) (int, error) {
	w.d.addDownloaded(int64(len(p)))
	return len(p), nil
}

func (d *Downloader) addDownloaded(n int64) {
	d.progressMu.Lock()
	d.downloaded += n
	downloaded, expected := d.downloaded, d.expected
	d.progressMu.Unlock()
	if d.config.ProgressFunc != nil {
		d.config.ProgressFunc(downloaded, expected)
	}
}

func (d *Downloader) addExpected(n int64) {
	d.progressMu.Lock()
	d.expected += n
	downloaded, expected := d.downloaded, d.expected
	d.progressMu.Unlock()
	if d.config.ProgressFunc != nil {
		d.config.ProgressFunc(downloaded, expected)
	}
}
