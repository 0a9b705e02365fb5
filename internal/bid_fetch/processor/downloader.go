package processor

import (
	"bid-fetch/internal/bid_fetch/files"
	"bid-fetch/internal/bid_fetch/model"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchSize        = 5
	defaultBatchDelay       = 500 * time.Millisecond
	defaultDownloadAttempts = 3
	defaultRetryDelay       = time.Second
	defaultDownloadTimeout  = 60 * time.Second
)

// Mirror receives a copy of every downloaded attachment.
type Mirror interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
}

// DownloadJob is the attachment list of one bid notice.
type DownloadJob struct {
	SearchID  string
	SearchDir string
	BidNo     string
	Refs      []model.AttachmentRef
}

// Downloader fetches attachments in fixed-size batches: files inside a batch are fetched
// concurrently, batches run one after another with BatchDelay in between.
type Downloader struct {
	Log        *zap.Logger
	HTTPClient *http.Client
	Mirror     Mirror

	BatchSize   int
	BatchDelay  time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	Timeout     time.Duration // per attempt

	Sleep func(ctx context.Context, d time.Duration) error
}

// NewDownloader creates a downloader with the default batching and retry policy.
func NewDownloader(log *zap.Logger, httpClient *http.Client) *Downloader {
	return &Downloader{
		Log:         log,
		HTTPClient:  httpClient,
		BatchSize:   defaultBatchSize,
		BatchDelay:  defaultBatchDelay,
		MaxAttempts: defaultDownloadAttempts,
		RetryDelay:  defaultRetryDelay,
		Timeout:     defaultDownloadTimeout,
	}
}

type downloadTask struct {
	ref  model.AttachmentRef
	dest string
}

// Download saves every attachment of the job as {SearchDir}/{BidNo}_{filename}; a repeated
// name within the notice gets the slot number appended before the extension. It never
// fails: each attempted attachment yields a record, with Downloaded=false and a nil LocalPath
// when every attempt failed. Refs without a URL or still pending are skipped without a record.
func (d *Downloader) Download(ctx context.Context, job DownloadJob) []model.DownloadedAttachment {
	tasks := d.plan(job)
	if len(tasks) == 0 {
		return []model.DownloadedAttachment{}
	}

	batch := d.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	batch = min(batch, len(tasks))

	results := make([]model.DownloadedAttachment, len(tasks))
	for start := 0; start < len(tasks); start += batch {
		if start > 0 {
			if err := d.sleep(ctx, d.BatchDelay); err != nil {
				d.Log.Warn("Batch pause interrupted", zap.String("bid_no", job.BidNo), zap.Error(err))
			}
		}
		end := min(start+batch, len(tasks))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = d.process(ctx, job, tasks[i])
				return nil
			})
		}
		_ = g.Wait()
	}
	return results
}

func (d *Downloader) plan(job DownloadJob) []downloadTask {
	tasks := make([]downloadTask, 0, len(job.Refs))
	seen := make(map[string]int, len(job.Refs))
	for _, ref := range job.Refs {
		if ref.URL == "" || ref.URL == model.PendingURL {
			continue
		}
		bidNo := files.SanitizeFilename(job.BidNo)
		name := files.SanitizeFilename(ref.Filename)
		if name == "" || strings.Trim(name, ".") == "" {
			name = fmt.Sprintf("%s_attachment_%d", bidNo, ref.Seq)
		} else {
			name = bidNo + "_" + name
		}
		if prev, ok := seen[name]; ok {
			ext := filepath.Ext(name)
			renamed := fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), ref.Seq, ext)
			d.Log.Warn("Attachment name collision, saving under a numbered name",
				zap.String("bid_no", job.BidNo),
				zap.String("file", name),
				zap.String("renamed", renamed),
				zap.Int("seq", ref.Seq),
				zap.Int("previousSeq", prev),
			)
			name = renamed
		}
		seen[name] = ref.Seq
		tasks = append(tasks, downloadTask{ref: ref, dest: filepath.Join(job.SearchDir, name)})
	}
	return tasks
}

func (d *Downloader) process(ctx context.Context, job DownloadJob, t downloadTask) model.DownloadedAttachment {
	rec := model.DownloadedAttachment{
		Filename: t.ref.Filename,
		URL:      t.ref.URL,
		Seq:      t.ref.Seq,
	}

	size, err := d.fetchWithRetry(ctx, t.ref.URL, t.dest)
	if err != nil {
		d.Log.Warn("Attachment download failed",
			zap.String("bid_no", job.BidNo),
			zap.String("file", t.ref.Filename),
			zap.Error(err),
		)
		return rec
	}

	dest := t.dest
	rec.LocalPath = &dest
	rec.Size = size
	rec.Downloaded = true

	if d.Mirror != nil {
		key := path.Join(job.SearchID, filepath.Base(dest))
		objectURL, err := d.Mirror.Upload(ctx, dest, key)
		if err != nil {
			d.Log.Warn("Attachment mirror upload failed", zap.String("key", key), zap.Error(err))
		} else {
			rec.ObjectURL = objectURL
		}
	}
	return rec
}

func (d *Downloader) fetchWithRetry(ctx context.Context, url, dest string) (int64, error) {
	attempts := d.MaxAttempts
	if attempts <= 0 {
		attempts = defaultDownloadAttempts
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		size, err := d.fetchOnce(ctx, url, dest)
		if err == nil {
			return size, nil
		}
		lastErr = err
		d.Log.Debug("Attachment attempt failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", attempts),
			zap.Error(err),
		)
		if attempt < attempts {
			if err := d.sleep(ctx, d.RetryDelay); err != nil {
				return 0, err
			}
		}
	}
	return 0, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

// fetchOnce streams the body into dest+".part" and renames it into place on success.
func (d *Downloader) fetchOnce(ctx context.Context, url, dest string) (int64, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultDownloadTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	tmp := dest + ".part"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open file: %w", err)
	}
	written, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("write body: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("rename: %w", err)
	}
	return written, nil
}

func (d *Downloader) sleep(ctx context.Context, dur time.Duration) error {
	if d.Sleep != nil {
		return d.Sleep(ctx, dur)
	}
	return sleepCtx(ctx, dur)
}
