// Package queue runs a single-worker FIFO over the Store's downloads table,
// invoking the Downloader for each queued row and retrying transient failures.
package queue

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/animedb/animedb-node/internal/downloader"
	"github.com/animedb/animedb-node/internal/metrics"
	"github.com/animedb/animedb-node/internal/store"
)

// MaxRetries is the total number of attempts (the first try plus automatic
// retries) before a job is marked failed.
const MaxRetries = 2

// Downloader is the subset of *downloader.Downloader the queue depends on.
type Downloader interface {
	Download(ctx context.Context, jobID, url string, onProgress downloader.ProgressFunc) (*downloader.Result, error)
	Cancel(jobID string) error
}

// Queue drives downloads.queued rows through the Downloader one at a time.
type Queue struct {
	store *store.Store
	dl    Downloader

	wake chan struct{}
}

// New returns a Queue bound to s and dl. Call Run to start the worker loop.
func New(s *store.Store, dl Downloader) *Queue {
	return &Queue{
		store: s,
		dl:    dl,
		wake:  make(chan struct{}, 1),
	}
}

// Wake nudges the worker loop to check for newly queued work immediately,
// instead of waiting for its next poll tick. Safe to call any number of times.
func (q *Queue) Wake() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Run recovers any row left mid-flight from a prior crash, then processes
// queued rows one at a time until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	if n, err := q.store.RecoverInFlightDownloads(); err != nil {
		return err
	} else if n > 0 {
		log.Printf("queue: recovered %d in-flight download(s) after restart", n)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		q.drain(ctx)
		q.ReportDepth()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.wake:
		case <-ticker.C:
		}
	}
}

// drain processes queued rows until none remain or ctx is cancelled.
func (q *Queue) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		rows, err := q.store.ListDownloads(store.StatusQueued)
		if err != nil {
			log.Printf("queue: list queued: %v", err)
			return
		}
		if len(rows) == 0 {
			return
		}
		// Oldest first; ListDownloads(status) orders by created_at DESC, so take the last.
		job := rows[len(rows)-1]
		q.process(ctx, job)
	}
}

// ReportDepth recomputes and publishes the queue_depth gauge. Call this
// periodically (e.g. from the HTTP server's /metrics scrape path is too late;
// wire it into the same ticker loop that drives Run).
func (q *Queue) ReportDepth() {
	queued, err := q.store.ListDownloads(store.StatusQueued)
	if err != nil {
		return
	}
	downloading, err := q.store.ListDownloads(store.StatusDownloading)
	if err != nil {
		return
	}
	metrics.QueueDepth.Set(float64(len(queued) + len(downloading)))
}

func (q *Queue) process(ctx context.Context, job *store.Download) {
	if err := q.store.UpdateDownloadProgress(job.ID, store.StatusDownloading, 0); err != nil {
		log.Printf("queue: mark downloading %s: %v", job.ID, err)
		return
	}

	result, err := q.dl.Download(ctx, job.ID, job.URL, func(percent int, speed, eta string) {
		if e := q.store.UpdateDownloadProgress(job.ID, store.StatusDownloading, percent); e != nil {
			log.Printf("queue: progress update %s: %v", job.ID, e)
		}
	})

	switch {
	case err == nil:
		if compErr := q.store.CompleteDownload(job.ID, result.FilePath); compErr != nil {
			log.Printf("queue: complete %s: %v", job.ID, compErr)
			return
		}
		if job.Title == "" && result.Title != "" {
			if tErr := q.store.SetDownloadTitle(job.ID, result.Title); tErr != nil {
				log.Printf("queue: adopt tool title %s: %v", job.ID, tErr)
			}
		}
		metrics.DownloadsTotal.WithLabelValues(string(store.StatusCompleted)).Inc()
		log.Printf("queue: completed %s -> %s", job.ID, result.FilePath)

	case errors.Is(err, downloader.ErrCancelled):
		if cErr := q.store.CancelDownload(job.ID); cErr != nil {
			log.Printf("queue: cancel %s: %v", job.ID, cErr)
		}
		metrics.DownloadsTotal.WithLabelValues(string(store.StatusCancelled)).Inc()
		log.Printf("queue: cancelled %s", job.ID)

	default:
		// FailDownload always records the error and bumps attempts first, so
		// the attempt count is accurate whether or not we requeue below.
		if fErr := q.store.FailDownload(job.ID, err.Error()); fErr != nil {
			log.Printf("queue: record failure %s: %v", job.ID, fErr)
			return
		}
		if job.Attempts+1 < MaxRetries {
			if rErr := q.store.RequeueDownload(job.ID); rErr != nil {
				log.Printf("queue: requeue %s: %v", job.ID, rErr)
			}
			log.Printf("queue: %s failed (attempt %d/%d), retrying: %v", job.ID, job.Attempts+1, MaxRetries, err)
		} else {
			metrics.DownloadsTotal.WithLabelValues(string(store.StatusFailed)).Inc()
			log.Printf("queue: %s failed permanently: %v", job.ID, err)
		}
	}
}

// Cancel requests cancellation of an in-flight job.
func (q *Queue) Cancel(jobID string) error {
	return q.dl.Cancel(jobID)
}
