package report

import (
	"context"
	"errors"
	"sync"
)

// ErrWriterClosed is returned by Merge after Close
var ErrWriterClosed = errors.New("report writer is closed")

type mergeRequest struct {
	region  string
	entries []Entry
	reply   chan mergeResult
}

type mergeResult struct {
	written int
	err     error
}

// Writer owns the report file. Merges submitted from any goroutine are applied one at a time.
type Writer struct {
	path     string
	requests chan mergeRequest
	closing  chan struct{}
	done     chan struct{}
	once     sync.Once
}

// NewWriter starts a writer for the report at path
func NewWriter(path string) *Writer {
	w := &Writer{
		path:     path,
		requests: make(chan mergeRequest),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Writer) run() {
	defer close(w.done)
	for {
		select {
		case req := <-w.requests:
			n, err := MergeFile(w.path, req.region, req.entries)
			req.reply <- mergeResult{written: n, err: err}
		case <-w.closing:
			return
		}
	}
}

// Merge appends entries under region and waits until they are on disk.
// An empty merge returns immediately without touching the file.
func (w *Writer) Merge(ctx context.Context, region string, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	req := mergeRequest{
		region:  region,
		entries: entries,
		reply:   make(chan mergeResult, 1),
	}

	select {
	case w.requests <- req:
	case <-w.closing:
		return 0, ErrWriterClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	// Once accepted the merge runs to completion
	res := <-req.reply
	return res.written, res.err
}

// Close stops the writer after any in-flight merge has finished
func (w *Writer) Close() {
	w.once.Do(func() {
		close(w.closing)
	})
	<-w.done
}
