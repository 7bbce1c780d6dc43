package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/internet-of-plants/libiop/internal/logging"
)

const (
	// DefaultChunkSize is how many bytes one buffered chunk holds. It
	// bounds both the memory held per chunk and the flash write size a
	// consumer performs per tick.
	DefaultChunkSize = 4096

	// DefaultChunkBuffer is how many chunks may be buffered ahead of the
	// consumer before the reader goroutine parks.
	DefaultChunkBuffer = 4

	// DefaultRequestTimeout caps the whole fetch, headers through body.
	DefaultRequestTimeout = 5 * time.Minute
)

// HTTPClient is the net/http-backed Client. The body is pumped into a
// bounded chunk queue by a background goroutine so that the consumer's
// Next never blocks.
type HTTPClient struct {
	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// ChunkSize is the byte size of each buffered chunk
	ChunkSize int

	// ChunkBuffer is how many chunks are buffered ahead of the consumer
	ChunkBuffer int
}

// NewHTTPClient creates a client with default chunking and timeout.
func NewHTTPClient() *HTTPClient {
	return &HTTPClient{
		HTTPClient:  &http.Client{Timeout: DefaultRequestTimeout},
		ChunkSize:   DefaultChunkSize,
		ChunkBuffer: DefaultChunkBuffer,
	}
}

type chunkResult struct {
	data []byte
	err  error
}

type httpTransfer struct {
	chunks chan chunkResult
	cancel context.CancelFunc

	total    atomic.Int64
	hasTotal atomic.Bool

	closed    chan struct{}
	closeOnce sync.Once
}

// Fetch starts the GET on a background goroutine and returns immediately.
func (c *HTTPClient) Fetch(url string) (Transfer, error) {
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("transport: building request: %w", err)
	}

	t := &httpTransfer{
		chunks: make(chan chunkResult, c.ChunkBuffer),
		cancel: cancel,
		closed: make(chan struct{}),
	}
	go c.pump(req, t)
	return t, nil
}

// pump performs the request and feeds the body into the chunk queue. All
// blocking happens here, never on the consumer side.
func (c *HTTPClient) pump(req *http.Request, t *httpTransfer) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		t.push(chunkResult{err: fmt.Errorf("transport: fetch %s: %w", req.URL, err)})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.push(chunkResult{err: fmt.Errorf("transport: fetch %s: unexpected status %d", req.URL, resp.StatusCode)})
		return
	}
	if resp.ContentLength >= 0 {
		t.total.Store(resp.ContentLength)
		t.hasTotal.Store(true)
	}
	logging.Debug("Transfer started",
		zap.String("url", req.URL.String()),
		zap.Int64("content_length", resp.ContentLength),
	)

	for {
		buf := make([]byte, c.ChunkSize)
		n, err := io.ReadFull(resp.Body, buf)
		if n > 0 {
			if !t.push(chunkResult{data: buf[:n]}) {
				return
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			t.push(chunkResult{err: io.EOF})
			return
		}
		if err != nil {
			t.push(chunkResult{err: fmt.Errorf("transport: reading body: %w", err)})
			return
		}
	}
}

// push queues a result, giving up if the transfer was closed underneath.
func (t *httpTransfer) push(r chunkResult) bool {
	select {
	case t.chunks <- r:
		return true
	case <-t.closed:
		return false
	}
}

// Next returns the next buffered chunk without blocking.
func (t *httpTransfer) Next() ([]byte, error) {
	select {
	case r := <-t.chunks:
		return r.data, r.err
	default:
		return nil, ErrNoData
	}
}

// Total reports the Content-Length, when the server sent one.
func (t *httpTransfer) Total() (int64, bool) {
	return t.total.Load(), t.hasTotal.Load()
}

// Close abandons the transfer.
func (t *httpTransfer) Close() {
	t.closeOnce.Do(func() {
		t.cancel()
		close(t.closed)
	})
}
