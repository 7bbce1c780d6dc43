package transport

import (
	"errors"
	"net/http"
)

// ErrNoData is returned by Transfer.Next when no chunk has arrived yet.
// The caller keeps ticking and asks again; it never waits.
var ErrNoData = errors.New("transport: no data buffered yet")

// Transfer is a non-blocking view of one in-flight download. Chunks arrive
// in order and are bounded in size; the full body is never held in memory.
type Transfer interface {
	// Next returns the next buffered chunk. It never blocks: ErrNoData
	// means nothing has arrived yet, io.EOF means the body completed
	// cleanly, any other error means the transfer is dead.
	Next() ([]byte, error)

	// Total reports the body size from the response headers, when known.
	Total() (int64, bool)

	// Close abandons the transfer and releases the connection.
	Close()
}

// Client issues firmware fetches. The core decides what to fetch and how to
// interpret the outcome; connection setup, TLS, and framing live behind
// this interface.
type Client interface {
	// Fetch starts a GET of the given URL. It returns immediately; the
	// response (including its status) is observed through the Transfer.
	Fetch(url string) (Transfer, error)
}

// Server is the listener seam used by the captive portal. Start binds and
// serves in the background; Stop tears the listener down and unblocks any
// in-flight handlers.
type Server interface {
	Start(addr string, handler http.Handler) error
	Stop() error
}
