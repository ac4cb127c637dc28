package resources

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	http3 "github.com/quic-go/quic-go/http3"

	"github.com/orizon-lang/scopeflow/internal/runtime/concurrency"
)

// HTTP3Endpoint wraps the lifecycle of a bound http3.Server: the UDP packet
// conn it owns, and the goroutine running Serve against it. Scoping this as
// an acquirable resource means a stream program can hand out leases on a
// running endpoint to concurrent sub-streams and have the last lessee's
// Cancel trigger the actual shutdown, rather than each sub-stream racing to
// tear the listener down itself.
type HTTP3Endpoint struct {
	srv  *http3.Server
	pc   net.PacketConn
	Addr string

	done  chan struct{}
	count *concurrency.Ref[int]
}

// RequestCount returns how many requests this endpoint has served so far.
// It is updated from the server's own goroutine via concurrency.Ref, so
// concurrent requests never lose an increment to a racing read-modify-write.
func (ep *HTTP3Endpoint) RequestCount() int {
	return ep.count.Get()
}

// AcquireHTTP3Endpoint starts an HTTP/3 server bound to addr (use ":0" for an
// ephemeral port) serving h under tlsCfg, and returns an acquire/release pair
// for scope.CompileScope.AcquireResource. The acquired value is
// *HTTP3Endpoint; Addr reports the actual bound address once acquire returns.
func AcquireHTTP3Endpoint(addr string, tlsCfg *tls.Config, h http.Handler) (func() (any, error), func(any) error) {
	acquire := func() (any, error) {
		pc, err := net.ListenPacket("udp", addr)
		if err != nil {
			return nil, fmt.Errorf("resources: listen %s: %w", addr, err)
		}

		count := concurrency.NewRef(0)

		counting := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count.Modify(func(n int) int { return n + 1 })
			h.ServeHTTP(w, r)
		})

		srv := &http3.Server{TLSConfig: tlsCfg, Handler: counting}

		done := make(chan struct{})

		go func() {
			defer close(done)
			_ = srv.Serve(pc)
		}()

		ep := &HTTP3Endpoint{
			srv:   srv,
			pc:    pc,
			Addr:  pc.LocalAddr().String(),
			done:  done,
			count: count,
		}

		return ep, nil
	}

	release := func(v any) error {
		ep := v.(*HTTP3Endpoint)
		return ep.Close()
	}

	return acquire, release
}

// Close shuts the endpoint down: closing the packet conn (which unblocks
// Serve) and waiting briefly for the Serve goroutine to notice and return.
func (ep *HTTP3Endpoint) Close() error {
	err := ep.pc.Close()

	select {
	case <-ep.done:
	case <-time.After(time.Second):
	}

	return err
}

// InsecureClientTLS returns a tls.Config suitable for talking to a locally
// acquired HTTP3Endpoint in tests and the demo CLI, where no real certificate
// chain is available.
func InsecureClientTLS() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12}
}

// Client builds an *http.Client whose RoundTripper speaks HTTP/3 under
// tlsCfg. Callers should call ShutdownClient when done with it.
func Client(tlsCfg *tls.Config, timeout time.Duration) *http.Client {
	return &http.Client{Transport: &http3.Transport{TLSClientConfig: tlsCfg}, Timeout: timeout}
}

// ShutdownClient closes c's HTTP/3 transport, if it has one.
func ShutdownClient(c *http.Client) error {
	if tr, ok := c.Transport.(*http3.Transport); ok {
		return tr.Close()
	}

	return nil
}
