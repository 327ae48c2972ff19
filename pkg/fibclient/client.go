// Package fibclient is the RPC surface RouteProgrammer calls to program
// routes into the platform's FIB agent: add/delete/sync for unicast and
// MPLS routes, plus a liveness probe.
//
// Open/R calls this over Thrift's HeaderClientChannel atop a framed
// TAsyncSocket. Absent a Thrift toolchain, the wire protocol here is a
// length-prefixed encoding/gob request/response pair over a plain TCP
// connection — the same "frame, then decode a self-describing payload"
// shape, using the stdlib codec the teacher's gRPC/gNMI stack already
// pulls in transitively rather than hand-rolling one.
package fibclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/openr-go/fib-agent/pkg/api"
)

// Client is the set of operations RouteProgrammer issues against the
// platform FIB agent. Every method takes the clientID the caller was
// assigned when it registered with the platform agent (Open/R's own
// FIB client ID), matching spec.md §4.4.
type Client interface {
	AddUnicastRoutes(ctx context.Context, clientID int32, routes []api.UnicastRoute) error
	DeleteUnicastRoutes(ctx context.Context, clientID int32, prefixes []api.IpPrefix) error
	AddMplsRoutes(ctx context.Context, clientID int32, routes []api.MplsRoute) error
	DeleteMplsRoutes(ctx context.Context, clientID int32, labels []uint32) error
	SyncFib(ctx context.Context, clientID int32, routes []api.UnicastRoute) error
	SyncMplsFib(ctx context.Context, clientID int32, routes []api.MplsRoute) error
	AliveSince(ctx context.Context) (int64, error)
	Close() error
}

// methodName identifies which operation a request/response pair
// carries; gob needs a concrete type per value, so the envelope names
// the method and leaves the payload per-method.
type methodName string

const (
	methodAddUnicast    methodName = "AddUnicastRoutes"
	methodDeleteUnicast methodName = "DeleteUnicastRoutes"
	methodAddMpls       methodName = "AddMplsRoutes"
	methodDeleteMpls    methodName = "DeleteMplsRoutes"
	methodSyncFib       methodName = "SyncFib"
	methodSyncMplsFib   methodName = "SyncMplsFib"
	methodAliveSince    methodName = "AliveSince"
)

type request struct {
	Method        methodName
	ClientID      int32
	UnicastRoutes []wireUnicastRoute
	MplsRoutes    []wireMplsRoute
	Prefixes      []wireIpPrefix
	Labels        []uint32
}

type response struct {
	Error      string
	AliveSince int64
}

// Config bounds how long a tcpClient will wait to dial and to read a
// response, per spec.md §6's constructor-time configuration.
type Config struct {
	Addr            string
	DialTimeout     time.Duration
	ResponseTimeout time.Duration
}

// tcpClient lazily dials Addr on first use and keeps the connection
// open across calls; any I/O error tears the connection down so the
// next call redials. It never retries internally — per §4.4, retry is
// the caller's job.
type tcpClient struct {
	cfg Config

	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

// New returns a Client dialing cfg.Addr on first use.
func New(cfg Config) Client {
	return &tcpClient{cfg: cfg}
}

func (c *tcpClient) ensureConn(ctx context.Context) (net.Conn, *bufio.Reader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn, c.r, nil
	}

	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return nil, nil, fmt.Errorf("fibclient: dial %s: %w", c.cfg.Addr, err)
	}
	c.conn = conn
	c.r = bufio.NewReader(conn)
	return c.conn, c.r, nil
}

func (c *tcpClient) teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.r = nil
	}
}

func (c *tcpClient) call(ctx context.Context, req request) (response, error) {
	conn, r, err := c.ensureConn(ctx)
	if err != nil {
		return response{}, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	} else {
		conn.SetWriteDeadline(time.Now().Add(c.cfg.ResponseTimeout))
	}
	if err := writeFramed(conn, req); err != nil {
		c.teardown()
		return response{}, fmt.Errorf("fibclient: write %s: %w", req.Method, err)
	}

	conn.SetReadDeadline(time.Now().Add(c.cfg.ResponseTimeout))
	var resp response
	if err := readFramed(r, &resp); err != nil {
		c.teardown()
		return response{}, fmt.Errorf("fibclient: read %s reply: %w", req.Method, err)
	}
	if resp.Error != "" {
		return response{}, fmt.Errorf("fibclient: %s: %s", req.Method, resp.Error)
	}
	return resp, nil
}

func writeFramed(w net.Conn, v any) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(buf.Len()))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func readFramed(r *bufio.Reader, v any) error {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return err
	}
	return gob.NewDecoder(bytes.NewReader(payload)).Decode(v)
}

func (c *tcpClient) AddUnicastRoutes(ctx context.Context, clientID int32, routes []api.UnicastRoute) error {
	_, err := c.call(ctx, request{Method: methodAddUnicast, ClientID: clientID, UnicastRoutes: toWireUnicastRoutes(routes)})
	return err
}

func (c *tcpClient) DeleteUnicastRoutes(ctx context.Context, clientID int32, prefixes []api.IpPrefix) error {
	_, err := c.call(ctx, request{Method: methodDeleteUnicast, ClientID: clientID, Prefixes: toWireIpPrefixes(prefixes)})
	return err
}

func (c *tcpClient) AddMplsRoutes(ctx context.Context, clientID int32, routes []api.MplsRoute) error {
	_, err := c.call(ctx, request{Method: methodAddMpls, ClientID: clientID, MplsRoutes: toWireMplsRoutes(routes)})
	return err
}

func (c *tcpClient) DeleteMplsRoutes(ctx context.Context, clientID int32, labels []uint32) error {
	_, err := c.call(ctx, request{Method: methodDeleteMpls, ClientID: clientID, Labels: labels})
	return err
}

func (c *tcpClient) SyncFib(ctx context.Context, clientID int32, routes []api.UnicastRoute) error {
	_, err := c.call(ctx, request{Method: methodSyncFib, ClientID: clientID, UnicastRoutes: toWireUnicastRoutes(routes)})
	return err
}

func (c *tcpClient) SyncMplsFib(ctx context.Context, clientID int32, routes []api.MplsRoute) error {
	_, err := c.call(ctx, request{Method: methodSyncMplsFib, ClientID: clientID, MplsRoutes: toWireMplsRoutes(routes)})
	return err
}

func (c *tcpClient) AliveSince(ctx context.Context) (int64, error) {
	resp, err := c.call(ctx, request{Method: methodAliveSince})
	if err != nil {
		return 0, err
	}
	return resp.AliveSince, nil
}

func (c *tcpClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.r = nil
	return err
}
