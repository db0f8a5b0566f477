// internal/rpcbus/grpcbus/bus.go
// gRPC-backed implementation of rpcbus.Client: a single long-lived bidi
// stream correlates requests to responses by ULID id, with automatic
// reconnect on stream failure. The reconnect shape (exponential backoff,
// bounded max elapsed time, a "closing" channel to unblock retries on
// Close) is lifted directly from the teacher's agent gRPC exporter.
package grpcbus

import (
    "context"
    "encoding/json"
    "io"
    "sync"
    "time"

    "github.com/cenkalti/backoff/v4"
    "google.golang.org/grpc"
    "google.golang.org/grpc/credentials/insecure"

    "github.com/kestrelgw/appgw/internal/gateway"
    "github.com/kestrelgw/appgw/internal/logging"
    "github.com/kestrelgw/appgw/internal/util"
)

// Config parameterises the bus client.
type Config struct {
    Addr         string
    DialOpts     []grpc.DialOption
    StreamRetry  backoff.BackOff
    CallTimeout  time.Duration // bounds how long Invoke waits for a response
}

// Client implements rpcbus.Client over a single bidi gRPC stream.
type Client struct {
    cfg Config
    cc  *grpc.ClientConn

    mu     sync.Mutex
    stream grpc.ClientStream

    pendingMu sync.Mutex
    pending   map[string]chan responseEnvelope

    closing chan struct{}
}

// Dial connects to the bus and starts its receive loop. Blocks until the
// first handshake succeeds.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
    if cfg.StreamRetry == nil {
        bo := backoff.NewExponentialBackOff()
        bo.InitialInterval = 250 * time.Millisecond
        bo.MaxInterval = 10 * time.Second
        bo.MaxElapsedTime = 30 * time.Second
        cfg.StreamRetry = bo
    }
    if cfg.CallTimeout <= 0 {
        cfg.CallTimeout = 5 * time.Second
    }
    c := &Client{
        cfg:     cfg,
        pending: make(map[string]chan responseEnvelope),
        closing: make(chan struct{}),
    }
    if err := c.connect(ctx); err != nil {
        return nil, err
    }
    return c, nil
}

func (c *Client) connect(ctx context.Context) error {
    opts := append([]grpc.DialOption{}, c.cfg.DialOpts...)
    hasCreds := false
    for _, o := range opts {
        if _, ok := o.(grpc.CredsCallOption); ok {
            hasCreds = true
        }
    }
    if !hasCreds {
        opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
    }

    cc, err := grpc.NewClient(c.cfg.Addr, opts...)
    if err != nil {
        return err
    }

    stream, err := cc.NewStream(ctx, &grpc.StreamDesc{StreamName: "Dispatch", ServerStreams: true, ClientStreams: true},
        dispatchMethod, grpc.CallContentSubtype(codecName))
    if err != nil {
        _ = cc.Close()
        return err
    }

    c.mu.Lock()
    c.cc = cc
    c.stream = stream
    c.mu.Unlock()

    go c.recvLoop(stream)
    return nil
}

func (c *Client) recvLoop(stream grpc.ClientStream) {
    for {
        var resp responseEnvelope
        if err := stream.RecvMsg(&resp); err != nil {
            if err != io.EOF {
                logging.Sugar().Warnw("rpcbus recv", "err", err)
            }
            c.reconnect()
            return
        }
        c.pendingMu.Lock()
        ch, ok := c.pending[resp.ID]
        if ok {
            delete(c.pending, resp.ID)
        }
        c.pendingMu.Unlock()
        if ok {
            ch <- resp
        }
    }
}

func (c *Client) reconnect() {
    select {
    case <-c.closing:
        return
    default:
    }

    bo := c.cfg.StreamRetry
    bo.Reset()
    for {
        next := bo.NextBackOff()
        if next == backoff.Stop {
            return
        }
        select {
        case <-time.After(next):
        case <-c.closing:
            return
        }
        if err := c.connect(context.Background()); err == nil {
            return
        }
    }
}

// Invoke implements rpcbus.Client.
func (c *Client) Invoke(ctx context.Context, callsign, method string, params json.RawMessage, gctx gateway.GatewayContext) (string, *gateway.RouteError) {
    id := util.MustNew()

    req := requestEnvelope{
        ID:           id,
        Callsign:     callsign,
        Method:       method,
        Params:       params,
        AppID:        string(gctx.AppId),
        ConnectionID: uint32(gctx.ConnectionId),
        RequestID:    uint32(gctx.RequestId),
    }

    respCh := make(chan responseEnvelope, 1)
    c.pendingMu.Lock()
    c.pending[id] = respCh
    c.pendingMu.Unlock()

    c.mu.Lock()
    stream := c.stream
    c.mu.Unlock()

    if stream == nil {
        return "", &gateway.RouteError{Kind: gateway.KindBackendUnavailable, Message: callsign}
    }
    if err := stream.SendMsg(&req); err != nil {
        c.pendingMu.Lock()
        delete(c.pending, id)
        c.pendingMu.Unlock()
        return "", &gateway.RouteError{Kind: gateway.KindBackendUnavailable, Message: err.Error()}
    }

    timeout := c.cfg.CallTimeout
    select {
    case resp := <-respCh:
        if resp.ErrorMessage != "" {
            return "", &gateway.RouteError{Kind: gateway.KindBackendError, Message: resp.ErrorMessage, Code: resp.ErrorCode}
        }
        return resp.Result, nil
    case <-time.After(timeout):
        c.pendingMu.Lock()
        delete(c.pending, id)
        c.pendingMu.Unlock()
        return "", &gateway.RouteError{Kind: gateway.KindBackendUnavailable, Message: "timeout waiting for " + callsign}
    case <-ctx.Done():
        return "", &gateway.RouteError{Kind: gateway.KindBackendUnavailable, Message: ctx.Err().Error()}
    case <-c.closing:
        return "", &gateway.RouteError{Kind: gateway.KindShutdown}
    }
}

// Close stops the receive loop and releases the underlying connection.
func (c *Client) Close() error {
    close(c.closing)
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.cc != nil {
        return c.cc.Close()
    }
    return nil
}
