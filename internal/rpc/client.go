package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 1 << 20

// FailureKind classifies why a call did not produce a result.
type FailureKind string

const (
	FailureNone       FailureKind = "none"
	FailureRefused    FailureKind = "refused"
	FailureTimeout    FailureKind = "timeout"
	FailureHTTPStatus FailureKind = "http_status"
	FailureMalformed  FailureKind = "malformed"
	FailureRPCError   FailureKind = "rpc_error"
	FailureTransport  FailureKind = "transport"
)

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Response is the outcome of one call. It is a value in every case;
// HasResult is true iff the node returned a well-formed "result" member.
type Response struct {
	Result    json.RawMessage `json:"result,omitempty"`
	HasResult bool            `json:"hasResult"`
	Error     *Error          `json:"rpcError,omitempty"`
	Err       string          `json:"error,omitempty"`
	Failure   FailureKind     `json:"failure"`
	Latency   time.Duration   `json:"-"`
}

// OK reports a well-formed response carrying a result.
func (r Response) OK() bool {
	return r.HasResult && r.Failure == FailureNone
}

// String returns the result as a string when it is a JSON string.
func (r Response) String() (string, bool) {
	if !r.HasResult {
		return "", false
	}
	v := gjson.ParseBytes(r.Result)
	if v.Type != gjson.String {
		return "", false
	}
	return v.String(), true
}

// Client issues JSON-RPC calls.
type Client interface {
	Call(ctx context.Context, method string, params ...any) Response
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      uint64 `json:"id"`
}

// HTTPClient speaks JSON-RPC 2.0 over HTTP POST.
type HTTPClient struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
	logger   logrus.FieldLogger
	nextID   atomic.Uint64
}

// NewHTTPClient calls endpoint with a per-call timeout.
func NewHTTPClient(endpoint string, timeout time.Duration, logger logrus.FieldLogger) *HTTPClient {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &HTTPClient{
		endpoint: endpoint,
		timeout:  timeout,
		http:     &http.Client{},
		logger:   logger,
	}
}

func (c *HTTPClient) Endpoint() string { return c.endpoint }

// Call never returns an error; every failure is described in the Response.
func (c *HTTPClient) Call(ctx context.Context, method string, params ...any) (resp Response) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			resp = Response{Failure: FailureTransport, Err: fmt.Sprintf("rpc client fault: %v", r)}
		}
		resp.Latency = time.Since(start)
	}()

	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(request{JSONRPC: "2.0", Method: method, Params: params, ID: c.nextID.Add(1)})
	if err != nil {
		return Response{Failure: FailureTransport, Err: fmt.Sprintf("encode request: %v", err)}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{Failure: FailureTransport, Err: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return c.transportFailure(ctx, method, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return c.transportFailure(ctx, method, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return Response{
			Failure: FailureHTTPStatus,
			Err:     fmt.Sprintf("unexpected HTTP status %d", httpResp.StatusCode),
		}
	}
	return parse(raw)
}

func (c *HTTPClient) transportFailure(ctx context.Context, method string, err error) Response {
	log := c.logger.WithField("method", method).WithError(err)
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || isTimeout(err):
		log.Debug("RPC call timed out")
		return Response{Failure: FailureTimeout, Err: fmt.Sprintf("timeout after %s", c.timeout)}
	case errors.Is(err, syscall.ECONNREFUSED):
		log.Debug("RPC connection refused")
		return Response{Failure: FailureRefused, Err: "connection refused"}
	default:
		log.Debug("RPC transport failure")
		return Response{Failure: FailureTransport, Err: err.Error()}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// parse inspects a JSON-RPC body without committing to a result schema.
func parse(raw []byte) Response {
	if !gjson.ValidBytes(raw) {
		return Response{Failure: FailureMalformed, Err: "malformed JSON-RPC response"}
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return Response{Failure: FailureMalformed, Err: "JSON-RPC response is not an object"}
	}

	if e := doc.Get("error"); e.Exists() && e.Type != gjson.Null {
		rpcErr := &Error{Code: int(e.Get("code").Int()), Message: e.Get("message").String()}
		if rpcErr.Message == "" {
			rpcErr.Message = e.Raw
		}
		return Response{Failure: FailureRPCError, Error: rpcErr, Err: rpcErr.Error()}
	}

	result := doc.Get("result")
	if !result.Exists() {
		return Response{Failure: FailureMalformed, Err: "JSON-RPC response has no result"}
	}
	return Response{
		Result:    json.RawMessage(result.Raw),
		HasResult: true,
		Failure:   FailureNone,
	}
}
