package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/cenkalti/backoff/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// HTTPConfig configures the gateway client.
type HTTPConfig struct {
	BaseURL    string
	Secret     string  // HS256 secret for bearer tokens; empty disables auth
	MinVersion string  // semver constraint lower bound, e.g. "1.4.0"
	RPS        float64 // requests per second, 0 means unlimited
	Burst      int
	Timeout    time.Duration
	MaxRetries uint
	Logger     *slog.Logger
}

// ErrGatewayVersion is returned when the gateway is older than MinVersion.
var ErrGatewayVersion = errors.New("chain: gateway version not supported")

// GatewayError is a non-2xx response from the gateway.
type GatewayError struct {
	Status  int
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("chain: gateway %d: %s", e.Status, e.Message)
}

// Temporary reports whether the request may succeed on retry.
func (e *GatewayError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// HTTPClient implements API against a signing/RPC gateway speaking JSON.
//
// Reads go through rate limiting, a circuit breaker and exponential backoff.
// Submit goes through the limiter and breaker only and is never retried.
type HTTPClient struct {
	cfg     HTTPConfig
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewHTTPClient builds a client. The transport is injectable for tests.
func NewHTTPClient(cfg HTTPConfig, transport http.RoundTripper) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Burst == 0 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "chain")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &HTTPClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout, Transport: transport},
		limiter: rate.NewLimiter(limit, cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "chain-gateway",
			Timeout: 10 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				var ge *GatewayError
				if errors.As(err, &ge) {
					return !ge.Temporary()
				}
				return err == nil
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
		logger: logger,
	}
}

func (c *HTTPClient) Call(method string, args ...any) Call { return NewCall(method, args...) }

func (c *HTTPClient) BatchAll(calls []Call) Call { return batchAll(calls) }

func (c *HTTPClient) ProxyWrap(real, proxyType string, call Call) Call {
	return proxyWrap(real, proxyType, call)
}

type queryRequest struct {
	Path string `json:"path"`
	Args []any  `json:"args"`
}

type queryResponse struct {
	Result json.RawMessage `json:"result"`
}

// Query reads storage, constants or RPC results by dotted path.
func (c *HTTPClient) Query(ctx context.Context, path string, args ...any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	var resp queryResponse
	if err := c.retrying(ctx, http.MethodPost, "/query", queryRequest{Path: path, Args: args}, &resp); err != nil {
		return nil, fmt.Errorf("chain: query %s: %w", path, err)
	}
	return resp.Result, nil
}

type feeRequest struct {
	Call Call   `json:"call"`
	From string `json:"from"`
}

type feeResponse struct {
	PartialFee string `json:"partialFee"`
}

// EstimateFee returns the partial fee for call signed by from.
func (c *HTTPClient) EstimateFee(ctx context.Context, call Call, from string) (Fee, error) {
	var resp feeResponse
	if err := c.retrying(ctx, http.MethodPost, "/fee", feeRequest{Call: call, From: from}, &resp); err != nil {
		return "", fmt.Errorf("chain: estimate %s: %w", call.Method, err)
	}
	return ParseFee(resp.PartialFee)
}

type submitRequest struct {
	Call      Call   `json:"call"`
	Address   string `json:"address"`
	Signature []byte `json:"signature"`
}

// Submit signs the canonical call and submits it once.
func (c *HTTPClient) Submit(ctx context.Context, call Call, signer Signer) (SubmitResult, error) {
	payload, err := call.Canonical()
	if err != nil {
		return SubmitResult{}, err
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("chain: sign: %w", err)
	}
	req := submitRequest{Call: call, Address: signer.Address(), Signature: sig}

	var res SubmitResult
	if err := c.once(ctx, http.MethodPost, "/submit", req, &res); err != nil {
		return SubmitResult{}, fmt.Errorf("chain: submit %s: %w", call.Method, err)
	}
	c.logger.InfoContext(ctx, "extrinsic included",
		"method", call.Method, "block", res.Block, "tx_hash", res.TxHash, "failed", res.Failed())
	return res, nil
}

type versionResponse struct {
	Version string `json:"version"`
}

// CheckVersion fails with ErrGatewayVersion when the gateway reports a
// version below MinVersion. No MinVersion means any gateway is accepted.
func (c *HTTPClient) CheckVersion(ctx context.Context) error {
	if c.cfg.MinVersion == "" {
		return nil
	}
	constraint, err := semver.NewConstraint(">= " + c.cfg.MinVersion)
	if err != nil {
		return fmt.Errorf("chain: invalid min version %q: %w", c.cfg.MinVersion, err)
	}
	var resp versionResponse
	if err := c.retrying(ctx, http.MethodGet, "/version", nil, &resp); err != nil {
		return fmt.Errorf("chain: version: %w", err)
	}
	v, err := semver.NewVersion(resp.Version)
	if err != nil {
		return fmt.Errorf("%w: unparseable %q", ErrGatewayVersion, resp.Version)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("%w: %s < %s", ErrGatewayVersion, v, c.cfg.MinVersion)
	}
	return nil
}

func (c *HTTPClient) retrying(ctx context.Context, method, path string, body, out any) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.once(ctx, method, path, body, out)
		var ge *GatewayError
		if errors.As(err, &ge) && !ge.Temporary() {
			return struct{}{}, backoff.Permanent(err)
		}
		if errors.Is(err, gobreaker.ErrOpenState) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.cfg.MaxRetries+1),
	)
	return err
}

func (c *HTTPClient) once(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, method, path, body, out)
	})
	return err
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.cfg.Secret != "" {
		token, err := c.token()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &GatewayError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &GatewayError{Status: resp.StatusCode, Message: "malformed response: " + err.Error()}
	}
	return nil
}

func (c *HTTPClient) token() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    "poolkit",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("chain: sign token: %w", err)
	}
	return signed, nil
}
