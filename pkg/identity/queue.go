package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/polkagate/poolkit/pkg/chain"
)

const (
	RequestTopic  = "identity.lookup.request"
	ResponseTopic = "identity.lookup.response"
)

// ErrQueueClosed is returned by Lookup when the queue is not running: before
// Start, after Close, or when Close interrupts a pending lookup.
var ErrQueueClosed = errors.New("identity: queue closed")

type lookupRequest struct {
	AccountIDs []string `json:"accountIds"`
}

type lookupResponse struct {
	AccountsInfo []AccountInfo `json:"accountsInfo"`
	Error        string        `json:"error,omitempty"`
}

// Queue runs identity lookups on a background worker. Requests and responses
// travel over an in-process pub/sub and are matched by correlation id.
type Queue struct {
	api    chain.API
	pubsub *gochannel.GoChannel
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]chan lookupResponse
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewQueue(api chain.API, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default().With("component", "identity")
	}
	return &Queue{
		api:     api,
		pubsub:  gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NewSlogLogger(logger)),
		logger:  logger,
		pending: make(map[string]chan lookupResponse),
	}
}

// Start subscribes the worker and the response dispatcher. It returns once
// both are listening.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if q.started {
		return errors.New("identity: queue already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	requests, err := q.pubsub.Subscribe(ctx, RequestTopic)
	if err != nil {
		cancel()
		return fmt.Errorf("identity: subscribe requests: %w", err)
	}
	responses, err := q.pubsub.Subscribe(ctx, ResponseTopic)
	if err != nil {
		cancel()
		return fmt.Errorf("identity: subscribe responses: %w", err)
	}

	q.wg.Add(2)
	go func() {
		defer q.wg.Done()
		for msg := range requests {
			q.handle(ctx, msg)
		}
	}()
	go func() {
		defer q.wg.Done()
		for msg := range responses {
			q.dispatch(msg)
		}
	}()
	q.started = true
	return nil
}

func (q *Queue) handle(ctx context.Context, msg *message.Message) {
	defer msg.Ack()
	id := middleware.MessageCorrelationID(msg)

	var req lookupRequest
	resp := lookupResponse{}
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		resp.Error = "malformed request: " + err.Error()
	} else if infos, err := q.resolve(ctx, req.AccountIDs); err != nil {
		resp.Error = err.Error()
	} else {
		resp.AccountsInfo = infos
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		q.logger.ErrorContext(ctx, "failed to marshal identity response", "correlation_id", id, "error", err)
		return
	}
	out := message.NewMessage(watermill.NewUUID(), payload)
	middleware.SetCorrelationID(id, out)
	if err := q.pubsub.Publish(ResponseTopic, out); err != nil {
		q.logger.ErrorContext(ctx, "failed to publish identity response", "correlation_id", id, "error", err)
	}
}

func (q *Queue) resolve(ctx context.Context, ids []string) ([]AccountInfo, error) {
	out := make([]AccountInfo, 0, len(ids))
	for _, id := range ids {
		raw, err := q.api.Query(ctx, chain.QueryIdentityOf, id)
		if err != nil {
			return nil, err
		}
		info := AccountInfo{AccountID: id}
		var ident *Identity
		if err := json.Unmarshal(raw, &ident); err != nil {
			return nil, fmt.Errorf("identity: decode %s: %w", id, err)
		}
		info.Identity = ident
		out = append(out, info)
	}
	return out, nil
}

func (q *Queue) dispatch(msg *message.Message) {
	defer msg.Ack()
	id := middleware.MessageCorrelationID(msg)

	q.mu.Lock()
	ch, ok := q.pending[id]
	delete(q.pending, id)
	q.mu.Unlock()
	if !ok {
		return
	}

	var resp lookupResponse
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		resp = lookupResponse{Error: "malformed response: " + err.Error()}
	}
	ch <- resp
}

// Lookup publishes a request for ids and waits for the correlated response.
func (q *Queue) Lookup(ctx context.Context, ids []string) ([]AccountInfo, error) {
	payload, err := json.Marshal(lookupRequest{AccountIDs: ids})
	if err != nil {
		return nil, err
	}
	id := watermill.NewUUID()
	ch := make(chan lookupResponse, 1)

	q.mu.Lock()
	if q.closed || !q.started {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}
	q.pending[id] = ch
	q.mu.Unlock()

	msg := message.NewMessage(watermill.NewUUID(), payload)
	middleware.SetCorrelationID(id, msg)
	if err := q.pubsub.Publish(RequestTopic, msg); err != nil {
		q.forget(id)
		return nil, fmt.Errorf("identity: publish request: %w", err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrQueueClosed
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("identity: lookup: %s", resp.Error)
		}
		return resp.AccountsInfo, nil
	case <-ctx.Done():
		q.forget(id)
		return nil, ctx.Err()
	}
}

func (q *Queue) forget(id string) {
	q.mu.Lock()
	delete(q.pending, id)
	q.mu.Unlock()
}

// Close stops the worker, fails pending lookups with ErrQueueClosed and
// rejects future ones.
func (q *Queue) Close() error {
	q.mu.Lock()
	q.closed = true
	for id, ch := range q.pending {
		close(ch)
		delete(q.pending, id)
	}
	cancel := q.cancel
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	err := q.pubsub.Close()
	q.wg.Wait()
	return err
}
