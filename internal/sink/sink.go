package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/devblac/event-relay/internal/source/evm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// ChainContext describes where a record came from.
type ChainContext struct {
	ChainID int64
	Target  string
	Family  string
}

// Payload is the JSON body posted to a destination.
type Payload struct {
	DeliveryID string     `json:"deliveryId"`
	Target     string     `json:"target"`
	Family     string     `json:"family"`
	Record     evm.Record `json:"record"`
}

// Result describes one delivery attempt.
type Result struct {
	DeliveryID string
	StatusCode int
}

// Sender forwards a decoded record to a destination URL.
type Sender interface {
	Send(ctx context.Context, destination string, rec evm.Record, cc ChainContext) (Result, error)
}

// StatusError reports a non-2xx response from a sink.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sink http status %d", e.Code)
}

const (
	headerAPIKey      = "x-api-key"
	headerIdempotency = "Idempotency-Key"
	headerDeliveryID  = "X-Delivery-Id"
)

// HTTPSender posts records as JSON.
type HTTPSender struct {
	apiKey  string
	client  *http.Client
	headers map[string]string
	newID   func() string
}

// NewHTTPSender builds an HTTP sink that authenticates with apiKey.
func NewHTTPSender(apiKey string, headers map[string]string) *HTTPSender {
	return &HTTPSender{
		apiKey:  apiKey,
		client:  defaultClient(),
		headers: headers,
		newID:   uuid.NewString,
	}
}

func (s *HTTPSender) Send(ctx context.Context, destination string, rec evm.Record, cc ChainContext) (Result, error) {
	res := Result{DeliveryID: s.newID()}
	if destination == "" {
		return res, fmt.Errorf("destination url required")
	}

	body, err := json.Marshal(Payload{
		DeliveryID: res.DeliveryID,
		Target:     cc.Target,
		Family:     cc.Family,
		Record:     rec,
	})
	if err != nil {
		return res, fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, bytes.NewReader(body))
	if err != nil {
		return res, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	if s.apiKey != "" {
		req.Header.Set(headerAPIKey, s.apiKey)
	}
	req.Header.Set(headerIdempotency, IdempotencyKey(rec))
	req.Header.Set(headerDeliveryID, res.DeliveryID)

	resp, err := s.client.Do(req)
	if err != nil {
		return res, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	res.StatusCode = resp.StatusCode
	if resp.StatusCode >= 300 {
		return res, &StatusError{Code: resp.StatusCode}
	}
	return res, nil
}

// IdempotencyKey is stable across retries of the same log, so a sink can drop
// records re-sent after a pass is retried.
func IdempotencyKey(rec evm.Record) string {
	key := strconv.FormatInt(rec.ChainID, 10) + ":" + rec.TxHash + ":" + strconv.FormatUint(uint64(rec.LogIndex), 10)
	return crypto.Keccak256Hash([]byte(key)).Hex()
}

func defaultClient() *http.Client {
	return &http.Client{
		Timeout: 8 * time.Second,
	}
}
