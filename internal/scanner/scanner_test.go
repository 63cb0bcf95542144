package scanner

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/devblac/event-relay/internal/dispatch"
	"github.com/devblac/event-relay/internal/sink"
	"github.com/devblac/event-relay/internal/source/evm"
	"github.com/devblac/event-relay/internal/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const faucetAddr = "0x00000000000000000000000000000000000000f1"

type fakeStore struct {
	mu         sync.Mutex
	targets    map[string]storage.Target
	endpoints  map[string]string
	deliveries []storage.Delivery
	advances   int
	getErr     error
}

func newFakeStore(targets ...storage.Target) *fakeStore {
	s := &fakeStore{targets: map[string]storage.Target{}, endpoints: map[string]string{}}
	for _, t := range targets {
		s.targets[t.Identifier] = storage.NormalizeTarget(t)
	}
	return s
}

func (s *fakeStore) GetTarget(_ context.Context, id string) (storage.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return storage.Target{}, s.getErr
	}
	t, ok := s.targets[id]
	if !ok {
		return storage.Target{}, fmt.Errorf("%w: %s", storage.ErrTargetNotFound, id)
	}
	return t, nil
}

func (s *fakeStore) AdvanceCursor(_ context.Context, id string, block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return storage.ErrTargetNotFound
	}
	if block < t.LastScannedBlock {
		return storage.ErrStaleCursor
	}
	s.advances++
	t.LastScannedBlock = block
	s.targets[id] = t
	return nil
}

func (s *fakeStore) GetEndpoint(_ context.Context, event string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	url, ok := s.endpoints[event]
	if !ok {
		return "", fmt.Errorf("%w: %s", storage.ErrEndpointNotFound, event)
	}
	return url, nil
}

func (s *fakeStore) RecordDelivery(_ context.Context, d storage.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, d)
	return nil
}

func (s *fakeStore) cursor(id string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targets[id].LastScannedBlock
}

type logQuery struct {
	topic    common.Hash
	from, to uint64
}

type fakeClient struct {
	head    uint64
	headErr error
	logsErr error
	logs    map[common.Hash][]types.Log
	heads   int
	queries []logQuery
}

func (c *fakeClient) HeadBlock(context.Context) (uint64, error) {
	c.heads++
	return c.head, c.headErr
}

func (c *fakeClient) Logs(_ context.Context, _ common.Address, topic common.Hash, from, to uint64) ([]types.Log, error) {
	c.queries = append(c.queries, logQuery{topic: topic, from: from, to: to})
	if c.logsErr != nil {
		return nil, c.logsErr
	}
	var out []types.Log
	for _, lg := range c.logs[topic] {
		if lg.BlockNumber >= from && lg.BlockNumber <= to {
			out = append(out, lg)
		}
	}
	return out, nil
}

type fakeClients struct {
	client *fakeClient
	calls  int
}

func (f *fakeClients) Client(context.Context, string) (evm.Client, error) {
	f.calls++
	return f.client, nil
}

type sent struct {
	destination string
	rec         evm.Record
}

type fakeSender struct {
	sent   []sent
	failAt map[uint64]bool
}

func (f *fakeSender) Send(_ context.Context, destination string, rec evm.Record, _ sink.ChainContext) (sink.Result, error) {
	f.sent = append(f.sent, sent{destination: destination, rec: rec})
	if f.failAt[rec.BlockNumber] {
		return sink.Result{DeliveryID: "d", StatusCode: 502}, &sink.StatusError{Code: 502}
	}
	return sink.Result{DeliveryID: fmt.Sprintf("d-%d-%d", rec.BlockNumber, rec.LogIndex), StatusCode: 200}, nil
}

func faucetBinding(t *testing.T) dispatch.Binding {
	t.Helper()
	b, err := dispatch.Default().Resolve("nilCoinFaucet")
	require.NoError(t, err)
	return b
}

func priceLog(t *testing.T, b dispatch.Binding, block uint64, index uint, price int64) types.Log {
	t.Helper()
	return types.Log{
		Address:     common.HexToAddress(faucetAddr),
		Topics:      []common.Hash{b.Events[0].Topic()},
		Data:        common.LeftPadBytes(big.NewInt(price).Bytes(), 32),
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block))),
		Index:       index,
	}
}

func faucetTarget(last uint64) storage.Target {
	return storage.Target{
		Identifier:        "nilCoinFaucet",
		ContractAddress:   faucetAddr,
		LastScannedBlock:  last,
		MaxBlocksPerQuery: 1000,
		RPCURL:            "http://rpc",
	}
}

type harness struct {
	store   *fakeStore
	client  *fakeClient
	clients *fakeClients
	sender  *fakeSender
	scanner *Scanner
}

func newHarness(target storage.Target, head uint64) *harness {
	h := &harness{
		store:  newFakeStore(target),
		client: &fakeClient{head: head, logs: map[common.Hash][]types.Log{}},
		sender: &fakeSender{failAt: map[uint64]bool{}},
	}
	h.store.endpoints["nilFaucetTargetPrice"] = "https://sink/price"
	h.store.endpoints["tokenFaucetSale"] = "https://sink/sale"
	h.clients = &fakeClients{client: h.client}
	h.scanner = New(h.store, h.clients, h.sender, nil, nil)
	return h
}

func TestPassForwardsInOrderAndAdvances(t *testing.T) {
	b := faucetBinding(t)
	h := newHarness(faucetTarget(100), 5000)
	topic := b.Events[0].Topic()
	h.client.logs[topic] = []types.Log{
		priceLog(t, b, 900, 0, 2),
		priceLog(t, b, 150, 3, 1),
		priceLog(t, b, 2000, 0, 9),
	}

	res, err := h.scanner.Pass(context.Background(), b, 8453)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), res.From)
	assert.Equal(t, uint64(1100), res.To)
	assert.Equal(t, 2, res.Forwarded)

	require.Len(t, h.sender.sent, 2)
	assert.Equal(t, uint64(150), h.sender.sent[0].rec.BlockNumber)
	assert.Equal(t, uint64(900), h.sender.sent[1].rec.BlockNumber)
	assert.Equal(t, "https://sink/price", h.sender.sent[0].destination)
	assert.Equal(t, "1", h.sender.sent[0].rec.Args["price"])
	assert.Equal(t, int64(8453), h.sender.sent[0].rec.ChainID)

	assert.Equal(t, uint64(1100), h.store.cursor("nilCoinFaucet"))
	assert.Equal(t, 1, h.store.advances)
	require.Len(t, h.client.queries, len(b.Events))
	for _, q := range h.client.queries {
		assert.Equal(t, uint64(100), q.from)
		assert.Equal(t, uint64(1100), q.to)
	}
	require.Len(t, h.store.deliveries, 2)
	assert.Equal(t, storage.DeliveryOK, h.store.deliveries[0].Status)
}

func TestPassOrdersByLogIndexWithinBlock(t *testing.T) {
	b := faucetBinding(t)
	h := newHarness(faucetTarget(100), 500)
	h.client.logs[b.Events[0].Topic()] = []types.Log{
		priceLog(t, b, 200, 5, 1),
		priceLog(t, b, 200, 1, 2),
	}

	_, err := h.scanner.Pass(context.Background(), b, 1)
	require.NoError(t, err)
	require.Len(t, h.sender.sent, 2)
	assert.Equal(t, uint(1), h.sender.sent[0].rec.LogIndex)
	assert.Equal(t, uint(5), h.sender.sent[1].rec.LogIndex)
}

func TestPausedPassIsNoop(t *testing.T) {
	target := faucetTarget(42)
	target.Paused = true
	h := newHarness(target, 5000)

	res, err := h.scanner.Pass(context.Background(), faucetBinding(t), 1)
	require.NoError(t, err)
	assert.True(t, res.Paused)
	assert.Zero(t, h.clients.calls)
	assert.Zero(t, h.client.heads)
	assert.Empty(t, h.sender.sent)
	assert.Zero(t, h.store.advances)
	assert.Equal(t, uint64(42), h.store.cursor("nilCoinFaucet"))
}

func TestHeadFailureIsProviderError(t *testing.T) {
	h := newHarness(faucetTarget(100), 0)
	h.client.headErr = errors.New("connection refused")

	_, err := h.scanner.Pass(context.Background(), faucetBinding(t), 1)
	require.ErrorIs(t, err, ErrProvider)
	assert.Equal(t, ClassProvider, Classify(err))
	assert.Equal(t, uint64(100), h.store.cursor("nilCoinFaucet"))
	assert.Zero(t, h.store.advances)
}

func TestLogQueryFailureAbortsPass(t *testing.T) {
	h := newHarness(faucetTarget(100), 5000)
	h.client.logsErr = errors.New("query returned more than 10000 results")

	_, err := h.scanner.Pass(context.Background(), faucetBinding(t), 1)
	require.ErrorIs(t, err, ErrProvider)
	assert.Len(t, h.client.queries, 1)
	assert.Zero(t, h.store.advances)
}

func TestEmptyOrInvertedRangeMakesNoCalls(t *testing.T) {
	for _, head := range []uint64{0, 50, 100, 101} {
		h := newHarness(faucetTarget(100), head)
		res, err := h.scanner.Pass(context.Background(), faucetBinding(t), 1)
		require.NoError(t, err, "head %d", head)
		assert.False(t, res.Scanned, "head %d", head)
		assert.Empty(t, h.client.queries, "head %d", head)
		assert.Zero(t, h.store.advances, "head %d", head)
		assert.Equal(t, uint64(100), h.store.cursor("nilCoinFaucet"))
	}
}

func TestMissingRPCURLIsConfigurationError(t *testing.T) {
	target := faucetTarget(100)
	target.RPCURL = ""
	h := newHarness(target, 5000)

	_, err := h.scanner.Pass(context.Background(), faucetBinding(t), 1)
	require.ErrorIs(t, err, ErrConfiguration)
	assert.False(t, Classify(err).Retryable())
	assert.Zero(t, h.clients.calls)
	assert.Zero(t, h.store.advances)
}

func TestInvalidAddressIsConfigurationError(t *testing.T) {
	target := faucetTarget(100)
	target.ContractAddress = ""
	h := newHarness(target, 5000)

	_, err := h.scanner.Pass(context.Background(), faucetBinding(t), 1)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestUnknownTargetIsConfigurationError(t *testing.T) {
	h := newHarness(faucetTarget(100), 5000)
	b := faucetBinding(t)
	b.CursorKey = "nope"

	_, err := h.scanner.Pass(context.Background(), b, 1)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, storage.ErrTargetNotFound)
}

func TestStoreReadFailureIsStoreError(t *testing.T) {
	h := newHarness(faucetTarget(100), 5000)
	h.store.getErr = errors.New("database is locked")

	_, err := h.scanner.Pass(context.Background(), faucetBinding(t), 1)
	assert.Equal(t, ClassStore, Classify(err))
}

func TestMissingDestinationBlocksForwarding(t *testing.T) {
	b := faucetBinding(t)
	h := newHarness(faucetTarget(100), 5000)
	delete(h.store.endpoints, "tokenFaucetSale")
	h.client.logs[b.Events[0].Topic()] = []types.Log{priceLog(t, b, 150, 0, 1)}
	h.client.logs[b.Events[1].Topic()] = []types.Log{{
		Address:     common.HexToAddress(faucetAddr),
		Topics:      []common.Hash{b.Events[1].Topic()},
		BlockNumber: 160,
	}}

	_, err := h.scanner.Pass(context.Background(), b, 1)
	require.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, storage.ErrEndpointNotFound)
	assert.Empty(t, h.sender.sent)
	assert.Zero(t, h.store.advances)
}

func TestMissingDestinationWithoutLogsIsFine(t *testing.T) {
	b := faucetBinding(t)
	h := newHarness(faucetTarget(100), 5000)
	delete(h.store.endpoints, "tokenFaucetSale")
	h.client.logs[b.Events[0].Topic()] = []types.Log{priceLog(t, b, 150, 0, 1)}

	_, err := h.scanner.Pass(context.Background(), b, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1100), h.store.cursor("nilCoinFaucet"))
}

func TestForwardingFailureHoldsCursor(t *testing.T) {
	b := faucetBinding(t)
	h := newHarness(faucetTarget(100), 5000)
	h.client.logs[b.Events[0].Topic()] = []types.Log{
		priceLog(t, b, 150, 0, 1),
		priceLog(t, b, 300, 0, 2),
		priceLog(t, b, 900, 0, 3),
	}
	h.sender.failAt[300] = true

	res, err := h.scanner.Pass(context.Background(), b, 1)
	require.ErrorIs(t, err, ErrForwarding)
	assert.True(t, Classify(err).Retryable())
	var statusErr *sink.StatusError
	assert.ErrorAs(t, err, &statusErr)

	assert.Len(t, h.sender.sent, 3, "remaining logs are still forwarded")
	assert.Equal(t, 2, res.Forwarded)
	assert.Equal(t, uint64(100), h.store.cursor("nilCoinFaucet"))
	assert.Zero(t, h.store.advances)

	var failed int
	for _, d := range h.store.deliveries {
		if d.Status == storage.DeliveryFailed {
			failed++
			assert.Equal(t, 502, d.ResponseCode)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestUndecodableLogIsSkipped(t *testing.T) {
	b := faucetBinding(t)
	h := newHarness(faucetTarget(100), 5000)
	bad := priceLog(t, b, 150, 0, 1)
	bad.Data = []byte{0x01}
	h.client.logs[b.Events[0].Topic()] = []types.Log{bad, priceLog(t, b, 200, 0, 2)}

	res, err := h.scanner.Pass(context.Background(), b, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Forwarded)
	assert.Equal(t, uint64(1100), h.store.cursor("nilCoinFaucet"))
	assert.Equal(t, storage.DeliverySkipped, h.store.deliveries[0].Status)
}

func TestCursorNeverDecreasesOverPasses(t *testing.T) {
	b := faucetBinding(t)
	h := newHarness(faucetTarget(0), 2500)

	var prev uint64
	for i := 0; i < 5; i++ {
		_, err := h.scanner.Pass(context.Background(), b, 1)
		require.NoError(t, err)
		cur := h.store.cursor("nilCoinFaucet")
		assert.GreaterOrEqual(t, cur, prev)
		assert.Equal(t, min(prev+1000, 2499), cur)
		prev = cur
	}
	assert.Equal(t, uint64(2499), prev)
}

func TestScanRange(t *testing.T) {
	cases := []struct {
		name       string
		last, head uint64
		max        uint64
		from, to   uint64
		ok         bool
	}{
		{"clamped", 100, 5000, 1000, 100, 1100, true},
		{"under cap", 100, 600, 1000, 100, 599, true},
		{"exactly cap", 100, 1101, 1000, 100, 1100, true},
		{"default cap", 0, 1_000_000, 0, 0, 1000, true},
		{"caught up", 100, 101, 1000, 0, 0, false},
		{"behind cursor", 100, 50, 1000, 0, 0, false},
		{"genesis", 0, 0, 1000, 0, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			from, to, ok := ScanRange(tc.last, tc.head, tc.max)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.from, from)
			assert.Equal(t, tc.to, to)
		})
	}
}

func TestClassify(t *testing.T) {
	cases := map[Class]error{
		ClassNone:          nil,
		ClassConfiguration: fmt.Errorf("wrap: %w", ErrConfiguration),
		ClassProvider:      fmt.Errorf("%w: boom", ErrProvider),
		ClassForwarding:    errors.Join(errors.New("x"), ErrForwarding),
		ClassStore:         ErrStore,
		ClassUnknown:       errors.New("other"),
	}
	for want, err := range cases {
		assert.Equal(t, want, Classify(err))
	}
	assert.False(t, ClassUnknown.Retryable())
	assert.True(t, ClassStore.Retryable())
}
