package evm

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/devblac/event-relay/internal/metrics"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"
)

// Client is the chain capability a scan pass needs.
type Client interface {
	HeadBlock(ctx context.Context) (uint64, error)
	Logs(ctx context.Context, address common.Address, topic0 common.Hash, from, to uint64) ([]types.Log, error)
}

// BlockClient captures the subset of ethclient used by RPCClient.
type BlockClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// RPCClient adapts a BlockClient to Client, throttling every call.
type RPCClient struct {
	backend BlockClient
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

// NewRPCClient wraps backend. A non-positive rps disables throttling.
func NewRPCClient(backend BlockClient, rps float64, burst int, m *metrics.Metrics) *RPCClient {
	var lim *rate.Limiter
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &RPCClient{backend: backend, limiter: lim, metrics: m}
}

// HeadBlock returns the latest block number known to the node.
func (c *RPCClient) HeadBlock(ctx context.Context) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	n, err := c.backend.BlockNumber(ctx)
	c.metrics.RPCCall("eth_blockNumber", err)
	if err != nil {
		return 0, fmt.Errorf("block number: %w", err)
	}
	return n, nil
}

// Logs returns logs emitted by address with the given first topic in [from, to].
func (c *RPCClient) Logs(ctx context.Context, address common.Address, topic0 common.Hash, from, to uint64) ([]types.Log, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	logs, err := c.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{address},
		Topics:    [][]common.Hash{{topic0}},
	})
	c.metrics.RPCCall("eth_getLogs", err)
	if err != nil {
		return nil, fmt.Errorf("filter logs %d-%d: %w", from, to, err)
	}
	return logs, nil
}

// wait reserves exactly one token so cancelled waits hand it back.
func (c *RPCClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	r := c.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("rate: cannot reserve token")
	}
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	c.metrics.RateLimitWait()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// DialFunc opens a backend for an RPC URL.
type DialFunc func(ctx context.Context, rpcURL string) (BlockClient, error)

// DialEthclient is the default DialFunc backed by go-ethereum's ethclient.
func DialEthclient(ctx context.Context, rpcURL string) (BlockClient, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc: %w", err)
	}
	return c, nil
}

// ProbeChainID dials rpcURL and returns the chain id it reports.
func ProbeChainID(ctx context.Context, rpcURL string) (*big.Int, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc: %w", err)
	}
	defer c.Close()
	id, err := c.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("call eth_chainId: %w", err)
	}
	return id, nil
}

// Dialer hands out one throttled client per RPC URL and reuses it across passes.
type Dialer struct {
	dial    DialFunc
	rps     float64
	burst   int
	metrics *metrics.Metrics

	mu      sync.Mutex
	clients map[string]*RPCClient
}

// NewDialer builds a Dialer. A nil dial uses DialEthclient.
func NewDialer(dial DialFunc, rps float64, burst int, m *metrics.Metrics) *Dialer {
	if dial == nil {
		dial = DialEthclient
	}
	return &Dialer{dial: dial, rps: rps, burst: burst, metrics: m, clients: map[string]*RPCClient{}}
}

// Client returns the cached client for rpcURL, dialing on first use.
func (d *Dialer) Client(ctx context.Context, rpcURL string) (Client, error) {
	d.mu.Lock()
	c, ok := d.clients[rpcURL]
	d.mu.Unlock()
	if ok {
		return c, nil
	}

	backend, err := d.dial(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.clients[rpcURL]; ok {
		// Lost a race with another dial of the same URL.
		if closer, ok := backend.(interface{ Close() }); ok {
			closer.Close()
		}
		return c, nil
	}
	c = NewRPCClient(backend, d.rps, d.burst, d.metrics)
	d.clients[rpcURL] = c
	return c, nil
}

// Close releases every dialed backend that supports closing.
func (d *Dialer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for url, c := range d.clients {
		if closer, ok := c.backend.(interface{ Close() }); ok {
			closer.Close()
		}
		delete(d.clients, url)
	}
}
