package health

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"

	"github.com/devblac/event-relay/internal/source/evm"
	"github.com/devblac/event-relay/internal/storage"
)

// ClientSource hands out a chain client for an RPC URL.
type ClientSource interface {
	Client(ctx context.Context, rpcURL string) (evm.Client, error)
}

// TargetLister lists provisioned targets.
type TargetLister interface {
	ListTargets(ctx context.Context) ([]storage.Target, error)
}

// RPCChecker pings every distinct RPC endpoint used by an active target.
type RPCChecker struct {
	clients ClientSource
	targets TargetLister
}

// NewRPCChecker creates a checker over the targets' RPC endpoints.
func NewRPCChecker(clients ClientSource, targets TargetLister) *RPCChecker {
	return &RPCChecker{clients: clients, targets: targets}
}

// Ping requests the head block from each endpoint.
func (c *RPCChecker) Ping(ctx context.Context) error {
	targets, err := c.targets.ListTargets(ctx)
	if err != nil {
		return fmt.Errorf("list targets: %w", err)
	}
	var errs []error
	for _, u := range RPCURLs(targets, false) {
		cli, err := c.clients.Client(ctx, u)
		if err == nil {
			_, err = cli.HeadBlock(ctx)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("rpc %s: %w", Host(u), err))
		}
	}
	return errors.Join(errs...)
}

// RPCURLs returns the sorted distinct RPC URLs of the targets. Paused targets
// count only when includePaused is set.
func RPCURLs(targets []storage.Target, includePaused bool) []string {
	seen := map[string]struct{}{}
	for _, t := range targets {
		if (t.Paused && !includePaused) || t.RPCURL == "" {
			continue
		}
		seen[t.RPCURL] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Host strips path and credentials from an RPC URL; provider keys often live there.
func Host(rpcURL string) string {
	u, err := url.Parse(rpcURL)
	if err != nil || u.Host == "" {
		return "invalid-url"
	}
	return u.Host
}
