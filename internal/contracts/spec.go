package contracts

import (
	"fmt"
	"strings"

	"github.com/devblac/event-relay/internal/source/evm"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EventSpec binds one contract event to the sink destination its records go to.
type EventSpec struct {
	Name        string
	Declaration string
	Destination string

	event *abi.Event
}

// NewEventSpec parses declaration and binds it to destination.
func NewEventSpec(declaration, destination string) (EventSpec, error) {
	ev, err := evm.ParseEvent(declaration)
	if err != nil {
		return EventSpec{}, err
	}
	if strings.TrimSpace(destination) == "" {
		return EventSpec{}, fmt.Errorf("event %s: destination is required", ev.Name)
	}
	return EventSpec{
		Name:        ev.Name,
		Declaration: declaration,
		Destination: destination,
		event:       ev,
	}, nil
}

func mustSpec(declaration, destination string) EventSpec {
	s, err := NewEventSpec(declaration, destination)
	if err != nil {
		panic(err)
	}
	return s
}

// Signature returns the canonical signature, e.g. "Transfer(address,address,uint256)".
func (s EventSpec) Signature() string {
	return s.event.Sig
}

// Topic returns topic0 for the event.
func (s EventSpec) Topic() common.Hash {
	return s.event.ID
}

// Decode turns a raw log into the record forwarded to the sink.
func (s EventSpec) Decode(lg types.Log, chainID int64) (evm.Record, error) {
	args, err := evm.DecodeLog(s.event, lg)
	if err != nil {
		return evm.Record{}, fmt.Errorf("decode %s at block %d index %d: %w", s.Name, lg.BlockNumber, lg.Index, err)
	}
	return evm.Record{
		Event:       s.Name,
		ChainID:     chainID,
		Contract:    strings.ToLower(lg.Address.Hex()),
		BlockNumber: lg.BlockNumber,
		BlockHash:   lg.BlockHash.Hex(),
		TxHash:      lg.TxHash.Hex(),
		LogIndex:    lg.Index,
		Removed:     lg.Removed,
		Args:        args,
	}, nil
}
