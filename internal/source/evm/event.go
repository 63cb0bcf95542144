package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// ParseEvent builds an ABI event from a Solidity declaration such as
// "Transfer(address indexed from, address indexed to, uint256 value)".
// A leading "event " keyword is accepted. Argument names are optional;
// unnamed arguments are called arg0, arg1, ... and a leading underscore is dropped.
func ParseEvent(declaration string) (*abi.Event, error) {
	decl := strings.TrimSpace(declaration)
	decl = strings.TrimSpace(strings.TrimPrefix(decl, "event "))
	l := strings.Index(decl, "(")
	r := strings.LastIndex(decl, ")")
	if l <= 0 || r <= l {
		return nil, fmt.Errorf("invalid event declaration: %s", declaration)
	}
	name := strings.TrimSpace(decl[:l])
	body := strings.TrimSpace(decl[l+1 : r])

	inputs := abi.Arguments{}
	if body != "" {
		for i, raw := range strings.Split(body, ",") {
			arg, err := parseArgument(raw, i)
			if err != nil {
				return nil, fmt.Errorf("event %s: %w", name, err)
			}
			inputs = append(inputs, arg)
		}
	}

	ev := abi.NewEvent(name, name, false, inputs)
	return &ev, nil
}

func parseArgument(raw string, pos int) (abi.Argument, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return abi.Argument{}, fmt.Errorf("empty argument at position %d", pos)
	}
	t, err := abi.NewType(fields[0], "", nil)
	if err != nil {
		return abi.Argument{}, fmt.Errorf("parse type %s: %w", fields[0], err)
	}
	arg := abi.Argument{Type: t}
	rest := fields[1:]
	if len(rest) > 0 && rest[0] == "indexed" {
		arg.Indexed = true
		rest = rest[1:]
	}
	switch len(rest) {
	case 0:
		arg.Name = fmt.Sprintf("arg%d", pos)
	case 1:
		arg.Name = strings.TrimPrefix(rest[0], "_")
	default:
		return abi.Argument{}, fmt.Errorf("unexpected tokens in argument %q", strings.TrimSpace(raw))
	}
	return arg, nil
}

// DecodeLog unpacks the indexed topics and data of a log for the given event.
func DecodeLog(ev *abi.Event, lg types.Log) (map[string]any, error) {
	if len(lg.Topics) == 0 || lg.Topics[0] != ev.ID {
		return nil, fmt.Errorf("log topic does not match %s", ev.Sig)
	}
	args := map[string]any{}
	indexed, nonIndexed := splitIndexed(ev.Inputs)
	if err := abi.ParseTopicsIntoMap(args, indexed, lg.Topics[1:]); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	if err := nonIndexed.UnpackIntoMap(args, lg.Data); err != nil {
		return nil, fmt.Errorf("unpack data: %w", err)
	}
	for k, v := range args {
		args[k] = normalizeValue(v)
	}
	return args, nil
}

func splitIndexed(args abi.Arguments) (indexed abi.Arguments, nonIndexed abi.Arguments) {
	for _, a := range args {
		if a.Indexed {
			indexed = append(indexed, a)
		} else {
			nonIndexed = append(nonIndexed, a)
		}
	}
	return indexed, nonIndexed
}

// normalizeValue turns ABI values into JSON-friendly forms: integers wider than
// 64 bits become decimal strings, addresses become lower-case hex.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case *big.Int:
		return x.String()
	case common.Address:
		return strings.ToLower(x.Hex())
	case common.Hash:
		return x.Hex()
	case []byte:
		return hexutil.Encode(x)
	case [32]byte:
		return hexutil.Encode(x[:])
	case []*big.Int:
		out := make([]string, len(x))
		for i, n := range x {
			out[i] = n.String()
		}
		return out
	case []common.Address:
		out := make([]string, len(x))
		for i, a := range x {
			out[i] = strings.ToLower(a.Hex())
		}
		return out
	default:
		return v
	}
}
