package evm

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestParseEventTopicMatchesCanonicalSignature(t *testing.T) {
	ev, err := ParseEvent("event Transfer(address indexed from, address indexed to, uint256 value)")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	if ev.ID != want {
		t.Fatalf("topic0 = %s, want %s", ev.ID.Hex(), want.Hex())
	}
	if ev.Name != "Transfer" || len(ev.Inputs) != 3 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if !ev.Inputs[0].Indexed || ev.Inputs[2].Indexed {
		t.Fatalf("indexed flags wrong: %+v", ev.Inputs)
	}
}

func TestParseEventNames(t *testing.T) {
	ev, err := ParseEvent("DraftStakeClaimed(uint256  _bidId, uint256 _year, address, uint256 _amount, bool _isFootball)")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	names := []string{"bidId", "year", "arg2", "amount", "isFootball"}
	for i, n := range names {
		if ev.Inputs[i].Name != n {
			t.Fatalf("input %d name = %q, want %q", i, ev.Inputs[i].Name, n)
		}
	}
}

func TestParseEventRejectsGarbage(t *testing.T) {
	for _, decl := range []string{
		"",
		"NoParens",
		"Bad(notatype x)",
		"Bad(uint256 indexed a extra)",
		"Bad(uint256 a,)",
	} {
		if _, err := ParseEvent(decl); err == nil {
			t.Fatalf("expected error for %q", decl)
		}
	}
}

func TestDecodeLogTransfer(t *testing.T) {
	ev, err := ParseEvent("Transfer(address indexed from, address indexed to, uint256 value)")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	value := new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1_000_000_000_000))
	from := common.HexToAddress("0x00000000000000000000000000000000000000AA")
	to := common.HexToAddress("0x0000000000000000000000000000000000000002")
	lg := types.Log{
		Topics: []common.Hash{ev.ID, addrTopic(from), addrTopic(to)},
		Data:   common.LeftPadBytes(value.Bytes(), 32),
	}

	args, err := DecodeLog(ev, lg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if args["from"] != "0x00000000000000000000000000000000000000aa" {
		t.Fatalf("from = %v", args["from"])
	}
	if args["to"] != "0x0000000000000000000000000000000000000002" {
		t.Fatalf("to = %v", args["to"])
	}
	if args["value"] != value.String() {
		t.Fatalf("value = %v", args["value"])
	}
}

func TestDecodeLogMixedTypes(t *testing.T) {
	ev, err := ParseEvent("CollegeAdded(uint256 indexed _collegeId, string _name, string _conference, string _mascot, uint16 _tier, uint16 _royalty)")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, nonIndexed := splitIndexed(ev.Inputs)
	data, err := nonIndexed.Pack("Tigers U", "SEC", "Tiger", uint16(1), uint16(250))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	lg := types.Log{
		Topics: []common.Hash{ev.ID, common.BigToHash(big.NewInt(42))},
		Data:   data,
	}

	args, err := DecodeLog(ev, lg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if args["collegeId"] != "42" || args["name"] != "Tigers U" || args["conference"] != "SEC" {
		t.Fatalf("unexpected args: %v", args)
	}
	if args["tier"] != uint16(1) || args["royalty"] != uint16(250) {
		t.Fatalf("unexpected small ints: %v", args)
	}
}

func TestDecodeLogWrongTopic(t *testing.T) {
	ev, _ := ParseEvent("FaucetTargetPrice(uint256 _price)")
	lg := types.Log{Topics: []common.Hash{common.HexToHash("0x01")}}
	if _, err := DecodeLog(ev, lg); err == nil {
		t.Fatalf("expected topic mismatch error")
	}
}

func TestSplitIndexed(t *testing.T) {
	ev, _ := ParseEvent("X(uint256 indexed a, bool b, address indexed c)")
	idx, non := splitIndexed(ev.Inputs)
	if len(idx) != 2 || len(non) != 1 {
		t.Fatalf("split = %d/%d", len(idx), len(non))
	}
	var _ abi.Arguments = non
}

func addrTopic(a common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(a.Bytes(), 32))
}
