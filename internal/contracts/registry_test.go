package contracts

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryIsWellFormed(t *testing.T) {
	seenID := map[string]string{}
	seenPrefix := map[string]string{}
	for _, f := range Families() {
		require.NotEmpty(t, f.Name)
		require.NotEmpty(t, f.Events, "family %s has no events", f.Name)
		require.True(t, len(f.Identifiers) > 0 || f.Prefix != "", "family %s is unreachable", f.Name)

		for _, id := range f.Identifiers {
			prev, dup := seenID[id]
			assert.False(t, dup, "identifier %s in %s and %s", id, prev, f.Name)
			seenID[id] = f.Name
		}
		if f.Prefix != "" {
			_, dup := seenPrefix[f.Prefix]
			assert.False(t, dup, "prefix %s registered twice", f.Prefix)
			seenPrefix[f.Prefix] = f.Name
		}

		topics := map[common.Hash]bool{}
		for _, ev := range f.Events {
			assert.NotEmpty(t, ev.Destination)
			assert.False(t, topics[ev.Topic()], "duplicate topic in %s", f.Name)
			topics[ev.Topic()] = true
		}
	}
	for _, id := range []string{
		"athleteRegistry", "proRegistry", "teamStakingCurrent", "nattyStakingPrevious",
		"collectibleSeriesFaucetBasketball", "draftControllerFootball", "draftPickNftsBasketball",
		"claimManagerAA", "claimManagerBA", "claimManagerNFTP",
	} {
		assert.Contains(t, seenID, id)
	}
}

func TestSignatures(t *testing.T) {
	assert.Equal(t, "Transfer(address,address,uint256)", erc20Transfers.Events[0].Signature())
	assert.Equal(t,
		crypto.Keccak256Hash([]byte("TransferSingle(address,address,address,uint256,uint256)")),
		erc1155Transfers.Events[0].Topic())
	assert.Equal(t, "TierChanged(uint256,uint256)", collegeRegistry.Events[2].Signature())
}

func TestNewEventSpecValidation(t *testing.T) {
	_, err := NewEventSpec("Bad(", "x")
	assert.Error(t, err)
	_, err = NewEventSpec("Ok(uint256 a)", " ")
	assert.Error(t, err)
}

func TestDecodeBuildsRecord(t *testing.T) {
	spec := nilCoinFaucet.Events[1]
	buyer := common.HexToAddress("0x00000000000000000000000000000000000000Bb")
	contract := common.HexToAddress("0x00000000000000000000000000000000000000Cc")

	data := append(common.LeftPadBytes(big.NewInt(3).Bytes(), 32), common.LeftPadBytes(big.NewInt(900).Bytes(), 32)...)
	lg := types.Log{
		Address:     contract,
		Topics:      []common.Hash{spec.Topic(), common.BigToHash(big.NewInt(7)), common.BytesToHash(buyer.Bytes())},
		Data:        data,
		BlockNumber: 150,
		BlockHash:   common.HexToHash("0xb1"),
		TxHash:      common.HexToHash("0xa1"),
		Index:       4,
	}

	rec, err := spec.Decode(lg, 8453)
	require.NoError(t, err)
	assert.Equal(t, "TokenFaucetSale", rec.Event)
	assert.Equal(t, int64(8453), rec.ChainID)
	assert.Equal(t, "0x00000000000000000000000000000000000000cc", rec.Contract)
	assert.Equal(t, uint64(150), rec.BlockNumber)
	assert.Equal(t, uint(4), rec.LogIndex)
	assert.Equal(t, "7", rec.Args["saleId"])
	assert.Equal(t, "0x00000000000000000000000000000000000000bb", rec.Args["buyer"])
	assert.Equal(t, "3", rec.Args["qty"])
	assert.Equal(t, "900", rec.Args["totalCost"])
}

func TestDecodeRejectsForeignLog(t *testing.T) {
	spec := lpManager.Events[0]
	_, err := spec.Decode(types.Log{Topics: []common.Hash{crypto.Keccak256Hash([]byte("Other()"))}}, 1)
	assert.Error(t, err)
}

func TestClaimManagers(t *testing.T) {
	aa, ba, nftp := claimManagerAA.Events[0], claimManagerBA.Events[0], claimManagerNFTP.Events[0]

	assert.Equal(t, "ClaimRequested(uint256,address,uint256[])", aa.Signature())
	assert.Equal(t, aa.Topic(), ba.Topic())
	assert.Equal(t, "ClaimRequested(uint256,address,uint256)", nftp.Signature())
	assert.NotEqual(t, aa.Topic(), nftp.Topic())

	dests := map[string]bool{aa.Destination: true, ba.Destination: true, nftp.Destination: true}
	assert.Len(t, dests, 3, "each claim manager needs its own destination")
}

func TestDecodeClaimRequestedTokenIds(t *testing.T) {
	spec := claimManagerAA.Events[0]
	claimer := common.HexToAddress("0x00000000000000000000000000000000000000Dd")

	idsType, err := abi.NewType("uint256[]", "", nil)
	require.NoError(t, err)
	data, err := abi.Arguments{{Name: "tokenIds", Type: idsType}}.Pack([]*big.Int{big.NewInt(11), big.NewInt(12)})
	require.NoError(t, err)

	rec, err := spec.Decode(types.Log{
		Address: common.HexToAddress("0x960119098b9bFd6201Ac24d866bf6FDD6198616B"),
		Topics:  []common.Hash{spec.Topic(), common.BigToHash(big.NewInt(5)), common.BytesToHash(claimer.Bytes())},
		Data:    data,
	}, 19)
	require.NoError(t, err)
	assert.Equal(t, "ClaimRequested", rec.Event)
	assert.Equal(t, "5", rec.Args["claimId"])
	assert.Equal(t, "0x00000000000000000000000000000000000000dd", rec.Args["claimingAddress"])
	assert.Equal(t, []string{"11", "12"}, rec.Args["tokenIds"])
}
