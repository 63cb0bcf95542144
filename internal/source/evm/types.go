package evm

// Record is a decoded contract event in the shape forwarded to sinks.
type Record struct {
	Event       string         `json:"event"`
	ChainID     int64          `json:"chainId"`
	Contract    string         `json:"contract"`
	BlockNumber uint64         `json:"blockNumber"`
	BlockHash   string         `json:"blockHash"`
	TxHash      string         `json:"transactionHash"`
	LogIndex    uint           `json:"logIndex"`
	Removed     bool           `json:"removed,omitempty"`
	Args        map[string]any `json:"args"`
}
