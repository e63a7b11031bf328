package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ChainOracleConfig is the static oracle configuration of one chain.
type ChainOracleConfig struct {
	Name                string
	ChainID             int64
	OracleAddress       common.Address
	PrimaryRPC          string
	FallbackRPC         string
	EMAWindow           int
	UpdateInterval      time.Duration
	StaleTTL            time.Duration
	DivergenceThreshold int
}

// BlockGas is the gas usage of one block.
type BlockGas struct {
	Number   uint64 `json:"number"`
	GasUsed  uint64 `json:"gas_used"`
	GasLimit uint64 `json:"gas_limit"`
}

// OracleUpdate is the outcome of one successful update cycle.
type OracleUpdate struct {
	Chain        string    `json:"chain"`
	Utilization  int       `json:"utilization"`
	TxHash       string    `json:"tx_hash"`
	UsedFallback bool      `json:"used_fallback"`
	RPCURL       string    `json:"-"`
	Timestamp    time.Time `json:"timestamp"`
}
