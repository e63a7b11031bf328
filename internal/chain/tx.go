package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/ghostyield/internal/domain"
)

// gasHeadroomPct is added on top of the node's gas estimate.
const gasHeadroomPct = 20

// Transactor submits signed EIP-1559 contract calls.
type Transactor struct {
	pool *Pool
}

// NewTransactor creates a Transactor that dials endpoints through pool.
func NewTransactor(pool *Pool) *Transactor {
	return &Transactor{pool: pool}
}

// Submit signs a call of data to `to` with key and broadcasts it on rpcURL.
// It returns the transaction hash without waiting for inclusion.
func (t *Transactor) Submit(ctx context.Context, rpcURL string, key *ecdsa.PrivateKey, to common.Address, data []byte) (common.Hash, error) {
	client, err := t.pool.Get(ctx, rpcURL)
	if err != nil {
		return common.Hash{}, err
	}
	eth, err := client.Eth(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	from := ethcrypto.PubkeyToAddress(key.PublicKey)

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: chain id: %w", err)
	}
	nonce, err := eth.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: nonce: %w", err)
	}
	tip, err := eth.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: gas tip: %w", err)
	}
	head, err := eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: latest header: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	gas, err := eth.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: estimate gas: %w", err)
	}
	gas += gas * gasHeadroomPct / 100

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     new(big.Int),
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: %w: %v", domain.ErrSigningFailed, err)
	}
	if err := eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("chain: send transaction: %w", err)
	}
	return signed.Hash(), nil
}

// oracleABI covers the single oracle write the updater performs.
const oracleABI = `[{
	"name": "setUtilizationFromBot",
	"type": "function",
	"stateMutability": "nonpayable",
	"inputs": [
		{"name": "utilization", "type": "uint256"},
		{"name": "timestamp", "type": "uint256"}
	],
	"outputs": []
}]`

// OracleClient reads block gas data and pushes utilization values. It
// satisfies oracle.Deps.
type OracleClient struct {
	blocks *BlockReader
	tx     *Transactor
	abi    abi.ABI
}

// NewOracleClient creates an OracleClient over pool.
func NewOracleClient(pool *Pool) (*OracleClient, error) {
	parsed, err := abi.JSON(strings.NewReader(oracleABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse oracle ABI: %w", err)
	}
	return &OracleClient{
		blocks: NewBlockReader(pool),
		tx:     NewTransactor(pool),
		abi:    parsed,
	}, nil
}

// FetchBlocks returns the last window blocks on rpcURL, oldest first.
func (o *OracleClient) FetchBlocks(ctx context.Context, rpcURL string, window int) ([]domain.BlockGas, error) {
	return o.blocks.FetchRecentBlocks(ctx, rpcURL, window)
}

// PushUtilization calls setUtilizationFromBot(utilization, timestamp) on the
// chain's oracle and returns the transaction hash.
func (o *OracleClient) PushUtilization(ctx context.Context, rpcURL string, chain domain.ChainOracleConfig, utilization int, ts time.Time, key *ecdsa.PrivateKey) (string, error) {
	data, err := o.abi.Pack("setUtilizationFromBot", big.NewInt(int64(utilization)), big.NewInt(ts.Unix()))
	if err != nil {
		return "", fmt.Errorf("chain: pack setUtilizationFromBot: %w", err)
	}
	hash, err := o.tx.Submit(ctx, rpcURL, key, chain.OracleAddress, data)
	if err != nil {
		return "", fmt.Errorf("chain: %s push utilization: %w", chain.Name, err)
	}
	return hash.Hex(), nil
}
