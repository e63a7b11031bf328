package chain

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/ghostyield/internal/domain"
)

func TestPriceFromSqrtX96(t *testing.T) {
	q96 := new(big.Int).Lsh(big.NewInt(1), 96)
	twoQ96 := new(big.Int).Lsh(big.NewInt(1), 97)

	tests := []struct {
		name         string
		sqrt         *big.Int
		baseIsToken0 bool
		baseDec      int32
		quoteDec     int32
		want         string
	}{
		{"parity", q96, true, 6, 6, "1"},
		{"token0 base doubled sqrt", twoQ96, true, 6, 6, "4"},
		{"token1 base inverts", twoQ96, false, 6, 6, "0.25"},
		{"decimal shift", q96, true, 18, 6, "1000000000000"},
		{"zero", big.NewInt(0), true, 18, 6, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PriceFromSqrtX96(tt.sqrt, tt.baseIsToken0, tt.baseDec, tt.quoteDec)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("price = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPriceFromSqrtX96RealisticPool(t *testing.T) {
	// 1 CPT (18 decimals) = 1 USDC (6 decimals) when CPT is token0:
	// raw ratio is 1e-12, so sqrtPriceX96 = 2^96 / 1e6.
	q96 := new(big.Int).Lsh(big.NewInt(1), 96)
	sqrt := new(big.Int).Quo(q96, big.NewInt(1_000_000))

	got := PriceFromSqrtX96(sqrt, true, 18, 6).Round(6)
	if !got.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("price = %s, want 1", got)
	}
}

func TestBaseIsToken0(t *testing.T) {
	cfg := domain.ChainConfig{
		BaseToken:  common.HexToAddress("0x0000000000000000000000000000000000000001"),
		QuoteToken: common.HexToAddress("0x0000000000000000000000000000000000000002"),
	}
	if !cfg.BaseIsToken0() {
		t.Fatalf("lower address should be token0")
	}
	cfg.BaseToken, cfg.QuoteToken = cfg.QuoteToken, cfg.BaseToken
	if cfg.BaseIsToken0() {
		t.Fatalf("higher address should be token1")
	}
}

func TestOracleCallEncoding(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(oracleABI))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	data, err := parsed.Pack("setUtilizationFromBot", big.NewInt(63), big.NewInt(1_700_000_000))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if len(data) != 4+64 {
		t.Fatalf("calldata length = %d, want 68", len(data))
	}
	if got := new(big.Int).SetBytes(data[4:36]); got.Int64() != 63 {
		t.Fatalf("utilization word = %s, want 63", got)
	}
}

func TestStateViewABIUnpack(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(stateViewABI))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q96 := new(big.Int).Lsh(big.NewInt(1), 96)
	out, err := parsed.Methods["getSlot0"].Outputs.Pack(q96, big.NewInt(-120), big.NewInt(0), big.NewInt(3000))
	if err != nil {
		t.Fatalf("pack outputs: %v", err)
	}
	values, err := parsed.Unpack("getSlot0", out)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if values[0].(*big.Int).Cmp(q96) != 0 {
		t.Fatalf("sqrtPriceX96 = %v", values[0])
	}
	if values[1].(*big.Int).Int64() != -120 {
		t.Fatalf("tick = %v, want -120", values[1])
	}
}
