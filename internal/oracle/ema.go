// Package oracle keeps each chain's utilization oracle fresh. Every chain
// runs its own update loop: sample recent blocks, smooth their gas
// utilization with an EMA, and push the value on chain.
package oracle

import (
	"math"

	"github.com/alanyoungcy/ghostyield/internal/domain"
)

// CalculateEMAUtilization smooths per-block gas utilization over blocks
// (oldest first) with alpha = 2/(n+1), seeded from the oldest block. It
// returns a whole percentage in [0, 100]; no blocks yield 0.
func CalculateEMAUtilization(blocks []domain.BlockGas) int {
	if len(blocks) == 0 {
		return 0
	}
	alpha := 2 / float64(len(blocks)+1)

	ema := ratio(blocks[0])
	for _, b := range blocks[1:] {
		ema = alpha*ratio(b) + (1-alpha)*ema
	}

	u := int(math.Round(ema * 100))
	return max(0, min(100, u))
}

func ratio(b domain.BlockGas) float64 {
	if b.GasLimit == 0 {
		return 0
	}
	return float64(b.GasUsed) / float64(b.GasLimit)
}
