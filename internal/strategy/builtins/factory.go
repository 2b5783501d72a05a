package builtins

import (
	"fmt"

	"marketsim/internal/config"
	"marketsim/internal/strategy"
)

// FromConfig builds the strategy selected by the configuration. Unknown
// kinds and invalid parameters are configuration errors, reported before any
// simulation work starts.
func FromConfig(cfg config.StrategyConfig) (strategy.Strategy, error) {
	switch cfg.Kind {
	case "ma-crossover":
		return NewMovingAverageCrossover(cfg.ShortWindow, cfg.LongWindow)
	case "rsi-cross":
		return NewRSICross(cfg.Period, cfg.Lower, cfg.Upper)
	default:
		return nil, fmt.Errorf("strategy: unknown kind %q", cfg.Kind)
	}
}
