// Package macro supplies the optional macro/on-chain context the ranking
// and decision engines consult. No macro-data or on-chain-data API appears
// anywhere in the source corpus this module was built from, so the only
// grounded implementation here is the explicit "no data" default the
// ranking and decision packages already define semantics for: a false ok
// (ranking) or a nil *model.MacroContext (decision) rather than a
// fabricated neutral score.
package macro

import (
	"context"

	"github.com/lattice-q/spotrader/internal/model"
)

// NoneProvider implements ranking.MacroProvider, ranking.OnchainProvider
// and scheduler.MacroProvider, uniformly reporting "no data available".
// An operator wiring in a real macro-sentiment or on-chain feed replaces
// this with a concrete provider; nothing downstream assumes one exists.
type NoneProvider struct{}

func (NoneProvider) MacroSentiment(model.Symbol) (float64, bool) { return 0, false }
func (NoneProvider) OnchainScore(model.Symbol) (float64, bool)   { return 0, false }
func (NoneProvider) Context(context.Context) *model.MacroContext { return nil }
