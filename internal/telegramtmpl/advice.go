package telegramtmpl

import (
	"fmt"
	"strings"
	"time"
)

// DailyAdviceInput describes inputs for generating daily actions and risk hints.
type DailyAdviceInput struct {
	CanTrade          bool
	RiskMode          string
	Fills             int
	NetPnLAfterFees   float64
	BestSymbol        string
	RiskUsagePct      float64
	BlockedReasons    []string
	CooldownRemaining time.Duration
}

// BuildDailyActions generates prioritized daily actions for the coaching message.
func BuildDailyActions(in DailyAdviceInput) []string {
	actions := make([]string, 0, 5)
	riskMode := strings.ToUpper(strings.TrimSpace(in.RiskMode))
	if !in.CanTrade {
		actions = append(actions, "Pause new trades until risk blockers clear.")
	} else if riskMode == "DEFENSIVE" {
		actions = append(actions, "Run defensive size mode (50%) for next cycle.")
	}
	if in.Fills < 20 {
		actions = append(actions, "Collect at least 20 fills before scaling size.")
	}
	if in.NetPnLAfterFees <= 0 {
		actions = append(actions, "Improve selectivity: tighten entry filters.")
	}
	if strings.TrimSpace(in.BestSymbol) != "" {
		actions = append(actions, fmt.Sprintf("Focus allocation on strongest market: %s.", in.BestSymbol))
	}
	if len(actions) == 0 {
		actions = append(actions, "Keep current execution discipline and monitor drift.")
	}
	if len(actions) > 3 {
		actions = actions[:3]
	}
	return actions
}

// BuildRiskHints generates risk hints for the coaching message.
func BuildRiskHints(in DailyAdviceInput) []string {
	hints := make([]string, 0, 4)
	if !in.CanTrade {
		hints = append(hints, "PAUSE: risk guardrails are blocking new trades.")
	}
	if in.RiskUsagePct >= 80 {
		hints = append(hints, fmt.Sprintf("Daily loss usage is high (%.1f%%).", in.RiskUsagePct))
	}
	if len(in.BlockedReasons) > 0 {
		hints = append(hints, "Blocked reasons: "+strings.Join(in.BlockedReasons, ","))
	}
	if in.CooldownRemaining > 0 {
		hints = append(hints, fmt.Sprintf("Cooldown remaining: %.0fs.", in.CooldownRemaining.Seconds()))
	}
	return hints
}
