package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/lattice-q/spotrader/internal/telegramtmpl"
)

// Notifier is the optional outbound alert channel for daily summaries. A
// nil Notifier in Dependencies disables reporting entirely.
type Notifier interface {
	NotifyDailyCoachTemplate(ctx context.Context, textHTML string) error
}

// timeUntilMidnightUTC returns the duration until the next UTC day
// boundary, the point at which risk.Manager.ResetDaily runs.
func timeUntilMidnightUTC() time.Duration {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return midnight.Sub(now)
}

// sendDailySummary renders the day's risk counters through the shared
// telegramtmpl builders and posts them via notifier, if configured.
func (s *Scheduler) sendDailySummary(ctx context.Context, fills int) {
	if s.notifier == nil {
		return
	}
	canTrade := !s.riskMgr.EmergencyStop() && !s.riskMgr.InCooldown()
	actions := telegramtmpl.BuildDailyActions(telegramtmpl.DailyAdviceInput{
		CanTrade:        canTrade,
		Fills:           fills,
		NetPnLAfterFees: s.riskMgr.DailyPnL(),
	})
	hints := telegramtmpl.BuildRiskHints(telegramtmpl.DailyAdviceInput{
		CanTrade:          canTrade,
		CooldownRemaining: s.riskMgr.CooldownRemaining(),
	})
	data := telegramtmpl.BuildDailyData("spot", canTrade, "normal", s.riskMgr.DailyPnL(), fills, actions, hints)
	if err := s.notifier.NotifyDailyCoachTemplate(ctx, telegramtmpl.RenderDailyHTML(data)); err != nil {
		log.Printf("scheduler: daily summary notify failed: %v", err)
	}
}
