package telegramtmpl

import (
	"fmt"
	"strings"
)

// DailyData describes the data required to render a daily Telegram coaching message.
type DailyData struct {
	Mode                string
	Status              string
	RiskMode            string
	NetPnLAfterFeesUSDC float64
	Fills               int
	Actions             []string
	RiskHints           []string
	PriorityActionCode  string
	EstimatedUpliftUSDC float64
	ModelConfidence     string
}

// BuildDailyData normalizes daily template inputs into a renderable payload.
func BuildDailyData(
	mode string,
	canTrade bool,
	riskMode string,
	netPnLAfterFeesUSDC float64,
	fills int,
	actions []string,
	riskHints []string,
) DailyData {
	status := "ACTIVE"
	if !canTrade {
		status = "PAUSE"
	}
	if len(actions) > 3 {
		actions = actions[:3]
	}
	return DailyData{
		Mode:                strings.ToUpper(strings.TrimSpace(mode)),
		Status:              status,
		RiskMode:            strings.ToUpper(strings.TrimSpace(riskMode)),
		NetPnLAfterFeesUSDC: netPnLAfterFeesUSDC,
		Fills:               fills,
		Actions:             actions,
		RiskHints:           riskHints,
	}
}

// RenderDailyHTML renders a daily Telegram coaching template in HTML parse mode.
func RenderDailyHTML(d DailyData) string {
	var b strings.Builder
	b.WriteString("<b>Daily Trading Coach</b>\n")
	b.WriteString(fmt.Sprintf("Mode: %s\nStatus: %s\nRisk Mode: %s\n", d.Mode, d.Status, d.RiskMode))
	b.WriteString(fmt.Sprintf("Net PnL After Fees: %.2f USDC\nFills: %d\n", d.NetPnLAfterFeesUSDC, d.Fills))
	if len(d.Actions) > 0 {
		b.WriteString("\n<b>Top Actions</b>\n")
		for _, a := range d.Actions {
			b.WriteString("- " + a + "\n")
		}
	}
	if len(d.RiskHints) > 0 {
		b.WriteString("\n<b>Risk Hints</b>\n")
		for _, h := range d.RiskHints {
			b.WriteString("- " + h + "\n")
		}
	}
	if strings.TrimSpace(d.PriorityActionCode) != "" {
		b.WriteString("\n<b>Profit Focus</b>\n")
		b.WriteString("- Priority Action: " + strings.TrimSpace(d.PriorityActionCode) + "\n")
		b.WriteString(fmt.Sprintf("- Estimated Uplift: %.2f USDC\n", d.EstimatedUpliftUSDC))
		if strings.TrimSpace(d.ModelConfidence) != "" {
			b.WriteString("- Confidence: " + strings.TrimSpace(d.ModelConfidence) + "\n")
		}
	}
	return strings.TrimSpace(b.String())
}
