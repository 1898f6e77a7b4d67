// Package notify posts run summaries to Telegram. Optional: a notifier with
// no token is a no-op, so the core never depends on chat connectivity.
package notify

import (
	"fmt"
	"strings"

	"alpha_portfolio/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Notifier sends plain-text messages to one Telegram chat.
type Notifier struct {
	http   *resty.Client
	token  string
	chatID string
	log    zerolog.Logger
}

// NewNotifier returns a notifier. An empty token disables sending.
func NewNotifier(token, chatID string, log zerolog.Logger) *Notifier {
	return &Notifier{
		http:   resty.New().SetBaseURL("https://api.telegram.org"),
		token:  token,
		chatID: chatID,
		log:    log.With().Str("component", "notifier").Logger(),
	}
}

// Enabled reports whether a token is configured.
func (n *Notifier) Enabled() bool {
	return n.token != "" && n.chatID != ""
}

// NotifyRun posts a per-order summary of a finished run. Failures are logged
// and swallowed: notification is best-effort and never affects the run.
func (n *Notifier) NotifyRun(plan *models.OrderExecutionPlan) {
	if !n.Enabled() || plan == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Portfolio run %s\n", plan.RunID)
	fmt.Fprintf(&sb, "Planned buys: $%s | sells/covers: $%s | scaling: %s\n",
		plan.TotalPlannedBuyValue.StringFixed(2),
		plan.TotalPlannedSellValue.StringFixed(2),
		plan.ScalingFactorApplied.StringFixed(4))

	for _, ord := range plan.Orders {
		label := string(ord.Side)
		if ord.IsCover {
			label = "COVER"
		}
		fmt.Fprintf(&sb, "%s %d %s -> %s", label, ord.Quantity, ord.Symbol, ord.Status)
		if ord.ErrorMessage != "" {
			fmt.Fprintf(&sb, " (%s)", ord.ErrorMessage)
		}
		sb.WriteString("\n")
	}
	if len(plan.Orders) == 0 {
		sb.WriteString("No actionable orders this run.\n")
	}

	n.send(sb.String())
}

func (n *Notifier) send(text string) {
	resp, err := n.http.R().
		SetFormData(map[string]string{
			"chat_id": n.chatID,
			"text":    text,
		}).
		Post(fmt.Sprintf("/bot%s/sendMessage", n.token))
	if err != nil {
		n.log.Warn().Err(err).Msg("Telegram notification failed")
		return
	}
	if resp.IsError() {
		n.log.Warn().Int("status", resp.StatusCode()).Msg("Telegram notification rejected")
	}
}
