package notifier

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tradewatch/cyclarb/pkg/types"
)

// TestNotifierDisabledWithoutCredentials verifies missing credentials yield a
// disabled notifier that ignores opportunities.
func TestNotifierDisabledWithoutCredentials(t *testing.T) {
	n := NewSlackNotifier(&SlackConfig{Enabled: true})
	if n.IsEnabled() {
		t.Fatal("notifier without credentials must be disabled")
	}
	if err := n.NotifyOpportunity(&types.Opportunity{}); err != nil {
		t.Fatalf("disabled notify must be a no-op, got %v", err)
	}
}

// TestNotifyOpportunityPayload posts against a stub Slack API and checks the
// payload carries the cycle path.
func TestNotifyOpportunityPayload(t *testing.T) {
	var got slackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewSlackNotifier(&SlackConfig{APIToken: "tok", Channel: "#arb", Enabled: true})
	n.apiURL = srv.URL

	opp := &types.Opportunity{
		Path:       []string{"BTC_0", "USDT_0", "ETH_0"},
		ProfitPct:  0.0245,
		Confidence: 120,
		DetectedAt: time.Now(),
	}
	if err := n.NotifyOpportunity(opp); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if got.Channel != "#arb" {
		t.Errorf("channel: got %q", got.Channel)
	}
	if !strings.Contains(got.Text, "BTC_0 -> USDT_0 -> ETH_0") {
		t.Errorf("fallback text: got %q", got.Text)
	}
}

// TestNotifyReportsSlackError verifies an ok=false response surfaces as an
// error.
func TestNotifyReportsSlackError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer srv.Close()

	n := NewSlackNotifier(&SlackConfig{APIToken: "tok", Channel: "#arb", Enabled: true})
	n.apiURL = srv.URL

	err := n.NotifyOpportunity(&types.Opportunity{Path: []string{"A_0", "B_0", "C_0"}, DetectedAt: time.Now()})
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Fatalf("want slack error, got %v", err)
	}
}
