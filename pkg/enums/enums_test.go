package enums

import "testing"

func TestParseRoundTrip(t *testing.T) {
	for _, s := range validSessionStates {
		got, err := ParseSessionState(s.String())
		if err != nil || got != s {
			t.Fatalf("ParseSessionState(%q) = %q, %v", s, got, err)
		}
	}
	if len(validSessionStates) != 13 {
		t.Fatalf("expected 13 session states, got %d", len(validSessionStates))
	}
	if _, err := ParseOrderStatus("shipped"); err == nil {
		t.Fatalf("expected error for unknown order status")
	}
	if DiscountType("bogo").IsValid() {
		t.Fatalf("bogo should not be a valid discount type")
	}
}

func TestTerminalStatuses(t *testing.T) {
	if !OrderStatusCompleted.IsTerminal() || !OrderStatusCancelled.IsTerminal() {
		t.Fatalf("completed and cancelled orders are terminal")
	}
	if OrderStatusDelivered.IsTerminal() {
		t.Fatalf("delivered orders can still complete")
	}
	if PaymentSessionStatusFailed.IsTerminal() {
		t.Fatalf("failed payment sessions can be retried")
	}
	if !PaymentSessionStatusCancelled.IsTerminal() {
		t.Fatalf("cancelled payment sessions are terminal")
	}
}
