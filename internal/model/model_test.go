package model

import "testing"

func TestValidStatus(t *testing.T) {
	valid := []OrderStatus{
		OrderStatusPending,
		OrderStatusProcessing,
		OrderStatusConfirmed,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled,
	}
	for _, s := range valid {
		if !ValidStatus(s) {
			t.Fatalf("ValidStatus(%q) = false, want true", s)
		}
	}

	for _, s := range []OrderStatus{"", "completed", "PENDING", "unknown"} {
		if ValidStatus(s) {
			t.Fatalf("ValidStatus(%q) = true, want false", s)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{"next step", OrderStatusPending, OrderStatusProcessing, true},
		{"skip forward", OrderStatusPending, OrderStatusShipped, true},
		{"skip to delivered", OrderStatusProcessing, OrderStatusDelivered, true},
		{"backward", OrderStatusShipped, OrderStatusProcessing, false},
		{"same status", OrderStatusConfirmed, OrderStatusConfirmed, false},
		{"cancel pending", OrderStatusPending, OrderStatusCancelled, true},
		{"cancel shipped", OrderStatusShipped, OrderStatusCancelled, true},
		{"cancel delivered", OrderStatusDelivered, OrderStatusCancelled, false},
		{"from cancelled", OrderStatusCancelled, OrderStatusPending, false},
		{"from delivered", OrderStatusDelivered, OrderStatusPending, false},
		{"unknown target", OrderStatusPending, "completed", false},
		{"unknown source", "completed", OrderStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Fatalf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTerminal(t *testing.T) {
	if !OrderStatusDelivered.Terminal() || !OrderStatusCancelled.Terminal() {
		t.Fatalf("delivered and cancelled must be terminal")
	}
	if OrderStatusPending.Terminal() || OrderStatusShipped.Terminal() {
		t.Fatalf("intermediate statuses must not be terminal")
	}
}
