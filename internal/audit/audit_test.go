package audit

import (
	"testing"
)

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"john.doe@example.com", "jo******@example.com"},
		{"ab@example.com", "**@example.com"},
		{"a@example.com", "*@example.com"},
		{"not-an-email", "no**********"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := MaskEmail(tt.in); got != tt.want {
			t.Fatalf("MaskEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaskPhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+22501020304", "+2********04"},
		{"0102", "01**"},
		{"12", "**"},
	}

	for _, tt := range tests {
		if got := MaskPhone(tt.in); got != tt.want {
			t.Fatalf("MaskPhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMemoryRecorder(t *testing.T) {
	rec := NewMemoryRecorder()

	rec.Record(Event{Type: EventStatusChange, Fields: map[string]string{"orderId": "1"}})
	rec.Record(Event{Type: EventOrderDeleted, Severity: SeverityWarning})
	rec.Record(Event{Type: EventStatusChange})

	events := rec.Events()
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}

	for _, e := range events {
		if e.ID == "" {
			t.Fatalf("event id must be generated")
		}
		if e.Time.IsZero() {
			t.Fatalf("event time must be set")
		}
	}

	if events[0].Severity != SeverityInfo {
		t.Fatalf("severity = %q, want default %q", events[0].Severity, SeverityInfo)
	}

	changes := rec.ByType(EventStatusChange)
	if len(changes) != 2 {
		t.Fatalf("got %d STATUS_CHANGE events, want 2", len(changes))
	}
}
