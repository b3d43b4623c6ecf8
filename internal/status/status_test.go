package status

import (
	"errors"
	"testing"
)

func TestMapKnownTokens(t *testing.T) {
	cases := map[string]Status{
		"created":                Created,
		"received":               Pending,
		"recieved":               Pending,
		"in_validation":          InValidation,
		"approved":               Approved,
		"pending_authentication": PendingAuthentication,
		"validation_rejected":    ValidationRejected,
		"rejected":               Rejected,
		"issued":                 Issued,
		"revoked":                Revoked,
	}
	for raw, want := range cases {
		if got := Map(raw); got != want {
			t.Fatalf("Map(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestMapIsCaseInsensitive(t *testing.T) {
	if got := Map("  APPROVED "); got != Approved {
		t.Fatalf("expected approved, got %q", got)
	}
	if got := Map("Recieved"); got != Pending {
		t.Fatalf("expected pending for misspelled token, got %q", got)
	}
}

func TestMapPassesUnknownTokensThrough(t *testing.T) {
	got := Map("Awaiting_Video_Call")
	if got != "Awaiting_Video_Call" {
		t.Fatalf("expected unknown token unchanged, got %q", got)
	}
	if got.Known() {
		t.Fatalf("expected pass-through status to be unknown")
	}
}

func TestAllStatusesAreKnown(t *testing.T) {
	for _, s := range All() {
		if !s.Known() {
			t.Fatalf("expected %q to be known", s)
		}
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{Created, Pending, true},
		{Pending, InValidation, true},
		{InValidation, Approved, true},
		{Approved, PendingAuthentication, true},
		{PendingAuthentication, Issued, true},
		{Approved, Issued, true},
		{Approved, Approved, true},
		{Issued, Issued, true},
		{InValidation, ValidationRejected, true},
		{ValidationRejected, InValidation, true},
		{ValidationRejected, Pending, true},
		{ValidationRejected, Approved, true},
		{ValidationRejected, Issued, false},
		{Pending, Rejected, true},
		{Approved, Rejected, true},
		{Issued, Revoked, true},

		{Issued, Approved, false},
		{Approved, InValidation, false},
		{Approved, ValidationRejected, false},
		{Rejected, Pending, false},
		{Revoked, Issued, false},
		{Issued, Rejected, false},
		{Approved, Revoked, false},
		{Created, Revoked, false},

		{Status("legacy"), Approved, true},
		{Approved, Status("awaiting_video_call"), true},
		{Issued, Status("awaiting_video_call"), false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %t, want %t", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCheckTransitionReturnsTypedError(t *testing.T) {
	err := CheckTransition(Issued, Approved)
	var terr *TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected *TransitionError, got %v", err)
	}
	if terr.From != Issued || terr.To != Approved {
		t.Fatalf("unexpected error fields: %+v", terr)
	}
	if CheckTransition(Created, Pending) != nil {
		t.Fatalf("expected nil error for valid edge")
	}
}
