package session

import (
	"errors"
	"testing"
)

func TestStateTokensRoundTrip(t *testing.T) {
	for st := Unset; st <= WrongPin; st++ {
		tok, err := EncodeState(st)
		if err != nil {
			t.Fatalf("encode %s: %v", st, err)
		}
		got, err := DecodeState(tok)
		if err != nil || got != st {
			t.Fatalf("decode %q = %s, %v; want %s", tok, got, err, st)
		}
	}
}

func TestDecodeLegacyTokens(t *testing.T) {
	tests := []struct {
		token string
		want  State
	}{
		{"0", Unset},
		{"endgame 1", Idle},
		{"endgame 2", AwaitingReading},
		{"remind wizard 2", ConfigureReminderPM},
		{"offline,endgame 1", Idle},
		{"offline,3", SelectMember},
	}
	for _, tt := range tests {
		got, err := DecodeState(tt.token)
		if err != nil {
			t.Fatalf("decode %q: %v", tt.token, err)
		}
		if got != tt.want {
			t.Fatalf("decode %q = %s, want %s", tt.token, got, tt.want)
		}
	}
}

func TestDecodeUnknownState(t *testing.T) {
	if _, err := DecodeState("endgame 3"); !errors.Is(err, ErrUnknownState) {
		t.Fatalf("expected ErrUnknownState, got %v", err)
	}
	if _, err := EncodeState(State(99)); !errors.Is(err, ErrUnknownState) {
		t.Fatalf("expected ErrUnknownState, got %v", err)
	}
}

func TestPinPhaseTokens(t *testing.T) {
	for _, p := range []PinPhase{PinUnset, PinMissing, PinUnconfirmed, PinConfirmed} {
		got, err := DecodePinPhase(EncodePinPhase(p))
		if err != nil || got != p {
			t.Fatalf("pin phase %s round trip = %s, %v", p, got, err)
		}
	}
	if _, err := DecodePinPhase("maybe"); err == nil {
		t.Fatal("expected error for unknown pin phase")
	}
}
