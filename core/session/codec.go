package session

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownState is returned when a stored token has no matching state.
var ErrUnknownState = errors.New("session: unknown state token")

// legacyOfflinePrefix marked sessions parked while the directory was down.
const legacyOfflinePrefix = "offline,"

// Tokens persisted in the status column. The first block matches records
// written by earlier deployments and must not change.
var stateTokens = map[State]string{
	Unset:               "0",
	AwaitingGroupRef:    "1",
	ConfirmGroupRef:     "2",
	SelectMember:        "3",
	ConfirmMember:       "4",
	EnterPin:            "5",
	ConfirmPin:          "6",
	ConfirmPinAgain:     "7",
	SetupSummary:        "8",
	Idle:                "endgame 1",
	AwaitingReading:     "endgame 2",
	ConfigureReminderAM: "remind wizard 1",
	ConfigureReminderPM: "remind wizard 2",
	WrongPin:            "wrong pin",
}

var tokenStates = func() map[string]State {
	m := make(map[string]State, len(stateTokens))
	for st, tok := range stateTokens {
		m[tok] = st
	}
	return m
}()

// EncodeState returns the stored token of s.
func EncodeState(s State) (string, error) {
	tok, ok := stateTokens[s]
	if !ok {
		return "", fmt.Errorf("%w: state %d", ErrUnknownState, int(s))
	}
	return tok, nil
}

// DecodeState parses a stored token. Legacy "offline," markers decode to
// the state they wrapped.
func DecodeState(token string) (State, error) {
	token = strings.TrimPrefix(token, legacyOfflinePrefix)
	if st, ok := tokenStates[token]; ok {
		return st, nil
	}
	return Unset, fmt.Errorf("%w: %q", ErrUnknownState, token)
}

var pinTokens = map[PinPhase]string{
	PinUnset:       "",
	PinMissing:     "no pin",
	PinUnconfirmed: "unconfirmed",
	PinConfirmed:   "confirmed",
}

// EncodePinPhase returns the stored token of p.
func EncodePinPhase(p PinPhase) string {
	return pinTokens[p]
}

// DecodePinPhase parses a stored pin phase token.
func DecodePinPhase(token string) (PinPhase, error) {
	for p, tok := range pinTokens {
		if tok == token {
			return p, nil
		}
	}
	return PinUnset, fmt.Errorf("session: unknown pin phase %q", token)
}
