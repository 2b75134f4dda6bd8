package parse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecideBoundaries(t *testing.T) {
	cases := []struct {
		confidence int
		want       Decision
	}{
		{100, DecisionAutoLog},
		{85, DecisionAutoLog},
		{81, DecisionAutoLog},
		{80, DecisionConfirm},
		{65, DecisionConfirm},
		{51, DecisionConfirm},
		{50, DecisionRephrase},
		{40, DecisionRephrase},
		{0, DecisionRephrase},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Decide(tc.confidence), "confidence %d", tc.confidence)
	}
}

func TestInitialState(t *testing.T) {
	require.Equal(t, StateAutoLogged, InitialState(85))
	require.Equal(t, StatePendingConfirmation, InitialState(65))
	require.Equal(t, StateNeedsRephrase, InitialState(40))
}

func TestResolvePendingConfirmation(t *testing.T) {
	next, err := StatePendingConfirmation.Resolve(true)
	require.NoError(t, err)
	require.Equal(t, StateAutoLogged, next)

	next, err = StatePendingConfirmation.Resolve(false)
	require.NoError(t, err)
	require.Equal(t, StateRejected, next)
}

func TestResolveNonPendingStatesError(t *testing.T) {
	for _, state := range []ConfirmationState{StateAutoLogged, StateRejected, StateNeedsRephrase} {
		_, err := state.Resolve(true)
		require.ErrorIs(t, err, ErrNotAwaitingConfirmation, "state %q", state)
	}
}
