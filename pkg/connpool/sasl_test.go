package connpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectMechanismPrefersStrongest(t *testing.T) {
	available := []Mechanism{MechanismPlain, MechanismScramSHA1, MechanismScramSHA256}
	require.Equal(t, MechanismScramSHA256, selectMechanism(available, false))
}

func TestSelectMechanismHonorsForcePlain(t *testing.T) {
	available := []Mechanism{MechanismScramSHA512, MechanismScramSHA256}
	require.Equal(t, MechanismPlain, selectMechanism(available, true))
}

func TestSelectMechanismFallsBackToPlain(t *testing.T) {
	require.Equal(t, MechanismPlain, selectMechanism(nil, false))
}

func TestParseServerFirstMessage(t *testing.T) {
	salt, iter, nonce, err := parseServerFirst("r=abcd1234,s=c2FsdA==,i=4096")
	require.NoError(t, err)
	require.Equal(t, "abcd1234", nonce)
	require.Equal(t, 4096, iter)
	require.Equal(t, []byte("salt"), salt)
}

func TestParseServerFirstMessageRejectsIncomplete(t *testing.T) {
	_, _, _, err := parseServerFirst("r=abcd1234")
	require.Error(t, err)
}

func TestParseServerFinalMessage(t *testing.T) {
	sig, err := parseServerFinal("v=c2lnbmF0dXJl")
	require.NoError(t, err)
	require.Equal(t, []byte("signature"), sig)
}
