package crypto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	payload := make([]byte, 20)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	addr := NewAddress(AccountPrefix, payload)

	decoded, err := DecodeAddress(addr.String())
	require.NoError(t, err)
	require.True(t, addr.Equal(decoded))
	require.Equal(t, AccountPrefix, decoded.Prefix())
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	if _, err := DecodeAddress("not-a-bech32-address"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestModuleAddressDeterministic(t *testing.T) {
	a := ModuleAddress("synth")
	b := ModuleAddress("synth")
	require.True(t, a.Equal(b))
	require.Equal(t, ModulePrefix, a.Prefix())
	require.False(t, a.Equal(ModuleAddress("other")))
}

func TestAddressJSON(t *testing.T) {
	addr := ModuleAddress("synth")
	raw, err := json.Marshal(addr)
	require.NoError(t, err)

	var decoded Address
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.True(t, addr.Equal(decoded))
}
