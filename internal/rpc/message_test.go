package rpc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	in := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	m, err := Parse(in)
	require.NoError(t, err)
	require.True(t, m.IsRequest())
	require.False(t, m.IsNotification())

	out, err := Encode(m)
	require.NoError(t, err)

	m2, err := Parse(out)
	require.NoError(t, err)
	require.Equal(t, m.Method, m2.Method)
	require.True(t, IDEquals(m.ID, m2.ID))
}

func TestIsNotification(t *testing.T) {
	m, err := Parse([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	require.True(t, m.IsNotification())
	require.False(t, m.IsRequest())
}

func TestIsResponse(t *testing.T) {
	m, err := Parse([]byte(`{"jsonrpc":"2.0","id":"init_1","result":{}}`))
	require.NoError(t, err)
	require.True(t, m.IsResponse())
}

func TestParseInvalidJSON(t *testing.T) {
	_, err := Parse([]byte("not json"))
	require.Error(t, err)
}

func TestNewError(t *testing.T) {
	e := NewError(nil, CodeInvalidRequest, "Bad Request: No valid session ID provided")
	require.Equal(t, CodeInvalidRequest, e.Error.Code)
	require.Nil(t, e.ID)
}
