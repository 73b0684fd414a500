package secret

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMask(t *testing.T) {
	require.Equal(t, "", Mask(""))
	require.Equal(t, "*****", Mask("abcde"))
	require.Equal(t, "s****n", Mask("secret"))
	require.Equal(t, "b*****************n", Mask("bearer-secret-token"))
	require.Equal(t, "bea****************************e", Mask("bearer-secret-token-longer-value"))
}
