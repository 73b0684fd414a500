package framer

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeedSplitsOnLF(t *testing.T) {
	f := New()
	lines := f.Feed([]byte("{\"a\":1}\n{\"b\":2}\n"))
	require.Equal(t, []string{`{"a":1}`, `{"b":2}`}, lines)
	require.Empty(t, f.Tail())
}

func TestFeedSplitsOnCRLF(t *testing.T) {
	f := New()
	lines := f.Feed([]byte("one\r\ntwo\r\n"))
	require.Equal(t, []string{"one", "two"}, lines)
}

func TestFeedBuffersPartialTail(t *testing.T) {
	f := New()
	require.Empty(t, f.Feed([]byte("partial")))
	require.Equal(t, "partial", f.Tail())
	lines := f.Feed([]byte(" line\n"))
	require.Equal(t, []string{"partial line"}, lines)
}

func TestFeedIgnoresEmptyLines(t *testing.T) {
	f := New()
	lines := f.Feed([]byte("\n\nfoo\n\n"))
	require.Equal(t, []string{"foo"}, lines)
}

func TestFeedLoneLFEmitsNothing(t *testing.T) {
	f := New()
	require.Empty(t, f.Feed([]byte("\n")))
}

// TestRoundTripArbitraryChunking asserts the property from spec §8: for any
// byte stream formed by concatenating serialize(m_i)+sep_i, the emitted
// sequence of lines equals m_0, m_1, ... regardless of how the stream is
// chopped into chunks before being fed to the framer.
func TestRoundTripArbitraryChunking(t *testing.T) {
	msgs := []string{`{"id":1}`, `{"id":2,"method":"x"}`, `{"id":3}`}
	seps := []string{"\n", "\r\n", "\n"}

	var full strings.Builder
	for i, m := range msgs {
		full.WriteString(m)
		full.WriteString(seps[i])
	}
	data := []byte(full.String())

	rng := rand.New(rand.NewSource(1))
	f := New()
	var got []string
	for len(data) > 0 {
		n := 1 + rng.Intn(len(data))
		got = append(got, f.Feed(data[:n])...)
		data = data[n:]
	}
	require.Equal(t, msgs, got)
	require.Empty(t, f.Tail())
}
