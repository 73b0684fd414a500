package streamhttp

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/netbridge/mcpgate/internal/rpc"
)

const initClientName = "supergateway"

const base36alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func randomBase36(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(base36alphabet[rand.Intn(len(base36alphabet))])
	}
	return b.String()
}

// interposer performs the auto-initialize handshake on behalf of a client
// whose first message in a stateless POST is not itself "initialize". It is
// scoped to exactly one POST and is not safe for concurrent use.
type interposer struct {
	protocolVersion string
	clientVersion   string

	initialized        bool
	pendingOriginal    *rpc.Message
	trackedInitID      json.RawMessage
	isAutoInitializing bool
}

func newInterposer(protocolVersion, clientVersion string) *interposer {
	return &interposer{protocolVersion: protocolVersion, clientVersion: clientVersion}
}

// outbound processes one network→child message and returns what should
// actually be written to the child's stdin, in order. When it synthesizes
// an initialize handshake, m itself is held back until the handshake
// completes, so outbound returns only the synthesized request.
func (ip *interposer) outbound(m rpc.Message) []rpc.Message {
	switch {
	case !ip.initialized && !m.IsInitialize():
		orig := m
		ip.pendingOriginal = &orig
		id := fmt.Sprintf("init_%d_%s", time.Now().UnixMilli(), randomBase36(9))
		ip.trackedInitID = json.RawMessage(fmt.Sprintf("%q", id))
		ip.isAutoInitializing = true
		return []rpc.Message{ip.buildInitRequest()}
	case m.IsInitialize():
		ip.trackedInitID = m.ID
		ip.isAutoInitializing = false
		return []rpc.Message{m}
	default:
		return []rpc.Message{m}
	}
}

func (ip *interposer) buildInitRequest() rpc.Message {
	params := fmt.Sprintf(
		`{"protocolVersion":%q,"capabilities":{"roots":{"listChanged":true},"sampling":{}},"clientInfo":{"name":%q,"version":%q}}`,
		ip.protocolVersion, initClientName, ip.clientVersion,
	)
	return rpc.Message{
		JSONRPC: rpc.Version,
		ID:      ip.trackedInitID,
		Method:  rpc.MethodInitialize,
		Params:  json.RawMessage(params),
	}
}

// inbound processes one child→network message r. It reports whether r
// should be forwarded to the network, and any additional messages that
// must be written to the child's stdin as a consequence (the
// notifications/initialized handshake tail plus the held-back original
// message).
func (ip *interposer) inbound(r rpc.Message) (forward bool, extraOutbound []rpc.Message) {
	if len(ip.trackedInitID) == 0 || !rpc.IDEquals(r.ID, ip.trackedInitID) {
		return true, nil
	}

	ip.initialized = true
	if !ip.isAutoInitializing {
		ip.trackedInitID = nil
		return true, nil
	}

	notify := rpc.Message{JSONRPC: rpc.Version, Method: rpc.NotificationInit}
	pending := *ip.pendingOriginal

	ip.pendingOriginal = nil
	ip.isAutoInitializing = false
	ip.trackedInitID = nil

	return false, []rpc.Message{notify, pending}
}
