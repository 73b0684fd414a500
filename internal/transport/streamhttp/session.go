package streamhttp

import (
	"sync"

	"github.com/netbridge/mcpgate/internal/childproc"
	"github.com/netbridge/mcpgate/internal/rpc"
)

// statefulSession is one long-lived Streamable-HTTP client session: its own
// child process, plus the bookkeeping needed to correlate a POSTed request
// with the response the child eventually writes to stdout, and to forward
// anything else to an open hanging GET.
type statefulSession struct {
	id    string
	child *childproc.Child

	mu      sync.Mutex
	waiters map[string]chan rpc.Message
	getSink chan rpc.Message

	closed    chan struct{}
	closeOnce sync.Once
}

func newStatefulSession(id string, child *childproc.Child) *statefulSession {
	s := &statefulSession{
		id:      id,
		child:   child,
		waiters: map[string]chan rpc.Message{},
		closed:  make(chan struct{}),
	}
	go s.pump()
	return s
}

// pump routes every message the child writes to stdout either to the
// waiter registered for its id, or to the open GET stream, or drops it.
func (s *statefulSession) pump() {
	for msg := range s.child.Lines() {
		key := idKey(msg.ID)
		s.mu.Lock()
		ch, ok := s.waiters[key]
		if ok {
			delete(s.waiters, key)
		}
		sink := s.getSink
		s.mu.Unlock()

		switch {
		case ok:
			ch <- msg
		case sink != nil:
			select {
			case sink <- msg:
			default:
			}
		}
	}
}

func idKey(id []byte) string { return string(id) }

// await registers a waiter for id and returns a channel that receives
// exactly one message: the child's response, or nothing if the session is
// closed first (the caller selects on s.closed too).
func (s *statefulSession) await(id []byte) chan rpc.Message {
	ch := make(chan rpc.Message, 1)
	s.mu.Lock()
	s.waiters[idKey(id)] = ch
	s.mu.Unlock()
	return ch
}

func (s *statefulSession) cancelAwait(id []byte) {
	s.mu.Lock()
	delete(s.waiters, idKey(id))
	s.mu.Unlock()
}

func (s *statefulSession) attachGET() chan rpc.Message {
	ch := make(chan rpc.Message, 16)
	s.mu.Lock()
	s.getSink = ch
	s.mu.Unlock()
	return ch
}

func (s *statefulSession) detachGET() {
	s.mu.Lock()
	s.getSink = nil
	s.mu.Unlock()
}

// close kills the session's child and unblocks anything waiting on it.
// Safe to call more than once.
func (s *statefulSession) close() {
	s.closeOnce.Do(func() {
		_ = s.child.Kill()
		close(s.closed)
	})
}
