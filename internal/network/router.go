package network

import (
	"sync"

	"go.uber.org/zap"

	"github.com/vennwood/revenant/internal/protocol"
)

// Handler processes the payload of one decoded message. Handlers are
// invoked on the session's receive goroutine in frame arrival order; a
// handler that needs to do long work must hand it off rather than stall
// the path behind it.
type Handler func(payload []byte)

// Router maps opcodes to registered handlers. At most one handler is held
// per opcode; the last registration wins. Routing an opcode with no handler
// is a silent no-op, since the server routinely sends opcodes the agent
// does not care about.
type Router struct {
	log *zap.SugaredLogger

	mu       sync.RWMutex
	handlers map[protocol.Opcode]Handler
}

func NewRouter(log *zap.SugaredLogger) *Router {
	return &Router{
		log:      log,
		handlers: make(map[protocol.Opcode]Handler),
	}
}

// Register installs handler for opcode, replacing any previous registration.
func (r *Router) Register(opcode protocol.Opcode, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[opcode]; exists {
		r.log.Debugf("replacing handler for %v", opcode)
	}
	r.handlers[opcode] = handler
}

// Route dispatches payload to the handler registered for opcode, if any.
func (r *Router) Route(opcode protocol.Opcode, payload []byte) {
	r.mu.RLock()
	handler := r.handlers[opcode]
	r.mu.RUnlock()

	if handler == nil {
		return
	}
	handler(payload)
}
