package game

// Event is a subscribe/notify list for lifecycle signals such as
// before-destroy. Subscriptions are identified by tokens so a handler
// can be dropped without comparing functions; dispatch iterates over a
// copy so a handler may unsubscribe itself (or others) mid-emit.
//
// Events belong to their owner object and are touched only on its logic
// thread.
type Event struct {
	nextToken uint64
	subs      map[uint64]func()
}

// Token identifies one subscription.
type Token uint64

// Subscribe registers fn and returns its token.
func (e *Event) Subscribe(fn func()) Token {
	if e.subs == nil {
		e.subs = make(map[uint64]func())
	}
	e.nextToken++
	e.subs[e.nextToken] = fn
	return Token(e.nextToken)
}

// Unsubscribe drops the subscription for tok.
func (e *Event) Unsubscribe(tok Token) {
	delete(e.subs, uint64(tok))
}

// Emit invokes every current subscriber.
func (e *Event) Emit() {
	if len(e.subs) == 0 {
		return
	}
	handlers := make([]func(), 0, len(e.subs))
	for _, fn := range e.subs {
		handlers = append(handlers, fn)
	}
	for _, fn := range handlers {
		fn()
	}
}
