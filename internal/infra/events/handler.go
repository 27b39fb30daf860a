package events

import "slices"

// Handler is the interface for event handlers.
type Handler interface {
	// Handles returns the list of event types this handler can process.
	Handles() []string

	// Handle processes the given event.
	// Implementations should be idempotent - handling the same event twice
	// should not produce duplicate side effects.
	Handle(event Event) error
}

// HandlerFunc is a function type that implements Handler for a single event type.
type HandlerFunc struct {
	eventTypes []string
	fn         func(Event) error
}

// NewHandlerFunc creates a new HandlerFunc.
func NewHandlerFunc(eventTypes []string, fn func(Event) error) *HandlerFunc {
	return &HandlerFunc{
		eventTypes: eventTypes,
		fn:         fn,
	}
}

// Handles returns the list of event types this handler can process.
func (h *HandlerFunc) Handles() []string {
	return h.eventTypes
}

// Handle processes the given event.
func (h *HandlerFunc) Handle(event Event) error {
	return h.fn(event)
}

// On returns a handler for one event type that only receives events of
// concrete type T. Events of any other Go type are skipped.
func On[T Event](eventType string, fn func(T) error) *HandlerFunc {
	return NewHandlerFunc([]string{eventType}, func(e Event) error {
		ev, ok := e.(T)
		if !ok {
			return nil
		}
		return fn(ev)
	})
}

// Group combines handlers into one registration. Each event goes to
// every member that handles its type.
type Group []Handler

// Handles returns the union of the members' event types.
func (g Group) Handles() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, h := range g {
		for _, t := range h.Handles() {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// Handle passes event to the members that handle its type and returns
// the first error.
func (g Group) Handle(event Event) error {
	var first error
	for _, h := range g {
		if !slices.Contains(h.Handles(), event.EventType()) {
			continue
		}
		if err := h.Handle(event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
