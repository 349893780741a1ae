package events

import (
	"context"

	"docspace/internal/document/model"
)

// Sink is anything that accepts change events: the websocket hub, the
// Redis publisher, or a Fanout of both.
type Sink interface {
	Publish(ctx context.Context, ev model.Event)
}

// Fanout delivers every event to each sink in order.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, ev model.Event) {
	for _, s := range f {
		if s != nil {
			s.Publish(ctx, ev)
		}
	}
}
