/*
Package events provides an in-memory, non-blocking pub/sub broker for
notifying observers about engine lifecycle changes — databases opening,
closing, being created or dropped; checkpoints starting and finishing;
replicas connecting, disconnecting, or a node promoting itself to
master.

None of this feeds back into query execution. Components that care
about these transitions (a metrics collector updating a gauge, an
operator tool streaming status to a terminal) shouldn't need a direct
reference to the engine internals that cause them, and a slow or absent
subscriber must never be able to stall a database operation waiting on
it.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(&events.Event{
		Type:     events.DatabaseCreated,
		Database: "graph",
	})

	for ev := range sub {
		log.Info().Str("type", string(ev.Type)).Msg("engine event")
	}

Publish enqueues onto a buffered channel and returns immediately;
broadcast to subscribers happens on the broker's own goroutine, and a
full subscriber buffer simply drops the event rather than propagating
backpressure to the publisher.
*/
package events
