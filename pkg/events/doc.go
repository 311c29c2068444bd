/*
Package events provides an in-memory event broker for changeset
lifecycle progress.

A Broker fans out Events from changeset begin through finalize to any
number of subscribers (e.g. a `changeset --watch` CLI stream, or a
metrics collector) without coupling the changeset lifecycle to any
particular consumer. Delivery is best-effort: a subscriber with a full
buffer silently misses events rather than blocking the publisher.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for ev := range sub {
			fmt.Printf("[%d] %s: %s\n", ev.ChangesetID, ev.Type, ev.Message)
		}
	}()

	broker.Publish(&events.Event{
		Type:        events.EventChangesetBegan,
		ChangesetID: cs.ID,
		Message:     "scan started",
	})

# Event Types

  - changeset.began / changeset.finalized / changeset.cancelled: lifecycle transitions
  - changeset.progress: periodic tasks_progress-style counters
  - asset.seen / asset.lost: per-asset outcomes during a scan
  - processor.completed / processor.failed: per-processor dispatch outcomes
*/
package events
