package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"matrixchain/core/events"
	"matrixchain/core/types"
	"matrixchain/observability"
)

const eventHistoryLimit = 2048

// EventUpdate is a committed engine event with its stream position.
type EventUpdate struct {
	Sequence   uint64
	Cursor     string
	Type       string
	Attributes map[string]string
}

func cloneEventUpdate(update EventUpdate) EventUpdate {
	cloned := update
	if update.Attributes != nil {
		cloned.Attributes = make(map[string]string, len(update.Attributes))
		for k, v := range update.Attributes {
			cloned.Attributes[k] = v
		}
	}
	return cloned
}

type payloadEvent interface {
	Event() *types.Event
}

func (n *Node) publishEvent(evt events.Event) {
	if n == nil || evt == nil {
		return
	}
	update := EventUpdate{Type: evt.EventType()}
	if carrier, ok := evt.(payloadEvent); ok && carrier.Event() != nil {
		update.Attributes = carrier.Event().Attributes
	}
	observability.Events().RecordPublished(update.Type)

	n.streamMu.Lock()
	if n.streamSubs == nil {
		n.streamSubs = make(map[uint64]chan EventUpdate)
	}
	n.streamSeq++
	update.Sequence = n.streamSeq
	update.Cursor = strconv.FormatUint(update.Sequence, 10)
	n.streamHistory = append(n.streamHistory, cloneEventUpdate(update))
	if len(n.streamHistory) > eventHistoryLimit {
		excess := len(n.streamHistory) - eventHistoryLimit
		trimmed := make([]EventUpdate, eventHistoryLimit)
		copy(trimmed, n.streamHistory[excess:])
		n.streamHistory = trimmed
	}
	// Sends are non-blocking and happen under the lock so cancel cannot
	// close a channel mid-send.
	for _, ch := range n.streamSubs {
		select {
		case ch <- cloneEventUpdate(update):
		default:
			observability.Events().RecordDropped()
		}
	}
	n.streamMu.Unlock()

	if n.emitter != nil {
		n.emitter.Emit(evt)
	}
}

// EventsSubscribe registers a subscriber for committed events after cursor.
// The returned backlog holds retained history newer than cursor.
func (n *Node) EventsSubscribe(ctx context.Context, cursor string) (<-chan EventUpdate, func(), []EventUpdate, error) {
	if n == nil {
		return nil, nil, nil, fmt.Errorf("node not initialised")
	}
	updates := make(chan EventUpdate, 32)

	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		parsed, err := strconv.ParseUint(trimmed, 10, 64)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid cursor %q", cursor)
		}
		since = parsed
	}

	n.streamMu.Lock()
	if n.streamSubs == nil {
		n.streamSubs = make(map[uint64]chan EventUpdate)
	}
	id := n.streamNextID
	n.streamNextID++
	n.streamSubs[id] = updates
	history := make([]EventUpdate, len(n.streamHistory))
	copy(history, n.streamHistory)
	n.streamMu.Unlock()

	backlog := make([]EventUpdate, 0, len(history))
	for _, entry := range history {
		if entry.Sequence > since {
			backlog = append(backlog, cloneEventUpdate(entry))
		}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.streamMu.Lock()
			sub, ok := n.streamSubs[id]
			if ok {
				delete(n.streamSubs, id)
				close(sub)
			}
			n.streamMu.Unlock()
		})
	}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return updates, cancel, backlog, nil
}
