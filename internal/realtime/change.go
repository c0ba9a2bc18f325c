// Package realtime implements the push channel layer: change events for
// table rows, filtered channel bindings, and the broker that fans events
// out to subscribed channels.
package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType is the kind of row change carried by a Change.
type EventType int

const (
	EventInsert EventType = iota + 1
	EventUpdate
	EventDelete
)

func (t EventType) String() string {
	switch t {
	case EventInsert:
		return "INSERT"
	case EventUpdate:
		return "UPDATE"
	case EventDelete:
		return "DELETE"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

func ParseEventType(value string) (EventType, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "INSERT":
		return EventInsert, nil
	case "UPDATE":
		return EventUpdate, nil
	case "DELETE":
		return EventDelete, nil
	default:
		return 0, fmt.Errorf("realtime: unknown event type %q", value)
	}
}

func (t EventType) MarshalText() ([]byte, error) {
	if t < EventInsert || t > EventDelete {
		return nil, fmt.Errorf("realtime: cannot marshal %s", t)
	}
	return []byte(t.String()), nil
}

func (t *EventType) UnmarshalText(text []byte) error {
	parsed, err := ParseEventType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Mask returns the single-bit mask selecting t.
func (t EventType) Mask() EventMask {
	switch t {
	case EventInsert:
		return MaskInsert
	case EventUpdate:
		return MaskUpdate
	case EventDelete:
		return MaskDelete
	default:
		return 0
	}
}

// EventMask selects the event types a binding wants.
type EventMask uint8

const (
	MaskInsert EventMask = 1 << iota
	MaskUpdate
	MaskDelete

	MaskAll = MaskInsert | MaskUpdate | MaskDelete
)

func (m EventMask) Has(t EventType) bool {
	return m&t.Mask() != 0
}

// Change is one committed row change. Record holds the new row for
// INSERT and UPDATE; OldRecord holds the previous row for UPDATE and
// DELETE when the source provides it.
type Change struct {
	Table           string          `json:"table"`
	Type            EventType       `json:"type"`
	Record          json.RawMessage `json:"record,omitempty"`
	OldRecord       json.RawMessage `json:"old_record,omitempty"`
	CommitTimestamp time.Time       `json:"commit_timestamp"`
}

// Row returns the row a filter should be evaluated against.
func (c Change) Row() json.RawMessage {
	if c.Type == EventDelete || isNullJSON(c.Record) {
		return c.OldRecord
	}
	return c.Record
}

// Decode unmarshals the change's row into T.
func Decode[T any](c Change) (T, error) {
	var out T
	row := c.Row()
	if isNullJSON(row) {
		return out, fmt.Errorf("realtime: %s %s change has no row", c.Table, c.Type)
	}
	if err := json.Unmarshal(row, &out); err != nil {
		return out, fmt.Errorf("realtime: decode %s row: %w", c.Table, err)
	}
	return out, nil
}

// NewChange builds a Change from typed rows. Nil rows are omitted.
func NewChange(table string, eventType EventType, record, old any) (Change, error) {
	change := Change{
		Table:           table,
		Type:            eventType,
		CommitTimestamp: time.Now().UTC(),
	}
	if record != nil {
		data, err := json.Marshal(record)
		if err != nil {
			return Change{}, fmt.Errorf("realtime: encode record: %w", err)
		}
		change.Record = data
	}
	if old != nil {
		data, err := json.Marshal(old)
		if err != nil {
			return Change{}, fmt.Errorf("realtime: encode old record: %w", err)
		}
		change.OldRecord = data
	}
	return change, nil
}

func isNullJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
