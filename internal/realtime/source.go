package realtime

import (
	"encoding/json"
	"fmt"
)

// Sink accepts changes from a Source. Broker is the usual Sink.
type Sink interface {
	Publish(change Change)
	Fail(err error)
}

// Connectivity receives transport up/down signals from a Source.
type Connectivity interface {
	GoOnline()
	GoOffline()
}

type noConnectivity struct{}

func (noConnectivity) GoOnline()  {}
func (noConnectivity) GoOffline() {}

// ParseNotification decodes a change payload produced by the database
// trigger or republished by the relay.
func ParseNotification(payload []byte) (Change, error) {
	var change Change
	if err := json.Unmarshal(payload, &change); err != nil {
		return Change{}, fmt.Errorf("realtime: decode change payload: %w", err)
	}
	if change.Table == "" {
		return Change{}, fmt.Errorf("realtime: change payload without table")
	}
	return change, nil
}
