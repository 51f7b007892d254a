package schema

import "time"

// SchemaVersion is the current event schema version.
const SchemaVersion uint16 = 1

// EventHeader is the common metadata attached to every delivered event.
type EventHeader struct {
	Topic   Topic
	Version uint16
	Seq     uint64
	TsEvent int64
	TraceID uint64
}

// NewHeader builds a header with the current schema version.
func NewHeader(topic Topic, seq uint64, tsEvent int64) EventHeader {
	if tsEvent == 0 {
		tsEvent = time.Now().UTC().UnixNano()
	}
	return EventHeader{
		Topic:   topic,
		Version: SchemaVersion,
		Seq:     seq,
		TsEvent: tsEvent,
	}
}

// Event is the unit delivered to event channel subscribers.
type Event struct {
	Header  EventHeader
	Payload Payload
}
