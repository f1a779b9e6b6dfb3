package hub

import (
	"encoding/json"
	"time"
)

// Topic names the kind of payload a dashboard message carries.
type Topic string

const (
	// TopicSnapshot carries a session.Snapshot.
	TopicSnapshot Topic = "snapshot"
	// TopicDesktop carries a shell.State.
	TopicDesktop Topic = "desktop"
	// TopicTool carries the result of a manually triggered tool.
	TopicTool Topic = "tool"
)

// Envelope is the JSON frame written to dashboard clients.
type Envelope struct {
	Topic Topic           `json:"topic"`
	Time  time.Time       `json:"time"`
	Data  json.RawMessage `json:"data"`
}

// NewEnvelope marshals data into an envelope for topic.
func NewEnvelope(topic Topic, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Topic: topic, Time: time.Now(), Data: raw})
}
