package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gus-bms/db-checker/internal/model"
)

// Interest is one of the three interest groups.
type Interest int

const (
	InterestSnapshot Interest = iota
	InterestProcessList
	InterestTimeSeries
)

func (i Interest) String() string {
	switch i {
	case InterestSnapshot:
		return "snapshot"
	case InterestProcessList:
		return "processlist"
	case InterestTimeSeries:
		return "timeseries"
	default:
		return fmt.Sprintf("interest(%d)", int(i))
	}
}

// Subscription is a connection's current interest set.
type Subscription struct {
	Snapshot    bool `json:"snapshot"`
	ProcessList bool `json:"processlist"`
	TimeSeries  bool `json:"timeseries"`
}

// Has reports membership in an interest group.
func (s Subscription) Has(i Interest) bool {
	switch i {
	case InterestSnapshot:
		return s.Snapshot
	case InterestProcessList:
		return s.ProcessList
	case InterestTimeSeries:
		return s.TimeSeries
	default:
		return false
	}
}

// Empty reports whether the connection is in no group.
func (s Subscription) Empty() bool {
	return !s.Snapshot && !s.ProcessList && !s.TimeSeries
}

// Event names.
const (
	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
	EventAck         = "ack"
	EventSnapshot    = "db:snapshot"
	EventProcessList = "db:processlist"
	EventTimeSeries  = "db:timeseries"
)

// SubscriptionPayload is the client's subscribe/unsubscribe body. Unset
// fields are false. Field names match case-insensitively, so both
// "processlist" and "processList" are accepted.
type SubscriptionPayload struct {
	Snapshot    *bool `json:"snapshot"`
	ProcessList *bool `json:"processlist"`
	TimeSeries  *bool `json:"timeseries"`
}

// Resolve turns the payload into a full subscription. A nil payload is empty.
func (p *SubscriptionPayload) Resolve() Subscription {
	if p == nil {
		return Subscription{}
	}
	return Subscription{
		Snapshot:    p.Snapshot != nil && *p.Snapshot,
		ProcessList: p.ProcessList != nil && *p.ProcessList,
		TimeSeries:  p.TimeSeries != nil && *p.TimeSeries,
	}
}

// clientMessage is the inbound envelope.
type clientMessage struct {
	ID    int64           `json:"id"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// serverMessage is the outbound envelope.
type serverMessage struct {
	ID    int64  `json:"id,omitempty"`
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Ack acknowledges a subscribe or unsubscribe.
type Ack struct {
	OK         bool          `json:"ok"`
	Subscribed *Subscription `json:"subscribed,omitempty"`
	Error      string        `json:"error,omitempty"`
}

type snapshotData struct {
	Snapshot model.Snapshot `json:"snapshot"`
}

type processListData struct {
	ProcessList model.ProcessList `json:"processlist"`
}

// decodeClientMessage parses the envelope strictly.
func decodeClientMessage(data []byte) (clientMessage, error) {
	var msg clientMessage
	if err := strictUnmarshal(data, &msg); err != nil {
		return clientMessage{}, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}
	if msg.Event == "" {
		return clientMessage{}, fmt.Errorf("%w: event is required", model.ErrValidation)
	}
	return msg, nil
}

// decodePayload parses a subscription body. Omitted or null data yields nil.
func decodePayload(raw json.RawMessage) (*SubscriptionPayload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: data must be an object", model.ErrValidation)
	}

	var p SubscriptionPayload
	if err := strictUnmarshal(trimmed, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}
	return &p, nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after message")
	}
	return nil
}

// encodeEvent builds an outbound frame.
func encodeEvent(id int64, event string, data any) ([]byte, error) {
	return json.Marshal(serverMessage{ID: id, Event: event, Data: data})
}
