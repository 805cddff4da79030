package hotswap

import (
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/GoCodeAlone/hotswap/lifecycle"
	"github.com/GoCodeAlone/hotswap/registry"
)

// CloudEvent types emitted by the runtime, in reverse domain notation.
const (
	EventTypeTransition          = "com.hotswap.lifecycle.transition"
	EventTypeSwapPre             = "com.hotswap.swap.pre"
	EventTypeSwapCommitted       = "com.hotswap.swap.committed"
	EventTypeInstanceRetired     = "com.hotswap.instance.retired"
	EventTypeCandidateRegistered = "com.hotswap.candidate.registered"
)

// EventSource is the CloudEvents source attribute of every runtime event.
const EventSource = "hotswap/runtime"

// CloudEvent is an alias for the CloudEvents Event type
type CloudEvent = cloudevents.Event

// TransitionData is the payload of EventTypeTransition.
type TransitionData struct {
	Domain          string          `json:"domain"`
	Key             string          `json:"key"`
	PreviousState   lifecycle.State `json:"previous_state"`
	State           lifecycle.State `json:"state"`
	CurrentProvider string          `json:"current_provider,omitempty"`
	PendingProvider string          `json:"pending_provider,omitempty"`
	LastError       string          `json:"last_error,omitempty"`
	Attempt         string          `json:"attempt,omitempty"`
}

// SwapData is the payload of EventTypeSwapPre and EventTypeSwapCommitted.
type SwapData struct {
	Domain           string          `json:"domain"`
	Key              string          `json:"key"`
	Provider         string          `json:"provider"`
	PreviousProvider string          `json:"previous_provider,omitempty"`
	Priority         int             `json:"priority"`
	Source           registry.Source `json:"source"`
	Factory          string          `json:"factory"`
}

// RetiredData is the payload of EventTypeInstanceRetired.
type RetiredData struct {
	InstanceType string `json:"instance_type"`
}

// CandidateData is the payload of EventTypeCandidateRegistered.
type CandidateData struct {
	Domain     string          `json:"domain"`
	Key        string          `json:"key"`
	Provider   string          `json:"provider"`
	Priority   int             `json:"priority"`
	StackLevel int             `json:"stack_level"`
	Source     registry.Source `json:"source"`
	Factory    string          `json:"factory"`
	Sequence   uint64          `json:"registry_sequence"`
}

// NewCloudEvent creates a CloudEvent with a time-ordered ID. Metadata
// entries become extension attributes.
func NewCloudEvent(eventType, source string, data any, metadata map[string]any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(generateEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)

	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	for key, value := range metadata {
		event.SetExtension(key, value)
	}
	return event
}

// generateEventID returns a UUIDv7, falling back to v4.
func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// ValidateCloudEvent validates an event against the CloudEvents spec.
func ValidateCloudEvent(event cloudevents.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("CloudEvent validation failed: %w", err)
	}
	return nil
}

// subject builds the CloudEvents subject attribute for a target.
func subject(domain, key string) string {
	return registry.Target{Domain: domain, Key: key}.String()
}

func transitionData(tr lifecycle.Transition) TransitionData {
	return TransitionData{
		Domain:          tr.Current.Domain,
		Key:             tr.Current.Key,
		PreviousState:   tr.Previous.State,
		State:           tr.Current.State,
		CurrentProvider: tr.Current.CurrentProvider,
		PendingProvider: tr.Current.PendingProvider,
		LastError:       tr.Current.LastError,
		Attempt:         tr.Current.LastAttempt,
	}
}

func candidateData(c registry.Candidate) CandidateData {
	return CandidateData{
		Domain:     c.Domain,
		Key:        c.Key,
		Provider:   c.Provider,
		Priority:   c.Priority,
		StackLevel: c.StackLevel,
		Source:     c.Source,
		Factory:    c.Factory.Ref(),
		Sequence:   c.Sequence,
	}
}
