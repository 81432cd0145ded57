// Package model defines the core persona memory data types.
package model

import (
	"strings"
	"time"
)

// NodeType is the kind of memory a node records.
type NodeType string

const (
	TypeEvent   NodeType = "event"
	TypeThought NodeType = "thought"
	TypeChat    NodeType = "chat"
)

// ValidTypes are the allowed node types.
var ValidTypes = map[NodeType]bool{
	TypeEvent:   true,
	TypeThought: true,
	TypeChat:    true,
}

// FillingKind tags the variant carried by a Filling.
type FillingKind string

const (
	// FillingPlan marks a plan thought. It carries no payload.
	FillingPlan FillingKind = "plan"
	// FillingReflection marks a reflection thought citing evidence nodes.
	FillingReflection FillingKind = "reflection"
	// FillingReflectionError marks a reflection that failed to produce citations.
	FillingReflectionError FillingKind = "reflection_error"
	// FillingTranscript carries the utterances of a chat.
	FillingTranscript FillingKind = "transcript"
	// FillingEvidence carries node ids an event refers to (possibly none).
	FillingEvidence FillingKind = "evidence"
)

// Utterance is one line of a conversation.
type Utterance struct {
	Speaker string `json:"speaker" yaml:"speaker"`
	Line    string `json:"line" yaml:"line"`
}

// Filling is the payload attached to a node. Kind selects which of the
// remaining fields is meaningful.
type Filling struct {
	Kind       FillingKind `json:"kind"`
	Evidence   []string    `json:"evidence,omitempty"`
	Transcript []Utterance `json:"transcript,omitempty"`
	Sentinel   string      `json:"sentinel,omitempty"`
}

// PlanFilling returns the filling of a plan thought.
func PlanFilling() Filling { return Filling{Kind: FillingPlan} }

// ReflectionFilling returns the filling of a reflection citing the given node ids.
func ReflectionFilling(evidence ...string) Filling {
	return Filling{Kind: FillingReflection, Evidence: evidence}
}

// ReflectionErrorFilling returns the filling of a failed reflection.
func ReflectionErrorFilling(sentinel string) Filling {
	return Filling{Kind: FillingReflectionError, Sentinel: sentinel}
}

// TranscriptFilling returns the filling of a chat.
func TranscriptFilling(lines ...Utterance) Filling {
	return Filling{Kind: FillingTranscript, Transcript: lines}
}

// EvidenceFilling returns the filling of an event.
func EvidenceFilling(ids ...string) Filling {
	return Filling{Kind: FillingEvidence, Evidence: ids}
}

// Clone returns a copy of f that shares no slices with it.
func (f Filling) Clone() Filling {
	c := Filling{Kind: f.Kind, Sentinel: f.Sentinel}
	if f.Evidence != nil {
		c.Evidence = append([]string(nil), f.Evidence...)
	}
	if f.Transcript != nil {
		c.Transcript = append([]Utterance(nil), f.Transcript...)
	}
	return c
}

// Node is a single memory record. A node is owned by exactly one
// associative memory and referenced by every index of that memory.
type Node struct {
	NodeID    string   `json:"node_id"`
	NodeCount int      `json:"node_count"`
	TypeCount int      `json:"type_count"`
	Type      NodeType `json:"type"`
	Depth     int      `json:"depth"`

	Created      time.Time  `json:"created"`
	LastAccessed time.Time  `json:"last_accessed"`
	Expiration   *time.Time `json:"expiration,omitempty"`

	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`

	Description  string   `json:"description"`
	EmbeddingKey string   `json:"embedding_key"`
	Poignancy    float64  `json:"poignancy"`
	Keywords     []string `json:"keywords"`
	Filling      Filling  `json:"filling"`
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	c := *n
	if n.Expiration != nil {
		t := *n.Expiration
		c.Expiration = &t
	}
	c.Keywords = append([]string(nil), n.Keywords...)
	c.Filling = n.Filling.Clone()
	return &c
}

// Expired reports whether n has an expiration at or before now.
func (n *Node) Expired(now time.Time) bool {
	return n.Expiration != nil && !n.Expiration.After(now)
}

// SPO returns the subject, predicate and object of n.
func (n *Node) SPO() (string, string, string) {
	return n.Subject, n.Predicate, n.Object
}

// IsPlan reports whether n is a plan thought.
func (n *Node) IsPlan() bool {
	return n.Type == TypeThought && n.Filling.Kind == FillingPlan
}

// IsReflection reports whether n is a reflection thought.
func (n *Node) IsReflection() bool {
	return n.Type == TypeThought && n.Filling.Kind == FillingReflection
}

// IsReflectionError reports whether n is a failed reflection thought.
func (n *Node) IsReflectionError() bool {
	return n.Type == TypeThought && n.Filling.Kind == FillingReflectionError
}

// IsChat reports whether n records a conversation.
func (n *Node) IsChat() bool { return n.Type == TypeChat }

// IsIdle reports whether n records idling. Idle memories are never retrieved.
func (n *Node) IsIdle() bool { return strings.Contains(n.EmbeddingKey, "idle") }

// IsChatEvent reports whether n is the event of a persona starting a chat.
func (n *Node) IsChatEvent() bool {
	return n.Type == TypeEvent && n.Predicate == "chat with"
}

// IsObjectObservationEvent reports whether n is an observation of a world
// object. Objects are addressed by colon-separated world paths.
func (n *Node) IsObjectObservationEvent() bool {
	return n.Type == TypeEvent && !n.IsChatEvent() && strings.Contains(n.Subject, ":")
}

// IsActivityEvent reports whether n is an observation of a persona's activity.
func (n *Node) IsActivityEvent() bool {
	return n.Type == TypeEvent && !n.IsChatEvent() && !n.IsObjectObservationEvent()
}

// Category is the single classification of a node.
type Category string

const (
	CategoryChatEvent              Category = "chat_event"
	CategoryObjectObservationEvent Category = "object_observation_event"
	CategoryActivityEvent          Category = "activity_event"
	CategoryPlanThought            Category = "plan_thought"
	CategoryReflectionThought      Category = "reflection_thought"
	CategoryReflectionErrorThought Category = "reflection_error_thought"
	CategoryChat                   Category = "chat"
	CategoryUnknown                Category = "unknown"
)

// Classify returns the category of n. Every well-formed node has exactly one.
func (n *Node) Classify() Category {
	switch {
	case n.IsChatEvent():
		return CategoryChatEvent
	case n.IsObjectObservationEvent():
		return CategoryObjectObservationEvent
	case n.IsActivityEvent():
		return CategoryActivityEvent
	case n.IsPlan():
		return CategoryPlanThought
	case n.IsReflection():
		return CategoryReflectionThought
	case n.IsReflectionError():
		return CategoryReflectionErrorThought
	case n.IsChat():
		return CategoryChat
	}
	return CategoryUnknown
}

// ValidFilling reports whether kind is allowed for a node of type t.
func ValidFilling(t NodeType, kind FillingKind) bool {
	switch t {
	case TypeThought:
		return kind == FillingPlan || kind == FillingReflection || kind == FillingReflectionError
	case TypeChat:
		return kind == FillingTranscript
	case TypeEvent:
		return kind == FillingEvidence
	}
	return false
}
