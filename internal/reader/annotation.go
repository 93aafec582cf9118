// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package reader holds the e-book reader's annotation state: notes and chat
messages for the resource currently open in a workspace.

# Optimistic updates

Every mutation is applied locally BEFORE the library API is called:

	AddAnnotation ──▶ Pending (temp id) ──POST──▶ Confirmed (server id, same position)
	                                      └─fail─▶ removed, LastError set, error returned

All reconciliation is keyed by [ID], never by slice position, so completions
may arrive in any order. A resource generation counter discards completions
that belong to a resource which is no longer open.
*/
package reader

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// # Enumerations

// Kind selects one of the two annotation collections.
type Kind string

const (
	KindNote Kind = "note"
	KindChat Kind = "chat"
)

// Kinds lists every collection in a stable order.
var Kinds = []Kind{KindNote, KindChat}

// Valid reports whether the kind names a collection.
func (kind Kind) Valid() bool {
	return kind == KindNote || kind == KindChat
}

// ParseKind accepts the singular and the plural collection names.
func ParseKind(value string) (Kind, bool) {
	switch strings.ToLower(value) {
	case "note", "notes":
		return KindNote, true
	case "chat", "chats", "chat-messages", "chat_messages":
		return KindChat, true
	}
	return "", false
}

// ResourceType decides which anchor an annotation carries.
type ResourceType string

const (
	ResourceTypePDF   ResourceType = "pdf"
	ResourceTypeVideo ResourceType = "video"
)

// Valid reports whether the type is known.
func (resourceType ResourceType) Valid() bool {
	return resourceType == ResourceTypePDF || resourceType == ResourceTypeVideo
}

// State is the reconciliation state of one record.
type State int

const (
	// StateConfirmed is the zero value: records from the server are confirmed.
	StateConfirmed State = iota
	StatePending
	StateRolledBack
)

var stateNames = map[State]string{
	StateConfirmed:  "confirmed",
	StatePending:    "pending",
	StateRolledBack: "rolled_back",
}

func (state State) String() string { return stateNames[state] }

// MarshalText renders the state name.
func (state State) MarshalText() ([]byte, error) {
	return []byte(state.String()), nil
}

// UnmarshalText parses a state name.
func (state *State) UnmarshalText(text []byte) error {
	for candidate, name := range stateNames {
		if name == string(text) {
			*state = candidate
			return nil
		}
	}
	return fmt.Errorf("reader: unknown state %q", text)
}

// # Identifiers

// tempPrefix marks locally generated ids. Server ids are positive integers,
// so the two namespaces never overlap.
const tempPrefix = "temp-"

// ID identifies a record: either a server id or a temporary local id.
type ID struct {
	server int64
	temp   string
}

// ServerID wraps a server-assigned id.
func ServerID(id int64) ID { return ID{server: id} }

// TempID builds a temporary id from a timestamp and a sequence number.
func TempID(at time.Time, sequence uint64) ID {
	return ID{temp: fmt.Sprintf("%s%d-%d", tempPrefix, at.UnixMilli(), sequence)}
}

// ParseID parses "42" or "temp-1700000000000-3".
func ParseID(value string) (ID, error) {
	if strings.HasPrefix(value, tempPrefix) {
		return ID{temp: value}, nil
	}

	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return ID{}, fmt.Errorf("reader: invalid id %q", value)
	}
	return ServerID(id), nil
}

// tempSequence returns the sequence number a temporary id was built with.
func (id ID) tempSequence() (uint64, bool) {
	if !id.IsTemp() {
		return 0, false
	}
	cut := strings.LastIndexByte(id.temp, '-')
	sequence, err := strconv.ParseUint(id.temp[cut+1:], 10, 64)
	return sequence, err == nil
}

// IsTemp reports whether the id was generated locally.
func (id ID) IsTemp() bool { return id.temp != "" }

// IsZero reports whether the id is unset.
func (id ID) IsZero() bool { return id.temp == "" && id.server == 0 }

// Server returns the server id (0 for temporary ids).
func (id ID) Server() int64 { return id.server }

func (id ID) String() string {
	if id.IsTemp() {
		return id.temp
	}
	return strconv.FormatInt(id.server, 10)
}

// MarshalJSON emits server ids as numbers and temporary ids as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsTemp() {
		return json.Marshal(id.temp)
	}
	return []byte(strconv.FormatInt(id.server, 10)), nil
}

// UnmarshalJSON accepts a number or a string.
func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		parsed, err := ParseID(value)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	}

	var number int64
	if err := json.Unmarshal(data, &number); err != nil {
		return fmt.Errorf("reader: invalid id: %w", err)
	}
	*id = ServerID(number)
	return nil
}

// # Records

// Annotation is a note or a chat message anchored inside a resource.
//
// Exactly one anchor is populated: PageNumber (+HighlightText) for pdf
// resources, Timestamp (+SentAt) for video resources.
type Annotation struct {
	ID      ID     `json:"id"`
	Kind    Kind   `json:"kind,omitempty"`
	EbookID int64  `json:"e_book_id"`
	UserID  *int64 `json:"user_id"`

	// Note body
	Content string `json:"content,omitempty"`

	// Chat body
	Question    string `json:"question,omitempty"`
	AIResponse  string `json:"ai_response,omitempty"`
	IsAnonymous bool   `json:"is_anonymous,omitempty"`

	// Page anchor
	PageNumber    *int    `json:"page_number,omitempty"`
	HighlightText *string `json:"highlight_text,omitempty"`

	// Time anchor
	Timestamp *float64 `json:"timestamp,omitempty"`
	SentAt    string   `json:"sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	State     State     `json:"state"`
}

// Text returns the required body: the note content or the chat question.
func (annotation Annotation) Text() string {
	if annotation.Kind == KindChat {
		return annotation.Question
	}
	return annotation.Content
}

// Pending reports whether the record awaits server confirmation.
func (annotation Annotation) Pending() bool {
	return annotation.State == StatePending
}

func (annotation Annotation) page() int {
	if annotation.PageNumber == nil {
		return 0
	}
	return *annotation.PageNumber
}

func (annotation Annotation) seconds() float64 {
	if annotation.Timestamp == nil {
		return 0
	}
	return *annotation.Timestamp
}

// normalizeAnchor drops the anchor that does not belong to resourceType.
func (annotation *Annotation) normalizeAnchor(resourceType ResourceType) {
	if resourceType == ResourceTypeVideo {
		annotation.PageNumber = nil
		annotation.HighlightText = nil
		return
	}
	annotation.Timestamp = nil
	annotation.SentAt = ""
}

// Input is what a client submits to create an annotation. Unset anchor
// fields fall back to the store's current reading context.
type Input struct {
	Content       string   `json:"content"`
	Question      string   `json:"question"`
	IsAnonymous   bool     `json:"is_anonymous"`
	PageNumber    *int     `json:"page_number"`
	HighlightText *string  `json:"highlight_text"`
	Timestamp     *float64 `json:"timestamp"`
	SentAt        string   `json:"sent_at"`
}

// Resource is the e-book (or video) the reader has open.
type Resource struct {
	ID           int64        `json:"id"`
	Title        string       `json:"title,omitempty"`
	Notes        []Annotation `json:"notes,omitempty"`
	ChatMessages []Annotation `json:"chat_messages,omitempty"`
}

// # Formatting

/*
FormatTimestamp renders seconds as zero-padded HH:MM:SS.

Example:

	FormatTimestamp(3725.9) // "01:02:05"
*/
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
