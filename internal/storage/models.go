package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidQuery is returned when a ContactQuery cannot be translated into a
// store query.
var ErrInvalidQuery = errors.New("invalid contact query")

// Contact is a row of the contact_summary view.
type Contact struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Company         string     `json:"company,omitempty"`
	Position        string     `json:"position,omitempty"`
	Emails          []string   `json:"emails,omitempty"`
	Phones          []string   `json:"phones,omitempty"`
	Telegram        string     `json:"telegram,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
	Bio             string     `json:"bio,omitempty"`
	Source          string     `json:"source,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	LastInteraction *time.Time `json:"last_interaction,omitempty"`
}

// InteractionType is the kind of a recorded interaction.
type InteractionType string

const (
	InteractionPurchase InteractionType = "purchase"
	InteractionMeeting  InteractionType = "meeting"
	InteractionCall     InteractionType = "call"
	InteractionEmail    InteractionType = "email"
	InteractionOther    InteractionType = "other"
)

// Valid reports whether t is one of the known interaction types.
func (t InteractionType) Valid() bool {
	switch t {
	case InteractionPurchase, InteractionMeeting, InteractionCall, InteractionEmail, InteractionOther:
		return true
	}
	return false
}

// Interaction is one recorded touchpoint with a contact. Amount is optional.
type Interaction struct {
	ID        string
	ContactID string
	Type      InteractionType
	Note      string
	Amount    *float64
	Date      time.Time
}

// Stats summarises the size of the contact store.
type Stats struct {
	Contacts     int `json:"contacts"`
	Interactions int `json:"interactions"`
	UniqueTags   int `json:"unique_tags"`
}

// AvgInteractions returns the mean number of interactions per contact, or 0
// for an empty store.
func (s Stats) AvgInteractions() float64 {
	if s.Contacts == 0 {
		return 0
	}
	return float64(s.Interactions) / float64(s.Contacts)
}

// Field selects which contact attribute a ContactQuery filters on.
type Field int

const (
	// FieldNone applies no predicate; the query returns the most recent contacts.
	FieldNone Field = iota
	FieldName
	FieldCompany
	FieldPosition
	FieldTags
)

func (f Field) String() string {
	switch f {
	case FieldNone:
		return "none"
	case FieldName:
		return "name"
	case FieldCompany:
		return "company"
	case FieldPosition:
		return "position"
	case FieldTags:
		return "tags"
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// ContactQuery is the store-level description of one search. Terms are OR-ed:
// a contact matches when the field matches any term. Substring fields match
// case-insensitively; FieldTags matches whole tags case-insensitively.
// Results are always ordered by creation time, newest first. Limit <= 0 means
// no limit.
type ContactQuery struct {
	Field Field
	Terms []string
	Limit int
}

// normalizedTerms lower-cases and trims the terms, dropping empty ones.
func (q ContactQuery) normalizedTerms() []string {
	out := make([]string, 0, len(q.Terms))
	for _, t := range q.Terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Validate checks that a filtered query carries at least one usable term.
func (q ContactQuery) Validate() error {
	switch q.Field {
	case FieldNone:
		return nil
	case FieldName, FieldCompany, FieldPosition, FieldTags:
		if len(q.normalizedTerms()) == 0 {
			return fmt.Errorf("%w: %s filter without terms", ErrInvalidQuery, q.Field)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown field %s", ErrInvalidQuery, q.Field)
}
