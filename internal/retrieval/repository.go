package retrieval

import (
	"context"
	"log/slog"

	"github.com/kalambet/rolo/internal/intent"
	"github.com/kalambet/rolo/internal/storage"
)

// DefaultGeneralLimit caps how many recent contacts a general intent pulls.
const DefaultGeneralLimit = 100

// ContactStore is the read surface the repository needs. Both storage.Store
// and storage.PostgresStore implement it.
type ContactStore interface {
	SearchContacts(ctx context.Context, q storage.ContactQuery) ([]storage.Contact, error)
	Stats(ctx context.Context) (storage.Stats, error)
}

// SearchStatus tells "nothing matched" apart from "could not ask".
type SearchStatus string

const (
	StatusMatched     SearchStatus = "matched"
	StatusNoMatches   SearchStatus = "no_matches"
	StatusUnavailable SearchStatus = "unavailable"
)

// SearchResult is the ordered set of contacts found for one intent.
type SearchResult struct {
	Contacts []storage.Contact
	Status   SearchStatus
	Query    storage.ContactQuery
}

// Repository turns intents into store queries.
type Repository struct {
	store        ContactStore
	generalLimit int
}

// NewRepository creates a Repository over store. A non-positive generalLimit
// falls back to DefaultGeneralLimit.
func NewRepository(store ContactStore, generalLimit int) *Repository {
	if generalLimit <= 0 {
		generalLimit = DefaultGeneralLimit
	}
	return &Repository{store: store, generalLimit: generalLimit}
}

// QueryFor builds the store query for in.
func (r *Repository) QueryFor(in intent.Intent) storage.ContactQuery {
	switch in.Kind {
	case intent.KindName:
		return storage.ContactQuery{Field: storage.FieldName, Terms: in.Terms}
	case intent.KindCompany:
		return storage.ContactQuery{Field: storage.FieldCompany, Terms: in.Terms}
	case intent.KindPosition:
		return storage.ContactQuery{Field: storage.FieldPosition, Terms: in.Terms}
	case intent.KindTag:
		return storage.ContactQuery{Field: storage.FieldTags, Terms: in.Terms}
	case intent.KindGeneral:
		return storage.ContactQuery{Field: storage.FieldNone, Limit: r.generalLimit}
	}
	slog.Warn("unknown intent kind, falling back to recent contacts", "kind", in.Kind)
	return storage.ContactQuery{Field: storage.FieldNone, Limit: r.generalLimit}
}

// Search executes the query for in. Store failures are logged and reported
// as StatusUnavailable with no contacts; they are never returned as errors.
func (r *Repository) Search(ctx context.Context, in intent.Intent) SearchResult {
	q := r.QueryFor(in)

	// A filtered intent whose terms are all blank degrades to recent contacts.
	if q.Validate() != nil {
		q = storage.ContactQuery{Field: storage.FieldNone, Limit: r.generalLimit}
	}

	contacts, err := r.store.SearchContacts(ctx, q)
	if err != nil {
		slog.Warn("contact search failed", "error", err, "kind", in.Kind, "field", q.Field.String())
		return SearchResult{Status: StatusUnavailable, Query: q}
	}
	if len(contacts) == 0 {
		return SearchResult{Status: StatusNoMatches, Query: q}
	}
	return SearchResult{Contacts: contacts, Status: StatusMatched, Query: q}
}

// Stats returns store-wide counts.
func (r *Repository) Stats(ctx context.Context) (storage.Stats, error) {
	return r.store.Stats(ctx)
}
