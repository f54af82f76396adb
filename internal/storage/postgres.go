package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// PostgresStore reads contacts from an externally managed PostgreSQL schema
// that exposes the same contact_summary view as the SQLite migrations.
// It never writes.
type PostgresStore struct {
	db *bun.DB
}

// summaryRow maps one contact_summary row. Multi-valued columns are native
// text[] arrays on PostgreSQL.
type summaryRow struct {
	bun.BaseModel `bun:"table:contact_summary,alias:c"`

	ID                  string     `bun:"id"`
	Name                string     `bun:"name"`
	Company             string     `bun:"company"`
	Position            string     `bun:"position"`
	Emails              []string   `bun:"emails,array"`
	Phones              []string   `bun:"phones,array"`
	Telegram            string     `bun:"telegram"`
	Tags                []string   `bun:"tags,array"`
	Bio                 string     `bun:"bio"`
	Source              string     `bun:"source"`
	CreatedAt           time.Time  `bun:"created_at"`
	LastInteractionDate *time.Time `bun:"last_interaction_date"`
}

func (r summaryRow) contact() Contact {
	return Contact{
		ID:              r.ID,
		Name:            r.Name,
		Company:         r.Company,
		Position:        r.Position,
		Emails:          r.Emails,
		Phones:          r.Phones,
		Telegram:        r.Telegram,
		Tags:            r.Tags,
		Bio:             r.Bio,
		Source:          r.Source,
		CreatedAt:       r.CreatedAt,
		LastInteraction: r.LastInteractionDate,
	}
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithTimeout(10*time.Second),
	))
	db := bun.NewDB(sqldb, pgdialect.New())

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// SearchContacts runs q against contact_summary, newest contacts first.
func (s *PostgresStore) SearchContacts(ctx context.Context, q ContactQuery) ([]Contact, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var rows []summaryRow
	sel := s.db.NewSelect().Model(&rows)
	applyPostgresFilter(sel, q)
	sel.OrderExpr("c.created_at DESC").OrderExpr("c.id ASC")
	if q.Limit > 0 {
		sel.Limit(q.Limit)
	}

	if err := sel.Scan(ctx); err != nil {
		return nil, fmt.Errorf("querying contacts: %w", err)
	}

	out := make([]Contact, len(rows))
	for i, r := range rows {
		out[i] = r.contact()
	}
	return out, nil
}

func applyPostgresFilter(sel *bun.SelectQuery, q ContactQuery) {
	terms := q.normalizedTerms()

	var column string
	switch q.Field {
	case FieldNone:
		return
	case FieldName:
		column = "c.name"
	case FieldCompany:
		column = "c.company"
	case FieldPosition:
		column = "c.position"
	case FieldTags:
		sel.Where("EXISTS (SELECT 1 FROM unnest(c.tags) AS t(tag) WHERE lower(t.tag) = ANY(?))", pgdialect.Array(terms))
		return
	}

	sel.WhereGroup(" AND ", func(g *bun.SelectQuery) *bun.SelectQuery {
		for _, t := range terms {
			g.WhereOr("? ILIKE ?", bun.Safe(column), "%"+escapeLike(t)+"%")
		}
		return g
	})
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// GetContact returns a single contact by ID.
func (s *PostgresStore) GetContact(ctx context.Context, id string) (Contact, error) {
	var row summaryRow
	err := s.db.NewSelect().Model(&row).Where("c.id = ?", id).Limit(1).Scan(ctx)
	if err == sql.ErrNoRows {
		return Contact{}, ErrNotFound
	}
	if err != nil {
		return Contact{}, err
	}
	return row.contact(), nil
}

// Stats counts contacts, interactions and distinct tags.
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.NewRaw("SELECT COUNT(*) FROM contacts").Scan(ctx, &st.Contacts); err != nil {
		return Stats{}, fmt.Errorf("counting contacts: %w", err)
	}
	if err := s.db.NewRaw("SELECT COUNT(*) FROM interactions").Scan(ctx, &st.Interactions); err != nil {
		return Stats{}, fmt.Errorf("counting interactions: %w", err)
	}
	if err := s.db.NewRaw("SELECT COUNT(DISTINCT tag) FROM contacts, unnest(tags) AS tag").Scan(ctx, &st.UniqueTags); err != nil {
		return Stats{}, fmt.Errorf("counting tags: %w", err)
	}
	return st, nil
}
