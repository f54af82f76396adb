package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const interactionDateLayout = "2006-01-02"

func init() {
	// SQLite's lower() only folds ASCII; contact names are frequently Cyrillic.
	sqlite.MustRegisterDeterministicScalarFunction("casefold", 1, casefold)
}

func casefold(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// Store wraps a SQLite database holding contacts and their interactions.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "rolo.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Search ---

const summaryColumns = `id, name, company, position, emails, phones, telegram, tags, bio, source, created_at, last_interaction_date`

// SearchContacts runs q against the contact_summary view, newest contacts first.
func (s *Store) SearchContacts(ctx context.Context, q ContactQuery) ([]Contact, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	where, args := sqliteFilter(q)
	query := `SELECT ` + summaryColumns + ` FROM contact_summary` + where + ` ORDER BY created_at DESC, id ASC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying contacts: %w", err)
	}
	defer rows.Close()

	var results []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// sqliteFilter translates the query field into a WHERE clause. Callers must
// validate q first.
func sqliteFilter(q ContactQuery) (string, []any) {
	terms := q.normalizedTerms()

	var column string
	switch q.Field {
	case FieldNone:
		return "", nil
	case FieldName:
		column = "name"
	case FieldCompany:
		column = "company"
	case FieldPosition:
		column = "position"
	case FieldTags:
		placeholders := "?" + strings.Repeat(",?", len(terms)-1)
		args := make([]any, len(terms))
		for i, t := range terms {
			args[i] = t
		}
		return ` WHERE EXISTS (SELECT 1 FROM json_each(contact_summary.tags) AS t WHERE casefold(t.value) IN (` + placeholders + `))`, args
	}

	clauses := make([]string, len(terms))
	args := make([]any, len(terms))
	for i, t := range terms {
		clauses[i] = "instr(casefold(" + column + "), ?) > 0"
		args[i] = t
	}
	return ` WHERE ` + strings.Join(clauses, " OR "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (Contact, error) {
	var c Contact
	var emails, phones, tags, createdAt string
	var lastInteraction sql.NullString
	if err := row.Scan(&c.ID, &c.Name, &c.Company, &c.Position, &emails, &phones, &c.Telegram, &tags, &c.Bio, &c.Source, &createdAt, &lastInteraction); err != nil {
		return Contact{}, err
	}

	var err error
	if c.Emails, err = decodeList(emails); err != nil {
		return Contact{}, fmt.Errorf("decoding emails for contact %s: %w", c.ID, err)
	}
	if c.Phones, err = decodeList(phones); err != nil {
		return Contact{}, fmt.Errorf("decoding phones for contact %s: %w", c.ID, err)
	}
	if c.Tags, err = decodeList(tags); err != nil {
		return Contact{}, fmt.Errorf("decoding tags for contact %s: %w", c.ID, err)
	}
	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Contact{}, fmt.Errorf("parsing created_at for contact %s: %w", c.ID, err)
	}
	if lastInteraction.Valid && lastInteraction.String != "" {
		t, err := time.Parse(interactionDateLayout, lastInteraction.String)
		if err != nil {
			return Contact{}, fmt.Errorf("parsing last interaction date for contact %s: %w", c.ID, err)
		}
		c.LastInteraction = &t
	}
	return c, nil
}

func decodeList(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeList(items []string) (string, error) {
	if len(items) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// GetContact returns a single contact by ID.
func (s *Store) GetContact(ctx context.Context, id string) (Contact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+summaryColumns+` FROM contact_summary WHERE id = ?`, id)
	c, err := scanContact(row)
	if err == sql.ErrNoRows {
		return Contact{}, ErrNotFound
	}
	if err != nil {
		return Contact{}, err
	}
	return c, nil
}

// Stats counts contacts, interactions and distinct tags.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts`).Scan(&st.Contacts); err != nil {
		return Stats{}, fmt.Errorf("counting contacts: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM interactions`).Scan(&st.Interactions); err != nil {
		return Stats{}, fmt.Errorf("counting interactions: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT t.value) FROM contacts, json_each(contacts.tags) AS t`).Scan(&st.UniqueTags); err != nil {
		return Stats{}, fmt.Errorf("counting tags: %w", err)
	}
	return st, nil
}

// --- Writes ---
//
// The query pipeline never writes. These exist for local fixtures and for
// the note-recording and import paths that live outside this module.

// SaveContact inserts c, assigning an ID and creation time when unset.
// It returns the stored ID.
func (s *Store) SaveContact(ctx context.Context, c Contact) (string, error) {
	if strings.TrimSpace(c.Name) == "" {
		return "", fmt.Errorf("saving contact: name is required")
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	emails, err := encodeList(c.Emails)
	if err != nil {
		return "", fmt.Errorf("encoding emails: %w", err)
	}
	phones, err := encodeList(c.Phones)
	if err != nil {
		return "", fmt.Errorf("encoding phones: %w", err)
	}
	tags, err := encodeList(uniqueTags(c.Tags))
	if err != nil {
		return "", fmt.Errorf("encoding tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contacts (id, name, company, position, emails, phones, telegram, tags, bio, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, strings.TrimSpace(c.Name), c.Company, c.Position, emails, phones, c.Telegram, tags, c.Bio, c.Source,
		c.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// SaveInteraction records an interaction for an existing contact.
func (s *Store) SaveInteraction(ctx context.Context, i Interaction) error {
	if !i.Type.Valid() {
		return fmt.Errorf("saving interaction: unknown type %q", i.Type)
	}
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	if i.Date.IsZero() {
		i.Date = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions (id, contact_id, type, note, amount, date)
		VALUES (?, ?, ?, ?, ?, ?)`,
		i.ID, i.ContactID, string(i.Type), i.Note, i.Amount, i.Date.Format(interactionDateLayout),
	)
	return err
}

// uniqueTags drops blank and repeated tags, keeping first-seen order.
func uniqueTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
