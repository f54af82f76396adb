//go:build integration

package storage

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func openTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("ROLO_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ROLO_TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresSearchGeneral(t *testing.T) {
	s := openTestPostgres(t)

	got, err := s.SearchContacts(context.Background(), ContactQuery{Limit: 5})
	if err != nil {
		t.Fatalf("SearchContacts: %v", err)
	}
	if len(got) > 5 {
		t.Errorf("len = %d, want <= 5", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].CreatedAt.After(got[i-1].CreatedAt) {
			t.Errorf("results not ordered newest first at index %d", i)
		}
	}
}

func TestPostgresSearchEscapesWildcards(t *testing.T) {
	s := openTestPostgres(t)

	// A bare "%" must be matched literally, not as "any string".
	got, err := s.SearchContacts(context.Background(), ContactQuery{Field: FieldName, Terms: []string{"%"}})
	if err != nil {
		t.Fatalf("SearchContacts: %v", err)
	}
	for _, c := range got {
		if !strings.Contains(c.Name, "%") {
			t.Errorf("contact %q matched without a literal %%", c.Name)
		}
	}
}

func TestPostgresStats(t *testing.T) {
	s := openTestPostgres(t)

	st, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Contacts < 0 || st.Interactions < 0 || st.UniqueTags < 0 {
		t.Errorf("negative stats: %+v", st)
	}
}
