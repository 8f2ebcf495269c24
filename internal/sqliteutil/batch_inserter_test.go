package sqliteutil

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
)

type execRecorder struct {
	queries []string
	args    [][]interface{}
}

func (r *execRecorder) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	r.queries = append(r.queries, query)
	r.args = append(r.args, args)
	return nil, nil
}

func TestBatchInserterBatchBoundaries(t *testing.T) {
	recorder := &execRecorder{}
	inserter := NewBatchInserter(recorder, "locations", "path", "line")

	for i := 0; i < 1000; i++ {
		if err := inserter.Insert(context.Background(), fmt.Sprintf("foo-%d.go", i), i); err != nil {
			t.Fatalf("unexpected error inserting row: %s", err)
		}
	}
	if err := inserter.Flush(context.Background()); err != nil {
		t.Fatalf("unexpected error flushing rows: %s", err)
	}

	if len(recorder.queries) != 3 {
		t.Fatalf("unexpected number of statements. want=%d have=%d", 3, len(recorder.queries))
	}

	expectedArgCounts := []int{998, 998, 4}
	for i, expected := range expectedArgCounts {
		if len(recorder.args[i]) != expected {
			t.Errorf("unexpected arg count for statement %d. want=%d have=%d", i, expected, len(recorder.args[i]))
		}
	}

	for i, query := range recorder.queries {
		if !strings.HasPrefix(query, `INSERT INTO "locations" ("path", "line") VALUES `) {
			t.Errorf("unexpected prefix for statement %d: %s", i, query)
		}

		placeholders := strings.Count(query, "(?,?)")
		if placeholders != expectedArgCounts[i]/2 {
			t.Errorf("unexpected placeholder count for statement %d. want=%d have=%d", i, expectedArgCounts[i]/2, placeholders)
		}
	}
}

func TestBatchInserterWrongArity(t *testing.T) {
	inserter := NewBatchInserter(&execRecorder{}, "locations", "path", "line")

	if err := inserter.Insert(context.Background(), "foo.go"); err == nil {
		t.Fatalf("expected an error inserting a short row")
	}
}

func TestBatchInserterEmptyFlush(t *testing.T) {
	recorder := &execRecorder{}
	inserter := NewBatchInserter(recorder, "locations", "path", "line")

	if err := inserter.Flush(context.Background()); err != nil {
		t.Fatalf("unexpected error flushing empty inserter: %s", err)
	}

	if len(recorder.queries) != 0 {
		t.Errorf("unexpected statements for empty flush: %v", recorder.queries)
	}
}
