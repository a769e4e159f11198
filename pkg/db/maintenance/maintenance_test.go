package maintenance

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"inatmap/pkg/db"
)

func insertAged(t *testing.T, d *db.DB, key string, age time.Duration) {
	t.Helper()
	created := time.Now().Add(-age).UTC().Format("2006-01-02 15:04:05")
	if _, err := d.Exec("INSERT INTO cache (key, value, created_at) VALUES (?, ?, ?)", key, "v", created); err != nil {
		t.Fatalf("insert %s: %v", key, err)
	}
}

func keys(t *testing.T, d *db.DB) []string {
	t.Helper()
	rows, err := d.Query("SELECT key FROM cache ORDER BY key")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			t.Fatalf("scan: %v", err)
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	return out
}

func TestRun_PrunesExpired(t *testing.T) {
	d, err := db.Init(filepath.Join(t.TempDir(), "maint_test.db"))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer d.Close()

	insertAged(t, d, "geocode:old", 3*24*time.Hour)
	insertAged(t, d, "geocode:new", time.Hour)

	if err := Run(context.Background(), d, 24*time.Hour); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := keys(t, d); !reflect.DeepEqual(got, []string{"geocode:new"}) {
		t.Errorf("keys after prune = %v, want [geocode:new]", got)
	}
}

func TestLoop_StopsOnCancel(t *testing.T) {
	d, err := db.Init(":memory:")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer d.Close()

	insertAged(t, d, "geocode:old", 48*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Loop(ctx, d, 24*time.Hour, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for len(keys(t, d)) > 0 {
		if time.Now().After(deadline) {
			t.Fatal("Loop never pruned the expired row")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Loop did not return after cancel")
	}
}
