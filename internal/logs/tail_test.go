package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"assetmirror/internal/logs"
)

const sampleLog = `{"ts":"2026-10-19T10:00:00Z","level":"info","msg":"mirror started","run_id":"r1","entries":2}
{"ts":"2026-10-19T10:00:01Z","level":"debug","msg":"resource fetched","run_id":"r1","entry_id":"a"}
{"ts":"2026-10-19T10:00:02Z","level":"warn","msg":"resource failed","run_id":"r1","entry_id":"b","error":"boom"}
{"ts":"2026-10-19T10:05:00Z","level":"info","msg":"verify finished","run_id":"r2"}
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assetmirror.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func messages(records []logs.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Message)
	}
	return out
}

func TestTailLastRecords(t *testing.T) {
	path := writeLog(t, sampleLog)

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	got := messages(result.Records)
	if len(got) != 2 || got[0] != "resource failed" || got[1] != "verify finished" {
		t.Fatalf("unexpected records: %v", got)
	}
	if result.Offset != int64(len(sampleLog)) {
		t.Fatalf("expected offset at end of file, got %d", result.Offset)
	}
}

func TestTailFiltersByRunEntryAndLevel(t *testing.T) {
	path := writeLog(t, sampleLog)
	cases := []struct {
		name   string
		filter logs.Filter
		want   []string
	}{
		{"run", logs.Filter{RunID: "r1"}, []string{"mirror started", "resource fetched", "resource failed"}},
		{"entry", logs.Filter{EntryID: "b"}, []string{"resource failed"}},
		{"level", logs.Filter{MinLevel: "info"}, []string{"mirror started", "resource failed", "verify finished"}},
		{"run and level", logs.Filter{RunID: "r1", MinLevel: "warn"}, []string{"resource failed"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 10, Filter: tc.filter})
			if err != nil {
				t.Fatalf("Tail: %v", err)
			}
			got := messages(result.Records)
			if strings.Join(got, "|") != strings.Join(tc.want, "|") {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTailMissingFile(t *testing.T) {
	result, err := logs.Tail(context.Background(), filepath.Join(t.TempDir(), "none.log"), logs.TailOptions{Offset: -1, Limit: 5})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Records) != 0 || result.Offset != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestTailFollowWaits(t *testing.T) {
	path := writeLog(t, `{"level":"info","msg":"start"}`+"\n")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	result, err := logs.Tail(ctx, path, logs.TailOptions{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatalf("initial tail: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("expected initial record, got %v", result.Records)
	}

	done := make(chan struct{})
	go func(offset int64) {
		defer close(done)
		res, err := logs.Tail(ctx, path, logs.TailOptions{Offset: offset, Follow: true, Wait: 5 * time.Second})
		if err != nil {
			t.Errorf("follow tail error: %v", err)
		}
		if got := messages(res.Records); len(got) != 1 || got[0] != "later" {
			t.Errorf("unexpected follow records: %v", got)
		}
	}(result.Offset)

	time.Sleep(200 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString(`{"level":"info","msg":"later"}` + "\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("tail follow did not return")
	}
}

func TestRecordFormat(t *testing.T) {
	rec := logs.ParseRecord(`{"ts":"2026-10-19T10:00:02Z","level":"warn","msg":"resource failed","run_id":"r1","entry_id":"b","error":"boom"}`)
	line := rec.Format()
	for _, want := range []string{"WARN", "resource failed", "entry_id=b", "error=boom"} {
		if !strings.Contains(line, want) {
			t.Fatalf("%q missing %q", line, want)
		}
	}
	if plain := logs.ParseRecord("not json").Format(); plain != "not json" {
		t.Fatalf("expected raw passthrough, got %q", plain)
	}
}
