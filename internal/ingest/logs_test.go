package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/aiopskit/rca-pipeline/internal/models"
)

const sampleLogs = `2024-05-01T12:00:05.123Z ERROR [accounts-ms,6f3a1b,9c1b22] 1 --- [nio-8080-exec-1] c.e.a.AccountsController : Failed to retrieve customer details
2024-05-01T12:00:06.500Z  WARN [cards-ms,7a2c44,1d9e01] 1 --- [nio-8080-exec-3] c.e.c.CardsService : Timeout calling accounts-ms
java.net.SocketTimeoutException: Read timed out
	at java.base/java.net.SocketInputStream.read(SocketInputStream.java:123)
2024-05-01T12:00:07.000Z  INFO [loans-ms,8b3d55,2e0f12] 1 --- [           main] c.e.l.LoansApplication : Started successfully in 4.2 seconds
`

func TestParseLogsMergesMultiline(t *testing.T) {
	res, err := ParseLogs(strings.NewReader(sampleLogs))
	if err != nil {
		t.Fatalf("ParseLogs: %v", err)
	}
	if len(res.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(res.Records))
	}
	if res.Skipped != 0 {
		t.Fatalf("expected no skipped lines, got %d", res.Skipped)
	}

	first := res.Records[0]
	if first.Service != "accounts-ms" || first.Level != models.LevelError {
		t.Fatalf("unexpected first record: %+v", first)
	}
	if first.TraceID != "6f3a1b" {
		t.Fatalf("trace id not captured: %q", first.TraceID)
	}
	want := time.Date(2024, 5, 1, 12, 0, 5, 123_000_000, time.UTC)
	if !first.Timestamp.Equal(want) {
		t.Fatalf("timestamp mismatch: got %v want %v", first.Timestamp, want)
	}

	second := res.Records[1]
	if !strings.Contains(second.Message, " | java.net.SocketTimeoutException") {
		t.Fatalf("continuation lines not merged: %q", second.Message)
	}
	if !strings.Contains(second.Message, " | at java.base") {
		t.Fatalf("stack frame not merged: %q", second.Message)
	}
}

func TestParseLogsSkipsLeadingGarbage(t *testing.T) {
	input := `not a log line at all
# LOKI_BASE=http://localhost:3100 TENANT=tenant1
2024-05-01T12:00:05.000Z ERROR [accounts-ms,abc,def] 1 --- [exec-1] c.e.a.Ctrl : boom
`
	res, err := ParseLogs(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseLogs: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}
	if res.Skipped != 1 {
		t.Fatalf("leading garbage must be counted as skipped, got %d", res.Skipped)
	}
}

func TestParseLogsWarningAlias(t *testing.T) {
	input := "2024-05-01T12:00:05.000Z WARNING [cards-ms,abc,def] 1 --- [exec-1] c.e.c.Svc : careful\n"
	res, err := ParseLogs(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseLogs: %v", err)
	}
	if len(res.Records) != 1 || res.Records[0].Level != models.LevelWarn {
		t.Fatalf("WARNING must map to WARN, got %+v", res.Records)
	}
}

func TestParseLogsEmptyInput(t *testing.T) {
	res, err := ParseLogs(strings.NewReader(""))
	if err != nil {
		t.Fatalf("ParseLogs: %v", err)
	}
	if len(res.Records) != 0 || res.Skipped != 0 {
		t.Fatalf("empty input must yield empty result, got %+v", res)
	}
}
