package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestContextFieldsSurviveIntoEntries(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "orders-api", Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-42")
	ctx = log.WithOrderID(ctx, "ord-9")
	log.Info(ctx, "order accepted")

	line := buf.String()
	for _, want := range []string{`"request_id":"req-42"`, `"order_id":"ord-9"`, `"service":"orders-api"`} {
		if !bytes.Contains(buf.Bytes(), []byte(want)) {
			t.Fatalf("entry missing %s: %s", want, line)
		}
	}
}

func TestErrorAttachesCauseAndStack(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	log.Error(context.Background(), "charge failed", errors.New("gateway timeout"))

	if !bytes.Contains(buf.Bytes(), []byte(`"error":"gateway timeout"`)) {
		t.Fatalf("entry missing error field: %s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("entry missing stack field: %s", buf.String())
	}
}

func TestWarnStackOnlyWhenEnabled(t *testing.T) {
	quiet := &bytes.Buffer{}
	New(Options{ServiceName: "test", Output: quiet}).Warn(context.Background(), "slow query")
	if bytes.Contains(quiet.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("warn carried a stack without WarnStack: %s", quiet.String())
	}

	noisy := &bytes.Buffer{}
	New(Options{ServiceName: "test", Output: noisy, WarnStack: true}).Warn(context.Background(), "slow query")
	if !bytes.Contains(noisy.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("warn missing stack with WarnStack enabled: %s", noisy.String())
	}
}

func TestParseLevelFallsBackToInfo(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}
