package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	buf.Reset()
	return rec
}

func TestHandlerAddsContextGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Handler{slog.NewJSONHandler(&buf, nil)})

	ctx := WithRequestData(context.Background(), &RequestData{RequestID: "r1", Method: "GET", Path: "/"})
	ctx = WithAuthData(ctx, &AuthData{Mode: "jwks", Source: "request"})
	log.InfoContext(ctx, "identity.ok")

	rec := decodeLine(t, &buf)
	req, ok := rec["req"].(map[string]any)
	if !ok || req["id"] != "r1" || req["method"] != "GET" {
		t.Fatalf("missing req group: %v", rec)
	}
	auth, ok := rec["auth"].(map[string]any)
	if !ok || auth["mode"] != "jwks" || auth["source"] != "request" {
		t.Fatalf("missing auth group: %v", rec)
	}
	if _, ok := auth["audience"]; ok {
		t.Fatalf("empty audience should be omitted: %v", auth)
	}
}

func TestHandlerWithoutContextData(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Handler{slog.NewJSONHandler(&buf, nil)})
	log.Info("plain")

	rec := decodeLine(t, &buf)
	if _, ok := rec["req"]; ok {
		t.Fatalf("unexpected req group: %v", rec)
	}
}

func TestHandlerSurvivesWith(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Handler{slog.NewJSONHandler(&buf, nil)}).With("component", "resolver")

	ctx := WithRequestData(context.Background(), &RequestData{RequestID: "r2"})
	log.InfoContext(ctx, "x")

	rec := decodeLine(t, &buf)
	if rec["component"] != "resolver" {
		t.Fatalf("lost attrs: %v", rec)
	}
	if _, ok := rec["req"]; !ok {
		t.Fatalf("derived logger dropped context decoration: %v", rec)
	}
	if rd, ok := RequestDataFrom(ctx); !ok || rd.RequestID != "r2" {
		t.Fatal("RequestDataFrom lost data")
	}
}
