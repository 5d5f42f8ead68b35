package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestContestHTTPFlow(t *testing.T) {
	engine, clk := newTestEngine()
	server := httptest.NewServer(NewRouter(engine, discardLogger()))
	defer server.Close()

	status, body := do(t, server, http.MethodPost, "/contests", map[string]any{
		"name":              "Friday quiz",
		"creatorId":         "host",
		"entryFee":          "10",
		"maxParticipants":   2,
		"questionCount":     1,
		"timePerQuestionMs": 10_000,
		"prizeSplit":        []int{100},
		"questionSetId":     "general",
	})
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", status, body)
	}
	id, _ := body["id"].(string)
	if id == "" || body["status"] != "waiting" {
		t.Fatalf("unexpected contest %v", body)
	}

	for _, user := range []string{"a", "b"} {
		if status, body := do(t, server, http.MethodPost, "/contests/"+id+"/join", map[string]any{"userId": user}); status != http.StatusOK {
			t.Fatalf("join %s: expected 200, got %d: %v", user, status, body)
		}
	}
	status, body = do(t, server, http.MethodPost, "/contests/"+id+"/join", map[string]any{"userId": "c"})
	if status != http.StatusConflict || errorCode(body) != "CONTEST_FULL" {
		t.Fatalf("expected 409 CONTEST_FULL, got %d: %v", status, body)
	}

	status, body = do(t, server, http.MethodPost, "/contests/"+id+"/start", map[string]any{"userId": "a"})
	if status != http.StatusForbidden || errorCode(body) != "NOT_CREATOR" {
		t.Fatalf("expected 403 NOT_CREATOR, got %d: %v", status, body)
	}

	clk.Advance(3 * time.Second)
	status, body = do(t, server, http.MethodGet, "/contests/"+id, nil)
	if status != http.StatusOK || body["phase"] != "question_active" {
		t.Fatalf("expected active question, got %d: %v", status, body)
	}

	answer := map[string]any{"userId": "a", "questionIndex": 0, "selectedIndex": 1}
	if status, body := do(t, server, http.MethodPost, "/contests/"+id+"/answers", answer); status != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %v", status, body)
	}
	status, body = do(t, server, http.MethodPost, "/contests/"+id+"/answers", answer)
	if status != http.StatusConflict || errorCode(body) != "DUPLICATE_ANSWER" {
		t.Fatalf("expected 409 DUPLICATE_ANSWER, got %d: %v", status, body)
	}
	status, body = do(t, server, http.MethodPost, "/contests/"+id+"/answers", map[string]any{"userId": "b", "questionIndex": 0, "selectedIndex": 9})
	if status != http.StatusBadRequest || errorCode(body) != "INVALID_OPTION" {
		t.Fatalf("expected 400 INVALID_OPTION, got %d: %v", status, body)
	}
}

func TestContestHTTPErrors(t *testing.T) {
	engine, _ := newTestEngine()
	server := httptest.NewServer(NewRouter(engine, discardLogger()))
	defer server.Close()

	status, body := do(t, server, http.MethodGet, "/contests/missing", nil)
	if status != http.StatusNotFound || errorCode(body) != "CONTEST_NOT_FOUND" {
		t.Fatalf("expected 404, got %d: %v", status, body)
	}

	status, body = do(t, server, http.MethodPost, "/contests", map[string]any{"name": "x", "creatorId": "host", "entryFee": "1"})
	if status != http.StatusBadRequest || errorCode(body) != "INVALID_CONTEST_SPEC" {
		t.Fatalf("expected 400 INVALID_CONTEST_SPEC, got %d: %v", status, body)
	}

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/contests", bytes.NewBufferString("{not json"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", resp.StatusCode)
	}

	status, body = do(t, server, http.MethodPost, "/contests/join-by-code", map[string]any{"code": "ZZZZZZ", "userId": "a"})
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown code, got %d: %v", status, body)
	}
	status, body = do(t, server, http.MethodPost, "/contests/join-by-code", map[string]any{"code": "", "userId": "a"})
	if status != http.StatusBadRequest || errorCode(body) != "INVALID_CODE" {
		t.Fatalf("expected 400 INVALID_CODE, got %d: %v", status, body)
	}

	resp, err = http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if raw, _ := io.ReadAll(resp.Body); string(raw) != "ok" {
		t.Fatalf("unexpected health response %q", raw)
	}
}

func do(t *testing.T, server *httptest.Server, method, path string, payload any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func errorCode(body map[string]any) string {
	detail, _ := body["error"].(map[string]any)
	code, _ := detail["code"].(string)
	return code
}
