package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backtrace-quiz-service/internal/app"
	"backtrace-quiz-service/internal/domain"
	"backtrace-quiz-service/internal/infra/memory"
)

func TestQuizFlowOverHTTP(t *testing.T) {
	server := newTestServer()
	defer server.Close()

	// Start a session.
	start := postJSON(t, server, "/api/start-quiz", map[string]any{"name": "alice"})
	if start.code != http.StatusCreated || !start.body.Success {
		t.Fatalf("start failed: %+v", start)
	}
	sessionID, _ := start.data()["sessionId"].(string)
	if sessionID == "" {
		t.Fatalf("expected sessionId in response, got %v", start.data())
	}

	// Fetch questions; the correct answer must never appear anywhere.
	questions := getJSON(t, server, "/api/questions?sessionId="+sessionID)
	if questions.code != http.StatusOK {
		t.Fatalf("questions failed: %+v", questions)
	}
	if questions.data()["totalQuestions"].(float64) != 3 {
		t.Fatalf("expected 3 questions, got %v", questions.data())
	}
	if strings.Contains(questions.raw, "correctAnswer") {
		t.Fatalf("questions response leaks the answer key: %s", questions.raw)
	}

	// Auto-save a couple of answers; keys cross the wire as strings.
	save := postJSON(t, server, "/api/save-answers", map[string]any{
		"sessionId": sessionID,
		"answers":   map[string]int{"1": 0, "2": 1},
	})
	if save.code != http.StatusOK || save.data()["savedCount"].(float64) != 2 {
		t.Fatalf("save failed: %+v", save)
	}

	// Take the bonus extension once.
	bonus := postJSON(t, server, "/api/select-bonus", map[string]any{
		"sessionId": sessionID, "bonusMinutes": 15,
	})
	if bonus.code != http.StatusOK || bonus.data()["penalty"].(float64) != -3 {
		t.Fatalf("bonus failed: %+v", bonus)
	}
	again := postJSON(t, server, "/api/select-bonus", map[string]any{
		"sessionId": sessionID, "bonusMinutes": 30,
	})
	if again.code != http.StatusBadRequest {
		t.Fatalf("expected second bonus rejected, got %+v", again)
	}

	status := getJSON(t, server, "/api/session-status?sessionId="+sessionID)
	if status.code != http.StatusOK || status.data()["answeredCount"].(float64) != 2 {
		t.Fatalf("status failed: %+v", status)
	}

	// Submit and check the scored result.
	submit := postJSON(t, server, "/api/submit-quiz", map[string]any{"sessionId": sessionID})
	if submit.code != http.StatusOK {
		t.Fatalf("submit failed: %+v", submit)
	}
	result := submit.data()
	if result["totalCorrect"].(float64) != 1 || result["totalQuestions"].(float64) != 3 {
		t.Fatalf("unexpected scoring: %v", result)
	}
	// 1 correct with -3 penalty floors at 0.
	if result["totalScore"].(float64) != 0 {
		t.Fatalf("expected floored score 0, got %v", result["totalScore"])
	}

	resubmit := postJSON(t, server, "/api/submit-quiz", map[string]any{"sessionId": sessionID})
	if resubmit.code != http.StatusBadRequest {
		t.Fatalf("expected resubmit rejected, got %+v", resubmit)
	}

	// Admin can now see one submitted participant.
	auth := postJSON(t, server, "/api/admin/authenticate", map[string]any{"name": "sam altman"})
	if auth.code != http.StatusOK {
		t.Fatalf("admin auth failed: %+v", auth)
	}
	token, _ := auth.data()["adminToken"].(string)

	board := getJSON(t, server, "/api/admin/participants?adminToken="+token+"&sortBy=score")
	if board.code != http.StatusOK {
		t.Fatalf("participants failed: %+v", board)
	}
	if board.data()["total"].(float64) != 1 {
		t.Fatalf("expected one participant, got %v", board.data())
	}
	entry := board.data()["participants"].([]any)[0].(map[string]any)
	if entry["rank"].(float64) != 1 || entry["name"].(string) != "alice" {
		t.Fatalf("unexpected leaderboard entry: %v", entry)
	}
}

func TestErrorEnvelopes(t *testing.T) {
	server := newTestServer()
	defer server.Close()

	cases := []struct {
		name   string
		method string
		path   string
		body   map[string]any
		code   int
	}{
		{"short name", http.MethodPost, "/api/start-quiz", map[string]any{"name": "x"}, http.StatusBadRequest},
		{"unknown session", http.MethodGet, "/api/questions?sessionId=nope", nil, http.StatusNotFound},
		{"missing session id", http.MethodGet, "/api/questions", nil, http.StatusBadRequest},
		{"bad answer key", http.MethodPost, "/api/save-answers", map[string]any{"sessionId": "s", "answers": map[string]int{"abc": 1}}, http.StatusBadRequest},
		{"invalid bonus", http.MethodPost, "/api/select-bonus", map[string]any{"sessionId": "s", "bonusMinutes": 45}, http.StatusBadRequest},
		{"admin wrong name", http.MethodPost, "/api/admin/authenticate", map[string]any{"name": "Sam Altman"}, http.StatusUnauthorized},
		{"admin bad token", http.MethodGet, "/api/admin/participants?adminToken=bogus", nil, http.StatusForbidden},
		{"unknown route", http.MethodGet, "/api/nope", nil, http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var resp response
			if tc.method == http.MethodGet {
				resp = getJSON(t, server, tc.path)
			} else {
				resp = postJSON(t, server, tc.path, tc.body)
			}
			if resp.code != tc.code {
				t.Fatalf("expected %d, got %d (%s)", tc.code, resp.code, resp.raw)
			}
			if resp.body.Success {
				t.Fatalf("expected success=false, got %s", resp.raw)
			}
			if resp.body.Message == "" {
				t.Fatalf("expected failure message, got %s", resp.raw)
			}
		})
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer()
	defer server.Close()

	resp := getJSON(t, server, "/api/health")
	if resp.code != http.StatusOK || !resp.body.Success {
		t.Fatalf("expected healthy envelope, got %s", resp.raw)
	}
	if _, ok := resp.data()["timestamp"]; !ok {
		t.Fatalf("expected timestamp in data, got %s", resp.raw)
	}

	posted := postJSON(t, server, "/api/health", nil)
	if posted.code != http.StatusMethodNotAllowed || posted.body.Success {
		t.Fatalf("expected method-not-allowed envelope, got %s", posted.raw)
	}
}

func TestSeedEndpointReplacesQuestions(t *testing.T) {
	server := newTestServer()
	defer server.Close()

	auth := postJSON(t, server, "/api/admin/authenticate", map[string]any{"name": "sam altman"})
	token, _ := auth.data()["adminToken"].(string)

	forbidden := postJSON(t, server, "/api/admin/seed", map[string]any{
		"adminToken": "bogus",
		"questions":  []any{},
	})
	if forbidden.code != http.StatusForbidden {
		t.Fatalf("expected forbidden, got %+v", forbidden)
	}

	seed := postJSON(t, server, "/api/admin/seed", map[string]any{
		"adminToken": token,
		"questions": []map[string]any{
			{"questionNumber": 1, "question": "only", "options": []string{"a", "b", "c", "d"}, "correctAnswer": 2, "category": "general"},
		},
	})
	if seed.code != http.StatusOK {
		t.Fatalf("seed failed: %+v", seed)
	}

	start := postJSON(t, server, "/api/start-quiz", map[string]any{"name": "bob"})
	sessionID, _ := start.data()["sessionId"].(string)
	questions := getJSON(t, server, "/api/questions?sessionId="+sessionID)
	if questions.data()["totalQuestions"].(float64) != 1 {
		t.Fatalf("expected replaced question set, got %v", questions.data())
	}
}

type response struct {
	code int
	raw  string
	body envelope
}

func (r response) data() map[string]any {
	data, _ := r.body.Data.(map[string]any)
	return data
}

func postJSON(t *testing.T, server *httptest.Server, path string, body map[string]any) response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(server.URL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return readResponse(t, resp)
}

func getJSON(t *testing.T, server *httptest.Server, path string) response {
	t.Helper()
	resp, err := http.Get(server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return readResponse(t, resp)
}

func readResponse(t *testing.T, resp *http.Response) response {
	t.Helper()
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	out := response{code: resp.StatusCode, raw: buf.String()}
	if err := json.Unmarshal(buf.Bytes(), &out.body); err != nil {
		t.Fatalf("decode envelope %q: %v", out.raw, err)
	}
	return out
}

func newTestServer() *httptest.Server {
	service := newTestService()
	handler := NewHandler(service)
	feed := NewLeaderboardFeed(service, 50*time.Millisecond)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.HandleFunc("/api/admin/leaderboard/ws", feed.ServeWS)
	return httptest.NewServer(mux)
}

func newTestService() *app.QuizService {
	questions := memory.NewQuestionRepository(memory.NewStaticQuestionSource([]domain.Question{
		{Number: 1, Text: "Q1", Options: []string{"a", "b", "c", "d"}, CorrectOption: 0, Category: "general"},
		{Number: 2, Text: "Q2", Options: []string{"a", "b", "c", "d"}, CorrectOption: 2, Category: "logic"},
		{Number: 3, Text: "Q3", Options: []string{"a", "b", "c", "d"}, CorrectOption: 1, Category: "puzzles"},
	}), time.Minute)
	return app.NewQuizService(memory.NewSessionStore(), questions, "sam altman")
}
