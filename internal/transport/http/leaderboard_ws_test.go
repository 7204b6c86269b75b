package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"backtrace-quiz-service/internal/domain"
	"github.com/gorilla/websocket"
)

func TestLeaderboardFeedPushesSnapshots(t *testing.T) {
	server := newTestServer()
	defer server.Close()

	// Seed one submitted participant through the normal flow.
	start := postJSON(t, server, "/api/start-quiz", map[string]any{"name": "alice"})
	sessionID, _ := start.data()["sessionId"].(string)
	_ = postJSON(t, server, "/api/save-answers", map[string]any{
		"sessionId": sessionID, "answers": map[string]int{"1": 0},
	})
	_ = postJSON(t, server, "/api/submit-quiz", map[string]any{"sessionId": sessionID})

	auth := postJSON(t, server, "/api/admin/authenticate", map[string]any{"name": "sam altman"})
	token, _ := auth.data()["adminToken"].(string)

	u := "ws" + server.URL[len("http"):] + "/api/admin/leaderboard/ws?adminToken=" + token + "&sortBy=score"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var msg struct {
		Type    string             `json:"type"`
		Payload domain.Leaderboard `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if msg.Type != "leaderboard" {
		t.Fatalf("expected leaderboard message, got %s", msg.Type)
	}
	if msg.Payload.Total != 1 || msg.Payload.Participants[0].Name != "alice" {
		t.Fatalf("unexpected snapshot: %+v", msg.Payload)
	}

	// The feed keeps pushing on its interval.
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read second snapshot: %v", err)
	}
	if msg.Payload.Total != 1 {
		t.Fatalf("unexpected second snapshot: %+v", msg.Payload)
	}
}

func TestLeaderboardFeedRejectsBadToken(t *testing.T) {
	server := newTestServer()
	defer server.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet,
		server.URL+"/api/admin/leaderboard/ws?adminToken=bogus", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}
