package http

import (
	"log"
	"net/http"
	"time"

	"backtrace-quiz-service/internal/app"
	"backtrace-quiz-service/internal/domain"
	"github.com/gorilla/websocket"
)

// LeaderboardFeed streams leaderboard snapshots to an authenticated admin
// over a websocket, so the dashboard does not have to poll.
type LeaderboardFeed struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
	interval time.Duration
}

func NewLeaderboardFeed(service *app.QuizService, interval time.Duration) *LeaderboardFeed {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &LeaderboardFeed{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		interval: interval,
	}
}

type feedMessage struct {
	Type    string             `json:"type"`
	Payload domain.Leaderboard `json:"payload"`
}

// ServeWS upgrades the connection and pushes a snapshot immediately, then on
// every tick, until the client goes away.
func (f *LeaderboardFeed) ServeWS(w http.ResponseWriter, r *http.Request) {
	if !app.ValidAdminToken(r.URL.Query().Get("adminToken")) {
		writeFailure(w, http.StatusForbidden, "Forbidden. Admin access required.")
		return
	}
	sortBy := domain.SortKey(r.URL.Query().Get("sortBy"))

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// The read pump only detects the client closing the socket.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := f.push(conn, r, sortBy); err != nil {
		return
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := f.push(conn, r, sortBy); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (f *LeaderboardFeed) push(conn *websocket.Conn, r *http.Request, sortBy domain.SortKey) error {
	leaderboard, err := f.service.ListSubmittedSessions(r.Context(), sortBy)
	if err != nil {
		log.Printf("leaderboard feed: %v", err)
		return err
	}
	if err := conn.WriteJSON(feedMessage{Type: "leaderboard", Payload: leaderboard}); err != nil {
		log.Printf("ws write error: %v", err)
		return err
	}
	return nil
}
