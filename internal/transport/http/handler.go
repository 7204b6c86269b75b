package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"backtrace-quiz-service/internal/app"
	"backtrace-quiz-service/internal/domain"
)

// Handler exposes the quiz use cases over JSON/HTTP. Every response uses the
// {success, message, data} envelope; failures never leak store internals.
type Handler struct {
	service *app.QuizService
}

func NewHandler(service *app.QuizService) *Handler {
	return &Handler{service: service}
}

// Register wires all routes onto the mux, including a catch-all 404.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/start-quiz", h.startQuiz)
	mux.HandleFunc("/api/questions", h.listQuestions)
	mux.HandleFunc("/api/save-answers", h.saveAnswers)
	mux.HandleFunc("/api/select-bonus", h.selectBonus)
	mux.HandleFunc("/api/submit-quiz", h.submitQuiz)
	mux.HandleFunc("/api/session-status", h.sessionStatus)
	mux.HandleFunc("/api/admin/authenticate", h.authenticateAdmin)
	mux.HandleFunc("/api/admin/participants", h.listParticipants)
	mux.HandleFunc("/api/admin/seed", h.seedQuestions)
	mux.HandleFunc("/api/health", h.health)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusNotFound, "Route not found")
	})
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type startQuizRequest struct {
	Name string `json:"name"`
}

func (h *Handler) startQuiz(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req startQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.service.CreateSession(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Printf("quiz started for %s (session %s)", session.Name, session.SessionID)
	writeSuccess(w, http.StatusCreated, "Quiz started successfully", map[string]any{
		"sessionId": session.SessionID,
		"name":      session.Name,
		"startTime": session.StartedAt,
	})
}

func (h *Handler) listQuestions(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeFailure(w, http.StatusBadRequest, "Session ID required")
		return
	}

	questions, err := h.service.ListQuestionsForSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", map[string]any{
		"questions":      questions,
		"totalQuestions": len(questions),
	})
}

type saveAnswersRequest struct {
	SessionID string         `json:"sessionId"`
	Answers   map[string]int `json:"answers"`
}

func (h *Handler) saveAnswers(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req saveAnswersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SessionID == "" {
		writeFailure(w, http.StatusBadRequest, "Session ID required")
		return
	}

	delta, err := parseAnswerKeys(req.Answers)
	if err != nil {
		writeError(w, err)
		return
	}

	saved, err := h.service.SaveAnswers(r.Context(), req.SessionID, delta)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Answers saved", map[string]any{
		"savedCount": saved,
	})
}

type selectBonusRequest struct {
	SessionID    string `json:"sessionId"`
	BonusMinutes int    `json:"bonusMinutes"`
}

func (h *Handler) selectBonus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req selectBonusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SessionID == "" {
		writeFailure(w, http.StatusBadRequest, "Session ID required")
		return
	}

	grant, err := h.service.SelectBonus(r.Context(), req.SessionID, req.BonusMinutes)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Printf("bonus applied: %d min (penalty %d) for session %s", grant.BonusMinutes, grant.Penalty, req.SessionID)
	writeSuccess(w, http.StatusOK, "Bonus time applied", grant)
}

type submitQuizRequest struct {
	SessionID string `json:"sessionId"`
}

func (h *Handler) submitQuiz(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req submitQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SessionID == "" {
		writeFailure(w, http.StatusBadRequest, "Session ID required")
		return
	}

	result, err := h.service.SubmitSession(r.Context(), req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Printf("quiz submitted by %s: %d/%d correct, score %d, %ds",
		result.Name, result.TotalCorrect, result.TotalQuestions, result.TotalScore, result.TotalTimeSpent)
	writeSuccess(w, http.StatusOK, "Quiz submitted successfully", result)
}

func (h *Handler) sessionStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeFailure(w, http.StatusBadRequest, "Session ID required")
		return
	}

	status, err := h.service.SessionStatus(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", status)
}

type adminAuthRequest struct {
	Name string `json:"name"`
}

func (h *Handler) authenticateAdmin(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req adminAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, err := h.service.AuthenticateAdmin(req.Name)
	if err != nil {
		writeFailure(w, http.StatusUnauthorized, "Unauthorized. Invalid credentials.")
		return
	}

	log.Printf("admin access granted")
	writeSuccess(w, http.StatusOK, "Admin authenticated", map[string]any{
		"adminToken": token,
		"isAdmin":    true,
	})
}

func (h *Handler) listParticipants(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if !app.ValidAdminToken(r.URL.Query().Get("adminToken")) {
		writeFailure(w, http.StatusForbidden, "Forbidden. Admin access required.")
		return
	}

	leaderboard, err := h.service.ListSubmittedSessions(r.Context(), domain.SortKey(r.URL.Query().Get("sortBy")))
	if err != nil {
		writeError(w, err)
		return
	}

	log.Printf("admin accessed leaderboard: %d participants", leaderboard.Total)
	writeSuccess(w, http.StatusOK, "", leaderboard)
}

type seedRequest struct {
	AdminToken string         `json:"adminToken"`
	Questions  []seedQuestion `json:"questions"`
}

type seedQuestion struct {
	Number        int      `json:"questionNumber"`
	Text          string   `json:"question"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correctAnswer"`
	Category      string   `json:"category"`
	Difficulty    string   `json:"difficulty"`
}

func (h *Handler) seedQuestions(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req seedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !app.ValidAdminToken(req.AdminToken) {
		writeFailure(w, http.StatusForbidden, "Forbidden. Admin access required.")
		return
	}

	questions := make([]domain.Question, 0, len(req.Questions))
	for _, q := range req.Questions {
		questions = append(questions, domain.Question{
			Number:        q.Number,
			Text:          q.Text,
			Options:       q.Options,
			CorrectOption: q.CorrectOption,
			Category:      q.Category,
			Difficulty:    q.Difficulty,
		})
	}

	if err := h.service.SeedQuestions(r.Context(), questions); err != nil {
		if errors.Is(err, domain.ErrNoQuestions) {
			writeFailure(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, err)
		return
	}

	log.Printf("question set seeded: %d questions", len(questions))
	writeSuccess(w, http.StatusOK, "Question set seeded successfully", map[string]any{
		"count": len(questions),
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeSuccess(w, http.StatusOK, "Backtrace Quiz API is running", map[string]any{
		"timestamp": time.Now(),
	})
}

// parseAnswerKeys converts wire-format answer keys (stringified question
// numbers) into the integer map the state machine works with.
func parseAnswerKeys(raw map[string]int) (map[int]int, error) {
	delta := make(map[int]int, len(raw))
	for key, option := range raw {
		number, err := strconv.Atoi(key)
		if err != nil {
			return nil, domain.ErrInvalidAnswer
		}
		delta[number] = option
	}
	return delta, nil
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeFailure(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// writeError maps domain errors to status codes; anything unrecognized is an
// internal failure with a generic message.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidBonus),
		errors.Is(err, domain.ErrInvalidAnswer),
		errors.Is(err, domain.ErrAlreadySubmitted),
		errors.Is(err, domain.ErrBonusAlreadySelected):
		writeFailure(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrSessionNotFound):
		writeFailure(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeFailure(w, http.StatusUnauthorized, "Unauthorized. Invalid credentials.")
	default:
		log.Printf("internal error: %v", err)
		writeFailure(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}
