package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"quiz-roulette-service/internal/app"
	"quiz-roulette-service/internal/domain"
)

const sessionCookie = "quiz_session"

// Handler maps the JSON API onto the round and leaderboard engines. The
// session cookie is opaque to the engines; any transport could supply the
// identifier.
type Handler struct {
	rounds      *app.RoundService
	leaderboard *app.LeaderboardService
	questions   app.QuestionRepository
}

func NewHandler(rounds *app.RoundService, leaderboard *app.LeaderboardService, questions app.QuestionRepository) *Handler {
	return &Handler{rounds: rounds, leaderboard: leaderboard, questions: questions}
}

// Register wires the API routes onto the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/round/start", h.StartRound)
	mux.HandleFunc("/api/round/question", h.NextQuestion)
	mux.HandleFunc("/api/round/answer", h.SubmitAnswer)
	mux.HandleFunc("/api/round/feedback", h.Feedback)
	mux.HandleFunc("/api/round/continue", h.Continue)
	mux.HandleFunc("/api/round/finish", h.Finish)
	mux.HandleFunc("/api/leaderboard", h.Leaderboard)
}

type startRequest struct {
	Nickname string `json:"nickname"`
}

type startResponse struct {
	Theme    domain.Theme `json:"theme"`
	Score    int          `json:"score"`
	ScoreCap int          `json:"scoreCap"`
}

func (h *Handler) StartRound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID := sessionIDFrom(r)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	state, err := h.rounds.StartRound(r.Context(), sessionID, req.Nickname, domain.Themes())
	if errors.Is(err, domain.ErrInvalidNickname) {
		writeError(w, http.StatusBadRequest, "nickname must be 1-50 characters")
		return
	}
	if err != nil {
		log.Printf("start round: %v", err)
		writeError(w, http.StatusInternalServerError, "could not start round")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, startResponse{
		Theme:    state.Theme,
		Score:    0,
		ScoreCap: h.rounds.ScoreCap(),
	})
}

type questionView struct {
	ID        int64        `json:"id"`
	Statement string       `json:"statement"`
	OptionA   string       `json:"optionA"`
	OptionB   string       `json:"optionB"`
	OptionC   string       `json:"optionC"`
	OptionD   string       `json:"optionD"`
	ImageURL  string       `json:"imageUrl,omitempty"`
	Theme     domain.Theme `json:"theme"`
}

type questionResponse struct {
	RoundComplete bool          `json:"roundComplete"`
	Question      *questionView `json:"question,omitempty"`
	Token         string        `json:"token,omitempty"`
	Score         int           `json:"score"`
	ShowRoulette  bool          `json:"showRoulette,omitempty"`
}

func (h *Handler) NextQuestion(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	turn, err := h.rounds.NextQuestion(r.Context(), sessionID)
	if errors.Is(err, domain.ErrRoundComplete) {
		writeJSON(w, http.StatusOK, questionResponse{RoundComplete: true})
		return
	}
	if errors.Is(err, domain.ErrNoActiveRound) {
		writeError(w, http.StatusNotFound, "no round in progress")
		return
	}
	if err != nil {
		log.Printf("next question: %v", err)
		writeError(w, http.StatusInternalServerError, "could not load question")
		return
	}

	// The correct letter never leaves the server here.
	writeJSON(w, http.StatusOK, questionResponse{
		Question: &questionView{
			ID:        turn.Question.ID,
			Statement: turn.Question.Statement,
			OptionA:   turn.Question.OptionA,
			OptionB:   turn.Question.OptionB,
			OptionC:   turn.Question.OptionC,
			OptionD:   turn.Question.OptionD,
			ImageURL:  turn.Question.ImageURL,
			Theme:     turn.Question.Theme,
		},
		Token:        turn.Token,
		Score:        turn.Score,
		ShowRoulette: turn.ShowRoulette,
	})
}

type answerRequest struct {
	QuestionID int64  `json:"questionId"`
	Token      string `json:"token"`
	Picked     string `json:"picked"`
}

type feedbackView struct {
	QuestionID int64                `json:"questionId"`
	WasCorrect bool                 `json:"wasCorrect"`
	TimedOut   bool                 `json:"timedOut"`
	Picked     *domain.OptionLetter `json:"picked,omitempty"`
	Correct    domain.OptionLetter  `json:"correct"`
	Score      int                  `json:"score"`
}

func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, valid := domain.ParseOption(req.Picked); !valid && req.Picked != domain.TimeoutAnswer {
		writeError(w, http.StatusBadRequest, "picked must be A-D or TIMEOUT")
		return
	}

	// The correct option comes from the bank, never from the client.
	question, err := h.questions.ByID(r.Context(), req.QuestionID)
	if errors.Is(err, domain.ErrQuestionNotFound) {
		writeError(w, http.StatusNotFound, "unknown question")
		return
	}
	if err != nil {
		log.Printf("load question %d: %v", req.QuestionID, err)
		writeError(w, http.StatusInternalServerError, "could not validate answer")
		return
	}

	feedback, score, err := h.rounds.SubmitAnswer(r.Context(), sessionID, req.QuestionID, req.Token, req.Picked, question.Correct)
	if errors.Is(err, domain.ErrAnswerRejected) {
		// Benign replay: the client should re-fetch the current question.
		writeError(w, http.StatusConflict, "answer rejected, re-fetch the question")
		return
	}
	if errors.Is(err, domain.ErrNoActiveRound) {
		writeError(w, http.StatusNotFound, "no round in progress")
		return
	}
	if err != nil {
		log.Printf("submit answer: %v", err)
		writeError(w, http.StatusInternalServerError, "could not record answer")
		return
	}

	writeJSON(w, http.StatusOK, feedbackView{
		QuestionID: feedback.QuestionID,
		WasCorrect: feedback.WasCorrect,
		TimedOut:   feedback.TimedOut,
		Picked:     feedback.Picked,
		Correct:    feedback.Correct,
		Score:      score,
	})
}

type feedbackResponse struct {
	Feedback *feedbackView `json:"feedback"`
	Score    int           `json:"score"`
}

func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	feedback, score, err := h.rounds.ConsumeFeedback(r.Context(), sessionID)
	if errors.Is(err, domain.ErrNoActiveRound) {
		writeError(w, http.StatusNotFound, "no round in progress")
		return
	}
	if err != nil {
		log.Printf("consume feedback: %v", err)
		writeError(w, http.StatusInternalServerError, "could not load feedback")
		return
	}
	resp := feedbackResponse{Score: score}
	if feedback != nil {
		resp.Feedback = &feedbackView{
			QuestionID: feedback.QuestionID,
			WasCorrect: feedback.WasCorrect,
			TimedOut:   feedback.TimedOut,
			Picked:     feedback.Picked,
			Correct:    feedback.Correct,
			Score:      score,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type continueRequest struct {
	Last string `json:"last"`
}

type continueResponse struct {
	Next   string           `json:"next"`
	Reason domain.EndReason `json:"reason,omitempty"`
	Score  int              `json:"score"`
}

func (h *Handler) Continue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	var req continueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	decision, err := h.rounds.Continue(r.Context(), sessionID, req.Last)
	if errors.Is(err, domain.ErrNoActiveRound) {
		writeError(w, http.StatusNotFound, "no round in progress")
		return
	}
	if err != nil {
		log.Printf("continue round: %v", err)
		writeError(w, http.StatusInternalServerError, "could not continue round")
		return
	}

	resp := continueResponse{Score: decision.Score}
	if decision.Next {
		resp.Next = "question"
	} else {
		resp.Next = "end"
		resp.Reason = decision.Reason
	}
	writeJSON(w, http.StatusOK, resp)
}

type finishRequest struct {
	Reason domain.EndReason `json:"reason"`
}

type finishResponse struct {
	Nickname  string                    `json:"nickname"`
	Score     int                       `json:"score"`
	Perfect   bool                      `json:"perfect"`
	Reason    domain.EndReason          `json:"reason,omitempty"`
	Saved     bool                      `json:"saved"`
	Promotion domain.Promotion          `json:"promotion"`
	Top       []domain.LeaderboardEntry `json:"top"`
}

func (h *Handler) Finish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	var req finishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state, err := h.rounds.EndRound(r.Context(), sessionID)
	if errors.Is(err, domain.ErrNoActiveRound) {
		writeError(w, http.StatusNotFound, "no round in progress")
		return
	}
	if err != nil {
		log.Printf("end round: %v", err)
		writeError(w, http.StatusInternalServerError, "could not end round")
		return
	}

	score := state.Score()
	resp := finishResponse{
		Nickname:  state.Nickname,
		Score:     score,
		Perfect:   score >= h.rounds.ScoreCap(),
		Reason:    req.Reason,
		Saved:     true,
		Promotion: domain.Promotion{Kind: domain.PromotionNone},
	}

	promotion, err := h.leaderboard.FinishRound(r.Context(), state.Nickname, score, domain.RankWeekly)
	if err != nil {
		// The player still gets their end screen; the rank update is
		// reported as unsaved rather than retried.
		log.Printf("record result for %q: %v", state.Nickname, err)
		resp.Saved = false
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Promotion = promotion

	if top, err := h.leaderboard.Top(r.Context(), domain.RankWeekly, 0); err == nil {
		resp.Top = top
	} else {
		log.Printf("list leaderboard: %v", err)
	}
	writeJSON(w, http.StatusOK, resp)
}

type leaderboardResponse struct {
	Mode    domain.RankMode           `json:"mode"`
	Entries []domain.LeaderboardEntry `json:"entries"`
}

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	mode := domain.ParseRankMode(r.URL.Query().Get("mode"))
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	entries, err := h.leaderboard.Top(r.Context(), mode, limit)
	if err != nil {
		log.Printf("list leaderboard: %v", err)
		writeError(w, http.StatusInternalServerError, "could not load leaderboard")
		return
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{Mode: mode, Entries: entries})
}

func (h *Handler) requireSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID := sessionIDFrom(r)
	if sessionID == "" {
		writeError(w, http.StatusUnauthorized, "missing session")
		return "", false
	}
	return sessionID, true
}

func sessionIDFrom(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

type errorResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}
