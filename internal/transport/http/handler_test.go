package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"quiz-roulette-service/internal/app"
	"quiz-roulette-service/internal/domain"
	"quiz-roulette-service/internal/infra/memory"
)

// testBank returns two questions per theme, all with correct option B, so the
// flow works whichever theme the roulette lands on.
func testBank() []domain.Question {
	var questions []domain.Question
	id := int64(0)
	for _, theme := range domain.Themes() {
		for i := 0; i < 2; i++ {
			id++
			questions = append(questions, domain.Question{
				ID:        id,
				Theme:     theme,
				Statement: fmt.Sprintf("%s question %d", theme, i+1),
				OptionA:   "wrong", OptionB: "right", OptionC: "wrong", OptionD: "wrong",
				Correct: domain.OptionB,
			})
		}
	}
	return questions
}

func newTestServer(t *testing.T) (*httptest.Server, *http.Client) {
	t.Helper()
	bank := memory.NewQuestionBank(testBank())
	rounds := app.NewRoundService(memory.NewRoundStore(), bank, 30)
	leaderboard := app.NewLeaderboardService(memory.NewLeaderboardStore(), 20)
	handler := NewHandler(rounds, leaderboard, bank)

	mux := http.NewServeMux()
	handler.Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return server, &http.Client{Jar: jar}
}

func postJSON(t *testing.T, client *http.Client, url string, body any, out any) int {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func getJSON(t *testing.T, client *http.Client, url string, out any) int {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestFullRoundFlow(t *testing.T) {
	server, client := newTestServer(t)

	var started startResponse
	if status := postJSON(t, client, server.URL+"/api/round/start", startRequest{Nickname: "Ana"}, &started); status != http.StatusOK {
		t.Fatalf("start: status %d", status)
	}
	if !started.Theme.Valid() {
		t.Fatalf("expected a rolled theme, got %q", started.Theme)
	}

	var question questionResponse
	if status := getJSON(t, client, server.URL+"/api/round/question", &question); status != http.StatusOK {
		t.Fatalf("question: status %d", status)
	}
	if question.Question == nil || question.Token == "" {
		t.Fatalf("expected question with token, got %+v", question)
	}
	if !question.ShowRoulette {
		t.Fatalf("first question must carry the roulette reveal")
	}

	// Correct answer.
	var feedback feedbackView
	answer := answerRequest{QuestionID: question.Question.ID, Token: question.Token, Picked: "B"}
	if status := postJSON(t, client, server.URL+"/api/round/answer", answer, &feedback); status != http.StatusOK {
		t.Fatalf("answer: status %d", status)
	}
	if !feedback.WasCorrect || feedback.Score != 1 {
		t.Fatalf("expected correct answer scoring 1, got %+v", feedback)
	}

	// Double-click replay is rejected, not double-scored.
	if status := postJSON(t, client, server.URL+"/api/round/answer", answer, nil); status != http.StatusConflict {
		t.Fatalf("expected 409 on replay, got %d", status)
	}

	var consumed feedbackResponse
	if status := getJSON(t, client, server.URL+"/api/round/feedback", &consumed); status != http.StatusOK {
		t.Fatalf("feedback: status %d", status)
	}
	if consumed.Feedback == nil || !consumed.Feedback.WasCorrect {
		t.Fatalf("expected staged feedback, got %+v", consumed)
	}
	if status := getJSON(t, client, server.URL+"/api/round/feedback", &consumed); status != http.StatusOK {
		t.Fatalf("feedback again: status %d", status)
	}
	if consumed.Feedback != nil {
		t.Fatalf("feedback must be consumed once, got %+v", consumed.Feedback)
	}

	var cont continueResponse
	if status := postJSON(t, client, server.URL+"/api/round/continue", continueRequest{Last: "correct"}, &cont); status != http.StatusOK {
		t.Fatalf("continue: status %d", status)
	}
	if cont.Next != "question" {
		t.Fatalf("expected to continue, got %+v", cont)
	}

	// Second question answered wrong ends the round. Reset the decode target:
	// showRoulette is omitempty, so a false value would leave the stale true.
	question = questionResponse{}
	if status := getJSON(t, client, server.URL+"/api/round/question", &question); status != http.StatusOK {
		t.Fatalf("second question: status %d", status)
	}
	if question.ShowRoulette {
		t.Fatalf("roulette must not repeat")
	}
	wrong := answerRequest{QuestionID: question.Question.ID, Token: question.Token, Picked: "A"}
	if status := postJSON(t, client, server.URL+"/api/round/answer", wrong, &feedback); status != http.StatusOK {
		t.Fatalf("wrong answer: status %d", status)
	}
	if feedback.WasCorrect || feedback.Score != 1 {
		t.Fatalf("expected wrong answer keeping score 1, got %+v", feedback)
	}

	if status := postJSON(t, client, server.URL+"/api/round/continue", continueRequest{Last: "wrong"}, &cont); status != http.StatusOK {
		t.Fatalf("continue after wrong: status %d", status)
	}
	if cont.Next != "end" || cont.Reason != domain.EndWrong {
		t.Fatalf("expected round end, got %+v", cont)
	}

	var finished finishResponse
	if status := postJSON(t, client, server.URL+"/api/round/finish", finishRequest{Reason: domain.EndWrong}, &finished); status != http.StatusOK {
		t.Fatalf("finish: status %d", status)
	}
	if finished.Score != 1 || !finished.Saved {
		t.Fatalf("expected saved score 1, got %+v", finished)
	}
	if finished.Promotion.Kind != domain.PromotionFirstEntry {
		t.Fatalf("first finish should enter the board, got %+v", finished.Promotion)
	}
	if len(finished.Top) != 1 || finished.Top[0].Nickname != "Ana" {
		t.Fatalf("expected Ana on the board, got %v", finished.Top)
	}

	// The end screen cannot be re-submitted.
	if status := postJSON(t, client, server.URL+"/api/round/finish", finishRequest{Reason: domain.EndWrong}, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 on double finish, got %d", status)
	}

	var board leaderboardResponse
	if status := getJSON(t, client, server.URL+"/api/leaderboard?mode=weekly", &board); status != http.StatusOK {
		t.Fatalf("leaderboard: status %d", status)
	}
	if len(board.Entries) != 1 || board.Entries[0].TotalPoints != 1 {
		t.Fatalf("expected Ana with 1 point, got %v", board.Entries)
	}
}

func TestStartRoundRejectsBadNickname(t *testing.T) {
	server, client := newTestServer(t)
	if status := postJSON(t, client, server.URL+"/api/round/start", startRequest{Nickname: "   "}, nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestRoundEndpointsRequireSession(t *testing.T) {
	server, _ := newTestServer(t)
	client := &http.Client{} // no cookie jar, no session

	if status := getJSON(t, client, server.URL+"/api/round/question", nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
	if status := postJSON(t, client, server.URL+"/api/round/answer", answerRequest{}, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
}

func TestSubmitAnswerValidatesPickedOption(t *testing.T) {
	server, client := newTestServer(t)

	if status := postJSON(t, client, server.URL+"/api/round/start", startRequest{Nickname: "Ana"}, nil); status != http.StatusOK {
		t.Fatalf("start failed")
	}
	var question questionResponse
	if status := getJSON(t, client, server.URL+"/api/round/question", &question); status != http.StatusOK {
		t.Fatalf("question failed")
	}

	bad := answerRequest{QuestionID: question.Question.ID, Token: question.Token, Picked: "E"}
	if status := postJSON(t, client, server.URL+"/api/round/answer", bad, nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for picked=E, got %d", status)
	}
}
