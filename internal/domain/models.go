package domain

import (
	"fmt"
	"strings"
	"time"
)

// Theme is one of the seven fixed question categories.
type Theme string

const (
	ThemeSports   Theme = "Sports"
	ThemeTVMovies Theme = "TV/Movies"
	ThemeGames    Theme = "Games"
	ThemeMusic    Theme = "Music"
	ThemeLogic    Theme = "Logic"
	ThemeHistory  Theme = "History"
	ThemeMisc     Theme = "Misc"
)

// Themes returns the full fixed theme set, in declaration order.
func Themes() []Theme {
	return []Theme{ThemeSports, ThemeTVMovies, ThemeGames, ThemeMusic, ThemeLogic, ThemeHistory, ThemeMisc}
}

// Valid reports whether t is one of the seven known themes.
func (t Theme) Valid() bool {
	for _, known := range Themes() {
		if t == known {
			return true
		}
	}
	return false
}

// OptionLetter identifies one of the four answer options.
type OptionLetter string

const (
	OptionA OptionLetter = "A"
	OptionB OptionLetter = "B"
	OptionC OptionLetter = "C"
	OptionD OptionLetter = "D"
)

// ParseOption normalizes raw input to an option letter. The second return is
// false for anything outside A-D (including the TIMEOUT pseudo-answer).
func ParseOption(raw string) (OptionLetter, bool) {
	switch OptionLetter(strings.ToUpper(strings.TrimSpace(raw))) {
	case OptionA:
		return OptionA, true
	case OptionB:
		return OptionB, true
	case OptionC:
		return OptionC, true
	case OptionD:
		return OptionD, true
	}
	return "", false
}

// TimeoutAnswer is the pseudo-answer submitted when the client countdown expires.
const TimeoutAnswer = "TIMEOUT"

// Question is an immutable multiple-choice question owned by the question bank.
type Question struct {
	ID        int64        `json:"id"`
	Theme     Theme        `json:"theme"`
	Statement string       `json:"statement"`
	OptionA   string       `json:"optionA"`
	OptionB   string       `json:"optionB"`
	OptionC   string       `json:"optionC"`
	OptionD   string       `json:"optionD"`
	Correct   OptionLetter `json:"correct"`
	ImageURL  string       `json:"imageUrl,omitempty"`
}

// OptionText returns the text for a given option letter.
func (q Question) OptionText(letter OptionLetter) string {
	switch letter {
	case OptionA:
		return q.OptionA
	case OptionB:
		return q.OptionB
	case OptionC:
		return q.OptionC
	case OptionD:
		return q.OptionD
	}
	return ""
}

// CurrentQuestion is the single in-flight presentation of a question, paired
// with the anti-replay token required to answer it.
type CurrentQuestion struct {
	QuestionID int64  `json:"questionId"`
	Token      string `json:"token"`
}

// AnswerFeedback is the transient outcome of one answer submission. It lives
// only between SubmitAnswer and the next feedback read.
type AnswerFeedback struct {
	QuestionID int64         `json:"questionId"`
	WasCorrect bool          `json:"wasCorrect"`
	TimedOut   bool          `json:"timedOut"`
	Picked     *OptionLetter `json:"picked,omitempty"`
	Correct    OptionLetter  `json:"correct"`
}

// RoundState is one player's in-progress round. It is owned by a single
// session and never shared across players. Current and Feedback are never
// both set at once.
type RoundState struct {
	Nickname      string           `json:"nickname"`
	Theme         Theme            `json:"theme"`
	Queue         []int64          `json:"queue"`
	Asked         []int64          `json:"asked"`
	Current       *CurrentQuestion `json:"current,omitempty"`
	Feedback      *AnswerFeedback  `json:"feedback,omitempty"`
	RouletteShown bool             `json:"rouletteShown"`
}

// Score is always derived from the correctly-answered set, never stored.
func (s RoundState) Score() int {
	return len(s.Asked)
}

// HasAsked reports whether the question id has already been answered correctly.
func (s RoundState) HasAsked(id int64) bool {
	for _, asked := range s.Asked {
		if asked == id {
			return true
		}
	}
	return false
}

// EndReason explains why a round terminated.
type EndReason string

const (
	EndWrong     EndReason = "wrong"
	EndTimeout   EndReason = "timeout"
	EndCompleted EndReason = "completed"
)

// LeaderboardEntry is one nickname's persistent score row. BestScore is the
// all-time high; TotalPoints and GamesPlayed accumulate within the current
// ISO-week period and are zeroed by the weekly reset.
type LeaderboardEntry struct {
	Nickname    string `json:"nickname"`
	BestScore   int    `json:"bestScore"`
	TotalPoints int    `json:"totalPoints"`
	GamesPlayed int    `json:"gamesPlayed"`
}

// RankMode selects which metric orders the leaderboard.
type RankMode string

const (
	// RankAllTime orders by best single-round score.
	RankAllTime RankMode = "alltime"
	// RankWeekly orders by points accumulated in the current week.
	RankWeekly RankMode = "weekly"
)

// Metric returns the entry value the mode ranks by.
func (m RankMode) Metric(e LeaderboardEntry) int {
	if m == RankAllTime {
		return e.BestScore
	}
	return e.TotalPoints
}

// ParseRankMode maps raw input to a mode, defaulting to weekly.
func ParseRankMode(raw string) RankMode {
	if RankMode(raw) == RankAllTime {
		return RankAllTime
	}
	return RankWeekly
}

// PromotionKind classifies the rank change produced by one recorded result.
type PromotionKind string

const (
	PromotionFirstEntry PromotionKind = "first_entry"
	PromotionUp         PromotionKind = "promoted"
	PromotionNone       PromotionKind = "unchanged"
)

// Promotion describes how a nickname moved between the ranking snapshots
// taken immediately before and after a recorded result.
type Promotion struct {
	Kind        PromotionKind `json:"kind"`
	PositionsUp int           `json:"positionsUp,omitempty"`
	NewRank     int           `json:"newRank,omitempty"`
}

// WeekPeriodKey is the meta key holding the last period the reset sweep ran for.
const WeekPeriodKey = "week_period"

// WeekPeriod formats t's ISO 8601 week as the leaderboard epoch marker,
// e.g. "2026-W36".
func WeekPeriod(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
