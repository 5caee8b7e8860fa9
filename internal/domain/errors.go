package domain

import "errors"

var (
	// ErrInvalidNickname is returned when a round is started with an empty or oversized nickname.
	ErrInvalidNickname = errors.New("invalid nickname")
	// ErrNoActiveRound is returned when a session has no round in progress.
	ErrNoActiveRound = errors.New("no active round for session")
	// ErrAnswerRejected marks a replayed or forged answer submission; the round state is untouched.
	ErrAnswerRejected = errors.New("answer rejected: token or question mismatch")
	// ErrQuestionNotFound indicates a question id is absent from the bank.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrRoundComplete signals the question queue is exhausted. It is a control signal, not a failure.
	ErrRoundComplete = errors.New("round complete")
	// ErrEntryNotFound indicates a nickname has no leaderboard row.
	ErrEntryNotFound = errors.New("leaderboard entry not found")
)
