package domain

import "errors"

var (
	// ErrInvalidName is returned when a display name fails validation.
	ErrInvalidName = errors.New("name must be between 2 and 100 characters")
	// ErrSessionNotFound is returned when a session ID is unknown.
	ErrSessionNotFound = errors.New("invalid session")
	// ErrAlreadySubmitted guards every mutating operation after submission.
	ErrAlreadySubmitted = errors.New("quiz already submitted")
	// ErrBonusAlreadySelected guards the one-shot bonus-time grant.
	ErrBonusAlreadySelected = errors.New("bonus time already selected")
	// ErrInvalidBonus is returned for a bonus-minute value outside the allowed set.
	ErrInvalidBonus = errors.New("invalid bonus time selection")
	// ErrInvalidAnswer is returned for an out-of-range question number or option index.
	ErrInvalidAnswer = errors.New("invalid answer payload")
	// ErrUnauthorized is returned when the admin check fails.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoQuestions indicates the question set has not been seeded.
	ErrNoQuestions = errors.New("question set is empty")
)
