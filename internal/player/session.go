// Package player walks one visitor through a quiz and keeps their score.
// A Session belongs to one caller and is not safe for concurrent use.
package player

import (
	"fmt"

	"github.com/victornm/quizinho/internal/domain"
	"github.com/victornm/quizinho/internal/errors"
)

type Phase int

const (
	PhaseAnswering Phase = iota
	PhaseCompleted
)

// State is Answering(Index) or Completed.
type State struct {
	Phase Phase
	Index int
}

func (s State) String() string {
	if s.Phase == PhaseCompleted {
		return "completed"
	}
	return fmt.Sprintf("answering(%d)", s.Index)
}

type Session struct {
	questions []domain.Question

	index     int
	completed bool
	selected  string
	hasChoice bool

	// correct[i] records the last scored answer to question i.
	correct []bool
}

// NewSession starts at Answering(0). A quiz without questions cannot be played.
func NewSession(questions []domain.Question) (*Session, error) {
	if len(questions) == 0 {
		return nil, errors.Validation(errors.WithMessagef("quiz has no questions"))
	}

	qs := make([]domain.Question, len(questions))
	for i, q := range questions {
		qs[i] = q.Clone()
	}

	return &Session{
		questions: qs,
		correct:   make([]bool, len(qs)),
	}, nil
}

func (s *Session) State() State {
	if s.completed {
		return State{Phase: PhaseCompleted, Index: len(s.questions)}
	}
	return State{Phase: PhaseAnswering, Index: s.index}
}

// Current returns the question being answered; ok is false once completed.
func (s *Session) Current() (q domain.Question, ok bool) {
	if s.completed {
		return domain.Question{}, false
	}
	return s.questions[s.index], true
}

// Selected returns the tentative choice for the current question.
func (s *Session) Selected() (string, bool) {
	return s.selected, s.hasChoice
}

// Select records a tentative choice, replacing any earlier one.
func (s *Session) Select(v string) {
	if s.completed {
		return
	}
	s.selected = v
	s.hasChoice = true
}

// Advance scores the tentative choice and moves on. Without a choice it does nothing.
func (s *Session) Advance() {
	if s.completed || !s.hasChoice {
		return
	}

	s.correct[s.index] = s.selected == s.questions[s.index].CorrectAlternative
	s.clearChoice()

	if s.index+1 < len(s.questions) {
		s.index++
		return
	}
	s.completed = true
}

// Retreat goes back one question and clears the choice.
// The question must be answered again; the new answer replaces the old one in the score.
func (s *Session) Retreat() {
	if s.completed || s.index == 0 {
		return
	}
	s.index--
	s.clearChoice()
}

// FinalScore returns the number of correct answers and the question count once completed.
func (s *Session) FinalScore() (score, total int, ok bool) {
	if !s.completed {
		return 0, 0, false
	}
	for _, c := range s.correct {
		if c {
			score++
		}
	}
	return score, len(s.questions), true
}

func (s *Session) clearChoice() {
	s.selected = ""
	s.hasChoice = false
}
