// Package authoring models the question list a visitor builds before creating a quiz.
// A Session belongs to one caller and is not safe for concurrent use.
package authoring

import (
	"strings"

	"github.com/victornm/quizinho/internal/domain"
	"github.com/victornm/quizinho/internal/errors"
)

// Slots is the number of alternative inputs offered per question.
const Slots = domain.MaxAlternatives

type State int

const (
	StateIdle State = iota
	StateDrafting
)

func (s State) String() string {
	if s == StateDrafting {
		return "drafting"
	}
	return "idle"
}

// ValidationError lists every constraint the drafted or edited question breaks.
type ValidationError struct {
	Violations []domain.Violation
}

func (e *ValidationError) Error() string {
	return "invalid question: " + domain.JoinViolations(e.Violations)
}

// Is lets callers match it against errors.Validation().
func (e *ValidationError) Is(target error) bool {
	return errors.ReasonOf(target) == errors.ReasonValidation
}

type buffer struct {
	text         string
	alternatives [Slots]string
	correct      string
}

func (b buffer) question() domain.Question {
	q := domain.Question{
		Text:               strings.TrimSpace(b.text),
		CorrectAlternative: strings.TrimSpace(b.correct),
	}
	for _, a := range b.alternatives {
		if a = strings.TrimSpace(a); a != "" {
			q.Alternatives = append(q.Alternatives, a)
		}
	}
	return q
}

func fromQuestion(q domain.Question) buffer {
	b := buffer{text: q.Text, correct: q.CorrectAlternative}
	copy(b.alternatives[:], q.Alternatives)
	return b
}

type Session struct {
	questions []domain.Question

	state State
	draft buffer

	editing   bool
	editIndex int
	edit      buffer
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) State() State {
	return s.state
}

// StartDraft opens an empty draft. An open draft is kept as is.
func (s *Session) StartDraft() {
	if s.state == StateDrafting {
		return
	}
	s.state = StateDrafting
	s.draft = buffer{}
}

func (s *Session) SetDraftText(text string) {
	s.StartDraft()
	s.draft.text = text
}

func (s *Session) SetAlternative(i int, v string) error {
	if err := checkSlot(i); err != nil {
		return err
	}
	s.StartDraft()
	s.draft.alternatives[i] = v
	return nil
}

func (s *Session) SetCorrectAlternative(v string) {
	s.StartDraft()
	s.draft.correct = v
}

// Draft returns the question the current draft would commit.
func (s *Session) Draft() domain.Question {
	return s.draft.question()
}

// CommitDraft appends the drafted question and returns to idle.
// On a validation failure the draft stays open and unchanged.
func (s *Session) CommitDraft() error {
	if s.state != StateDrafting {
		return errors.InvalidOperation(errors.WithMessagef("no draft to commit"))
	}

	q := s.draft.question()
	if vs := domain.ValidateQuestion(q); len(vs) > 0 {
		return &ValidationError{Violations: vs}
	}

	s.questions = append(s.questions, q)
	s.CancelDraft()
	return nil
}

func (s *Session) CancelDraft() {
	s.state = StateIdle
	s.draft = buffer{}
}

// StartEdit copies question i into a separate edit buffer.
func (s *Session) StartEdit(i int) error {
	if err := s.checkIndex(i); err != nil {
		return err
	}
	s.editing = true
	s.editIndex = i
	s.edit = fromQuestion(s.questions[i].Clone())
	return nil
}

func (s *Session) Editing() (int, bool) {
	return s.editIndex, s.editing
}

func (s *Session) SetEditText(text string) error {
	if !s.editing {
		return errNotEditing()
	}
	s.edit.text = text
	return nil
}

func (s *Session) SetEditAlternative(i int, v string) error {
	if !s.editing {
		return errNotEditing()
	}
	if err := checkSlot(i); err != nil {
		return err
	}
	s.edit.alternatives[i] = v
	return nil
}

func (s *Session) SetEditCorrectAlternative(v string) error {
	if !s.editing {
		return errNotEditing()
	}
	s.edit.correct = v
	return nil
}

// CommitEdit overwrites the edited question when the buffer is valid.
func (s *Session) CommitEdit() error {
	if !s.editing {
		return errNotEditing()
	}

	q := s.edit.question()
	if vs := domain.ValidateQuestion(q); len(vs) > 0 {
		return &ValidationError{Violations: vs}
	}

	s.questions[s.editIndex] = q
	s.CancelEdit()
	return nil
}

func (s *Session) CancelEdit() {
	s.editing = false
	s.editIndex = 0
	s.edit = buffer{}
}

// RemoveQuestion drops question i. An edit in progress on it is discarded.
func (s *Session) RemoveQuestion(i int) error {
	if err := s.checkIndex(i); err != nil {
		return err
	}

	if s.editing {
		switch {
		case s.editIndex == i:
			s.CancelEdit()
		case s.editIndex > i:
			s.editIndex--
		}
	}

	s.questions = append(s.questions[:i], s.questions[i+1:]...)
	return nil
}

// Questions returns a copy of the committed list.
func (s *Session) Questions() []domain.Question {
	out := make([]domain.Question, len(s.questions))
	for i, q := range s.questions {
		out[i] = q.Clone()
	}
	return out
}

func (s *Session) CanSubmit() bool {
	return len(s.questions) >= domain.MinQuestions
}

// Submission is what the authoring screen sends to the create endpoint.
type Submission struct {
	Questions  []domain.Question
	Plan       domain.Plan
	CustomID   string
	PreviousID string
	Theme      string
}

// Request builds the submission for the committed questions.
func (s *Session) Request(plan domain.Plan, customID, previousID, theme string) (Submission, error) {
	if !s.CanSubmit() {
		return Submission{}, errors.Validation(errors.WithMessagef(
			"a quiz needs at least %d questions, got %d", domain.MinQuestions, len(s.questions)))
	}

	return Submission{
		Questions:  s.Questions(),
		Plan:       plan,
		CustomID:   customID,
		PreviousID: previousID,
		Theme:      theme,
	}, nil
}

func (s *Session) checkIndex(i int) error {
	if i < 0 || i >= len(s.questions) {
		return errors.Validation(errors.WithMessagef("question index %d out of range [0,%d)", i, len(s.questions)))
	}
	return nil
}

func checkSlot(i int) error {
	if i < 0 || i >= Slots {
		return errors.Validation(errors.WithMessagef("alternative index %d out of range [0,%d]", i, Slots-1))
	}
	return nil
}

func errNotEditing() error {
	return errors.InvalidOperation(errors.WithMessagef("no question is being edited"))
}
