package domain

import (
	"fmt"
	"strings"

	"github.com/victornm/quizinho/internal/errors"
)

// Violation names one broken Question constraint.
type Violation string

const (
	ViolationEmptyText           Violation = "question text is empty"
	ViolationTooFewAlternatives  Violation = "fewer than 2 alternatives"
	ViolationTooManyAlternatives Violation = "more than 4 alternatives"
	ViolationEmptyAlternative    Violation = "an alternative is empty"
	ViolationDuplicateAlt        Violation = "alternatives are not distinct"
	ViolationNoCorrect           Violation = "correct alternative is not set"
	ViolationCorrectNotListed    Violation = "correct alternative is not one of the alternatives"
)

// ValidateQuestion returns every constraint q breaks, or nil if q is valid.
func ValidateQuestion(q Question) []Violation {
	var vs []Violation

	if strings.TrimSpace(q.Text) == "" {
		vs = append(vs, ViolationEmptyText)
	}

	switch n := len(q.Alternatives); {
	case n < MinAlternatives:
		vs = append(vs, ViolationTooFewAlternatives)
	case n > MaxAlternatives:
		vs = append(vs, ViolationTooManyAlternatives)
	}

	seen := make(map[string]struct{}, len(q.Alternatives))
	empty, dup := false, false
	for _, a := range q.Alternatives {
		if strings.TrimSpace(a) == "" {
			empty = true
			continue
		}
		if _, ok := seen[a]; ok {
			dup = true
		}
		seen[a] = struct{}{}
	}
	if empty {
		vs = append(vs, ViolationEmptyAlternative)
	}
	if dup {
		vs = append(vs, ViolationDuplicateAlt)
	}

	if q.CorrectAlternative == "" {
		vs = append(vs, ViolationNoCorrect)
	} else if _, ok := seen[q.CorrectAlternative]; !ok {
		vs = append(vs, ViolationCorrectNotListed)
	}

	return vs
}

func IsValidQuestion(q Question) bool {
	return len(ValidateQuestion(q)) == 0
}

// ValidateQuestions checks a whole quiz body and reports the first invalid question.
func ValidateQuestions(qs []Question) error {
	if len(qs) < MinQuestions {
		return errors.Validation(errors.WithMessagef("a quiz needs at least %d questions, got %d", MinQuestions, len(qs)))
	}

	for i, q := range qs {
		if vs := ValidateQuestion(q); len(vs) > 0 {
			return errors.Validation(errors.WithMessagef("question %d is invalid: %s", i+1, JoinViolations(vs)))
		}
	}

	return nil
}

func JoinViolations(vs []Violation) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = string(v)
	}
	return strings.Join(parts, "; ")
}

// Clone returns a deep copy, so edit buffers never alias a committed question.
func (q Question) Clone() Question {
	c := q
	c.Alternatives = append([]string(nil), q.Alternatives...)
	return c
}

func (q Question) String() string {
	return fmt.Sprintf("%q %v (correct: %q)", q.Text, q.Alternatives, q.CorrectAlternative)
}
