package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is the generic lookup failure for entities without a dedicated error.
	ErrNotFound = errors.New("not found")
	// ErrFormNotFound indicates the form could not be loaded from the catalog.
	ErrFormNotFound = errors.New("form not found")
	// ErrQuestionNotFound indicates a question id that does not belong to the form.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAlternativeNotFound indicates a selected alternative id that does not exist.
	ErrAlternativeNotFound = errors.New("alternative not found")
	// ErrResponseGroupNotFound indicates the response group was cancelled or never existed.
	ErrResponseGroupNotFound = errors.New("response group not found")
	// ErrSubmissionNotFound indicates no ledger exists for the (form, respondent) pair.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrClassNotFound is returned by directories for unknown classes or instructors.
	ErrClassNotFound = errors.New("class not found")
	// ErrRespondentNotFound is returned by identity providers for unknown respondents.
	ErrRespondentNotFound = errors.New("respondent not found")

	// ErrFormClosed is returned when a form is inactive or outside its answer window.
	ErrFormClosed = errors.New("form is inactive or outside its answer window")
	// ErrRoleNotPermitted is returned when the respondent's role is not a target of the form.
	ErrRoleNotPermitted = errors.New("role is not permitted to answer this form")
	// ErrAlreadySubmitted is returned when a finished, non-editable submission exists.
	ErrAlreadySubmitted = errors.New("form already answered and editing is not allowed")
	// ErrAlreadyFinalized is returned when a terminal transition already happened.
	ErrAlreadyFinalized = errors.New("submission already finalized")
	// ErrSessionActive is returned when another connection is answering the same response group.
	ErrSessionActive = errors.New("response group is open in another session")
	// ErrInvalidAnswerShape is returned when a payload does not fit the question type.
	ErrInvalidAnswerShape = errors.New("invalid answer shape")
	// ErrMissingRequiredAnswers is matched by MissingRequiredAnswersError.
	ErrMissingRequiredAnswers = errors.New("required questions are unanswered")
	// ErrInvalidRole is returned by ParseRole.
	ErrInvalidRole = errors.New("invalid role")
	// ErrInvalidQuestionType is returned by ParseQuestionType.
	ErrInvalidQuestionType = errors.New("invalid question type")
)

// MissingRequiredAnswersError lists the required questions left without a non-empty answer.
type MissingRequiredAnswersError struct {
	QuestionIDs []string
}

func (e *MissingRequiredAnswersError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingRequiredAnswers.Error(), strings.Join(e.QuestionIDs, ", "))
}

// Is makes errors.Is(err, ErrMissingRequiredAnswers) hold.
func (e *MissingRequiredAnswersError) Is(target error) bool {
	return target == ErrMissingRequiredAnswers
}

// MissingQuestions extracts the unanswered question ids from err, if any.
func MissingQuestions(err error) ([]string, bool) {
	var missing *MissingRequiredAnswersError
	if errors.As(err, &missing) {
		return missing.QuestionIDs, true
	}
	return nil, false
}

// IsNotFound reports whether err is one of the lookup failures.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrFormNotFound) ||
		errors.Is(err, ErrQuestionNotFound) ||
		errors.Is(err, ErrAlternativeNotFound) ||
		errors.Is(err, ErrResponseGroupNotFound) ||
		errors.Is(err, ErrSubmissionNotFound) ||
		errors.Is(err, ErrClassNotFound) ||
		errors.Is(err, ErrRespondentNotFound)
}

// IsConflict reports whether err is a state conflict with an existing submission.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadySubmitted) ||
		errors.Is(err, ErrAlreadyFinalized) ||
		errors.Is(err, ErrFormClosed) ||
		errors.Is(err, ErrSessionActive)
}

// IsValidation reports whether err rejects the caller's input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAnswerShape) ||
		errors.Is(err, ErrMissingRequiredAnswers) ||
		errors.Is(err, ErrInvalidRole) ||
		errors.Is(err, ErrInvalidQuestionType)
}
