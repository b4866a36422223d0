package domain

import "sort"

// Selection is a learner's answer to one question. It has exactly two shapes,
// SingleSelection and MultiSelection; values are immutable.
type Selection interface {
	// With returns the selection after the learner picks optionID.
	With(optionID string) Selection
	// Empty reports whether nothing is selected.
	Empty() bool
	// Contains reports whether optionID is selected.
	Contains(optionID string) bool
	// OptionIDs lists the selected options in lexical order.
	OptionIDs() []string

	sealed()
}

// SingleSelection holds at most one option; picking another replaces it.
type SingleSelection struct {
	OptionID string
}

func (s SingleSelection) With(optionID string) Selection { return SingleSelection{OptionID: optionID} }
func (s SingleSelection) Empty() bool                    { return s.OptionID == "" }
func (s SingleSelection) Contains(optionID string) bool {
	return optionID != "" && s.OptionID == optionID
}
func (SingleSelection) sealed() {}

func (s SingleSelection) OptionIDs() []string {
	if s.OptionID == "" {
		return nil
	}
	return []string{s.OptionID}
}

// MultiSelection is a set of options; picking an option toggles it.
type MultiSelection struct {
	set map[string]struct{}
}

// NewMultiSelection builds a set from ids.
func NewMultiSelection(ids ...string) MultiSelection {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return MultiSelection{set: set}
}

func (m MultiSelection) With(optionID string) Selection {
	next := make(map[string]struct{}, len(m.set)+1)
	for id := range m.set {
		next[id] = struct{}{}
	}
	if _, ok := next[optionID]; ok {
		delete(next, optionID)
	} else {
		next[optionID] = struct{}{}
	}
	return MultiSelection{set: next}
}

func (m MultiSelection) Empty() bool { return len(m.set) == 0 }

func (m MultiSelection) Contains(optionID string) bool {
	_, ok := m.set[optionID]
	return ok
}

func (m MultiSelection) OptionIDs() []string {
	if len(m.set) == 0 {
		return nil
	}
	ids := make([]string, 0, len(m.set))
	for id := range m.set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (MultiSelection) sealed() {}

// AnswerEntry is the wire form of one answer. Unanswered questions carry null in both fields.
type AnswerEntry struct {
	QuestionID        string   `json:"questionId"`
	SelectedOptionID  *string  `json:"selectedOptionId"`
	SelectedOptionIDs []string `json:"selectedOptionIds"`
}

// Submission is the payload sent to the grading endpoint.
type Submission struct {
	Answers []AnswerEntry `json:"answers"`
}

// NewAnswerEntry serializes sel for question q. Multi selections are emitted in the question's option order.
func NewAnswerEntry(q Question, sel Selection) AnswerEntry {
	entry := AnswerEntry{QuestionID: q.ID}
	switch v := sel.(type) {
	case nil:
	case SingleSelection:
		if !v.Empty() {
			id := v.OptionID
			entry.SelectedOptionID = &id
		}
	case MultiSelection:
		if !v.Empty() {
			ids := make([]string, 0, len(v.set))
			for _, opt := range q.Options {
				if v.Contains(opt.ID) {
					ids = append(ids, opt.ID)
				}
			}
			entry.SelectedOptionIDs = ids
		}
	}
	return entry
}

// BuildSubmission emits one entry per question in definition order.
func BuildSubmission(quiz QuizDefinition, answers map[string]Selection) Submission {
	entries := make([]AnswerEntry, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		entries = append(entries, NewAnswerEntry(q, answers[q.ID]))
	}
	return Submission{Answers: entries}
}

// Selected returns the ids carried by an entry regardless of its shape.
func (e AnswerEntry) Selected() []string {
	if e.SelectedOptionID != nil {
		return []string{*e.SelectedOptionID}
	}
	return e.SelectedOptionIDs
}
