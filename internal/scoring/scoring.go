// Package scoring implements the CAT marking scheme: +3 for a correct
// answer, -1 for a wrong MCQ, 0 for a wrong fill-in or an unattempted
// question. The scheme is a fixed domain constant, not configuration.
package scoring

import (
	"strings"

	"mockexam-service/internal/domain"
)

// Marks per outcome.
const (
	MarksCorrect     = 3
	MarksWrongMCQ    = -1
	MarksPerQuestion = MarksCorrect // max obtainable per question
)

// Score grades a single submission against a question. An empty submission
// counts as unattempted. Comparison is case-insensitive and trimmed.
func Score(q domain.Question, submitted string) (marks int, correct bool) {
	submitted = strings.TrimSpace(submitted)
	if submitted == "" {
		return 0, false
	}
	if strings.EqualFold(submitted, strings.TrimSpace(q.CorrectAnswer)) {
		return MarksCorrect, true
	}
	if q.Type == domain.MCQ {
		return MarksWrongMCQ, false
	}
	return 0, false
}

// ScoreAttempt produces exactly one ScoredRecord per question of the test,
// covering unattempted questions with zero marks. Iterating the full test
// (not just the answered map) is what keeps "questions attempted" and
// "max possible score" derivable downstream.
func ScoreAttempt(state domain.SessionState, test domain.Test) []domain.ScoredRecord {
	bookmarked := make(map[string]bool, len(state.Bookmarks))
	for _, id := range state.Bookmarks {
		bookmarked[id] = true
	}

	var records []domain.ScoredRecord
	for _, sec := range test.Sections {
		for _, q := range sec.Questions {
			rec := domain.ScoredRecord{
				QuestionID:    q.ID,
				Section:       q.Section,
				Number:        q.Number,
				Type:          q.Type,
				CorrectAnswer: q.CorrectAnswer,
				Bookmarked:    bookmarked[q.ID],
				FlagColor:     domain.FlagNone,
			}
			if color, ok := state.Flags[q.ID]; ok {
				rec.FlagColor = color
			}
			if ans, ok := state.Answers[q.ID]; ok {
				rec.UserAnswer = strings.TrimSpace(ans.Value)
				rec.TimeSpent = ans.TimeSpent
				rec.SubmittedAt = ans.SubmittedAt
			}
			rec.Marks, rec.Correct = Score(q, rec.UserAnswer)
			records = append(records, rec)
		}
	}
	return records
}

// Total sums the marks of a scored record set.
func Total(records []domain.ScoredRecord) int {
	total := 0
	for _, r := range records {
		total += r.Marks
	}
	return total
}

// SectionTotals returns the marks subtotal per section.
func SectionTotals(records []domain.ScoredRecord) map[string]int {
	totals := make(map[string]int)
	for _, r := range records {
		totals[r.Section] += r.Marks
	}
	return totals
}

// MaxSectionMarks derives the maximum obtainable marks per section from the
// catalogue: three marks per question. Nothing is hardcoded per paper.
func MaxSectionMarks(test domain.Test) map[string]int {
	max := make(map[string]int, len(test.Sections))
	for _, sec := range test.Sections {
		max[sec.Name] = len(sec.Questions) * MarksPerQuestion
	}
	return max
}

// MaxTotalMarks derives the maximum obtainable total for a test.
func MaxTotalMarks(test domain.Test) int {
	total := 0
	for _, sec := range test.Sections {
		total += len(sec.Questions) * MarksPerQuestion
	}
	return total
}
