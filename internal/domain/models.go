package domain

import "time"

// QuestionType distinguishes the two CAT question formats. They differ only
// in the wrong-answer penalty.
type QuestionType string

const (
	// MCQ is a multiple-choice question; a wrong answer costs one mark.
	MCQ QuestionType = "MCQ"
	// FillIn is a type-in-the-answer question; wrong answers score zero.
	FillIn QuestionType = "FillIn"
)

// Section names, in paper order.
const (
	SectionVARC = "VARC"
	SectionDILR = "DILR"
	SectionQA   = "QA"
)

// SectionOrder is the fixed order sections appear in a test paper.
var SectionOrder = []string{SectionVARC, SectionDILR, SectionQA}

// Question is one entry of the catalogue. Identity is (section, number).
type Question struct {
	ID            string       `json:"id"` // "<section>_<number>"
	Section       string       `json:"section"`
	Number        int          `json:"number"`
	Type          QuestionType `json:"type"`
	Prompt        string       `json:"prompt,omitempty"`
	Options       []string     `json:"options,omitempty"` // MCQ only
	CorrectAnswer string       `json:"correctAnswer"`
	Explanation   string       `json:"explanation,omitempty"`
}

// TestSection is a named, ordered subset of a test's questions.
type TestSection struct {
	Name      string     `json:"name"`
	Questions []Question `json:"questions"`
}

// Test is an immutable paper from the catalogue.
type Test struct {
	Name     string        `json:"name"`
	Sections []TestSection `json:"sections"`
}

// Questions returns every question of the test in section order.
func (t Test) Questions() []Question {
	var out []Question
	for _, s := range t.Sections {
		out = append(out, s.Questions...)
	}
	return out
}

// QuestionCount returns the number of questions in the named section.
func (t Test) QuestionCount(section string) int {
	for _, s := range t.Sections {
		if s.Name == section {
			return len(s.Questions)
		}
	}
	return 0
}

// TestOverview is the listing view of a test: name plus per-section counts.
type TestOverview struct {
	Name           string         `json:"name"`
	SectionCounts  map[string]int `json:"sections"`
	TotalQuestions int            `json:"totalQuestions"`
}

// AnswerRecord is the stored submission for one question within an attempt.
// Later submissions to the same question overwrite the record wholesale.
type AnswerRecord struct {
	Value       string    `json:"value"`
	TimeSpent   int       `json:"timeSpentSeconds"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// FlagColor values accepted by the flag operation.
const (
	FlagRed    = "red"
	FlagYellow = "yellow"
	FlagGreen  = "green"
	FlagNone   = "none"
)

// SessionState is a caller-visible snapshot of a live attempt. It never
// aliases the session's internal maps.
type SessionState struct {
	SessionID      string                  `json:"sessionId"`
	UserID         string                  `json:"userId"`
	TestName       string                  `json:"testName"`
	Section        string                  `json:"section"`
	QuestionIndex  int                     `json:"questionIndex"`
	Answers        map[string]AnswerRecord `json:"answers"`
	Bookmarks      []string                `json:"bookmarks"`
	Flags          map[string]string       `json:"flags"`
	StartedAt      time.Time               `json:"startedAt"`
	TimeRemaining  int                     `json:"timeRemainingSeconds"` // clamped to 0 for display
	SectionBudgets map[string]int          `json:"perSectionBudgetSeconds"`
	Paused         bool                    `json:"paused"`
	PausedAt       time.Time               `json:"pausedAt"`
}

// PausedAttempt summarizes a paused session for the resume picker.
type PausedAttempt struct {
	SessionID     string    `json:"sessionId"`
	TestName      string    `json:"testName"`
	Section       string    `json:"section"`
	QuestionIndex int       `json:"questionIndex"`
	TimeRemaining int       `json:"timeRemainingSeconds"`
	PausedAt      time.Time `json:"pausedAt"`
	Answered      int       `json:"answered"`
	Bookmarks     int       `json:"bookmarks"`
	Flags         int       `json:"flags"`
}

// ScoredRecord is the per-question outcome derived from an attempt. One
// exists for every question of the test, answered or not.
type ScoredRecord struct {
	QuestionID    string       `json:"questionId"`
	Section       string       `json:"section"`
	Number        int          `json:"number"`
	Type          QuestionType `json:"type"`
	UserAnswer    string       `json:"userAnswer"`
	CorrectAnswer string       `json:"correctAnswer"`
	Marks         int          `json:"marks"`
	Correct       bool         `json:"correct"`
	TimeSpent     int          `json:"timeSpentSeconds"`
	Bookmarked    bool         `json:"bookmarked"`
	FlagColor     string       `json:"flagColor"`
	SubmittedAt   time.Time    `json:"submittedAt"`
}

// Attempted reports whether the question carries a submission.
func (r ScoredRecord) Attempted() bool {
	return r.UserAnswer != ""
}

// ArchivedAttempt is an immutable persisted snapshot of one attempt's
// scored records. Multiple archives may exist per (user, test); "latest"
// means maximum CreatedAt, ties broken by insertion order.
type ArchivedAttempt struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId"`
	TestName   string         `json:"testName"`
	CreatedAt  time.Time      `json:"createdAt"`
	Records    []ScoredRecord `json:"records"`
	TotalScore int            `json:"totalScore"`
}

// AggregateStats summarizes a user's history, keeping only the latest
// archive per distinct test name.
type AggregateStats struct {
	TotalTimeSeconds   int       `json:"totalTimeSeconds"`
	TestsCompleted     int       `json:"testsCompleted"`
	TotalAttempts      int       `json:"totalAttempts"` // including retakes
	AverageScore       float64   `json:"averageScore"`
	TestScores         []float64 `json:"testScores"`
	QuestionsAttempted int       `json:"questionsAttempted"`
	CorrectAnswers     int       `json:"correctAnswers"`
	LastTestAt         time.Time `json:"lastTestAt"`
}

// SectionTime aggregates recorded time for one section.
type SectionTime struct {
	TotalSeconds int     `json:"totalSeconds"`
	AvgSeconds   float64 `json:"avgSeconds"`
	Count        int     `json:"questionsWithTime"`
}

// TimeAnalysis summarizes where the attempt's time went. Only questions
// with recorded time contribute.
type TimeAnalysis struct {
	TotalSeconds   int                    `json:"totalSeconds"`
	AvgPerQuestion float64                `json:"avgPerQuestionSeconds"`
	AttemptedCount int                    `json:"attemptedCount"`
	PerSection     map[string]SectionTime `json:"perSection"`
}

// SectionInsight is the descriptive breakdown for one section. None of
// these figures feed back into marks.
type SectionInsight struct {
	Attempted  int     `json:"attempted"`
	Correct    int     `json:"correct"`
	Accuracy   float64 `json:"accuracyPercent"`
	TotalTime  int     `json:"totalTimeSeconds"`
	AvgTime    float64 `json:"avgTimeSeconds"`
	Efficiency float64 `json:"marksPerMinute"`
}

// TypeInsight is attempted/correct per question type.
type TypeInsight struct {
	Attempted int `json:"attempted"`
	Correct   int `json:"correct"`
}

// PerformanceInsights is the full descriptive breakdown of one attempt.
type PerformanceInsights struct {
	PerSection map[string]SectionInsight    `json:"perSection"`
	PerType    map[QuestionType]TypeInsight `json:"perQuestionType"`
}

// PerformanceSummary is the single object handed to both external
// renderers (narrative generator and document renderer). Both must see
// identical figures, so it is assembled in exactly one place.
type PerformanceSummary struct {
	UserID        string              `json:"userId"`
	TestName      string              `json:"testName"`
	AttemptedAt   time.Time           `json:"attemptedAt"`
	SectionScores map[string]int      `json:"sectionScores"`
	SectionMax    map[string]int      `json:"sectionMaxScores"` // derived from the catalogue
	TotalScore    int                 `json:"totalScore"`
	MaxScore      int                 `json:"maxPossibleScore"`
	TimeAnalysis  TimeAnalysis        `json:"timeAnalysis"`
	Insights      PerformanceInsights `json:"performanceInsights"`
	Records       []ScoredRecord      `json:"records"`
}

// SectionPercent returns the section score as a percentage of its maximum.
func (s PerformanceSummary) SectionPercent(section string) float64 {
	max := s.SectionMax[section]
	if max == 0 {
		return 0
	}
	return float64(s.SectionScores[section]) / float64(max) * 100
}
