package app

import (
	"context"
	"fmt"
	"sort"

	"mockexam-service/internal/domain"
)

// AnalyticsEngine derives time-efficiency and accuracy breakdowns from
// scored records and aggregate statistics from the archive. Everything
// here is descriptive; nothing feeds back into marks.
type AnalyticsEngine struct {
	archive ArchiveRepository
}

func NewAnalyticsEngine(archive ArchiveRepository) *AnalyticsEngine {
	return &AnalyticsEngine{archive: archive}
}

// ComputeTimeAnalysis summarizes recorded time. Only questions with
// time_spent > 0 contribute, and the per-question average divides by the
// attempted count, not the full question count.
func (a *AnalyticsEngine) ComputeTimeAnalysis(records []domain.ScoredRecord) domain.TimeAnalysis {
	analysis := domain.TimeAnalysis{
		PerSection: make(map[string]domain.SectionTime, len(domain.SectionOrder)),
	}
	for _, name := range domain.SectionOrder {
		analysis.PerSection[name] = domain.SectionTime{}
	}

	for _, rec := range records {
		if rec.TimeSpent <= 0 {
			continue
		}
		analysis.TotalSeconds += rec.TimeSpent
		if rec.Attempted() {
			analysis.AttemptedCount++
		}
		st := analysis.PerSection[rec.Section]
		st.TotalSeconds += rec.TimeSpent
		st.Count++
		analysis.PerSection[rec.Section] = st
	}

	if analysis.AttemptedCount > 0 {
		analysis.AvgPerQuestion = float64(analysis.TotalSeconds) / float64(analysis.AttemptedCount)
	}
	for name, st := range analysis.PerSection {
		if st.Count > 0 {
			st.AvgSeconds = float64(st.TotalSeconds) / float64(st.Count)
			analysis.PerSection[name] = st
		}
	}
	return analysis
}

// ComputePerformanceInsights breaks an attempt down by section and by
// question type: attempts, correctness, accuracy, time and marks-per-minute
// efficiency. Accuracy over zero attempts is zero, not NaN.
func (a *AnalyticsEngine) ComputePerformanceInsights(records []domain.ScoredRecord) domain.PerformanceInsights {
	insights := domain.PerformanceInsights{
		PerSection: make(map[string]domain.SectionInsight, len(domain.SectionOrder)),
		PerType: map[domain.QuestionType]domain.TypeInsight{
			domain.MCQ:    {},
			domain.FillIn: {},
		},
	}
	for _, name := range domain.SectionOrder {
		insights.PerSection[name] = domain.SectionInsight{}
	}

	for _, rec := range records {
		if !rec.Attempted() {
			continue
		}
		sec := insights.PerSection[rec.Section]
		sec.Attempted++
		sec.TotalTime += rec.TimeSpent
		if rec.Correct {
			sec.Correct++
		}
		insights.PerSection[rec.Section] = sec

		typ := insights.PerType[rec.Type]
		typ.Attempted++
		if rec.Correct {
			typ.Correct++
		}
		insights.PerType[rec.Type] = typ
	}

	for name, sec := range insights.PerSection {
		if sec.Attempted > 0 {
			sec.Accuracy = float64(sec.Correct) / float64(sec.Attempted) * 100
			sec.AvgTime = float64(sec.TotalTime) / float64(sec.Attempted)
		}
		if sec.TotalTime > 0 {
			sec.Efficiency = float64(sec.Correct*3) / (float64(sec.TotalTime) / 60)
		}
		insights.PerSection[name] = sec
	}
	return insights
}

// ComputeAggregate builds the user's history statistics from the latest
// archive per distinct test name. Retake attempts still count toward
// TotalAttempts but only the newest snapshot per test contributes marks,
// time and correctness.
func (a *AnalyticsEngine) ComputeAggregate(ctx context.Context, userID string) (domain.AggregateStats, error) {
	all, err := a.archive.ListForUser(ctx, userID)
	if err != nil {
		return domain.AggregateStats{}, err
	}
	latest, err := a.archive.LatestByTest(ctx, userID)
	if err != nil {
		return domain.AggregateStats{}, err
	}

	stats := domain.AggregateStats{
		TestsCompleted: len(latest),
		TotalAttempts:  len(all),
	}

	names := make([]string, 0, len(latest))
	for name := range latest {
		names = append(names, name)
	}
	sort.Strings(names)

	var scoreSum float64
	for _, name := range names {
		attempt := latest[name]
		score := float64(attempt.TotalScore)
		stats.TestScores = append(stats.TestScores, score)
		scoreSum += score

		for _, rec := range attempt.Records {
			stats.TotalTimeSeconds += rec.TimeSpent
			if rec.Attempted() {
				stats.QuestionsAttempted++
			}
			if rec.Correct {
				stats.CorrectAnswers++
			}
		}
		if attempt.CreatedAt.After(stats.LastTestAt) {
			stats.LastTestAt = attempt.CreatedAt
		}
	}
	if len(stats.TestScores) > 0 {
		stats.AverageScore = scoreSum / float64(len(stats.TestScores))
	}
	return stats, nil
}

// FormatDuration renders seconds the way the report templates expect:
// "45 secs", "12 mins 30 secs", "2h 05m".
func FormatDuration(seconds int) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%d secs", seconds)
	case seconds < 3600:
		mins, secs := seconds/60, seconds%60
		if secs == 0 {
			return fmt.Sprintf("%d mins", mins)
		}
		return fmt.Sprintf("%d mins %d secs", mins, secs)
	default:
		return fmt.Sprintf("%dh %02dm", seconds/3600, (seconds%3600)/60)
	}
}
