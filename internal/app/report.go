package app

import (
	"context"
	"sort"

	"mockexam-service/internal/domain"
	"mockexam-service/internal/scoring"
)

// ReportFacade assembles the PerformanceSummary consumed by the external
// narrative generator and document renderer. It is the single seam between
// the core and both renderers, so they are always fed identical figures.
type ReportFacade struct {
	catalogue CatalogueRepository
	archive   ArchiveRepository
	analytics *AnalyticsEngine
}

func NewReportFacade(catalogue CatalogueRepository, archive ArchiveRepository, analytics *AnalyticsEngine) *ReportFacade {
	return &ReportFacade{catalogue: catalogue, archive: archive, analytics: analytics}
}

// BuildSummary builds the summary for the user's most recent archived
// attempt (latest archive timestamp across all tests). Returns
// ErrNoArchiveForUser when the user has no history; callers usually treat
// that as an empty state rather than a failure.
func (f *ReportFacade) BuildSummary(ctx context.Context, userID string) (domain.PerformanceSummary, error) {
	latest, err := f.archive.LatestByTest(ctx, userID)
	if err != nil {
		return domain.PerformanceSummary{}, err
	}

	// Iterate in sorted test-name order so an equal-timestamp tie always
	// resolves the same way regardless of map iteration order.
	names := make([]string, 0, len(latest))
	for name := range latest {
		names = append(names, name)
	}
	sort.Strings(names)

	var newest domain.ArchivedAttempt
	for _, name := range names {
		attempt := latest[name]
		if newest.ID == "" || !attempt.CreatedAt.Before(newest.CreatedAt) {
			newest = attempt
		}
	}
	if newest.ID == "" {
		return domain.PerformanceSummary{}, domain.ErrNoArchiveForUser
	}
	return f.BuildSummaryForAttempt(ctx, newest)
}

// BuildSummaryForAttempt merges one attempt's section scores, the
// catalogue-derived section maxima, time analysis and performance insights
// into a single summary value.
func (f *ReportFacade) BuildSummaryForAttempt(ctx context.Context, attempt domain.ArchivedAttempt) (domain.PerformanceSummary, error) {
	test, err := f.catalogue.FindTest(ctx, attempt.TestName)
	if err != nil {
		return domain.PerformanceSummary{}, err
	}

	return domain.PerformanceSummary{
		UserID:        attempt.UserID,
		TestName:      attempt.TestName,
		AttemptedAt:   attempt.CreatedAt,
		SectionScores: scoring.SectionTotals(attempt.Records),
		SectionMax:    scoring.MaxSectionMarks(test),
		TotalScore:    scoring.Total(attempt.Records),
		MaxScore:      scoring.MaxTotalMarks(test),
		TimeAnalysis:  f.analytics.ComputeTimeAnalysis(attempt.Records),
		Insights:      f.analytics.ComputePerformanceInsights(attempt.Records),
		Records:       attempt.Records,
	}, nil
}
