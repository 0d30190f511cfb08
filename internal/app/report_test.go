package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"mockexam-service/internal/domain"
	"mockexam-service/internal/infra/memory"
)

func newReportFixture(t *testing.T) (*ReportFacade, *memory.Archive) {
	t.Helper()
	catalogue := memory.NewCatalogueRepository(memory.NewStaticCatalogueLoader(sampleCatalogue()), time.Hour)
	archive := memory.NewArchive()
	return NewReportFacade(catalogue, archive, NewAnalyticsEngine(archive)), archive
}

func TestBuildSummaryNoHistory(t *testing.T) {
	facade, _ := newReportFixture(t)
	_, err := facade.BuildSummary(context.Background(), "nobody")
	if !errors.Is(err, domain.ErrNoArchiveForUser) {
		t.Fatalf("err = %v, want ErrNoArchiveForUser", err)
	}
}

func TestBuildSummaryPicksNewestAttempt(t *testing.T) {
	facade, archive := newReportFixture(t)
	ctx := context.Background()

	t1 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	if _, err := archive.Save(ctx, domain.ArchivedAttempt{
		ID: "a1", UserID: "u1", TestName: "Mock-2", CreatedAt: t1,
		Records: []domain.ScoredRecord{
			{QuestionID: "QA_1", Section: domain.SectionQA, Type: domain.FillIn, UserAnswer: "7", Marks: 3, Correct: true, TimeSpent: 30},
		},
		TotalScore: 3,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := archive.Save(ctx, domain.ArchivedAttempt{
		ID: "a2", UserID: "u1", TestName: "Mock-1", CreatedAt: t1.Add(time.Hour),
		Records: []domain.ScoredRecord{
			{QuestionID: "VARC_1", Section: domain.SectionVARC, Type: domain.MCQ, UserAnswer: "B", Marks: 3, Correct: true, TimeSpent: 60},
			{QuestionID: "VARC_2", Section: domain.SectionVARC, Type: domain.FillIn, UserAnswer: "41", TimeSpent: 90},
			{QuestionID: "DILR_1", Section: domain.SectionDILR, Type: domain.MCQ, UserAnswer: "C", Marks: -1, TimeSpent: 45},
		},
		TotalScore: 2,
	}); err != nil {
		t.Fatal(err)
	}

	summary, err := facade.BuildSummary(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if summary.TestName != "Mock-1" {
		t.Fatalf("test = %s, want the newer Mock-1 attempt", summary.TestName)
	}
	if summary.TotalScore != 2 {
		t.Fatalf("total = %d, want 2", summary.TotalScore)
	}
	// Maxima come from the catalogue, never hardcoded.
	if summary.SectionMax[domain.SectionVARC] != 6 || summary.SectionMax[domain.SectionDILR] != 3 {
		t.Fatalf("section maxima = %v, want VARC 6, DILR 3", summary.SectionMax)
	}
	if summary.MaxScore != 9 {
		t.Fatalf("max score = %d, want 9", summary.MaxScore)
	}
	if summary.SectionScores[domain.SectionVARC] != 3 || summary.SectionScores[domain.SectionDILR] != -1 {
		t.Fatalf("section scores = %v, want VARC 3, DILR -1", summary.SectionScores)
	}
	if summary.TimeAnalysis.TotalSeconds != 195 {
		t.Fatalf("time = %d, want 195", summary.TimeAnalysis.TotalSeconds)
	}
	if got := summary.SectionPercent(domain.SectionVARC); got != 50 {
		t.Fatalf("VARC percent = %.1f, want 50", got)
	}
}

func TestBuildSummaryEqualTimestampsDeterministic(t *testing.T) {
	// Latest archives of two different tests with the same timestamp must
	// always produce the same pick, whatever the map iteration order.
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		facade, archive := newReportFixture(t)
		ctx := context.Background()

		for _, save := range []domain.ArchivedAttempt{
			{ID: "a1", UserID: "u1", TestName: "Mock-1", CreatedAt: at,
				Records: []domain.ScoredRecord{{QuestionID: "VARC_1", Section: domain.SectionVARC, Type: domain.MCQ, UserAnswer: "B", Marks: 3, Correct: true}}},
			{ID: "a2", UserID: "u1", TestName: "Mock-2", CreatedAt: at,
				Records: []domain.ScoredRecord{{QuestionID: "QA_1", Section: domain.SectionQA, Type: domain.FillIn, UserAnswer: "7", Marks: 3, Correct: true}}},
		} {
			if _, err := archive.Save(ctx, save); err != nil {
				t.Fatal(err)
			}
		}

		summary, err := facade.BuildSummary(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if summary.TestName != "Mock-2" {
			t.Fatalf("iteration %d picked %s, want the stable tie-break Mock-2", i, summary.TestName)
		}
	}
}

func TestBuildSummaryForAttemptUnknownTest(t *testing.T) {
	facade, _ := newReportFixture(t)
	_, err := facade.BuildSummaryForAttempt(context.Background(), domain.ArchivedAttempt{
		ID: "a1", UserID: "u1", TestName: "Mock-99",
	})
	if !errors.Is(err, domain.ErrTestNotFound) {
		t.Fatalf("err = %v, want ErrTestNotFound", err)
	}
}
