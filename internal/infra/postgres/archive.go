package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"mockexam-service/internal/domain"
)

// archivedAttemptRow is the bun model for one archive snapshot header. The
// serial seq column records insertion order and is the deterministic
// tie-break when two snapshots share a creation timestamp.
type archivedAttemptRow struct {
	bun.BaseModel `bun:"table:archived_attempts"`

	ID         string    `bun:"id,pk"`
	Seq        int64     `bun:"seq,autoincrement,scanonly"`
	UserID     string    `bun:"user_id,notnull"`
	TestName   string    `bun:"test_name,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
	TotalScore int       `bun:"total_score,notnull"`

	Records []archivedRecordRow `bun:"rel:has-many,join:id=attempt_id"`
}

// archivedRecordRow is one question's outcome inside a snapshot; a snapshot
// carries one row per question of the test, answered or not.
type archivedRecordRow struct {
	bun.BaseModel `bun:"table:archived_records"`

	ID             int64     `bun:"id,pk,autoincrement"`
	AttemptID      string    `bun:"attempt_id,notnull"`
	QuestionID     string    `bun:"question_id,notnull"`
	Section        string    `bun:"section,notnull"`
	QuestionNumber int       `bun:"question_number,notnull"`
	QuestionType   string    `bun:"question_type,notnull"`
	UserAnswer     string    `bun:"user_answer"`
	CorrectAnswer  string    `bun:"correct_answer"`
	Marks          int       `bun:"marks,notnull"`
	Correct        bool      `bun:"correct,notnull"`
	TimeSpent      int       `bun:"time_spent,notnull"`
	Bookmarked     bool      `bun:"bookmarked,notnull"`
	FlagColor      string    `bun:"flag_color,notnull"`
	SubmittedAt    time.Time `bun:"submitted_at,nullzero"`
}

// Archive persists archive snapshots in Postgres via bun. Each Save runs
// in one transaction, so a partially-written snapshot is never visible to
// readers.
type Archive struct {
	db *bun.DB
}

func NewArchive(db *bun.DB) *Archive {
	return &Archive{db: db}
}

func (a *Archive) Save(ctx context.Context, attempt domain.ArchivedAttempt) (string, error) {
	header := archivedAttemptRow{
		ID:         attempt.ID,
		UserID:     attempt.UserID,
		TestName:   attempt.TestName,
		CreatedAt:  attempt.CreatedAt,
		TotalScore: attempt.TotalScore,
	}
	records := make([]archivedRecordRow, 0, len(attempt.Records))
	for _, rec := range attempt.Records {
		records = append(records, archivedRecordRow{
			AttemptID:      attempt.ID,
			QuestionID:     rec.QuestionID,
			Section:        rec.Section,
			QuestionNumber: rec.Number,
			QuestionType:   string(rec.Type),
			UserAnswer:     rec.UserAnswer,
			CorrectAnswer:  rec.CorrectAnswer,
			Marks:          rec.Marks,
			Correct:        rec.Correct,
			TimeSpent:      rec.TimeSpent,
			Bookmarked:     rec.Bookmarked,
			FlagColor:      rec.FlagColor,
			SubmittedAt:    rec.SubmittedAt,
		})
	}

	err := a.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&header).Exec(ctx); err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}
		if len(records) > 0 {
			if _, err := tx.NewInsert().Model(&records).Exec(ctx); err != nil {
				return fmt.Errorf("insert records: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return attempt.ID, nil
}

func (a *Archive) ListForUser(ctx context.Context, userID string) ([]domain.ArchivedAttempt, error) {
	var rows []archivedAttemptRow
	err := a.db.NewSelect().
		Model(&rows).
		Relation("Records", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("id ASC") // preserves test question order
		}).
		Where("user_id = ?", userID).
		Order("seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select attempts: %w", err)
	}
	if len(rows) == 0 {
		return nil, domain.ErrNoArchiveForUser
	}

	attempts := make([]domain.ArchivedAttempt, 0, len(rows))
	for _, row := range rows {
		attempts = append(attempts, toDomain(row))
	}
	return attempts, nil
}

func (a *Archive) LatestByTest(ctx context.Context, userID string) (map[string]domain.ArchivedAttempt, error) {
	attempts, err := a.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Rows arrive in insertion order; a later row with an equal timestamp
	// wins, matching the documented tie-break.
	latest := make(map[string]domain.ArchivedAttempt)
	for _, attempt := range attempts {
		current, seen := latest[attempt.TestName]
		if !seen || !attempt.CreatedAt.Before(current.CreatedAt) {
			latest[attempt.TestName] = attempt
		}
	}
	return latest, nil
}

func toDomain(row archivedAttemptRow) domain.ArchivedAttempt {
	records := make([]domain.ScoredRecord, 0, len(row.Records))
	for _, rec := range row.Records {
		records = append(records, domain.ScoredRecord{
			QuestionID:    rec.QuestionID,
			Section:       rec.Section,
			Number:        rec.QuestionNumber,
			Type:          domain.QuestionType(rec.QuestionType),
			UserAnswer:    rec.UserAnswer,
			CorrectAnswer: rec.CorrectAnswer,
			Marks:         rec.Marks,
			Correct:       rec.Correct,
			TimeSpent:     rec.TimeSpent,
			Bookmarked:    rec.Bookmarked,
			FlagColor:     rec.FlagColor,
			SubmittedAt:   rec.SubmittedAt,
		})
	}
	return domain.ArchivedAttempt{
		ID:         row.ID,
		UserID:     row.UserID,
		TestName:   row.TestName,
		CreatedAt:  row.CreatedAt,
		Records:    records,
		TotalScore: row.TotalScore,
	}
}
