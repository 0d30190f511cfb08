package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"mockexam-service/internal/app"
	"mockexam-service/internal/domain"
	"mockexam-service/internal/infra/memory"
	pg "mockexam-service/internal/infra/postgres"
	pgmigrations "mockexam-service/internal/infra/postgres/migrations"
	infraredis "mockexam-service/internal/infra/redis"
)

func TestAttemptLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := bunDB(t, pgURL)
	seedCatalogue(t, ctx, db, sampleTest())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	catalogue := memory.NewCatalogueRepository(pg.NewCatalogueLoader(pool), 5*time.Minute)
	archive := pg.NewArchive(db)
	snapshots := infraredis.NewSnapshotStore(redisClient, 5*time.Minute)
	service := app.NewSessionService(catalogue, archive, snapshots, app.WithFlushInterval(time.Hour))
	defer service.Close()

	state, err := service.Start(ctx, "u1", "Mock-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := service.Answer(ctx, state.SessionID, "VARC_1", "B", 45); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := service.Answer(ctx, state.SessionID, "DILR_1", "C", 30); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := service.Bookmark(ctx, state.SessionID, "VARC_2", true); err != nil {
		t.Fatalf("bookmark: %v", err)
	}

	paused, err := service.Pause(ctx, state.SessionID)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !paused.Paused {
		t.Fatalf("expected paused state, got %+v", paused)
	}

	// Pause archives the scored attempt in Postgres.
	latest, err := archive.LatestByTest(ctx, "u1")
	if err != nil {
		t.Fatalf("latest by test: %v", err)
	}
	attempt, ok := latest["Mock-1"]
	if !ok {
		t.Fatalf("no archive for Mock-1: %v", latest)
	}
	if attempt.TotalScore != 2 { // +3 correct MCQ, -1 wrong MCQ
		t.Fatalf("total score = %d, want 2", attempt.TotalScore)
	}
	if len(attempt.Records) != 3 {
		t.Fatalf("records = %d, want one per question", len(attempt.Records))
	}
	for _, rec := range attempt.Records {
		if rec.QuestionID == "VARC_2" && !rec.Bookmarked {
			t.Fatalf("bookmark lost in archive: %+v", rec)
		}
	}

	// A second save of the same paper supersedes the first.
	if _, err := service.Resume(ctx, state.SessionID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := service.Answer(ctx, state.SessionID, "VARC_2", "42", 60); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := service.SaveNow(ctx, state.SessionID); err != nil {
		t.Fatalf("save now: %v", err)
	}
	latest, err = archive.LatestByTest(ctx, "u1")
	if err != nil {
		t.Fatalf("latest by test: %v", err)
	}
	if latest["Mock-1"].TotalScore != 5 {
		t.Fatalf("superseding total = %d, want 5", latest["Mock-1"].TotalScore)
	}
	all, err := archive.ListForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("attempts = %d, want append-only history of 2", len(all))
	}

	// A restarted process rehydrates the live session from Redis.
	if err := service.FlushAll(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	service.Close()

	restarted := app.NewSessionService(catalogue, archive, snapshots, app.WithFlushInterval(time.Hour))
	defer restarted.Close()
	n, err := restarted.Rehydrate(ctx)
	if err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if n != 1 {
		t.Fatalf("rehydrated = %d, want 1", n)
	}
	got, err := restarted.State(ctx, state.SessionID)
	if err != nil {
		t.Fatalf("state after rehydrate: %v", err)
	}
	if got.Answers["VARC_2"].Value != "42" {
		t.Fatalf("rehydrated answers = %+v, want VARC_2=42", got.Answers)
	}

	// Reports read the same archive.
	analytics := app.NewAnalyticsEngine(archive)
	summary, err := app.NewReportFacade(catalogue, archive, analytics).BuildSummary(ctx, "u1")
	if err != nil {
		t.Fatalf("build summary: %v", err)
	}
	if summary.TotalScore != 5 || summary.MaxScore != 9 {
		t.Fatalf("summary = %d/%d, want 5/9", summary.TotalScore, summary.MaxScore)
	}
	if _, err := app.NewReportFacade(catalogue, archive, analytics).BuildSummary(ctx, "nobody"); !errors.Is(err, domain.ErrNoArchiveForUser) {
		t.Fatalf("err = %v, want ErrNoArchiveForUser", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "exam", "POSTGRES_PASSWORD": "exampass", "POSTGRES_DB": "examdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://exam:exampass@%s:%s/examdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func bunDB(t *testing.T, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedCatalogue(t *testing.T, ctx context.Context, db *bun.DB, test domain.Test) {
	t.Helper()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(test)
	if err != nil {
		t.Fatalf("marshal test: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO tests (name, data) VALUES (?, ?::jsonb) ON CONFLICT (name) DO UPDATE SET data=EXCLUDED.data`, test.Name, string(data)); err != nil {
		t.Fatalf("insert test: %v", err)
	}
}

func sampleTest() domain.Test {
	return domain.Test{
		Name: "Mock-1",
		Sections: []domain.TestSection{
			{
				Name: domain.SectionVARC,
				Questions: []domain.Question{
					{ID: "VARC_1", Section: domain.SectionVARC, Number: 1, Type: domain.MCQ, Prompt: "Pick the odd one out.", Options: []string{"A", "B", "C", "D"}, CorrectAnswer: "B"},
					{ID: "VARC_2", Section: domain.SectionVARC, Number: 2, Type: domain.FillIn, Prompt: "6 times 7?", CorrectAnswer: "42"},
				},
			},
			{
				Name: domain.SectionDILR,
				Questions: []domain.Question{
					{ID: "DILR_1", Section: domain.SectionDILR, Number: 1, Type: domain.MCQ, Prompt: "Which chart fits?", Options: []string{"A", "B", "C", "D"}, CorrectAnswer: "A"},
				},
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
