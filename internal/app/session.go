package app

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mockexam-service/internal/domain"
	"mockexam-service/internal/scoring"
)

// Time budgets in seconds. The per-section budgets are informational; the
// core tracks but does not enforce them.
const (
	TotalBudgetSeconds   = 120 * 60
	SectionBudgetSeconds = 40 * 60
)

const defaultFlushInterval = 30 * time.Second

// SessionService owns the live test attempts: one non-paused attempt per
// user, mutated by answer/bookmark/flag operations and the pause/resume
// transitions. Completed or paused attempts are scored and written to the
// archive; the full live map is flushed periodically to the snapshot store.
type SessionService struct {
	catalogue CatalogueRepository
	archive   ArchiveRepository
	snapshots SnapshotStore

	now           func() time.Time
	flushInterval time.Duration

	mu       sync.RWMutex
	sessions map[string]*session
}

// session is the in-memory state of one attempt. Field access goes through
// its mutex so concurrent writers to the same session never interleave a
// torn AnswerRecord.
type session struct {
	mu sync.Mutex

	id            string
	userID        string
	testName      string
	section       string
	questionIndex int

	answers   map[string]domain.AnswerRecord
	bookmarks map[string]struct{}
	flags     map[string]string

	startedAt      time.Time
	timeRemaining  int // seconds as of startedAt; may go negative
	sectionBudgets map[string]int
	paused         bool
	pausedAt       time.Time

	stopFlush chan struct{}
}

// Option configures a SessionService.
type Option func(*SessionService)

// WithClock injects a deterministic time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *SessionService) { s.now = now }
}

// WithFlushInterval overrides the periodic snapshot interval.
func WithFlushInterval(d time.Duration) Option {
	return func(s *SessionService) { s.flushInterval = d }
}

func NewSessionService(catalogue CatalogueRepository, archive ArchiveRepository, snapshots SnapshotStore, opts ...Option) *SessionService {
	s := &SessionService{
		catalogue:     catalogue,
		archive:       archive,
		snapshots:     snapshots,
		now:           time.Now,
		flushInterval: defaultFlushInterval,
		sessions:      make(map[string]*session),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Rehydrate reloads the live session map from the last durability flush.
// Flush timers are re-armed for active sessions only; paused sessions wait
// for an explicit resume. Returns the number of sessions restored.
func (s *SessionService) Rehydrate(ctx context.Context) (int, error) {
	states, err := s.snapshots.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load snapshots: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range states {
		sess := sessionFromState(st)
		s.sessions[sess.id] = sess
		if !sess.paused {
			s.armFlushLocked(sess)
		}
	}
	return len(states), nil
}

// Start creates a new active attempt for the user. Any other non-paused
// attempt owned by the same user is discarded in the same critical section,
// so two simultaneous active attempts are never observable. Paused attempts
// are preserved.
func (s *SessionService) Start(ctx context.Context, userID, testName string) (domain.SessionState, error) {
	if _, err := s.catalogue.FindTest(ctx, testName); err != nil {
		return domain.SessionState{}, err
	}

	budgets := make(map[string]int, len(domain.SectionOrder))
	for _, name := range domain.SectionOrder {
		budgets[name] = SectionBudgetSeconds
	}

	sess := &session{
		id:             uuid.NewString(),
		userID:         userID,
		testName:       testName,
		section:        domain.SectionVARC,
		answers:        make(map[string]domain.AnswerRecord),
		bookmarks:      make(map[string]struct{}),
		flags:          make(map[string]string),
		startedAt:      s.now(),
		timeRemaining:  TotalBudgetSeconds,
		sectionBudgets: budgets,
	}

	s.mu.Lock()
	var evicted []string
	for id, other := range s.sessions {
		if other.userID == userID && !other.isPaused() {
			s.stopFlushLocked(other)
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	s.sessions[sess.id] = sess
	s.armFlushLocked(sess)
	s.mu.Unlock()

	// Evicted sessions must leave the snapshot store too, or a restart
	// would rehydrate them next to the replacement attempt.
	for _, id := range evicted {
		if err := s.snapshots.Delete(ctx, id); err != nil {
			log.Printf("snapshot delete for evicted session %s failed: %v", id, err)
		}
	}

	state := sess.snapshot()
	if err := s.snapshots.Save(ctx, state); err != nil {
		log.Printf("initial snapshot for session %s failed: %v", sess.id, err)
	}
	return state, nil
}

// Answer stores or overwrites the answer record for a question. Last write
// wins; no history of prior submissions is kept. The catalogue lookup both
// validates the question id and fetches the correct answer for bookkeeping.
func (s *SessionService) Answer(ctx context.Context, sessionID, questionID, value string, timeSpentSeconds int) error {
	sess, err := s.get(sessionID)
	if err != nil {
		return err
	}
	if _, err := s.catalogue.FindQuestion(ctx, sess.testName, questionID); err != nil {
		return err
	}

	sess.mu.Lock()
	sess.answers[questionID] = domain.AnswerRecord{
		Value:       value,
		TimeSpent:   timeSpentSeconds,
		SubmittedAt: s.now(),
	}
	sess.mu.Unlock()
	return nil
}

// Bookmark adds or removes a bookmark. Both directions are idempotent:
// adding twice equals adding once, removing an absent id is a no-op.
func (s *SessionService) Bookmark(_ context.Context, sessionID, questionID string, add bool) error {
	sess, err := s.get(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	if add {
		sess.bookmarks[questionID] = struct{}{}
	} else {
		delete(sess.bookmarks, questionID)
	}
	sess.mu.Unlock()
	return nil
}

// Flag upserts the flag color for a question; "none" removes it.
func (s *SessionService) Flag(_ context.Context, sessionID, questionID, color string) error {
	switch color {
	case domain.FlagRed, domain.FlagYellow, domain.FlagGreen, domain.FlagNone:
	default:
		return domain.ErrInvalidFlagColor
	}

	sess, err := s.get(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	if color == domain.FlagNone {
		delete(sess.flags, questionID)
	} else {
		sess.flags[questionID] = color
	}
	sess.mu.Unlock()
	return nil
}

// Navigate records the user's current section and question pointer.
func (s *SessionService) Navigate(_ context.Context, sessionID, section string, questionIndex int) error {
	sess, err := s.get(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	sess.section = section
	sess.questionIndex = questionIndex
	sess.mu.Unlock()
	return nil
}

// Pause deducts the elapsed active span from the remaining budget, stops
// the flush timer and archives the attempt. The remaining budget is not
// floored; callers treat a non-positive value as time's up. If the archive
// write fails the session still transitions to Paused and the returned
// error (wrapping ErrArchiveWriteFailed) is a warning, not a rollback.
func (s *SessionService) Pause(ctx context.Context, sessionID string) (domain.SessionState, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return domain.SessionState{}, domain.ErrSessionNotFound
	}

	now := s.now()
	sess.mu.Lock()
	if sess.paused {
		sess.mu.Unlock()
		s.mu.Unlock()
		return domain.SessionState{}, domain.ErrSessionPaused
	}
	sess.timeRemaining -= int(now.Sub(sess.startedAt).Seconds())
	sess.paused = true
	sess.pausedAt = now
	state := sess.snapshotLocked()
	sess.mu.Unlock()

	s.stopFlushLocked(sess)
	s.mu.Unlock()

	if err := s.snapshots.Save(ctx, state); err != nil {
		log.Printf("snapshot on pause for session %s failed: %v", sessionID, err)
	}

	// A Terminate that won the race after the transition must not find its
	// snapshot re-created by the write above. The archive write still
	// proceeds: the pause itself completed first.
	s.mu.RLock()
	_, live := s.sessions[sessionID]
	s.mu.RUnlock()
	if !live {
		if err := s.snapshots.Delete(ctx, sessionID); err != nil {
			log.Printf("snapshot delete for terminated session %s failed: %v", sessionID, err)
		}
	}

	if _, err := s.archiveState(ctx, state); err != nil {
		return state, fmt.Errorf("%w: %v", domain.ErrArchiveWriteFailed, err)
	}
	return state, nil
}

// Resume re-enters the Active state: the clock restarts from now against
// the remaining budget, and the periodic flush is re-armed. The flag flip
// and timer re-arm happen under the store lock so a concurrent Terminate
// cannot slip between them and leave an orphaned timer behind.
func (s *SessionService) Resume(ctx context.Context, sessionID string) (domain.SessionState, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return domain.SessionState{}, domain.ErrSessionNotFound
	}

	sess.mu.Lock()
	if !sess.paused {
		sess.mu.Unlock()
		s.mu.Unlock()
		return domain.SessionState{}, domain.ErrSessionNotPaused
	}
	sess.startedAt = s.now()
	sess.paused = false
	sess.pausedAt = time.Time{}
	state := sess.snapshotLocked()
	sess.mu.Unlock()

	s.armFlushLocked(sess)
	s.mu.Unlock()

	if err := s.snapshots.Save(ctx, state); err != nil {
		log.Printf("snapshot on resume for session %s failed: %v", sessionID, err)
	}

	// Terminate may have removed the session while the snapshot was being
	// written; the write would resurrect it on the next rehydrate.
	s.mu.RLock()
	_, live := s.sessions[sessionID]
	s.mu.RUnlock()
	if !live {
		if err := s.snapshots.Delete(ctx, sessionID); err != nil {
			log.Printf("snapshot delete for terminated session %s failed: %v", sessionID, err)
		}
		return domain.SessionState{}, domain.ErrSessionNotFound
	}
	return state, nil
}

// State returns a snapshot with the live remaining time: the stored budget
// minus the current active span, clamped to zero for display. Internal
// arithmetic stays unclamped.
func (s *SessionService) State(_ context.Context, sessionID string) (domain.SessionState, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return domain.SessionState{}, err
	}

	sess.mu.Lock()
	state := sess.snapshotLocked()
	if !sess.paused {
		state.TimeRemaining -= int(s.now().Sub(sess.startedAt).Seconds())
	}
	sess.mu.Unlock()

	if state.TimeRemaining < 0 {
		state.TimeRemaining = 0
	}
	return state, nil
}

// SaveNow performs a manual archive write of the current attempt state and
// returns the new archive id. The session keeps running.
func (s *SessionService) SaveNow(ctx context.Context, sessionID string) (string, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return "", err
	}

	sess.mu.Lock()
	state := sess.snapshotLocked()
	sess.mu.Unlock()

	id, err := s.archiveState(ctx, state)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrArchiveWriteFailed, err)
	}
	return id, nil
}

// Terminate removes the attempt entirely. No archive write happens; this
// is the explicit-cleanup path.
func (s *SessionService) Terminate(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok {
		s.stopFlushLocked(sess)
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}

	if err := s.snapshots.Delete(ctx, sessionID); err != nil {
		log.Printf("snapshot delete for session %s failed: %v", sessionID, err)
	}
	return nil
}

// ActiveForUser returns the user's non-paused attempt, for page-refresh
// recovery. The remaining time is the live, clamped value.
func (s *SessionService) ActiveForUser(ctx context.Context, userID string) (domain.SessionState, error) {
	s.mu.RLock()
	var found *session
	for _, sess := range s.sessions {
		if sess.userID == userID && !sess.isPaused() {
			found = sess
			break
		}
	}
	s.mu.RUnlock()

	if found == nil {
		return domain.SessionState{}, domain.ErrSessionNotFound
	}
	return s.State(ctx, found.id)
}

// PausedForUser lists the user's paused attempts, newest pause first.
func (s *SessionService) PausedForUser(_ context.Context, userID string) []domain.PausedAttempt {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.PausedAttempt
	for _, sess := range s.sessions {
		sess.mu.Lock()
		if sess.paused && sess.userID == userID {
			remaining := sess.timeRemaining
			if remaining < 0 {
				remaining = 0
			}
			out = append(out, domain.PausedAttempt{
				SessionID:     sess.id,
				TestName:      sess.testName,
				Section:       sess.section,
				QuestionIndex: sess.questionIndex,
				TimeRemaining: remaining,
				PausedAt:      sess.pausedAt,
				Answered:      len(sess.answers),
				Bookmarks:     len(sess.bookmarks),
				Flags:         len(sess.flags),
			})
		}
		sess.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PausedAt.After(out[j].PausedAt) })
	return out
}

// GCStale evicts active sessions older than maxAge. Paused sessions are
// exempt; they persist until resumed or terminated. Returns the session
// counts before and after the sweep.
func (s *SessionService) GCStale(ctx context.Context, maxAge time.Duration) (before, after int) {
	cutoff := s.now().Add(-maxAge)

	s.mu.Lock()
	before = len(s.sessions)
	var evicted []string
	for id, sess := range s.sessions {
		sess.mu.Lock()
		stale := !sess.paused && sess.startedAt.Before(cutoff)
		sess.mu.Unlock()
		if stale {
			s.stopFlushLocked(sess)
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	after = len(s.sessions)
	s.mu.Unlock()

	for _, id := range evicted {
		if err := s.snapshots.Delete(ctx, id); err != nil {
			log.Printf("snapshot delete for stale session %s failed: %v", id, err)
		}
	}
	return before, after
}

// FlushAll writes a snapshot of every live session. Used at shutdown.
func (s *SessionService) FlushAll(ctx context.Context) error {
	s.mu.RLock()
	states := make([]domain.SessionState, 0, len(s.sessions))
	for _, sess := range s.sessions {
		states = append(states, sess.snapshot())
	}
	s.mu.RUnlock()

	var firstErr error
	for _, st := range states {
		if err := s.snapshots.Save(ctx, st); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close stops every per-session flush timer.
func (s *SessionService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		s.stopFlushLocked(sess)
	}
}

func (s *SessionService) get(sessionID string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

// archiveState scores the snapshot against the catalogue and appends a new
// archive entry. The session itself is not locked during the I/O; the copy
// was taken beforehand.
func (s *SessionService) archiveState(ctx context.Context, state domain.SessionState) (string, error) {
	test, err := s.catalogue.FindTest(ctx, state.TestName)
	if err != nil {
		return "", err
	}
	records := scoring.ScoreAttempt(state, test)
	return s.archive.Save(ctx, domain.ArchivedAttempt{
		ID:         uuid.NewString(),
		UserID:     state.UserID,
		TestName:   state.TestName,
		CreatedAt:  s.now(),
		Records:    records,
		TotalScore: scoring.Total(records),
	})
}

// armFlushLocked starts the session's periodic flush task. Caller holds the
// store lock. The timer is keyed to the session and stops on pause or
// terminate, so no orphaned timers accumulate work.
func (s *SessionService) armFlushLocked(sess *session) {
	if sess.stopFlush != nil {
		return
	}
	stop := make(chan struct{})
	sess.stopFlush = stop

	go func() {
		ticker := time.NewTicker(s.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				state := sess.snapshot()
				if err := s.snapshots.Save(context.Background(), state); err != nil {
					// Retried on the next tick; in-memory state stays authoritative.
					log.Printf("periodic snapshot for session %s failed: %v", sess.id, err)
				}
			case <-stop:
				return
			}
		}
	}()
}

func (s *SessionService) stopFlushLocked(sess *session) {
	if sess.stopFlush != nil {
		close(sess.stopFlush)
		sess.stopFlush = nil
	}
}

func (sess *session) isPaused() bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.paused
}

func (sess *session) snapshot() domain.SessionState {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.snapshotLocked()
}

// snapshotLocked deep-copies the session. TimeRemaining here is the stored
// budget as of StartedAt, not the live display value.
func (sess *session) snapshotLocked() domain.SessionState {
	answers := make(map[string]domain.AnswerRecord, len(sess.answers))
	for id, rec := range sess.answers {
		answers[id] = rec
	}
	bookmarks := make([]string, 0, len(sess.bookmarks))
	for id := range sess.bookmarks {
		bookmarks = append(bookmarks, id)
	}
	sort.Strings(bookmarks)
	flags := make(map[string]string, len(sess.flags))
	for id, color := range sess.flags {
		flags[id] = color
	}
	budgets := make(map[string]int, len(sess.sectionBudgets))
	for name, v := range sess.sectionBudgets {
		budgets[name] = v
	}

	return domain.SessionState{
		SessionID:      sess.id,
		UserID:         sess.userID,
		TestName:       sess.testName,
		Section:        sess.section,
		QuestionIndex:  sess.questionIndex,
		Answers:        answers,
		Bookmarks:      bookmarks,
		Flags:          flags,
		StartedAt:      sess.startedAt,
		TimeRemaining:  sess.timeRemaining,
		SectionBudgets: budgets,
		Paused:         sess.paused,
		PausedAt:       sess.pausedAt,
	}
}

func sessionFromState(st domain.SessionState) *session {
	answers := make(map[string]domain.AnswerRecord, len(st.Answers))
	for id, rec := range st.Answers {
		answers[id] = rec
	}
	bookmarks := make(map[string]struct{}, len(st.Bookmarks))
	for _, id := range st.Bookmarks {
		bookmarks[id] = struct{}{}
	}
	flags := make(map[string]string, len(st.Flags))
	for id, color := range st.Flags {
		flags[id] = color
	}
	budgets := make(map[string]int, len(st.SectionBudgets))
	for name, v := range st.SectionBudgets {
		budgets[name] = v
	}

	return &session{
		id:             st.SessionID,
		userID:         st.UserID,
		testName:       st.TestName,
		section:        st.Section,
		questionIndex:  st.QuestionIndex,
		answers:        answers,
		bookmarks:      bookmarks,
		flags:          flags,
		startedAt:      st.StartedAt,
		timeRemaining:  st.TimeRemaining,
		sectionBudgets: budgets,
		paused:         st.Paused,
		pausedAt:       st.PausedAt,
	}
}
