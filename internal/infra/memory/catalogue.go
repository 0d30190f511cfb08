package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"mockexam-service/internal/domain"
)

// CatalogueLoader fetches the full test catalogue from a backing store.
type CatalogueLoader interface {
	LoadCatalogue(ctx context.Context) ([]domain.Test, error)
}

// CatalogueRepository caches the loaded catalogue with a TTL to avoid
// repeated backing-store hits. Concurrent cache misses collapse into a
// single load via singleflight.
type CatalogueRepository struct {
	loader CatalogueLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	tests     map[string]domain.Test
	order     []string
	expiresAt time.Time
}

func NewCatalogueRepository(loader CatalogueLoader, ttl time.Duration) *CatalogueRepository {
	return &CatalogueRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CatalogueRepository) ListTests(ctx context.Context) ([]domain.TestOverview, error) {
	if err := r.ensure(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	overviews := make([]domain.TestOverview, 0, len(r.order))
	for _, name := range r.order {
		test := r.tests[name]
		counts := make(map[string]int, len(test.Sections))
		total := 0
		for _, sec := range test.Sections {
			counts[sec.Name] = len(sec.Questions)
			total += len(sec.Questions)
		}
		overviews = append(overviews, domain.TestOverview{
			Name:           test.Name,
			SectionCounts:  counts,
			TotalQuestions: total,
		})
	}
	return overviews, nil
}

func (r *CatalogueRepository) FindTest(ctx context.Context, name string) (domain.Test, error) {
	if err := r.ensure(ctx); err != nil {
		return domain.Test{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	test, ok := r.tests[name]
	if !ok {
		return domain.Test{}, domain.ErrTestNotFound
	}
	return test, nil
}

func (r *CatalogueRepository) FindQuestion(ctx context.Context, testName, questionID string) (domain.Question, error) {
	test, err := r.FindTest(ctx, testName)
	if err != nil {
		return domain.Question{}, err
	}
	for _, sec := range test.Sections {
		for _, q := range sec.Questions {
			if q.ID == questionID {
				return q, nil
			}
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

// ensure refreshes the cache when empty or expired.
func (r *CatalogueRepository) ensure(ctx context.Context) error {
	now := r.clock()

	r.mu.RLock()
	fresh := r.tests != nil && r.expiresAt.After(now)
	r.mu.RUnlock()
	if fresh {
		return nil
	}

	_, err, _ := r.sf.Do("catalogue", func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		fresh := r.tests != nil && r.expiresAt.After(now)
		r.mu.RUnlock()
		if fresh {
			return nil, nil
		}

		loaded, err := r.loader.LoadCatalogue(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCatalogueUnavailable, err)
		}

		tests := make(map[string]domain.Test, len(loaded))
		order := make([]string, 0, len(loaded))
		for _, t := range loaded {
			tests[t.Name] = t
			order = append(order, t.Name)
		}

		r.mu.Lock()
		r.tests = tests
		r.order = order
		r.expiresAt = now.Add(r.ttlWithJitter())
		r.mu.Unlock()
		return nil, nil
	})
	return err
}

func (r *CatalogueRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticCatalogueLoader serves a fixed in-memory catalogue (tests/demos).
type StaticCatalogueLoader struct {
	tests []domain.Test
}

func NewStaticCatalogueLoader(tests []domain.Test) *StaticCatalogueLoader {
	return &StaticCatalogueLoader{tests: tests}
}

func (l *StaticCatalogueLoader) LoadCatalogue(_ context.Context) ([]domain.Test, error) {
	return l.tests, nil
}

// FileCatalogueLoader reads the catalogue from a JSON file on disk.
type FileCatalogueLoader struct {
	path string
}

func NewFileCatalogueLoader(path string) *FileCatalogueLoader {
	return &FileCatalogueLoader{path: path}
}

func (l *FileCatalogueLoader) LoadCatalogue(_ context.Context) ([]domain.Test, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read catalogue file: %w", err)
	}
	var tests []domain.Test
	if err := json.Unmarshal(data, &tests); err != nil {
		return nil, fmt.Errorf("parse catalogue file: %w", err)
	}
	return tests, nil
}
