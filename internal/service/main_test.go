package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/timmy/bulkgen/internal/catalog"
	"github.com/timmy/bulkgen/internal/domain"
	"github.com/timmy/bulkgen/internal/generation"
	"github.com/timmy/bulkgen/internal/queue"
	"github.com/timmy/bulkgen/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repository.Migrate(db))
	return db
}

func products(ids ...string) []domain.Product {
	out := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Product{ID: id, Title: "Product " + id})
	}
	return out
}

func productIDs(items []domain.Product) []string {
	ids := make([]string, 0, len(items))
	for _, p := range items {
		ids = append(ids, p.ID)
	}
	return ids
}

// fakeCatalog pages over an in-memory product list the way the platform does:
// opaque cursors for mode all, local id slicing for mode ids.
type fakeCatalog struct {
	mu       sync.Mutex
	products []domain.Product
	err      error
	calls    []domain.Position
}

func (c *fakeCatalog) FetchPage(ctx context.Context, creds catalog.Credentials, sel domain.Selection, pos domain.Position, limit int) (*catalog.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, pos)
	if c.err != nil {
		return nil, c.err
	}
	if err := ctx.Err(); err != nil {
		return nil, &catalog.FetchError{Message: "request aborted", Err: err}
	}

	limit = domain.ClampLimit(limit)
	if sel.Mode == domain.SelectionModeIDs {
		byID := make(map[string]domain.Product, len(c.products))
		for _, p := range c.products {
			byID[p.ID] = p
		}
		end := pos.Offset + limit
		if end > len(sel.IDs) {
			end = len(sel.IDs)
		}
		slice := sel.IDs[pos.Offset:end]
		items := []domain.Product{}
		for _, id := range slice {
			if p, ok := byID[id]; ok {
				items = append(items, p)
			}
		}
		next := pos.Offset + len(slice)
		return &catalog.Page{Items: items, HasNext: next < len(sel.IDs), Next: domain.Position{Offset: next}}, nil
	}

	start := 0
	if pos.Cursor != nil {
		n, err := strconv.Atoi(*pos.Cursor)
		if err != nil {
			return nil, &catalog.FetchError{Message: "bad cursor"}
		}
		start = n
	}
	end := start + limit
	if end > len(c.products) {
		end = len(c.products)
	}
	items := append([]domain.Product{}, c.products[start:end]...)
	next := pos.Cursor
	if len(items) > 0 {
		cur := strconv.Itoa(end)
		next = &cur
	}
	return &catalog.Page{Items: items, HasNext: end < len(c.products), Next: domain.Position{Cursor: next}}, nil
}

func (c *fakeCatalog) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// fakeInvoker reports success for every product except those in failIDs.
type fakeInvoker struct {
	mu      sync.Mutex
	failIDs map[string]bool
	err     error
	panic   bool
	calls   [][]string
	prompts []*string
	onCall  func(call int)
}

func (g *fakeInvoker) Generate(ctx context.Context, req generation.Request) (*generation.Response, error) {
	g.mu.Lock()
	g.calls = append(g.calls, productIDs(req.Products))
	g.prompts = append(g.prompts, req.CustomPrompt)
	call := len(g.calls)
	hook := g.onCall
	g.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if g.panic {
		panic("generator exploded")
	}
	if g.err != nil {
		return nil, g.err
	}

	resp := &generation.Response{JobID: fmt.Sprintf("gen-%d", call)}
	for _, p := range req.Products {
		res := generation.ItemResult{ProductID: p.ID, Success: !g.failIDs[p.ID]}
		if !res.Success {
			res.Error = "generation failed"
		}
		resp.Results = append(resp.Results, res)
	}
	return resp, nil
}

func (g *fakeInvoker) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// recordingQueue stores messages for the test to deliver by hand.
type recordingQueue struct {
	mu   sync.Mutex
	msgs []queue.Message
	err  error
}

func (q *recordingQueue) Enqueue(ctx context.Context, msg queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, msg)
	return nil
}

func (q *recordingQueue) pop() (queue.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.msgs) == 0 {
		return queue.Message{}, false
	}
	msg := q.msgs[0]
	q.msgs = q.msgs[1:]
	return msg, true
}

func (q *recordingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

type fakeArchiver struct {
	mu       sync.Mutex
	archived []domain.BulkJob
}

func (a *fakeArchiver) Archive(ctx context.Context, job *domain.BulkJob) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived = append(a.archived, *job)
	return nil
}

func (a *fakeArchiver) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.archived)
}

// harness wires a driver and dispatcher to a real repository and fakes.
type harness struct {
	jobs     *repository.BulkJobRepository
	stores   *repository.StoreRepository
	catalog  *fakeCatalog
	invoker  *fakeInvoker
	queue    *recordingQueue
	archiver *fakeArchiver
	driver   *BulkJobDriver
	dispatch *DispatchService
}

func newHarness(t *testing.T, catalogProducts []domain.Product) *harness {
	t.Helper()
	db := newTestDB(t)
	h := &harness{
		jobs:     repository.NewBulkJobRepository(db),
		stores:   repository.NewStoreRepository(db),
		catalog:  &fakeCatalog{products: catalogProducts},
		invoker:  &fakeInvoker{failIDs: map[string]bool{}},
		queue:    &recordingQueue{},
		archiver: &fakeArchiver{},
	}
	h.driver = NewBulkJobDriver(h.jobs, h.catalog, h.invoker, h.queue, h.archiver, nil)
	h.dispatch = NewDispatchService(h.jobs, h.stores, h.queue, h.catalog, h.invoker, h.archiver, nil)
	return h
}

func (h *harness) createJob(t *testing.T, sel domain.Selection) string {
	t.Helper()
	id, err := h.dispatch.CreateJob(context.Background(), CreateJobInput{
		StoreID:     "store-1",
		ShopDomain:  "demo",
		AccessToken: "shpat_test",
		Structure:   []byte(`{"sections":["HeroText"]}`),
		Selection:   sel,
	})
	require.NoError(t, err)
	return id
}

// drain delivers queued messages until the queue is empty, calling after
// with the job row following each delivery.
func (h *harness) drain(t *testing.T, jobID string, after func(*domain.BulkJob)) int {
	t.Helper()
	deliveries := 0
	for {
		msg, ok := h.queue.pop()
		if !ok {
			return deliveries
		}
		require.NoError(t, h.driver.Handle(context.Background(), msg))
		deliveries++
		require.Less(t, deliveries, 100, "job never settled")
		if after != nil {
			job, err := h.jobs.GetByID(context.Background(), jobID)
			require.NoError(t, err)
			after(job)
		}
	}
}

func (h *harness) job(t *testing.T, id string) *domain.BulkJob {
	t.Helper()
	job, err := h.jobs.GetByID(context.Background(), id)
	require.NoError(t, err)
	return job
}
