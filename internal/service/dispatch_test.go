package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/bulkgen/internal/access"
	"github.com/timmy/bulkgen/internal/catalog"
	"github.com/timmy/bulkgen/internal/domain"
	"github.com/timmy/bulkgen/internal/queue"
)

func validInput() CreateJobInput {
	return CreateJobInput{
		StoreID:     "store-1",
		ShopDomain:  "https://Demo.myshopify.com/",
		AccessToken: "shpat_test",
		Structure:   json.RawMessage(`{"sections":["HeroText"]}`),
		Selection:   domain.Selection{Mode: domain.SelectionModeIDs, IDs: []string{"p1"}},
	}
}

func TestCreateJob_WritesPendingRowAndEnqueues(t *testing.T) {
	h := newHarness(t, nil)

	id, err := h.dispatch.CreateJob(context.Background(), validInput())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job := h.job(t, id)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, "demo.myshopify.com", job.ShopDomain)
	assert.Equal(t, "shpat_test", job.AccessToken)
	assert.Nil(t, job.Cursor)
	assert.Zero(t, job.Offset)
	assert.Zero(t, job.ProcessedCount)
	assert.Nil(t, job.CustomPrompt)

	msg, ok := h.queue.pop()
	require.True(t, ok)
	assert.Equal(t, queue.Message{JobID: id}, msg)
}

func TestCreateJob_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateJobInput)
	}{
		{name: "missing store", mutate: func(in *CreateJobInput) { in.StoreID = "" }},
		{name: "missing shop", mutate: func(in *CreateJobInput) { in.ShopDomain = " " }},
		{name: "missing token", mutate: func(in *CreateJobInput) { in.AccessToken = "" }},
		{name: "missing structure", mutate: func(in *CreateJobInput) { in.Structure = nil }},
		{name: "null structure", mutate: func(in *CreateJobInput) { in.Structure = json.RawMessage(`null`) }},
		{name: "invalid structure", mutate: func(in *CreateJobInput) { in.Structure = json.RawMessage(`{`) }},
		{name: "missing mode", mutate: func(in *CreateJobInput) { in.Selection.Mode = "" }},
		{name: "unknown mode", mutate: func(in *CreateJobInput) { in.Selection.Mode = "some" }},
		{name: "empty ids", mutate: func(in *CreateJobInput) { in.Selection.IDs = nil }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, nil)
			in := validInput()
			tc.mutate(&in)

			_, err := h.dispatch.CreateJob(context.Background(), in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)

			_, total, err := h.jobs.ListByStore(context.Background(), "store-1", 10, 0)
			require.NoError(t, err)
			assert.Zero(t, total, "no row is written for invalid input")
			assert.Zero(t, h.queue.len())
		})
	}
}

func TestCreateJob_EnqueueFailureMarksJobFailed(t *testing.T) {
	h := newHarness(t, nil)
	h.queue.err = queue.ErrQueueFull

	_, err := h.dispatch.CreateJob(context.Background(), validInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, queue.ErrQueueFull)

	jobs, _, err := h.jobs.ListByStore(context.Background(), "store-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobStatusFailed, jobs[0].Status)
	require.NotNil(t, jobs[0].LastError)
	assert.Contains(t, *jobs[0].LastError, "enqueue")
}

func seedStore(t *testing.T, h *harness, status domain.StoreStatus) *domain.Store {
	t.Helper()
	store := &domain.Store{ID: "store-1", Shop: "demo.myshopify.com", AccessToken: "shpat_store", Status: status}
	require.NoError(t, h.stores.Save(context.Background(), store))
	return store
}

func forStoreInput() CreateForStoreInput {
	return CreateForStoreInput{
		StoreID:   "store-1",
		Structure: json.RawMessage(`{"sections":["HeroText"]}`),
		Selection: domain.Selection{Mode: domain.SelectionModeAll},
	}
}

func TestCreateJobForStore_UsesStoreCredentials(t *testing.T) {
	h := newHarness(t, nil)
	seedStore(t, h, domain.StoreStatusActive)

	id, err := h.dispatch.CreateJobForStore(context.Background(), &access.Identity{Shop: "demo.myshopify.com"}, forStoreInput())
	require.NoError(t, err)

	job := h.job(t, id)
	assert.Equal(t, "shpat_store", job.AccessToken)
	assert.Equal(t, "demo.myshopify.com", job.ShopDomain)
	assert.Equal(t, "store-1", job.StoreID)
}

func TestCreateJobForStore_Rejections(t *testing.T) {
	ctx := context.Background()
	owner := &access.Identity{Shop: "demo.myshopify.com"}

	t.Run("no identity", func(t *testing.T) {
		h := newHarness(t, nil)
		seedStore(t, h, domain.StoreStatusActive)
		_, err := h.dispatch.CreateJobForStore(ctx, nil, forStoreInput())
		assert.ErrorIs(t, err, access.ErrUnauthorized)
	})

	t.Run("other shop", func(t *testing.T) {
		h := newHarness(t, nil)
		seedStore(t, h, domain.StoreStatusActive)
		_, err := h.dispatch.CreateJobForStore(ctx, &access.Identity{Shop: "evil.myshopify.com"}, forStoreInput())
		assert.ErrorIs(t, err, access.ErrUnauthorized)
	})

	t.Run("unknown store", func(t *testing.T) {
		h := newHarness(t, nil)
		_, err := h.dispatch.CreateJobForStore(ctx, owner, forStoreInput())
		assert.ErrorIs(t, err, domain.ErrStoreNotFound)
	})

	t.Run("inactive store", func(t *testing.T) {
		h := newHarness(t, nil)
		seedStore(t, h, domain.StoreStatusInactive)
		_, err := h.dispatch.CreateJobForStore(ctx, owner, forStoreInput())
		assert.ErrorIs(t, err, domain.ErrStoreInactive)
	})

	t.Run("missing store id", func(t *testing.T) {
		h := newHarness(t, nil)
		in := forStoreInput()
		in.StoreID = ""
		_, err := h.dispatch.CreateJobForStore(ctx, owner, in)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestCancelJob(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	id, err := h.dispatch.CreateJob(ctx, validInput())
	require.NoError(t, err)

	job, err := h.dispatch.CancelJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, job.Status)
	assert.Equal(t, 1, h.archiver.count())

	_, err = h.dispatch.CancelJob(ctx, id)
	assert.ErrorIs(t, err, domain.ErrJobTerminal)

	_, err = h.dispatch.CancelJob(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	// The queued message is discarded once delivered.
	h.drain(t, id, nil)
	assert.Zero(t, h.catalog.callCount())
}

func TestRecover_ReenqueuesUnfinishedJobs(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	pending, err := h.dispatch.CreateJob(ctx, validInput())
	require.NoError(t, err)
	running, err := h.dispatch.CreateJob(ctx, validInput())
	require.NoError(t, err)
	_, err = h.jobs.MarkRunning(ctx, running)
	require.NoError(t, err)
	done, err := h.dispatch.CreateJob(ctx, validInput())
	require.NoError(t, err)
	_, err = h.jobs.Complete(ctx, done)
	require.NoError(t, err)

	// Simulate a restart of the in-memory queue.
	h.queue.msgs = nil

	n, err := h.dispatch.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var ids []string
	for {
		msg, ok := h.queue.pop()
		if !ok {
			break
		}
		ids = append(ids, msg.JobID)
	}
	assert.ElementsMatch(t, []string{pending, running}, ids)
}

func TestListJobs(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := h.dispatch.CreateJob(ctx, validInput())
		require.NoError(t, err)
	}

	jobs, total, err := h.dispatch.ListJobs(ctx, "store-1", 2, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, jobs, 2)

	jobs, _, err = h.dispatch.ListJobs(ctx, "store-1", 0, -5)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)

	_, _, err = h.dispatch.ListJobs(ctx, "", 10, 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListJobsForStore_ChecksOwnership(t *testing.T) {
	h := newHarness(t, nil)
	seedStore(t, h, domain.StoreStatusActive)

	_, _, err := h.dispatch.ListJobsForStore(context.Background(), &access.Identity{Shop: "evil.myshopify.com"}, "store-1", 10, 0)
	assert.ErrorIs(t, err, access.ErrUnauthorized)

	_, total, err := h.dispatch.ListJobsForStore(context.Background(), &access.Identity{Shop: "demo.myshopify.com"}, "store-1", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestBulkGenerate_SinglePage(t *testing.T) {
	h := newHarness(t, products("p1", "p2", "p3"))
	seedStore(t, h, domain.StoreStatusActive)
	h.invoker.failIDs["p2"] = true
	owner := &access.Identity{Shop: "demo.myshopify.com"}

	res, err := h.dispatch.BulkGenerate(context.Background(), owner, BulkGenerateInput{
		StoreID:   "store-1",
		Structure: json.RawMessage(`{"sections":["A"]}`),
		Selection: domain.Selection{Mode: domain.SelectionModeIDs, IDs: []string{"p1", "p2", "p3"}, Limit: 2},
	})
	require.NoError(t, err)

	assert.Equal(t, "gen-1", res.JobID)
	assert.Len(t, res.Results, 2)
	assert.Equal(t, 1, res.ProcessedCount)
	assert.Equal(t, 1, res.FailedCount)
	assert.True(t, res.HasNextPage)
	assert.Equal(t, 2, res.NextOffset)

	res, err = h.dispatch.BulkGenerate(context.Background(), owner, BulkGenerateInput{
		StoreID:   "store-1",
		Structure: json.RawMessage(`{"sections":["A"]}`),
		Selection: domain.Selection{Mode: domain.SelectionModeIDs, IDs: []string{"p1", "p2", "p3"}, Limit: 2},
		Offset:    res.NextOffset,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ProcessedCount)
	assert.False(t, res.HasNextPage)

	_, total, err := h.jobs.ListByStore(context.Background(), "store-1", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total, "the synchronous path writes no job rows")
}

func TestBulkGenerate_PropagatesFetchError(t *testing.T) {
	h := newHarness(t, products("p1"))
	seedStore(t, h, domain.StoreStatusActive)
	h.catalog.err = &catalog.FetchError{StatusCode: 401, Message: "unauthorized"}

	_, err := h.dispatch.BulkGenerate(context.Background(), &access.Identity{Shop: "demo.myshopify.com"}, BulkGenerateInput{
		StoreID:   "store-1",
		Structure: json.RawMessage(`{}`),
		Selection: domain.Selection{Mode: domain.SelectionModeAll},
	})
	var fe *catalog.FetchError
	assert.True(t, errors.As(err, &fe))
}
