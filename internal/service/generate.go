package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/timmy/bulkgen/internal/access"
	"github.com/timmy/bulkgen/internal/catalog"
	"github.com/timmy/bulkgen/internal/domain"
	"github.com/timmy/bulkgen/internal/generation"
	"github.com/timmy/bulkgen/internal/logger"
)

// BulkGenerateInput asks for one page to be generated synchronously.
// The caller carries the position between calls; nothing is persisted.
type BulkGenerateInput struct {
	StoreID      string           `json:"storeId"`
	Structure    json.RawMessage  `json:"structure"`
	CustomPrompt *string          `json:"customPrompt,omitempty"`
	Selection    domain.Selection `json:"selection"`
	Cursor       *string          `json:"cursor,omitempty"`
	Offset       int              `json:"offset,omitempty"`
}

// BulkGenerateResult is the outcome of one synchronous page.
type BulkGenerateResult struct {
	JobID          string                  `json:"jobId,omitempty"`
	Results        []generation.ItemResult `json:"results"`
	ProcessedCount int                     `json:"processedCount"`
	FailedCount    int                     `json:"failedCount"`
	HasNextPage    bool                    `json:"hasNextPage"`
	NextCursor     *string                 `json:"nextCursor"`
	NextOffset     int                     `json:"nextOffset"`
}

// BulkGenerate fetches one page for the caller's store and generates it inline.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - identity: verified caller; nil is unauthorized.
//   - in: selection, structure and the position to start from.
//
// Returns:
//   - *BulkGenerateResult: per-item results and the next position.
//   - error: access, store and validation errors as for CreateJobForStore,
//     *catalog.FetchError or *generation.InvokeError from the collaborators.
func (s *DispatchService) BulkGenerate(ctx context.Context, identity *access.Identity, in BulkGenerateInput) (*BulkGenerateResult, error) {
	store, err := s.authorizeStore(ctx, identity, in.StoreID)
	if err != nil {
		return nil, err
	}
	if !store.IsActive() {
		return nil, domain.ErrStoreInactive
	}
	if err := validateStructure(in.Structure); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := in.Selection.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if in.Offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", ErrValidation)
	}

	ctx = logger.SetStoreID(ctx, store.ID)
	page, err := s.fetcher.FetchPage(ctx, catalog.Credentials{
		ShopDomain:  catalog.NormalizeShopDomain(store.Shop),
		AccessToken: store.AccessToken,
	}, in.Selection, domain.Position{Cursor: in.Cursor, Offset: in.Offset}, in.Selection.PageLimit())
	if err != nil {
		return nil, err
	}

	result := &BulkGenerateResult{
		Results:     []generation.ItemResult{},
		HasNextPage: page.HasNext,
		NextCursor:  page.Next.Cursor,
		NextOffset:  page.Next.Offset,
	}
	if len(page.Items) == 0 {
		return result, nil
	}

	resp, err := s.invoker.Generate(ctx, generation.Request{
		StoreID:      store.ID,
		Products:     page.Items,
		Structure:    in.Structure,
		CustomPrompt: normalizePrompt(in.CustomPrompt),
	})
	if err != nil {
		return nil, err
	}

	failed := resp.FailureCount()
	if failed > len(page.Items) {
		failed = len(page.Items)
	}
	result.JobID = resp.JobID
	if resp.Results != nil {
		result.Results = resp.Results
	}
	result.ProcessedCount = len(page.Items) - failed
	result.FailedCount = failed

	logger.With(logger.Fields{"has_next": page.HasNext}).
		WithProgress(result.ProcessedCount, failed).
		WithCount(len(page.Items)).
		Info(ctx, "Generated page synchronously")
	return result, nil
}
