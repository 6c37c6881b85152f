package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/bulkgen/internal/domain"
	"golang.org/x/time/rate"
)

const productFields = `
    id
    title
    description
    handle
    vendor
    productType
    tags
    images(first: 10) {
      edges {
        node {
          id
          url
          altText
        }
      }
    }
    variants(first: 1) {
      edges {
        node {
          id
          price
          title
        }
      }
    }`

var productsQuery = `
query getProducts($first: Int!, $after: String) {
  products(first: $first, after: $after) {
    edges {
      node {` + productFields + `
      }
    }
    pageInfo {
      hasNextPage
      endCursor
    }
  }
}`

var productsByIDsQuery = `
query getProductsByIds($ids: [ID!]!) {
  nodes(ids: $ids) {
    ... on Product {` + productFields + `
    }
  }
}`

// Credentials are the per-store secrets snapshotted on the job.
type Credentials struct {
	ShopDomain  string
	AccessToken string
}

// Page is one bounded slice of the catalog.
type Page struct {
	Items   []domain.Product
	HasNext bool
	Next    domain.Position
}

// ShopifyFetcher reads product pages from the Shopify Admin GraphQL API.
type ShopifyFetcher struct {
	client     *resty.Client
	apiVersion string
	baseURL    string
	limiter    *rate.Limiter
}

// FetcherConfig holds configuration for the catalog fetcher.
type FetcherConfig struct {
	APIVersion string
	Timeout    time.Duration
	RateLimit  float64 // Requests per second across all shops; <= 0 disables limiting
	RateBurst  int
	BaseURL    string // Replaces https://{shop} when set (proxies, tests)
}

// NewShopifyFetcher creates a new catalog fetcher.
// Parameters:
//   - cfg: API version, timeout and rate limit settings.
//
// Returns:
//   - *ShopifyFetcher: initialized fetcher.
func NewShopifyFetcher(cfg *FetcherConfig) *ShopifyFetcher {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.SetTimeout(timeout)

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &ShopifyFetcher{
		client:     client,
		apiVersion: cfg.APIVersion,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// FetchPage retrieves one page of products for a selection.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - creds: store credentials.
//   - sel: job selection; decides cursor or id-list paging.
//   - pos: current position (cursor for mode all, offset for mode ids).
//   - limit: requested page size, clamped to [1, 250].
//
// Returns:
//   - *Page: items, whether more pages exist and the next position.
//   - error: *FetchError on transport, HTTP or GraphQL failure.
func (f *ShopifyFetcher) FetchPage(ctx context.Context, creds Credentials, sel domain.Selection, pos domain.Position, limit int) (*Page, error) {
	limit = domain.ClampLimit(limit)

	switch sel.Mode {
	case domain.SelectionModeAll:
		return f.fetchByCursor(ctx, creds, pos.Cursor, limit)
	case domain.SelectionModeIDs:
		return f.fetchByIDs(ctx, creds, sel.IDs, pos.Offset, limit)
	default:
		return nil, &FetchError{Message: fmt.Sprintf("unsupported selection mode %q", sel.Mode)}
	}
}

func (f *ShopifyFetcher) fetchByCursor(ctx context.Context, creds Credentials, cursor *string, limit int) (*Page, error) {
	var resp productsResponse
	if err := f.query(ctx, creds, productsQuery, map[string]interface{}{
		"first": limit,
		"after": cursor,
	}, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil || resp.Data.Products == nil {
		return nil, &FetchError{Message: "malformed products response: missing data.products"}
	}

	conn := resp.Data.Products
	items := make([]domain.Product, 0, len(conn.Edges))
	for _, edge := range conn.Edges {
		items = append(items, edge.Node.toDomain())
	}

	// endCursor is null on an empty page; keep the old cursor rather than
	// restarting the walk from the beginning.
	next := cursor
	if conn.PageInfo.EndCursor != nil {
		next = conn.PageInfo.EndCursor
	}

	return &Page{
		Items:   items,
		HasNext: conn.PageInfo.HasNextPage,
		Next:    domain.Position{Cursor: next},
	}, nil
}

func (f *ShopifyFetcher) fetchByIDs(ctx context.Context, creds Credentials, ids []string, offset, limit int) (*Page, error) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(ids) {
		offset = len(ids)
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	slice := ids[offset:end]
	next := offset + len(slice)

	page := &Page{
		Items:   []domain.Product{},
		HasNext: next < len(ids),
		Next:    domain.Position{Offset: next},
	}
	if len(slice) == 0 {
		return page, nil
	}

	var resp nodesResponse
	if err := f.query(ctx, creds, productsByIDsQuery, map[string]interface{}{
		"ids": slice,
	}, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, &FetchError{Message: "malformed nodes response: missing data"}
	}

	for _, node := range resp.Data.Nodes {
		// Deleted ids come back as null, non-product ids as empty objects.
		if node == nil || node.ID == "" {
			continue
		}
		page.Items = append(page.Items, node.toDomain())
	}
	return page, nil
}

// query posts a GraphQL document and decodes the response into out.
func (f *ShopifyFetcher) query(ctx context.Context, creds Credentials, query string, variables map[string]interface{}, out graphQLEnvelope) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return &FetchError{Message: "rate limiter wait aborted", Err: err}
	}

	httpResp, err := f.client.R().
		SetContext(ctx).
		SetHeader("X-Shopify-Access-Token", creds.AccessToken).
		SetBody(graphQLRequest{Query: query, Variables: variables}).
		SetResult(out).
		Post(f.endpoint(creds.ShopDomain))
	if err != nil {
		return &FetchError{Message: "failed to call catalog API", Err: err}
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		return &FetchError{
			StatusCode: httpResp.StatusCode(),
			Message:    fmt.Sprintf("catalog API returned HTTP %d: %s", httpResp.StatusCode(), truncate(string(httpResp.Body()), 300)),
		}
	}

	if errs := out.graphQLErrors(); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Message)
		}
		return &FetchError{
			StatusCode: httpResp.StatusCode(),
			Message:    "catalog API error: " + strings.Join(msgs, "; "),
		}
	}
	return nil
}

func (f *ShopifyFetcher) endpoint(shopDomain string) string {
	base := f.baseURL
	if base == "" {
		base = "https://" + NormalizeShopDomain(shopDomain)
	}
	return fmt.Sprintf("%s/admin/api/%s/graphql.json", base, f.apiVersion)
}

// NormalizeShopDomain strips scheme and path and appends .myshopify.com to bare shop names.
func NormalizeShopDomain(shop string) string {
	shop = strings.TrimSpace(strings.ToLower(shop))
	shop = strings.TrimPrefix(shop, "https://")
	shop = strings.TrimPrefix(shop, "http://")
	if idx := strings.Index(shop, "/"); idx != -1 {
		shop = shop[:idx]
	}
	if shop != "" && !strings.Contains(shop, ".") {
		shop += ".myshopify.com"
	}
	return shop
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
