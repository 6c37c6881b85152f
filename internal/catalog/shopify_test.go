package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/bulkgen/internal/domain"
)

type capturedRequest struct {
	Path      string
	Token     string
	Query     string
	Variables map[string]interface{}
}

func newCatalogServer(t *testing.T, status int, body string, seen *[]capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if seen != nil {
			*seen = append(*seen, capturedRequest{
				Path:      r.URL.Path,
				Token:     r.Header.Get("X-Shopify-Access-Token"),
				Query:     req.Query,
				Variables: req.Variables,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestFetcher(baseURL string) *ShopifyFetcher {
	return NewShopifyFetcher(&FetcherConfig{APIVersion: "2024-10", BaseURL: baseURL})
}

var creds = Credentials{ShopDomain: "demo.myshopify.com", AccessToken: "shpat_abc"}

func TestFetchPage_AllModeUsesCursor(t *testing.T) {
	var seen []capturedRequest
	srv := newCatalogServer(t, http.StatusOK, `{
		"data": {"products": {
			"edges": [
				{"node": {"id": "gid://shopify/Product/1", "title": "Mug", "tags": ["kitchen"],
					"images": {"edges": [{"node": {"id": "img1", "url": "https://cdn/1.png", "altText": "mug"}}]},
					"variants": {"edges": [{"node": {"id": "v1", "price": "9.99", "title": "Default"}}]}}},
				{"node": {"id": "gid://shopify/Product/2", "title": "Cup"}}
			],
			"pageInfo": {"hasNextPage": true, "endCursor": "cursor-2"}
		}}
	}`, &seen)

	f := newTestFetcher(srv.URL)
	after := "cursor-1"
	page, err := f.FetchPage(context.Background(), creds, domain.Selection{Mode: domain.SelectionModeAll}, domain.Position{Cursor: &after}, 500)
	require.NoError(t, err)

	require.Len(t, page.Items, 2)
	assert.Equal(t, "Mug", page.Items[0].Title)
	assert.Equal(t, []string{"kitchen"}, page.Items[0].Tags)
	assert.Equal(t, "https://cdn/1.png", page.Items[0].Images[0].URL)
	assert.Equal(t, "9.99", page.Items[0].Variants[0].Price)
	assert.Equal(t, []string{}, page.Items[1].Tags)
	assert.True(t, page.HasNext)
	require.NotNil(t, page.Next.Cursor)
	assert.Equal(t, "cursor-2", *page.Next.Cursor)

	require.Len(t, seen, 1)
	assert.Equal(t, "/admin/api/2024-10/graphql.json", seen[0].Path)
	assert.Equal(t, "shpat_abc", seen[0].Token)
	assert.Contains(t, seen[0].Query, "products(first: $first, after: $after)")
	assert.EqualValues(t, 250, seen[0].Variables["first"], "limit is clamped to the platform maximum")
	assert.Equal(t, "cursor-1", seen[0].Variables["after"])
}

func TestFetchPage_AllModeEmptyStore(t *testing.T) {
	srv := newCatalogServer(t, http.StatusOK, `{"data": {"products": {"edges": [], "pageInfo": {"hasNextPage": false, "endCursor": null}}}}`, nil)

	page, err := newTestFetcher(srv.URL).FetchPage(context.Background(), creds, domain.Selection{Mode: domain.SelectionModeAll}, domain.Position{}, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasNext)
	assert.Nil(t, page.Next.Cursor)
}

func TestFetchPage_IDsModeSlicesLocally(t *testing.T) {
	var seen []capturedRequest
	srv := newCatalogServer(t, http.StatusOK, `{"data": {"nodes": [
		{"id": "p3", "title": "Three"},
		null,
		{}
	]}}`, &seen)

	sel := domain.Selection{Mode: domain.SelectionModeIDs, IDs: []string{"p1", "p2", "p3", "p4", "p5"}, Limit: 3}
	page, err := newTestFetcher(srv.URL).FetchPage(context.Background(), creds, sel, domain.Position{Offset: 2}, sel.Limit)
	require.NoError(t, err)

	require.Len(t, page.Items, 1, "null and non-product nodes are dropped")
	assert.Equal(t, "p3", page.Items[0].ID)
	assert.Equal(t, 5, page.Next.Offset, "offset advances by ids requested, not nodes returned")
	assert.False(t, page.HasNext)

	require.Len(t, seen, 1)
	assert.Contains(t, seen[0].Query, "nodes(ids: $ids)")
	assert.Equal(t, []interface{}{"p3", "p4", "p5"}, seen[0].Variables["ids"])
}

func TestFetchPage_IDsModeHasNext(t *testing.T) {
	srv := newCatalogServer(t, http.StatusOK, `{"data": {"nodes": [{"id": "p1"}, {"id": "p2"}]}}`, nil)

	sel := domain.Selection{Mode: domain.SelectionModeIDs, IDs: []string{"p1", "p2", "p3"}, Limit: 2}
	page, err := newTestFetcher(srv.URL).FetchPage(context.Background(), creds, sel, domain.Position{}, sel.Limit)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.Next.Offset)
	assert.True(t, page.HasNext)
}

func TestFetchPage_IDsModeExhaustedSkipsCall(t *testing.T) {
	var seen []capturedRequest
	srv := newCatalogServer(t, http.StatusOK, `{}`, &seen)

	sel := domain.Selection{Mode: domain.SelectionModeIDs, IDs: []string{"p1"}}
	page, err := newTestFetcher(srv.URL).FetchPage(context.Background(), creds, sel, domain.Position{Offset: 1}, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasNext)
	assert.Empty(t, seen)
}

func TestFetchPage_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"errors":"Invalid API key or access token"}`, want: "HTTP 401"},
		{name: "graphql errors", status: http.StatusOK, body: `{"errors":[{"message":"Throttled"}]}`, want: "Throttled"},
		{name: "missing data", status: http.StatusOK, body: `{"data":null}`, want: "malformed"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := newCatalogServer(t, tc.status, tc.body, nil)
			_, err := newTestFetcher(srv.URL).FetchPage(context.Background(), creds, domain.Selection{Mode: domain.SelectionModeAll}, domain.Position{}, 10)
			require.Error(t, err)

			var fe *FetchError
			require.True(t, errors.As(err, &fe))
			assert.True(t, strings.Contains(err.Error(), tc.want), err.Error())
		})
	}
}

func TestNormalizeShopDomain(t *testing.T) {
	assert.Equal(t, "demo.myshopify.com", NormalizeShopDomain("demo"))
	assert.Equal(t, "demo.myshopify.com", NormalizeShopDomain("https://Demo.myshopify.com/admin"))
	assert.Equal(t, "shop.example.com", NormalizeShopDomain("shop.example.com"))
}

func TestEndpoint_DefaultsToShopHost(t *testing.T) {
	f := newTestFetcher("")
	assert.Equal(t, "https://demo.myshopify.com/admin/api/2024-10/graphql.json", f.endpoint("demo"))
}
