package catalog

import "github.com/timmy/bulkgen/internal/domain"

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

// graphQLEnvelope is implemented by every response type so query can
// surface top-level GraphQL errors uniformly.
type graphQLEnvelope interface {
	graphQLErrors() []graphQLError
}

type productsResponse struct {
	Data *struct {
		Products *struct {
			Edges []struct {
				Node productNode `json:"node"`
			} `json:"edges"`
			PageInfo struct {
				HasNextPage bool    `json:"hasNextPage"`
				EndCursor   *string `json:"endCursor"`
			} `json:"pageInfo"`
		} `json:"products"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

func (r *productsResponse) graphQLErrors() []graphQLError { return r.Errors }

type nodesResponse struct {
	Data *struct {
		Nodes []*productNode `json:"nodes"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

func (r *nodesResponse) graphQLErrors() []graphQLError { return r.Errors }

type productNode struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Handle      string   `json:"handle"`
	Vendor      string   `json:"vendor"`
	ProductType string   `json:"productType"`
	Tags        []string `json:"tags"`
	Images      struct {
		Edges []struct {
			Node struct {
				ID      string `json:"id"`
				URL     string `json:"url"`
				AltText string `json:"altText"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"images"`
	Variants struct {
		Edges []struct {
			Node struct {
				ID    string `json:"id"`
				Price string `json:"price"`
				Title string `json:"title"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"variants"`
}

func (n *productNode) toDomain() domain.Product {
	p := domain.Product{
		ID:          n.ID,
		Title:       n.Title,
		Description: n.Description,
		Handle:      n.Handle,
		Vendor:      n.Vendor,
		ProductType: n.ProductType,
		Tags:        n.Tags,
		Images:      make([]domain.ProductImage, 0, len(n.Images.Edges)),
		Variants:    make([]domain.ProductVariant, 0, len(n.Variants.Edges)),
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	for _, e := range n.Images.Edges {
		p.Images = append(p.Images, domain.ProductImage{ID: e.Node.ID, URL: e.Node.URL, AltText: e.Node.AltText})
	}
	for _, e := range n.Variants.Edges {
		p.Variants = append(p.Variants, domain.ProductVariant{ID: e.Node.ID, Price: e.Node.Price, Title: e.Node.Title})
	}
	return p
}
