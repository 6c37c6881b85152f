package domain

// Product is a catalog record as returned by the commerce platform.
// It is forwarded to the generation service unchanged.
type Product struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Handle      string           `json:"handle"`
	Vendor      string           `json:"vendor"`
	ProductType string           `json:"productType"`
	Tags        []string         `json:"tags"`
	Images      []ProductImage   `json:"images"`
	Variants    []ProductVariant `json:"variants"`
}

// ProductImage is one product image.
type ProductImage struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	AltText string `json:"altText,omitempty"`
}

// ProductVariant is one product variant.
type ProductVariant struct {
	ID    string `json:"id"`
	Price string `json:"price"`
	Title string `json:"title"`
}
