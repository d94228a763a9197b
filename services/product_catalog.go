package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ProductCatalog answers whether a product exists.
type ProductCatalog interface {
	ProductExists(ctx context.Context, productID string) (bool, error)
}

// HTTPProductCatalog queries the product service's internal endpoint.
type HTTPProductCatalog struct {
	baseURL string
	client  *http.Client
}

func NewHTTPProductCatalog(baseURL string) *HTTPProductCatalog {
	return &HTTPProductCatalog{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *HTTPProductCatalog) ProductExists(ctx context.Context, productID string) (bool, error) {
	endpoint := fmt.Sprintf("%s/products/internal/%s", c.baseURL, url.PathEscape(productID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("product service request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("product service returned %d", resp.StatusCode)
	}
}
