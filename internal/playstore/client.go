// Package playstore verifies in-app purchase tokens against the Google Play
// Developer API. Callers consume the boolean verdict and keep the raw
// response for audit; the client never interprets anything beyond the
// purchase state.
package playstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gamesync-backend/internal/config"
	"github.com/gamesync-backend/internal/domain"
)

// purchaseState values reported by the purchases.products resource
const (
	statePurchased = 0
)

// Client calls the androidpublisher purchases.products endpoint
type Client struct {
	httpClient  *http.Client
	baseURL     string
	packageName string
	accessToken string
	logger      *slog.Logger
}

// NewClient creates a new Play Store verification client
func NewClient(cfg *config.PlayStoreConfig, logger *slog.Logger) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		baseURL:     cfg.BaseURL,
		packageName: cfg.PackageName,
		accessToken: cfg.AccessToken,
		logger:      logger,
	}
}

// productResponse is the subset of the purchases.products resource we act on
type productResponse struct {
	PurchaseState *int `json:"purchaseState"`
}

// Verify confirms a purchase token with the store. A reachable store that
// rejects the token yields Verified=false with the raw body attached; a
// transport failure returns an error and no raw response.
func (c *Client) Verify(ctx context.Context, productID, token string) (domain.VerificationResult, error) {
	endpoint := fmt.Sprintf(
		"%s/androidpublisher/v3/applications/%s/purchases/products/%s/tokens/%s",
		c.baseURL,
		url.PathEscape(c.packageName),
		url.PathEscape(productID),
		url.PathEscape(token),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.VerificationResult{}, fmt.Errorf("building verification request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.VerificationResult{}, fmt.Errorf("calling verification endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.VerificationResult{}, fmt.Errorf("reading verification response: %w", err)
	}

	result := domain.VerificationResult{Raw: json.RawMessage(body)}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("purchase verification rejected",
			"product_id", productID,
			"status", resp.StatusCode,
		)
		return result, nil
	}

	var parsed productResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.logger.Warn("unparseable verification response", "product_id", productID, "error", err)
		return result, nil
	}

	result.Verified = parsed.PurchaseState != nil && *parsed.PurchaseState == statePurchased
	return result, nil
}
