package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
)

const maxFeedBody = 64 << 10

// HTTPFeed reads rates from a JSON price endpoint:
//
//	GET {baseURL}/rates/{currency} → {"currency":"EUR","rate":"1.08"}
type HTTPFeed struct {
	baseURL    string
	httpClient *http.Client
}

type FeedOption func(*HTTPFeed)

func WithHTTPClient(c *http.Client) FeedOption {
	return func(f *HTTPFeed) { f.httpClient = c }
}

func NewHTTPFeed(baseURL string, timeout time.Duration, opts ...FeedOption) *HTTPFeed {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	f := &HTTPFeed{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type feedResponse struct {
	Currency string          `json:"currency"`
	Rate     decimal.Decimal `json:"rate"`
}

func (f *HTTPFeed) Rate(ctx context.Context, currency domain.Currency) (decimal.Decimal, error) {
	endpoint := f.baseURL + "/rates/" + url.PathEscape(currency.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, dErrors.Wrap(err, dErrors.CodeExternalDependency, "build rate request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return decimal.Zero, dErrors.Wrap(err, dErrors.CodeExternalDependency, "rate feed timed out")
		}
		return decimal.Zero, dErrors.Wrap(err, dErrors.CodeExternalDependency, "rate feed unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBody))
	if err != nil {
		return decimal.Zero, dErrors.Wrap(err, dErrors.CodeExternalDependency, "read rate feed response")
	}
	return parseFeedResponse(resp.StatusCode, body, currency)
}

func parseFeedResponse(status int, body []byte, currency domain.Currency) (decimal.Decimal, error) {
	if status != http.StatusOK {
		return decimal.Zero, dErrors.Newf(dErrors.CodeExternalDependency, "rate feed returned status %d for %s", status, currency)
	}
	var out feedResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return decimal.Zero, dErrors.Wrap(err, dErrors.CodeExternalDependency, "malformed rate feed response")
	}
	if out.Currency != "" && !strings.EqualFold(out.Currency, currency.String()) {
		return decimal.Zero, dErrors.New(dErrors.CodeExternalDependency,
			fmt.Sprintf("rate feed answered for %s, asked %s", out.Currency, currency))
	}
	return out.Rate, nil
}
