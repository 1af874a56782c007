package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	"woodgate/tracker/internal/models"
	"woodgate/tracker/internal/normalize"
)

var (
	redfinHomeIDRe   = regexp.MustCompile(`/home/(\d+)`)
	redfinEstimateRe = regexp.MustCompile(`(?i)Redfin Estimate[^$]{0,120}\$([0-9][0-9,]*(?:\.[0-9]+)?\s*[KkMm]?)`)
	redfinPreviewRe  = regexp.MustCompile(`\$([0-9][0-9,]*)`)
)

// Stingray responses are prefixed with an anti-hijacking marker.
var stingrayPrefix = []byte("{}&&")

// RedfinSource reads the Redfin estimate through the stingray avm API,
// falling back to scraping the listing page when the API yields nothing.
type RedfinSource struct{}

func (RedfinSource) Name() models.EstimateSource { return models.SourceRedfin }

func (s RedfinSource) FetchEstimate(ctx context.Context, client *http.Client, listingURL string) (float64, error) {
	price, apiErr := s.fetchFromAPI(ctx, client, listingURL)
	if apiErr == nil {
		return price, nil
	}

	price, pageErr := s.fetchFromPage(ctx, client, listingURL)
	if pageErr == nil {
		return price, nil
	}
	return 0, fmt.Errorf("redfin api failed (%v); page fallback failed: %w", apiErr, pageErr)
}

// avmPayload covers the spots the estimate has been observed in.
type avmPayload struct {
	Payload struct {
		PredictedValue float64 `json:"predictedValue"`
		AVM            struct {
			Value          float64 `json:"value"`
			Amount         float64 `json:"amount"`
			PredictedValue float64 `json:"predictedValue"`
		} `json:"avm"`
		SectionPreviewText string `json:"sectionPreviewText"`
	} `json:"payload"`
}

func (RedfinSource) fetchFromAPI(ctx context.Context, client *http.Client, listingURL string) (float64, error) {
	parsed, err := url.Parse(listingURL)
	if err != nil {
		return 0, fmt.Errorf("invalid listing url: %w", err)
	}
	m := redfinHomeIDRe.FindStringSubmatch(parsed.Path)
	if m == nil {
		return 0, fmt.Errorf("no property id in %s", listingURL)
	}
	apiURL := fmt.Sprintf("%s://%s/stingray/api/home/details/avm?propertyId=%s&accessLevel=1",
		parsed.Scheme, parsed.Host, m[1])

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", randomUserAgent())
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Referer", listingURL)

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d from avm api", resp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return 0, err
	}
	var payload avmPayload
	if err := json.Unmarshal(bytes.TrimPrefix(buf.Bytes(), stingrayPrefix), &payload); err != nil {
		return 0, fmt.Errorf("failed to decode avm response: %w", err)
	}

	for _, candidate := range []float64{
		payload.Payload.PredictedValue,
		payload.Payload.AVM.Value,
		payload.Payload.AVM.Amount,
		payload.Payload.AVM.PredictedValue,
	} {
		if candidate > 0 {
			return candidate, nil
		}
	}
	if m := redfinPreviewRe.FindStringSubmatch(payload.Payload.SectionPreviewText); m != nil {
		return normalize.Price(m[1])
	}
	return 0, fmt.Errorf("no estimate in avm payload")
}

func (RedfinSource) fetchFromPage(ctx context.Context, client *http.Client, listingURL string) (float64, error) {
	body, err := fetch(ctx, client, listingURL)
	if err != nil {
		return 0, err
	}
	if m := redfinEstimateRe.FindSubmatch(body); m != nil {
		return normalize.Price(string(m[1]))
	}
	return 0, fmt.Errorf("no redfin estimate found on page %s", listingURL)
}
