package collector

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"woodgate/tracker/internal/models"
	"woodgate/tracker/internal/normalize"
)

var (
	// Zillow embeds the zestimate in page JSON; that marker is far more
	// stable than the rendered markup.
	zestimateJSONRe = regexp.MustCompile(`"zestimate"\s*:\s*"?\$?([0-9][0-9,]*)`)
	zestimateTextRe = regexp.MustCompile(`(?i)Zestimate[^$]{0,120}\$([0-9][0-9,]*(?:\.[0-9]+)?\s*[KkMm]?)`)
)

// ZillowSource extracts the Zestimate from a Zillow listing page.
type ZillowSource struct{}

func (ZillowSource) Name() models.EstimateSource { return models.SourceZillow }

func (ZillowSource) FetchEstimate(ctx context.Context, client *http.Client, url string) (float64, error) {
	body, err := fetch(ctx, client, url)
	if err != nil {
		return 0, err
	}

	if m := zestimateJSONRe.FindSubmatch(body); m != nil {
		return normalize.Price(string(m[1]))
	}
	if m := zestimateTextRe.FindSubmatch(body); m != nil {
		return normalize.Price(string(m[1]))
	}
	return 0, fmt.Errorf("no zestimate found on page %s", url)
}
