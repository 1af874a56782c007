package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedfinFetchEstimateFromAPI(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/stingray/api/home/details/avm", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "38879483", r.URL.Query().Get("propertyId"))
		assert.Equal(t, "1", r.URL.Query().Get("accessLevel"))
		assert.Contains(t, r.Header.Get("Referer"), "/home/38879483")
		w.Write([]byte(`{}&&{"payload":{"predictedValue":421500}}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	listingURL := server.URL + "/PA/Paoli/111-Woodgate-Ln-19301/home/38879483"
	price, err := RedfinSource{}.FetchEstimate(context.Background(), server.Client(), listingURL)
	require.NoError(t, err)
	assert.Equal(t, 421500.0, price)
}

func TestRedfinFetchEstimateFromNestedAVM(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/stingray/api/home/details/avm", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}&&{"payload":{"avm":{"value":418000}}}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	listingURL := server.URL + "/PA/Paoli/111-Woodgate-Ln-19301/home/123"
	price, err := RedfinSource{}.FetchEstimate(context.Background(), server.Client(), listingURL)
	require.NoError(t, err)
	assert.Equal(t, 418000.0, price)
}

func TestRedfinFetchEstimateFromPreviewText(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/stingray/api/home/details/avm", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}&&{"payload":{"sectionPreviewText":"The Redfin Estimate for this home is $415,000"}}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	listingURL := server.URL + "/PA/Paoli/111-Woodgate-Ln-19301/home/123"
	price, err := RedfinSource{}.FetchEstimate(context.Background(), server.Client(), listingURL)
	require.NoError(t, err)
	assert.Equal(t, 415000.0, price)
}

func TestRedfinFallsBackToPageScrape(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/stingray/api/home/details/avm", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div>Redfin Estimate</div><div>$419,000</div></body></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	listingURL := server.URL + "/PA/Paoli/111-Woodgate-Ln-19301/home/123"
	price, err := RedfinSource{}.FetchEstimate(context.Background(), server.Client(), listingURL)
	require.NoError(t, err)
	assert.Equal(t, 419000.0, price)
}

func TestRedfinPageScrapeWithoutHomeID(t *testing.T) {
	// A URL with no /home/<id> segment cannot use the API, but the page
	// fallback still resolves it.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>Redfin Estimate: $402,500</body></html>`))
	}))
	defer server.Close()

	listingURL := server.URL + "/PA/Paoli/111-Woodgate-Ln-19301"
	price, err := RedfinSource{}.FetchEstimate(context.Background(), server.Client(), listingURL)
	require.NoError(t, err)
	assert.Equal(t, 402500.0, price)
}

func TestRedfinNoEstimateAnywhere(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/stingray/api/home/details/avm", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}&&{"payload":{}}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>Sold above list</body></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	listingURL := server.URL + "/PA/Paoli/111-Woodgate-Ln-19301/home/123"
	_, err := RedfinSource{}.FetchEstimate(context.Background(), server.Client(), listingURL)
	assert.Error(t, err)
}
