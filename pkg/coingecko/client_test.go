package coingecko

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("", "")

		if c.baseURL != DefaultBaseURL {
			t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultBaseURL)
		}
		if c.maxRetries != 2 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 2)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with options", func(t *testing.T) {
		logger := zap.NewNop()
		hc := &http.Client{}
		c := NewClient("https://example.com", "key",
			WithHTTPClient(hc),
			WithTimeout(5*time.Second),
			WithRetries(5, 2*time.Second),
			WithLogger(logger),
		)
		if c.httpClient != hc || c.httpClient.Timeout != 5*time.Second {
			t.Error("http client options not applied")
		}
		if c.maxRetries != 5 || c.retryBackoff != 2*time.Second {
			t.Errorf("retries = %d/%v", c.maxRetries, c.retryBackoff)
		}
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
	})
}

func TestFetchMarkets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/markets" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		want := map[string]string{
			"vs_currency":             "usd",
			"ids":                     "bitcoin,ethereum",
			"order":                   "market_cap_desc",
			"per_page":                "250",
			"page":                    "1",
			"sparkline":               "false",
			"price_change_percentage": "24h",
		}
		for k, v := range want {
			if got := q.Get(k); got != v {
				t.Errorf("%s = %q, want %q", k, got, v)
			}
		}
		if r.Header.Get("x-cg-demo-api-key") != "secret" {
			t.Error("api key header missing")
		}
		w.Write([]byte(`[
			{"id":"bitcoin","symbol":"btc","name":"Bitcoin","image":"https://img/btc.png","current_price":42000.5,
			 "price_change_percentage_24h":1.2,"market_cap":800000000000,"total_volume":null,"ath":69000,"atl":67.81},
			{"id":"ethereum","symbol":"eth","name":"Ethereum","current_price":null}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	quotes, err := c.FetchMarkets(context.Background(), []string{"bitcoin", "ethereum"})
	if err != nil {
		t.Fatalf("FetchMarkets() error = %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("got %d quotes, want 2", len(quotes))
	}
	if quotes[0].CurrentPrice == nil || *quotes[0].CurrentPrice != 42000.5 {
		t.Errorf("bitcoin price = %v", quotes[0].CurrentPrice)
	}
	if quotes[0].TotalVolume != nil {
		t.Error("null total_volume should decode to nil")
	}
	if quotes[1].CurrentPrice != nil {
		t.Error("null current_price should decode to nil")
	}
}

func TestFetchMarkets_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", WithRetries(2, time.Millisecond))
	if _, err := c.FetchMarkets(context.Background(), []string{"bitcoin"}); err != nil {
		t.Fatalf("FetchMarkets() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestFetchMarkets_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", WithRetries(3, time.Millisecond))
	_, err := c.FetchMarkets(context.Background(), []string{"bitcoin"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400 APIError", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestFetchMarkets_EmptyIDs(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", "")
	quotes, err := c.FetchMarkets(context.Background(), nil)
	if err != nil || quotes != nil {
		t.Errorf("FetchMarkets(nil) = %v, %v", quotes, err)
	}
}
