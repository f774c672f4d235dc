package feed_test

import (
	"context"
	"testing"

	"github.com/shubham-shewale/crypto-stream/pkg/feed"
)

type fixedRand struct{ val float64 }

func (r fixedRand) Float64() float64 { return r.val }

func TestSimulated_MidpointKeepsBasePrice(t *testing.T) {
	// (0.5 * 2) - 1 = 0 fluctuation, so price stays at base
	sim := feed.NewSimulated(fixedRand{val: 0.5}, map[string]float64{"bitcoin": 40000})

	quotes, err := sim.FetchMarkets(context.Background(), []string{"bitcoin", "unknown"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("Expected 2 quotes, got %d", len(quotes))
	}
	if *quotes[0].CurrentPrice != 40000 {
		t.Errorf("Expected 40000, got %f", *quotes[0].CurrentPrice)
	}
	if *quotes[1].CurrentPrice != 100 {
		t.Errorf("Expected default base 100, got %f", *quotes[1].CurrentPrice)
	}
}

func TestSimulated_StepIsBounded(t *testing.T) {
	sim := feed.NewSimulated(fixedRand{val: 1}, map[string]float64{"bitcoin": 100})

	for i := 0; i < 3; i++ {
		if _, err := sim.FetchMarkets(context.Background(), []string{"bitcoin"}); err != nil {
			t.Fatal(err)
		}
	}
	quotes, _ := sim.FetchMarkets(context.Background(), []string{"bitcoin"})
	// four steps of +0.5%
	want := 100 * 1.005 * 1.005 * 1.005 * 1.005
	if got := *quotes[0].CurrentPrice; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("Expected %f, got %f", want, got)
	}
	if *quotes[0].PriceChangePercentage24h <= 0 {
		t.Error("Expected positive change against base")
	}
}
