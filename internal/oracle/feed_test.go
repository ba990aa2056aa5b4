package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFeedOracleRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"rate": "3934"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	feed, err := NewFeedOracle(srv.URL)
	if err != nil {
		t.Fatalf("new feed oracle: %v", err)
	}

	rate, err := feed.Rate(context.Background())
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if rate.String() != "393400000000" {
		t.Fatalf("unexpected rate %s", rate)
	}
}

func TestFeedOracleUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	feed, err := NewFeedOracle(srv.URL)
	if err != nil {
		t.Fatalf("new feed oracle: %v", err)
	}

	if _, err := feed.Rate(context.Background()); err == nil {
		t.Fatal("expected error from failing feed")
	}
}

func TestStaticOracle(t *testing.T) {
	o, err := NewStaticOracle("3934.02")
	if err != nil {
		t.Fatalf("new static oracle: %v", err)
	}
	rate, err := o.Rate(context.Background())
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if rate.String() != "393402000000" {
		t.Fatalf("unexpected rate %s", rate)
	}

	if _, err := NewStaticOracle("not-a-number"); err == nil {
		t.Fatal("expected error for bad rate")
	}
}
