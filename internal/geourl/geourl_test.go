package geourl

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
)

func TestExtractFromURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantLat float64
		wantLng float64
		wantOk  bool
	}{
		{
			name:    "Pattern A: @lat,lng format",
			url:     "https://www.google.com/maps/@39.9496,-75.1503,15z",
			wantLat: 39.9496,
			wantLng: -75.1503,
			wantOk:  true,
		},
		{
			name:    "Pattern B: !3dlat!4dlng format",
			url:     "https://www.google.com/maps/place/Liberty+Bell!3d39.9496!4d-75.1503",
			wantLat: 39.9496,
			wantLng: -75.1503,
			wantOk:  true,
		},
		{
			name:    "Pattern C: /maps/search/lat,lng format with plus",
			url:     "https://www.google.com/maps/search/39.952584,+75.165222?coh=277533&entry=tts",
			wantLat: 39.952584,
			wantLng: 75.165222,
			wantOk:  true,
		},
		{
			name:    "Pattern C: /maps/search/lat,lng format without plus",
			url:     "https://www.google.com/maps/search/39.952584,75.165222",
			wantLat: 39.952584,
			wantLng: 75.165222,
			wantOk:  true,
		},
		{
			name:    "Pattern C: /maps/search/lat,lng with space separator",
			url:     "https://www.google.com/maps/search/39.952584, 75.165222",
			wantLat: 39.952584,
			wantLng: 75.165222,
			wantOk:  true,
		},
		{
			name:    "Pattern C: /maps/search/lat,lng with negative longitude",
			url:     "https://www.google.com/maps/search/39.952584,-75.165222",
			wantLat: 39.952584,
			wantLng: -75.165222,
			wantOk:  true,
		},
		{
			name:    "Pattern D: query param ?q=lat,lng",
			url:     "https://www.google.com/maps?q=39.952584,75.165222",
			wantLat: 39.952584,
			wantLng: 75.165222,
			wantOk:  true,
		},
		{
			name:    "Pattern D: query param ?query=lat,lng",
			url:     "https://www.google.com/maps?query=39.952584, 75.165222",
			wantLat: 39.952584,
			wantLng: 75.165222,
			wantOk:  true,
		},
		{
			name:    "Negative coordinates",
			url:     "https://www.google.com/maps/search/-33.8688,+151.2093",
			wantLat: -33.8688,
			wantLng: 151.2093,
			wantOk:  true,
		},
		{
			name:    "No coordinates",
			url:     "https://www.google.com/maps/place/City+Hall",
			wantLat: 0,
			wantLng: 0,
			wantOk:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotLat, gotLng, gotOk := extractFromURL(tt.url)
			if gotOk != tt.wantOk {
				t.Errorf("extractFromURL() gotOk = %v, want %v", gotOk, tt.wantOk)
				return
			}
			if !tt.wantOk {
				return
			}
			if gotLat != tt.wantLat {
				t.Errorf("extractFromURL() gotLat = %v, want %v", gotLat, tt.wantLat)
			}
			if gotLng != tt.wantLng {
				t.Errorf("extractFromURL() gotLng = %v, want %v", gotLng, tt.wantLng)
			}
		})
	}
}

func TestResolverExtract(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/short", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/maps/place/City+Hall/@39.9523,-75.1636,17z", http.StatusFound)
	})
	mux.HandleFunc("/dead-end", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/maps/place/Somewhere", http.StatusFound)
	})
	mux.HandleFunc("/maps/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := &Resolver{Client: srv.Client(), Hosts: []string{"127.0.0.1"}}
	ctx := context.Background()

	tests := []struct {
		name    string
		input   string
		wantLat float64
		wantLng float64
		wantErr bool
	}{
		{name: "plain pair", input: " 39.9496, -75.1503 ", wantLat: 39.9496, wantLng: -75.1503},
		{name: "full url", input: "https://www.google.com/maps?q=39.9656,-75.1810", wantLat: 39.9656, wantLng: -75.1810},
		{name: "short link", input: srv.URL + "/short", wantLat: 39.9523, wantLng: -75.1636},
		{name: "short link without coordinates", input: srv.URL + "/dead-end", wantErr: true},
		{name: "free text", input: "city hall", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lng, err := r.Extract(ctx, tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrNoCoordinates) {
					t.Fatalf("Extract() error = %v, want ErrNoCoordinates", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if lat != tt.wantLat || lng != tt.wantLng {
				t.Errorf("Extract() = %v,%v, want %v,%v", lat, lng, tt.wantLat, tt.wantLng)
			}
		})
	}
}

func TestResolverRefusesOtherHosts(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/short", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, "/maps/place/City+Hall/@39.9523,-75.1636,17z", http.StatusFound)
	})
	mux.HandleFunc("/escape", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, "http://metadata.internal/maps/@39.9523,-75.1636,17z", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	ctx := context.Background()

	tests := []struct {
		name     string
		resolver *Resolver
		input    string
		wantHits int32
	}{
		{"host not listed", &Resolver{Client: srv.Client(), Hosts: []string{"maps.app.goo.gl"}}, srv.URL + "/short", 0},
		{"no hosts", &Resolver{Client: srv.Client()}, srv.URL + "/short", 0},
		{"redirect leaves the list", &Resolver{Client: srv.Client(), Hosts: []string{"127.0.0.1"}}, srv.URL + "/escape", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits.Store(0)
			_, _, err := tt.resolver.Extract(ctx, tt.input)
			if !errors.Is(err, ErrHostNotAllowed) {
				t.Fatalf("Extract() error = %v, want ErrHostNotAllowed", err)
			}
			if got := hits.Load(); got != tt.wantHits {
				t.Errorf("requests = %d, want %d", got, tt.wantHits)
			}
		})
	}
}

func TestNewResolverAllowsMapShortLinks(t *testing.T) {
	r := NewResolver()
	for _, raw := range []string{"https://maps.app.goo.gl/abc123", "https://goo.gl/maps/xyz"} {
		u, _ := url.Parse(raw)
		if !r.allowed(u) {
			t.Errorf("%s refused", raw)
		}
	}
	for _, raw := range []string{"http://10.0.0.1/x", "http://localhost:6379/", "ftp://goo.gl/x", "https://maps.app.goo.gl.evil.test/x"} {
		u, _ := url.Parse(raw)
		if r.allowed(u) {
			t.Errorf("%s allowed", raw)
		}
	}
}
