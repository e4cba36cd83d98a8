// Package geourl turns a pasted map link or "lat,lng" text into a coordinate.
package geourl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNoCoordinates  = errors.New("no coordinates found")
	ErrHostNotAllowed = errors.New("host not allowed")
)

// DefaultHosts are the map link hosts NewResolver will fetch: the short-link
// domains and the pages they redirect to.
var DefaultHosts = []string{
	"maps.app.goo.gl",
	"goo.gl",
	"g.co",
	"maps.google.com",
	"www.google.com",
	"google.com",
}

var (
	reAt     = regexp.MustCompile(`@(-?\d+(?:\.\d+)?),(-?\d+(?:\.\d+)?)`)
	re3d4d   = regexp.MustCompile(`!3d(-?\d+(?:\.\d+)?)!4d(-?\d+(?:\.\d+)?)`)
	reSearch = regexp.MustCompile(`/maps/search/(-?\d+(?:\.\d+)?),[\s+]*(-?\d+(?:\.\d+)?)`)
	reQ      = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*$`)
)

// Resolver extracts coordinates, following short links over HTTP when the
// text itself has none. Only links on Hosts are fetched, and every redirect
// must stay on Hosts too. A Resolver with no Hosts never makes a request.
type Resolver struct {
	Client *http.Client
	Hosts  []string
}

func NewResolver() *Resolver {
	return &Resolver{
		Client: &http.Client{Timeout: 15 * time.Second},
		Hosts:  DefaultHosts,
	}
}

func (r *Resolver) allowed(u *url.URL) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range r.Hosts {
		if host == strings.ToLower(h) {
			return true
		}
	}
	return false
}

func (r *Resolver) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return errors.New("too many redirects")
	}
	if !r.allowed(req.URL) {
		return fmt.Errorf("%w: redirect to %s", ErrHostNotAllowed, req.URL.Host)
	}
	return nil
}

// Extract returns the coordinate in input: a "lat,lng" pair, a maps URL
// carrying one, or a short link that redirects to such a URL.
func (r *Resolver) Extract(ctx context.Context, input string) (lat, lng float64, err error) {
	input = strings.TrimSpace(input)
	if m := reQ.FindStringSubmatch(input); len(m) == 3 {
		if lat, lng, ok := parse2(m[1], m[2]); ok {
			return lat, lng, nil
		}
	}
	if lat, lng, ok := extractFromURL(input); ok {
		return lat, lng, nil
	}

	u, err := url.Parse(input)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return 0, 0, ErrNoCoordinates
	}
	if !r.allowed(u) {
		return 0, 0, fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Host)
	}
	finalURL, err := r.expand(ctx, input)
	if err != nil {
		return 0, 0, fmt.Errorf("expand %s: %w", input, err)
	}
	lat, lng, ok := extractFromURL(finalURL)
	if !ok {
		return 0, 0, fmt.Errorf("%w in %s", ErrNoCoordinates, finalURL)
	}
	return lat, lng, nil
}

// expand follows redirects and returns the final URL.
func (r *Resolver) expand(ctx context.Context, input string) (string, error) {
	var client http.Client
	if r.Client != nil {
		client = *r.Client
	}
	client.CheckRedirect = r.checkRedirect

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, input, nil)
	if err != nil {
		return "", err
	}
	// Some endpoints behave better with a UA.
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; dailytap/1.0)")
	req.Header.Set("Accept-Language", "en;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.Request == nil || resp.Request.URL == nil {
		return "", errors.New("failed to determine final URL")
	}
	return resp.Request.URL.String(), nil
}

func extractFromURL(s string) (lat, lng float64, ok bool) {
	// .../@lat,lng,zoom...
	if m := reAt.FindStringSubmatch(s); len(m) == 3 {
		return parse2(m[1], m[2])
	}
	// ...!3dlat!4dlng...
	if m := re3d4d.FindStringSubmatch(s); len(m) == 3 {
		return parse2(m[1], m[2])
	}
	// /maps/search/lat,lng
	if m := reSearch.FindStringSubmatch(s); len(m) == 3 {
		return parse2(m[1], m[2])
	}

	// ?q=lat,lng or ?query=lat,lng
	u, err := url.Parse(s)
	if err == nil {
		for _, key := range []string{"q", "query"} {
			if v := u.Query().Get(key); v != "" {
				if mm := reQ.FindStringSubmatch(v); len(mm) == 3 {
					return parse2(mm[1], mm[2])
				}
			}
		}
	}

	return 0, 0, false
}

func parse2(a, b string) (lat, lng float64, ok bool) {
	la, err1 := strconv.ParseFloat(a, 64)
	lo, err2 := strconv.ParseFloat(b, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return la, lo, true
}
