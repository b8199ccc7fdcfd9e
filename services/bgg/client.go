package bgg

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"boardgame-api-go/circuitbreaker"
	"boardgame-api-go/game"
	"boardgame-api-go/logcolors"
	"boardgame-api-go/utils"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://boardgamegeek.com/xmlapi2"
	defaultTimeout = 20 * time.Second

	// Browser-like UA to avoid overly strict CDN heuristics
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/124.0 Safari/537.36 BoardGameLibrary/1.0"
	acceptHeader = "application/xml, text/xml;q=0.9, */*;q=0.8"
)

// Accepted item types on search results
var searchTypes = map[string]bool{
	"boardgame":          true,
	"boardgameexpansion": true,
}

// ErrUnavailable marks a terminal fetch failure after retries are exhausted.
// It means "upstream temporarily unavailable", never "does not exist".
var ErrUnavailable = errors.New("upstream unavailable")

// Limiter gates outbound calls so no two requests leave closer together than
// the configured minimum spacing. *rate.Limiter satisfies it; tests inject a
// zero-wait double.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Client talks to the upstream XML API with client-side rate limiting,
// transparent decompression, and retry with linear backoff on transient
// failures (network errors, malformed payloads, and the upstream's
// "still processing, try later" placeholder responses).
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    Limiter
	breaker    *circuitbreaker.CircuitBreaker
	retries    int
	backoff    time.Duration
	sleep      func(time.Duration)
}

// Config holds client construction parameters. Zero values fall back to the
// upstream defaults (350ms spacing, 5 attempts, 1.2s backoff base).
type Config struct {
	BaseURL     string
	MinInterval time.Duration
	Timeout     time.Duration
	Retries     int
	Backoff     time.Duration
	Breaker     *circuitbreaker.CircuitBreaker
}

// New creates a Client. The minimum-interval gate is shared process-wide
// state: all callers of this Client serialize on one limiter.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 350 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 5
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 1200 * time.Millisecond
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		breaker:    cfg.Breaker,
		retries:    cfg.Retries,
		backoff:    cfg.Backoff,
		sleep:      time.Sleep,
	}
}

// SetLimiter replaces the request-spacing gate (used by tests).
func (c *Client) SetLimiter(l Limiter) { c.limiter = l }

// Search returns the ids matching a text query, restricted to the accepted
// item types, de-duplicated preserving order.
func (c *Client) Search(query string) ([]int, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("type", "boardgame,boardgameexpansion")

	var doc searchDoc
	if err := c.getXML(c.baseURL+"/search?"+params.Encode(), &doc); err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(doc.Items))
	for _, item := range doc.Items {
		if !searchTypes[strings.ToLower(item.Type)] {
			continue
		}
		id, err := strconv.Atoi(item.ID)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return dedupe(ids), nil
}

// Hot returns the trending list of the given kind.
func (c *Client) Hot(kind string) ([]int, error) {
	var doc hotDoc
	if err := c.getXML(c.baseURL+"/hot?type="+url.QueryEscape(kind), &doc); err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(doc.Items))
	for _, item := range doc.Items {
		attr := item.ID
		if attr == "" {
			attr = item.ObjectID
		}
		id, err := strconv.Atoi(attr)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return dedupe(ids), nil
}

// Things fetches detail records for a batch of ids (comma-joined upstream).
// Unparsable items are dropped silently; the caller gets whatever resolved.
func (c *Client) Things(ids []int, stats bool) ([]*game.Game, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	u := c.baseURL + "/thing?id=" + strings.Join(parts, ",")
	if stats {
		u += "&stats=1"
	}

	var doc thingDoc
	if err := c.getXML(u, &doc); err != nil {
		return nil, err
	}

	games := make([]*game.Game, 0, len(doc.Items))
	for _, item := range doc.Items {
		if g := item.toGame(); g != nil {
			games = append(games, g)
		}
	}
	return games, nil
}

// getXML fetches and parses an upstream document, retrying transient
// failures with linearly increasing backoff. Only the final attempt's
// failure is surfaced, wrapped in ErrUnavailable.
func (c *Client) getXML(rawURL string, into interface{}) error {
	if c.breaker != nil && !c.breaker.Allow() {
		return fmt.Errorf("%w: circuit open", ErrUnavailable)
	}

	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		err := c.attempt(rawURL, into)
		if err == nil {
			if c.breaker != nil {
				c.breaker.RecordSuccess()
			}
			return nil
		}
		lastErr = err
		log.Debugf("%s Attempt %d/%d failed: %v", logcolors.LogFetch, attempt, c.retries, err)
		if attempt < c.retries {
			c.sleep(c.backoff * time.Duration(attempt))
		}
	}

	if c.breaker != nil {
		c.breaker.RecordFailure()
	}
	log.Warnf("%s Giving up on %s: %v", logcolors.LogFetch, rawURL, lastErr)
	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) attempt(rawURL string, into interface{}) error {
	if err := c.limiter.Wait(context.Background()); err != nil {
		return fmt.Errorf("limiter: %w", err)
	}

	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	data := utils.MaybeDecompress(body)

	if isQueuedResponse(data) {
		return errors.New("queued response, try later")
	}

	if err := xml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// isQueuedResponse detects the upstream's "still processing" placeholder,
// which arrives as a <message> payload instead of a result document.
func isQueuedResponse(data []byte) bool {
	if !bytes.Contains(data, []byte("<message")) {
		return false
	}
	lower := bytes.ToLower(data)
	return bytes.Contains(lower, []byte("queue")) || bytes.Contains(lower, []byte("process"))
}

func dedupe(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
