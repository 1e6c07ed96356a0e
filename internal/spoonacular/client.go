// Package spoonacular is a small client for the Spoonacular recipe API.
//
// Only the two calls the importer needs are implemented: complexSearch
// and recipe information. Both authenticate with the apiKey query
// parameter.
package spoonacular

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the public API origin.
const DefaultBaseURL = "https://api.spoonacular.com"

// DefaultSearchResults is how many results a search asks for.
const DefaultSearchResults = 12

var (
	// ErrNotFound is returned when the API answers 404 for a recipe id.
	ErrNotFound = errors.New("spoonacular: recipe not found")
	// ErrEmptyQuery is returned by Search for a blank query.
	ErrEmptyQuery = errors.New("spoonacular: query must not be empty")
)

// Summary is one complexSearch result. With addRecipeInformation set the
// API includes summary, timings and servings alongside id/title/image.
type Summary struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Image          string `json:"image"`
	ImageType      string `json:"imageType"`
	ReadyInMinutes int    `json:"readyInMinutes"`
	Servings       int    `json:"servings"`
	Summary        string `json:"summary"`
	SourceURL      string `json:"sourceUrl"`
}

// SearchResponse models the complexSearch payload.
type SearchResponse struct {
	Results      []Summary `json:"results"`
	Offset       int       `json:"offset"`
	Number       int       `json:"number"`
	TotalResults int       `json:"totalResults"`
}

// Ingredient is one entry of extendedIngredients.
type Ingredient struct {
	ID       int64   `json:"id"`
	Amount   float64 `json:"amount"`
	Unit     string  `json:"unit"`
	Name     string  `json:"name"`
	Original string  `json:"original"`
}

// Step is one numbered instruction.
type Step struct {
	Number int    `json:"number"`
	Step   string `json:"step"`
}

// InstructionGroup is one entry of analyzedInstructions. Most recipes have
// a single unnamed group.
type InstructionGroup struct {
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

// Recipe is the recipe information payload.
type Recipe struct {
	ID                   int64              `json:"id"`
	Title                string             `json:"title"`
	Summary              string             `json:"summary"`
	Image                string             `json:"image"`
	ReadyInMinutes       int                `json:"readyInMinutes"`
	Servings             int                `json:"servings"`
	SourceURL            string             `json:"sourceUrl"`
	Instructions         string             `json:"instructions"`
	ExtendedIngredients  []Ingredient       `json:"extendedIngredients"`
	AnalyzedInstructions []InstructionGroup `json:"analyzedInstructions"`
}

// Client calls the Spoonacular API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout replaces the default 10s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// New creates a client. An empty baseURL means DefaultBaseURL.
func New(apiKey, baseURL string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("spoonacular api key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Search runs complexSearch with recipe information and ingredients
// included. number <= 0 means DefaultSearchResults.
func (c *Client) Search(ctx context.Context, query string, number int) (*SearchResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if number <= 0 {
		number = DefaultSearchResults
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("number", strconv.Itoa(number))
	params.Set("addRecipeInformation", "true")
	params.Set("fillIngredients", "true")

	var payload SearchResponse
	if err := c.get(ctx, "/recipes/complexSearch", params, &payload); err != nil {
		return nil, fmt.Errorf("spoonacular search: %w", err)
	}
	if payload.Results == nil {
		payload.Results = []Summary{}
	}
	return &payload, nil
}

// Recipe fetches full information for one recipe id.
func (c *Client) Recipe(ctx context.Context, id int64) (*Recipe, error) {
	if id <= 0 {
		return nil, ErrNotFound
	}

	params := url.Values{}
	params.Set("includeNutrition", "false")

	var payload Recipe
	if err := c.get(ctx, "/recipes/"+strconv.FormatInt(id, 10)+"/information", params, &payload); err != nil {
		return nil, fmt.Errorf("spoonacular recipe %d: %w", id, err)
	}
	if payload.ID == 0 {
		return nil, fmt.Errorf("spoonacular recipe %d: %w", id, ErrNotFound)
	}
	return &payload, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("parse spoonacular url: %w", err)
	}
	params.Set("apiKey", c.apiKey)
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		// The URL carries the api key; drop it from the error text.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %d (latency=%v)", resp.StatusCode, latency)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
