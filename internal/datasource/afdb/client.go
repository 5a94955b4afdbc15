// Package afdb retrieves prediction metadata and files from the AlphaFold
// Protein Structure Database REST API.
package afdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the public AlphaFold DB API root.
const DefaultBaseURL = "https://alphafold.ebi.ac.uk/api"

var (
	// ErrNotFound is returned when the API has no prediction for an accession.
	ErrNotFound = errors.New("no prediction found")
	// ErrInvalidURL is returned for empty or non-http resource locators.
	ErrInvalidURL = errors.New("invalid resource url")
)

// StatusError reports a non-200 HTTP response.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("GET %s: HTTP %d: %s", e.URL, e.Status, e.Body)
	}
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.Status)
}

// Temporary reports whether the request may succeed when retried.
func (e *StatusError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Prediction is one entry of the /prediction/{accession} response. Only the
// fields used by amfold are decoded.
type Prediction struct {
	EntryID                string `json:"entryId"`
	Gene                   string `json:"gene"`
	UniprotAccession       string `json:"uniprotAccession"`
	UniprotID              string `json:"uniprotId"`
	UniprotDescription     string `json:"uniprotDescription"`
	TaxID                  int    `json:"taxId"`
	OrganismScientificName string `json:"organismScientificName"`
	UniprotStart           int    `json:"uniprotStart"`
	UniprotEnd             int    `json:"uniprotEnd"`
	UniprotSequence        string `json:"uniprotSequence"`
	LatestVersion          int    `json:"latestVersion"`
	PDBURL                 string `json:"pdbUrl"`
	CIFURL                 string `json:"cifUrl"`
	BCIFURL                string `json:"bcifUrl"`
	PAEImageURL            string `json:"paeImageUrl"`
	PAEDocURL              string `json:"paeDocUrl"`
	AMAnnotationsURL       string `json:"amAnnotationsUrl"`
	AMAnnotationsHg19URL   string `json:"amAnnotationsHg19Url"`
	AMAnnotationsHg38URL   string `json:"amAnnotationsHg38Url"`
}

// Locator names returned by Locators.
const (
	LocatorAlphaMissense     = "alphaMissense"
	LocatorPDB               = "pdb"
	LocatorCIF               = "cif"
	LocatorPAEImage          = "paeImage"
	LocatorAMAnnotationsHg19 = "amAnnotationsHg19"
	LocatorAMAnnotationsHg38 = "amAnnotationsHg38"
)

// Locators returns the usable resource URLs of a prediction by name. The
// genome-coordinate AlphaMissense tables are only included when
// includeGenomic is set.
func Locators(p Prediction, includeGenomic bool) map[string]string {
	all := []struct{ name, url string }{
		{LocatorAlphaMissense, p.AMAnnotationsURL},
		{LocatorPDB, p.PDBURL},
		{LocatorCIF, p.CIFURL},
		{LocatorPAEImage, p.PAEImageURL},
	}
	if includeGenomic {
		all = append(all,
			struct{ name, url string }{LocatorAMAnnotationsHg19, p.AMAnnotationsHg19URL},
			struct{ name, url string }{LocatorAMAnnotationsHg38, p.AMAnnotationsHg38URL},
		)
	}

	out := make(map[string]string, len(all))
	for _, l := range all {
		if ValidURL(l.url) {
			out[l.name] = l.url
		}
	}
	return out
}

// ValidURL reports whether url looks like a fetchable http(s) locator.
func ValidURL(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// Client talks to the AlphaFold DB API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	fileClient *http.Client // long timeout for Download
	attempts   int
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewClient creates a client for the public API with 3 attempts per request
// and a 5 second delay between attempts.
func NewClient() *Client {
	return &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		fileClient: &http.Client{
			Timeout: 30 * time.Minute,
		},
		attempts:   3,
		retryDelay: 5 * time.Second,
		logger:     zap.NewNop(),
	}
}

// SetBaseURL overrides the API root.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

// SetTimeout sets the per-request timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.httpClient.Timeout = d
}

// SetRetry configures how often a request is attempted and the pause
// between attempts. attempts < 1 is treated as 1.
func (c *Client) SetRetry(attempts int, delay time.Duration) {
	if attempts < 1 {
		attempts = 1
	}
	c.attempts = attempts
	c.retryDelay = delay
}

// SetLogger sets the logger for request diagnostics.
func (c *Client) SetLogger(l *zap.Logger) {
	c.logger = l
}

// Predictions fetches the prediction entries for a UniProt accession.
func (c *Client) Predictions(ctx context.Context, accession string) ([]Prediction, error) {
	accession = strings.TrimSpace(accession)
	if accession == "" {
		return nil, fmt.Errorf("empty accession")
	}
	url := fmt.Sprintf("%s/prediction/%s", c.baseURL, accession)

	body, err := c.Get(ctx, url)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && (se.Status == http.StatusNotFound || se.Status == http.StatusBadRequest || se.Status == http.StatusUnprocessableEntity) {
			return nil, fmt.Errorf("%s: %w", accession, ErrNotFound)
		}
		return nil, err
	}

	var preds []Prediction
	if err := json.Unmarshal(body, &preds); err != nil {
		return nil, fmt.Errorf("decode prediction response: %w", err)
	}
	if len(preds) == 0 {
		return nil, fmt.Errorf("%s: %w", accession, ErrNotFound)
	}
	return preds, nil
}

// Get fetches a whole resource, retrying transport errors, 429 and 5xx
// responses.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	if !ValidURL(url) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, url)
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		body, err := c.get(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(err) || attempt == c.attempts || ctx.Err() != nil {
			break
		}

		c.logger.Warn("request failed, retrying",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("delay", c.retryDelay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
	return nil, lastErr
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{URL: url, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}
