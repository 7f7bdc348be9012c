package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// LookupClient fetches enrichment records from an external HTTP source.
// The endpoint is expected to return a JSON array of objects.
type LookupClient struct {
	http *http.Client
	log  *logrus.Entry
}

// NewLookupClient builds a client with the given request timeout. The
// engine performs a blocking network call, so callers must bound it here.
func NewLookupClient(timeout time.Duration, log *logrus.Entry) *LookupClient {
	return &LookupClient{
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

// Fetch retrieves the lookup records. Every failure mode (transport
// errors, non-success status, a body that is not a non-empty array of
// objects) is an *ExternalDataError.
func (c *LookupClient) Fetch(ctx context.Context, endpoint string) ([]map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &ExternalDataError{Reason: "building lookup request", Cause: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ExternalDataError{Reason: "external API call failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &ExternalDataError{
			Reason: fmt.Sprintf("external API call failed with status code %d: %s", resp.StatusCode, body),
		}
	}

	var records []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, &ExternalDataError{Reason: "API response must be a list of objects", Cause: err}
	}
	if len(records) == 0 {
		return nil, &ExternalDataError{Reason: "API response data is empty"}
	}

	c.log.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"records":  len(records),
	}).Debug("lookup data fetched")

	return records, nil
}
