package typings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sidkik/sandboxsync/pkg/errors"
)

// StatusError is returned when a service responds with a non-success
// status code.
type StatusError struct {
	URL  string
	Code int
}

func (err StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", err.URL, err.Code)
}

// getJSON fetches `url` and decodes the JSON response into `dst`.
// There's no client timeout. Requests only stop when `ctx` is done.
func getJSON(ctx context.Context, client *http.Client, url string,
	header http.Header, dst interface{}) error {

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.WithContext(err, "create request")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return errors.WithContext(err, "request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return StatusError{URL: url, Code: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return errors.WithContext(err, "decode response")
	}
	return nil
}
