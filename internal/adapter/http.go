package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/amishk599/jobsync/internal/model"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 8 << 20

// response is a fully read HTTP response.
type response struct {
	status int
	header http.Header
	body   []byte
}

// get performs a GET and reads the body. Statuses other than 200 and 304 are
// returned as *model.HTTPError so the retrier can classify them.
func get(ctx context.Context, client *http.Client, url string, header http.Header, what string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", what, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s fetch: %w", what, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotModified {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, model.NewHTTPError(resp, fmt.Errorf("%s fetch", what))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s read: %w", what, err)
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: body}, nil
}
