package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/amishk599/jobsync/internal/model"
)

// maxReplyBytes bounds how much of an LLM response is read.
const maxReplyBytes = 1 << 20

// apiError is the error envelope both supported APIs use:
// {"error": {"type": "...", "message": "..."}}.
type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// postJSON sends payload to url and decodes a 200 reply into out. Any other
// status is returned as *model.HTTPError wrapping the API's own error message
// when the body carries one.
func postJSON(ctx context.Context, client *http.Client, url string, header http.Header, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal llm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create llm request: %w", err)
	}
	req.Header = header.Clone()
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return fmt.Errorf("read llm response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return model.NewHTTPError(resp, replyError(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse llm response: %w", err)
	}
	return nil
}

// replyError extracts the API error from a failed reply, falling back to the
// start of the raw body.
func replyError(raw []byte) error {
	var envelope struct {
		Error *apiError `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return envelope.Error
	}
	if len(raw) > 200 {
		raw = raw[:200]
	}
	return errors.New(string(bytes.TrimSpace(raw)))
}
