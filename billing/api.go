package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeHTTPStatus = "HTTP_STATUS"
	TextCodeTransport  = "TRANSPORT"
)

// maxResponseBody caps how much of a response is read. Error bodies beyond
// it are truncated; larger success bodies are rejected.
const maxResponseBody = 1 << 20

// HTTPError is a non-2xx response of the billing API.
type HTTPError struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("http error: status=%d body=%s", e.StatusCode, string(e.Body))
}

// apiClient posts JSON to the dashboard's HTTP endpoints. Writes are never
// retried.
type apiClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	headers    http.Header
}

func newAPIClient(baseURL string, httpClient *http.Client, headers http.Header) (*apiClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, goerrors.New("billing base URL is required", goerrors.CategoryValidation)
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid billing base URL")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &apiClient{
		baseURL:    parsed,
		httpClient: httpClient,
		headers:    headers.Clone(),
	}, nil
}

func (c *apiClient) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "cannot encode request to "+path)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body), out)
}

func (c *apiClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// endpoint appends path to the base URL path, so a base URL mounted under a
// prefix keeps it.
func (c *apiClient) endpoint(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	u.RawPath = ""
	u.RawQuery = ref.RawQuery
	u.Fragment = ""
	return u.String(), nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	endpoint, err := c.endpoint(path)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid path "+path)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "cannot build request to "+path)
	}
	for k, values := range c.headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "request to "+path+" failed").
			WithTextCode(TextCodeTransport)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "cannot read response of "+path).
			WithTextCode(TextCodeTransport)
	}
	oversized := len(data) > maxResponseBody
	if oversized {
		data = data[:maxResponseBody]
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Body: data, Header: resp.Header.Clone()}
		e := goerrors.New(errorMessage(resp, data), categoryFor(resp.StatusCode)).
			WithCode(resp.StatusCode).
			WithTextCode(TextCodeHTTPStatus).
			WithMetadata(map[string]any{"path": path})
		e.Source = httpErr
		return e
	}

	if oversized {
		return goerrors.New(fmt.Sprintf("response of %s exceeds %d bytes", path, maxResponseBody), goerrors.CategoryExternal).
			WithTextCode(TextCodeTransport)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "invalid response from "+path).
			WithTextCode(TextCodeTransport)
	}
	return nil
}

// categoryFor maps a status to an error category. Client errors get a
// category the read retry loop skips.
func categoryFor(status int) goerrors.Category {
	switch {
	case status == http.StatusUnauthorized:
		return goerrors.CategoryAuth
	case status == http.StatusForbidden:
		return goerrors.CategoryAuthz
	case status == http.StatusNotFound:
		return goerrors.CategoryNotFound
	case status == http.StatusConflict:
		return goerrors.CategoryConflict
	case status == http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit
	case status == http.StatusRequestTimeout || status >= 500:
		return goerrors.CategoryExternal
	default:
		return goerrors.CategoryBadInput
	}
}

// errorMessage prefers a JSON error or message field, then a plain text
// body, then the status text.
func errorMessage(resp *http.Response, body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return http.StatusText(resp.StatusCode)
	}

	var payload struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch v := payload.Error.(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if msg, ok := v["message"].(string); ok && msg != "" {
				return msg
			}
		}
		if payload.Message != "" {
			return payload.Message
		}
		return http.StatusText(resp.StatusCode)
	}
	return text
}
