package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/vocdoni/omnibatch/api"
	"github.com/vocdoni/omnibatch/crypto/ethereum"
	"github.com/vocdoni/omnibatch/log"
)

const (
	// HTTPGET is the method string used for calling Request()
	HTTPGET = http.MethodGet
	// HTTPPOST is the method string used for calling Request()
	HTTPPOST = http.MethodPost

	errCodeNot200 = "API error"

	// DefaultRetries this enables Request() to handle the situation where the server connection fails
	DefaultRetries = 3
	// DefaultTimeout is the default timeout for the HTTP client
	DefaultTimeout = 10 * time.Second
)

// Error is an error response of the API.
type Error struct {
	HTTPstatus int
	Code       int    `json:"code"`
	Message    string `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %d: %s (code %d)", errCodeNot200, e.HTTPstatus, e.Message, e.Code)
}

// Is reports whether target is the API error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(api.Error); ok {
		return t.Code == e.Code
	}
	return false
}

// HTTPclient is the omnibatch API HTTP client.
type HTTPclient struct {
	c       *http.Client
	host    *url.URL
	retries int
	signer  *ethereum.SignKeys
}

// New connects to the API host and returns the handle
func New(host string) (*HTTPclient, error) {
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, err
	}

	tr := &http.Transport{
		IdleConnTimeout:    DefaultTimeout,
		DisableCompression: false,
		WriteBufferSize:    1 * 1024 * 1024, // 1 MiB
		ReadBufferSize:     1 * 1024 * 1024, // 1 MiB
	}
	c := &HTTPclient{
		c:       &http.Client{Transport: tr, Timeout: DefaultTimeout},
		host:    hostURL,
		retries: DefaultRetries,
	}
	log.Debugw("http client created", "host", hostURL.String())
	data, status, err := c.Request(HTTPGET, nil, nil, api.PingEndpoint)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s: %d (%s)", errCodeNot200, status, data)
	}
	return c, nil
}

// WithSigner returns a client sharing the connection of c that signs its
// requests with keys.
func (c *HTTPclient) WithSigner(keys *ethereum.SignKeys) *HTTPclient {
	cc := *c
	cc.signer = keys
	return &cc
}

// Signer returns the keys requests are signed with, nil if none.
func (c *HTTPclient) Signer() *ethereum.SignKeys {
	return c.signer
}

// SetRetries configures the number of retries for the HTTP client.
func (c *HTTPclient) SetRetries(n int) {
	c.retries = n
}

// SetTimeout configures the timeout for the HTTP client.
func (c *HTTPclient) SetTimeout(d time.Duration) {
	c.c.Timeout = d
	if tr, ok := c.c.Transport.(*http.Transport); ok {
		tr.ResponseHeaderTimeout = d
	}
}

// Request performs a `method` type raw request to the endpoint specified in urlPath parameter.
// Method is either GET or POST. If POST, a JSON struct should be attached.  Returns the response,
// the status code and an error.
//
// Supports query parameters via `params` slice. If the slice is not empty, it should contain pairs of strings;
// the first element of each pair is the key, and the second element is the value.
func (c *HTTPclient) Request(method string, jsonBody any, params []string, urlPath ...string) ([]byte, int, error) {
	var (
		body []byte
		err  error
	)

	// Marshal the JSON body if provided.
	if jsonBody != nil {
		body, err = json.Marshal(jsonBody)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal JSON: %w", err)
		}
	}

	// Parse the base host URL
	u, err := url.Parse(c.host.String())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse host URL: %w", err)
	}

	// Join path segments
	u.Path = path.Join(u.Path, path.Join(urlPath...))

	// Process query parameters from the params slice.
	// Expecting even-length slice: [key1, val1, key2, val2, ...]
	// If length is odd, the last parameter without a pair will be ignored.
	if len(params) > 0 {
		values := url.Values{}
		for i := 0; i < len(params)-1; i += 2 {
			values.Set(params[i], params[i+1])
		}
		u.RawQuery = values.Encode()
	}

	// Prepare headers
	headers := http.Header{}
	if jsonBody != nil {
		headers.Set("Content-Type", "application/json")
		headers.Set("Accept", "application/json")
	}

	// Log the request details, truncating body if large
	log.Debugw("http client request",
		"type", method,
		"url", u.String(),
		"body", func() string {
			if len(body) > 512 {
				return string(body[:512]) + "..."
			}
			return string(body)
		}(),
	)

	var (
		resp    *http.Response
		lastErr error
	)
	for i := 1; i <= c.retries; i++ {
		// Create a fresh request each attempt
		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, err := http.NewRequest(method, u.String(), reqBody)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header = headers

		if resp, lastErr = c.c.Do(req); lastErr == nil {
			break
		}
		log.Warnw("http request failed", "error", lastErr.Error(), "attempt", i, "retries", c.retries)
		if i < c.retries {
			time.Sleep(500 * time.Millisecond)
		}
	}
	if lastErr != nil {
		return nil, 0, fmt.Errorf("http request ultimately failed after retries: %w", lastErr)
	}
	if resp == nil {
		return nil, 0, fmt.Errorf("no request was attempted")
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnw("failed to close response body", "error", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, resp.StatusCode, nil
}

// call performs a request and decodes a successful response into out, if
// not nil. A non 200 response is returned as *Error.
func (c *HTTPclient) call(method string, body, out any, params []string, urlPath ...string) error {
	data, status, err := c.Request(method, body, params, urlPath...)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		apiErr := &Error{HTTPstatus: status}
		if err := json.Unmarshal(data, apiErr); err != nil {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// get performs a GET request decoding the response into out.
func (c *HTTPclient) get(out any, params []string, urlPath ...string) error {
	return c.call(HTTPGET, nil, out, params, urlPath...)
}

// post signs req for action with the client signer and posts it.
func (c *HTTPclient) post(action string, req api.Signed, out any, urlPath ...string) error {
	if c.signer == nil {
		return fmt.Errorf("client has no signer")
	}
	if err := api.SignRequest(c.signer, action, req); err != nil {
		return err
	}
	return c.call(HTTPPOST, req, out, nil, urlPath...)
}
