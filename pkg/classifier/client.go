// Package classifier provides a client for the document-classification
// service that labels invoice PDFs and extracts their fields.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// UnknownCategory is returned when the service omits a category.
const UnknownCategory = "desconhecido"

// Client classifies a document. A single call is made per document.
type Client interface {
	Classify(ctx context.Context, doc Document) (*Classification, error)
}

// Document is the payload sent to the classifier.
type Document struct {
	Name    string
	Content []byte
}

// ReadDocument loads a stored upload from disk.
func ReadDocument(path string) (Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Document{}, eris.Wrapf(err, "classifier: read %s", path)
	}
	return Document{Name: filepath.Base(path), Content: b}, nil
}

// Classification is the classifier's answer. Category "desconhecido" with no
// details is a valid answer.
type Classification struct {
	Category string         `json:"category"`
	Details  map[string]any `json:"details"`
}

// UnavailableError reports a transport failure: the service could not be
// reached or did not answer in time.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("classifier: service unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// StatusError reports a non-200 answer.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("classifier: unexpected status %d", e.StatusCode)
}

// Option configures the classifier client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout bounds each classification call.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

type httpClient struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

const maxErrorBody = 4 << 10

// NewClient creates a classifier client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: 30 * time.Second,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Classify(ctx context.Context, doc Document) (*Classification, error) {
	body, contentType, err := encodeDocument(doc)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify_pdf", body)
	if err != nil {
		return nil, eris.Wrap(err, "classifier: create request")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	return decodeClassification(raw)
}

func encodeDocument(doc Document) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(doc.Name)))
	h.Set("Content-Type", "application/pdf")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", eris.Wrap(err, "classifier: create form part")
	}
	if _, err := part.Write(doc.Content); err != nil {
		return nil, "", eris.Wrap(err, "classifier: write form part")
	}
	if err := w.Close(); err != nil {
		return nil, "", eris.Wrap(err, "classifier: close form")
	}
	return &buf, w.FormDataContentType(), nil
}

// decodeClassification parses the response body. Missing or null category
// and details fall back to "desconhecido" and an empty map. Numbers are kept
// as json.Number so amounts are not rounded through float64.
func decodeClassification(raw []byte) (*Classification, error) {
	var payload struct {
		Category *string        `json:"category"`
		Details  map[string]any `json:"details"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, eris.Wrap(err, "classifier: decode response")
	}

	out := &Classification{Category: UnknownCategory, Details: payload.Details}
	if payload.Category != nil && strings.TrimSpace(*payload.Category) != "" {
		out.Category = strings.TrimSpace(*payload.Category)
	}
	if out.Details == nil {
		out.Details = map[string]any{}
	}
	return out, nil
}
