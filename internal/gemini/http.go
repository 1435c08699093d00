package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/llm"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/logging"
)

const maxErrorBody = 1 << 10

// HTTPTransport calls the REST endpoint directly.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewHTTPTransport(baseURL string, client *http.Client, logger *slog.Logger) *HTTPTransport {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = DefaultHTTPClient()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

func (t *HTTPTransport) GenerateText(ctx context.Context, apiKey, model, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}})
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", t.baseURL, url.PathEscape(model), url.QueryEscape(apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("content-type", "application/json")
	t.logger.Debug("gemini.request", "url", logging.RedactURL(endpoint), "prompt_chars", len(prompt))

	data, err := t.do(req)
	if err != nil {
		return "", err
	}
	text := gjson.GetBytes(data, "candidates.0.content.parts.0.text")
	if text.Type != gjson.String {
		return "", fmt.Errorf("%w from Gemini API: %s", llm.ErrUnexpectedShape, truncate(string(data), 200))
	}
	return text.String(), nil
}

func (t *HTTPTransport) ValidateKey(ctx context.Context, apiKey string) error {
	u, err := url.Parse(t.baseURL + "/v1beta/models")
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("key", apiKey)
	u.RawQuery = q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	_, err = t.do(req)
	return err
}

// do returns the body of a 2xx JSON response. Everything else is a transport
// failure.
func (t *HTTPTransport) do(req *http.Request) ([]byte, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, transportFailure(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportFailure(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &llm.StatusError{
			StatusCode: resp.StatusCode,
			Status:     strconv.Itoa(resp.StatusCode),
			Body:       truncate(strings.TrimSpace(string(data)), maxErrorBody),
			Kind:       statusKind(resp.StatusCode),
		}
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: response body is not JSON", llm.ErrTransport)
	}
	return data, nil
}
