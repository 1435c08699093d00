package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/llm"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/logging"
)

// SDKTransport goes through the google.golang.org/genai client. A client is
// built per call because the API key arrives with each request.
type SDKTransport struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewSDKTransport(baseURL string, client *http.Client, logger *slog.Logger) *SDKTransport {
	if client == nil {
		client = DefaultHTTPClient()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &SDKTransport{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: client,
		logger:     logger,
	}
}

func (t *SDKTransport) newClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: t.httpClient,
	}
	if t.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: t.baseURL + "/"}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}

func (t *SDKTransport) GenerateText(ctx context.Context, apiKey, model, prompt string) (string, error) {
	client, err := t.newClient(ctx, apiKey)
	if err != nil {
		return "", err
	}
	t.logger.Debug("gemini.sdk_request", "model", model, "prompt_chars", len(prompt))
	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", sdkFailure(err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil ||
		resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 ||
		resp.Candidates[0].Content.Parts[0] == nil {
		return "", fmt.Errorf("%w from Gemini API: no candidate text", llm.ErrUnexpectedShape)
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

func (t *SDKTransport) ValidateKey(ctx context.Context, apiKey string) error {
	client, err := t.newClient(ctx, apiKey)
	if err != nil {
		return err
	}
	_, err = client.Models.List(ctx, &genai.ListModelsConfig{PageSize: 1})
	if err != nil {
		return sdkFailure(err)
	}
	return nil
}

func sdkFailure(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return statusFromAPIError(apiErr)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return statusFromAPIError(*apiErrPtr)
	}
	return transportFailure(err)
}

func statusFromAPIError(apiErr genai.APIError) error {
	status := strconv.Itoa(apiErr.Code)
	return &llm.StatusError{
		StatusCode: apiErr.Code,
		Status:     status,
		Body:       truncate(apiErr.Message, maxErrorBody),
		Kind:       statusKind(apiErr.Code),
	}
}
