package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"
)

// MethodGenerateContent is the capability required for chat use.
const MethodGenerateContent = "generateContent"

// Model describes one entry of the provider's model catalogue.
type Model struct {
	Name                       string   `json:"name"`
	DisplayName                string   `json:"displayName"`
	Description                string   `json:"description,omitempty"`
	InputTokenLimit            int      `json:"inputTokenLimit,omitempty"`
	OutputTokenLimit           int      `json:"outputTokenLimit,omitempty"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
}

// Supports reports whether the model lists method among its generation methods.
func (m Model) Supports(method string) bool {
	return slices.Contains(m.SupportedGenerationMethods, method)
}

// FilterByMethod keeps the models supporting method, preserving order.
func FilterByMethod(models []Model, method string) []Model {
	out := make([]Model, 0, len(models))
	for _, m := range models {
		if m.Supports(method) {
			out = append(out, m)
		}
	}
	return out
}

type ModelListerConfig struct {
	BaseURL    string
	APIKey     string
	PageSize   int
	HTTPClient *http.Client
}

// ModelLister reads the model catalogue from the provider's native REST API.
type ModelLister struct {
	baseURL    string
	apiKey     string
	pageSize   int
	httpClient *http.Client
}

func NewModelLister(cfg ModelListerConfig) (*ModelLister, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("models base url is required")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("models api key is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &ModelLister{
		baseURL:    baseURL,
		apiKey:     apiKey,
		pageSize:   cfg.PageSize,
		httpClient: client,
	}, nil
}

// ListModels returns every model, following pagination until exhausted.
func (l *ModelLister) ListModels(ctx context.Context) ([]Model, error) {
	var models []Model
	pageToken := ""
	for {
		page, err := l.listPage(ctx, pageToken)
		if err != nil {
			return nil, err
		}
		models = append(models, page.Models...)
		if page.NextPageToken == "" {
			return models, nil
		}
		pageToken = page.NextPageToken
	}
}

func (l *ModelLister) listPage(ctx context.Context, pageToken string) (listModelsResponse, error) {
	endpoint, err := buildModelsEndpoint(l.baseURL, l.apiKey, pageToken, l.pageSize)
	if err != nil {
		return listModelsResponse{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return listModelsResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := l.httpClient.Do(httpReq)
	if err != nil {
		return listModelsResponse{}, fmt.Errorf("list models request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < http.StatusOK || httpResp.StatusCode >= http.StatusMultipleChoices {
		return listModelsResponse{}, readListError(httpResp.Body, httpResp.StatusCode)
	}
	var out listModelsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return listModelsResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func buildModelsEndpoint(baseURL, apiKey, pageToken string, pageSize int) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	apiPath := strings.TrimSuffix(u.Path, "/")
	if !strings.HasSuffix(apiPath, "/v1") && !strings.HasSuffix(apiPath, "/v1beta") {
		apiPath = path.Join(apiPath, "/v1beta")
	}
	u.Path = path.Join(apiPath, "models")
	query := u.Query()
	query.Set("key", apiKey)
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}
	if pageSize > 0 {
		query.Set("pageSize", fmt.Sprint(pageSize))
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func readListError(body io.Reader, status int) error {
	var resp struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.NewDecoder(body).Decode(&resp)
	if resp.Error != nil && resp.Error.Message != "" {
		return fmt.Errorf("list models failed: %s (status %d)", resp.Error.Message, status)
	}
	return fmt.Errorf("list models failed with status %d", status)
}

type listModelsResponse struct {
	Models        []Model `json:"models"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
}
