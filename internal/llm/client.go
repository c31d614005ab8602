package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"convo-search/internal/domain"
)

const (
	defaultGeminiModel = "gemini-2.0-flash"

	groundedSearchInstruction = "You are a search assistant. Answer the user's final question " +
		"concisely using up-to-date web results. Treat earlier messages as the conversation so far " +
		"and resolve follow-up questions against it."
)

var _ SearchProvider = (*GeminiClient)(nil)

// GeminiClient implementa SearchProvider con Gemini y la herramienta de Google Search.
// La API key llega con cada solicitud, por eso el cliente de genai se crea por llamada.
type GeminiClient struct {
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// GeminiOption configura un GeminiClient.
type GeminiOption func(*GeminiClient)

func WithModel(model string) GeminiOption {
	return func(c *GeminiClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL apunta el cliente a otro endpoint (proxies, tests).
func WithBaseURL(baseURL string) GeminiOption {
	return func(c *GeminiClient) { c.baseURL = baseURL }
}

func WithHTTPClient(hc *http.Client) GeminiOption {
	return func(c *GeminiClient) { c.httpClient = hc }
}

func NewGeminiClient(logger *zap.Logger, opts ...GeminiOption) *GeminiClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &GeminiClient{
		model:  defaultGeminiModel,
		logger: logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *GeminiClient) Search(ctx context.Context, apiKey, query string, history []domain.Turn) (SearchResult, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  c.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: c.baseURL},
	})
	if err != nil {
		return SearchResult{}, &ProviderError{Kind: KindUpstream, Message: "could not initialise provider client", Err: err}
	}

	resp, err := gc.Models.GenerateContent(ctx, c.model, BuildContents(history, query), buildSearchConfig())
	if err != nil {
		pe := classifyError(ctx, err)
		c.logger.Warn("gemini request failed",
			zap.String("kind", string(pe.Kind)),
			zap.Int("status", pe.StatusCode),
			zap.Error(err),
		)
		return SearchResult{}, pe
	}

	summary := cleanSummary(resp.Text())
	if summary == "" {
		return SearchResult{}, &ProviderError{Kind: KindMalformed, Message: "provider returned no answer"}
	}

	return SearchResult{
		Summary: summary,
		Sources: ExtractSources(resp),
	}, nil
}

func buildSearchConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: groundedSearchInstruction}},
		},
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}
}

// BuildContents convierte el historial en turnos user/model seguidos de la nueva consulta.
// Exportada para tests.
func BuildContents(history []domain.Turn, query string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)*2+1)
	for _, t := range history {
		contents = append(contents, &genai.Content{
			Role:  "user",
			Parts: []*genai.Part{{Text: t.Query}},
		})
		if t.Summary == "" {
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  "model",
			Parts: []*genai.Part{{Text: t.Summary}},
		})
	}
	return append(contents, &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: query}},
	})
}

// ExtractSources arma las fuentes a partir de los chunks web del primer candidato.
// El snippet es el primer segmento de respuesta que cita cada chunk.
// Exportada para tests.
func ExtractSources(resp *genai.GenerateContentResponse) []domain.Source {
	sources := []domain.Source{}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return sources
	}
	md := resp.Candidates[0].GroundingMetadata
	if md == nil {
		return sources
	}

	snippets := make(map[int]string)
	for _, support := range md.GroundingSupports {
		if support == nil || support.Segment == nil {
			continue
		}
		text := strings.TrimSpace(support.Segment.Text)
		if text == "" {
			continue
		}
		for _, idx := range support.GroundingChunkIndices {
			if _, ok := snippets[int(idx)]; !ok {
				snippets[int(idx)] = text
			}
		}
	}

	for i, chunk := range md.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		sources = append(sources, domain.Source{
			Title:   chunk.Web.Title,
			URL:     chunk.Web.URI,
			Snippet: snippets[i],
		})
	}
	return sources
}

func classifyError(ctx context.Context, err error) *ProviderError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ProviderError{Kind: KindTimeout, Message: "provider timed out", Err: err}
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return &ProviderError{Kind: KindUpstream, Message: "provider request failed", Err: err}
	}

	pe := &ProviderError{StatusCode: apiErr.Code, Err: err}
	switch {
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden,
		apiErr.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Message), "api key"):
		pe.Kind, pe.Message = KindUnauthorized, "invalid API key"
	case apiErr.Code == http.StatusTooManyRequests:
		pe.Kind, pe.Message = KindRateLimited, "provider rate limit exceeded"
	case apiErr.Code == http.StatusGatewayTimeout || apiErr.Code == http.StatusRequestTimeout:
		pe.Kind, pe.Message = KindTimeout, "provider timed out"
	default:
		pe.Kind, pe.Message = KindUpstream, "provider request failed"
	}
	return pe
}
