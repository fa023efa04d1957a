package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"repochat/internal/domain"
	"repochat/internal/infra/config"
	"repochat/internal/infra/tracer"
)

// contentGenerator is the part of *genai.Models the provider uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// GeminiProvider implements domain.StreamingLLMProvider on the Gemini API.
type GeminiProvider struct {
	models contentGenerator
	model  string
	logger *slog.Logger
}

// NewGeminiProvider creates a Gemini provider from config.
func NewGeminiProvider(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w: api_key is required", domain.ErrConfigLoad)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: NewHTTPClient(cfg),
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return newGeminiProvider(client.Models, cfg.Model, logger), nil
}

func newGeminiProvider(models contentGenerator, model string, logger *slog.Logger) *GeminiProvider {
	return &GeminiProvider{models: models, model: model, logger: logger}
}

// Name implements domain.LLMProvider.
func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) modelFor(req domain.ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.model
}

// Chat implements domain.LLMProvider.
func (p *GeminiProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	model := p.modelFor(req)
	ctx, span := tracer.StartSpan(ctx, "llm.chat",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.Name()),
			tracer.StringAttr("llm.model", model),
		),
	)
	defer span.End()

	contents, cfg, err := buildGeminiRequest(req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	resp, err := p.models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		err = mapAPIError(err)
		tracer.RecordError(span, err)
		return nil, err
	}

	result := convertGeminiResponse(resp, model)
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.Name(), result)
	return result, nil
}

// ChatStream implements domain.StreamingLLMProvider. Function calls arrive
// whole from Gemini; each is sent in its own delta.
func (p *GeminiProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	model := p.modelFor(req)
	contents, cfg, err := buildGeminiRequest(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan domain.StreamDelta, 16)
	go func() {
		defer close(ch)

		ctx, span := tracer.StartSpan(ctx, "llm.chat_stream",
			trace.WithAttributes(
				tracer.StringAttr("llm.provider", p.Name()),
				tracer.StringAttr("llm.model", model),
			),
		)
		defer span.End()

		send := func(d domain.StreamDelta) bool {
			select {
			case ch <- d:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var usage *domain.Usage
		for resp, err := range p.models.GenerateContentStream(ctx, model, contents, cfg) {
			if err != nil {
				err = mapAPIError(err)
				tracer.RecordError(span, err)
				send(domain.StreamDelta{Err: err})
				return
			}
			if resp == nil {
				continue
			}
			if u := convertUsage(resp.UsageMetadata); u.TotalTokens > 0 {
				usage = &u
			}
			if text := responseText(resp); text != "" {
				if !send(domain.StreamDelta{Content: text}) {
					return
				}
			}
			for _, call := range responseToolCalls(resp) {
				if !send(domain.StreamDelta{ToolCalls: []domain.ToolCall{call}}) {
					return
				}
			}
		}

		if usage != nil {
			setUsageAttrs(span, *usage)
		}
		tracer.SetOK(span)
		send(domain.StreamDelta{Done: true, Usage: usage})
	}()
	return ch, nil
}

// buildGeminiRequest converts a domain request into Gemini contents and
// generation config.
func buildGeminiRequest(req domain.ChatRequest) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	contents, err := convertMessages(req.Messages)
	if err != nil {
		return nil, nil, err
	}
	if len(contents) == 0 {
		return nil, nil, fmt.Errorf("gemini: %w: at least one message is required", domain.ErrInvalidInput)
	}

	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return nil, nil, err
		}
		cfg.Tools = tools
		cfg.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAuto,
			},
		}
	}
	return contents, cfg, nil
}

// convertMessages maps history onto Gemini roles. System messages are
// dropped; the system prompt travels in SystemInstruction. Gemini pairs
// function calls and responses by name and order, so call IDs are not sent.
func convertMessages(msgs []domain.Message) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleSystem:
			continue
		case domain.RoleUser:
			if m.Content != "" {
				contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
			}
		case domain.RoleAssistant:
			parts := make([]*genai.Part, 0, 1+len(m.Parts))
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, p := range m.Parts {
				if p.Type != domain.PartToolCall {
					continue
				}
				args, err := decodeObject(p.Args)
				if err != nil {
					return nil, fmt.Errorf("gemini: tool call %s args: %w", p.ToolCallID, err)
				}
				parts = append(parts, genai.NewPartFromFunctionCall(p.ToolName, args))
			}
			if len(parts) > 0 {
				contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
			}
		case domain.RoleTool:
			for _, p := range m.Parts {
				if p.Type != domain.PartToolResult {
					continue
				}
				var result any
				if len(p.Result) > 0 {
					if err := json.Unmarshal(p.Result, &result); err != nil {
						return nil, fmt.Errorf("gemini: tool result %s: %w", p.ToolCallID, err)
					}
				}
				part := genai.NewPartFromFunctionResponse(p.ToolName, map[string]any{"result": result})
				contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))
			}
		}
	}
	return contents, nil
}

func convertTools(schemas []domain.ToolSchema) ([]*genai.Tool, error) {
	decls := make([]*genai.FunctionDeclaration, 0, len(schemas))
	for _, s := range schemas {
		var params any
		if len(s.Parameters) > 0 {
			if err := json.Unmarshal(s.Parameters, &params); err != nil {
				return nil, fmt.Errorf("gemini: tool %s parameters: %w", s.Name, err)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 s.Name,
			Description:          s.Description,
			ParametersJsonSchema: params,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}, nil
}

func decodeObject(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// responseText joins text parts of the first candidate, skipping thoughts.
func responseText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" && !part.Thought {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

func responseToolCalls(resp *genai.GenerateContentResponse) []domain.ToolCall {
	fcs := resp.FunctionCalls()
	if len(fcs) == 0 {
		return nil
	}
	calls := make([]domain.ToolCall, 0, len(fcs))
	for i, fc := range fcs {
		args, err := json.Marshal(fc.Args)
		if err != nil || fc.Args == nil {
			args = []byte(`{}`)
		}
		id := fc.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		calls = append(calls, domain.ToolCall{ID: id, Name: fc.Name, Arguments: args})
	}
	return calls
}

func convertUsage(u *genai.GenerateContentResponseUsageMetadata) domain.Usage {
	if u == nil {
		return domain.Usage{}
	}
	return domain.Usage{
		PromptTokens:     int(u.PromptTokenCount),
		CompletionTokens: int(u.CandidatesTokenCount),
		TotalTokens:      int(u.TotalTokenCount),
	}
}

func convertGeminiResponse(resp *genai.GenerateContentResponse, model string) *domain.ChatResponse {
	out := &domain.ChatResponse{Model: model, CreatedAt: time.Now()}
	if resp == nil {
		return out
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	out.Content = responseText(resp)
	out.ToolCalls = responseToolCalls(resp)
	out.Usage = convertUsage(resp.UsageMetadata)
	return out
}

// Compile-time interface checks.
var (
	_ domain.LLMProvider          = (*GeminiProvider)(nil)
	_ domain.StreamingLLMProvider = (*GeminiProvider)(nil)
)
