package usecase

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"repochat/internal/domain"
)

// ToolDescriptor is one entry of the fixed tool registry.
type ToolDescriptor struct {
	Name        domain.ToolName
	Description string
	Parameters  json.RawMessage
	// Placeholder is the fragment text shown while the tool runs.
	Placeholder string
	decode      func(raw json.RawMessage) (domain.ToolArgs, error)
}

// Schema returns the function-calling schema sent to the model.
func (d ToolDescriptor) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: string(d.Name), Description: d.Description, Parameters: d.Parameters}
}

const (
	emptyParams = `{"type": "object", "properties": {}}`
	repoParams  = `{
		"type": "object",
		"properties": {
			"owner": {"type": "string", "minLength": 1, "description": "Repository owner login"},
			"repo": {"type": "string", "minLength": 1, "description": "Repository name"}
		},
		"required": ["owner", "repo"]
	}`
	targetParams = `{
		"type": "object",
		"properties": {
			"owner": {"type": "string", "minLength": 1, "description": "Repository owner login"},
			"repo": {"type": "string", "minLength": 1, "description": "Repository name"},
			"path": {"type": "string", "description": "Subdirectory or file to read; empty for the whole repository"}
		},
		"required": ["owner", "repo"]
	}`
	analysisParams = `{
		"type": "object",
		"properties": {
			"analysis": {"type": "string", "minLength": 1, "description": "The analysis to display"}
		},
		"required": ["analysis"]
	}`
)

func decodeInto[T domain.ToolArgs](raw json.RawMessage) (domain.ToolArgs, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeAnalysis(mode domain.AnalysisMode) func(json.RawMessage) (domain.ToolArgs, error) {
	return func(raw json.RawMessage) (domain.ToolArgs, error) {
		var v domain.DisplayAnalysisArgs
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		v.Mode = mode
		return v, nil
	}
}

// toolTable is the registry. Order is the order presented to the model.
var toolTable = []ToolDescriptor{
	{
		Name:        domain.ToolListRepositories,
		Description: "Show the repositories of the signed-in GitHub user.",
		Parameters:  json.RawMessage(emptyParams),
		Placeholder: "Loading repositories...",
		decode:      decodeInto[domain.ListRepositoriesArgs],
	},
	{
		Name:        domain.ToolShowRepositoryInfo,
		Description: "Show details for one repository: description, language, license, stars, forks, watchers, and open issues.",
		Parameters:  json.RawMessage(repoParams),
		Placeholder: "Loading repository details...",
		decode:      decodeInto[domain.ShowRepositoryInfoArgs],
	},
	{
		Name:        domain.ToolShowAnalysisModes,
		Description: "Show the analysis mode picker.",
		Parameters:  json.RawMessage(emptyParams),
		Placeholder: "Loading analysis modes...",
		decode:      decodeInto[domain.ShowAnalysisModesArgs],
	},
	{
		Name:        domain.ToolAnalyzeRepository,
		Description: "Read every file in a repository (or under a path) and return a code review of it.",
		Parameters:  json.RawMessage(targetParams),
		Placeholder: "Reading repository files for review...",
		decode:      decodeInto[domain.AnalyzeRepositoryArgs],
	},
	{
		Name:        domain.ToolExplainRepository,
		Description: "Read every file in a repository (or under a path) and return an explanation of its architecture.",
		Parameters:  json.RawMessage(targetParams),
		Placeholder: "Reading repository files for explanation...",
		decode:      decodeInto[domain.ExplainRepositoryArgs],
	},
	{
		Name:        domain.ToolDisplayHistoryAnalysis,
		Description: "Display an analysis of the project history.",
		Parameters:  json.RawMessage(analysisParams),
		Placeholder: "Preparing analysis...",
		decode:      decodeAnalysis(domain.AnalysisHistory),
	},
	{
		Name:        domain.ToolDisplayFolderAnalysis,
		Description: "Display an analysis of the folder contents.",
		Parameters:  json.RawMessage(analysisParams),
		Placeholder: "Preparing analysis...",
		decode:      decodeAnalysis(domain.AnalysisFolder),
	},
	{
		Name:        domain.ToolDisplayCodeAnalysis,
		Description: "Display an analysis of the code across the whole repository.",
		Parameters:  json.RawMessage(analysisParams),
		Placeholder: "Preparing analysis...",
		decode:      decodeAnalysis(domain.AnalysisCode),
	},
}

// Registry validates tool calls against the compiled schemas of toolTable.
type Registry struct {
	byName  map[domain.ToolName]ToolDescriptor
	schemas map[domain.ToolName]*jsonschema.Schema
}

// NewRegistry compiles every tool schema. It only fails if a built-in schema
// is malformed.
func NewRegistry() (*Registry, error) {
	r := &Registry{
		byName:  make(map[domain.ToolName]ToolDescriptor, len(toolTable)),
		schemas: make(map[domain.ToolName]*jsonschema.Schema, len(toolTable)),
	}
	for _, d := range toolTable {
		compiler := jsonschema.NewCompiler()
		url := string(d.Name) + ".json"
		if err := compiler.AddResource(url, bytes.NewReader(d.Parameters)); err != nil {
			return nil, fmt.Errorf("add schema resource for %q: %w", d.Name, err)
		}
		compiled, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema for %q: %w", d.Name, err)
		}
		r.byName[d.Name] = d
		r.schemas[d.Name] = compiled
	}
	return r, nil
}

// MustNewRegistry is NewRegistry for package initialization and tests.
func MustNewRegistry() *Registry {
	r, err := NewRegistry()
	if err != nil {
		panic(err)
	}
	return r
}

// Schemas returns the function-calling schemas in registry order.
func (r *Registry) Schemas() []domain.ToolSchema {
	out := make([]domain.ToolSchema, 0, len(toolTable))
	for _, d := range toolTable {
		out = append(out, d.Schema())
	}
	return out
}

// Descriptor returns the registry entry for name.
func (r *Registry) Descriptor(name domain.ToolName) (ToolDescriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// ParseToolCall validates a raw call and decodes its arguments into the
// typed variant. The invocation gets a fresh ID; provider-supplied IDs are
// not trusted to be unique across a chat.
func (r *Registry) ParseToolCall(call domain.ToolCall) (domain.ToolInvocation, error) {
	name := domain.ToolName(call.Name)
	d, ok := r.byName[name]
	if !ok {
		return domain.ToolInvocation{}, domain.NewKindError(domain.KindInvalidInput, "Registry.ParseToolCall", domain.ErrToolNotFound, call.Name)
	}

	raw := call.Arguments
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		raw = json.RawMessage(`{}`)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return domain.ToolInvocation{}, domain.NewKindError(domain.KindInvalidInput, "Registry.ParseToolCall", domain.ErrInvalidInput,
			fmt.Sprintf("%s: invalid JSON: %v", call.Name, err))
	}
	if err := r.schemas[name].Validate(v); err != nil {
		return domain.ToolInvocation{}, domain.NewKindError(domain.KindInvalidInput, "Registry.ParseToolCall", domain.ErrInvalidInput,
			fmt.Sprintf("%s: schema validation failed: %v", call.Name, err))
	}

	args, err := d.decode(raw)
	if err != nil {
		return domain.ToolInvocation{}, domain.NewKindError(domain.KindInvalidInput, "Registry.ParseToolCall", domain.ErrInvalidInput,
			fmt.Sprintf("%s: %v", call.Name, err))
	}

	return domain.ToolInvocation{
		ID:   domain.NewID(),
		Name: name,
		Args: args,
		Raw:  raw,
	}, nil
}
