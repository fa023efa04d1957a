package domain

import "encoding/json"

// ToolName identifies one of the fixed tools the model may call.
type ToolName string

const (
	ToolListRepositories       ToolName = "list_repositories"
	ToolShowRepositoryInfo     ToolName = "show_repository_info"
	ToolShowAnalysisModes      ToolName = "show_analysis_modes"
	ToolAnalyzeRepository      ToolName = "analyze_repository"
	ToolExplainRepository      ToolName = "explain_repository"
	ToolDisplayHistoryAnalysis ToolName = "display_history_analysis"
	ToolDisplayFolderAnalysis  ToolName = "display_folder_analysis"
	ToolDisplayCodeAnalysis    ToolName = "display_code_analysis"
)

// ToolSchema describes a tool for the LLM function-calling protocol.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall is the model's raw request to invoke a tool, before validation.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolArgs is the closed set of typed tool arguments. Only types in this
// package implement it.
type ToolArgs interface {
	Tool() ToolName
	isToolArgs()
}

// ListRepositoriesArgs takes no parameters.
type ListRepositoriesArgs struct{}

// ShowRepositoryInfoArgs selects a repository.
type ShowRepositoryInfoArgs struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

// ShowAnalysisModesArgs takes no parameters.
type ShowAnalysisModesArgs struct{}

// RepositoryTarget is shared by the analysis tools that flatten a tree.
type RepositoryTarget struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
	Path  string `json:"path,omitempty"`
}

// AnalyzeRepositoryArgs requests a critique of a repository.
type AnalyzeRepositoryArgs struct {
	RepositoryTarget
}

// ExplainRepositoryArgs requests an architectural explanation of a repository.
type ExplainRepositoryArgs struct {
	RepositoryTarget
}

// DisplayAnalysisArgs carries a model-written analysis for one mode.
type DisplayAnalysisArgs struct {
	Mode     AnalysisMode `json:"-"`
	Analysis string       `json:"analysis"`
}

func (ListRepositoriesArgs) Tool() ToolName { return ToolListRepositories }
func (ShowRepositoryInfoArgs) Tool() ToolName { return ToolShowRepositoryInfo }
func (ShowAnalysisModesArgs) Tool() ToolName { return ToolShowAnalysisModes }
func (AnalyzeRepositoryArgs) Tool() ToolName { return ToolAnalyzeRepository }
func (ExplainRepositoryArgs) Tool() ToolName { return ToolExplainRepository }

func (a DisplayAnalysisArgs) Tool() ToolName {
	switch a.Mode {
	case AnalysisHistory:
		return ToolDisplayHistoryAnalysis
	case AnalysisFolder:
		return ToolDisplayFolderAnalysis
	default:
		return ToolDisplayCodeAnalysis
	}
}

func (ListRepositoriesArgs) isToolArgs() {}
func (ShowRepositoryInfoArgs) isToolArgs() {}
func (ShowAnalysisModesArgs) isToolArgs() {}
func (AnalyzeRepositoryArgs) isToolArgs() {}
func (ExplainRepositoryArgs) isToolArgs() {}
func (DisplayAnalysisArgs) isToolArgs() {}

// ToolInvocation is a validated tool call with a fresh, unique ID.
type ToolInvocation struct {
	ID   string
	Name ToolName
	Args ToolArgs
	Raw  json.RawMessage
}

// AnalysisMode is one of the three analyses offered to the user.
type AnalysisMode string

const (
	AnalysisHistory AnalysisMode = "history"
	AnalysisFolder  AnalysisMode = "folder"
	AnalysisCode    AnalysisMode = "code"
)

// AnalysisModeInfo is a selectable entry in the analysis picker.
type AnalysisModeInfo struct {
	Mode        AnalysisMode `json:"mode"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
}

// AnalysisModes is the static picker content.
var AnalysisModes = []AnalysisModeInfo{
	{Mode: AnalysisHistory, Title: "Project History", Description: "Analyze commit history and project evolution"},
	{Mode: AnalysisFolder, Title: "Folder Structure", Description: "Examine repository folder organization"},
	{Mode: AnalysisCode, Title: "Code Analysis", Description: "Perform in-depth code review and analysis"},
}

var analysisTitles = map[AnalysisMode]string{
	AnalysisHistory: "Project History Analysis",
	AnalysisFolder:  "Folder Structure Analysis",
	AnalysisCode:    "Code Analysis",
}

// AnalysisTitle returns the display title for a mode's result.
func AnalysisTitle(mode AnalysisMode) string {
	if t, ok := analysisTitles[mode]; ok {
		return t
	}
	return "Analysis"
}

// SelectPrompt is the user message sent when a mode is picked.
func (m AnalysisModeInfo) SelectPrompt() string {
	return "Perform " + m.Title + " analysis"
}
