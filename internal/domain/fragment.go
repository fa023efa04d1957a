package domain

// FragmentKind selects how a fragment is rendered.
type FragmentKind string

const (
	FragmentUser           FragmentKind = "user"
	FragmentText           FragmentKind = "text"
	FragmentPlaceholder    FragmentKind = "placeholder"
	FragmentRepositoryList FragmentKind = "repository_list"
	FragmentRepositoryInfo FragmentKind = "repository_info"
	FragmentAnalysisModes  FragmentKind = "analysis_modes"
	FragmentAnalysisResult FragmentKind = "analysis_result"
	FragmentError          FragmentKind = "error"
)

// AnalysisResult is a finished analysis ready for display.
type AnalysisResult struct {
	Mode    AnalysisMode `json:"mode"`
	Title   string       `json:"title"`
	Content string       `json:"content"`
}

// DetailPrompt is the user message that asks for more detail on a result.
func (r AnalysisResult) DetailPrompt() string {
	return "Explain the " + r.Title + " in more detail"
}

// FragmentFailure describes a failure shown in place of a tool view.
type FragmentFailure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Fragment is a renderable description of one slot in the chat view. It is
// data only; each front end decides how to draw it.
type Fragment struct {
	ID           string             `json:"id"`
	Kind         FragmentKind       `json:"kind"`
	Text         string             `json:"text,omitempty"`
	Tool         ToolName           `json:"tool,omitempty"`
	Repositories []RepoSummary      `json:"repositories,omitempty"`
	Repository   *RepoDetail        `json:"repository,omitempty"`
	Modes        []AnalysisModeInfo `json:"modes,omitempty"`
	Analysis     *AnalysisResult    `json:"analysis,omitempty"`
	Error        *FragmentFailure   `json:"error,omitempty"`
}

// ErrorFragment builds an error fragment from a kind and message.
func ErrorFragment(id string, kind ErrorKind, msg string) Fragment {
	return Fragment{
		ID:    id,
		Kind:  FragmentError,
		Text:  msg,
		Error: &FragmentFailure{Kind: kind.String(), Message: msg},
	}
}
