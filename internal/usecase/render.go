package usecase

import (
	"encoding/json"
	"fmt"

	"repochat/internal/domain"
)

// RenderHistory replays a message history into display fragments. System
// messages and tool-call messages produce nothing; each tool result is drawn
// by its tool name.
func RenderHistory(msgs []domain.Message) []domain.Fragment {
	out := make([]domain.Fragment, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleUser:
			out = append(out, domain.Fragment{ID: m.ID, Kind: domain.FragmentUser, Text: m.Content})
		case domain.RoleAssistant:
			if _, ok := m.ToolCallPart(); ok {
				continue
			}
			if m.Content != "" {
				out = append(out, domain.Fragment{ID: m.ID, Kind: domain.FragmentText, Text: m.Content})
			}
		case domain.RoleTool:
			part, ok := m.ToolResultPart()
			if !ok {
				continue
			}
			out = append(out, renderToolResult(m.ID, part))
		}
	}
	return out
}

func renderToolResult(id string, part domain.Part) domain.Fragment {
	name := domain.ToolName(part.ToolName)
	frag := domain.Fragment{ID: id, Tool: name}

	var err error
	switch name {
	case domain.ToolListRepositories:
		frag.Kind = domain.FragmentRepositoryList
		err = json.Unmarshal(part.Result, &frag.Repositories)
	case domain.ToolShowRepositoryInfo:
		frag.Kind = domain.FragmentRepositoryInfo
		frag.Repository = &domain.RepoDetail{}
		err = json.Unmarshal(part.Result, frag.Repository)
	case domain.ToolShowAnalysisModes:
		frag.Kind = domain.FragmentAnalysisModes
		err = json.Unmarshal(part.Result, &frag.Modes)
	case domain.ToolAnalyzeRepository, domain.ToolExplainRepository,
		domain.ToolDisplayHistoryAnalysis, domain.ToolDisplayFolderAnalysis, domain.ToolDisplayCodeAnalysis:
		frag.Kind = domain.FragmentAnalysisResult
		frag.Analysis = &domain.AnalysisResult{}
		err = json.Unmarshal(part.Result, frag.Analysis)
	default:
		return domain.Fragment{ID: id, Kind: domain.FragmentText, Tool: name,
			Text: fmt.Sprintf("[result of unknown tool %q]", part.ToolName)}
	}
	if err != nil {
		return domain.ErrorFragment(id, domain.KindInternal, fmt.Sprintf("cannot display %s result: %v", part.ToolName, err))
	}
	return frag
}
