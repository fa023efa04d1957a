package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"repochat/internal/domain"
	"repochat/internal/infra/tracer"
)

// User-facing notices appended when a tool cannot run.
const (
	NoticeAuthMissing   = "GitHub authentication was not found."
	NoticeFetchFailed   = "Unable to fetch repository contents."
	noticeInternalError = "Something went wrong while running the tool."
)

// ToolContext is the explicit per-call state handed to a tool handler.
type ToolContext struct {
	Session    *domain.AuthSession
	Turn       *Turn
	Observer   domain.TurnObserver
	Invocation domain.ToolInvocation
}

// ToolRunnerDeps holds the collaborators of the tool handlers.
type ToolRunnerDeps struct {
	Repos     domain.RepositoryProvider
	Flattener *Flattener
	LLM       domain.LLMProvider
	Model     string
	Registry  *Registry
	Logger    *slog.Logger
}

// ToolRunner executes validated tool invocations.
type ToolRunner struct {
	repos     domain.RepositoryProvider
	flattener *Flattener
	llm       domain.LLMProvider
	model     string
	registry  *Registry
	logger    *slog.Logger
}

// NewToolRunner creates a tool runner.
func NewToolRunner(deps ToolRunnerDeps) *ToolRunner {
	return &ToolRunner{
		repos:     deps.Repos,
		flattener: deps.Flattener,
		llm:       deps.LLM,
		model:     deps.Model,
		registry:  deps.Registry,
		logger:    deps.Logger,
	}
}

// toolOutput is what a successful handler produces.
type toolOutput struct {
	result   any
	fragment domain.Fragment
}

// Run executes tc.Invocation and returns the fragment to display. On success
// exactly one tool-call/tool-result pair is staged on tc.Turn. On failure one
// assistant notice is staged instead and the returned error carries the kind.
func (r *ToolRunner) Run(ctx context.Context, tc ToolContext) (domain.Fragment, error) {
	inv := tc.Invocation
	obs := tc.Observer
	if obs == nil {
		obs = domain.NopObserver{}
	}

	ctx, span := tracer.StartSpan(ctx, "tool."+string(inv.Name),
		trace.WithAttributes(
			tracer.StringAttr("tool.name", string(inv.Name)),
			tracer.StringAttr("tool.call_id", inv.ID),
		),
	)
	defer span.End()

	if tc.Session == nil || tc.Session.AccessToken == "" {
		err := domain.NewKindError(domain.KindAuthMissing, "ToolRunner.Run", domain.ErrAuthMissing, string(inv.Name))
		tracer.RecordError(span, err)
		tc.Turn.Append(domain.Message{Role: domain.RoleAssistant, Content: NoticeAuthMissing})
		frag := domain.ErrorFragment(inv.ID, domain.KindAuthMissing, NoticeAuthMissing)
		frag.Tool = inv.Name
		obs.OnToolResult(inv, frag)
		return frag, err
	}

	if d, ok := r.registry.Descriptor(inv.Name); ok {
		obs.OnToolStart(inv, domain.Fragment{
			ID:   inv.ID,
			Kind: domain.FragmentPlaceholder,
			Tool: inv.Name,
			Text: d.Placeholder,
		})
	}

	out, err := r.dispatch(ctx, tc.Session.AccessToken, inv)
	if err != nil {
		tracer.RecordError(span, err)
		frag, kindErr := r.fail(ctx, tc, err)
		obs.OnToolResult(inv, frag)
		return frag, kindErr
	}

	payload, err := json.Marshal(out.result)
	if err != nil {
		err = domain.NewKindError(domain.KindInternal, "ToolRunner.Run", err, "marshal tool result")
		tracer.RecordError(span, err)
		frag, kindErr := r.fail(ctx, tc, err)
		obs.OnToolResult(inv, frag)
		return frag, kindErr
	}

	tc.Turn.AppendToolPair(inv, payload)
	out.fragment.ID = inv.ID
	out.fragment.Tool = inv.Name
	tracer.SetOK(span)
	obs.OnToolResult(inv, out.fragment)
	return out.fragment, nil
}

// dispatch is the exhaustive switch over the closed set of tool arguments.
func (r *ToolRunner) dispatch(ctx context.Context, token string, inv domain.ToolInvocation) (toolOutput, error) {
	switch args := inv.Args.(type) {
	case domain.ListRepositoriesArgs:
		return r.listRepositories(ctx, token)
	case domain.ShowRepositoryInfoArgs:
		return r.showRepositoryInfo(ctx, token, args)
	case domain.ShowAnalysisModesArgs:
		return r.showAnalysisModes()
	case domain.AnalyzeRepositoryArgs:
		return r.summarize(ctx, token, args.RepositoryTarget, critiqueRubric, domain.AnalysisCode, "Code Review")
	case domain.ExplainRepositoryArgs:
		return r.summarize(ctx, token, args.RepositoryTarget, architectureRubric, domain.AnalysisFolder, "Architecture Overview")
	case domain.DisplayAnalysisArgs:
		return r.displayAnalysis(args)
	default:
		return toolOutput{}, domain.NewKindError(domain.KindInternal, "ToolRunner.dispatch", domain.ErrToolNotFound,
			fmt.Sprintf("%s: unhandled argument type %T", inv.Name, inv.Args))
	}
}

func (r *ToolRunner) listRepositories(ctx context.Context, token string) (toolOutput, error) {
	repos, err := r.repos.ListRepositories(ctx, token)
	if err != nil {
		return toolOutput{}, domain.NewKindError(domain.KindUpstreamFetchFailed, "list_repositories", err, "")
	}
	if repos == nil {
		repos = []domain.RepoSummary{}
	}
	return toolOutput{
		result:   repos,
		fragment: domain.Fragment{Kind: domain.FragmentRepositoryList, Repositories: repos},
	}, nil
}

func (r *ToolRunner) showRepositoryInfo(ctx context.Context, token string, args domain.ShowRepositoryInfoArgs) (toolOutput, error) {
	detail, err := r.repos.GetRepository(ctx, token, args.Owner, args.Repo)
	if err != nil {
		return toolOutput{}, domain.NewKindError(domain.KindUpstreamFetchFailed, "show_repository_info", err, args.Owner+"/"+args.Repo)
	}
	return toolOutput{
		result:   detail,
		fragment: domain.Fragment{Kind: domain.FragmentRepositoryInfo, Repository: detail},
	}, nil
}

func (r *ToolRunner) showAnalysisModes() (toolOutput, error) {
	modes := append([]domain.AnalysisModeInfo(nil), domain.AnalysisModes...)
	return toolOutput{
		result:   modes,
		fragment: domain.Fragment{Kind: domain.FragmentAnalysisModes, Modes: modes},
	}, nil
}

func (r *ToolRunner) displayAnalysis(args domain.DisplayAnalysisArgs) (toolOutput, error) {
	res := domain.AnalysisResult{Mode: args.Mode, Title: domain.AnalysisTitle(args.Mode), Content: args.Analysis}
	return toolOutput{
		result:   res,
		fragment: domain.Fragment{Kind: domain.FragmentAnalysisResult, Analysis: &res},
	}, nil
}

// summarize flattens the target and forwards the corpus to the model with a
// fixed rubric.
func (r *ToolRunner) summarize(ctx context.Context, token string, target domain.RepositoryTarget, rubric string, mode domain.AnalysisMode, title string) (toolOutput, error) {
	corpus, err := r.flattener.Flatten(ctx, token, target.Owner, target.Repo, target.Path)
	if err != nil {
		return toolOutput{}, err
	}
	r.logger.Info("repository flattened",
		"chat_id", domain.ChatIDFromContext(ctx),
		"repo", target.Owner+"/"+target.Repo,
		"path", target.Path,
		"files", len(corpus.Files),
		"binary_files", corpus.BinaryCount(),
		"ambiguous", len(corpus.Warnings),
		"bytes", len(corpus.Text),
	)

	resp, err := r.llm.Chat(ctx, domain.ChatRequest{
		Model:  r.model,
		System: rubric,
		Messages: []domain.Message{{
			Role:    domain.RoleUser,
			Content: corpus.Text,
		}},
	})
	if err != nil {
		return toolOutput{}, domain.NewKindError(domain.KindUpstreamFetchFailed, "summarize", err, target.Owner+"/"+target.Repo)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return toolOutput{}, domain.NewKindError(domain.KindUpstreamFetchFailed, "summarize", domain.ErrProviderNoReply, target.Owner+"/"+target.Repo)
	}

	full := target.Owner + "/" + target.Repo
	if target.Path != "" {
		full += "/" + strings.TrimPrefix(target.Path, "/")
	}
	res := domain.AnalysisResult{Mode: mode, Title: title + " of " + full, Content: resp.Content}
	return toolOutput{
		result:   res,
		fragment: domain.Fragment{Kind: domain.FragmentAnalysisResult, Analysis: &res},
	}, nil
}

// fail logs err, stages the matching notice and builds the error fragment.
// No tool pair is staged.
func (r *ToolRunner) fail(ctx context.Context, tc ToolContext, err error) (domain.Fragment, error) {
	inv := tc.Invocation
	kind := domain.KindOf(err)
	if kind != domain.KindUpstreamFetchFailed && kind != domain.KindInternal {
		kind = domain.KindUpstreamFetchFailed
		err = domain.NewKindError(kind, "ToolRunner.Run", err, string(inv.Name))
	}

	notice := NoticeFetchFailed
	if kind == domain.KindInternal {
		notice = noticeInternalError
	}
	r.logger.Error("tool call failed", "chat_id", domain.ChatIDFromContext(ctx), "tool", string(inv.Name), "tool_call_id", inv.ID, "kind", kind.String(), "error", err)

	tc.Turn.Append(domain.Message{Role: domain.RoleAssistant, Content: notice})
	frag := domain.ErrorFragment(inv.ID, kind, notice)
	frag.Tool = inv.Name
	return frag, err
}
