package components

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repochat/internal/domain"
)

func plainMarkdown(content string, _ int) string { return content }

func TestRenderFragmentRepositoryList(t *testing.T) {
	out := RenderFragment(domain.Fragment{
		Kind: domain.FragmentRepositoryList,
		Repositories: []domain.RepoSummary{
			{Owner: domain.RepoOwner{Login: "octo"}, Name: "hello", FullName: "octo/hello", Description: "greets"},
			{Owner: domain.RepoOwner{Login: "octo"}, Name: "secret", Private: true},
		},
	}, 80, plainMarkdown)

	assert.Contains(t, out, "octo/hello")
	assert.Contains(t, out, "greets")
	assert.Contains(t, out, "octo/secret")
	assert.Contains(t, out, "private")
	assert.Contains(t, out, "/pick N")
}

func TestRenderFragmentEmptyRepositoryList(t *testing.T) {
	out := RenderFragment(domain.Fragment{Kind: domain.FragmentRepositoryList}, 80, plainMarkdown)
	assert.Contains(t, out, "No repositories found.")
}

func TestRenderFragmentRepositoryInfo(t *testing.T) {
	out := RenderFragment(domain.Fragment{
		Kind: domain.FragmentRepositoryInfo,
		Repository: &domain.RepoDetail{
			FullName:        "octo/hello",
			Language:        "Go",
			StargazersCount: 42,
		},
	}, 80, plainMarkdown)

	assert.Contains(t, out, "octo/hello")
	assert.Contains(t, out, "Go")
	assert.Contains(t, out, "42")
	assert.NotContains(t, out, "License")
}

func TestRenderFragmentAnalysis(t *testing.T) {
	out := RenderFragment(domain.Fragment{
		Kind:     domain.FragmentAnalysisResult,
		Analysis: &domain.AnalysisResult{Title: "Code Review of octo/hello", Content: "Looks tidy."},
	}, 80, plainMarkdown)

	assert.Contains(t, out, "Code Review of octo/hello")
	assert.Contains(t, out, "Looks tidy.")
	assert.Contains(t, out, "/more")
}

func TestRenderFragmentModes(t *testing.T) {
	out := RenderFragment(domain.Fragment{Kind: domain.FragmentAnalysisModes, Modes: domain.AnalysisModes}, 80, plainMarkdown)
	for _, m := range domain.AnalysisModes {
		assert.Contains(t, out, m.Title)
	}
}

func TestMessageListUpsertReplacesByID(t *testing.T) {
	var l MessageListModel
	l.Upsert(MessageFromFragment(domain.Fragment{ID: "c1", Kind: domain.FragmentPlaceholder, Text: "Loading..."}))
	l.Upsert(MessageFromFragment(domain.Fragment{ID: "c1", Kind: domain.FragmentAnalysisModes, Modes: domain.AnalysisModes}))

	require.Len(t, l.Messages, 1)
	assert.Equal(t, domain.FragmentAnalysisModes, l.Messages[0].Fragment.Kind)
}

func TestMessageListAppendToLast(t *testing.T) {
	var l MessageListModel
	l.AppendToLast("s1", "Hel")
	l.AppendToLast("s1", "lo")
	l.AppendToLast("s2", "next")

	require.Len(t, l.Messages, 2)
	assert.Equal(t, "Hello", l.Messages[0].Content)
	assert.Equal(t, "next", l.Messages[1].Content)
}

func TestMessageListLastFragment(t *testing.T) {
	var l MessageListModel
	l.Add(MessageFromFragment(domain.Fragment{ID: "a", Kind: domain.FragmentRepositoryList}))
	l.Add(MessageFromFragment(domain.Fragment{ID: "b", Kind: domain.FragmentAnalysisModes}))
	l.Add(MessageFromFragment(domain.Fragment{ID: "c", Kind: domain.FragmentText, Text: "hi"}))

	f, ok := l.LastFragment(domain.FragmentRepositoryList, domain.FragmentAnalysisModes)
	require.True(t, ok)
	assert.Equal(t, "b", f.ID)

	_, ok = l.LastFragment(domain.FragmentAnalysisResult)
	assert.False(t, ok)
}

func TestMessageListRingBuffer(t *testing.T) {
	var l MessageListModel
	l.SetMaxMessages(2)
	for _, text := range []string{"one", "two", "three"} {
		l.Add(ChatMessage{Role: RoleUser, Content: text})
	}
	require.Len(t, l.Messages, 2)
	assert.Equal(t, "two", l.Messages[0].Content)
	assert.Equal(t, "(1 older messages trimmed)", l.TrimmedIndicator())
}

func TestMessageFromFragmentRoles(t *testing.T) {
	assert.Equal(t, RoleUser, MessageFromFragment(domain.Fragment{Kind: domain.FragmentUser}).Role)
	assert.Equal(t, RoleAssistant, MessageFromFragment(domain.Fragment{Kind: domain.FragmentText}).Role)
	assert.Equal(t, RoleError, MessageFromFragment(domain.ErrorFragment("e", domain.KindAuthMissing, "no auth")).Role)
	assert.Equal(t, RoleTool, MessageFromFragment(domain.Fragment{Kind: domain.FragmentRepositoryInfo}).Role)
}

func TestParseSlashCommand(t *testing.T) {
	cmd, args, ok := ParseSlashCommand("  /PICK 2 ")
	require.True(t, ok)
	assert.Equal(t, "/pick", cmd)
	assert.Equal(t, []string{"2"}, args)

	_, _, ok = ParseSlashCommand("hello")
	assert.False(t, ok)
}

func typeText(m InputAreaModel, s string) InputAreaModel {
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return m
}

func TestInputAreaSubmitAndRecall(t *testing.T) {
	m := NewInputArea()
	m = typeText(m, "first")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, InputSubmitMsg{Value: "first"}, cmd())
	assert.Empty(t, m.Value())

	m = typeText(m, "draft")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, "first", m.Value())
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, "draft", m.Value())
	assert.Equal(t, []string{"first"}, m.History())
}

func TestInputAreaIgnoresBlankSubmit(t *testing.T) {
	m := NewInputArea()
	m = typeText(m, "   ")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
}

func TestStatusBarShowsTitleAndModel(t *testing.T) {
	sb := NewStatusBar()
	sb.SetWidth(120)
	sb.ChatTitle = "list my repos"
	sb.ModelName = "gemini-2.5-flash"
	out := sb.View()
	assert.True(t, strings.Contains(out, "list my repos") && strings.Contains(out, "gemini-2.5-flash"))
	assert.NotContains(t, out, "\n", "status bar must stay on one line")
	assert.Equal(t, 120, lipgloss.Width(out))
}

func TestStatusBarFitsWithHints(t *testing.T) {
	sb := NewStatusBar()
	sb.SetWidth(80)
	sb.Hints = []KeyHint{{Key: "Enter", Desc: "Send"}, {Key: "Ctrl+C", Desc: "Quit"}}
	sb.ModelName = "gemini-2.5-flash"
	out := sb.View()
	assert.NotContains(t, out, "\n")
	assert.Equal(t, 80, lipgloss.Width(out))
}
