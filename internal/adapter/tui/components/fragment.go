package components

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"repochat/internal/adapter/tui/theme"
	"repochat/internal/domain"
)

// MarkdownFunc renders markdown at a given width.
type MarkdownFunc func(content string, width int) string

// RenderFragment draws a tool fragment as terminal text.
func RenderFragment(f domain.Fragment, width int, md MarkdownFunc) string {
	switch f.Kind {
	case domain.FragmentPlaceholder:
		return theme.Placeholder.Render(theme.SymbolSpinner + " " + f.Text)
	case domain.FragmentRepositoryList:
		return renderRepositoryList(f.Repositories, width)
	case domain.FragmentRepositoryInfo:
		if f.Repository == nil {
			return theme.TextMuted.Render("(no repository)")
		}
		return renderRepositoryInfo(*f.Repository)
	case domain.FragmentAnalysisModes:
		return renderAnalysisModes(f.Modes)
	case domain.FragmentAnalysisResult:
		if f.Analysis == nil {
			return theme.TextMuted.Render("(no analysis)")
		}
		return theme.CardTitle.Render(f.Analysis.Title) + "\n" +
			strings.TrimSpace(md(f.Analysis.Content, width)) + "\n" +
			theme.Dim.Render("  /more for a detailed explanation")
	case domain.FragmentError:
		return theme.TextError.Render(wrapText(f.Text, width-2))
	default:
		return wrapText(f.Text, width-2)
	}
}

func renderRepositoryList(repos []domain.RepoSummary, width int) string {
	if len(repos) == 0 {
		return theme.TextMuted.Render("No repositories found.")
	}
	var sb strings.Builder
	for i, r := range repos {
		name := r.FullName
		if name == "" {
			name = r.Owner.Login + "/" + r.Name
		}
		line := theme.CardIndex.Render(strconv.Itoa(i+1)+".") + " " + theme.Bold.Render(name)
		if r.Private {
			line += " " + theme.TextWarning.Render(theme.SymbolPrivate+" private")
		}
		if r.Description != "" {
			line += theme.TextMuted.Render(" " + theme.SymbolBullet + " " + truncate(r.Description, width-len(name)-10))
		}
		sb.WriteString(line + "\n  ")
	}
	sb.WriteString(theme.Dim.Render("/pick N to open a repository"))
	return sb.String()
}

func renderRepositoryInfo(r domain.RepoDetail) string {
	rows := [][2]string{
		{"Description", r.Description},
		{"Language", r.Language},
		{"License", r.License},
		{"Created", formatDate(r.CreatedAt)},
		{"Last push", formatDate(r.PushedAt)},
		{"Stars", strconv.Itoa(r.StargazersCount)},
		{"Forks", strconv.Itoa(r.ForksCount)},
		{"Watchers", strconv.Itoa(r.WatchersCount)},
		{"Subscribers", strconv.Itoa(r.SubscribersCount)},
		{"Open issues", strconv.Itoa(r.OpenIssuesCount)},
		{"URL", r.HTMLURL},
	}
	var sb strings.Builder
	sb.WriteString(theme.CardTitle.Render(r.FullName))
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		sb.WriteString("\n  " + theme.CardKey.Render(row[0]) + row[1])
	}
	return sb.String()
}

func renderAnalysisModes(modes []domain.AnalysisModeInfo) string {
	var sb strings.Builder
	sb.WriteString(theme.CardTitle.Render("Choose an analysis"))
	for i, m := range modes {
		sb.WriteString(fmt.Sprintf("\n  %s %s %s",
			theme.CardIndex.Render(strconv.Itoa(i+1)+"."),
			theme.Bold.Render(m.Title),
			theme.TextMuted.Render(m.Description)))
	}
	sb.WriteString("\n  " + theme.Dim.Render("/pick N to run an analysis"))
	return sb.String()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 2, 2006")
}

func truncate(s string, max int) string {
	if max < 10 {
		max = 10
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + theme.SymbolEllipsis
}
