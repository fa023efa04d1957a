package chat

import (
	"fmt"

	"repochat/internal/domain"
)

// PickPrompt is the user message sent when item n (1-based) of a picker
// fragment is chosen.
func PickPrompt(f domain.Fragment, n int) (string, error) {
	switch f.Kind {
	case domain.FragmentRepositoryList:
		if n < 1 || n > len(f.Repositories) {
			return "", fmt.Errorf("pick %d: list has %d repositories", n, len(f.Repositories))
		}
		r := f.Repositories[n-1]
		return fmt.Sprintf("Show repository info for %s/%s", r.Owner.Login, r.Name), nil
	case domain.FragmentAnalysisModes:
		if n < 1 || n > len(f.Modes) {
			return "", fmt.Errorf("pick %d: picker has %d modes", n, len(f.Modes))
		}
		return f.Modes[n-1].SelectPrompt(), nil
	default:
		return "", fmt.Errorf("pick: nothing to pick from a %s fragment", f.Kind)
	}
}
