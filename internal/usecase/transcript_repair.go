package usecase

import (
	"repochat/internal/domain"
)

// RepairTranscript returns msgs with every broken tool pair removed, so the
// result satisfies domain.ValidatePairing:
//  1. A tool-call message not immediately followed by the tool message
//     carrying its result is dropped.
//  2. A tool result without the call right before it is dropped.
//  3. A pair reusing an earlier call ID is dropped.
//
// All other messages are kept in order. The input is not modified.
func RepairTranscript(msgs []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(msgs))
	seen := make(map[string]struct{})

	for i := 0; i < len(msgs); i++ {
		m := msgs[i]
		if call, ok := m.ToolCallPart(); ok {
			if i+1 < len(msgs) && msgs[i+1].Role == domain.RoleTool {
				res, ok := msgs[i+1].ToolResultPart()
				_, dup := seen[call.ToolCallID]
				if ok && res.ToolCallID == call.ToolCallID && !dup {
					seen[call.ToolCallID] = struct{}{}
					out = append(out, m, msgs[i+1])
					i++
				}
			}
			continue
		}
		if _, ok := m.ToolResultPart(); ok {
			continue
		}
		out = append(out, m)
	}
	return out
}
