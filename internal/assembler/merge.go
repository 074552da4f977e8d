package assembler

import (
	"context"
	"sort"

	"github.com/dshills/recall-mcp/internal/logger"
	"github.com/dshills/recall-mcp/pkg/types"
)

// Merge appends, for each hit in similarity order, every message of the hit's session.
//
// Two hits in the same session append that session twice. A hit whose session is
// absent from records contributes nothing. RelatedSessions lists the expanded
// sessions in the order hits first reach them, followed by any other expanded
// session, without duplicates.
func Merge(ctx context.Context, hits []types.VectorHit, records []types.SessionRecord) *types.ContextResult {
	result := types.NewContextResult()

	sessions := make(map[string][]types.ContextMessage, len(records))
	owner := make(map[string]string)
	for _, rec := range records {
		sessions[rec.SessionID] = decodeSession(ctx, rec)
		for _, m := range rec.Messages {
			if m.VectorID != "" {
				owner[m.VectorID] = rec.SessionID
			}
		}
	}

	seen := make(map[string]bool, len(records))
	addSession := func(id string) {
		if !seen[id] {
			seen[id] = true
			result.RelatedSessions = append(result.RelatedSessions, id)
		}
	}

	for _, hit := range hits {
		sessionID := hit.Metadata.SessionID
		if sessionID == "" {
			sessionID = owner[hit.ID]
		}
		msgs, ok := sessions[sessionID]
		if !ok {
			logger.GetLogger(ctx).Warnf("[Assembler] Hit %s references session %q with no graph expansion", hit.ID, sessionID)
			continue
		}
		result.Messages = append(result.Messages, msgs...)
		addSession(sessionID)
	}

	for _, rec := range records {
		addSession(rec.SessionID)
	}

	return result
}

func decodeSession(ctx context.Context, rec types.SessionRecord) []types.ContextMessage {
	out := make([]types.ContextMessage, 0, len(rec.Messages))
	for _, stored := range rec.Messages {
		msg, err := stored.Decode()
		if err != nil {
			logger.GetLogger(ctx).Warnf("[Assembler] Dropping metadata of message %s: %v", stored.ID, err)
		}
		out = append(out, types.ContextMessage{Message: msg, SessionID: rec.SessionID})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}
