package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/dshills/recall-mcp/internal/indexer"
	"github.com/dshills/recall-mcp/internal/knowledge"
	"github.com/dshills/recall-mcp/internal/logger"
	"github.com/dshills/recall-mcp/pkg/types"
)

// maxLineBytes bounds a single transcript line
const maxLineBytes = 4 * 1024 * 1024

var continueOnError bool

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.jsonl>",
	Short: "Bulk-load a conversation transcript",
	Long: `Load a JSON Lines transcript into the knowledge base.

Each line is one message:

  {"subject_id": "u1", "session_id": "s1", "content": "hi", "role": "user", "timestamp": 1718000000000}

Lines are grouped by subject and session, keeping file order within each session.
Use "-" to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "keep going when a session fails to ingest")
}

// transcriptLine is one JSONL record
type transcriptLine struct {
	SubjectID string         `json:"subject_id"`
	SessionID string         `json:"session_id"`
	Content   string         `json:"content"`
	Role      string         `json:"role"`
	Timestamp int64          `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

type sessionKey struct {
	subjectID string
	sessionID string
}

type transcript = orderedmap.OrderedMap[sessionKey, []types.MessageInput]

// messageAdder is satisfied by *knowledge.KnowledgeBase
type messageAdder interface {
	AddMessages(ctx context.Context, subjectID, sessionID string, inputs []types.MessageInput) (*indexer.Statistics, error)
}

type ingestSummary struct {
	Sessions int
	Messages int
	Failed   int
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var r io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open transcript: %w", err)
		}
		defer f.Close()
		r = f
	}

	groups, lines, err := readTranscript(r)
	if err != nil {
		return err
	}
	logger.GetLogger(ctx).Infof("[Ingest] Read %d messages in %d sessions", lines, groups.Len())

	kb, err := knowledge.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open knowledge base: %w", err)
	}
	defer kb.Close()

	summary, err := ingestTranscript(ctx, kb, groups, continueOnError)
	fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d messages into %d sessions (%d failed)\n", summary.Messages, summary.Sessions, summary.Failed)
	return err
}

// readTranscript parses JSONL input and groups messages by session in order of first appearance
func readTranscript(r io.Reader) (*transcript, int, error) {
	groups := orderedmap.New[sessionKey, []types.MessageInput]()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNo, count := 0, 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var line transcriptLine
		if err := json.Unmarshal([]byte(text), &line); err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if line.SubjectID == "" || line.SessionID == "" {
			return nil, 0, fmt.Errorf("line %d: subject_id and session_id are required", lineNo)
		}

		key := sessionKey{subjectID: line.SubjectID, sessionID: line.SessionID}
		msgs, _ := groups.Get(key)
		groups.Set(key, append(msgs, types.MessageInput{
			Content:   line.Content,
			Role:      line.Role,
			Timestamp: line.Timestamp,
			Metadata:  line.Metadata,
		}))
		count++
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read transcript: %w", err)
	}
	return groups, count, nil
}

// ingestTranscript sends each session through AddMessages in chunks the indexer accepts
func ingestTranscript(ctx context.Context, kb messageAdder, groups *transcript, keepGoing bool) (ingestSummary, error) {
	var summary ingestSummary
	log := logger.GetLogger(ctx)

	for pair := groups.Oldest(); pair != nil; pair = pair.Next() {
		key, msgs := pair.Key, pair.Value

		var sessionErr error
		for start := 0; start < len(msgs) && sessionErr == nil; start += indexer.MaxMessagesPerCall {
			end := min(start+indexer.MaxMessagesPerCall, len(msgs))
			stats, err := kb.AddMessages(ctx, key.subjectID, key.sessionID, msgs[start:end])
			if err != nil {
				sessionErr = fmt.Errorf("session %s/%s: %w", key.subjectID, key.sessionID, err)
				break
			}
			summary.Messages += stats.MessagesIndexed
		}

		if sessionErr != nil {
			summary.Failed++
			if !keepGoing {
				return summary, sessionErr
			}
			log.Warnf("[Ingest] %v", sessionErr)
			continue
		}
		summary.Sessions++
	}
	return summary, nil
}
