package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v6/neo4j"

	"github.com/dshills/recall-mcp/internal/logger"
	"github.com/dshills/recall-mcp/pkg/types"
)

// Neo4jConfig configures a Neo4j-backed graph store
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string // empty selects the server default
}

// Neo4jStore implements GraphStore on a Neo4j property graph:
//
//	(:User)-[:PARTICIPATED_IN]->(:Session)
//	(:Message)-[:PART_OF]->(:Session)
//	(:User)-[:AUTHORED]->(:Message)   user-role messages only
type Neo4jStore struct {
	driver   neo4j.Driver
	database string
}

// NewNeo4jStore connects and verifies connectivity
func NewNeo4jStore(ctx context.Context, cfg Neo4jConfig) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriver(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("connect neo4j at %s: %w", cfg.URI, err)
	}

	logger.GetLogger(ctx).Infof("[Neo4j] Connected to %s", cfg.URI)
	return &Neo4jStore{driver: driver, database: cfg.Database}, nil
}

func (r *Neo4jStore) sessionConfig(mode neo4j.AccessMode) neo4j.SessionConfig {
	return neo4j.SessionConfig{AccessMode: mode, DatabaseName: r.database}
}

var schemaStatements = []string{
	`CREATE CONSTRAINT user_id IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE`,
	`CREATE CONSTRAINT session_id IF NOT EXISTS FOR (s:Session) REQUIRE s.id IS UNIQUE`,
	`CREATE CONSTRAINT message_id IF NOT EXISTS FOR (m:Message) REQUIRE m.id IS UNIQUE`,
	`CREATE INDEX message_vector_id IF NOT EXISTS FOR (m:Message) ON (m.vector_id)`,
}

// EnsureSchema creates uniqueness constraints and the vector_id lookup index
func (r *Neo4jStore) EnsureSchema(ctx context.Context) error {
	session := r.driver.NewSession(ctx, r.sessionConfig(neo4j.AccessModeWrite))
	defer session.Close(ctx)

	for _, stmt := range schemaStatements {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
			_, err := tx.Run(ctx, stmt, nil)
			return nil, err
		})
		if err != nil {
			return fmt.Errorf("apply schema %q: %w", stmt, err)
		}
	}
	return nil
}

const saveMessagesQuery = `
	MERGE (u:User {id: $subject_id})
	ON CREATE SET u.created_at = $now
	MERGE (s:Session {id: $session_id})
	ON CREATE SET s.subject_id = $subject_id, s.created_at = $now
	SET s.updated_at = $now
	MERGE (u)-[:PARTICIPATED_IN]->(s)
	WITH u, s
	UNWIND $messages AS msg
	MERGE (m:Message {id: msg.id})
	SET m.vector_id = msg.vector_id,
		m.content = msg.content,
		m.role = msg.role,
		m.timestamp = msg.timestamp,
		m.metadata = msg.metadata
	MERGE (m)-[:PART_OF]->(s)
	FOREACH (ignored IN CASE WHEN msg.role = 'user' THEN [1] ELSE [] END |
		MERGE (u)-[:AUTHORED]->(m)
	)
`

// SaveMessages merges the subject, session and messages in one write transaction
func (r *Neo4jStore) SaveMessages(ctx context.Context, subjectID, sessionID string, msgs []types.StoredMessage) error {
	if subjectID == "" {
		return types.ErrEmptySubject
	}
	if sessionID == "" {
		return types.ErrEmptySession
	}

	session := r.driver.NewSession(ctx, r.sessionConfig(neo4j.AccessModeWrite))
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, `MATCH (s:Session {id: $session_id}) RETURN s.subject_id AS subject_id`,
			map[string]interface{}{"session_id": sessionID})
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			if owner := getStringFromRecord(res.Record(), "subject_id"); owner != subjectID {
				return nil, fmt.Errorf("%w: session %s", ErrSubjectMismatch, sessionID)
			}
		}

		_, err = tx.Run(ctx, saveMessagesQuery, map[string]interface{}{
			"subject_id": subjectID,
			"session_id": sessionID,
			"now":        time.Now().UnixMilli(),
			"messages":   messageParams(msgs),
		})
		return nil, err
	})
	if err != nil {
		logger.GetLogger(ctx).Errorf("[Neo4j] Failed to save messages for session %s: %v", sessionID, err)
		return fmt.Errorf("save messages: %w", err)
	}
	return nil
}

func messageParams(msgs []types.StoredMessage) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, map[string]interface{}{
			"id":        m.ID,
			"vector_id": m.VectorID,
			"content":   m.Content,
			"role":      m.Role,
			"timestamp": m.Timestamp,
			"metadata":  m.Metadata,
		})
	}
	return out
}

const expandSessionsQuery = `
	MATCH (hit:Message)-[:PART_OF]->(s:Session)
	WHERE hit.vector_id IN $vector_ids
	WITH DISTINCT s
	MATCH (m:Message)-[:PART_OF]->(s)
	WITH s, m ORDER BY m.timestamp ASC, m.id ASC
	RETURN s.id AS session_id, s.subject_id AS subject_id,
		collect({id: m.id, vector_id: m.vector_id, content: m.content,
			role: m.role, timestamp: m.timestamp, metadata: m.metadata}) AS messages
	ORDER BY session_id
`

// ExpandSessions finds the sessions owning vectorIDs and returns each with all of its messages
func (r *Neo4jStore) ExpandSessions(ctx context.Context, vectorIDs []string) ([]types.SessionRecord, error) {
	if len(vectorIDs) == 0 {
		return []types.SessionRecord{}, nil
	}

	session := r.driver.NewSession(ctx, r.sessionConfig(neo4j.AccessModeRead))
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, expandSessionsQuery, map[string]interface{}{"vector_ids": vectorIDs})
		if err != nil {
			return nil, err
		}
		records := []types.SessionRecord{}
		for res.Next(ctx) {
			records = append(records, sessionFromRecord(res.Record()))
		}
		return records, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("expand sessions: %w", err)
	}

	records := result.([]types.SessionRecord)
	logger.GetLogger(ctx).Debugf("[Neo4j] Expanded %d vector IDs into %d sessions", len(vectorIDs), len(records))
	return records, nil
}

// GetSession returns one session with its messages, or ErrNotFound
func (r *Neo4jStore) GetSession(ctx context.Context, sessionID string) (*types.SessionRecord, error) {
	session := r.driver.NewSession(ctx, r.sessionConfig(neo4j.AccessModeRead))
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, `
			MATCH (s:Session {id: $session_id})
			OPTIONAL MATCH (m:Message)-[:PART_OF]->(s)
			WITH s, m ORDER BY m.timestamp ASC, m.id ASC
			RETURN s.id AS session_id, s.subject_id AS subject_id,
				collect({id: m.id, vector_id: m.vector_id, content: m.content,
					role: m.role, timestamp: m.timestamp, metadata: m.metadata}) AS messages
		`, map[string]interface{}{"session_id": sessionID})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			return nil, res.Err()
		}
		rec := sessionFromRecord(res.Record())
		return &rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	rec, _ := result.(*types.SessionRecord)
	if rec == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return rec, nil
}

// ListSessions returns the sessions the subject participated in, most recently updated first
func (r *Neo4jStore) ListSessions(ctx context.Context, subjectID string) ([]string, error) {
	session := r.driver.NewSession(ctx, r.sessionConfig(neo4j.AccessModeRead))
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, `
			MATCH (:User {id: $subject_id})-[:PARTICIPATED_IN]->(s:Session)
			RETURN s.id AS session_id
			ORDER BY s.updated_at DESC, s.id ASC
		`, map[string]interface{}{"subject_id": subjectID})
		if err != nil {
			return nil, err
		}
		ids := []string{}
		for res.Next(ctx) {
			ids = append(ids, getStringFromRecord(res.Record(), "session_id"))
		}
		return ids, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return result.([]string), nil
}

// Close closes the driver
func (r *Neo4jStore) Close() error {
	return r.driver.Close(context.Background())
}

func sessionFromRecord(record *neo4j.Record) types.SessionRecord {
	rec := types.SessionRecord{
		SessionID: getStringFromRecord(record, "session_id"),
		SubjectID: getStringFromRecord(record, "subject_id"),
	}
	raw, _ := record.Get("messages")
	rec.Messages = messagesFromValue(raw, rec.SessionID)
	return rec
}

// messagesFromValue decodes a collected list of message maps. The OPTIONAL MATCH in
// GetSession yields a single all-null map for empty sessions, which is skipped.
func messagesFromValue(v interface{}, sessionID string) []types.StoredMessage {
	items, _ := v.([]interface{})
	msgs := make([]types.StoredMessage, 0, len(items))
	for _, item := range items {
		props, ok := item.(map[string]interface{})
		if !ok || props["id"] == nil {
			continue
		}
		msgs = append(msgs, types.StoredMessage{
			ID:        stringProp(props, "id"),
			VectorID:  stringProp(props, "vector_id"),
			SessionID: sessionID,
			Content:   stringProp(props, "content"),
			Role:      stringProp(props, "role"),
			Timestamp: int64Prop(props, "timestamp"),
			Metadata:  stringProp(props, "metadata"),
		})
	}
	return msgs
}

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func stringProp(props map[string]interface{}, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

func int64Prop(props map[string]interface{}, key string) int64 {
	switch v := props[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
