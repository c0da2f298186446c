package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"doc-oracle/internal/embeddings"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	// Use advisory lock to prevent concurrent migrations from multiple services.
	// Note: In production, use dedicated migration tools (e.g., golang-migrate/migrate)
	// that run as a separate deployment step before app services start.
	const lockID = 424242421 // arbitrary number for this application's migration lock

	var acquired bool
	err := s.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	if !acquired {
		// Another service is running migrations; wait briefly and skip
		time.Sleep(2 * time.Second)
		return nil
	}

	// Ensure lock is released when done
	defer func() {
		_, _ = s.db.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
	}()

	// Enable pgvector extension
	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id UUID PRIMARY KEY,
			provider TEXT,
			model TEXT,
			api_key TEXT,
			created_at TIMESTAMPTZ DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY,
			conversation_id UUID REFERENCES conversations(id) ON DELETE CASCADE,
			source_type TEXT,
			location TEXT,
			filename TEXT,
			languages TEXT[],
			status TEXT,
			error TEXT,
			content TEXT,
			created_at TIMESTAMPTZ DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY,
			conversation_id UUID REFERENCES conversations(id) ON DELETE CASCADE,
			seq INT NOT NULL,
			role TEXT,
			content TEXT,
			created_at TIMESTAMPTZ DEFAULT now(),
			UNIQUE (conversation_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id UUID PRIMARY KEY,
			document_id UUID REFERENCES documents(id) ON DELETE CASCADE,
			ord INT,
			text TEXT,
			word_count INT
		);`,
		`CREATE TABLE IF NOT EXISTS embeddings (
			chunk_id UUID PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
			vector vector(1536),
			model TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS documents_conversation_idx ON documents(conversation_id);`,
		`CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages(conversation_id, seq);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	// Create IVFFlat index for fast similarity search
	_, err = s.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS embeddings_vector_idx
		ON embeddings USING ivfflat (vector vector_cosine_ops)
		WITH (lists = 100)
	`)
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	return nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, provider, model, apiKey string) (Conversation, error) {
	id := uuid.New()
	_, err := s.db.ExecContext(ctx, `INSERT INTO conversations(id, provider, model, api_key) VALUES($1,$2,$3,$4)`,
		id, provider, model, apiKey)
	if err != nil {
		return Conversation{}, err
	}
	return Conversation{ID: id, Provider: provider, Model: model, APIKey: apiKey, CreatedAt: time.Now()}, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id uuid.UUID) (Conversation, error) {
	var conv Conversation
	row := s.db.QueryRowContext(ctx,
		`SELECT id, provider, model, api_key, created_at FROM conversations WHERE id=$1`, id)
	if err := row.Scan(&conv.ID, &conv.Provider, &conv.Model, &conv.APIKey, &conv.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Conversation{}, ErrConversationNotFound
		}
		return Conversation{}, err
	}
	return conv, nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc Document) (Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, err
	}
	defer tx.Rollback()

	// One document per conversation; chunks and embeddings cascade away.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM documents WHERE conversation_id=$1`, doc.ConversationID); err != nil {
		return Document{}, err
	}

	doc.ID = uuid.New()
	doc.Status = StatusLoading
	doc.CreatedAt = time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents(id, conversation_id, source_type, location, filename, languages, status, error, content)
		VALUES($1,$2,$3,$4,$5,$6,$7,'',$8)`,
		doc.ID, doc.ConversationID, doc.SourceType, doc.Location, doc.Filename,
		pqStringArray(doc.Languages), doc.Status, doc.Text)
	if err != nil {
		return Document{}, err
	}
	if err := tx.Commit(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, conversationID uuid.UUID) (Document, error) {
	var doc Document
	var languages []string
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, source_type, location, filename, languages, status, error, content, created_at
		FROM documents WHERE conversation_id=$1`, conversationID)
	err := row.Scan(&doc.ID, &doc.ConversationID, &doc.SourceType, &doc.Location, &doc.Filename,
		pq.Array(&languages), &doc.Status, &doc.Error, &doc.Text, &doc.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrDocumentNotFound
		}
		return Document{}, err
	}
	doc.Languages = languages
	return doc, nil
}

func (s *PostgresStore) UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET status=$1, error=$2 WHERE id=$3`, status, errMsg, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (s *PostgresStore) SetDocumentText(ctx context.Context, id uuid.UUID, text string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET content=$1 WHERE id=$2`, text, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, msg Message) (Message, error) {
	msg.ID = uuid.New()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO messages(id, conversation_id, seq, role, content)
		VALUES($1, $2, (SELECT COALESCE(MAX(seq),0)+1 FROM messages WHERE conversation_id=$2), $3, $4)
		RETURNING seq, created_at`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content)
	if err := row.Scan(&msg.Seq, &msg.CreatedAt); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, role, content, created_at
		FROM messages WHERE conversation_id=$1 ORDER BY seq`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Seq, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.ConversationID = conversationID
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ClearMessages(ctx context.Context, conversationID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id=$1`, conversationID)
	return err
}

func (s *PostgresStore) SaveChunks(ctx context.Context, docID uuid.UUID, chunks []Chunk) ([]Chunk, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		cid := uuid.New()
		_, err := tx.ExecContext(ctx, `INSERT INTO chunks(id, document_id, ord, text, word_count) VALUES($1,$2,$3,$4,$5)`,
			cid, docID, c.Index, c.Text, c.WordCount)
		if err != nil {
			return nil, err
		}
		c.ID = cid
		c.DocumentID = docID
		out = append(out, c)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) SaveEmbeddings(ctx context.Context, embs []Embedding) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, emb := range embs {
		// Convert []float32 to pgvector array format: "[0.1,0.2,0.3,...]"
		vecStr := vectorToString(emb.Vector)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO embeddings(chunk_id, vector, model)
			VALUES($1,$2::vector,$3)
			ON CONFLICT (chunk_id) DO UPDATE SET vector=excluded.vector, model=excluded.model`,
			emb.ChunkID, vecStr, emb.Model)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) TopK(ctx context.Context, docID uuid.UUID, vector embeddings.Vector, k int) ([]SearchResult, error) {
	// Convert query vector to pgvector format
	queryVec := vectorToString(vector)

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			c.id,
			c.document_id,
			c.ord,
			c.text,
			c.word_count,
			1 - (e.vector <=> $1::vector) as similarity
		FROM embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		WHERE c.document_id = $2
		ORDER BY e.vector <=> $1::vector
		LIMIT $3
	`, queryVec, docID, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Chunk.ID, &r.Chunk.DocumentID, &r.Chunk.Index, &r.Chunk.Text,
			&r.Chunk.WordCount, &r.Score); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func pqStringArray(items []string) any {
	if len(items) == 0 {
		return pq.Array([]string{})
	}
	return pq.Array(items)
}

// vectorToString converts a Vector ([]float32) to pgvector array format.
// Format: "[0.1,0.2,0.3,...]"
func vectorToString(v embeddings.Vector) string {
	if len(v) == 0 {
		return "[]"
	}
	parts := make([]string, len(v))
	for i, val := range v {
		parts[i] = strconv.FormatFloat(float64(val), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
