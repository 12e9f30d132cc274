// Package pgrows implements the "pipeflow.pg_rows" dataset handler:
// items stored as JSONB rows in a Postgres table, with an optional
// pgvector column for nodes that produce or consume embeddings. Grounded
// on the teacher's pkg/middleware/retrieval/pgvector Client (pgxpool
// connection setup, pgvector type registration, lazy table creation),
// generalized from a fixed document+embedding schema to pipeflow's
// arbitrary-shaped Item.
package pgrows

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/pipeflow/pipeflow/pkg/catalog"
)

// Tag is the catalog.yaml "type" value that selects this handler.
const Tag = "pipeflow.pg_rows"

func init() {
	catalog.RegisterHandler(Tag, New)
}

// Handler stores each item as a JSONB row, keyed by Handler.keys (or a
// random UUID with no keys configured), with an optional pgvector column
// when VectorDim > 0.
type Handler struct {
	name      string
	keys      []string
	pool      *pgxpool.Pool
	table     string
	vectorDim int

	ensureOnce sync.Once
	ensureErr  error
}

// New opens a connection pool to options["dsn"] and targets
// options["table"]. options["vector_dimension"], if present and > 0, adds
// an "embedding" vector(N) column and registers pgvector's pgx type
// extension on every new connection.
func New(name string, keys []string, options map[string]any) (catalog.Handler, error) {
	dsn, ok := options["dsn"].(string)
	if !ok || dsn == "" {
		return nil, fmt.Errorf("catalog: dataset %q: pg-rows handler requires a non-empty \"dsn\" option", name)
	}
	table, ok := options["table"].(string)
	if !ok || table == "" {
		return nil, fmt.Errorf("catalog: dataset %q: pg-rows handler requires a non-empty \"table\" option", name)
	}
	vectorDim := intOption(options["vector_dimension"])

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: dataset %q: parsing dsn: %w", name, err)
	}
	if vectorDim > 0 {
		poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return pgxvec.RegisterTypes(ctx, conn)
		}
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("catalog: dataset %q: connecting: %w", name, err)
	}

	return &Handler{name: name, keys: keys, pool: pool, table: table, vectorDim: vectorDim}, nil
}

func intOption(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// Close releases the underlying connection pool.
func (h *Handler) Close() error {
	h.pool.Close()
	return nil
}

func (h *Handler) ensureTable(ctx context.Context) error {
	h.ensureOnce.Do(func() {
		cols := "key TEXT PRIMARY KEY, data JSONB NOT NULL"
		if h.vectorDim > 0 {
			cols += fmt.Sprintf(", embedding vector(%d)", h.vectorDim)
		}
		_, h.ensureErr = h.pool.Exec(ctx, fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (%s)", h.table, cols))
	})
	return h.ensureErr
}

func (h *Handler) Length(ctx context.Context) (int, error) {
	if err := h.ensureTable(ctx); err != nil {
		return 0, err
	}
	var n int
	err := h.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", h.table)).Scan(&n)
	return n, err
}

func (h *Handler) Iterate(ctx context.Context) iter.Seq2[any, catalog.Item] {
	return func(yield func(any, catalog.Item) bool) {
		if err := h.ensureTable(ctx); err != nil {
			return
		}
		rows, err := h.pool.Query(ctx, fmt.Sprintf("SELECT key, data FROM %s ORDER BY key", h.table))
		if err != nil {
			return
		}
		defer rows.Close()
		for rows.Next() {
			var key string
			var raw []byte
			if err := rows.Scan(&key, &raw); err != nil {
				continue
			}
			var item catalog.Item
			if err := json.Unmarshal(raw, &item); err != nil {
				continue
			}
			if !yield(key, item) {
				return
			}
		}
	}
}

func (h *Handler) Get(ctx context.Context, key any) (catalog.Item, error) {
	if err := h.ensureTable(ctx); err != nil {
		return nil, err
	}
	var raw []byte
	err := h.pool.QueryRow(ctx, fmt.Sprintf("SELECT data FROM %s WHERE key = $1", h.table), fmt.Sprint(key)).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, &catalog.NotFoundError{Dataset: h.name, Key: key}
	}
	if err != nil {
		return nil, err
	}
	var item catalog.Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, err
	}
	return item, nil
}

// Save upserts item under a key derived from Handler.keys (or a random
// UUID). When VectorDim > 0 and item carries an "embedding" field
// ([]float32 or []float64), it is stored in the dedicated vector column
// so a downstream node can run a similarity search over the table
// directly; "embedding" otherwise stays JSON-encoded in data like any
// other field.
func (h *Handler) Save(ctx context.Context, item catalog.Item) error {
	if err := h.ensureTable(ctx); err != nil {
		return err
	}
	key := h.keyFor(item)
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("catalog: dataset %q: encoding item: %w", h.name, err)
	}

	if h.vectorDim > 0 {
		if vec, ok := embeddingOf(item["embedding"]); ok {
			_, err = h.pool.Exec(ctx, fmt.Sprintf(`
				INSERT INTO %s (key, data, embedding) VALUES ($1, $2, $3)
				ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, embedding = EXCLUDED.embedding`,
				h.table), key, data, pgvector.NewVector(vec))
			return err
		}
	}

	_, err = h.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (key, data) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data`,
		h.table), key, data)
	return err
}

func (h *Handler) keyFor(item catalog.Item) string {
	if len(h.keys) == 0 {
		return uuid.NewString()
	}
	parts := make([]string, len(h.keys))
	for i, k := range h.keys {
		parts[i] = fmt.Sprint(item[k])
	}
	return strings.Join(parts, "|")
}

func embeddingOf(v any) ([]float32, bool) {
	switch vec := v.(type) {
	case []float32:
		return vec, true
	case []float64:
		out := make([]float32, len(vec))
		for i, f := range vec {
			out[i] = float32(f)
		}
		return out, true
	case []any:
		out := make([]float32, 0, len(vec))
		for _, e := range vec {
			f, ok := e.(float64)
			if !ok {
				return nil, false
			}
			out = append(out, float32(f))
		}
		return out, true
	default:
		return nil, false
	}
}
