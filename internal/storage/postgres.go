package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/classguard/internal/config"
	"github.com/your-org/classguard/internal/models"
)

// PostgresStore owns all Identity records. Mutating operations are
// serialized by mu (single-writer discipline); reads go straight to the
// pool and observe committed snapshots only.
type PostgresStore struct {
	pool *pgxpool.Pool
	mu   sync.Mutex
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS students (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			class_name TEXT NOT NULL,
			blur_policy BOOLEAN NOT NULL DEFAULT TRUE,
			photo_key TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_students_class ON students (class_name)`,
		`CREATE TABLE IF NOT EXISTS reference_embeddings (
			id UUID PRIMARY KEY,
			student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
			embedding vector(512) NOT NULL,
			source_key TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_refemb_student ON reference_embeddings (student_id)`,
		`CREATE TABLE IF NOT EXISTS processing_results (
			id UUID PRIMARY KEY,
			class_name TEXT NOT NULL,
			source_key TEXT NOT NULL,
			output_key TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS result_faces (
			id UUID PRIMARY KEY,
			result_id UUID NOT NULL REFERENCES processing_results(id) ON DELETE CASCADE,
			ord INT NOT NULL,
			x1 INT NOT NULL, y1 INT NOT NULL, x2 INT NOT NULL, y2 INT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			outcome TEXT NOT NULL,
			matched_id UUID,
			score REAL NOT NULL DEFAULT 0,
			redacted BOOLEAN NOT NULL DEFAULT FALSE,
			error_message TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_result_faces_result ON result_faces (result_id, ord)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// --- Students ---

// CreateStudent persists a new student together with its first reference
// embedding in one transaction. Either both rows land or neither does.
func (s *PostgresStore) CreateStudent(ctx context.Context, st *models.Student, embedding []float32, sourceKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	st.ID = uuid.New()
	err = tx.QueryRow(ctx,
		`INSERT INTO students (id, name, class_name, blur_policy, photo_key)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at, updated_at`,
		st.ID, st.Name, st.ClassName, st.BlurPolicy, st.PhotoKey,
	).Scan(&st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create student: %w", err)
	}

	ref := models.ReferenceEmbedding{
		ID:        uuid.New(),
		StudentID: st.ID,
		Vector:    embedding,
		SourceKey: sourceKey,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO reference_embeddings (id, student_id, embedding, source_key)
		 VALUES ($1, $2, $3, $4) RETURNING created_at`,
		ref.ID, ref.StudentID, pgvector.NewVector(embedding), ref.SourceKey,
	).Scan(&ref.CreatedAt)
	if err != nil {
		return fmt.Errorf("create reference embedding: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	st.Embeddings = []models.ReferenceEmbedding{ref}
	return nil
}

// AppendEmbedding adds another reference embedding to an existing student
// (re-enrollment). Existing vectors are kept.
func (s *PostgresStore) AppendEmbedding(ctx context.Context, studentID uuid.UUID, embedding []float32, sourceKey string) (*models.ReferenceEmbedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := &models.ReferenceEmbedding{
		ID:        uuid.New(),
		StudentID: studentID,
		Vector:    embedding,
		SourceKey: sourceKey,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO reference_embeddings (id, student_id, embedding, source_key)
		 VALUES ($1, $2, $3, $4) RETURNING created_at`,
		ref.ID, ref.StudentID, pgvector.NewVector(embedding), ref.SourceKey,
	).Scan(&ref.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("append embedding: %w", err)
	}
	return ref, nil
}

func (s *PostgresStore) GetStudent(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	st := &models.Student{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, class_name, blur_policy, photo_key, created_at, updated_at
		 FROM students WHERE id = $1`, id,
	).Scan(&st.ID, &st.Name, &st.ClassName, &st.BlurPolicy, &st.PhotoKey, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get student: %w", err)
	}
	return st, nil
}

// ListStudents returns students ordered by name, optionally filtered by
// class. Embeddings are not loaded; use LoadRoster for the matching path.
func (s *PostgresStore) ListStudents(ctx context.Context, className *string) ([]models.Student, error) {
	query := `SELECT id, name, class_name, blur_policy, photo_key, created_at, updated_at
		 FROM students ORDER BY name, created_at`
	args := []interface{}{}
	if className != nil {
		query = `SELECT id, name, class_name, blur_policy, photo_key, created_at, updated_at
		 FROM students WHERE class_name = $1 ORDER BY name, created_at`
		args = append(args, *className)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var students []models.Student
	for rows.Next() {
		var st models.Student
		if err := rows.Scan(&st.ID, &st.Name, &st.ClassName, &st.BlurPolicy, &st.PhotoKey, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// LoadRoster returns the students of a class together with all of their
// reference embeddings, ready for matching. Students without embeddings are
// excluded: they are not enrolled.
func (s *PostgresStore) LoadRoster(ctx context.Context, className string) ([]models.Student, error) {
	students, err := s.ListStudents(ctx, &className)
	if err != nil {
		return nil, err
	}
	if len(students) == 0 {
		return nil, nil
	}

	byID := make(map[uuid.UUID]*models.Student, len(students))
	for i := range students {
		byID[students[i].ID] = &students[i]
	}

	rows, err := s.pool.Query(ctx,
		`SELECT re.id, re.student_id, re.embedding, re.source_key, re.created_at
		 FROM reference_embeddings re
		 JOIN students st ON st.id = re.student_id
		 WHERE st.class_name = $1
		 ORDER BY re.created_at`, className)
	if err != nil {
		return nil, fmt.Errorf("load roster embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ref models.ReferenceEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&ref.ID, &ref.StudentID, &vec, &ref.SourceKey, &ref.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan roster embedding: %w", err)
		}
		ref.Vector = vec.Slice()
		if st, ok := byID[ref.StudentID]; ok {
			st.Embeddings = append(st.Embeddings, ref)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	roster := students[:0]
	for _, st := range students {
		if st.Enrolled() {
			roster = append(roster, st)
		}
	}
	return roster, nil
}

// ListClasses returns the deduplicated, ordered set of class names.
func (s *PostgresStore) ListClasses(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT class_name FROM students ORDER BY class_name`)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	defer rows.Close()

	var classes []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

// UpdatePolicy flips the blur flag for one student.
func (s *PostgresStore) UpdatePolicy(ctx context.Context, id uuid.UUID, blurPolicy bool) (*models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &models.Student{}
	err := s.pool.QueryRow(ctx,
		`UPDATE students SET blur_policy = $1, updated_at = NOW()
		 WHERE id = $2
		 RETURNING id, name, class_name, blur_policy, photo_key, created_at, updated_at`,
		blurPolicy, id,
	).Scan(&st.ID, &st.Name, &st.ClassName, &st.BlurPolicy, &st.PhotoKey, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, models.NewError(models.KindNotFound, "student not found")
		}
		return nil, fmt.Errorf("update policy: %w", err)
	}
	return st, nil
}

// DeleteStudent removes one student and its embeddings, returning the blob
// keys that referenced it so the caller can sweep the blob store.
func (s *PostgresStore) DeleteStudent(ctx context.Context, id uuid.UUID) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	keys, err := collectKeys(ctx, tx,
		`SELECT source_key FROM reference_embeddings WHERE student_id = $1 AND source_key <> ''`, id)
	if err != nil {
		return nil, err
	}

	var photoKey string
	err = tx.QueryRow(ctx, `DELETE FROM students WHERE id = $1 RETURNING photo_key`, id).Scan(&photoKey)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, models.NewError(models.KindNotFound, "student not found")
		}
		return nil, fmt.Errorf("delete student: %w", err)
	}
	if photoKey != "" {
		keys = append(keys, photoKey)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return keys, nil
}

// ResetAll wipes every student, embedding and processing result in a single
// transaction and returns all blob keys that were referenced, so the caller
// can sweep the blob store. Concurrent readers see either the full roster or
// the empty one, never a partial wipe.
func (s *PostgresStore) ResetAll(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var keys []string
	for _, q := range []string{
		`SELECT photo_key FROM students WHERE photo_key <> ''`,
		`SELECT source_key FROM reference_embeddings WHERE source_key <> ''`,
		`SELECT source_key FROM processing_results WHERE source_key <> ''`,
		`SELECT output_key FROM processing_results WHERE output_key <> ''`,
	} {
		ks, err := collectKeys(ctx, tx, q)
		if err != nil {
			return nil, err
		}
		keys = append(keys, ks...)
	}

	for _, stmt := range []string{
		`DELETE FROM result_faces`,
		`DELETE FROM processing_results`,
		`DELETE FROM reference_embeddings`,
		`DELETE FROM students`,
	} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("reset: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reset: %w", err)
	}
	return keys, nil
}

func collectKeys(ctx context.Context, tx pgx.Tx, query string, args ...interface{}) ([]string, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("collect keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// --- Processing results ---

// SaveResult persists a finished ProcessingResult with its per-face rows.
func (s *PostgresStore) SaveResult(ctx context.Context, res *models.ProcessingResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO processing_results (id, class_name, source_key, output_key, status, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`,
		res.ID, res.ClassName, res.SourceKey, res.OutputKey, res.Status, res.Error,
	).Scan(&res.CreatedAt)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}

	for i, f := range res.Faces {
		_, err := tx.Exec(ctx,
			`INSERT INTO result_faces (id, result_id, ord, x1, y1, x2, y2, confidence, outcome, matched_id, score, redacted, error_message)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			uuid.New(), res.ID, i, f.Box.X1, f.Box.Y1, f.Box.X2, f.Box.Y2,
			f.Confidence, f.Outcome, f.MatchedID, f.Score, f.Redacted, f.Error)
		if err != nil {
			return fmt.Errorf("save result face: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// GetResult loads a ProcessingResult with its faces in detection order.
func (s *PostgresStore) GetResult(ctx context.Context, id uuid.UUID) (*models.ProcessingResult, error) {
	res := &models.ProcessingResult{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, class_name, source_key, output_key, status, error_message, created_at
		 FROM processing_results WHERE id = $1`, id,
	).Scan(&res.ID, &res.ClassName, &res.SourceKey, &res.OutputKey, &res.Status, &res.Error, &res.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, models.NewError(models.KindNotFound, "result not found")
		}
		return nil, fmt.Errorf("get result: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT x1, y1, x2, y2, confidence, outcome, matched_id, score, redacted, error_message
		 FROM result_faces WHERE result_id = $1 ORDER BY ord`, id)
	if err != nil {
		return nil, fmt.Errorf("get result faces: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f models.DetectedFace
		if err := rows.Scan(&f.Box.X1, &f.Box.Y1, &f.Box.X2, &f.Box.Y2,
			&f.Confidence, &f.Outcome, &f.MatchedID, &f.Score, &f.Redacted, &f.Error); err != nil {
			return nil, fmt.Errorf("scan result face: %w", err)
		}
		res.Faces = append(res.Faces, f)
	}
	return res, rows.Err()
}

// SearchFaces finds the closest enrolled students for an embedding using
// the pgvector cosine operator. Retained as a server-side alternative to the
// in-process matcher for large rosters; the redaction pipeline itself uses
// the in-process matcher so the tie rule stays under our control.
func (s *PostgresStore) SearchFaces(ctx context.Context, embedding []float32, className *string, maxDistance float64, limit int) ([]SearchMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	vec := pgvector.NewVector(embedding)

	var query string
	var args []interface{}

	if className != nil {
		query = `
			SELECT re.student_id, st.name, (re.embedding <=> $1) AS dist
			FROM reference_embeddings re
			JOIN students st ON st.id = re.student_id
			WHERE st.class_name = $2
			  AND (re.embedding <=> $1) <= $3
			ORDER BY re.embedding <=> $1
			LIMIT $4`
		args = []interface{}{vec, *className, maxDistance, limit}
	} else {
		query = `
			SELECT re.student_id, st.name, (re.embedding <=> $1) AS dist
			FROM reference_embeddings re
			JOIN students st ON st.id = re.student_id
			WHERE (re.embedding <=> $1) <= $2
			ORDER BY re.embedding <=> $1
			LIMIT $3`
		args = []interface{}{vec, maxDistance, limit}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search faces: %w", err)
	}
	defer rows.Close()

	var matches []SearchMatch
	for rows.Next() {
		var m SearchMatch
		if err := rows.Scan(&m.StudentID, &m.Name, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan search match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

type SearchMatch struct {
	StudentID uuid.UUID `json:"student_id"`
	Name      string    `json:"name"`
	Distance  float32   `json:"distance"`
}
