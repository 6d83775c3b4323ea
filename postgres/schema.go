package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS grading_models (
    id             TEXT PRIMARY KEY,
    course_id      TEXT NOT NULL,
    course_part_id TEXT NOT NULL DEFAULT '',
    name           TEXT NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS grading_nodes (
    model_id   TEXT NOT NULL REFERENCES grading_models(id) ON DELETE CASCADE,
    id         TEXT NOT NULL,
    seq        BIGSERIAL,
    kind       TEXT NOT NULL,
    title      TEXT NOT NULL DEFAULT '',
    handles    JSONB NOT NULL DEFAULT '[]',
    settings   JSONB,
    PRIMARY KEY (model_id, id)
);

CREATE TABLE IF NOT EXISTS grading_edges (
    model_id      TEXT NOT NULL,
    id            TEXT NOT NULL,
    seq           BIGSERIAL,
    source        TEXT NOT NULL,
    source_handle TEXT,
    target        TEXT NOT NULL,
    target_handle TEXT,
    PRIMARY KEY (model_id, id),
    FOREIGN KEY (model_id, source) REFERENCES grading_nodes(model_id, id) ON DELETE CASCADE,
    FOREIGN KEY (model_id, target) REFERENCES grading_nodes(model_id, id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_grading_models_course ON grading_models(course_id);
CREATE INDEX IF NOT EXISTS idx_grading_edges_source  ON grading_edges(model_id, source);
CREATE INDEX IF NOT EXISTS idx_grading_edges_target  ON grading_edges(model_id, target);
`

// CreateSchema creates the grading model tables if they don't exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

// DropSchema drops the grading model tables.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS grading_edges, grading_nodes, grading_models CASCADE;`)
	return err
}
