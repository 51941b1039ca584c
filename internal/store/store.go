package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/jackc/pgx/v5"

	"github.com/andresmejia3/human4d/internal/types"
)

// Store manages the PostgreSQL connection holding sampled mesh runs.
type Store struct {
	conn *pgx.Conn
}

// Run summarises one stored sampler output.
type Run struct {
	ID          string
	Path        string
	Frames      int
	Subjects    int
	Width       float32
	Height      float32
	FocalLength float32
	BodyModel   string
	CreatedAt   time.Time
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the run tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS mesh_runs (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			frames INT NOT NULL,
			frame_width REAL NOT NULL,
			frame_height REAL NOT NULL,
			focal_length REAL NOT NULL,
			body_model TEXT NOT NULL,
			body_model_path TEXT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS mesh_subjects (
			run_id TEXT REFERENCES mesh_runs(id) ON DELETE CASCADE,
			frame_index INT NOT NULL,
			subject_index INT NOT NULL,
			cam_t REAL[] NOT NULL,
			vertices BYTEA NOT NULL,
			PRIMARY KEY (run_id, frame_index, subject_index)
		);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// SaveRun stores out under id, replacing any earlier run with the same id.
func (s *Store) SaveRun(ctx context.Context, id, path string, out *types.SMPLMultipleSubjects) error {
	if len(out.Verts) != len(out.Meta.Cam) {
		return fmt.Errorf("run has %d vertex stacks but %d camera stacks", len(out.Verts), len(out.Meta.Cam))
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Re-running the same input replaces its rows
	if _, err := tx.Exec(ctx, "DELETE FROM mesh_runs WHERE id = $1", id); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO mesh_runs (id, path, frames, frame_width, frame_height, focal_length, body_model, body_model_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id, path, len(out.Verts), out.Meta.FrameWidth, out.Meta.FrameHeight, out.Meta.FocalLength,
		out.BodyModel.Name, out.BodyModel.Path)
	if err != nil {
		return err
	}

	var rows [][]any
	for f, stack := range out.Verts {
		if len(stack) != len(out.Meta.Cam[f]) {
			return fmt.Errorf("frame %d has %d meshes but %d cameras", f, len(stack), len(out.Meta.Cam[f]))
		}
		for subj, mesh := range stack {
			cam := out.Meta.Cam[f][subj]
			raw, err := encodeVertices(mesh)
			if err != nil {
				return fmt.Errorf("failed to encode frame %d subject %d: %w", f, subj, err)
			}
			rows = append(rows, []any{id, f, subj, []float32{cam[0], cam[1], cam[2]}, raw})
		}
	}

	if len(rows) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"mesh_subjects"},
			[]string{"run_id", "frame_index", "subject_index", "cam_t", "vertices"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("failed to copy subjects: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ListRuns returns every stored run, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT r.id, r.path, r.frames, r.frame_width, r.frame_height, r.focal_length, r.body_model, r.created_at,
			(SELECT COUNT(*) FROM mesh_subjects s WHERE s.run_id = r.id)
		FROM mesh_runs r
		ORDER BY r.created_at DESC, r.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Path, &r.Frames, &r.Width, &r.Height, &r.FocalLength, &r.BodyModel, &r.CreatedAt, &r.Subjects); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LoadRun rebuilds the sampler output stored under id.
func (s *Store) LoadRun(ctx context.Context, id string) (*types.SMPLMultipleSubjects, error) {
	var frames int
	out := &types.SMPLMultipleSubjects{Meta: types.Metadata{NormalizedToVertices: true}}
	err := s.conn.QueryRow(ctx, `
		SELECT frames, frame_width, frame_height, focal_length, body_model, body_model_path
		FROM mesh_runs WHERE id = $1
	`, id).Scan(&frames, &out.Meta.FrameWidth, &out.Meta.FrameHeight, &out.Meta.FocalLength,
		&out.BodyModel.Name, &out.BodyModel.Path)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("run %q not found", id)
	}
	if err != nil {
		return nil, err
	}

	out.Verts = make([]types.VertexStack, frames)
	out.Meta.Cam = make([]types.CamStack, frames)
	for f := range out.Verts {
		out.Verts[f] = types.VertexStack{}
		out.Meta.Cam[f] = types.CamStack{}
	}

	rows, err := s.conn.Query(ctx, `
		SELECT frame_index, cam_t, vertices FROM mesh_subjects
		WHERE run_id = $1 ORDER BY frame_index, subject_index
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var f int
		var cam []float32
		var raw []byte
		if err := rows.Scan(&f, &cam, &raw); err != nil {
			return nil, err
		}
		if f < 0 || f >= frames || len(cam) != 3 {
			return nil, fmt.Errorf("corrupt subject row for frame %d", f)
		}
		mesh, err := decodeVertices(raw)
		if err != nil {
			return nil, err
		}
		out.Verts[f] = append(out.Verts[f], mesh)
		out.Meta.Cam[f] = append(out.Meta.Cam[f], mgl32.Vec3{cam[0], cam[1], cam[2]})
	}
	return out, rows.Err()
}

// Reset drops all application tables to clear the database state.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS mesh_subjects CASCADE;
		DROP TABLE IF EXISTS mesh_runs CASCADE;
	`)
	return err
}

// encodeVertices packs a mesh as big-endian float32 triples.
func encodeVertices(mesh []mgl32.Vec3) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(mesh) * 12)
	if err := binary.Write(&buf, binary.BigEndian, mesh); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeVertices(raw []byte) ([]mgl32.Vec3, error) {
	if len(raw)%12 != 0 {
		return nil, fmt.Errorf("vertex blob of %d bytes is not a whole number of vertices", len(raw))
	}
	mesh := make([]mgl32.Vec3, len(raw)/12)
	if err := binary.Read(bytes.NewReader(raw), binary.BigEndian, mesh); err != nil {
		return nil, err
	}
	return mesh, nil
}
