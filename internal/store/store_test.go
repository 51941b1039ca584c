package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/andresmejia3/human4d/internal/types"
)

func TestVertexEncoding(t *testing.T) {
	mesh := []mgl32.Vec3{{1, 2, 3}, {-0.5, 0.25, 1e-3}}
	raw, err := encodeVertices(mesh)
	if err != nil {
		t.Fatalf("encodeVertices failed: %v", err)
	}
	if len(raw) != 24 {
		t.Fatalf("Expected 24 bytes, got %d", len(raw))
	}
	got, err := decodeVertices(raw)
	if err != nil {
		t.Fatalf("decodeVertices failed: %v", err)
	}
	for i := range mesh {
		if got[i] != mesh[i] {
			t.Errorf("Vertex %d: expected %v, got %v", i, mesh[i], got[i])
		}
	}

	if _, err := decodeVertices(raw[:5]); err == nil {
		t.Error("Expected error for truncated blob")
	}
}

func sampleOutput() *types.SMPLMultipleSubjects {
	mesh := func(v float32) []mgl32.Vec3 { return []mgl32.Vec3{{v, 0, 0}, {0, v, 0}, {0, 0, v}} }
	return &types.SMPLMultipleSubjects{
		BodyModel: types.BodyModelRef{Name: "SMPL_NEUTRAL.pkl", Path: "/models/SMPL_NEUTRAL.pkl"},
		Verts: []types.VertexStack{
			{mesh(1), mesh(2)},
			{},
			{mesh(3)},
		},
		Meta: types.Metadata{
			NormalizedToVertices: true,
			Cam: []types.CamStack{
				{{0.1, 0.2, 30}, {-0.1, 0.3, 25}},
				{},
				{{0, 0, 40}},
			},
			FrameWidth:  1920,
			FrameHeight: 1080,
			FocalLength: 37500,
		},
	}
}

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// Explicitly check for Docker availability and fail hard if missing
	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Fatalf("Docker not available, cannot run integration test: %v", err)
	}

	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("human4d_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close(ctx)

	// --- Test Scenarios ---

	out := sampleOutput()
	if err := s.SaveRun(ctx, "vid_123", "/tmp/video.mp4", out); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	loaded, err := s.LoadRun(ctx, "vid_123")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if len(loaded.Verts) != 3 {
		t.Fatalf("Expected 3 frames, got %d", len(loaded.Verts))
	}
	if len(loaded.Verts[0]) != 2 || len(loaded.Verts[1]) != 0 || len(loaded.Verts[2]) != 1 {
		t.Errorf("Unexpected subject counts: %d %d %d", len(loaded.Verts[0]), len(loaded.Verts[1]), len(loaded.Verts[2]))
	}
	if loaded.Verts[0][1][1] != (mgl32.Vec3{0, 2, 0}) {
		t.Errorf("Subject order not preserved: %v", loaded.Verts[0][1])
	}
	if loaded.Meta.Cam[0][1] != (mgl32.Vec3{-0.1, 0.3, 25}) {
		t.Errorf("Unexpected camera %v", loaded.Meta.Cam[0][1])
	}
	if loaded.Meta.FocalLength != 37500 || loaded.BodyModel.Path != "/models/SMPL_NEUTRAL.pkl" {
		t.Errorf("Metadata not restored: %+v %+v", loaded.Meta, loaded.BodyModel)
	}

	// Saving the same id again replaces the run instead of duplicating subjects
	out.Verts = out.Verts[:1]
	out.Meta.Cam = out.Meta.Cam[:1]
	if err := s.SaveRun(ctx, "vid_123", "/tmp/video.mp4", out); err != nil {
		t.Fatalf("second SaveRun failed: %v", err)
	}

	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}
	if runs[0].Frames != 1 || runs[0].Subjects != 2 {
		t.Errorf("Expected 1 frame and 2 subjects, got %d and %d", runs[0].Frames, runs[0].Subjects)
	}

	if _, err := s.LoadRun(ctx, "missing"); err == nil {
		t.Error("Expected error loading unknown run")
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
