package splitter

import (
	"errors"
	"testing"
)

func TestPlanExactGrid(t *testing.T) {
	plan, err := Plan(100, 100, 4)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if plan.Cols != 2 || plan.Rows != 2 {
		t.Fatalf("grid mismatch: got %dx%d, want 2x2", plan.Cols, plan.Rows)
	}
	if len(plan.Cells) != 4 {
		t.Fatalf("cell count mismatch: got %d, want 4", len(plan.Cells))
	}
	for _, cell := range plan.Cells {
		if cell.Width != 50 || cell.Height != 50 {
			t.Errorf("cell %d size mismatch: got %dx%d, want 50x50", cell.Position, cell.Width, cell.Height)
		}
	}
}

func TestPlanUnevenWidth(t *testing.T) {
	// 101 px over 2 columns: ceil cell width 51, trailing column clipped to 50.
	plan, err := Plan(101, 100, 4)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	for _, cell := range plan.Cells {
		switch cell.Left {
		case 0:
			if cell.Width != 51 {
				t.Errorf("cell %d width mismatch: got %d, want 51", cell.Position, cell.Width)
			}
		case 51:
			if cell.Width != 50 {
				t.Errorf("cell %d width mismatch: got %d, want 50", cell.Position, cell.Width)
			}
		default:
			t.Errorf("cell %d unexpected left offset %d", cell.Position, cell.Left)
		}
		if cell.Height != 50 {
			t.Errorf("cell %d height mismatch: got %d, want 50", cell.Position, cell.Height)
		}
	}
}

func TestPlanNonSquareChunkCount(t *testing.T) {
	// N=5 gives cols=2, rows=2, so only 4 cells are produced.
	plan, err := Plan(100, 100, 5)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(plan.Cells) != 4 {
		t.Fatalf("cell count mismatch: got %d, want 4", len(plan.Cells))
	}
}

func TestPlanPositionsAreRowMajor(t *testing.T) {
	plan, err := Plan(90, 60, 9)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	for i, cell := range plan.Cells {
		if cell.Position != i+1 {
			t.Errorf("cell at index %d has position %d, want %d", i, cell.Position, i+1)
		}
	}
	// Row-major: position 2 sits to the right of position 1, not below it.
	if plan.Cells[1].Top != 0 || plan.Cells[1].Left == 0 {
		t.Errorf("position 2 not row-major: left=%d top=%d", plan.Cells[1].Left, plan.Cells[1].Top)
	}
}

func TestPlanFullCoverage(t *testing.T) {
	plan, err := Plan(97, 53, 9)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	var area int
	for _, cell := range plan.Cells {
		if cell.Left+cell.Width > plan.Width {
			t.Errorf("cell %d overflows width: left=%d width=%d", cell.Position, cell.Left, cell.Width)
		}
		if cell.Top+cell.Height > plan.Height {
			t.Errorf("cell %d overflows height: top=%d height=%d", cell.Position, cell.Top, cell.Height)
		}
		area += cell.Width * cell.Height
	}
	if area != plan.Width*plan.Height {
		t.Errorf("cells do not cover image exactly: covered %d, want %d", area, plan.Width*plan.Height)
	}
}

func TestPlanGridLargerThanImage(t *testing.T) {
	// More requested chunks than pixels: the grid shrinks to the columns and
	// rows that actually hold pixels, and coverage stays exact.
	cases := []struct {
		name   string
		width  int
		height int
		chunks int
	}{
		{"10x10 n=81", 10, 10, 81},
		{"3x2 n=100", 3, 2, 100},
		{"1x1 n=16", 1, 1, 16},
		{"5x40 n=64", 5, 40, 64},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := Plan(tc.width, tc.height, tc.chunks)
			if err != nil {
				t.Fatalf("Plan failed: %v", err)
			}
			if plan.Cols > tc.width || plan.Rows > tc.height {
				t.Fatalf("grid %dx%d exceeds image %dx%d",
					plan.Cols, plan.Rows, tc.width, tc.height)
			}
			var area int
			for i, cell := range plan.Cells {
				if cell.Width <= 0 || cell.Height <= 0 {
					t.Fatalf("cell %d has empty extent: %dx%d", cell.Position, cell.Width, cell.Height)
				}
				if cell.Left+cell.Width > tc.width || cell.Top+cell.Height > tc.height {
					t.Fatalf("cell %d overflows image: %+v", cell.Position, cell)
				}
				if cell.Position != i+1 {
					t.Fatalf("cell at index %d has position %d, want %d", i, cell.Position, i+1)
				}
				area += cell.Width * cell.Height
			}
			if area != tc.width*tc.height {
				t.Errorf("cells do not cover image exactly: covered %d, want %d",
					area, tc.width*tc.height)
			}
		})
	}
}

func TestPlanSingleChunk(t *testing.T) {
	plan, err := Plan(64, 48, 1)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(plan.Cells) != 1 {
		t.Fatalf("cell count mismatch: got %d, want 1", len(plan.Cells))
	}
	cell := plan.Cells[0]
	if cell.Left != 0 || cell.Top != 0 || cell.Width != 64 || cell.Height != 48 || cell.Position != 1 {
		t.Errorf("unexpected cell: %+v", cell)
	}
}

func TestPlanInvalidInputs(t *testing.T) {
	cases := []struct {
		name   string
		width  int
		height int
		chunks int
	}{
		{"zero width", 0, 100, 4},
		{"negative height", 100, -1, 4},
		{"zero chunks", 100, 100, 0},
		{"negative chunks", 100, 100, -3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Plan(tc.width, tc.height, tc.chunks)
			if !errors.Is(err, ErrInvalidDimensions) {
				t.Errorf("Plan(%d, %d, %d) error = %v, want ErrInvalidDimensions",
					tc.width, tc.height, tc.chunks, err)
			}
		})
	}
}

func TestProbeDimensionsUnreadableFile(t *testing.T) {
	_, _, err := ProbeDimensions("does-not-exist.png")
	if err == nil {
		t.Fatal("ProbeDimensions should fail for a missing file")
	}
}
