// Package mapgen produces the square grid a session is played on and
// the ordered entry-to-exit path hostiles walk. Generation is a pure,
// retryable computation; the result is immutable for the session's
// lifetime.
package mapgen

import (
	"fmt"
	"math/rand/v2"
)

// CellKind classifies one grid cell.
type CellKind uint8

const (
	CellImpassable CellKind = iota
	CellPath
	CellBuildable
	CellEntry
	CellExit
)

// SizeClass selects the grid dimension and cell pixel size.
type SizeClass string

const (
	SizeSmall  SizeClass = "small"
	SizeMedium SizeClass = "medium"
	SizeLarge  SizeClass = "large"
)

var sizeClasses = map[SizeClass]struct {
	dim    int
	cellPx int
}{
	SizeSmall:  {15, 48},
	SizeMedium: {21, 40},
	SizeLarge:  {27, 32},
}

// maxAttempts bounds the carve-and-verify retry loop. Exhausting it is
// a configuration error, never a silently degraded map.
const maxAttempts = 16

// Point is a grid coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Map is a generated session map.
type Map struct {
	Size   int          `json:"size"`
	CellPx int          `json:"cellPx"`
	Cells  [][]CellKind `json:"cells"`
	Entry  Point        `json:"entry"`
	Exit   Point        `json:"exit"`
	// Path is the BFS traversal from entry to exit; consecutive
	// entries are always grid-adjacent.
	Path []Point `json:"path"`
}

// Generate builds a map for the given size class. A nil rng uses the
// shared global source; tests pass a seeded one.
func Generate(class SizeClass, rng *rand.Rand) (*Map, error) {
	sc, ok := sizeClasses[class]
	if !ok {
		return nil, fmt.Errorf("unknown size class %q", class)
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		m, ok := generate(sc.dim, sc.cellPx, rng)
		if ok {
			return m, nil
		}
	}

	return nil, fmt.Errorf("no traversable map after %d attempts (size class %q)", maxAttempts, class)
}

func generate(dim, cellPx int, rng *rand.Rand) (*Map, bool) {
	cells := make([][]CellKind, dim)
	for y := range cells {
		cells[y] = make([]CellKind, dim)
	}

	carve(cells, dim, rng)

	// Entry and exit sit at the vertical midpoint of the left/right
	// edges, nudged to an odd row so they align with the carved
	// lattice.
	mid := dim / 2
	if mid%2 == 0 {
		mid--
	}
	entry := Point{0, mid}
	exit := Point{dim - 1, mid}
	cells[entry.Y][entry.X] = CellEntry
	cells[exit.Y][exit.X] = CellExit

	connectEdge(cells, dim, entry, 1)
	connectEdge(cells, dim, exit, -1)

	path := bfsPath(cells, dim, entry, exit)
	if path == nil {
		return nil, false
	}

	markBuildable(cells, dim)

	return &Map{
		Size:   dim,
		CellPx: cellPx,
		Cells:  cells,
		Entry:  entry,
		Exit:   exit,
		Path:   path,
	}, true
}

// carve runs randomized depth-first carving on the step-2 lattice of
// odd coordinates, leaving walls between parallel corridors.
func carve(cells [][]CellKind, dim int, rng *rand.Rand) {
	sx := 1 + 2*rng.IntN((dim-1)/2)
	sy := 1 + 2*rng.IntN((dim-1)/2)

	type frame struct{ x, y int }
	stack := []frame{{sx, sy}}
	cells[sy][sx] = CellPath

	dirs := [4][2]int{{2, 0}, {-2, 0}, {0, 2}, {0, -2}}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]

		order := [4]int{0, 1, 2, 3}
		rng.Shuffle(4, func(i, j int) { order[i], order[j] = order[j], order[i] })

		moved := false
		for _, d := range order {
			nx, ny := cur.x+dirs[d][0], cur.y+dirs[d][1]
			if nx < 1 || ny < 1 || nx >= dim-1 || ny >= dim-1 {
				continue
			}
			if cells[ny][nx] != CellImpassable {
				continue
			}
			// Open the wall between the two lattice cells.
			cells[cur.y+dirs[d][1]/2][cur.x+dirs[d][0]/2] = CellPath
			cells[ny][nx] = CellPath
			stack = append(stack, frame{nx, ny})
			moved = true
			break
		}
		if !moved {
			stack = stack[:len(stack)-1]
		}
	}
}

// connectEdge carves from an edge cell toward the nearest carved cell
// in its row. The carve is local: it stops as soon as it touches an
// existing path cell, and gives up past the row midpoint (the outer
// retry loop handles that case).
func connectEdge(cells [][]CellKind, dim int, p Point, step int) {
	x := p.X + step
	for x > 0 && x < dim-1 {
		if cells[p.Y][x] != CellImpassable {
			return
		}
		cells[p.Y][x] = CellPath
		if adjacentToPath(cells, dim, x, p.Y) {
			return
		}
		x += step
	}
}

func adjacentToPath(cells [][]CellKind, dim, x, y int) bool {
	for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
		nx, ny := x+d[0], y+d[1]
		if nx < 0 || ny < 0 || nx >= dim || ny >= dim {
			continue
		}
		if cells[ny][nx] == CellPath {
			return true
		}
	}
	return false
}

// bfsPath finds the shortest entry-to-exit traversal over
// non-impassable cells, or nil if none exists.
func bfsPath(cells [][]CellKind, dim int, entry, exit Point) []Point {
	prev := make(map[Point]Point, dim*dim)
	seen := make(map[Point]bool, dim*dim)
	queue := []Point{entry}
	seen[entry] = true

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == exit {
			// Walk back to build the ordered path.
			var path []Point
			for p := exit; ; p = prev[p] {
				path = append([]Point{p}, path...)
				if p == entry {
					return path
				}
			}
		}
		for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			n := Point{cur.X + d[0], cur.Y + d[1]}
			if n.X < 0 || n.Y < 0 || n.X >= dim || n.Y >= dim {
				continue
			}
			if seen[n] || cells[n.Y][n.X] == CellImpassable {
				continue
			}
			seen[n] = true
			prev[n] = cur
			queue = append(queue, n)
		}
	}

	return nil
}

// markBuildable flags every impassable cell adjacent to any
// path/entry/exit cell. All carved corridors count, not just the BFS
// route.
func markBuildable(cells [][]CellKind, dim int) {
	for y := 0; y < dim; y++ {
		for x := 0; x < dim; x++ {
			if cells[y][x] != CellImpassable {
				continue
			}
			for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || ny < 0 || nx >= dim || ny >= dim {
					continue
				}
				switch cells[ny][nx] {
				case CellPath, CellEntry, CellExit:
					cells[y][x] = CellBuildable
				}
				if cells[y][x] == CellBuildable {
					break
				}
			}
		}
	}
}

// At returns the cell kind at a grid coordinate.
func (m *Map) At(x, y int) CellKind {
	if x < 0 || y < 0 || x >= m.Size || y >= m.Size {
		return CellImpassable
	}
	return m.Cells[y][x]
}

// Waypoint returns the pixel-space center of the i-th path cell.
func (m *Map) Waypoint(i int) (float64, float64) {
	p := m.Path[i]
	return (float64(p.X) + 0.5) * float64(m.CellPx), (float64(p.Y) + 0.5) * float64(m.CellPx)
}
