// Package traj reads trajectory files and turns them into host frames, one
// per step. The supported format is XYZ, plain or gzip-compressed; the cell
// may come from a bare numeric comment line or an extended-XYZ Lattice
// attribute.
package traj

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/agoscinski/colvar/internal/host"
)

// Reader yields frames from an XYZ stream. The comment line of each frame
// may carry the cell: three floats for an orthorhombic box, nine for a full
// row-major box matrix, or an extended-XYZ Lattice="..." attribute. Frames
// without a cell leave the previous box in place.
type Reader struct {
	scan    *bufio.Scanner
	closers []io.Closer
	frame   int
}

// Open opens a trajectory file. Files ending in .gz are decompressed
// transparently.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := &Reader{closers: []io.Closer{f}}
	var src io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		r.closers = append([]io.Closer{gz}, r.closers...)
		src = gz
	}
	r.scan = bufio.NewScanner(src)
	r.scan.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	return r, nil
}

// New reads frames from an already-open stream. Used by tests.
func New(src io.Reader) *Reader {
	r := &Reader{scan: bufio.NewScanner(src)}
	r.scan.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	return r
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (r *Reader) line() (string, bool) {
	for r.scan.Scan() {
		s := strings.TrimSpace(r.scan.Text())
		if s != "" {
			return s, true
		}
	}
	return "", false
}

// Next reads one frame. It returns io.EOF at the end of the stream.
func (r *Reader) Next() (*host.Frame, error) {
	head, ok := r.line()
	if !ok {
		if err := r.scan.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	n, err := strconv.Atoi(head)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("frame %d: bad atom count %q", r.frame, head)
	}

	comment, ok := r.line()
	if !ok {
		return nil, fmt.Errorf("frame %d: truncated after atom count", r.frame)
	}
	box, err := parseBox(comment)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", r.frame, err)
	}

	f := &host.Frame{
		Positions: make([]float64, 3*n),
		Box:       box,
	}
	for i := 0; i < n; i++ {
		line, ok := r.line()
		if !ok {
			return nil, fmt.Errorf("frame %d: truncated at atom %d of %d", r.frame, i, n)
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return nil, fmt.Errorf("frame %d: atom %d: need element and three coordinates, got %q", r.frame, i, line)
		}
		for c := 0; c < 3; c++ {
			x, err := strconv.ParseFloat(fields[c+1], 64)
			if err != nil {
				return nil, fmt.Errorf("frame %d: atom %d: %w", r.frame, i, err)
			}
			f.Positions[3*i+c] = x
		}
	}
	r.frame++
	return f, nil
}

// parseBox interprets a comment line holding three floats as an
// orthorhombic cell and nine as a full row-major matrix. An extended-XYZ
// Lattice attribute carries the nine components quoted. Anything else means
// no cell on this frame.
func parseBox(comment string) ([]float64, error) {
	if i := strings.Index(comment, `Lattice="`); i >= 0 {
		rest := comment[i+len(`Lattice="`):]
		j := strings.Index(rest, `"`)
		if j < 0 {
			return nil, fmt.Errorf("unterminated Lattice attribute")
		}
		fields := strings.Fields(rest[:j])
		if len(fields) != 9 {
			return nil, fmt.Errorf("Lattice holds %d numbers, want 9", len(fields))
		}
		vals := make([]float64, 9)
		for k, f := range fields {
			x, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("Lattice component %d: %w", k, err)
			}
			vals[k] = x
		}
		return vals, nil
	}

	fields := strings.Fields(comment)
	vals := make([]float64, 0, len(fields))
	for _, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, nil
		}
		vals = append(vals, x)
	}
	switch len(vals) {
	case 3:
		return []float64{
			vals[0], 0, 0,
			0, vals[1], 0,
			0, 0, vals[2],
		}, nil
	case 9:
		return vals, nil
	case 0:
		return nil, nil
	default:
		return nil, fmt.Errorf("cell line holds %d numbers, want 3 or 9", len(vals))
	}
}
