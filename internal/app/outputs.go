package app

import (
	"io"
	"os"
	"path/filepath"
)

// outputSet tracks the files opened on behalf of output nodes so that the
// app can flush and close them when the run ends. Relative paths resolve
// under the configured output root.
type outputSet struct {
	dir   string
	files []*os.File
}

func newOutputSet(dir string) *outputSet {
	return &outputSet{dir: dir}
}

// Open creates (truncating) the named output file.
func (o *outputSet) Open(name string) (io.Writer, error) {
	if o.dir != "" && !filepath.IsAbs(name) {
		name = filepath.Join(o.dir, name)
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	o.files = append(o.files, f)
	return f, nil
}

// Close closes every opened file, returning the first failure.
func (o *outputSet) Close() error {
	var first error
	for _, f := range o.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	o.files = nil
	return first
}
