package recording

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/junsooki/airmac-recorder/internal/encoder"
)

// Store writes finished recordings into a directory.
type Store struct {
	fs  afero.Fs
	dir string
	now func() time.Time
}

// NewStore creates a Store rooted at dir on fs. A nil fs means the OS
// filesystem.
func NewStore(fs afero.Fs, dir string) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{fs: fs, dir: dir, now: time.Now}
}

// Dir returns the output directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes a under a name derived from the current time and id and
// returns the file path.
func (s *Store) Save(id string, a *encoder.Artifact) (string, error) {
	if a == nil || len(a.Data) == 0 {
		return "", errors.New("empty artifact")
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create recording dir %s", s.dir)
	}

	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	name := fmt.Sprintf("airmac-%s-%s%s", s.now().UTC().Format("20060102-150405"), short, extensionFor(a.ContentType))
	path := filepath.Join(s.dir, name)

	if err := afero.WriteFile(s.fs, path, a.Data, os.FileMode(0o644)); err != nil {
		return "", errors.Wrapf(err, "write recording %s", path)
	}
	return path, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/gif":
		return ".gif"
	case "image/jpeg":
		return ".jpg"
	default:
		return ".bin"
	}
}
