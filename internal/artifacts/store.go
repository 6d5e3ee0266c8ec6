package artifacts

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"zepdf/internal/formats"
	"zepdf/internal/services"
)

// Artifact is a named byte blob with a format tag, owned by exactly one
// scope. References become invalid when the owning scope closes; Promote is
// the only way to extend a lifetime across scope boundaries.
type Artifact struct {
	Name   string
	Format formats.Format
	Size   int64

	path  string
	owner *Scope
}

// Path returns the on-disk location of the artifact. Valid only while the
// owning scope is open.
func (a *Artifact) Path() string {
	return a.path
}

// Open returns a reader over the artifact bytes.
func (a *Artifact) Open() (io.ReadCloser, error) {
	if err := a.owner.ensureOpen(); err != nil {
		return nil, err
	}
	file, err := os.Open(a.path)
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "", "open artifact", a.Name, err)
	}
	return file, nil
}

// Scope is a lifetime boundary for temporary artifacts. Everything acquired
// within it lives under one directory that Close removes on every exit path.
type Scope struct {
	id  string
	dir string

	mu     sync.Mutex
	closed bool
	seq    int
}

// NewScope creates a fresh scope directory under root.
func NewScope(root string) (*Scope, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, services.Wrap(services.ErrResource, "", "scope", "create scope root", err)
	}
	id := uuid.NewString()
	dir := filepath.Join(root, "scope-"+id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrResource, "", "scope", "create scope directory", err)
	}
	return &Scope{id: id, dir: dir}, nil
}

// ID returns the scope's unique identifier, used for request correlation.
func (s *Scope) ID() string {
	return s.id
}

// Dir returns the scope's root directory.
func (s *Scope) Dir() string {
	return s.dir
}

// WorkDir creates (or returns) a named subdirectory inside the scope for a
// stage's working files.
func (s *Scope) WorkDir(label string) (string, error) {
	if err := s.ensureOpen(); err != nil {
		return "", err
	}
	dir := filepath.Join(s.dir, label)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrResource, "", "scope", "create work directory", err)
	}
	return dir, nil
}

// Put streams r into a new artifact owned by the scope.
func (s *Scope) Put(r io.Reader, name string, format formats.Format) (*Artifact, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	path := filepath.Join(s.dir, fmt.Sprintf("%03d-%s", seq, sanitizeName(name, format)))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "", "put artifact", name, err)
	}
	size, err := io.Copy(file, r)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, services.Wrap(services.ErrResource, "", "put artifact", name, err)
	}
	return &Artifact{Name: name, Format: format, Size: size, path: path, owner: s}, nil
}

// Adopt registers an existing file inside the scope directory as an artifact
// without copying it. Used for stage outputs written directly into a scope
// work directory.
func (s *Scope) Adopt(path, name string, format formats.Format) (*Artifact, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(s.dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, services.Wrap(services.ErrResource, "", "adopt artifact", "path outside scope", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "", "adopt artifact", name, err)
	}
	return &Artifact{Name: name, Format: format, Size: info.Size(), path: path, owner: s}, nil
}

// Materialize copies the artifact into dir under name and returns the new
// path. Callers pass a reserved name so client-supplied artifact names never
// reach engine working directories; an empty name falls back to the
// artifact's own sanitized name. The caller may pass a directory from
// another scope; ownership of the copy follows that directory's scope.
func (s *Scope) Materialize(a *Artifact, dir, name string) (string, error) {
	if err := a.owner.ensureOpen(); err != nil {
		return "", err
	}
	if name == "" {
		name = sanitizeName(a.Name, a.Format)
	}
	dest := filepath.Join(dir, name)
	if err := copyFile(a.path, dest); err != nil {
		return "", services.Wrap(services.ErrResource, "", "materialize artifact", a.Name, err)
	}
	return dest, nil
}

// Promote moves the artifact into dest, transferring ownership so it
// survives this scope's teardown.
func (s *Scope) Promote(a *Artifact, dest *Scope) (*Artifact, error) {
	if err := a.owner.ensureOpen(); err != nil {
		return nil, err
	}
	if err := dest.ensureOpen(); err != nil {
		return nil, err
	}
	dest.mu.Lock()
	dest.seq++
	seq := dest.seq
	dest.mu.Unlock()

	target := filepath.Join(dest.dir, fmt.Sprintf("%03d-%s", seq, sanitizeName(a.Name, a.Format)))
	if err := os.Rename(a.path, target); err != nil {
		// Cross-device scope roots fall back to a copy.
		if err := copyFile(a.path, target); err != nil {
			return nil, services.Wrap(services.ErrResource, "", "promote artifact", a.Name, err)
		}
		_ = os.Remove(a.path)
	}
	return &Artifact{Name: a.Name, Format: a.Format, Size: a.Size, path: target, owner: dest}, nil
}

// Discard deletes an intermediate artifact's bytes early, before the scope
// closes. Peak disk usage stays bounded to the artifacts still in flight.
func (s *Scope) Discard(a *Artifact) error {
	if a == nil || a.owner != s {
		return nil
	}
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return os.Remove(a.path)
}

// Close tears the scope down, removing every artifact it still owns.
// Idempotent; success, failure, and cancellation paths all converge here.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return os.RemoveAll(s.dir)
}

func (s *Scope) ensureOpen() error {
	if s == nil {
		return services.Wrap(services.ErrResource, "", "scope", "nil scope", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return services.Wrap(services.ErrResource, "", "scope", "scope already closed", nil)
	}
	return nil
}

func sanitizeName(name string, format formats.Format) string {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "artifact"
	}
	if filepath.Ext(base) == "" {
		base += "." + format.Ext()
	}
	return base
}
