// Package basestore manages the on-disk directory of candidate bases: the
// read-only lower layers that back overlay mounts. It mirrors the
// directory-per-identity CRUD shape of a local volume driver, generalized
// to cover validity (age-based expiration) and promotion (renaming a
// scratch directory into the bases root and stamping it with a marker).
package basestore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/baseoverlay-csi/pkg/clock"
	"github.com/cuemby/baseoverlay-csi/pkg/log"
)

// MarkerFileName is the fixed name of the base marker file, both inside a
// promoted base (where it records the promotion time) and inside a scratch
// directory (where its mere presence declares promotion eligibility).
const MarkerFileName = ".as_base"

// Base identifies a directory under the bases root. Its identity is the
// directory name, chosen equal to the volume ID that promoted it.
type Base struct {
	ID   string
	Path string
}

// Store is the on-disk directory of candidate bases.
type Store struct {
	root   string
	maxAge time.Duration
	clock  clock.Clock
}

// New creates a Store rooted at root. maxAge is the maximum age (exclusive)
// a base's marker timestamp may have before it is considered invalid.
func New(root string, maxAge time.Duration, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	return &Store{root: root, maxAge: maxAge, clock: clk}
}

// Root returns the bases root directory.
func (s *Store) Root() string {
	return s.root
}

func markerPath(dir string) string {
	return filepath.Join(dir, MarkerFileName)
}

// HasMarker reports whether dir contains a base marker file, regardless of
// its contents. Used to decide whether a scratch directory declared itself
// eligible for promotion.
func HasMarker(dir string) bool {
	_, err := os.Stat(markerPath(dir))
	return err == nil
}

// WriteMarker stamps dir with a marker file recording t as an RFC-3339 UTC
// timestamp.
func WriteMarker(dir string, t time.Time) error {
	contents := t.UTC().Format(time.RFC3339)
	if err := os.WriteFile(markerPath(dir), []byte(contents), 0o644); err != nil {
		return fmt.Errorf("failed to write base marker: %w", err)
	}
	return nil
}

func readMarkerTime(dir string) (time.Time, error) {
	data, err := os.ReadFile(markerPath(dir))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read base marker: %w", err)
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(string(data)))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse base marker: %w", err)
	}
	return t, nil
}

// Valid reports whether base's marker exists, parses, and yields a
// non-negative age strictly less than the store's maximum age. A
// future-dated timestamp is logged and treated as invalid; it never panics
// or returns an error.
func (s *Store) Valid(b Base) bool {
	t, err := readMarkerTime(b.Path)
	if err != nil {
		return false
	}

	age := s.clock.Now().Sub(t)
	if age < 0 {
		log.WithComponent("basestore").Warn().Str("base", b.ID).Msg("base marker timestamp is in the future")
		return false
	}
	return age < s.maxAge
}

// Enumerate lists every directory under the bases root. Individual entries
// that error on stat (transient races with concurrent promotion/deletion)
// are skipped rather than failing the whole enumeration.
func (s *Store) Enumerate() ([]Base, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate bases root %s: %w", s.root, err)
	}

	bases := make([]Base, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.IsDir() {
			continue
		}
		bases = append(bases, Base{ID: e.Name(), Path: filepath.Join(s.root, e.Name())})
	}
	return bases, nil
}

// FindValidBase returns the first valid base encountered during
// enumeration, which lists bases sorted by directory name. Callers must
// not depend on which base is returned when more than one is valid.
func (s *Store) FindValidBase() (Base, bool, error) {
	bases, err := s.Enumerate()
	if err != nil {
		return Base{}, false, err
	}
	for _, b := range bases {
		if s.Valid(b) {
			return b, true, nil
		}
	}
	return Base{}, false, nil
}

// Promote renames source (which must reside on the same device as the
// bases root) into root/identity and stamps it with a fresh marker. The
// rename and the marker write are not atomic with each other; callers that
// also run a reaper must hold a lock across both steps so a reap pass never
// observes the directory mid-promotion (see the lifecycle package).
func (s *Store) Promote(source, identity string, now time.Time) (Base, error) {
	target := filepath.Join(s.root, identity)
	if err := os.Rename(source, target); err != nil {
		return Base{}, fmt.Errorf("failed to promote %s into base %s: %w", source, identity, err)
	}
	if err := WriteMarker(target, now); err != nil {
		return Base{}, err
	}
	return Base{ID: identity, Path: target}, nil
}

// Delete recursively removes a base's directory. Callers must first verify,
// under the coordinator lock, that the base is unreferenced.
func (s *Store) Delete(b Base) error {
	if err := os.RemoveAll(b.Path); err != nil {
		return fmt.Errorf("failed to delete base %s: %w", b.ID, err)
	}
	return nil
}
