package catalog

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultMaxFileSize is the per-file size cap applied by Load. Migration
// files are DDL scripts; anything larger than this is almost certainly a
// data load that does not belong in a migration directory.
const DefaultMaxFileSize = 4 << 20

const (
	// Versioned migrations carry a numeric ordinal and are applied exactly
	// once, in ascending version order.
	Versioned Kind = "versioned"

	// Repeatable migrations carry a name instead of a version and are
	// re-applied whenever their checksum changes, after all pending
	// versioned migrations.
	Repeatable Kind = "repeatable"
)

var (
	versionedPattern  = regexp.MustCompile(`^(\d{4,})_([a-z0-9_]+)\.sql$`)
	repeatablePattern = regexp.MustCompile(`^R__([a-z0-9_]+)\.sql$`)
)

type (
	// Kind categorizes a migration as versioned or repeatable.
	Kind string

	// Migration is a single migration file, immutable once loaded.
	Migration struct {
		// Kind is Versioned or Repeatable.
		Kind Kind

		// Version is the numeric ordinal parsed from the filename.
		// Zero for repeatable migrations.
		Version int

		// Name is the snake_case description parsed from the filename.
		Name string

		// Identity is the stable ledger identity: the zero-padded ordinal
		// exactly as it appears in the filename for versioned migrations
		// (e.g. "0001"), or "R__<name>" for repeatable ones.
		Identity string

		// Checksum is the content hash in h1 format. See Checksum for the
		// normalization contract.
		Checksum string

		// Statements holds the individual SQL statements of the migration
		// body, in file order, with comments-only fragments removed.
		Statements []string
	}

	// Catalog is the parsed contents of a migration directory. Versioned
	// migrations come first in ascending version order, followed by
	// repeatable migrations in ascending name order.
	Catalog struct {
		Migrations []*Migration
	}

	// Error is the failure type for catalog loading: unreadable paths,
	// filenames outside the grammar, oversize files, duplicate versions,
	// and unparseable statement bodies all surface as *Error.
	Error struct {
		Path string
		Err  error
	}
)

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("catalog: %v", e.Err)
	}
	return fmt.Sprintf("catalog: %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Filename returns the canonical filename for the migration.
func (m *Migration) Filename() string {
	if m.Kind == Repeatable {
		return fmt.Sprintf("R__%s.sql", m.Name)
	}
	return fmt.Sprintf("%s_%s.sql", m.Identity, m.Name)
}

// Versioned returns the versioned migrations in ascending version order.
func (c *Catalog) Versioned() []*Migration {
	return c.filter(Versioned)
}

// Repeatable returns the repeatable migrations in ascending name order.
func (c *Catalog) Repeatable() []*Migration {
	return c.filter(Repeatable)
}

// Gaps returns version numbers absent from the sequence between the lowest
// and highest versioned migration. Gaps are legal (a migration may have been
// abandoned before merge) but usually worth a second look.
func (c *Catalog) Gaps() []int {
	versioned := c.Versioned()
	if len(versioned) < 2 {
		return nil
	}

	have := make(map[int]bool, len(versioned))
	for _, m := range versioned {
		have[m.Version] = true
	}

	var gaps []int
	for v := versioned[0].Version; v < versioned[len(versioned)-1].Version; v++ {
		if !have[v] {
			gaps = append(gaps, v)
		}
	}
	return gaps
}

func (c *Catalog) filter(kind Kind) []*Migration {
	out := make([]*Migration, 0, len(c.Migrations))
	for _, m := range c.Migrations {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

// Load parses all migration files from the provided filesystem using
// DefaultMaxFileSize as the per-file size cap.
//
// The filesystem can be a regular directory, an embedded filesystem, or any
// other fs.FS implementation:
//
//	cat, err := catalog.Load(os.DirFS("./migrations"))
//	if err != nil {
//		return err
//	}
//	for _, m := range cat.Migrations {
//		fmt.Printf("%s (%d statements)\n", m.Filename(), len(m.Statements))
//	}
func Load(fsys fs.FS) (*Catalog, error) {
	return LoadWithLimit(fsys, DefaultMaxFileSize)
}

// LoadWithLimit is Load with an explicit per-file size cap in bytes.
//
// Parsing is pure and deterministic. Every .sql file directly under the root
// must match the filename grammar; duplicate versions and duplicate
// repeatable names are rejected. Subdirectories and non-.sql files are
// ignored.
func LoadWithLimit(fsys fs.FS, maxFileSize int64) (*Catalog, error) {
	cat := &Catalog{}
	seenVersions := make(map[int]string)
	seenNames := make(map[string]string)

	if err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return &Error{Path: path, Err: err}
		}

		if d.IsDir() {
			if path != "." {
				return fs.SkipDir
			}
			return nil
		}

		if filepath.Ext(path) != ".sql" {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return &Error{Path: path, Err: err}
		}
		if info.Size() > maxFileSize {
			return &Error{Path: path, Err: errors.Errorf("file is %d bytes, limit is %d", info.Size(), maxFileSize)}
		}

		m, err := parseFile(fsys, path)
		if err != nil {
			return err
		}

		switch m.Kind {
		case Versioned:
			if prev, ok := seenVersions[m.Version]; ok {
				return &Error{Path: path, Err: errors.Errorf("duplicate version %d (already used by %s)", m.Version, prev)}
			}
			seenVersions[m.Version] = path
		case Repeatable:
			if prev, ok := seenNames[m.Name]; ok {
				return &Error{Path: path, Err: errors.Errorf("duplicate repeatable name %q (already used by %s)", m.Name, prev)}
			}
			seenNames[m.Name] = path
		}

		cat.Migrations = append(cat.Migrations, m)
		return nil
	}); err != nil {
		return nil, err
	}

	// Versioned ascending by version, then repeatable ascending by name.
	// WalkDir order is lexical, which is not numeric across padding widths.
	sort.SliceStable(cat.Migrations, func(i, j int) bool {
		a, b := cat.Migrations[i], cat.Migrations[j]
		if a.Kind != b.Kind {
			return a.Kind == Versioned
		}
		if a.Kind == Versioned {
			return a.Version < b.Version
		}
		return a.Name < b.Name
	})

	return cat, nil
}

func parseFile(fsys fs.FS, path string) (*Migration, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, &Error{Path: path, Err: errors.Wrap(err, "failed to open")}
	}
	defer func() { _ = f.Close() }()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, &Error{Path: path, Err: errors.Wrap(err, "failed to read")}
	}

	m, err := parseFilename(filepath.Base(path))
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	stmts, err := SplitStatements(string(content))
	if err != nil {
		return nil, &Error{Path: path, Err: errors.Wrap(err, "failed to split statements")}
	}

	m.Checksum = Checksum(content)
	m.Statements = stmts
	return m, nil
}

func parseFilename(name string) (*Migration, error) {
	if groups := repeatablePattern.FindStringSubmatch(name); groups != nil {
		return &Migration{
			Kind:     Repeatable,
			Name:     groups[1],
			Identity: "R__" + groups[1],
		}, nil
	}

	if groups := versionedPattern.FindStringSubmatch(name); groups != nil {
		version, err := strconv.Atoi(groups[1])
		if err != nil {
			return nil, errors.Wrapf(err, "invalid version %q", groups[1])
		}

		return &Migration{
			Kind:     Versioned,
			Version:  version,
			Name:     groups[2],
			Identity: groups[1],
		}, nil
	}

	return nil, errors.Errorf("filename %q does not match NNNN_name.sql or R__name.sql", name)
}

// Checksum computes the h1 content hash of a migration file.
//
// The content is normalized before hashing so that cosmetic re-saves do not
// register as drift: a UTF-8 BOM is stripped, CRLF and lone CR line endings
// become LF, trailing whitespace is removed from each line, and trailing
// blank lines are dropped. This normalization is a fixed contract: changing
// it would reclassify every previously recorded migration. Comment edits are
// content changes and do alter the checksum.
func Checksum(content []byte) string {
	sum := sha256.Sum256(normalize(content))
	return "h1:" + base64.StdEncoding.EncodeToString(sum[:])
}

func normalize(content []byte) []byte {
	s := strings.TrimPrefix(string(content), "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	if len(lines) == 0 {
		return nil
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}
