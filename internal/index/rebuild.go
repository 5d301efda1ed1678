package index

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/hexmeshworkshop/dds/internal/provenance"
)

// Inferrer infers the type of a folder. engine.Engine implements it.
type Inferrer interface {
	InferType(path string) (string, error)
}

// Kinds of indexed entries.
const (
	KindGenerative     = "generative"
	KindInteractive    = "interactive"
	KindTransformative = "transformative"
	KindRename         = "rename"
)

// KindOf classifies a provenance entry.
func KindOf(e provenance.Entry) string {
	switch {
	case e.IsRename():
		return KindRename
	case e.Marker == provenance.KeyInteractiveGenerative:
		return KindInteractive
	case e.Marker == provenance.KeyGenerative:
		return KindGenerative
	default:
		return KindTransformative
	}
}

// Skipped is a folder whose info.json could not be read.
type Skipped struct {
	Folder string
	Err    error
}

// Summary reports what a rebuild indexed.
type Summary struct {
	Folders int
	Entries int
	Skipped []Skipped
}

// Rebuild replaces the indexed entries with those of every info.json below
// root. Directories whose name starts with a dot are not visited. Folders
// with a malformed info.json are skipped and reported.
func (x *Index) Rebuild(ctx context.Context, root string, inferrer Inferrer, now time.Time) (Summary, error) {
	var sum Summary
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return sum, Error.Wrap(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return sum, Error.New("clear entries: %v", err)
	}
	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO entries
		(folder, key, folder_type, kind, algorithm, command, return_code, duration, entry, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return sum, Error.Wrap(err)
	}
	defer insert.Close()

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !provenance.Exists(path) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		l, err := provenance.Load(path)
		if err != nil {
			sum.Skipped = append(sum.Skipped, Skipped{Folder: rel, Err: err})
			return nil
		}
		typ, err := inferrer.InferType(path)
		if err != nil {
			typ = ""
		}
		for _, s := range l.Entries() {
			if err := insertEntry(ctx, insert, rel, typ, s); err != nil {
				return err
			}
			sum.Entries++
		}
		sum.Folders++
		return nil
	})
	if err != nil {
		return Summary{}, Error.Wrap(err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rebuilds (root, finished_at, folders, entries) VALUES (?, ?, ?, ?)
	`, root, provenance.Key(now), sum.Folders, sum.Entries)
	if err != nil {
		return Summary{}, Error.New("record rebuild: %v", err)
	}
	if err := tx.Commit(); err != nil {
		return Summary{}, Error.Wrap(err)
	}
	return sum, nil
}

func insertEntry(ctx context.Context, stmt *sql.Stmt, folder, typ string, s provenance.Stamped) error {
	canonical, err := provenance.CanonicalEntry(s.Entry)
	if err != nil {
		return err
	}
	var rc, dur any
	if s.Entry.ReturnCode != nil {
		rc = *s.Entry.ReturnCode
	}
	if s.Entry.Duration != nil {
		dur = s.Entry.Duration.Seconds
	}
	_, err = stmt.ExecContext(ctx,
		folder,
		s.Key,
		typ,
		KindOf(s.Entry),
		s.Entry.Algorithm,
		s.Entry.Command,
		rc,
		dur,
		string(canonical),
		hashWithDomain(domainEntry, canonical),
	)
	return err
}

// LastRebuild returns the finish time (a provenance key) of the latest
// rebuild, or "" when the index was never built.
func (x *Index) LastRebuild(ctx context.Context) (string, error) {
	var at string
	err := x.db.QueryRowContext(ctx, `SELECT finished_at FROM rebuilds ORDER BY id DESC LIMIT 1`).Scan(&at)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return at, Error.Wrap(err)
}
