package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/hexmeshworkshop/dds/internal/provenance"
)

// Filter selects indexed entries. Zero fields match everything.
type Filter struct {
	Algorithm  string
	Kind       string
	FolderType string
	// Folder restricts to a folder and its descendants.
	Folder     string
	FailedOnly bool
	Since      time.Time
}

// Row is one indexed entry.
type Row struct {
	Folder     string
	Key        string
	FolderType string
	Kind       string
	Algorithm  string
	Command    string
	ReturnCode *int
	Duration   *float64
	Hash       string
	Entry      provenance.Entry
}

// Query returns the matching entries ordered by key, then folder.
func (x *Index) Query(ctx context.Context, f Filter) ([]Row, error) {
	var (
		where []string
		args  []any
	)
	if f.Algorithm != "" {
		where = append(where, "algorithm = ?")
		args = append(args, f.Algorithm)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.FolderType != "" {
		where = append(where, "folder_type = ?")
		args = append(args, f.FolderType)
	}
	if f.Folder != "" {
		folder := strings.TrimSuffix(f.Folder, "/")
		where = append(where, "(folder = ? OR substr(folder, 1, ?) = ?)")
		args = append(args, folder, len(folder)+1, folder+"/")
	}
	if f.FailedOnly {
		where = append(where, "return_code != 0")
	}
	if !f.Since.IsZero() {
		where = append(where, "key >= ?")
		args = append(args, provenance.Key(f.Since))
	}

	q := `SELECT folder, key, folder_type, kind, algorithm, command, return_code, duration, hash, entry FROM entries`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY key ASC, folder COLLATE BINARY ASC"

	rows, err := x.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, Error.New("query entries: %v", err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, Error.New("iterate entries: %v", err)
	}
	return out, nil
}

func scanRow(rows *sql.Rows) (Row, error) {
	var (
		r     Row
		rc    sql.NullInt64
		dur   sql.NullFloat64
		entry string
	)
	if err := rows.Scan(&r.Folder, &r.Key, &r.FolderType, &r.Kind, &r.Algorithm, &r.Command, &rc, &dur, &r.Hash, &entry); err != nil {
		return Row{}, Error.New("scan entry: %v", err)
	}
	if rc.Valid {
		v := int(rc.Int64)
		r.ReturnCode = &v
	}
	if dur.Valid {
		v := dur.Float64
		r.Duration = &v
	}
	if err := json.Unmarshal([]byte(entry), &r.Entry); err != nil {
		return Row{}, Error.New("decode entry %s %s: %v", r.Folder, r.Key, err)
	}
	return r, nil
}

// Count returns the number of indexed entries.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n)
	return n, Error.Wrap(err)
}
