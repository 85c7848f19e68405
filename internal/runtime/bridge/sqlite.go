package bridge

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	_ "github.com/mattn/go-sqlite3"

	"github.com/GriffinCanCode/probehost/internal/shared/paths"
)

// Store is the sqlite capability.
type Store interface {
	Query(ctx context.Context, path, statement string) (string, error)
	Exec(ctx context.Context, path, statement string) error
}

// SQLite opens the target database per call. Handles are never kept across
// calls since the files usually belong to other applications.
type SQLite struct {
	baseDir     string
	busyTimeout time.Duration
	inv         invoker
}

var _ Store = (*SQLite)(nil)

// Query runs a read-only statement and returns the rows as a JSON array
// of objects keyed by column name.
func (s *SQLite) Query(ctx context.Context, path, statement string) (string, error) {
	if err := checkStatement(statement); err != nil {
		return "", capErr("sqlite", "query", err)
	}
	v, err := s.inv.do(ctx, "sqlite", "query", func(ctx context.Context) (interface{}, error) {
		db, err := s.open(ctx, path, "ro")
		if err != nil {
			return "", err
		}
		defer db.Close()

		rows, err := db.QueryContext(ctx, statement)
		if err != nil {
			return "", err
		}
		defer rows.Close()

		records, err := scanRows(rows)
		if err != nil {
			return "", err
		}
		data, err := sonic.Marshal(records)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Exec runs a write statement literally. It never creates the database.
func (s *SQLite) Exec(ctx context.Context, path, statement string) error {
	if err := checkStatement(statement); err != nil {
		return capErr("sqlite", "exec", err)
	}
	_, err := s.inv.do(ctx, "sqlite", "exec", func(ctx context.Context) (interface{}, error) {
		db, err := s.open(ctx, path, "rw")
		if err != nil {
			return nil, err
		}
		defer db.Close()

		_, err = db.ExecContext(ctx, statement)
		return nil, err
	})
	return err
}

func (s *SQLite) open(ctx context.Context, path, mode string) (*sql.DB, error) {
	target, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?mode=%s&_busy_timeout=%d", escapeURIPath(target), mode, s.busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// resolve accepts any existing regular file. Relative paths are taken from
// the plugin data directory.
func (s *SQLite) resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", invalid("path is empty")
	}
	if strings.ContainsRune(path, 0) {
		return "", invalid("path contains NUL")
	}
	target, err := paths.ExpandHome(path)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(s.baseDir, target)
	}
	target = filepath.Clean(target)

	info, err := os.Stat(target)
	if err != nil {
		return "", fmt.Errorf("database %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", invalid("database %s is not a regular file", path)
	}
	return target, nil
}

func escapeURIPath(path string) string {
	return strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23").Replace(filepath.ToSlash(path))
}

func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	records := []map[string]interface{}{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		record := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			record[col] = jsonValue(values[i])
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// jsonValue maps sqlite values onto JSON. Text stored as BLOB comes back
// as a string; binary blobs are base64.
func jsonValue(v interface{}) interface{} {
	switch t := v.(type) {
	case []byte:
		if utf8.Valid(t) {
			return string(t)
		}
		return base64.StdEncoding.EncodeToString(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return t
	}
}
