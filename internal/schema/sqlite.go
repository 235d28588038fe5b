package schema

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/phobologic/repotrim/internal/model"
)

// readOnlyDSN opens path without write access so that closing the
// connection never checkpoints a WAL or touches the file.
func readOnlyDSN(path string) string {
	path = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23").Replace(filepath.ToSlash(path))
	return "file:" + path + "?mode=ro&_pragma=query_only(1)"
}

func databaseSchema(path string) (*model.DatabaseSchema, error) {
	db, err := sql.Open("sqlite", readOnlyDSN(path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ds := &model.DatabaseSchema{}
	for _, name := range names {
		t, err := describeTable(db, name)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", name, err)
		}
		ds.Tables = append(ds.Tables, t)
	}
	return ds, nil
}

func describeTable(db *sql.DB, name string) (model.Table, error) {
	t := model.Table{Name: name}
	quoted := quoteIdent(name)

	rows, err := db.Query("PRAGMA table_info(" + quoted + ")")
	if err != nil {
		return t, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			colName   string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &dfltValue, &pk); err != nil {
			return t, err
		}
		t.Columns = append(t.Columns, model.Column{Name: colName, Type: colType, PK: pk > 0})
	}
	if err := rows.Err(); err != nil {
		return t, err
	}

	if err := db.QueryRow("SELECT COUNT(*) FROM " + quoted).Scan(&t.RowCount); err != nil {
		return t, err
	}
	return t, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
