package archive

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/fatih/structs"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteFileName is the database file inside an archive directory.
const SQLiteFileName = "trace.sqlite3"

// OpenSQLite creates a SQLite archive in dir. It fails if the directory
// already holds one.
func OpenSQLite(dir, name string) (Archive, error) {
	filename := filepath.Join(dir, SQLiteFileName)

	if _, err := os.Stat(filename); err == nil {
		return nil, fmt.Errorf("file %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}

	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}

	return newStore(dir, name, &sqlBackend{DB: db}, defaultBatchSize)
}

// sqlBackend stores rows through database/sql. Without columnType the
// columns are left untyped, which SQLite accepts.
type sqlBackend struct {
	*sql.DB

	columnType func(reflect.Kind) string
}

func (b *sqlBackend) createTable(name string, sample any) error {
	var fields []string

	for _, f := range structs.Fields(sample) {
		if b.columnType == nil {
			fields = append(fields, f.Name())
			continue
		}

		fields = append(fields, f.Name()+" "+b.columnType(f.Kind()))
	}

	createTableSQL := `CREATE TABLE ` + name +
		` (` + "\n\t" + strings.Join(fields, ", \n\t") + "\n" + `);`

	_, err := b.Exec(createTableSQL)

	return err
}

func (b *sqlBackend) insert(name string, rows []any) error {
	if len(rows) == 0 {
		return nil
	}

	n := structs.Names(rows[0])
	for i := range n {
		n[i] = "?"
	}

	sqlStr := "INSERT INTO " + name + " VALUES (" + strings.Join(n, ", ") + ")"

	tx, err := b.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(sqlStr)
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	for _, row := range rows {
		if _, err := stmt.Exec(structs.Values(row)...); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()

			return err
		}
	}

	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (b *sqlBackend) close() error {
	return b.DB.Close()
}
