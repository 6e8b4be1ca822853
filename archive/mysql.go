package archive

import (
	"database/sql"
	"fmt"
	"reflect"

	// Need to use MySQL connections.
	_ "github.com/go-sql-driver/mysql"
)

// MySQLOptions configure a MySQL archive.
type MySQLOptions struct {
	Username string
	Password string
	Address  string
	Port     int
}

// MySQLOpener returns an Opener that creates one MySQL database per
// archive, named after the archive.
func MySQLOpener(opts MySQLOptions) Opener {
	return func(dir, name string) (Archive, error) {
		if opts.Address == "" {
			opts.Address = "127.0.0.1"
		}

		if opts.Port == 0 {
			opts.Port = 3306
		}

		server := fmt.Sprintf("%s:%s@tcp(%s:%d)/",
			opts.Username, opts.Password, opts.Address, opts.Port)

		dbName := DatabaseName(name)

		admin, err := sql.Open("mysql", server)
		if err != nil {
			return nil, err
		}

		_, err = admin.Exec("CREATE DATABASE " + dbName)
		_ = admin.Close()

		if err != nil {
			return nil, fmt.Errorf("create database %s: %w", dbName, err)
		}

		db, err := sql.Open("mysql", server+dbName)
		if err != nil {
			return nil, err
		}

		return newStore(dir, name, &sqlBackend{DB: db, columnType: mysqlColumnType},
			defaultBatchSize)
	}
}

func mysqlColumnType(k reflect.Kind) string {
	switch k {
	case reflect.Uint8:
		return "TINYINT UNSIGNED"
	case reflect.Uint32:
		return "INT UNSIGNED"
	case reflect.Uint64:
		return "BIGINT UNSIGNED"
	case reflect.Int32:
		return "INT"
	case reflect.Int64:
		return "BIGINT"
	case reflect.Slice:
		return "BLOB"
	default:
		return "TEXT"
	}
}
