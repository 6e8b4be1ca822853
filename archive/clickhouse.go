package archive

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/fatih/structs"
)

// ClickHouseOptions configure a ClickHouse archive.
type ClickHouseOptions struct {
	Addr      []string
	Database  string
	Username  string
	Password  string
	BatchSize int
}

// ClickHouseOpener returns an Opener that stores archives in ClickHouse.
// Each archive gets its own set of tables, prefixed with the archive name.
// The local directory is still used for auxiliary files.
func ClickHouseOpener(opts ClickHouseOptions) Opener {
	return func(dir, name string) (Archive, error) {
		conn, err := clickhouse.Open(&clickhouse.Options{
			Addr: opts.Addr,
			Auth: clickhouse.Auth{
				Database: opts.Database,
				Username: opts.Username,
				Password: opts.Password,
			},
			Settings: clickhouse.Settings{
				"max_execution_time": 60,
			},
			DialTimeout:      time.Second * 30,
			MaxOpenConns:     5,
			MaxIdleConns:     5,
			ConnMaxLifetime:  time.Hour,
			ConnOpenStrategy: clickhouse.ConnOpenInOrder,
			BlockBufferSize:  10,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}

		if err := conn.Ping(context.Background()); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
		}

		b := &clickhouseBackend{
			conn:   conn,
			prefix: DatabaseName(name) + "_",
		}

		return newStore(dir, name, b, opts.BatchSize)
	}
}

type clickhouseBackend struct {
	conn   clickhouse.Conn
	prefix string
}

func clickhouseColumnType(k reflect.Kind) string {
	switch k {
	case reflect.Uint8:
		return "UInt8"
	case reflect.Uint32:
		return "UInt32"
	case reflect.Uint64:
		return "UInt64"
	case reflect.Int32:
		return "Int32"
	case reflect.Int64:
		return "Int64"
	default:
		return "String"
	}
}

func (b *clickhouseBackend) createTable(name string, sample any) error {
	columns := make([]string, 0)
	for _, f := range structs.Fields(sample) {
		columns = append(columns,
			f.Name()+" "+clickhouseColumnType(f.Kind()))
	}

	createSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			%s
		) ENGINE = MergeTree()
		ORDER BY tuple()
	`, b.prefix+name, strings.Join(columns, ",\n\t\t\t"))

	return b.conn.Exec(context.Background(), createSQL)
}

func (b *clickhouseBackend) insert(name string, rows []any) error {
	ctx := context.Background()

	batch, err := b.conn.PrepareBatch(ctx, "INSERT INTO "+b.prefix+name)
	if err != nil {
		return err
	}

	for _, row := range rows {
		if err := batch.Append(structs.Values(row)...); err != nil {
			_ = batch.Abort()
			return err
		}
	}

	return batch.Send()
}

func (b *clickhouseBackend) close() error {
	return b.conn.Close()
}
