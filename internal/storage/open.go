package storage

import "fmt"

// Open returns the KV backend named by driver.
//
//	memory   nothing persisted
//	file     dsn is a JSON file path
//	leveldb  dsn is a directory
//	sqlite   dsn is a file path or ":memory:"
//	mysql    dsn is a go-sql-driver DSN
func Open(driver, dsn string) (KV, error) {
	switch driver {
	case "memory":
		return NewMemoryKV(), nil
	case "file", "":
		return OpenFile(dsn)
	case "leveldb":
		return OpenLevel(dsn)
	case "sqlite":
		return OpenSQLite(dsn)
	case "mysql":
		return OpenMySQL(dsn)
	}
	return nil, fmt.Errorf("unknown storage driver %q", driver)
}
