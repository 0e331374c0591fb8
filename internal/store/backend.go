package store

import (
	"context"
	"fmt"
	"strings"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DetectDriver picks a driver from the URL scheme when none is configured.
func DetectDriver(driver, url string) string {
	if driver != "" {
		return strings.ToLower(driver)
	}
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// OpenBackend opens the table store named by driver.
func OpenBackend(ctx context.Context, driver, url, key string) (Backend, error) {
	var (
		backend Backend
		err     error
	)
	switch DetectDriver(driver, url) {
	case DriverSQLite:
		backend, err = NewSQLiteStore(url)
	case DriverPostgres:
		backend, err = NewPostgresStore(ctx, url, key)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	return backend, nil
}
