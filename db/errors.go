package db

import (
	"strings"

	"github.com/teranos/tabula/errors"
)

// ErrDatabaseClosed is returned when the ledger is used after shutdown.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed reports whether err means the connection is gone, either
// ErrDatabaseClosed or the driver's own message.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}
