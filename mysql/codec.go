package mysql

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	mysqldriver "github.com/go-sql-driver/mysql"
)

const (
	maxErrorLen         = 1024
	maxContentTypeLen   = 255
	errDuplicateEntry   = 1062
	maxStoredStatusCode = 999

	errWarnDataOutOfRange  = 1264
	errTruncatedWrongValue = 1292
	errDataTooLong         = 1406
)

// maxStoredTime is the upper bound of a DATETIME(6) column.
var maxStoredTime = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// encodeHeaders returns the JSON object for headers, or nil for SQL NULL.
func encodeHeaders(headers map[string]string) (any, error) {
	if headers == nil {
		return nil, nil
	}

	raw, err := json.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("netq mysql: encode headers failed: %w", err)
	}

	return raw, nil
}

// decodeHeaders reads a JSON object column. Rows written outside the store may
// hold non-string values, which are rendered as JSON text. Anything that is not
// an object decodes to no headers.
func decodeHeaders(raw []byte) map[string]string {
	if len(raw) == 0 {
		return nil
	}

	var strict map[string]string
	if err := json.Unmarshal(raw, &strict); err == nil {
		return strict
	}

	var loose map[string]json.RawMessage
	if err := json.Unmarshal(raw, &loose); err != nil {
		return nil
	}
	out := make(map[string]string, len(loose))
	for key, value := range loose {
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			out[key] = s

			continue
		}
		out[key] = string(value)
	}

	return out
}

// nullBytes maps an empty body to SQL NULL.
func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}

	return b
}

func nullString(s string) any {
	if s == "" {
		return nil
	}

	return s
}

func nullStatusCode(code int) any {
	if code <= 0 || code > maxStoredStatusCode {
		return nil
	}

	return code
}

func micros(d time.Duration) int64 {
	if d < 0 {
		return 0
	}

	return d.Microseconds()
}

func fromMicros(us int64) time.Duration {
	return time.Duration(us) * time.Microsecond
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysqldriver.MySQLError

	return errors.As(err, &mysqlErr) && mysqlErr.Number == errDuplicateEntry
}

// isDataError reports whether MySQL rejected a value because it does not fit its column.
func isDataError(err error) bool {
	var mysqlErr *mysqldriver.MySQLError
	if !errors.As(err, &mysqlErr) {
		return false
	}
	switch mysqlErr.Number {
	case errWarnDataOutOfRange, errTruncatedWrongValue, errDataTooLong:
		return true
	default:
		return false
	}
}

func truncateError(msg string) string {
	return truncateRunes(msg, maxErrorLen)
}

func truncateContentType(contentType string) string {
	return truncateRunes(contentType, maxContentTypeLen)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	return string([]rune(s)[:n])
}

func rollbackWith(tx *sql.Tx, err error) error {
	rollbackErr := tx.Rollback()
	if rollbackErr == nil || errors.Is(rollbackErr, sql.ErrTxDone) {
		return err
	}

	return errors.Join(err, fmt.Errorf("netq mysql: rollback failed: %w", rollbackErr))
}
