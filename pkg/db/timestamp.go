package db

import (
	"database/sql/driver"
	"time"

	"github.com/pkg/errors"
)

// sqliteTimeFormats are the layouts SQLite and the driver produce for DATETIME values
var sqliteTimeFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02",
}

// Timestamp scans SQLite DATETIME values. The driver returns time.Time for
// declared DATETIME columns but plain text for computed ones such as MAX().
// Values without a zone are UTC, as written by CURRENT_TIMESTAMP.
type Timestamp struct {
	time.Time
}

// Scan implements the sql.Scanner interface
func (t *Timestamp) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return errors.Errorf("cannot scan %T into Timestamp", value)
	}
}

func (t *Timestamp) parse(s string) error {
	for _, layout := range sqliteTimeFormats {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return errors.Errorf("unrecognized timestamp %q", s)
}

// Value implements the driver.Valuer interface
func (t Timestamp) Value() (driver.Value, error) {
	return t.UTC().Format("2006-01-02 15:04:05"), nil
}
