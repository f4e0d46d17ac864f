// -----------------------------------------------------------------------
// Helpers - Null and time conversions shared by the entity stores
// -----------------------------------------------------------------------

package sqlite

import (
	"database/sql"
	"time"
)

// unixToTime converts Unix timestamp to UTC time.Time
func unixToTime(unix int64) time.Time {
	return time.Unix(unix, 0).UTC()
}

func nullableTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Valid: true, Int64: t.Unix()}
}

func timeFromNull(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := unixToTime(n.Int64)
	return &t
}

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{Valid: true, String: *s}
}

func stringFromNull(n sql.NullString) *string {
	if !n.Valid || n.String == "" {
		return nil
	}
	s := n.String
	return &s
}

func nullableInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Valid: true, Int64: int64(*i)}
}

func intFromNull(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	i := int(n.Int64)
	return &i
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
