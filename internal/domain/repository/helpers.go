package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"colosseum/internal/domain/model"
)

func timeLimitSeconds(c *model.Contest) sql.NullInt64 {
	if c.TimeLimit == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(c.TimeLimit.Seconds()), Valid: true}
}

func secondsToDuration(s int64) time.Duration {
	return time.Duration(s) * time.Second
}

// nullJSON maps an empty raw message to SQL NULL so jsonb columns don't
// reject empty strings.
func nullJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
