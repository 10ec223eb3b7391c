package sqlutil

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/sqlc-dev/pqtype"
	"github.com/stretchr/testify/assert"
)

func TestFromSqlTime(t *testing.T) {
	assert.Nil(t, FromSqlTime(sql.NullTime{}))

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	got := FromSqlTime(sql.NullTime{Time: now, Valid: true})
	if assert.NotNil(t, got) {
		assert.Equal(t, now, *got)
	}
}

func TestFromNullRawMessage(t *testing.T) {
	assert.Nil(t, FromNullRawMessage(pqtype.NullRawMessage{}))

	raw := json.RawMessage(`{"user_id":"ann"}`)
	assert.Equal(t, raw, FromNullRawMessage(pqtype.NullRawMessage{RawMessage: raw, Valid: true}))
}
