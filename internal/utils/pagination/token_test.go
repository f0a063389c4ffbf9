package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeToken(t *testing.T) {
	ts := time.Date(2023, 5, 15, 14, 30, 45, 123456789, time.UTC)

	token := EncodeToken(ts, 42)
	assert.NotEmpty(t, token, "Token should not be empty")

	decodedTS, decodedID, err := DecodeToken(token)
	assert.NoError(t, err, "Decoding should not return an error")
	assert.Equal(t, ts, decodedTS, "Timestamp should match after decode")
	assert.Equal(t, int64(42), decodedID, "ID should match after decode")

	now := time.Now().UTC()
	decodedNow, _, err := DecodeToken(EncodeToken(now, 1))
	assert.NoError(t, err)
	assert.True(t, now.Equal(decodedNow), "Current time should match after decode")
}

func TestDecodeTokenError(t *testing.T) {
	_, _, err := DecodeToken("this is not base64!")
	assert.Error(t, err, "Should return an error for invalid base64")
	assert.Contains(t, err.Error(), "base64 decode")

	noSeparator := base64.StdEncoding.EncodeToString([]byte("2023-05-15T00:00:00Z"))
	_, _, err = DecodeToken(noSeparator)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "split")

	badTime := base64.StdEncoding.EncodeToString([]byte("notadate|12"))
	_, _, err = DecodeToken(badTime)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "timestamp parse")

	badID := base64.StdEncoding.EncodeToString([]byte("2023-05-15T00:00:00Z|abc"))
	_, _, err = DecodeToken(badID)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "id parse")
}
