package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemUnmarshal(t *testing.T) {
	in := `{
		"id": "0123ABC",
		"name": "a.bin",
		"size": 42,
		"file": {"mimeType": "application/octet-stream"},
		"fileSystemInfo": {"lastModifiedDateTime": "2024-03-01T12:34:56Z"},
		"lastModifiedDateTime": "2024-03-02T00:00:00Z"
	}`
	var item Item
	require.NoError(t, json.Unmarshal([]byte(in), &item))
	assert.Equal(t, "0123ABC", item.ID)
	assert.Equal(t, int64(42), item.Size)
	assert.False(t, item.IsFolder())
	// the client reported file system time wins
	assert.Equal(t, time.Date(2024, 3, 1, 12, 34, 56, 0, time.UTC), item.GetLastModifiedDateTime())
}

func TestItemModTimeFallback(t *testing.T) {
	in := `{"id": "x", "name": "x", "lastModifiedDateTime": "2024-03-02T00:00:00Z"}`
	var item Item
	require.NoError(t, json.Unmarshal([]byte(in), &item))
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), item.GetLastModifiedDateTime())
}

func TestErrorUnmarshal(t *testing.T) {
	in := `{"error": {"code": "itemNotFound", "message": "The resource could not be found.", "innererror": {"code": "itemDeleted"}}}`
	var apiErr Error
	require.NoError(t, json.Unmarshal([]byte(in), &apiErr))
	assert.Equal(t, "itemNotFound", apiErr.ErrorInfo.Code)
	assert.Equal(t, "itemNotFound: itemDeleted: The resource could not be found.", apiErr.Error())
}

func TestUploadSessionUnmarshal(t *testing.T) {
	in := `{"uploadUrl": "https://sn3302.up.1drv.com/up/fe6987415ace7X4e1eF866337",
		"expirationDateTime": "2015-01-29T09:21:55.523Z",
		"nextExpectedRanges": ["12345-55232", "77829-99375"]}`
	var session UploadSession
	require.NoError(t, json.Unmarshal([]byte(in), &session))
	assert.Equal(t, "https://sn3302.up.1drv.com/up/fe6987415ace7X4e1eF866337", session.UploadURL)
	assert.Equal(t, []string{"12345-55232", "77829-99375"}, session.NextExpectedRanges)

	// the completed item JSON of the final fragment still parses
	var final UploadSession
	require.NoError(t, json.Unmarshal([]byte(`{"id":"X","name":"big.bin","size":128}`), &final))
	assert.Empty(t, final.UploadURL)
}

func TestCreateUploadRequestBody(t *testing.T) {
	body, err := json.Marshal(CreateUploadRequest{})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(body))
}
