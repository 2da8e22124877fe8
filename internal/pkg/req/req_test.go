package req

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcpchat/internal/pkg/errs"
)

type announcement struct {
	Message string `json:"message"`
}

func newRequest(contentType, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/announce", strings.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	return r
}

func TestBindJSON(t *testing.T) {
	var dst announcement
	err := BindJSON(httptest.NewRecorder(), newRequest("application/json; charset=utf-8", `{"message":"hi"}`), &dst)
	require.Nil(t, err)
	assert.Equal(t, "hi", dst.Message)
}

func TestBindJSONRejects(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		code        int
	}{
		{name: "wrong content type", contentType: "text/plain", body: `{"message":"hi"}`, code: errs.ErrUnsupportedMediaType},
		{name: "malformed", contentType: "application/json", body: `{"message":`, code: errs.ErrInvalidJSONFormat},
		{name: "unknown field", contentType: "application/json", body: `{"msg":"hi"}`, code: errs.ErrInvalidJSONFormat},
		{name: "trailing data", contentType: "application/json", body: `{"message":"hi"} {}`, code: errs.ErrExtraContentInBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst announcement
			err := BindJSON(httptest.NewRecorder(), newRequest(tt.contentType, tt.body), &dst)
			require.NotNil(t, err)
			assert.Equal(t, tt.code, err.Code)
		})
	}
}
