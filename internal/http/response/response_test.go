package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRespondErrorEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	AbortError(c, http.StatusUnauthorized, "unauthorized", errors.New("token is missing"))

	if !c.IsAborted() {
		t.Fatalf("expected context to be aborted")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: got=%d want=%d", rec.Code, http.StatusUnauthorized)
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Message != "token is missing" || env.Error.Code != "unauthorized" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestRespondErrorNilError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	RespondError(c, http.StatusInternalServerError, "internal", nil)

	var env ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Message != "unknown error" {
		t.Fatalf("message: got=%q", env.Error.Message)
	}
}
