package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestResponses(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("success with meta", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		SendSuccessWithMeta(c, http.StatusOK, []int{1}, gin.H{"total": 1})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"data":[1],"meta":{"total":1}}`, w.Body.String())
	})

	t.Run("error aborts the chain", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		SendServiceUnavailable(c, "product service unavailable")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.True(t, c.IsAborted())
		assert.JSONEq(t, `{"error":{"message":"product service unavailable"}}`, w.Body.String())
	})
}
