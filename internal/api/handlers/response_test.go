package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestGetClientIP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		headers map[string]string
		want    string
	}{
		{map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.2"}, "203.0.113.7"},
		{map[string]string{"X-Real-IP": " 198.51.100.4 "}, "198.51.100.4"},
		{nil, "192.0.2.1"},
	}
	for i, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodPost, "/webhooks/bry", nil)
		for k, v := range tc.headers {
			c.Request.Header.Set(k, v)
		}
		if got := GetClientIP(c); got != tc.want {
			t.Fatalf("case %d: expected %s, got %s", i, tc.want, got)
		}
	}
}
