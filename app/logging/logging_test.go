package logging

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"example/portfolio-api/app/config"

	"github.com/gin-gonic/gin"
)

func TestNewWithWriterJSONLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(config.LogConfig{Style: "json", Level: "warn"}, &buf)

	l.Info().Msg("hidden")
	l.Warn().Str("k", "v").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line logged at warn level: %s", out)
	}
	if !strings.Contains(out, `"k":"v"`) || !strings.Contains(out, `"level":"warn"`) {
		t.Fatalf("unexpected json output: %s", out)
	}
}

func TestNewWithWriterBadLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(config.LogConfig{Style: "json", Level: "loud"}, &buf)
	l.Debug().Msg("debug")
	l.Info().Msg("info")
	if strings.Contains(buf.String(), "debug") || !strings.Contains(buf.String(), "info") {
		t.Fatalf("output = %s", buf.String())
	}
}

func TestAccessLog(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	l := NewWithWriter(config.LogConfig{Style: "json", Level: "info"}, &buf)

	r := gin.New()
	r.Use(AccessLog(l))
	r.GET("/things/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/things/7", nil))

	out := buf.String()
	for _, want := range []string{`"path":"/things/:id"`, `"status":404`, `"level":"warn"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("access log missing %s: %s", want, out)
		}
	}
}
