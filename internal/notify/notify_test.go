package notify

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(zerolog.New(&buf))

	n.Warn("Alert", "temperature above threshold")
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"title":"Alert"`)
	assert.Contains(t, buf.String(), "temperature above threshold")
}

func TestMultiSkipsNil(t *testing.T) {
	var got []string
	rec := Func(func(level, title, message string) {
		got = append(got, level+":"+title+":"+message)
	})

	m := Multi{nil, rec, rec}
	m.Info("a", "1")
	m.Warn("b", "2")
	m.Error("c", "3")

	assert.Equal(t, []string{
		"info:a:1", "info:a:1",
		"warn:b:2", "warn:b:2",
		"error:c:3", "error:c:3",
	}, got)
}

func TestOrLog(t *testing.T) {
	assert.IsType(t, &LogNotifier{}, OrLog(nil, zerolog.Nop()))

	custom := Func(func(string, string, string) {})
	assert.NotNil(t, OrLog(custom, zerolog.Nop()))
}
