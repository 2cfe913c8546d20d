package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

func TestNew_Formats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		opts     []logger.Option
		wantJSON bool
	}{
		{name: "default is json", wantJSON: true},
		{name: "text", opts: []logger.Option{logger.WithTextFormatter()}},
		{name: "last option wins", opts: []logger.Option{logger.WithTextFormatter(), logger.WithJSONFormatter()}, wantJSON: true},
		{name: "explicit format", opts: []logger.Option{logger.WithFormat(logger.FormatText)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			buf := &bytes.Buffer{}
			log := logger.New(append([]logger.Option{logger.WithOutput(buf)}, tt.opts...)...)
			log.Info("delivered", logger.Channel("email"))

			var entry map[string]any
			err := json.Unmarshal(buf.Bytes(), &entry)
			if !tt.wantJSON {
				assert.Error(t, err)
				assert.Contains(t, buf.String(), "msg=delivered")
				assert.Contains(t, buf.String(), "channel=email")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "delivered", entry["msg"])
			assert.Equal(t, "email", entry["channel"])
		})
	}
}

func TestNew_LevelAndStaticAttrs(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.New(
		logger.WithOutput(buf),
		logger.WithOutput(nil),
		logger.WithLevel(slog.LevelWarn),
		logger.WithAttr(slog.String("service", "notifyd")),
		logger.WithAttr(),
	)

	log.Info("skipped")
	log.Warn("queue full")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "queue full", entry["msg"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "notifyd", entry["service"])
}

func TestWithFormat_Unknown(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		logger.New(logger.WithFormat(logger.Format("xml")))
	})
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	l, err := logger.ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, l)

	l, err = logger.ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)

	_, err = logger.ParseLevel("loud")
	assert.Error(t, err)
}
