package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the process logger. Logs always go to stdout; when dir is
// non-empty they are mirrored to a rotating file under it (10 MB, 5 backups).
func New(level, dir, file string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer = os.Stdout
	if dir != "" && file != "" {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr == nil {
			rot := &lumberjack.Logger{
				Filename:   filepath.Join(dir, file),
				MaxSize:    10,
				MaxBackups: 5,
			}
			w = zerolog.MultiLevelWriter(os.Stdout, rot)
		}
	}

	return zerolog.New(w).With().Timestamp().Logger().Level(lvl)
}
