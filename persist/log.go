package persist

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus.Logger writing to a single file, matching the
// call shape the rest of this codebase expects (Println/Debugln/
// Critical/Close).
type Logger struct {
	*logrus.Logger
	file *os.File
}

// NewFileLogger creates a logger that writes structured, leveled output
// to the file at path, creating the file if necessary; its parent
// directory must already exist.
func NewFileLogger(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetOutput(io.MultiWriter(f, os.Stdout))
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.DebugLevel)
	return &Logger{Logger: l, file: f}, nil
}

// Println logs a line at info level.
func (l *Logger) Println(args ...interface{}) {
	l.Logger.Infoln(args...)
}

// Debugln logs a line at debug level.
func (l *Logger) Debugln(args ...interface{}) {
	l.Logger.Debugln(args...)
}

// Debug logs at debug level without a trailing newline semantics
// difference; kept distinct from Debugln for call-site parity.
func (l *Logger) Debug(args ...interface{}) {
	l.Logger.Debug(args...)
}

// Critical logs at error level. Unlike build.Critical it does not
// panic: it is for conditions that are fatal to a subsystem but that we
// still want a clean shutdown path for.
func (l *Logger) Critical(args ...interface{}) {
	l.Logger.Errorln(args...)
}

// Close flushes and closes the underlying log file.
func (l *Logger) Close() error {
	return l.file.Close()
}
