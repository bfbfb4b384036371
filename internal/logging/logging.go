package logging

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *logrus.Logger
	once   sync.Once
)

const SessionIDKey = "session_id"

type Fields = logrus.Fields

// Options controls the logger built by Init. An empty Dir logs to stderr only.
type Options struct {
	Level string
	Dir   string
}

// Init builds the process logger. Only the first call has any effect; later
// calls, and helpers used before Init, get the logger already built.
func Init(opts Options) *logrus.Logger {
	once.Do(func() {
		logger = logrus.New()

		level, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)

		logger.SetFormatter(&formatter.Formatter{
			NoColors:        false,
			TimestampFormat: "02 Jan 06 - 15:04:05",
			HideKeys:        false,
			CallerFirst:     true,
			CustomCallerFormatter: func(f *runtime.Frame) string {
				s := strings.Split(f.Function, ".")
				funcName := s[len(s)-1]
				return fmt.Sprintf(" \x1b[%dm[%s:%d][%s()]", 34, path.Base(f.File), f.Line, funcName)
			},
		})

		writers := []io.Writer{os.Stderr}
		if opts.Dir != "" && os.Getenv("APP_ENV") != "test" {
			writers = append(writers, &lumberjack.Logger{
				Filename:   filepath.Join(opts.Dir, fmt.Sprintf("biokiosk-%s.log", time.Now().Format("2006-01-02"))),
				LocalTime:  true,
				Compress:   true,
				MaxSize:    50,
				MaxAge:     14,
				MaxBackups: 5,
			})
		}

		logger.SetOutput(io.MultiWriter(writers...))
		logger.SetReportCaller(true)
	})

	return logger
}

// Logger returns the process logger, building a stderr-only one if Init was
// never called
func Logger() *logrus.Logger {
	return Init(Options{Level: "info"})
}

// AddHook attaches a hook, e.g. the on-screen log panel
func AddHook(h logrus.Hook) {
	Logger().AddHook(h)
}

func Debug(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	Logger().WithFields(fields).Debug(msg)
}

func Info(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	Logger().WithFields(fields).Info(msg)
}

func Warn(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	Logger().WithFields(fields).Warn(msg)
}

func Error(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	Logger().WithFields(fields).Error(msg)
}

// WithSession tags entries with a capture session id
func WithSession(id string) *logrus.Entry {
	if id == "" {
		id = "unknown"
	}
	return Logger().WithField(SessionIDKey, id)
}
