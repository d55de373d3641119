package proxy

import (
	"fmt"
	"os"
	"path"
	"runtime"
	"strings"

	"github.com/kataras/pio"
	"github.com/sirupsen/logrus"
)

// Level mirrors logrus.Level value for value, so a parsed logrus.Level
// converts directly (as cmd/proxy-twister does for LOG_LEVEL).
type Level logrus.Level

const (
	PanicLevel Level = iota
	FatalLevel
	ErrorLevel
	WarnLevel
	InfoLevel
	DebugLevel
	TraceLevel
)

type levelStyle struct {
	name    string
	colorFn func(string) string
}

var levelStyles = map[Level]levelStyle{
	PanicLevel: {"PANIC", pio.RedBackground},
	FatalLevel: {"FATAL", pio.RedBackground},
	ErrorLevel: {"ERROR", pio.Red},
	WarnLevel:  {"WARN", pio.Purple},
	InfoLevel:  {"INFO", pio.LightGreen},
	DebugLevel: {"DEBUG", pio.Yellow},
	TraceLevel: {"TRACE", pio.Gray},
}

type formatFn func(*logrus.Entry) ([]byte, error)

func (f formatFn) Format(entry *logrus.Entry) ([]byte, error) { return f(entry) }

// formatter renders a colored level tag plus caller file:line, walking past
// frames inside this file so the attributed caller is the real log site.
func formatter() formatFn {
	return func(entry *logrus.Entry) ([]byte, error) {
		style := levelStyles[Level(entry.Level)]
		base := fmt.Sprintf("[%s] %s",
			style.colorFn(style.name),
			entry.Time.Format("2006-01-02 15:04:05"),
		)

		file, line := "???", 0
		if entry.HasCaller() {
			pc := make([]uintptr, 10)
			n := runtime.Callers(8, pc)
			frames := runtime.CallersFrames(pc[:n])
			for {
				frame, more := frames.Next()
				if !strings.HasSuffix(frame.File, "logger.go") {
					entry.Caller = &frame
					_, file = path.Split(frame.File)
					line = frame.Line
					break
				}
				if !more {
					break
				}
			}
		}
		base += fmt.Sprintf(" [%s:%d]", strings.TrimSuffix(file, ".go"), line)

		for _, key := range []string{"id", "peer", "profile"} {
			if v, ok := entry.Data[key]; ok {
				base += fmt.Sprintf(" [%s=%v]", key, v)
			}
		}

		return []byte(fmt.Sprintf("%s %s\n", base, entry.Message)), nil
	}
}

var defaultLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(formatter())
	l.SetOutput(os.Stdout)
	l.SetReportCaller(true)
	return l
}()

// SetLogLevel sets the package-wide log level. Normally driven once, at
// startup, by the LOG_LEVEL environment variable (see cmd/proxy-twister).
func SetLogLevel(level Level) { defaultLogger.SetLevel(logrus.Level(level)) }

func Panic(args ...any) { defaultLogger.Panic(args...) }
func Fatal(args ...any) { defaultLogger.Fatal(args...) }
func Error(args ...any) { defaultLogger.Error(args...) }
func Warn(args ...any)  { defaultLogger.Warn(args...) }
func Info(args ...any)  { defaultLogger.Info(args...) }
func Debug(args ...any) { defaultLogger.Debug(args...) }
func Trace(args ...any) { defaultLogger.Trace(args...) }

func Panicf(format string, args ...any) { defaultLogger.Panicf(format, args...) }
func Fatalf(format string, args ...any) { defaultLogger.Fatalf(format, args...) }
func Errorf(format string, args ...any) { defaultLogger.Errorf(format, args...) }
func Warnf(format string, args ...any)  { defaultLogger.Warnf(format, args...) }
func Infof(format string, args ...any)  { defaultLogger.Infof(format, args...) }
func Debugf(format string, args ...any) { defaultLogger.Debugf(format, args...) }
func Tracef(format string, args ...any) { defaultLogger.Tracef(format, args...) }

// WithFields returns a logrus.Entry pre-populated with connection
// correlation fields, for call sites that want structured id/peer/profile
// rather than folding them into a message string. Empty values are
// omitted.
func WithFields(id, peer, profile string) *logrus.Entry {
	fields := logrus.Fields{}
	if id != "" {
		fields["id"] = id
	}
	if peer != "" {
		fields["peer"] = peer
	}
	if profile != "" {
		fields["profile"] = profile
	}
	return defaultLogger.WithFields(fields)
}
