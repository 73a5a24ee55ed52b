package fs

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// LogLevel describes the verbosity of a log message.  These are a
// subset of the syslog levels.
type LogLevel byte

// Log levels
const (
	LogLevelError LogLevel = iota // Error - can't be suppressed
	LogLevelNotice                // Normal logging
	LogLevelInfo                  // Transfers, needs -v
	LogLevelDebug                 // Debug level, needs -vv
)

var logLevelToString = []string{
	LogLevelError:  "ERROR",
	LogLevelNotice: "NOTICE",
	LogLevelInfo:   "INFO",
	LogLevelDebug:  "DEBUG",
}

// String turns a LogLevel into a string
func (l LogLevel) String() string {
	if l >= LogLevel(len(logLevelToString)) {
		return fmt.Sprintf("LogLevel(%d)", l)
	}
	return logLevelToString[l]
}

// Set a LogLevel from a string
func (l *LogLevel) Set(s string) error {
	for n, name := range logLevelToString {
		if s != "" && name == s {
			*l = LogLevel(n)
			return nil
		}
	}
	return fmt.Errorf("unknown log level %q", s)
}

// Type of the value
func (l *LogLevel) Type() string {
	return "string"
}

// CurrentLogLevel is the log level in effect for the process.
var CurrentLogLevel = LogLevelNotice

var logger = logrus.StandardLogger()

var logLevelToLogrus = []logrus.Level{
	LogLevelError:  logrus.ErrorLevel,
	LogLevelNotice: logrus.WarnLevel,
	LogLevelInfo:   logrus.InfoLevel,
	LogLevelDebug:  logrus.DebugLevel,
}

// InitLogging sets up logrus from CurrentLogLevel.  Call after
// parsing the flags.
func InitLogging() {
	logger.SetLevel(logLevelToLogrus[CurrentLogLevel])
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006/01/02 15:04:05",
	})
}

// logPrintf produces a log string from the arguments passed in
func logPrintf(level LogLevel, o interface{}, text string, args ...interface{}) {
	if level > CurrentLogLevel {
		return
	}
	out := fmt.Sprintf(text, args...)
	if o != nil {
		out = fmt.Sprintf("%v: %s", o, out)
	}
	logger.Log(logLevelToLogrus[level], out)
}

// Errorf writes error log output for this Object or Fs.  It
// should always be seen by the user.
func Errorf(o interface{}, text string, args ...interface{}) {
	logPrintf(LogLevelError, o, text, args...)
}

// Logf writes log output for this Object or Fs.  This should be
// considered to be Notice level logging.
func Logf(o interface{}, text string, args ...interface{}) {
	logPrintf(LogLevelNotice, o, text, args...)
}

// Infof writes info on transfers for this Object or Fs.
func Infof(o interface{}, text string, args ...interface{}) {
	logPrintf(LogLevelInfo, o, text, args...)
}

// Debugf writes debugging output for this Object or Fs.
func Debugf(o interface{}, text string, args ...interface{}) {
	logPrintf(LogLevelDebug, o, text, args...)
}
