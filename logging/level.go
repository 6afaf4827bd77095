package logging

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Level is a severity of a diagnostic message. Lower is more severe. The same type is used
// as a threshold: a message is emitted only if its level isn't above the threshold.
type Level uint8

const (
	// Disabled as a threshold suppresses everything. Messages must never be emitted at it.
	Disabled Level = iota
	Fatal
	Critical
	Error
	Warning
	Notice
	Info
	Debug
	Trace
)

var levelNames = [...]string{
	Disabled: "disabled",
	Fatal:    "fatal",
	Critical: "critical",
	Error:    "error",
	Warning:  "warning",
	Notice:   "notice",
	Info:     "info",
	Debug:    "debug",
	Trace:    "trace",
}

func (l Level) String() string {
	if int(l) >= len(levelNames) {
		return "level(" + strconv.Itoa(int(l)) + ")"
	}

	return levelNames[l]
}

// ParseLevel converts the numeric representation used by the command line into a Level.
func ParseLevel(n int) (Level, error) {
	if n < int(Disabled) || n > int(Trace) {
		return Disabled, fmt.Errorf("log level %d is out of range %d..%d", n, Disabled, Trace)
	}

	return Level(n), nil
}

// logrus has no notice level and fewer levels below error, so the severe ones are squeezed
// into Error. The gate decides what's emitted, logrus only renders.
var logrusLevels = [...]logrus.Level{
	Fatal:    logrus.ErrorLevel,
	Critical: logrus.ErrorLevel,
	Error:    logrus.ErrorLevel,
	Warning:  logrus.WarnLevel,
	Notice:   logrus.InfoLevel,
	Info:     logrus.InfoLevel,
	Debug:    logrus.DebugLevel,
	Trace:    logrus.TraceLevel,
}
