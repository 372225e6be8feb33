// Package log provides the leveled logger used throughout the DMTP back
// office. Output goes to stderr with systemd/syslog-style numeric prefixes
// (see https://www.freedesktop.org/software/systemd/man/sd-daemon.html) so
// that date/time can be left to the supervisor; SetLogDateTime re-enables
// timestamps for environments without one.
package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

type level int

const (
	levelDebug level = iota
	levelInfo
	levelNotice
	levelWarn
	levelError
	levelCrit
)

type tier struct {
	writer  io.Writer
	prefix  string
	noTime  *log.Logger
	withTim *log.Logger
}

var tiers = map[level]*tier{
	levelDebug:  {writer: os.Stderr, prefix: "<7>[DEBUG]    "},
	levelInfo:   {writer: os.Stderr, prefix: "<6>[INFO]     "},
	levelNotice: {writer: os.Stderr, prefix: "<5>[NOTICE]   "},
	levelWarn:   {writer: os.Stderr, prefix: "<4>[WARNING]  "},
	levelError:  {writer: os.Stderr, prefix: "<3>[ERROR]    "},
	levelCrit:   {writer: os.Stderr, prefix: "<2>[CRITICAL] "},
}

var logDateTime bool

func init() {
	for lvl, t := range tiers {
		setWriter(lvl, t.writer)
	}
}

// SetLogLevel silences every tier below lvl by redirecting its writer to
// io.Discard. Valid values: "debug", "info", "notice", "warn", "err"/"fatal",
// "crit".
func SetLogLevel(lvl string) {
	order := []level{levelDebug, levelInfo, levelNotice, levelWarn, levelError, levelCrit}
	var cut int
	switch lvl {
	case "debug":
		cut = 0
	case "info":
		cut = 1
	case "notice":
		cut = 2
	case "warn":
		cut = 3
	case "err", "fatal":
		cut = 4
	case "crit":
		cut = 5
	default:
		fmt.Fprintf(os.Stderr, "pkg/log: invalid loglevel %q, using 'debug'\n", lvl)
		cut = 0
	}
	for i, l := range order {
		if i < cut {
			setWriter(l, io.Discard)
		} else {
			setWriter(l, os.Stderr)
		}
	}
}

func setWriter(lvl level, w io.Writer) {
	t := tiers[lvl]
	t.writer = w
	if lvl == levelInfo {
		InfoWriter = w
	}
	flags := log.Lshortfile
	switch {
	case lvl == levelDebug:
		flags = 0
	case lvl >= levelError:
		flags = log.Llongfile
	}
	t.noTime = log.New(w, t.prefix, flags)
	t.withTim = log.New(w, t.prefix, flags|log.LstdFlags)
}

// SetLogDateTime toggles date/time prefixes on every tier.
func SetLogDateTime(on bool) {
	logDateTime = on
}

func emit(lvl level, depth int, s string) {
	t := tiers[lvl]
	if t.writer == io.Discard {
		return
	}
	if logDateTime {
		t.withTim.Output(depth, s)
	} else {
		t.noTime.Output(depth, s)
	}
}

func Debug(v ...interface{})                  { emit(levelDebug, 3, fmt.Sprint(v...)) }
func Debugf(format string, v ...interface{})  { emit(levelDebug, 3, fmt.Sprintf(format, v...)) }
func Info(v ...interface{})                   { emit(levelInfo, 3, fmt.Sprint(v...)) }
func Infof(format string, v ...interface{})   { emit(levelInfo, 3, fmt.Sprintf(format, v...)) }
func Print(v ...interface{})                  { Info(v...) }
func Printf(format string, v ...interface{})  { Infof(format, v...) }
func Note(v ...interface{})                   { emit(levelNotice, 3, fmt.Sprint(v...)) }
func Notef(format string, v ...interface{})   { emit(levelNotice, 3, fmt.Sprintf(format, v...)) }
func Warn(v ...interface{})                   { emit(levelWarn, 3, fmt.Sprint(v...)) }
func Warnf(format string, v ...interface{})   { emit(levelWarn, 3, fmt.Sprintf(format, v...)) }
func Error(v ...interface{})                  { emit(levelError, 3, fmt.Sprint(v...)) }
func Errorf(format string, v ...interface{})  { emit(levelError, 3, fmt.Sprintf(format, v...)) }
func Crit(v ...interface{})                   { emit(levelCrit, 3, fmt.Sprint(v...)) }
func Critf(format string, v ...interface{})   { emit(levelCrit, 3, fmt.Sprintf(format, v...)) }

// InfoWriter exposes the info tier's underlying writer directly, for
// handlers (like gorilla/handlers' access-logging middleware) that need
// to write pre-formatted lines rather than go through Infof.
var InfoWriter io.Writer = os.Stderr

// Finfof writes a formatted info-level line to w, honoring the same
// date/time toggle as the rest of the package.
func Finfof(w io.Writer, format string, v ...interface{}) {
	if logDateTime {
		fmt.Fprintf(w, tiers[levelInfo].prefix+time.Now().Format("2006/01/02 15:04:05 ")+format+"\n", v...)
		return
	}
	fmt.Fprintf(w, tiers[levelInfo].prefix+format+"\n", v...)
}

// Panic logs at error level then panics.
func Panic(v ...interface{}) {
	Error(v...)
	panic(fmt.Sprint(v...))
}

func Panicf(format string, v ...interface{}) {
	Errorf(format, v...)
	panic(fmt.Sprintf(format, v...))
}

// Fatal logs at error level and terminates the process with exit code 1.
func Fatal(v ...interface{}) {
	Error(v...)
	os.Exit(1)
}

func Fatalf(format string, v ...interface{}) {
	Errorf(format, v...)
	os.Exit(1)
}
