// Package rlog is the leveled logging idiom shared across island's
// packages, using the same INFORMATION:/WARNING:/ERROR:/DEBUG: message
// prefixes a Vulkan debug report callback emits. It exists so the
// rendergraph compiler's diagnostic dump, the shader hot-reload watcher
// and the Vulkan validation callback all format messages the same way,
// without pulling in a logging framework for a binding layer this close
// to the graphics API.
package rlog

import (
	"log"
	"os"
	"sync/atomic"
)

type Level int32

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

func (l Level) prefix() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARNING"
	case LevelDebug:
		return "DEBUG"
	default:
		return "INFORMATION"
	}
}

var std = log.New(os.Stderr, "", log.LstdFlags)

// level is the minimum level that will be printed; atomic so it can be
// flipped by a validation-on/off configuration knob without locking.
var level int32 = int32(LevelInfo)

func SetLevel(l Level) {
	atomic.StoreInt32(&level, int32(l))
}

func enabled(l Level) bool {
	return int32(l) <= atomic.LoadInt32(&level)
}

func Errorf(format string, args ...interface{}) {
	logAt(LevelError, format, args...)
}

func Warnf(format string, args ...interface{}) {
	logAt(LevelWarn, format, args...)
}

func Infof(format string, args ...interface{}) {
	logAt(LevelInfo, format, args...)
}

func Debugf(format string, args ...interface{}) {
	logAt(LevelDebug, format, args...)
}

func logAt(l Level, format string, args ...interface{}) {
	if !enabled(l) {
		return
	}
	std.Printf(l.prefix()+": "+format, args...)
}
