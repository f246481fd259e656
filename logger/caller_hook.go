package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// wrapperPackages are skipped when resolving the reported caller.
var wrapperPackages = []string{
	"github.com/sirupsen/logrus",
	"mboflow/logger",
}

const callerDepth = 24

// callerHook reports the first stack frame outside logrus and the
// Entry helpers in this package.
type callerHook struct{}

func (callerHook) Levels() []logrus.Level { return logrus.AllLevels }

func (callerHook) Fire(entry *logrus.Entry) error {
	if frame, ok := firstForeignFrame(3); ok {
		entry.Caller = &frame
	}
	return nil
}

func isWrapperFrame(fn string) bool {
	for _, pkg := range wrapperPackages {
		if strings.HasPrefix(fn, pkg+".") || strings.Contains(fn, pkg+".(") {
			return true
		}
	}
	return strings.HasPrefix(fn, "runtime.")
}

func firstForeignFrame(skip int) (runtime.Frame, bool) {
	var pcs [callerDepth]uintptr
	n := runtime.Callers(skip, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !isWrapperFrame(frame.Function) {
			return frame, true
		}
		if !more {
			return runtime.Frame{}, false
		}
	}
}
