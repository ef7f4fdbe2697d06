package errors

import (
	"runtime"
	"strings"
)

// maxStackDepth bounds the number of frames captured per error.
const maxStackDepth = 64

// StackFrame describes a single entry in a captured call stack.
type StackFrame struct {
	File       string `json:"filename,omitempty"`
	LineNumber int    `json:"line_number,omitempty"`
	Function   string `json:"function,omitempty"`
	Package    string `json:"package,omitempty"`
}

// getStack captures the caller's stack, skipping `skip` additional frames
// on top of this function itself.
func getStack(skip int) []StackFrame {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(2+skip, pcs)
	cf := runtime.CallersFrames(pcs[:n])

	frames := make([]StackFrame, 0, n)
	for {
		frame, more := cf.Next()
		pkg, fn := packageAndName(frame.Function)
		frames = append(frames, StackFrame{
			File:       frame.File,
			LineNumber: frame.Line,
			Function:   fn,
			Package:    pkg,
		})
		if !more {
			break
		}
	}
	return frames
}

func packageAndName(fn string) (pkg string, name string) {
	name = fn
	if lastSlash := strings.LastIndex(name, "/"); lastSlash >= 0 {
		pkg += name[:lastSlash] + "/"
		name = name[lastSlash+1:]
	}
	if period := strings.Index(name, "."); period >= 0 {
		pkg += name[:period]
		name = name[period+1:]
	}
	return pkg, strings.ReplaceAll(name, "·", ".")
}
