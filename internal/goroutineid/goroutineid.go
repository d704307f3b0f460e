// Package goroutineid reads the id of the calling goroutine.
package goroutineid

import (
	"runtime"
	"sync"
)

var stackBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 64)
		return &b
	},
}

// Get returns the id of the calling goroutine, or 0 if it cannot be read.
func Get() int64 {
	bp := stackBufPool.Get().(*[]byte)
	defer stackBufPool.Put(bp)
	n := runtime.Stack(*bp, false)
	return parse((*bp)[:n])
}

// parse reads the id from the first line of a stack trace,
// "goroutine 18 [running]:".
func parse(stack []byte) int64 {
	const prefix = "goroutine "
	if len(stack) <= len(prefix) || string(stack[:len(prefix)]) != prefix {
		return 0
	}
	var id int64
	for _, b := range stack[len(prefix):] {
		if b < '0' || b > '9' {
			break
		}
		id = id*10 + int64(b-'0')
	}
	return id
}
