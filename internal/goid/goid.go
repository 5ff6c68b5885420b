// Package goid identifies goroutines.
//
// The runtime does not expose goroutine ids, but every stack trace starts with a
// "goroutine <id> [<status>]:" header. Ids are assigned from a monotonically increasing
// counter and are never reused during the life of a process, which makes them safe keys
// for per-goroutine state.
//
// Reading the header costs a runtime.Stack call (on the order of a microsecond), so
// callers should look the id up once and cache whatever they derive from it.
package goid

import "runtime"

const headerPrefix = "goroutine "

// Get returns the id of the calling goroutine.
func Get() int64 {
	// Only the first line is needed: "goroutine 123 [running]:".
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	id, _ := parseHeader(buf[:n])
	return id
}

// Live returns the ids of every goroutine alive at the time of the call, including the
// caller. The snapshot is stale as soon as it returns.
func Live() []int64 {
	buf := make([]byte, 64<<10)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return parseAll(buf[:n])
		}
		buf = make([]byte, 2*len(buf))
	}
}

// parseHeader parses a "goroutine <id> " prefix. It returns 0 and false when buf does not
// start with a goroutine header.
func parseHeader(buf []byte) (int64, bool) {
	if len(buf) <= len(headerPrefix) || string(buf[:len(headerPrefix)]) != headerPrefix {
		return 0, false
	}
	var id int64
	digits := 0
	for _, c := range buf[len(headerPrefix):] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + int64(c-'0')
		digits++
	}
	if digits == 0 {
		return 0, false
	}
	return id, true
}

// parseAll extracts the id of every goroutine in a runtime.Stack(all=true) dump.
// Goroutine records are separated by blank lines, so a header can only appear at the
// start of the buffer or right after "\n\n".
func parseAll(buf []byte) []int64 {
	var ids []int64
	start := 0
	for start < len(buf) {
		if id, ok := parseHeader(buf[start:]); ok {
			ids = append(ids, id)
		}
		next := indexRecordBreak(buf[start:])
		if next < 0 {
			break
		}
		start += next + 2
	}
	return ids
}

func indexRecordBreak(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == '\n' && buf[i+1] == '\n' {
			return i
		}
	}
	return -1
}
