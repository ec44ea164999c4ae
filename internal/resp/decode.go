// Package resp implements the RESP2 wire protocol: decoding pipelined request
// frames out of a byte stream under arbitrary fragmentation, and encoding replies.
package resp

import (
	"errors"
	"strconv"
)

// ErrProtocol is returned for any malformed input. The caller must close the
// connection on ErrProtocol; it is never raised for a merely incomplete frame.
var ErrProtocol = errors.New("resp: protocol error")

// Decode scans buf for a single complete RESP2 request frame: an array of bulk
// strings. It returns the number of bytes consumed and the decoded argument
// vector. If buf does not yet contain a whole frame, it returns (0, nil, nil)
// and the caller should retain buf unchanged and retry once more bytes arrive
// -- the read cursor is never advanced past the start of an incomplete frame.
//
// A null bulk string ($-1) is accepted as an argument and represented as an
// empty byte slice, indistinguishable from a zero-length bulk string to callers.
func Decode(buf []byte) (consumed int, args [][]byte, err error) {
	pos := 0

	line, n, ok := readLine(buf, pos)
	if !ok {
		return 0, nil, nil
	}
	if len(line) == 0 || line[0] != '*' {
		return 0, nil, ErrProtocol
	}
	arrayLen, err := parseInt(line[1:])
	if err != nil {
		return 0, nil, ErrProtocol
	}
	pos += n

	if arrayLen <= 0 {
		// Zero-length (or negative/null) array: a complete, argument-less frame.
		return pos, [][]byte{}, nil
	}

	out := make([][]byte, 0, arrayLen)
	for i := 0; i < arrayLen; i++ {
		bulkLine, n, ok := readLine(buf, pos)
		if !ok {
			return 0, nil, nil
		}
		if len(bulkLine) == 0 || bulkLine[0] != '$' {
			return 0, nil, ErrProtocol
		}
		bulkLen, err := parseInt(bulkLine[1:])
		if err != nil {
			return 0, nil, ErrProtocol
		}
		pos += n

		if bulkLen < 0 {
			// Null bulk string ($-1): treated as an empty argument.
			out = append(out, []byte{})
			continue
		}

		if len(buf) < pos+bulkLen+2 {
			return 0, nil, nil
		}
		payload := buf[pos : pos+bulkLen]
		if buf[pos+bulkLen] != '\r' || buf[pos+bulkLen+1] != '\n' {
			return 0, nil, ErrProtocol
		}
		// Copy out of buf: buf is a reusable read buffer owned by the caller,
		// and args must outlive the next read into it.
		arg := make([]byte, bulkLen)
		copy(arg, payload)
		out = append(out, arg)
		pos += bulkLen + 2
	}

	return pos, out, nil
}

// readLine finds the CRLF-terminated line starting at buf[from], excluding the
// CRLF itself. It reports how many bytes the line plus its terminator occupy.
func readLine(buf []byte, from int) (line []byte, consumed int, ok bool) {
	for i := from; i+1 < len(buf); i++ {
		if buf[i] == '\r' && buf[i+1] == '\n' {
			return buf[from:i], (i + 2) - from, true
		}
	}
	return nil, 0, false
}

// parseInt parses a signed decimal integer from b. It converts b to a string
// for strconv.Atoi, so it does not parse the bytes in place and each call
// allocates that string.
func parseInt(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, ErrProtocol
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return 0, ErrProtocol
	}
	return n, nil
}
