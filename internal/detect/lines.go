package detect

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// maxLineBytes bounds a single JSON frame line.
const maxLineBytes = 1 << 20

// errLineTooLong is returned for a line over maxLineBytes. The line has been
// consumed, so the next read starts on the following line.
var errLineTooLong = fmt.Errorf("%w: line exceeds %d bytes", ErrSkipFrame, maxLineBytes)

// readFrameLine returns the next line with surrounding whitespace trimmed. A
// final line without a newline is returned before io.EOF.
func readFrameLine(br *bufio.Reader) ([]byte, error) {
	var (
		line    []byte
		tooLong bool
	)
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > maxLineBytes+1 {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && (!errors.Is(err, io.EOF) || (len(line) == 0 && !tooLong)) {
			return nil, err
		}
		break
	}
	if tooLong {
		return nil, errLineTooLong
	}
	return bytes.TrimSpace(line), nil
}
