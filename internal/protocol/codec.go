package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DefaultMaxLineSize bounds a single line when the caller does not choose a limit.
const DefaultMaxLineSize = 64 * 1024

var (
	// ErrNewline is returned when a payload would break line framing.
	ErrNewline = errors.New("protocol: payload contains a line break")
	// ErrLineTooLong is returned when a peer sends a line over the read limit.
	ErrLineTooLong = errors.New("protocol: line exceeds maximum size")
	// ErrUnknownKind is returned when encoding a command with no wire form.
	ErrUnknownKind = errors.New("protocol: unknown command kind")
)

// Decode parses one line. It never fails: lines that match no known prefix,
// including the empty line, decode to KindUnknown with the raw line as payload.
func Decode(line string) Command {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	if isDecimal(line) {
		return Command{Kind: KindID, Payload: line}
	}
	if len(line) < 3 {
		return Command{Kind: KindUnknown, Payload: line}
	}

	kind, ok := prefixes[line[:3]]
	if !ok {
		return Command{Kind: KindUnknown, Payload: line}
	}

	rest := line[3:]
	if rest == "" {
		return Command{Kind: kind}
	}
	if rest[0] != ' ' {
		return Command{Kind: KindUnknown, Payload: line}
	}
	return Command{Kind: kind, Payload: rest[1:]}
}

// Encode renders c as a line without its terminator.
func Encode(c Command) (string, error) {
	if strings.ContainsAny(c.Payload, "\r\n") {
		return "", ErrNewline
	}

	switch c.Kind {
	case KindID:
		if !isDecimal(c.Payload) {
			return "", fmt.Errorf("protocol: invalid id %q", c.Payload)
		}
		return c.Payload, nil
	case KindUnknown:
		return "", ErrUnknownKind
	}

	prefix := c.Kind.String()
	if c.Payload == "" {
		return prefix, nil
	}
	return prefix + " " + c.Payload, nil
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Reader decodes commands from a byte stream.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader returns a Reader that rejects lines longer than maxLine bytes.
// A non-positive maxLine selects DefaultMaxLineSize.
func NewReader(r io.Reader, maxLine int) *Reader {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineSize
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(maxLine, 4096)), maxLine)
	return &Reader{scanner: scanner}
}

// ReadCommand blocks until a full line is available. A closed or reset
// stream returns io.EOF or the underlying network error; once an error is
// returned every later call returns an error too.
func (r *Reader) ReadCommand() (Command, error) {
	if r.scanner.Scan() {
		return Decode(r.scanner.Text()), nil
	}

	err := r.scanner.Err()
	switch {
	case err == nil:
		return Command{}, io.EOF
	case errors.Is(err, bufio.ErrTooLong):
		return Command{}, ErrLineTooLong
	default:
		return Command{}, err
	}
}

// Writer encodes commands onto a byte stream. It is not safe for concurrent use.
type Writer struct {
	w io.Writer
}

// NewWriter returns a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteCommand writes c followed by a newline in a single Write call.
func (w *Writer) WriteCommand(c Command) error {
	line, err := Encode(c)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w.w, line+"\n")
	return err
}
