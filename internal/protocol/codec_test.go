package protocol

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Command
	}{
		{"message", "MSG hello world\n", Command{Kind: KindMessage, Payload: "hello world"}},
		{"message keeps inner spacing", "MSG  two", Command{Kind: KindMessage, Payload: " two"}},
		{"empty message", "MSG", Command{Kind: KindMessage}},
		{"carriage return", "NOP\r\n", Command{Kind: KindNothing}},
		{"request to talk", "RTT", Command{Kind: KindRequestToTalk}},
		{"terminate", "TRM\n", Command{Kind: KindTerminate}},
		{"register", "REG Teddy", Command{Kind: KindRegister, Payload: "Teddy"}},
		{"private", "PRV 3 psst", Command{Kind: KindPrivate, Payload: "3 psst"}},
		{"id reply", "42\n", Command{Kind: KindID, Payload: "42"}},
		{"unknown prefix", "XYZ foo", Command{Kind: KindUnknown, Payload: "XYZ foo"}},
		{"lower case", "msg hi", Command{Kind: KindUnknown, Payload: "msg hi"}},
		{"glued payload", "MSGhi", Command{Kind: KindUnknown, Payload: "MSGhi"}},
		{"empty line", "\n", Command{Kind: KindUnknown}},
		{"short line", "MS", Command{Kind: KindUnknown, Payload: "MS"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decode(tt.line))
		})
	}
}

func TestEncode(t *testing.T) {
	line, err := Encode(Message("(bob) hi"))
	require.NoError(t, err)
	assert.Equal(t, "MSG (bob) hi", line)

	line, err = Encode(RequestToTalk)
	require.NoError(t, err)
	assert.Equal(t, "RTT", line)

	line, err = Encode(ID(7))
	require.NoError(t, err)
	assert.Equal(t, "7", line)

	line, err = Encode(Private(3, "psst"))
	require.NoError(t, err)
	assert.Equal(t, "PRV 3 psst", line)

	_, err = Encode(Message("two\nlines"))
	assert.ErrorIs(t, err, ErrNewline)

	_, err = Encode(Command{Kind: KindUnknown, Payload: "XYZ"})
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = Encode(Command{Kind: KindID, Payload: "abc"})
	assert.Error(t, err)
}

func TestEncodeDecodeAgree(t *testing.T) {
	for _, c := range []Command{Message("hi there"), Register("alice"), Terminate, Nothing, ID(0), Private(12, "x y")} {
		line, err := Encode(c)
		require.NoError(t, err)
		assert.Equal(t, c, Decode(line), "line %q", line)
	}
}

func TestPrivateTarget(t *testing.T) {
	id, text, ok := Decode("PRV 5 see you").PrivateTarget()
	require.True(t, ok)
	assert.Equal(t, uint64(5), id)
	assert.Equal(t, "see you", text)

	_, _, ok = Decode("PRV abc hi").PrivateTarget()
	assert.False(t, ok)

	_, _, ok = Decode("PRV 0 hi").PrivateTarget()
	assert.False(t, ok, "the failure sentinel is never a valid target")

	_, _, ok = Message("5 hi").PrivateTarget()
	assert.False(t, ok)
}

func TestIDValue(t *testing.T) {
	id, ok := Decode("17").IDValue()
	require.True(t, ok)
	assert.Equal(t, uint64(17), id)

	_, ok = Message("17").IDValue()
	assert.False(t, ok)
}

func TestReaderWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteCommand(Message("first")))
	require.NoError(t, w.WriteCommand(RequestToTalk))
	require.NoError(t, w.WriteCommand(Terminate))
	assert.Equal(t, "MSG first\nRTT\nTRM\n", buf.String())

	r := NewReader(&buf, 0)
	for _, want := range []Command{Message("first"), RequestToTalk, Terminate} {
		got, err := r.ReadCommand()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := r.ReadCommand()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderRejectsLongLines(t *testing.T) {
	r := NewReader(strings.NewReader("MSG "+strings.Repeat("x", 100)+"\n"), 32)
	_, err := r.ReadCommand()
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestWriterRejectsNewlines(t *testing.T) {
	var buf bytes.Buffer
	err := NewWriter(&buf).WriteCommand(Message("a\nb"))
	assert.ErrorIs(t, err, ErrNewline)
	assert.Zero(t, buf.Len())
}
