package sse

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Delimiter selects how frames are terminated on the wire.
type Delimiter string

const (
	// DelimiterBlankLine ends a frame at an empty line ("\n\n").
	DelimiterBlankLine Delimiter = "blank_line"
	// DelimiterLine treats every newline-terminated line as its own frame.
	DelimiterLine Delimiter = "line"
)

// ParseDelimiter resolves a configured delimiter name.
func ParseDelimiter(value string) (Delimiter, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(DelimiterBlankLine):
		return DelimiterBlankLine, nil
	case string(DelimiterLine):
		return DelimiterLine, nil
	default:
		return "", fmt.Errorf("unknown frame delimiter %q (expected blank_line|line)", value)
	}
}

// Frame is one complete event payload taken from the stream.
type Frame struct {
	Data string
}

// Options configures a Decoder.
type Options struct {
	Delimiter Delimiter
}

// Decoder turns successive chunks of one stream into complete frames.
// Feeding "AB" in one call yields the same frames as feeding "A" then "B".
type Decoder struct {
	separator []byte
	text      transform.Transformer
	pending   []byte
	// buf[start:] is undelimited text with CRLF already folded to LF. The
	// separator does not occur before scanned.
	buf     []byte
	start   int
	scanned int
	// heldCR is a trailing "\r" that may pair with a "\n" in the next chunk.
	heldCR bool
}

// NewDecoder constructs a decoder for one logical stream.
func NewDecoder(opts Options) *Decoder {
	separator := []byte("\n\n")
	if opts.Delimiter == DelimiterLine {
		separator = []byte("\n")
	}
	return &Decoder{
		separator: separator,
		text:      unicode.UTF8.NewDecoder(),
	}
}

// Decode consumes a chunk and returns every frame it completes. Each byte is
// scanned a bounded number of times however the stream is chunked.
func (d *Decoder) Decode(chunk []byte) []Frame {
	if len(chunk) == 0 {
		return nil
	}
	d.appendText(d.decodeText(chunk))

	var frames []Frame
	for {
		from := max(d.start, d.scanned-(len(d.separator)-1))
		index := bytes.Index(d.buf[from:], d.separator)
		if index < 0 {
			d.scanned = len(d.buf)
			break
		}
		end := from + index
		block := string(d.buf[d.start:end])
		d.start = end + len(d.separator)
		d.scanned = d.start
		if frame, ok := d.frameFromBlock(block); ok {
			frames = append(frames, frame)
		}
	}
	d.compact()
	return frames
}

// appendText folds CRLF to LF and adds text to the buffer.
func (d *Decoder) appendText(text string) {
	if d.heldCR {
		text = "\r" + text
		d.heldCR = false
	}
	if strings.HasSuffix(text, "\r") {
		text = text[:len(text)-1]
		d.heldCR = true
	}
	if strings.Contains(text, "\r\n") {
		text = strings.ReplaceAll(text, "\r\n", "\n")
	}
	d.buf = append(d.buf, text...)
}

// compact drops consumed text once it outweighs what is still buffered.
func (d *Decoder) compact() {
	switch {
	case d.start == len(d.buf):
		d.buf = d.buf[:0]
	case d.start > len(d.buf)/2:
		d.buf = d.buf[:copy(d.buf, d.buf[d.start:])]
	default:
		return
	}
	d.scanned -= d.start
	d.start = 0
}

// Residual returns text that has not yet formed a complete frame.
func (d *Decoder) Residual() string {
	residual := string(d.buf[d.start:])
	if d.heldCR {
		residual += "\r"
	}
	return residual + string(d.pending)
}

// Reset discards all buffered state.
func (d *Decoder) Reset() {
	d.text.Reset()
	d.pending = nil
	d.buf = d.buf[:0]
	d.start = 0
	d.scanned = 0
	d.heldCR = false
}

// decodeText runs the UTF-8 decoder over pending bytes plus the chunk, holding
// back a trailing partial rune until the next call.
func (d *Decoder) decodeText(chunk []byte) string {
	src := append(d.pending, chunk...)
	d.pending = nil
	var out strings.Builder
	dst := make([]byte, len(src)*3+utf8Slack)
	for len(src) > 0 {
		nDst, nSrc, err := d.text.Transform(dst, src, false)
		out.Write(dst[:nDst])
		src = src[nSrc:]
		if err == nil {
			continue
		}
		if errors.Is(err, transform.ErrShortSrc) {
			d.pending = append([]byte(nil), src...)
			break
		}
		if errors.Is(err, transform.ErrShortDst) {
			dst = make([]byte, len(dst)*2)
			continue
		}
		// The UTF-8 decoder substitutes invalid input instead of failing, so
		// any other error means nothing further can be decoded from src.
		break
	}
	return out.String()
}

// utf8Slack leaves room for replacement characters in the output buffer.
const utf8Slack = 16

// frameFromBlock extracts the payload from one delimited block.
func (d *Decoder) frameFromBlock(block string) (Frame, bool) {
	var data []string
	for _, line := range strings.Split(block, "\n") {
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		value, ok := dataValue(line)
		if !ok {
			continue
		}
		data = append(data, value)
	}
	if len(data) == 0 {
		return Frame{}, false
	}
	return Frame{Data: strings.Join(data, "\n")}, true
}

// dataValue strips the "data:" field name and one optional space.
func dataValue(line string) (string, bool) {
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	value := strings.TrimPrefix(line, "data:")
	value = strings.TrimPrefix(value, " ")
	return value, true
}
