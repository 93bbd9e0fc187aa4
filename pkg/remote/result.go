package remote

import "bytes"

// Output holds everything a finished remote command produced. For
// commands built with AllowError the exit status may be non-zero;
// otherwise a non-zero exit surfaces as a CommandError instead.
type Output struct {
	ExitStatus int
	Stdout     []byte
	Stderr     []byte
}

// capture collects at most limit bytes of one output stream. Bytes
// past the limit are drained and dropped so the remote side never
// blocks on a full channel window.
type capture struct {
	buf     bytes.Buffer
	limit   int
	discard bool
}

func newCapture(limit int, discard bool) *capture {
	return &capture{limit: limit, discard: discard}
}

func (c *capture) Write(p []byte) (int, error) {
	if !c.discard {
		if room := c.limit - c.buf.Len(); room > 0 {
			if len(p) > room {
				c.buf.Write(p[:room])
			} else {
				c.buf.Write(p)
			}
		}
	}
	return len(p), nil
}

func (c *capture) Bytes() []byte { return c.buf.Bytes() }
