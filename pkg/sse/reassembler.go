// Package sse reassembles server-sent event data frames from a chunked byte stream.
//
// The WorkflowAI run service streams one JSON document per event, each event
// introduced by "data: " and terminated by a blank line. Network reads do not
// respect those boundaries: a single read may carry half a frame, several frames,
// or a marker split in two. Reassembler buffers reads until a frame boundary has
// been fully observed and only then hands the frame out.
//
// Basic usage over an HTTP response body:
//
//	r := sse.NewReader(resp.Body)
//	for {
//		frame, err := r.Next()
//		if err == io.EOF {
//			break
//		}
//		if err != nil {
//			return err
//		}
//		handle(frame)
//	}
package sse

import "bytes"

var (
	// FramePrefix introduces the payload of every event.
	FramePrefix = []byte("data: ")
	// FrameSeparator sits between two consecutive events.
	FrameSeparator = []byte("\n\ndata: ")
	// FrameTerminator closes the last event of a burst.
	FrameTerminator = []byte("\n\n")
)

// Reassembler is the reassembly state of one stream. It must not be shared
// between streams or used concurrently.
type Reassembler struct {
	buf    []byte
	inData bool
}

// NewReassembler returns an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Feed appends chunk to the buffer and returns every frame completed by it,
// in arrival order. The returned frames do not alias the internal buffer.
func (r *Reassembler) Feed(chunk []byte) [][]byte {
	r.buf = append(r.buf, chunk...)

	if !r.inData {
		// The marker may still be split across reads
		if !bytes.HasPrefix(r.buf, FramePrefix) {
			return nil
		}
		r.buf = r.buf[len(FramePrefix):]
		r.inData = true
	}

	var frames [][]byte

	parts := bytes.Split(r.buf, FrameSeparator)
	for _, part := range parts[:len(parts)-1] {
		frames = append(frames, bytes.Clone(part))
	}
	last := parts[len(parts)-1]

	if bytes.HasSuffix(last, FrameTerminator) {
		frames = append(frames, bytes.Clone(last[:len(last)-len(FrameTerminator)]))
		r.Reset()
		return frames
	}

	r.buf = bytes.Clone(last)
	return frames
}

// Leftover returns the bytes buffered but not yet emitted as a frame. A non-empty
// result at end of stream means the last frame was never terminated.
func (r *Reassembler) Leftover() []byte {
	return r.buf
}

// Reset clears the buffer and waits for a new frame marker.
func (r *Reassembler) Reset() {
	r.buf = nil
	r.inData = false
}
