// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telegram

// Assembler splits an incoming byte stream into frames at EndByte.
// It does not look at frame structure; that is Decode's job.
type Assembler struct {
	buf []byte
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{buf: make([]byte, 0, MaxFrameSize)}
}

// Feed appends p and returns every frame completed by it, terminator
// included. Returned frames do not alias the internal buffer.
func (a *Assembler) Feed(p []byte) [][]byte {
	var frames [][]byte
	for _, b := range p {
		a.buf = append(a.buf, b)
		if b == EndByte {
			frame := make([]byte, len(a.buf))
			copy(frame, a.buf)
			frames = append(frames, frame)
			a.buf = a.buf[:0]
		}
	}
	return frames
}

// Pending returns the number of bytes waiting for a terminator.
func (a *Assembler) Pending() int {
	return len(a.buf)
}

// Reset discards any partially received frame.
func (a *Assembler) Reset() {
	a.buf = a.buf[:0]
}
