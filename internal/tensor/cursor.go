package tensor

import "fmt"

// Cursor locates one sequence inside a token-stacked tensor: the sequence
// from batch Batch occupies tokens [Token, Token+Len).
type Cursor struct {
	Batch int
	Token int
	Len   int
}

// Pack encodes the cursor as batch | token<<8 | len<<24. Batch and Len are
// truncated to 8 bits and Token to 16.
func (c Cursor) Pack() uint32 {
	return uint32(uint8(c.Batch)) | uint32(uint16(c.Token))<<8 | uint32(uint8(c.Len))<<24
}

// UnpackCursor is the inverse of Cursor.Pack.
func UnpackCursor(w uint32) Cursor {
	return Cursor{
		Batch: int(w & 0xff),
		Token: int((w >> 8) & 0xffff),
		Len:   int(w >> 24),
	}
}

func (c Cursor) String() string {
	return fmt.Sprintf("batch %d tokens %d..%d", c.Batch, c.Token, c.Token+c.Len)
}

// PackStack encodes one word per sequence, skipping empty ones.
func PackStack(cs []Cursor) []uint32 {
	out := make([]uint32, 0, len(cs))
	for _, c := range cs {
		if c.Len > 0 {
			out = append(out, c.Pack())
		}
	}
	return out
}

// PackCursors encodes one word per token: the cursor of the sequence the
// token belongs to.
func PackCursors(cs []Cursor) []uint32 {
	var out []uint32
	for _, c := range cs {
		w := c.Pack()
		for range c.Len {
			out = append(out, w)
		}
	}
	return out
}
