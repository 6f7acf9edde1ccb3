package triple

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// Write prints the first three elements of ref to w as decimal tokens, each
// followed by a single space, then a newline: "1 2 3 \n". The buffered output
// is flushed before Write returns.
func Write(w io.Writer, ref []int) error {
	if len(ref) < Len {
		return &BoundsError{Want: Len, Got: len(ref)}
	}

	bw := bufio.NewWriter(w)
	var num []byte
	for i := 0; i < Len; i++ {
		num = strconv.AppendInt(num[:0], int64(ref[i]), 10)
		num = append(num, ' ')
		if _, err := bw.Write(num); err != nil {
			return fmt.Errorf("write element %d: %w", i, err)
		}
	}
	if err := bw.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// WriteValue is Write for a Triple received by copy. The slice is taken in the
// consumer's frame and never leaves it.
func WriteValue(w io.Writer, t Triple) error {
	return Write(w, t[:])
}
