package triple_test

import (
	"bytes"
	"errors"
	"regexp"
	"runtime"
	"testing"

	"github.com/Heman10x-NGU/dangleref/internal/triple"
	"github.com/stretchr/testify/require"
)

var outputShape = regexp.MustCompile(`^-?\d+ -?\d+ -?\d+ \n$`)

func TestProduce_ReferenceOutlivesProducer(t *testing.T) {
	ref := triple.Produce()

	// Churn the stack and the heap; a reference into a dead frame would be
	// clobbered by now.
	for i := 0; i < 100; i++ {
		_ = clobber(i)
	}
	runtime.GC()

	require.Equal(t, []int{1, 2, 3}, ref)
}

//go:noinline
func clobber(n int) int {
	var frame [64]int
	for i := range frame {
		frame[i] = -n
	}
	return frame[n%len(frame)]
}

func TestProduce_FreshStoragePerCall(t *testing.T) {
	a := triple.Produce()
	b := triple.Produce()
	a[0] = 99
	require.Equal(t, 1, b[0], "each call must own its own array")
}

func TestProduceInto(t *testing.T) {
	t.Run("fills caller buffer", func(t *testing.T) {
		buf := make([]int, 4)
		require.NoError(t, triple.ProduceInto(buf))
		require.Equal(t, []int{1, 2, 3, 0}, buf)
	})

	t.Run("short buffer", func(t *testing.T) {
		err := triple.ProduceInto(make([]int, 2))
		require.ErrorIs(t, err, triple.ErrBoundsViolation)

		var be *triple.BoundsError
		require.True(t, errors.As(err, &be))
		require.Equal(t, 3, be.Want)
		require.Equal(t, 2, be.Got)
	})
}

func TestStrategies_SameOutput(t *testing.T) {
	for _, st := range triple.Strategies {
		t.Run(string(st), func(t *testing.T) {
			h, err := st.Handoff()
			require.NoError(t, err)
			require.Equal(t, triple.Len, h.Len())

			var out bytes.Buffer
			require.NoError(t, h.Write(&out))
			require.Equal(t, "1 2 3 \n", out.String())
		})
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    triple.Strategy
		wantErr bool
	}{
		{in: "heap", want: triple.StrategyHeap},
		{in: "VALUE", want: triple.StrategyValue},
		{in: "buffer", want: triple.StrategyBuffer},
		{in: "stack", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := triple.ParseStrategy(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, triple.ErrUnknownStrategy)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestHandoff_UnknownStrategy(t *testing.T) {
	_, err := triple.Strategy("stack").Handoff()
	require.ErrorIs(t, err, triple.ErrUnknownStrategy)
}

func TestWrite(t *testing.T) {
	tests := []struct {
		name string
		ref  []int
		want string
	}{
		{name: "specimen", ref: []int{1, 2, 3}, want: "1 2 3 \n"},
		{name: "negatives and zero", ref: []int{-7, 0, 42}, want: "-7 0 42 \n"},
		{name: "wide values", ref: []int{2147483647, -2147483648, 10}, want: "2147483647 -2147483648 10 \n"},
		{name: "extra elements ignored", ref: []int{4, 5, 6, 7}, want: "4 5 6 \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, triple.Write(&out, tt.ref))
			require.Equal(t, tt.want, out.String())
			require.Regexp(t, outputShape, out.String())
		})
	}
}

func TestWrite_ShortReference(t *testing.T) {
	var out bytes.Buffer
	err := triple.Write(&out, []int{1, 2})
	require.ErrorIs(t, err, triple.ErrBoundsViolation)
	require.Zero(t, out.Len(), "nothing may be written on a bounds violation")
}

func TestWriteValue(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, triple.WriteValue(&out, triple.Triple{-1, 0, 1}))
	require.Equal(t, "-1 0 1 \n", out.String())
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWrite_WriterError(t *testing.T) {
	err := triple.Write(failWriter{}, triple.Produce())
	require.ErrorContains(t, err, "disk full")
}
