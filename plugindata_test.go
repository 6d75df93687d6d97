package framez

import (
	"errors"
	"slices"
	"testing"

	"pgregory.net/rapid"
)

func TestPluginData(t *testing.T) {
	t.Run("Frame Layout", func(t *testing.T) {
		d := newStack(t, "tomo", 100, 50, 200)
		pd := NewPluginData(d)
		if err := pd.Setup(PatternSinogram, 10); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if n, _ := pd.FrameCount(); n != 5 {
			t.Errorf("expected 5 frames, got %d", n)
		}
		if shape, _ := pd.FrameShape(); !slices.Equal(shape, []int{10, 100, 200}) {
			t.Errorf("expected frame shape [10 100 200], got %v", shape)
		}
		if shape, _ := pd.SliceShape(); !slices.Equal(shape, []int{50}) {
			t.Errorf("expected slice shape [50], got %v", shape)
		}
		if name, _ := pd.Pattern(); name != PatternSinogram {
			t.Errorf("expected %s, got %s", PatternSinogram, name)
		}

		f, err := pd.NewFrame(0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for k := 0; k < f.Len(); k++ {
			if c := f.Coords(k); !slices.Equal(c, []int{k}) {
				t.Errorf("slice %d: expected coords [%d], got %v", k, k, c)
			}
		}
		if len(f.Data()) != 10*100*200 {
			t.Errorf("unexpected buffer length %d", len(f.Data()))
		}
	})

	t.Run("Max Frames Capped At Slice Count", func(t *testing.T) {
		d := newStack(t, "tomo", 4, 3, 2)
		pd := NewPluginData(d)
		if err := pd.Setup(PatternProjection, AllFrames); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m, _ := pd.MaxFrames(); m != 4 {
			t.Errorf("expected effective max frames 4, got %d", m)
		}
		if n, _ := pd.FrameCount(); n != 1 {
			t.Errorf("expected 1 frame, got %d", n)
		}
	})

	t.Run("Short Last Frame", func(t *testing.T) {
		d := newStack(t, "tomo", 7, 3, 2)
		pd := NewPluginData(d)
		_ = pd.Setup(PatternProjection, 3)
		f, err := pd.NewFrame(2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f.Len() != 1 || !slices.Equal(f.Shape(), []int{1, 3, 2}) {
			t.Errorf("expected one-slice frame, got %v", f.Shape())
		}
		if !slices.Equal(f.Coords(0), []int{6}) {
			t.Errorf("expected slice 6, got %v", f.Coords(0))
		}
	})

	t.Run("Unknown Pattern Leaves Unbound", func(t *testing.T) {
		pd := NewPluginData(newStack(t, "tomo", 4, 3, 2))
		if err := pd.Setup("VOLUME_YZ", 1); !errors.Is(err, ErrPattern) {
			t.Errorf("expected ErrPattern, got %v", err)
		}
		if pd.Bound() {
			t.Error("expected plugin data to stay unbound")
		}
		if _, err := pd.FrameCount(); !errors.Is(err, ErrUnbound) {
			t.Errorf("expected ErrUnbound, got %v", err)
		}
		if _, err := pd.Frame(0); !errors.Is(err, ErrUnbound) {
			t.Errorf("expected ErrUnbound, got %v", err)
		}
	})

	t.Run("Failed Rebind Drops Old Binding", func(t *testing.T) {
		pd := NewPluginData(newStack(t, "tomo", 4, 3, 2))
		if err := pd.Setup(PatternProjection, 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := pd.Setup("VOLUME_YZ", 1); !errors.Is(err, ErrPattern) {
			t.Errorf("expected ErrPattern, got %v", err)
		}
		if pd.Bound() {
			t.Error("expected plugin data to be unbound after failed setup")
		}
		if _, err := pd.FrameCount(); !errors.Is(err, ErrUnbound) {
			t.Errorf("expected ErrUnbound, got %v", err)
		}
		if _, err := pd.Pattern(); !errors.Is(err, ErrUnbound) {
			t.Errorf("expected ErrUnbound, got %v", err)
		}
	})

	t.Run("Non Positive Max Frames", func(t *testing.T) {
		pd := NewPluginData(newStack(t, "tomo", 4, 3, 2))
		if err := pd.Setup(PatternProjection, 0); !errors.Is(err, ErrShape) {
			t.Errorf("expected ErrShape, got %v", err)
		}
		if err := pd.Setup(PatternProjection, 2); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := pd.Setup(PatternProjection, -1); !errors.Is(err, ErrShape) {
			t.Errorf("expected ErrShape, got %v", err)
		}
		if pd.Bound() {
			t.Error("expected plugin data to be unbound after failed setup")
		}
	})

	t.Run("Shape Unchanged By Frame Reads", func(t *testing.T) {
		d := newRamp(t, "ramp", 4, 3, 2)
		pd := NewPluginData(d)
		_ = pd.Setup(PatternSinogram, 2)
		before := d.Shape()
		for i := 0; i < 2; i++ {
			f, err := pd.Frame(i)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			f.Release()
		}
		if after := d.Shape(); !slices.Equal(before, after) {
			t.Errorf("expected shape %v after reads, got %v", before, after)
		}
		if n, _ := pd.FrameCount(); n != 2 {
			t.Errorf("expected 2 frames, got %d", n)
		}
	})

	t.Run("Frame Round Trip", func(t *testing.T) {
		d := newRamp(t, "ramp", 4, 3, 2)
		pd := NewPluginData(d)
		_ = pd.Setup(PatternSinogram, 1)

		f, _ := pd.NewFrame(1)
		want := make([]float64, len(f.Data()))
		for i := range want {
			want[i] = 100 + float64(i)*0.5
		}
		copy(f.Data(), want)
		if err := f.Commit(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		f.Release()

		got, err := pd.Frame(1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slices.Equal(got.Data(), want) {
			t.Errorf("expected %v, got %v", want, got.Data())
		}
		// Rows 0 and 2 are untouched.
		all := readAll(t, d)
		if all[0] != 0 || all[5] != 5 {
			t.Errorf("commit overwrote other rows: %v", all)
		}
	})

	t.Run("Release", func(t *testing.T) {
		pd := NewPluginData(newRamp(t, "ramp", 4, 3, 2))
		_ = pd.Setup(PatternProjection, 1)
		f, _ := pd.Frame(0)
		f.Release()
		if f.Data() != nil {
			t.Error("expected released frame to drop its buffer")
		}
		f.Release()
	})

	t.Run("Index Out Of Range", func(t *testing.T) {
		pd := NewPluginData(newStack(t, "tomo", 4, 3, 2))
		_ = pd.Setup(PatternProjection, 2)
		for _, i := range []int{-1, 2} {
			if _, err := pd.NewFrame(i); !errors.Is(err, ErrIndex) {
				t.Errorf("frame %d: expected ErrIndex, got %v", i, err)
			}
		}
	})

	t.Run("Read Is A Copy", func(t *testing.T) {
		d := newRamp(t, "ramp", 4, 3, 2)
		pd := NewPluginData(d)
		_ = pd.Setup(PatternSinogram, 1)

		f, err := pd.Frame(1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// Sinogram row 1: elements (a, 1, x) at a*6 + 2 + x.
		want := []float64{2, 3, 8, 9, 14, 15, 20, 21}
		if !slices.Equal(f.Data(), want) {
			t.Errorf("expected %v, got %v", want, f.Data())
		}
		f.Data()[0] = -1
		if readAll(t, d)[2] != 2 {
			t.Error("writing an uncommitted frame changed the dataset")
		}
	})

	t.Run("Commit Writes Back", func(t *testing.T) {
		d := newRamp(t, "ramp", 4, 3, 2)
		pd := NewPluginData(d)
		_ = pd.Setup(PatternSinogram, 2)

		f, _ := pd.NewFrame(0)
		for i := range f.Data() {
			f.Data()[i] = -1
		}
		if err := f.Commit(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		data := readAll(t, d)
		for i, v := range data {
			row := (i / 2) % 3
			if row < 2 && v != -1 {
				t.Errorf("element %d in committed rows = %v", i, v)
			}
			if row == 2 && v != float64(i) {
				t.Errorf("element %d outside the frame changed to %v", i, v)
			}
		}
	})

	t.Run("Foreign Frame Rejected", func(t *testing.T) {
		d := newRamp(t, "ramp", 4, 3, 2)
		a, b := NewPluginData(d), NewPluginData(d)
		_ = a.Setup(PatternProjection, 1)
		_ = b.Setup(PatternProjection, 1)
		f, _ := a.NewFrame(0)
		if err := b.WriteFrame(f); !errors.Is(err, ErrIndex) {
			t.Errorf("expected ErrIndex, got %v", err)
		}
	})

	t.Run("Multi Axis Slice Order", func(t *testing.T) {
		d := newStack(t, "xrf", 2, 3, 4, 5)
		_ = d.AddPattern(PatternSpectrum, Pattern{CoreDir: []int{3}, SliceDir: []int{0, 1, 2}})
		pd := NewPluginData(d)
		if err := pd.Setup(PatternSpectrum, 5); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		f, _ := pd.NewFrame(1)
		// Flat slice 5 is (0, 1, 1) with the last slice axis fastest.
		if !slices.Equal(f.Coords(0), []int{0, 1, 1}) {
			t.Errorf("expected [0 1 1], got %v", f.Coords(0))
		}
		if !slices.Equal(f.CoreShape(), []int{5}) {
			t.Errorf("expected core shape [5], got %v", f.CoreShape())
		}
	})
}

func TestFrameStrategies(t *testing.T) {
	t.Run("Balanced Lengths", func(t *testing.T) {
		var lens []int
		for i := 0; i < (BalancedFrames{}).FrameCount(10, 4); i++ {
			_, n := BalancedFrames{}.FrameRange(i, 10, 4)
			lens = append(lens, n)
		}
		if !slices.Equal(lens, []int{4, 3, 3}) {
			t.Errorf("expected [4 3 3], got %v", lens)
		}
	})

	t.Run("Set Strategy Relayouts", func(t *testing.T) {
		pd := NewPluginData(newStack(t, "tomo", 10, 2, 2))
		_ = pd.Setup(PatternProjection, 4)
		pd.SetStrategy(BalancedFrames{})
		f, _ := pd.NewFrame(2)
		if f.Len() != 3 || !slices.Equal(f.Coords(0), []int{7}) {
			t.Errorf("expected frame 2 to hold slices 7..9, got len %d from %v", f.Len(), f.Coords(0))
		}
	})

	t.Run("Exact Cover", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			slicesN := rapid.IntRange(1, 500).Draw(t, "slices")
			maxFrames := rapid.IntRange(1, 600).Draw(t, "maxFrames")
			for _, s := range []FrameStrategy{ContiguousFrames{}, BalancedFrames{}} {
				covered := make([]int, slicesN)
				next := 0
				frames := s.FrameCount(slicesN, maxFrames)
				for i := 0; i < frames; i++ {
					first, n := s.FrameRange(i, slicesN, maxFrames)
					if first != next {
						t.Fatalf("%T frame %d starts at %d, want %d", s, i, first, next)
					}
					if n < 1 || n > maxFrames {
						t.Fatalf("%T frame %d has %d slices, max %d", s, i, n, maxFrames)
					}
					for k := first; k < first+n; k++ {
						covered[k]++
					}
					next = first + n
				}
				for k, c := range covered {
					if c != 1 {
						t.Fatalf("%T covers slice %d %d times", s, k, c)
					}
				}
			}
		})
	})
}
