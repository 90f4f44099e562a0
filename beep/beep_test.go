package beep

import "testing"

func TestSamples(t *testing.T) {
	for _, tt := range []struct {
		sound Sound
		ch    int
		want  int
	}{
		{Start, 1, 8820},
		{Start, 2, 17640},
		{Stop, 2, 17640},
		// two 80ms tones around a 50ms gap
		{Error, 1, 3528*2 + 2205},
	} {
		t.Run(tt.sound.String(), func(t *testing.T) {
			got := Samples(tt.sound, tt.ch)
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestSamplesShape(t *testing.T) {
	s := Samples(Start, 2)
	if s[0] != 0 {
		t.Errorf("first sample = %d, want 0", s[0])
	}
	var peak int16
	for i := 0; i < len(s); i += 2 {
		if s[i] != s[i+1] {
			t.Fatalf("channels differ at frame %d", i/2)
		}
		peak = max(peak, s[i])
	}
	if peak < 10000 || peak > 16384 {
		t.Errorf("peak = %d", peak)
	}
	tail := s[len(s)-200:]
	for _, v := range tail {
		if v > 100 || v < -100 {
			t.Fatalf("tone did not decay: %d", v)
		}
	}
}

func TestErrorGapIsSilent(t *testing.T) {
	s := Samples(Error, 1)
	gap := s[3528 : 3528+2205]
	for i, v := range gap {
		if v != 0 {
			t.Fatalf("gap sample %d = %d", i, v)
		}
	}
}

func TestUnknownSound(t *testing.T) {
	if Samples(Sound(42), 1) != nil {
		t.Error("unknown sound rendered samples")
	}
	if Samples(Start, 0) != nil {
		t.Error("zero channels rendered samples")
	}
}

func TestDisabledPlayIsNoop(t *testing.T) {
	Disable()
	defer Enable()
	Play(Start)
	Play(Error)
}
