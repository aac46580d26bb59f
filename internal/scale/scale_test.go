package scale

import "testing"

func TestDestinationSize(t *testing.T) {
	tests := []struct {
		name          string
		factor        Factor
		width, height int32
		transform     int32
		wantW, wantH  int32
	}{
		{"identity", Factor(120), 2560, 1440, 0, 2560, 1440},
		{"1.5x full hd", Factor(180), 1920, 1080, 0, 1280, 720},
		{"1.25x full hd", Factor(150), 1920, 1080, 0, 1536, 864},
		{"2x", Factor(240), 3840, 2160, 0, 1920, 1080},
		{"rounds to nearest", Factor(180), 1921, 1081, 0, 1281, 721},
		{"rotated 90 swaps axes", Factor(120), 1920, 1080, 1, 1080, 1920},
		{"rotated 270 swaps axes", Factor(180), 1920, 1080, 3, 720, 1280},
		{"flipped 90 swaps axes", Factor(120), 1920, 1080, 5, 1080, 1920},
		{"flipped 180 keeps axes", Factor(120), 1920, 1080, 6, 1920, 1080},
		{"unknown factor is identity", Factor(0), 800, 600, 0, 800, 600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := tt.factor.DestinationSize(tt.width, tt.height, tt.transform)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("DestinationSize(%d, %d, %d) = %dx%d, want %dx%d",
					tt.width, tt.height, tt.transform, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestRoundTripWithinOnePixel(t *testing.T) {
	factors := []Factor{120, 150, 180, 240, 288}
	sizes := []int32{1366, 1920, 2560, 3840}

	for _, f := range factors {
		for _, px := range sizes {
			logical := f.apply(px)
			back := (int64(logical)*int64(f) + denominator/2) / denominator
			diff := back - int64(px)
			if diff < -1 || diff > 1 {
				t.Errorf("factor %v: %d px -> %d logical -> %d px, drift %d", f, px, logical, back, diff)
			}
		}
	}
}

func TestFromInteger(t *testing.T) {
	tests := []struct {
		in   int32
		want Factor
	}{
		{1, 120},
		{2, 240},
		{3, 360},
		{0, 120},
		{-1, 120},
	}

	for _, tt := range tests {
		if got := FromInteger(tt.in); got != tt.want {
			t.Errorf("FromInteger(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestString(t *testing.T) {
	if s := Factor(180).String(); s != "1.5" {
		t.Errorf("Factor(180).String() = %q, want %q", s, "1.5")
	}
	if s := Factor(120).String(); s != "1" {
		t.Errorf("Factor(120).String() = %q, want %q", s, "1")
	}
}
