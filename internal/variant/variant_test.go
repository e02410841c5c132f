package variant

import (
	"strings"
	"testing"
)

func sampleDescriptor() Descriptor {
	return Descriptor{
		Voicing:    "warm",
		Strength:   80,
		TargetLUFS: -14,
		TruePeakDB: -1,
		Width:      1.12,
		BassMonoHz: 120,
		Formats:    []Format{{Ext: "mp3", Bitrate: "320k"}, {Ext: "flac", BitDepth: 24}},
	}
}

func TestBuildTagDeterministic(t *testing.T) {
	d := sampleDescriptor()
	a := BuildTag(d, "mix", 80, 200)
	b := BuildTag(d, "mix", 80, 200)
	if a != b {
		t.Fatalf("same descriptor produced different tags: %q vs %q", a, b)
	}
	if a == "" {
		t.Fatalf("expected non-empty tag")
	}
}

func TestBuildTagNaturalForm(t *testing.T) {
	tag := BuildTag(sampleDescriptor(), "mix", 120, 250)
	want := "V-warm_S80_L-14_TP-1_W1.12_BM120_Fmp3-320k_Fflac-b24"
	if tag != want {
		t.Fatalf("unexpected natural tag:\n got %q\nwant %q", tag, want)
	}
}

func TestBuildTagAlphabet(t *testing.T) {
	d := sampleDescriptor()
	d.Voicing = "warm & fuzzy/loud"
	tag := BuildTag(d, "mix", 120, 250)
	for _, r := range tag {
		ok := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
			r == '.' || r == '_' || r == '-'
		if !ok {
			t.Fatalf("tag %q contains unsafe rune %q", tag, r)
		}
	}
}

func TestBuildTagFallbackOnTagBudget(t *testing.T) {
	d := sampleDescriptor()
	tag := BuildTag(d, "mix", 30, 200)
	if len(tag) > 30 {
		t.Fatalf("tag %q exceeds budget 30", tag)
	}
	if !strings.Contains(tag, "__") {
		t.Fatalf("expected hashed fallback form, got %q", tag)
	}
	parts := strings.SplitN(tag, "__", 2)
	if len(parts[1]) != digestHexLen {
		t.Fatalf("expected %d-hex digest suffix, got %q", digestHexLen, parts[1])
	}
}

func TestBuildTagFallbackOnTotalBudget(t *testing.T) {
	d := sampleDescriptor()
	base := strings.Repeat("x", 120)
	tag := BuildTag(d, base, 120, 140)
	if !strings.Contains(tag, "__") && len(tag) > digestHexLen {
		t.Fatalf("expected fallback when base name eats the budget, got %q", tag)
	}
	if len(base)+len(tag)+extensionBudget > 140+120 {
		t.Fatalf("combined length unreasonably large")
	}
}

func TestBuildTagDistinctness(t *testing.T) {
	seen := make(map[string]Descriptor, 12000)
	voicings := []string{"warm", "bright", "flat", "tape", "club"}
	widths := []float64{0.9, 1.0, 1.12, 1.3}
	for _, v := range voicings {
		for s := 1; s <= 100; s++ {
			for _, w := range widths {
				for _, lufs := range []float64{-14, -9} {
					for _, tp := range []float64{-1, -0.5, -2} {
						d := Descriptor{Voicing: v, Strength: s, Width: w, TargetLUFS: lufs, TruePeakDB: tp}
						tag := BuildTag(d, "mix", 64, 200)
						if prev, dup := seen[tag]; dup {
							t.Fatalf("collision: %+v and %+v both map to %q", prev, d, tag)
						}
						seen[tag] = d
					}
				}
			}
		}
	}
	if len(seen) < 10000 {
		t.Fatalf("expected at least 10000 distinct combinations, got %d", len(seen))
	}
}

func TestDigestIgnoresNothing(t *testing.T) {
	a := sampleDescriptor()
	b := sampleDescriptor()
	b.Formats[1].BitDepth = 16
	if Digest(a) == Digest(b) {
		t.Fatalf("digest should differ when any field differs")
	}
}

func TestBuildTagEmptyDescriptor(t *testing.T) {
	tag := BuildTag(Descriptor{}, "mix", 40, 200)
	if tag != "" {
		t.Fatalf("empty descriptor should render an empty tag, got %q", tag)
	}
}
