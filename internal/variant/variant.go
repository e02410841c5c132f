// Package variant derives deterministic, filesystem-safe tags for
// processing-option combinations so rendition files of one run never
// collide and never overflow path-length limits.
package variant

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
)

// Format selects one output encode contributing to the variant identity.
type Format struct {
	Ext        string `json:"ext"`
	Bitrate    string `json:"bitrate,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	BitDepth   int    `json:"bit_depth,omitempty"`
}

// Descriptor enumerates every processing choice that affects output bytes.
// It is a pure value object: equal descriptors always produce equal tags.
type Descriptor struct {
	Voicing    string   `json:"voicing,omitempty"`
	Strength   int      `json:"strength,omitempty"`
	TargetLUFS float64  `json:"target_lufs,omitempty"`
	TruePeakDB float64  `json:"true_peak_db,omitempty"`
	Width      float64  `json:"width,omitempty"`
	BassMonoHz int      `json:"bass_mono_hz,omitempty"`
	Formats    []Format `json:"formats,omitempty"`
}

// extensionBudget reserves room for the longest rendition extension
// (".flac" plus a separator) when checking the total-length bound.
const extensionBudget = 12

// digestHexLen is the length of the hashed fallback suffix (~40 bits).
// Collisions are tolerable because tags are scoped to one run's directory.
const digestHexLen = 10

// BuildTag renders d into a short tag safe to embed next to baseName in a
// path component. The natural form joins fixed-order field tokens with
// underscores; when it would exceed maxTagLen, or baseName plus tag plus
// extension room would exceed maxTotalLen, a truncated-prefix + digest
// form is used instead.
func BuildTag(d Descriptor, baseName string, maxTagLen, maxTotalLen int) string {
	tokens := d.tokens()
	tag := strings.Join(tokens, "_")
	if len(tag) > maxTagLen || len(baseName)+len(tag)+extensionBudget > maxTotalLen {
		tag = fallbackTag(d, tokens, maxTagLen)
	}
	if maxTagLen > 0 && len(tag) > maxTagLen {
		tag = tag[:maxTagLen]
	}
	return tag
}

// tokens renders every populated field in a fixed order, so descriptors
// with equal field values render identically however they were built.
func (d Descriptor) tokens() []string {
	var out []string
	if d.Voicing != "" {
		out = append(out, "V-"+sanitizeToken(d.Voicing))
	}
	if d.Strength != 0 {
		out = append(out, "S"+strconv.Itoa(d.Strength))
	}
	if d.TargetLUFS != 0 {
		out = append(out, "L"+formatFloat(d.TargetLUFS))
	}
	if d.TruePeakDB != 0 {
		out = append(out, "TP"+formatFloat(d.TruePeakDB))
	}
	if d.Width != 0 {
		out = append(out, "W"+formatFloat(d.Width))
	}
	if d.BassMonoHz != 0 {
		out = append(out, "BM"+strconv.Itoa(d.BassMonoHz))
	}
	for _, f := range d.Formats {
		out = append(out, "F"+sanitizeToken(formatToken(f)))
	}
	return out
}

func formatToken(f Format) string {
	tok := f.Ext
	if f.Bitrate != "" {
		tok += "-" + f.Bitrate
	}
	if f.SampleRate != 0 {
		tok += "-r" + strconv.Itoa(f.SampleRate)
	}
	if f.BitDepth != 0 {
		tok += "-b" + strconv.Itoa(f.BitDepth)
	}
	return tok
}

// fallbackTag keeps the first few tokens for readability and appends a
// digest of the whole descriptor for uniqueness.
func fallbackTag(d Descriptor, tokens []string, maxTagLen int) string {
	digest := Digest(d)
	prefix := ""
	for i, tok := range tokens {
		if i == 3 {
			break
		}
		cand := prefix
		if cand != "" {
			cand += "_"
		}
		cand += tok
		if len(cand)+2+len(digest) > maxTagLen {
			break
		}
		prefix = cand
	}
	if prefix == "" {
		return digest
	}
	return prefix + "__" + digest
}

// Digest returns a short hex digest over the canonical serialization of d.
func Digest(d Descriptor) string {
	b, err := json.Marshal(d)
	if err != nil {
		// Descriptor contains only marshalable fields.
		b = []byte(formatFloat(d.Width) + d.Voicing)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:digestHexLen]
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// sanitizeToken maps a free-form value onto the tag alphabet
// [A-Za-z0-9._-].
func sanitizeToken(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
