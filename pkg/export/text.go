package export

import (
	"image/color"
	"image/draw"
	"math"
	"strings"
	"unicode"

	"github.com/go-text/render"
	"github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const minTextSize = 10

// shaper lays out text with bidi and script segmentation, so Arabic names
// get joined letter forms and right-to-left order. Not safe for concurrent
// use.
type shaper struct {
	seg shaping.Segmenter
	hb  shaping.HarfbuzzShaper
}

type oneFace struct{ face *font.Face }

func (f oneFace) ResolveFace(rune) *font.Face { return f.face }

func (s *shaper) shape(text string, face *font.Face, size int) (shaping.Line, int) {
	rs := []rune(text)
	if len(rs) == 0 {
		return nil, 0
	}
	in := shaping.Input{Text: rs, RunEnd: len(rs), Face: face, Size: fixed.I(size)}
	runs := s.seg.Split(in, oneFace{face})
	out := make(shaping.Line, len(runs))
	var w fixed.Int26_6
	for i, run := range runs {
		out[i] = s.hb.Shape(run)
		w += out[i].Advance
	}
	return out, w.Ceil()
}

// fit shrinks l's font until it fits maxW, then truncates with an ellipsis
// at the smallest size.
func (s *shaper) fit(l line) (shaping.Line, int, int) {
	size := l.size
	runs, w := s.shape(l.text, l.face, size)
	if w > l.maxW {
		size = max(minTextSize, int(math.Floor(float64(size)*float64(l.maxW)/float64(w))))
		runs, w = s.shape(l.text, l.face, size)
	}
	rs := []rune(l.text)
	for w > l.maxW && len(rs) > 1 {
		rs = rs[:len(rs)-1]
		runs, w = s.shape(strings.TrimSpace(string(rs))+"…", l.face, size)
	}
	return runs, w, size
}

func (s *shaper) draw(img draw.Image, l line, ink color.Color) {
	runs, w, size := s.fit(l)
	x := l.x
	if l.centered {
		x = (cardW - w) / 2
	}
	pen := &render.Renderer{FontSize: float32(size), Color: ink}
	for _, run := range runs {
		x = pen.DrawShapedRunAt(run, img, x, l.baseline)
	}
}

// missingRunes lists the characters of text that face has no glyph for.
// Spaces and format characters are not drawn and never missing.
func missingRunes(face *font.Face, text string) []rune {
	var out []rune
	for _, r := range text {
		if unicode.IsSpace(r) || unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			continue
		}
		if _, ok := face.NominalGlyph(r); !ok {
			out = append(out, r)
		}
	}
	return out
}

func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Slug turns a display name into a file-name-safe token: accents removed,
// lower case, runs of anything but letters and digits collapsed to "-".
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(stripMarks(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Filename is the download name of an invitation card for guestName.
func Filename(guestName string, f Format) string {
	slug := Slug(guestName)
	if slug == "" {
		slug = "guest"
	}
	return "invitation-" + slug + "." + string(f)
}
