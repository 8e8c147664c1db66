// Package export renders invitation cards to PNG or PDF files.
package export

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/go-fonts/dejavu/dejavusans"
	"github.com/go-fonts/dejavu/dejavusansbold"
	"github.com/go-text/typesetting/font"
)

const (
	cardW   = 600
	cardH   = 360
	margin  = 40
	frame   = 8
	cell    = 8
	pattern = 8
)

// Format is an export file format.
type Format string

const (
	FormatPNG Format = "png"
	FormatPDF Format = "pdf"
)

// ParseFormat accepts "png" or "pdf" in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatPNG, FormatPDF:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (want png or pdf)", s)
	}
}

// ErrUnsupportedText is wrapped by errors for card text the font has no
// glyphs for.
var ErrUnsupportedText = errors.New("export: text not supported by the card font")

// UnsupportedTextError names the card field and the characters that cannot
// be drawn.
type UnsupportedTextError struct {
	Field string
	Runes []rune
}

func (e *UnsupportedTextError) Error() string {
	return fmt.Sprintf("export: %s contains characters the card font cannot draw: %q", e.Field, string(e.Runes))
}

func (e *UnsupportedTextError) Unwrap() error { return ErrUnsupportedText }

var (
	defaultBackground = color.RGBA{R: 0xfd, G: 0xf6, B: 0xe3, A: 0xff}
	defaultText       = color.RGBA{R: 0x10, G: 0x1f, B: 0x38, A: 0xff}
)

// Card is what an invitation card shows. Colors are #RRGGBB; invalid or
// empty colors fall back to the house palette.
type Card struct {
	EventName   string
	GuestName   string
	NumOfPeople int
	Code        string
	Background  string
	TextColor   string
}

// ParseColor parses #RRGGBB, returning fallback on malformed input.
func ParseColor(hex string, fallback color.RGBA) color.RGBA {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) != 6 {
		return fallback
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return fallback
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}

func (c Card) colors() (bg, fg color.RGBA) {
	return ParseColor(c.Background, defaultBackground), ParseColor(c.TextColor, defaultText)
}

// Renderer draws cards with a regular and a bold face. It is safe for
// concurrent use.
type Renderer struct {
	mu      sync.Mutex
	regular *font.Face
	bold    *font.Face
	shaper  shaper
}

// NewRenderer parses TrueType or OpenType fonts for card text. boldTTF may
// be nil to draw every line in the regular face.
func NewRenderer(regularTTF, boldTTF []byte) (*Renderer, error) {
	regular, err := font.ParseTTF(bytes.NewReader(regularTTF))
	if err != nil {
		return nil, fmt.Errorf("parsing regular font: %w", err)
	}
	bold := regular
	if len(boldTTF) > 0 {
		if bold, err = font.ParseTTF(bytes.NewReader(boldTTF)); err != nil {
			return nil, fmt.Errorf("parsing bold font: %w", err)
		}
	}
	return &Renderer{regular: regular, bold: bold}, nil
}

var defaultRenderer = sync.OnceValues(func() (*Renderer, error) {
	return NewRenderer(dejavusans.TTF, dejavusansbold.TTF)
})

// Default returns the renderer using the embedded DejaVu Sans faces, which
// cover Latin, Greek, Cyrillic, Arabic and Hebrew.
func Default() (*Renderer, error) { return defaultRenderer() }

// Render draws c with the default renderer.
func Render(c Card) (*image.RGBA, error) {
	r, err := Default()
	if err != nil {
		return nil, err
	}
	return r.Render(c)
}

// Encode writes c to w in format f with the default renderer.
func Encode(w io.Writer, c Card, f Format) error {
	r, err := Default()
	if err != nil {
		return err
	}
	return r.Encode(w, c, f)
}

// Render draws the card. It fails with an *UnsupportedTextError when a
// field holds characters the faces have no glyphs for.
func (r *Renderer) Render(c Card) (*image.RGBA, error) {
	lines := r.layout(c)
	for _, l := range lines {
		if missing := missingRunes(l.face, l.text); len(missing) > 0 {
			return nil, &UnsupportedTextError{Field: l.field, Runes: missing}
		}
	}

	bg, fg := c.colors()
	img := image.NewRGBA(image.Rect(0, 0, cardW, cardH))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: bg}, image.Point{}, draw.Src)
	ink := &image.Uniform{C: fg}
	for _, b := range append(borders(), fingerprint(c.Code, cardW-margin-pattern*cell, cardH-margin-pattern*cell)...) {
		draw.Draw(img, b, ink, image.Point{}, draw.Src)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range lines {
		r.shaper.draw(img, l, fg)
	}
	return img, nil
}

// Encode writes the card to w in format f.
func (r *Renderer) Encode(w io.Writer, c Card, f Format) error {
	switch f {
	case FormatPNG, FormatPDF:
	default:
		return fmt.Errorf("unsupported export format %q", f)
	}
	img, err := r.Render(c)
	if err != nil {
		return err
	}
	if f == FormatPDF {
		return writePDF(w, c, img)
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encoding png: %w", err)
	}
	return nil
}

// line is one run of card text. Centered lines ignore x.
type line struct {
	field    string
	text     string
	face     *font.Face
	size     int
	baseline int
	x        int
	maxW     int
	centered bool
}

func (r *Renderer) layout(c Card) []line {
	body := cardW - 2*margin
	return []line{
		{field: "event name", text: strings.TrimSpace(c.EventName), face: r.bold, size: 30, baseline: 86, maxW: body, centered: true},
		{text: "You are invited", face: r.regular, size: 16, baseline: 136, maxW: body, centered: true},
		{field: "guest name", text: strings.TrimSpace(c.GuestName), face: r.bold, size: 28, baseline: 182, maxW: body, centered: true},
		{text: fmt.Sprintf("Guests: %d", c.NumOfPeople), face: r.regular, size: 20, baseline: 222, maxW: body, centered: true},
		{field: "code", text: "Code: " + strings.TrimSpace(c.Code), face: r.regular, size: 16, baseline: cardH - margin - 8, x: margin, maxW: body - pattern*cell - 16},
	}
}

func borders() []image.Rectangle {
	return []image.Rectangle{
		image.Rect(0, 0, cardW, frame),
		image.Rect(0, cardH-frame, cardW, cardH),
		image.Rect(0, 0, frame, cardH),
		image.Rect(cardW-frame, 0, cardW, cardH),
	}
}

// fingerprint draws an 8x8 block pattern derived from the invitation code so
// door staff can match a card to its code at a glance.
func fingerprint(code string, x, y int) []image.Rectangle {
	if strings.TrimSpace(code) == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(code))
	var out []image.Rectangle
	for row := range pattern {
		for col := range pattern {
			if sum[row]&(1<<col) != 0 {
				px, py := x+col*cell, y+row*cell
				out = append(out, image.Rect(px, py, px+cell, py+cell))
			}
		}
	}
	return out
}
