package export

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
)

const pdfCardImage = "card"

// writePDF emits a single page the size of the card holding the rendered
// card image. Shaping is done once by the PNG renderer, so both formats
// show the same text.
func writePDF(w io.Writer, c Card, img image.Image) error {
	var raster bytes.Buffer
	if err := png.Encode(&raster, img); err != nil {
		return fmt.Errorf("encoding card image: %w", err)
	}

	doc := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: cardW, Ht: cardH},
	})
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	doc.SetTitle("Invitation - "+strings.TrimSpace(c.GuestName), true)
	doc.SetSubject(strings.TrimSpace(c.EventName), true)
	doc.SetKeywords(strings.TrimSpace(c.Code), true)
	doc.SetCreator("invocca", false)
	doc.AddPage()

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	doc.RegisterImageOptionsReader(pdfCardImage, opts, &raster)
	doc.ImageOptions(pdfCardImage, 0, 0, cardW, cardH, false, opts, 0, "")

	if err := doc.Output(w); err != nil {
		return fmt.Errorf("writing pdf: %w", err)
	}
	return nil
}
