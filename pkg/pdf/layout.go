package pdf

import (
	"github.com/go-pdf/fpdf"
)

// Page geometry in points.
const (
	PageWidth      = 612.0
	PageHeight     = 792.0
	Margin         = 50.0
	LineSpacing    = 20.0
	SectionSpacing = 35.0
	ContentWidth   = PageWidth - 2*Margin
	ImageMaxWidth  = ContentWidth
	ImageMaxHeight = 400.0

	signatureBoxWidth  = ContentWidth / 2.5
	signatureBoxHeight = 60.0
)

type fontStyle struct {
	family string
	style  string
	size   float64
	gray   int
}

var (
	titleFont   = fontStyle{"Helvetica", "B", 18, 0}
	sectionFont = fontStyle{"Helvetica", "B", 14, 0}
	headerFont  = fontStyle{"Helvetica", "B", 11, 0}
	bodyFont    = fontStyle{"Helvetica", "", 11, 0x44}
	monoFont    = fontStyle{"Courier", "", 11, 0x44}
)

// layout tracks the vertical write position on the current page. Text is
// placed on its baseline at y.
type layout struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
	y   float64
}

func newLayout(r *renderer) *layout {
	l := &layout{pdf: r.pdf, tr: r.tr}
	l.startNewPage()
	return l
}

func (l *layout) startNewPage() {
	l.pdf.AddPage()
	l.y = Margin
}

// prepare starts a new page when space does not fit above the bottom margin.
func (l *layout) prepare(space float64) {
	if l.y+space > PageHeight-Margin {
		l.startNewPage()
	}
}

func (l *layout) advance(space float64) {
	l.y += space
}

func (l *layout) text(x, y float64, s string, f fontStyle) {
	l.pdf.SetFont(f.family, f.style, f.size)
	l.pdf.SetTextColor(f.gray, f.gray, f.gray)
	l.pdf.Text(x, y, l.tr(s))
}

func (l *layout) centeredText(y float64, s string, f fontStyle) {
	l.pdf.SetFont(f.family, f.style, f.size)
	w := l.pdf.GetStringWidth(l.tr(s))
	l.text((PageWidth-w)/2, y, s, f)
}

func (l *layout) line(x1, y1, x2, y2 float64) {
	l.pdf.SetDrawColor(0x44, 0x44, 0x44)
	l.pdf.SetLineWidth(0.5)
	l.pdf.Line(x1, y1, x2, y2)
}

// fitScale returns the factor that fits w x h inside the image box without upscaling.
func fitScale(w, h float64) float64 {
	scale := 1.0
	if w > ImageMaxWidth {
		scale = ImageMaxWidth / w
	}
	if h > ImageMaxHeight {
		scale = min(scale, ImageMaxHeight/h)
	}
	return scale
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
