// Package pdf renders saved form entries into a paginated Letter-size PDF.
package pdf

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-pdf/fpdf"
	"github.com/sthao/quickform/pkg/db"
	"github.com/sthao/quickform/pkg/errors"
)

// File name prefixes and the share cache subdirectory.
const (
	SavePrefix  = "Exported_Forms"
	SharePrefix = "QuickForm_Export"
	SharedDir   = "shared_pdfs"

	fileTimestamp = "20060102_150405"

	emptyValue      = "N/A"
	defaultQuantity = "0"
)

// FileName returns the export file name for prefix at now.
func FileName(prefix string, now time.Time) string {
	return prefix + "_" + now.Format(fileTimestamp) + ".pdf"
}

// Exporter draws form records onto PDF pages
type Exporter struct{}

// renderer holds the state of one document being drawn.
type renderer struct {
	pdf      *fpdf.Fpdf
	tr       func(string) string
	imageSeq int
}

// NewExporter creates a new PDF exporter
func NewExporter() *Exporter {
	return &Exporter{}
}

// Render writes records as one PDF document to w and returns the page count.
// Each record is numbered by its 1-based position in records.
func (e *Exporter) Render(w io.Writer, records []db.FormRecord) (int, error) {
	if len(records) == 0 {
		return 0, errors.ErrNoEntries
	}
	slog.Info("pdf_render_start", "entry_count", len(records))

	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetMargins(Margin, Margin, Margin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("QuickForm", true)
	r := &renderer{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	for i := range records {
		rec := &records[i]
		seq := strconv.Itoa(i + 1)
		switch rec.Entry.FormType {
		case db.FormTypeStations:
			r.drawStations(rec, seq)
		default:
			r.drawTransfer(rec, seq)
		}
		if pdf.Err() {
			slog.Error("pdf_render_failed", "entry_id", rec.Entry.ID, "error", pdf.Error())
			return 0, errors.Wrap(pdf.Error(), "failed to render entry")
		}
	}

	pages := pdf.PageCount()
	if err := pdf.Output(w); err != nil {
		slog.Error("pdf_output_failed", "error", err)
		return 0, errors.Wrap(err, "failed to write pdf")
	}

	slog.Info("pdf_render_complete", "entry_count", len(records), "pages", pages)
	return pages, nil
}

// WriteFile renders records into dir under FileName(prefix, now).
func (e *Exporter) WriteFile(dir, prefix string, records []db.FormRecord, now time.Time) (string, int, error) {
	if len(records) == 0 {
		return "", 0, errors.ErrNoEntries
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, errors.Wrap(err, "failed to create export directory")
	}

	path := filepath.Join(dir, FileName(prefix, now))
	f, err := os.Create(path)
	if err != nil {
		slog.Error("pdf_file_create_failed", "path", path, "error", err)
		return "", 0, errors.Wrap(err, "failed to create pdf file")
	}

	pages, err := e.Render(f, records)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "failed to close pdf file")
	}
	if err != nil {
		os.Remove(path)
		return "", 0, err
	}

	slog.Info("pdf_file_written", "path", path, "pages", pages)
	return path, pages, nil
}

func (r *renderer) drawTransfer(rec *db.FormRecord, seq string) {
	entry := &rec.Entry

	pickup := newLayout(r)
	drawPageHeader(pickup, entryTitle(entry.Pickup.Date, seq, "Pickup"))
	r.drawTransferSection(pickup, "Pickup Information", &entry.Pickup, rec.ImagesOf(db.ImageTypePickup, db.NoSection))

	dropoff := newLayout(r)
	drawPageHeader(dropoff, entryTitle(entry.Dropoff.Date, seq, "Drop-off"))
	r.drawTransferSection(dropoff, "Drop-off Information", &entry.Dropoff, rec.ImagesOf(db.ImageTypeDropoff, db.NoSection))
}

func (r *renderer) drawTransferSection(l *layout, title string, d *db.TransferDetails, images []db.FormImage) {
	drawSubHeader(l, title)
	drawInfo(l, d.FacilityName, d.DriverName, d.DriverNumber, d.Date, d.Run)

	l.prepare(LineSpacing)
	l.text(Margin, l.y, "Item Details", headerFont)
	l.advance(LineSpacing)
	for _, item := range []struct{ name, bags, quantity string }{
		{"Frozen", d.FrozenBags, d.FrozenQuantity},
		{"Refrigerated", d.RefrigeratedBags, d.RefrigeratedQuantity},
		{"Room Temp", d.RoomTempBags, d.RoomTempQuantity},
	} {
		l.prepare(LineSpacing)
		row := fmt.Sprintf("%-15s Bags: %3s | Quantity: %3s", item.name, quantity(item.bags), quantity(item.quantity))
		l.text(Margin+10, l.y, row, monoFont)
		l.advance(LineSpacing)
	}
	l.advance(SectionSpacing)

	r.drawSignature(l, "Print Name:", d.PrintSignatureOne, d.SignatureOne, "Signature #1")

	drawValueRows(l, [][2]string{
		{"Boxes", quantity(d.BoxesQuantity)},
		{"Colored Bags", quantity(d.ColoredBagsQuantity)},
		{"Mails", quantity(d.MailsQuantity)},
		{"Money Bags", quantity(d.MoneyBagsQuantity)},
		{"Others", quantity(d.OthersQuantity)},
	})
	l.advance(SectionSpacing)

	r.drawSignature(l, "Print Name:", d.PrintSignatureTwo, d.SignatureTwo, "Signature #2")
	r.drawImages(l, images)
}

func (r *renderer) drawStations(rec *db.FormRecord, seq string) {
	s := &rec.Entry.Stations

	l := newLayout(r)
	drawPageHeader(l, entryTitle(s.Date, seq, "Stations"))
	drawSubHeader(l, "Stations Information")
	drawInfo(l, s.FacilityName, s.DriverName, s.DriverNumber, s.Date, s.Run)

	for i, sec := range rec.Sections {
		l.prepare(LineSpacing)
		l.text(Margin, l.y, fmt.Sprintf("Item Section %d", i+1), headerFont)
		l.advance(LineSpacing)

		drawValueRows(l, [][2]string{
			{"Run #", orDefault(sec.SectionRunNumber, emptyValue)},
			{"Totes", quantity(sec.Totes)},
			{"Add-ons", quantity(sec.AddOns)},
			{"Extra", quantity(sec.Extra)},
		})
		l.advance(LineSpacing)

		r.drawSignature(l, "Print Name:", sec.PrintName, sec.Signature, "Signature")
		r.drawImages(l, rec.ImagesOf(db.ImageTypeStations, sec.SectionIndex))
	}

	r.drawImages(l, rec.ImagesOf(db.ImageTypeStations, db.NoSection))
}

// entryTitle is the page header of one entry page. An empty date prints N/A.
func entryTitle(date, seq, kind string) string {
	return fmt.Sprintf("Form Entry: %s-%s (%s)", orDefault(date, emptyValue), seq, kind)
}

func drawPageHeader(l *layout, title string) {
	l.prepare(SectionSpacing * 1.5)
	l.centeredText(l.y, title, titleFont)
	l.advance(SectionSpacing * 1.5)
}

func drawSubHeader(l *layout, title string) {
	l.prepare(LineSpacing * 1.5)
	l.text(Margin, l.y, title, sectionFont)
	l.advance(LineSpacing * 1.5)
}

// drawInfo draws facility and driver on the left, date and run on the right.
func drawInfo(l *layout, facility, driverName, driverNumber, date, run string) {
	l.prepare(LineSpacing * 2)
	y := l.y

	l.text(Margin, y, "Facility:", headerFont)
	l.text(Margin+60, y, orDefault(facility, emptyValue), bodyFont)
	l.text(Margin, y+LineSpacing, "Driver:", headerFont)
	l.text(Margin+60, y+LineSpacing, fmt.Sprintf("%s (#%s)", driverName, driverNumber), bodyFont)

	col2 := Margin + ContentWidth/2
	l.text(col2, y, "Date:", headerFont)
	l.text(col2+50, y, orDefault(date, emptyValue), bodyFont)
	l.text(col2, y+LineSpacing, "Run #:", headerFont)
	l.text(col2+50, y+LineSpacing, orDefault(run, emptyValue), bodyFont)

	l.advance(LineSpacing*2 + SectionSpacing)
}

// drawValueRows draws label/value rows with values aligned in one column.
func drawValueRows(l *layout, rows [][2]string) {
	for _, row := range rows {
		l.prepare(LineSpacing)
		l.text(Margin+10, l.y, row[0]+":", bodyFont)
		l.text(Margin+100, l.y, row[1], bodyFont)
		l.advance(LineSpacing)
	}
}

func (r *renderer) drawSignature(l *layout, nameLabel, printedName string, signature []byte, label string) {
	l.prepare(LineSpacing + signatureBoxHeight + LineSpacing*2)
	l.text(Margin, l.y, nameLabel, headerFont)
	l.text(Margin+80, l.y, orDefault(printedName, emptyValue), bodyFont)
	l.advance(LineSpacing)

	if len(signature) > 0 {
		if name, _, _, ok := r.register(signature); ok {
			l.pdf.ImageOptions(name, Margin, l.y, signatureBoxWidth, signatureBoxHeight, false, fpdf.ImageOptions{}, 0, "")
		}
	}
	l.advance(signatureBoxHeight)

	l.line(Margin, l.y, Margin+signatureBoxWidth, l.y)
	l.text(Margin, l.y+LineSpacing, label, headerFont)
	l.advance(LineSpacing * 2)
}

// drawImages draws images in one centered column, one pixel per point,
// scaled down to fit the image box.
func (r *renderer) drawImages(l *layout, images []db.FormImage) {
	l.prepare(LineSpacing)
	l.text(Margin, l.y, "Attached Images:", headerFont)
	if len(images) == 0 {
		l.text(Margin+110, l.y, emptyValue, bodyFont)
	}
	l.advance(LineSpacing)

	for _, img := range images {
		name, w, h, ok := r.register(img.ImageData)
		if !ok {
			continue
		}
		scale := fitScale(w, h)
		w, h = w*scale, h*scale

		if l.y+h > PageHeight-Margin {
			l.startNewPage()
		}
		x := Margin + (ContentWidth-w)/2
		l.pdf.ImageOptions(name, x, l.y, w, h, false, fpdf.ImageOptions{}, 0, "")
		l.advance(h + SectionSpacing/2)
	}
	l.advance(SectionSpacing)
}

// register adds image data to the document and returns its name and pixel
// size. Images that cannot be decoded are logged and reported as not ok.
func (r *renderer) register(data []byte) (string, float64, float64, bool) {
	payload, imageType, w, h, err := normalizeImage(data)
	if err != nil {
		slog.Warn("pdf_image_skipped", "bytes", len(data), "error", err)
		return "", 0, 0, false
	}

	r.imageSeq++
	name := fmt.Sprintf("image-%d", r.imageSeq)
	r.pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: imageType}, bytes.NewReader(payload))
	if r.pdf.Err() {
		slog.Warn("pdf_image_skipped", "bytes", len(data), "error", r.pdf.Error())
		r.pdf.ClearError()
		return "", 0, 0, false
	}
	return name, float64(w), float64(h), true
}

// normalizeImage passes JPEG data through and re-encodes anything else as an
// opaque 8-bit PNG on a white background.
func normalizeImage(data []byte) ([]byte, string, int, int, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", 0, 0, errors.Wrap(err, "unrecognized image")
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", 0, 0, errors.Wrap(err, "failed to decode image")
	}
	if format == "jpeg" {
		return data, "JPG", cfg.Width, cfg.Height, nil
	}

	bounds := img.Bounds()
	flat := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	flat = imaging.Overlay(flat, img, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.PNG); err != nil {
		return nil, "", 0, 0, errors.Wrap(err, "failed to encode image")
	}
	return buf.Bytes(), "PNG", bounds.Dx(), bounds.Dy(), nil
}

func quantity(s string) string {
	if strings.TrimSpace(s) == "" {
		return defaultQuantity
	}
	return s
}
