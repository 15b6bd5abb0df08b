package db

import (
	"fmt"
	"time"
)

// FormType distinguishes the two kinds of confirmation form.
type FormType string

// Form types
const (
	// FormTypeTransfer is a pickup plus drop-off form.
	FormTypeTransfer FormType = "transfer"
	// FormTypeStations is a stations form with repeatable item sections.
	FormTypeStations FormType = "stations"
)

// ImageType tags which part of a form an image belongs to.
type ImageType string

// Image types
const (
	ImageTypePickup   ImageType = "PICKUP"
	ImageTypeDropoff  ImageType = "DROPOFF"
	ImageTypeStations ImageType = "STATIONS"
)

// NoSection is the section index of images that are not tied to a stations section.
const NoSection = -1

// TransferDetails holds one field group (pickup or drop-off) of a transfer form.
type TransferDetails struct {
	Run                  string
	Date                 string
	DriverName           string
	DriverNumber         string
	FacilityName         string
	FrozenBags           string
	FrozenQuantity       string
	RefrigeratedBags     string
	RefrigeratedQuantity string
	RoomTempBags         string
	RoomTempQuantity     string
	BoxesQuantity        string
	ColoredBagsQuantity  string
	MailsQuantity        string
	MoneyBagsQuantity    string
	OthersQuantity       string
	Notes                string
	AdditionalNotes      string
	PrintSignatureOne    string
	PrintSignatureTwo    string
	SignatureOne         []byte // PNG
	SignatureTwo         []byte // PNG
}

// StationsDetails holds the header fields of a stations form.
type StationsDetails struct {
	Run          string
	Date         string
	DriverName   string
	DriverNumber string
	FacilityName string
}

// FormEntry represents a saved confirmation form row
type FormEntry struct {
	ID        int64
	Title     string
	FormType  FormType
	Pickup    TransferDetails
	Dropoff   TransferDetails
	Stations  StationsDetails
	CreatedAt string
	UpdatedAt string
}

// FormImage is a photo attached to a form entry.
type FormImage struct {
	ID           int64     `db:"id"`
	FormEntryID  int64     `db:"form_entry_id"`
	ImageType    ImageType `db:"image_type"`
	ImageData    []byte    `db:"image_data"`
	SectionIndex int       `db:"section_index"`
}

// StationsItemSection is one repeatable line-item group of a stations form.
type StationsItemSection struct {
	ID               int64  `db:"id"`
	FormEntryID      int64  `db:"form_entry_id"`
	SectionIndex     int    `db:"section_index"`
	SectionRunNumber string `db:"section_run_number"`
	Totes            string `db:"totes"`
	AddOns           string `db:"add_ons"`
	Extra            string `db:"extra"`
	PrintName        string `db:"print_name"`
	Signature        []byte `db:"signature"`
}

// FormRecord is an entry together with its full child set.
type FormRecord struct {
	Entry    FormEntry
	Images   []FormImage
	Sections []StationsItemSection
}

// ImagesOf returns the images of the given type and section index, in stored order.
func (r *FormRecord) ImagesOf(imageType ImageType, sectionIndex int) []FormImage {
	var out []FormImage
	for _, img := range r.Images {
		if img.ImageType == imageType && img.SectionIndex == sectionIndex {
			out = append(out, img)
		}
	}
	return out
}

// ListItem is the lightweight projection used for listing saved entries.
// It never carries signature or image data.
type ListItem struct {
	ID           int64    `db:"id"`
	Title        string   `db:"entry_title"`
	FormType     FormType `db:"form_type"`
	Run          string   `db:"run"`
	FacilityName string   `db:"facility_name"`
}

// column binds a form_entries column to a field of FormEntry.
type column struct {
	name string
	text *string
	blob *[]byte
}

func transferColumns(prefix string, d *TransferDetails) []column {
	return []column{
		{name: prefix + "_run", text: &d.Run},
		{name: prefix + "_date", text: &d.Date},
		{name: prefix + "_driver_name", text: &d.DriverName},
		{name: prefix + "_driver_number", text: &d.DriverNumber},
		{name: prefix + "_facility_name", text: &d.FacilityName},
		{name: prefix + "_frozen_bags", text: &d.FrozenBags},
		{name: prefix + "_frozen_quantity", text: &d.FrozenQuantity},
		{name: prefix + "_refrigerated_bags", text: &d.RefrigeratedBags},
		{name: prefix + "_refrigerated_quantity", text: &d.RefrigeratedQuantity},
		{name: prefix + "_room_temp_bags", text: &d.RoomTempBags},
		{name: prefix + "_room_temp_quantity", text: &d.RoomTempQuantity},
		{name: prefix + "_boxes_quantity", text: &d.BoxesQuantity},
		{name: prefix + "_colored_bags_quantity", text: &d.ColoredBagsQuantity},
		{name: prefix + "_mails_quantity", text: &d.MailsQuantity},
		{name: prefix + "_money_bags_quantity", text: &d.MoneyBagsQuantity},
		{name: prefix + "_others_quantity", text: &d.OthersQuantity},
		{name: prefix + "_notes", text: &d.Notes},
		{name: prefix + "_additional_notes", text: &d.AdditionalNotes},
		{name: prefix + "_print_signature_one", text: &d.PrintSignatureOne},
		{name: prefix + "_print_signature_two", text: &d.PrintSignatureTwo},
		{name: prefix + "_signature_one", blob: &d.SignatureOne},
		{name: prefix + "_signature_two", blob: &d.SignatureTwo},
	}
}

// entryColumns lists every writable column of form_entries, id excluded.
func entryColumns(e *FormEntry) []column {
	cols := []column{
		{name: "entry_title", text: &e.Title},
		{name: "form_type", text: (*string)(&e.FormType)},
	}
	cols = append(cols, transferColumns("pickup", &e.Pickup)...)
	cols = append(cols, transferColumns("dropoff", &e.Dropoff)...)
	cols = append(cols,
		column{name: "stations_run", text: &e.Stations.Run},
		column{name: "stations_date", text: &e.Stations.Date},
		column{name: "stations_driver_name", text: &e.Stations.DriverName},
		column{name: "stations_driver_number", text: &e.Stations.DriverNumber},
		column{name: "stations_facility_name", text: &e.Stations.FacilityName},
	)
	return cols
}

// value returns the driver value for the column.
func (c column) value() any {
	if c.text != nil {
		return *c.text
	}
	if *c.blob == nil {
		return nil
	}
	return *c.blob
}

// dest returns the scan destination for the column. Legacy rows may hold NULL text.
func (c column) dest() any {
	if c.text != nil {
		return &nullText{dst: c.text}
	}
	return c.blob
}

// nullText scans a nullable TEXT column into a plain string.
type nullText struct {
	dst *string
}

func (n *nullText) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*n.dst = ""
	case string:
		*n.dst = v
	case []byte:
		*n.dst = string(v)
	case time.Time:
		*n.dst = v.Format(time.DateTime)
	default:
		*n.dst = fmt.Sprint(v)
	}
	return nil
}
