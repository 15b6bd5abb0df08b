package form

import (
	"fmt"
	"strings"

	"github.com/sthao/quickform/pkg/db"
	"github.com/sthao/quickform/pkg/errors"
)

// Section selects one of the three form screens.
type Section int

// Sections
const (
	SectionPickup Section = iota
	SectionDropoff
	SectionStations
)

var sectionNames = [...]string{"pickup", "dropoff", "stations"}

func (s Section) String() string {
	if s < 0 || int(s) >= len(sectionNames) {
		return fmt.Sprintf("section(%d)", int(s))
	}
	return sectionNames[s]
}

// ParseSection parses a section name such as "pickup".
func ParseSection(name string) (Section, error) {
	for i, n := range sectionNames {
		if strings.EqualFold(name, n) {
			return Section(i), nil
		}
	}
	return 0, fmt.Errorf("unknown section %q", name)
}

// imageType is the stored image tag for photos of the section.
func (s Section) imageType() db.ImageType {
	switch s {
	case SectionDropoff:
		return db.ImageTypeDropoff
	case SectionStations:
		return db.ImageTypeStations
	default:
		return db.ImageTypePickup
	}
}

// Field is a text field of a transfer group.
type Field int

// Transfer fields, in display order
const (
	FieldRun Field = iota
	FieldDate
	FieldDriverName
	FieldDriverNumber
	FieldFacilityName
	FieldFrozenBags
	FieldFrozenQuantity
	FieldRefrigeratedBags
	FieldRefrigeratedQuantity
	FieldRoomTempBags
	FieldRoomTempQuantity
	FieldBoxesQuantity
	FieldColoredBagsQuantity
	FieldMailsQuantity
	FieldMoneyBagsQuantity
	FieldOthersQuantity
	FieldNotes
	FieldAdditionalNotes
	FieldPrintSignatureOne
	FieldPrintSignatureTwo

	fieldCount
)

var fieldNames = [fieldCount]string{
	"run", "date", "driver_name", "driver_number", "facility_name",
	"frozen_bags", "frozen_quantity", "refrigerated_bags", "refrigerated_quantity",
	"room_temp_bags", "room_temp_quantity", "boxes_quantity", "colored_bags_quantity",
	"mails_quantity", "money_bags_quantity", "others_quantity",
	"notes", "additional_notes", "print_signature_one", "print_signature_two",
}

func (f Field) String() string {
	if f < 0 || f >= fieldCount {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldNames[f]
}

// Fields returns every transfer field in display order.
func Fields() []Field {
	out := make([]Field, fieldCount)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

// ParseField parses a field name such as "driver_name". Dashes are accepted
// in place of underscores.
func ParseField(name string) (Field, error) {
	key := strings.ReplaceAll(strings.ToLower(name), "-", "_")
	for i, n := range fieldNames {
		if n == key {
			return Field(i), nil
		}
	}
	return 0, errors.Wrap(errors.ErrUnsupportedField, name)
}

// stationsField reports whether f exists on the stations header.
func stationsField(f Field) bool {
	switch f {
	case FieldRun, FieldDate, FieldDriverName, FieldDriverNumber, FieldFacilityName:
		return true
	}
	return false
}

// TransferValue returns the value of f on a pickup or drop-off group.
func TransferValue(d db.TransferDetails, f Field) string {
	if v := transferField(&d, f); v != nil {
		return *v
	}
	return ""
}

// StationsValue returns the value of a stations header field. Fields the
// stations header does not have are reported as not ok.
func StationsValue(d db.StationsDetails, f Field) (string, bool) {
	if v := stationsHeaderField(&d, f); v != nil {
		return *v, true
	}
	return "", false
}

func transferField(d *db.TransferDetails, f Field) *string {
	switch f {
	case FieldRun:
		return &d.Run
	case FieldDate:
		return &d.Date
	case FieldDriverName:
		return &d.DriverName
	case FieldDriverNumber:
		return &d.DriverNumber
	case FieldFacilityName:
		return &d.FacilityName
	case FieldFrozenBags:
		return &d.FrozenBags
	case FieldFrozenQuantity:
		return &d.FrozenQuantity
	case FieldRefrigeratedBags:
		return &d.RefrigeratedBags
	case FieldRefrigeratedQuantity:
		return &d.RefrigeratedQuantity
	case FieldRoomTempBags:
		return &d.RoomTempBags
	case FieldRoomTempQuantity:
		return &d.RoomTempQuantity
	case FieldBoxesQuantity:
		return &d.BoxesQuantity
	case FieldColoredBagsQuantity:
		return &d.ColoredBagsQuantity
	case FieldMailsQuantity:
		return &d.MailsQuantity
	case FieldMoneyBagsQuantity:
		return &d.MoneyBagsQuantity
	case FieldOthersQuantity:
		return &d.OthersQuantity
	case FieldNotes:
		return &d.Notes
	case FieldAdditionalNotes:
		return &d.AdditionalNotes
	case FieldPrintSignatureOne:
		return &d.PrintSignatureOne
	case FieldPrintSignatureTwo:
		return &d.PrintSignatureTwo
	}
	return nil
}

func stationsHeaderField(d *db.StationsDetails, f Field) *string {
	switch f {
	case FieldRun:
		return &d.Run
	case FieldDate:
		return &d.Date
	case FieldDriverName:
		return &d.DriverName
	case FieldDriverNumber:
		return &d.DriverNumber
	case FieldFacilityName:
		return &d.FacilityName
	}
	return nil
}

// SectionField is a text field of a stations item section.
type SectionField int

// Stations item section fields
const (
	SectionFieldRunNumber SectionField = iota
	SectionFieldTotes
	SectionFieldAddOns
	SectionFieldExtra
	SectionFieldPrintName

	sectionFieldCount
)

var sectionFieldNames = [sectionFieldCount]string{"run_number", "totes", "add_ons", "extra", "print_name"}

func (f SectionField) String() string {
	if f < 0 || f >= sectionFieldCount {
		return fmt.Sprintf("section_field(%d)", int(f))
	}
	return sectionFieldNames[f]
}

// SectionFields returns every item section field in display order.
func SectionFields() []SectionField {
	out := make([]SectionField, sectionFieldCount)
	for i := range out {
		out[i] = SectionField(i)
	}
	return out
}

// ParseSectionField parses an item section field name such as "add_ons".
func ParseSectionField(name string) (SectionField, error) {
	key := strings.ReplaceAll(strings.ToLower(name), "-", "_")
	for i, n := range sectionFieldNames {
		if n == key {
			return SectionField(i), nil
		}
	}
	return 0, errors.Wrap(errors.ErrUnsupportedField, name)
}

func (s *ItemSection) field(f SectionField) *string {
	switch f {
	case SectionFieldRunNumber:
		return &s.RunNumber
	case SectionFieldTotes:
		return &s.Totes
	case SectionFieldAddOns:
		return &s.AddOns
	case SectionFieldExtra:
		return &s.Extra
	case SectionFieldPrintName:
		return &s.PrintName
	}
	return nil
}
