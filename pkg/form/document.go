package form

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/sthao/quickform/pkg/db"
	"github.com/sthao/quickform/pkg/errors"
	"github.com/sthao/quickform/pkg/photo"
	"gopkg.in/yaml.v3"
)

// Document is a form described in YAML. File paths inside it are relative to
// the document's directory.
type Document struct {
	Type     db.FormType  `yaml:"type"`
	Pickup   *GroupDoc    `yaml:"pickup"`
	Dropoff  *GroupDoc    `yaml:"dropoff"`
	Stations *StationsDoc `yaml:"stations"`

	baseDir string
}

// GroupDoc holds the fields of one pickup or drop-off group.
type GroupDoc struct {
	SignatureOne string            `yaml:"signature_one"`
	SignatureTwo string            `yaml:"signature_two"`
	Images       *[]string         `yaml:"images"`
	Fields       map[string]string `yaml:",inline"`
}

// StationsDoc holds the stations header, its photos and item sections.
type StationsDoc struct {
	Images   *[]string         `yaml:"images"`
	Sections *[]ItemSectionDoc `yaml:"sections"`
	Fields   map[string]string `yaml:",inline"`
}

// ItemSectionDoc is one stations item section.
type ItemSectionDoc struct {
	RunNumber string   `yaml:"run_number"`
	Totes     string   `yaml:"totes"`
	AddOns    string   `yaml:"add_ons"`
	Extra     string   `yaml:"extra"`
	PrintName string   `yaml:"print_name"`
	Signature string   `yaml:"signature"`
	Images    []string `yaml:"images"`
}

// LoadDocument reads a YAML form document from path.
func LoadDocument(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open document")
	}
	defer f.Close()
	return ParseDocument(f, filepath.Dir(path))
}

// ParseDocument decodes a YAML form document. Relative paths resolve against baseDir.
func ParseDocument(r io.Reader, baseDir string) (*Document, error) {
	doc := &Document{baseDir: baseDir}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(doc); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to parse document")
	}

	switch doc.Type {
	case "":
		doc.Type = db.FormTypeTransfer
		if doc.Stations != nil && doc.Pickup == nil && doc.Dropoff == nil {
			doc.Type = db.FormTypeStations
		}
	case db.FormTypeTransfer, db.FormTypeStations:
	default:
		return nil, errors.Validation(fmt.Sprintf("unknown form type %q", doc.Type))
	}
	return doc, nil
}

func (d *Document) path(p string) string {
	if p == "" || filepath.IsAbs(p) || d.baseDir == "" {
		return p
	}
	return filepath.Join(d.baseDir, p)
}

// Apply writes the document onto the session. Fields are set in display
// order; a present images or sections list replaces the session's one.
func (d *Document) Apply(s *Session) error {
	if d.Type == db.FormTypeStations {
		return d.applyStations(s, d.Stations)
	}
	if err := d.applyGroup(s, SectionPickup, d.Pickup); err != nil {
		return errors.Wrap(err, "pickup")
	}
	if err := d.applyGroup(s, SectionDropoff, d.Dropoff); err != nil {
		return errors.Wrap(err, "dropoff")
	}
	return nil
}

func (d *Document) applyGroup(s *Session, section Section, g *GroupDoc) error {
	if g == nil {
		return nil
	}
	if err := applyFields(s, section, g.Fields); err != nil {
		return err
	}

	for i, path := range []string{g.SignatureOne, g.SignatureTwo} {
		if path == "" {
			continue
		}
		png, err := photo.Signature(d.path(path))
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("signature %d", i+1))
		}
		if err := s.UpdateSignature(section, i+1, png); err != nil {
			return err
		}
	}

	if g.Images != nil {
		s.SetImages(section, d.attachments(*g.Images))
	}
	return nil
}

func (d *Document) applyStations(s *Session, st *StationsDoc) error {
	if st == nil {
		return nil
	}
	if err := applyFields(s, SectionStations, st.Fields); err != nil {
		return errors.Wrap(err, "stations")
	}
	if st.Images != nil {
		s.SetImages(SectionStations, d.attachments(*st.Images))
	}
	if st.Sections == nil {
		return nil
	}

	sections := make([]ItemSection, 0, len(*st.Sections))
	for i, sd := range *st.Sections {
		sec := ItemSection{
			RunNumber: sd.RunNumber,
			Totes:     sd.Totes,
			AddOns:    sd.AddOns,
			Extra:     sd.Extra,
			PrintName: sd.PrintName,
			Images:    d.attachments(sd.Images),
		}
		if sd.Signature != "" {
			png, err := photo.Signature(d.path(sd.Signature))
			if err != nil {
				return errors.Wrap(err, fmt.Sprintf("section %d signature", i+1))
			}
			sec.Signature = png
		}
		sections = append(sections, sec)
	}
	s.SetSections(sections)
	return nil
}

// applyFields validates every key before setting any, then sets them in
// display order.
func applyFields(s *Session, section Section, fields map[string]string) error {
	parsed := make(map[Field]string, len(fields))
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f, err := ParseField(k)
		if err != nil {
			return err
		}
		if section == SectionStations && !stationsField(f) {
			return errors.Wrap(errors.ErrUnsupportedField, fmt.Sprintf("%s on %s", k, section))
		}
		parsed[f] = fields[k]
	}

	for _, f := range Fields() {
		if v, ok := parsed[f]; ok {
			if err := s.UpdateField(section, f, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Document) attachments(paths []string) []Attachment {
	out := make([]Attachment, 0, len(paths))
	for _, p := range paths {
		out = append(out, Attachment{Path: d.path(p)})
	}
	return out
}
