// Package form holds the editable state of the pickup, drop-off and stations
// screens and turns it into saved form entries.
package form

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sthao/quickform/pkg/db"
	"github.com/sthao/quickform/pkg/errors"
	"github.com/sthao/quickform/pkg/photo"
)

// DateLayout is the display format of form dates and title prefixes.
const DateLayout = "Jan-02-2006"

// User facing messages
const (
	MsgEntrySaved        = "Entry Saved!"
	MsgFacilityNameEmpty = "Cannot save, facility name is empty."
	MsgNoEntriesSelected = "No entries selected for export."

	titleSeqWidth = 3
)

// Store is the persistence a Session needs.
type Store interface {
	SaveRecord(ctx context.Context, rec *db.FormRecord) (int64, error)
	GetRecord(ctx context.Context, id int64) (*db.FormRecord, error)
	CountByTitlePrefix(ctx context.Context, prefix string) (int, error)
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
}

// Limiter enforces attachment size limits during a save.
type Limiter interface {
	ValidateImageSize(size int64) error
	AddAttachmentSize(size int64) error
	Reset()
}

// Attachment is a photo attached to a form. Path is read and downsampled on
// save; Data holds image bytes already in memory.
type Attachment struct {
	Path string
	Data []byte

	// stored marks Data loaded from a saved entry; it is kept as is.
	stored bool
}

// TransferState is the editable state of the pickup or drop-off screen.
type TransferState struct {
	db.TransferDetails
	Images []Attachment
}

// ItemSection is one repeatable item group of the stations screen.
type ItemSection struct {
	RunNumber string
	Totes     string
	AddOns    string
	Extra     string
	PrintName string
	Signature []byte
	Images    []Attachment
}

// StationsState is the editable state of the stations screen.
type StationsState struct {
	db.StationsDetails
	Sections []ItemSection
	Images   []Attachment
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the time source used for default dates.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithImageMaxDimension sets the requested photo size for downsampling.
func WithImageMaxDimension(max int) Option {
	return func(s *Session) { s.maxDimension = max }
}

// WithLimiter enforces attachment limits on save.
func WithLimiter(l Limiter) Option {
	return func(s *Session) { s.limits = l }
}

// Session is the form view-model. It is safe for concurrent use.
type Session struct {
	store        Store
	now          func() time.Time
	maxDimension int
	limits       Limiter

	mu          sync.Mutex
	pickup      TransferState
	dropoff     TransferState
	stations    StationsState
	loadedID    int64
	loadedTitle string
}

// NewSession creates a session with fresh screens.
func NewSession(store Store, opts ...Option) *Session {
	s := &Session{
		store:        store,
		now:          time.Now,
		maxDimension: photo.DefaultMaxDimension,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reset()
	return s
}

func (s *Session) today() string {
	return s.now().Format(DateLayout)
}

// reset must be called with mu held.
func (s *Session) reset() {
	today := s.today()
	s.loadedID = 0
	s.loadedTitle = ""
	s.pickup = TransferState{TransferDetails: db.TransferDetails{Date: today}}
	s.dropoff = TransferState{TransferDetails: db.TransferDetails{Date: today}}
	s.stations = StationsState{
		StationsDetails: db.StationsDetails{Date: today},
		Sections:        []ItemSection{{}},
	}
}

func (s *Session) transfer(section Section) (*TransferState, error) {
	switch section {
	case SectionPickup:
		return &s.pickup, nil
	case SectionDropoff:
		return &s.dropoff, nil
	}
	return nil, fmt.Errorf("section %s has no transfer fields", section)
}

// UpdateField sets a text field of a section.
func (s *Session) UpdateField(section Section, field Field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if section == SectionStations {
		if !stationsField(field) {
			return errors.Wrap(errors.ErrUnsupportedField, fmt.Sprintf("%s on %s", field, section))
		}
		*stationsHeaderField(&s.stations.StationsDetails, field) = value
		return nil
	}

	t, err := s.transfer(section)
	if err != nil {
		return err
	}
	dst := transferField(&t.TransferDetails, field)
	if dst == nil {
		return errors.Wrap(errors.ErrUnsupportedField, field.String())
	}
	*dst = value
	return nil
}

// UpdateSignature sets signature 1 or 2 of a transfer section. A nil png
// clears it.
func (s *Session) UpdateSignature(section Section, index int, png []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.transfer(section)
	if err != nil {
		return err
	}
	switch index {
	case 1:
		t.SignatureOne = png
	case 2:
		t.SignatureTwo = png
	default:
		return fmt.Errorf("signature index %d out of range", index)
	}
	return nil
}

func (s *Session) images(section Section) *[]Attachment {
	switch section {
	case SectionPickup:
		return &s.pickup.Images
	case SectionDropoff:
		return &s.dropoff.Images
	default:
		return &s.stations.Images
	}
}

// AddImage appends a photo to a section.
func (s *Session) AddImage(section Section, a Attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.images(section)
	*list = append(*list, a)
}

// RemoveImage removes the photo at position i of a section.
func (s *Session) RemoveImage(section Section, i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeAt(s.images(section), i)
}

// SetImages replaces every photo of a section.
func (s *Session) SetImages(section Section, images []Attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.images(section) = append([]Attachment(nil), images...)
}

func removeAt[T any](list *[]T, i int) error {
	if i < 0 || i >= len(*list) {
		return fmt.Errorf("index %d out of range [0,%d)", i, len(*list))
	}
	*list = append((*list)[:i], (*list)[i+1:]...)
	return nil
}

// AddSection appends an empty item section and returns its index.
func (s *Session) AddSection() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stations.Sections = append(s.stations.Sections, ItemSection{})
	return len(s.stations.Sections) - 1
}

// RemoveSection removes the item section at i. Later sections shift down.
func (s *Session) RemoveSection(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeAt(&s.stations.Sections, i)
}

// SetSections replaces every item section.
func (s *Session) SetSections(sections []ItemSection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stations.Sections = append([]ItemSection(nil), sections...)
}

func (s *Session) section(i int) (*ItemSection, error) {
	if i < 0 || i >= len(s.stations.Sections) {
		return nil, fmt.Errorf("section %d out of range [0,%d)", i, len(s.stations.Sections))
	}
	return &s.stations.Sections[i], nil
}

// UpdateSectionField sets a text field of item section i.
func (s *Session) UpdateSectionField(i int, field SectionField, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, err := s.section(i)
	if err != nil {
		return err
	}
	dst := sec.field(field)
	if dst == nil {
		return errors.Wrap(errors.ErrUnsupportedField, field.String())
	}
	*dst = value
	return nil
}

// UpdateSectionSignature sets the signature of item section i.
func (s *Session) UpdateSectionSignature(i int, png []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, err := s.section(i)
	if err != nil {
		return err
	}
	sec.Signature = png
	return nil
}

// AddSectionImage appends a photo to item section i.
func (s *Session) AddSectionImage(i int, a Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, err := s.section(i)
	if err != nil {
		return err
	}
	sec.Images = append(sec.Images, a)
	return nil
}

// RemoveSectionImage removes photo j of item section i.
func (s *Session) RemoveSectionImage(i, j int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, err := s.section(i)
	if err != nil {
		return err
	}
	return removeAt(&sec.Images, j)
}

// Pickup returns a copy of the pickup screen state.
func (s *Session) Pickup() TransferState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyTransfer(s.pickup)
}

// Dropoff returns a copy of the drop-off screen state.
func (s *Session) Dropoff() TransferState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyTransfer(s.dropoff)
}

// Stations returns a copy of the stations screen state.
func (s *Session) Stations() StationsState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.stations
	out.Images = append([]Attachment(nil), s.stations.Images...)
	out.Sections = make([]ItemSection, len(s.stations.Sections))
	for i, sec := range s.stations.Sections {
		sec.Images = append([]Attachment(nil), sec.Images...)
		out.Sections[i] = sec
	}
	return out
}

func copyTransfer(t TransferState) TransferState {
	t.Images = append([]Attachment(nil), t.Images...)
	return t
}

// LoadedID returns the id of the loaded entry, or 0 for a new form.
func (s *Session) LoadedID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadedID
}

// Clear discards all state and starts a new form.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// LoadByID loads a saved entry for editing.
func (s *Session) LoadByID(ctx context.Context, id int64) error {
	rec, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return errors.Wrap(err, "failed to load entry")
	}
	s.Load(rec)
	return nil
}

// Load replaces the session state with a saved record. The screens of the
// other form type are reset.
func (s *Session) Load(rec *db.FormRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	s.loadedID = rec.Entry.ID
	s.loadedTitle = rec.Entry.Title

	if rec.Entry.FormType == db.FormTypeStations {
		s.stations = StationsState{
			StationsDetails: rec.Entry.Stations,
			Images:          storedAttachments(rec.ImagesOf(db.ImageTypeStations, db.NoSection)),
		}
		for _, sec := range rec.Sections {
			s.stations.Sections = append(s.stations.Sections, ItemSection{
				RunNumber: sec.SectionRunNumber,
				Totes:     sec.Totes,
				AddOns:    sec.AddOns,
				Extra:     sec.Extra,
				PrintName: sec.PrintName,
				Signature: sec.Signature,
				Images:    storedAttachments(rec.ImagesOf(db.ImageTypeStations, sec.SectionIndex)),
			})
		}
	} else {
		s.pickup = TransferState{
			TransferDetails: rec.Entry.Pickup,
			Images:          storedAttachments(rec.ImagesOf(db.ImageTypePickup, db.NoSection)),
		}
		s.dropoff = TransferState{
			TransferDetails: rec.Entry.Dropoff,
			Images:          storedAttachments(rec.ImagesOf(db.ImageTypeDropoff, db.NoSection)),
		}
	}

	slog.Info("form_entry_loaded", "entry_id", rec.Entry.ID, "title", rec.Entry.Title, "form_type", rec.Entry.FormType)
}

func storedAttachments(images []db.FormImage) []Attachment {
	out := make([]Attachment, 0, len(images))
	for _, img := range images {
		out = append(out, Attachment{Data: img.ImageData, stored: true})
	}
	return out
}

// SaveTransfer saves the pickup and drop-off screens as one transfer entry,
// updating the loaded entry if there is one. The session is cleared on success.
func (s *Session) SaveTransfer(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pickup.FacilityName == "" && s.dropoff.FacilityName == "" {
		slog.Warn("form_save_rejected", "form_type", db.FormTypeTransfer, "reason", "facility_name_empty")
		return 0, errors.Validation(MsgFacilityNameEmpty)
	}

	title, err := s.title(ctx, s.pickup.Date)
	if err != nil {
		return 0, err
	}

	s.resetLimits()
	rec := &db.FormRecord{Entry: db.FormEntry{
		ID:       s.loadedID,
		Title:    title,
		FormType: db.FormTypeTransfer,
		Pickup:   s.pickup.TransferDetails,
		Dropoff:  s.dropoff.TransferDetails,
	}}
	for _, src := range []struct {
		section Section
		images  []Attachment
	}{
		{SectionPickup, s.pickup.Images},
		{SectionDropoff, s.dropoff.Images},
	} {
		if rec.Images, err = s.appendImages(rec.Images, src.images, src.section.imageType(), db.NoSection); err != nil {
			return 0, err
		}
	}

	return s.save(ctx, rec)
}

// SaveStations saves the stations screen, updating the loaded entry if there
// is one. The session is cleared on success.
func (s *Session) SaveStations(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stations.FacilityName == "" {
		slog.Warn("form_save_rejected", "form_type", db.FormTypeStations, "reason", "facility_name_empty")
		return 0, errors.Validation(MsgFacilityNameEmpty)
	}

	title, err := s.title(ctx, s.stations.Date)
	if err != nil {
		return 0, err
	}

	s.resetLimits()
	rec := &db.FormRecord{Entry: db.FormEntry{
		ID:       s.loadedID,
		Title:    title,
		FormType: db.FormTypeStations,
		Stations: s.stations.StationsDetails,
	}}
	if rec.Images, err = s.appendImages(rec.Images, s.stations.Images, db.ImageTypeStations, db.NoSection); err != nil {
		return 0, err
	}
	for i, sec := range s.stations.Sections {
		rec.Sections = append(rec.Sections, db.StationsItemSection{
			SectionIndex:     i,
			SectionRunNumber: sec.RunNumber,
			Totes:            sec.Totes,
			AddOns:           sec.AddOns,
			Extra:            sec.Extra,
			PrintName:        sec.PrintName,
			Signature:        sec.Signature,
		})
		if rec.Images, err = s.appendImages(rec.Images, sec.Images, db.ImageTypeStations, i); err != nil {
			return 0, err
		}
	}

	return s.save(ctx, rec)
}

func (s *Session) save(ctx context.Context, rec *db.FormRecord) (int64, error) {
	id, err := s.store.SaveRecord(ctx, rec)
	if err != nil {
		slog.Error("form_save_failed", "title", rec.Entry.Title, "error", err)
		return 0, errors.Wrap(err, "failed to save entry")
	}

	slog.Info("form_entry_saved",
		"entry_id", id,
		"title", rec.Entry.Title,
		"form_type", rec.Entry.FormType,
		"image_count", len(rec.Images),
		"section_count", len(rec.Sections))
	s.reset()
	return id, nil
}

// title returns "<date>-NNN" for the form date, today when blank. A loaded
// entry whose title already carries the date keeps it.
func (s *Session) title(ctx context.Context, date string) (string, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		date = s.today()
	}
	if s.loadedID != 0 && strings.HasPrefix(s.loadedTitle, date+"-") {
		return s.loadedTitle, nil
	}

	count, err := s.store.CountByTitlePrefix(ctx, date)
	if err != nil {
		return "", errors.Wrap(err, "failed to number entry")
	}
	return fmt.Sprintf("%s-%0*d", date, titleSeqWidth, count+1), nil
}

func (s *Session) resetLimits() {
	if s.limits != nil {
		s.limits.Reset()
	}
}

// appendImages prepares attachments for storage. Photos that cannot be read
// or decoded are skipped; a photo over the size limits fails the save.
func (s *Session) appendImages(dst []db.FormImage, images []Attachment, imageType db.ImageType, sectionIndex int) ([]db.FormImage, error) {
	for _, a := range images {
		data := s.prepare(a)
		if data == nil {
			slog.Warn("form_image_skipped", "image_type", imageType, "section_index", sectionIndex, "path", a.Path)
			continue
		}
		if s.limits != nil {
			if err := s.limits.ValidateImageSize(int64(len(data))); err != nil {
				return nil, errors.Wrap(err, "image rejected")
			}
			if err := s.limits.AddAttachmentSize(int64(len(data))); err != nil {
				return nil, errors.Wrap(err, "attachments rejected")
			}
		}
		dst = append(dst, db.FormImage{ImageType: imageType, ImageData: data, SectionIndex: sectionIndex})
	}
	return dst, nil
}

func (s *Session) prepare(a Attachment) []byte {
	switch {
	case a.stored:
		return a.Data
	case len(a.Data) > 0:
		return photo.DownsampleBytes(a.Data, s.maxDimension)
	case a.Path != "":
		return photo.DownsampleFile(a.Path, s.maxDimension)
	}
	return nil
}

// Delete removes saved entries by id. If the loaded entry is among them the
// session is cleared.
func (s *Session) Delete(ctx context.Context, ids []int64) (int64, error) {
	deleted, err := s.store.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete entries")
	}

	s.mu.Lock()
	for _, id := range ids {
		if id == s.loadedID && id != 0 {
			s.reset()
			break
		}
	}
	s.mu.Unlock()

	slog.Info("form_entries_deleted", "requested", len(ids), "deleted", deleted)
	return deleted, nil
}
