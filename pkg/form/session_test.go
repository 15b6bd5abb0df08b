package form

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sthao/quickform/pkg/db"
	"github.com/sthao/quickform/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]db.FormRecord
}

func newMemStore() *memStore {
	return &memStore{records: make(map[int64]db.FormRecord)}
}

func (m *memStore) SaveRecord(_ context.Context, rec *db.FormRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.Entry.ID == 0 {
		m.nextID++
		rec.Entry.ID = m.nextID
	} else if _, ok := m.records[rec.Entry.ID]; !ok {
		return 0, errors.ErrNotFound
	}
	m.records[rec.Entry.ID] = *rec
	return rec.Entry.ID, nil
}

func (m *memStore) GetRecord(_ context.Context, id int64) (*db.FormRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return &rec, nil
}

func (m *memStore) CountByTitlePrefix(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.records {
		if strings.HasPrefix(rec.Entry.Title, prefix) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) DeleteByIDs(_ context.Context, ids []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := m.records[id]; ok {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

// countingLimiter rejects once the total passes max.
type countingLimiter struct {
	max, total int64
	resets     int
}

func (l *countingLimiter) ValidateImageSize(size int64) error { return nil }

func (l *countingLimiter) AddAttachmentSize(size int64) error {
	l.total += size
	if l.total > l.max {
		return errors.Validation("attachments too large")
	}
	return nil
}

func (l *countingLimiter) Reset() { l.total = 0; l.resets++ }

var fixedNow = time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

func newTestSession(store Store, opts ...Option) *Session {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewSession(store, opts...)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSession_Defaults(t *testing.T) {
	s := newTestSession(newMemStore())

	assert.Equal(t, "Mar-04-2025", s.Pickup().Date)
	assert.Equal(t, "Mar-04-2025", s.Dropoff().Date)
	assert.Equal(t, "Mar-04-2025", s.Stations().Date)
	assert.Len(t, s.Stations().Sections, 1)
	assert.Zero(t, s.LoadedID())
}

func TestSession_UpdateField(t *testing.T) {
	s := newTestSession(newMemStore())

	for _, f := range Fields() {
		require.NoError(t, s.UpdateField(SectionPickup, f, f.String()))
	}
	p := s.Pickup()
	assert.Equal(t, "run", p.Run)
	assert.Equal(t, "money_bags_quantity", p.MoneyBagsQuantity)
	assert.Equal(t, "print_signature_two", p.PrintSignatureTwo)
	assert.Equal(t, "Mar-04-2025", s.Dropoff().Date, "dropoff untouched")

	require.NoError(t, s.UpdateField(SectionStations, FieldFacilityName, "Station 4"))
	assert.Equal(t, "Station 4", s.Stations().FacilityName)

	err := s.UpdateField(SectionStations, FieldFrozenBags, "2")
	assert.True(t, errors.Is(err, errors.ErrUnsupportedField))
}

func TestSession_ImagesAndSections(t *testing.T) {
	s := newTestSession(newMemStore())

	s.AddImage(SectionDropoff, Attachment{Path: "a.jpg"})
	s.AddImage(SectionDropoff, Attachment{Path: "b.jpg"})
	require.NoError(t, s.RemoveImage(SectionDropoff, 0))
	assert.Equal(t, []Attachment{{Path: "b.jpg"}}, s.Dropoff().Images)
	assert.Error(t, s.RemoveImage(SectionDropoff, 5))

	idx := s.AddSection()
	assert.Equal(t, 1, idx)
	require.NoError(t, s.UpdateSectionField(1, SectionFieldTotes, "4"))
	require.NoError(t, s.AddSectionImage(1, Attachment{Path: "c.jpg"}))
	require.NoError(t, s.RemoveSection(0))

	st := s.Stations()
	require.Len(t, st.Sections, 1)
	assert.Equal(t, "4", st.Sections[0].Totes)
	require.Len(t, st.Sections[0].Images, 1)
	require.NoError(t, s.RemoveSectionImage(0, 0))
	assert.Empty(t, s.Stations().Sections[0].Images)
	assert.Error(t, s.UpdateSectionSignature(3, nil))
}

func TestSaveTransfer_RequiresFacility(t *testing.T) {
	store := newMemStore()
	s := newTestSession(store)

	_, err := s.SaveTransfer(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.Contains(t, err.Error(), MsgFacilityNameEmpty)
	assert.Empty(t, store.records)

	// Either facility name is enough.
	require.NoError(t, s.UpdateField(SectionDropoff, FieldFacilityName, "Central Lab"))
	_, err = s.SaveTransfer(context.Background())
	require.NoError(t, err)
}

func TestSave_BlankFacilityIsNotEmpty(t *testing.T) {
	store := newMemStore()
	s := newTestSession(store)
	ctx := context.Background()

	require.NoError(t, s.UpdateField(SectionPickup, FieldFacilityName, " "))
	id, err := s.SaveTransfer(ctx)
	require.NoError(t, err)
	assert.Equal(t, " ", store.records[id].Entry.Pickup.FacilityName)

	require.NoError(t, s.UpdateField(SectionStations, FieldFacilityName, "  "))
	_, err = s.SaveStations(ctx)
	require.NoError(t, err)

	_, err = s.SaveStations(ctx)
	assert.True(t, errors.Is(err, errors.ErrValidation), "cleared session has no facility")
}

func TestSaveTransfer_TitlesAndClear(t *testing.T) {
	store := newMemStore()
	s := newTestSession(store)
	ctx := context.Background()

	require.NoError(t, s.UpdateField(SectionPickup, FieldFacilityName, "North Depot"))
	require.NoError(t, s.UpdateSignature(SectionPickup, 1, []byte("sig")))
	first, err := s.SaveTransfer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Mar-04-2025-001", store.records[first].Entry.Title)
	assert.Equal(t, []byte("sig"), store.records[first].Entry.Pickup.SignatureOne)
	assert.Equal(t, db.FormTypeTransfer, store.records[first].Entry.FormType)

	// Cleared after save.
	assert.Empty(t, s.Pickup().FacilityName)
	assert.Nil(t, s.Pickup().SignatureOne)

	require.NoError(t, s.UpdateField(SectionPickup, FieldFacilityName, "North Depot"))
	second, err := s.SaveTransfer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Mar-04-2025-002", store.records[second].Entry.Title)

	// Blank date falls back to today.
	require.NoError(t, s.UpdateField(SectionPickup, FieldFacilityName, "North Depot"))
	require.NoError(t, s.UpdateField(SectionPickup, FieldDate, " "))
	third, err := s.SaveTransfer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Mar-04-2025-003", store.records[third].Entry.Title)

	require.NoError(t, s.UpdateField(SectionPickup, FieldFacilityName, "North Depot"))
	require.NoError(t, s.UpdateField(SectionPickup, FieldDate, "Apr-01-2025"))
	fourth, err := s.SaveTransfer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Apr-01-2025-001", store.records[fourth].Entry.Title)
}

func TestSaveTransfer_UpdatesLoadedEntry(t *testing.T) {
	store := newMemStore()
	s := newTestSession(store)
	ctx := context.Background()

	require.NoError(t, s.UpdateField(SectionPickup, FieldFacilityName, "North Depot"))
	id, err := s.SaveTransfer(ctx)
	require.NoError(t, err)

	stored := store.records[id]
	stored.Images = []db.FormImage{{ImageType: db.ImageTypePickup, ImageData: []byte("jpeg"), SectionIndex: db.NoSection}}
	store.records[id] = stored

	require.NoError(t, s.LoadByID(ctx, id))
	assert.Equal(t, id, s.LoadedID())
	assert.Equal(t, "North Depot", s.Pickup().FacilityName)
	require.Len(t, s.Pickup().Images, 1)

	require.NoError(t, s.UpdateField(SectionDropoff, FieldFacilityName, "Central Lab"))
	again, err := s.SaveTransfer(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Len(t, store.records, 1)

	rec := store.records[id]
	assert.Equal(t, "Mar-04-2025-001", rec.Entry.Title, "title kept while the date matches")
	assert.Equal(t, "Central Lab", rec.Entry.Dropoff.FacilityName)
	require.Len(t, rec.Images, 1)
	assert.Equal(t, []byte("jpeg"), rec.Images[0].ImageData, "stored photos are not re-encoded")

	err = s.LoadByID(ctx, 99)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestSaveTransfer_Photos(t *testing.T) {
	store := newMemStore()
	s := newTestSession(store, WithImageMaxDimension(16))
	ctx := context.Background()

	dir := t.TempDir()
	good := filepath.Join(dir, "good.png")
	require.NoError(t, os.WriteFile(good, pngBytes(t, 64, 64), 0o644))
	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("broken"), 0o644))

	require.NoError(t, s.UpdateField(SectionPickup, FieldFacilityName, "North Depot"))
	s.AddImage(SectionPickup, Attachment{Path: good})
	s.AddImage(SectionPickup, Attachment{Path: bad})
	s.AddImage(SectionDropoff, Attachment{Data: pngBytes(t, 8, 8)})

	id, err := s.SaveTransfer(ctx)
	require.NoError(t, err)

	rec := store.records[id]
	require.Len(t, rec.Images, 2, "undecodable photo skipped")
	assert.Equal(t, db.ImageTypePickup, rec.Images[0].ImageType)
	assert.Equal(t, db.ImageTypeDropoff, rec.Images[1].ImageType)
	for _, img := range rec.Images {
		assert.Equal(t, db.NoSection, img.SectionIndex)
		assert.True(t, bytes.HasPrefix(img.ImageData, []byte{0xFF, 0xD8}), "stored as jpeg")
	}
}

func TestSaveTransfer_AttachmentLimit(t *testing.T) {
	store := newMemStore()
	limits := &countingLimiter{max: 1}
	s := newTestSession(store, WithLimiter(limits))

	require.NoError(t, s.UpdateField(SectionPickup, FieldFacilityName, "North Depot"))
	s.AddImage(SectionPickup, Attachment{Data: pngBytes(t, 8, 8)})

	_, err := s.SaveTransfer(context.Background())
	require.Error(t, err)
	assert.Empty(t, store.records)
	assert.Equal(t, 1, limits.resets)
	assert.Equal(t, "North Depot", s.Pickup().FacilityName, "state kept after a failed save")
}

func TestSaveStations(t *testing.T) {
	store := newMemStore()
	s := newTestSession(store)
	ctx := context.Background()

	_, err := s.SaveStations(ctx)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	require.NoError(t, s.UpdateField(SectionStations, FieldFacilityName, "Station 4"))
	require.NoError(t, s.UpdateField(SectionStations, FieldRun, "S7"))
	require.NoError(t, s.UpdateSectionField(0, SectionFieldPrintName, "Kim"))
	require.NoError(t, s.UpdateSectionSignature(0, []byte("sig")))
	s.AddSection()
	require.NoError(t, s.UpdateSectionField(1, SectionFieldExtra, "2"))
	require.NoError(t, s.AddSectionImage(1, Attachment{Data: pngBytes(t, 8, 8)}))
	s.AddImage(SectionStations, Attachment{Data: pngBytes(t, 8, 8)})

	id, err := s.SaveStations(ctx)
	require.NoError(t, err)

	rec := store.records[id]
	assert.Equal(t, db.FormTypeStations, rec.Entry.FormType)
	assert.Equal(t, "Mar-04-2025-001", rec.Entry.Title)
	assert.Equal(t, "S7", rec.Entry.Stations.Run)
	require.Len(t, rec.Sections, 2)
	assert.Equal(t, 0, rec.Sections[0].SectionIndex)
	assert.Equal(t, "Kim", rec.Sections[0].PrintName)
	assert.Equal(t, 1, rec.Sections[1].SectionIndex)
	assert.Len(t, rec.ImagesOf(db.ImageTypeStations, db.NoSection), 1)
	assert.Len(t, rec.ImagesOf(db.ImageTypeStations, 1), 1)

	require.NoError(t, s.LoadByID(ctx, id))
	st := s.Stations()
	require.Len(t, st.Sections, 2)
	assert.Equal(t, []byte("sig"), st.Sections[0].Signature)
	assert.Len(t, st.Sections[1].Images, 1)
	assert.Len(t, st.Images, 1)
}

func TestSession_Delete(t *testing.T) {
	store := newMemStore()
	s := newTestSession(store)
	ctx := context.Background()

	require.NoError(t, s.UpdateField(SectionPickup, FieldFacilityName, "North Depot"))
	id, err := s.SaveTransfer(ctx)
	require.NoError(t, err)
	require.NoError(t, s.LoadByID(ctx, id))

	deleted, err := s.Delete(ctx, []int64{id, 42})
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
	assert.Zero(t, s.LoadedID(), "loaded entry cleared")
	assert.Empty(t, s.Pickup().FacilityName)
}

func TestParseField(t *testing.T) {
	f, err := ParseField("Driver-Name")
	require.NoError(t, err)
	assert.Equal(t, FieldDriverName, f)

	_, err = ParseField("others_bags")
	assert.True(t, errors.Is(err, errors.ErrUnsupportedField))

	sf, err := ParseSectionField("add_ons")
	require.NoError(t, err)
	assert.Equal(t, SectionFieldAddOns, sf)

	sec, err := ParseSection("Dropoff")
	require.NoError(t, err)
	assert.Equal(t, SectionDropoff, sec)
}

func TestFieldValues(t *testing.T) {
	d := db.TransferDetails{FacilityName: "North Depot", MailsQuantity: "2"}
	assert.Equal(t, "North Depot", TransferValue(d, FieldFacilityName))
	assert.Equal(t, "2", TransferValue(d, FieldMailsQuantity))
	assert.Empty(t, TransferValue(d, FieldNotes))

	st := db.StationsDetails{Run: "S7"}
	v, ok := StationsValue(st, FieldRun)
	assert.True(t, ok)
	assert.Equal(t, "S7", v)
	_, ok = StationsValue(st, FieldFrozenBags)
	assert.False(t, ok)
}
