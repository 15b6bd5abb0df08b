package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sthao/quickform/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "forms.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func transferRecord(title string) *FormRecord {
	return &FormRecord{
		Entry: FormEntry{
			Title:    title,
			FormType: FormTypeTransfer,
			Pickup: TransferDetails{
				Run:            "12",
				Date:           "Mar-04-2025",
				DriverName:     "Ana",
				FacilityName:   "North Depot",
				FrozenBags:     "3",
				FrozenQuantity: "9",
				SignatureOne:   []byte{0x89, 'P', 'N', 'G'},
			},
			Dropoff: TransferDetails{
				FacilityName:      "Central Lab",
				PrintSignatureTwo: "R. Ortiz",
			},
		},
		Images: []FormImage{
			{ImageType: ImageTypePickup, ImageData: []byte("pickup-1"), SectionIndex: NoSection},
			{ImageType: ImageTypeDropoff, ImageData: []byte("dropoff-1"), SectionIndex: NoSection},
		},
	}
}

func TestRepository_SaveAndGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	rec := transferRecord("Mar-04-2025-001")
	id, err := repo.SaveRecord(ctx, rec)
	require.NoError(t, err)
	require.NotZero(t, id)
	assert.Equal(t, id, rec.Entry.ID)
	for _, img := range rec.Images {
		assert.Equal(t, id, img.FormEntryID)
		assert.NotZero(t, img.ID)
	}

	got, err := repo.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Mar-04-2025-001", got.Entry.Title)
	assert.Equal(t, FormTypeTransfer, got.Entry.FormType)
	assert.Equal(t, rec.Entry.Pickup, got.Entry.Pickup)
	assert.Equal(t, rec.Entry.Dropoff, got.Entry.Dropoff)
	assert.Nil(t, got.Entry.Pickup.SignatureTwo)
	assert.NotEmpty(t, got.Entry.CreatedAt)

	require.Len(t, got.Images, 2)
	assert.Equal(t, []byte("pickup-1"), got.ImagesOf(ImageTypePickup, NoSection)[0].ImageData)
	assert.Equal(t, []byte("dropoff-1"), got.ImagesOf(ImageTypeDropoff, NoSection)[0].ImageData)
}

func TestRepository_ResaveReplacesChildren(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	rec := &FormRecord{
		Entry: FormEntry{Title: "Mar-04-2025-001", FormType: FormTypeStations,
			Stations: StationsDetails{FacilityName: "Station 4", Run: "7"}},
		Images: []FormImage{
			{ImageType: ImageTypeStations, ImageData: []byte("a"), SectionIndex: NoSection},
			{ImageType: ImageTypeStations, ImageData: []byte("b"), SectionIndex: 0},
		},
		Sections: []StationsItemSection{
			{SectionIndex: 0, Totes: "4", PrintName: "Kim"},
			{SectionIndex: 1, Totes: "2", AddOns: "1"},
		},
	}
	id, err := repo.SaveRecord(ctx, rec)
	require.NoError(t, err)

	update := &FormRecord{
		Entry: FormEntry{ID: id, Title: "Mar-04-2025-001", FormType: FormTypeStations,
			Stations: StationsDetails{FacilityName: "Station 5"}},
		Images:   []FormImage{{ImageType: ImageTypeStations, ImageData: []byte("c"), SectionIndex: 0}},
		Sections: []StationsItemSection{{SectionIndex: 0, Extra: "6", Signature: []byte("sig")}},
	}
	_, err = repo.SaveRecord(ctx, update)
	require.NoError(t, err)

	got, err := repo.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Station 5", got.Entry.Stations.FacilityName)
	assert.Empty(t, got.Entry.Stations.Run)
	require.Len(t, got.Images, 1)
	assert.Equal(t, []byte("c"), got.Images[0].ImageData)
	require.Len(t, got.Sections, 1)
	assert.Equal(t, "6", got.Sections[0].Extra)
	assert.Equal(t, []byte("sig"), got.Sections[0].Signature)
	assert.Empty(t, got.Sections[0].Totes)
}

func TestRepository_UpdateMissingEntry(t *testing.T) {
	repo := newTestRepository(t)

	rec := transferRecord("x")
	rec.Entry.ID = 404
	_, err := repo.SaveRecord(context.Background(), rec)
	assert.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)

	_, err = repo.GetRecord(context.Background(), 404)
	assert.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)
}

func TestRepository_FailedSaveLeavesNoRows(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	rec := transferRecord("broken")
	// image_data is NOT NULL; the whole save must roll back.
	rec.Images = append(rec.Images, FormImage{ImageType: ImageTypePickup, SectionIndex: NoSection})
	_, err := repo.SaveRecord(ctx, rec)
	require.Error(t, err)

	items, err := repo.ListItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRepository_DeleteByIDsCascades(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	first, err := repo.SaveRecord(ctx, transferRecord("one"))
	require.NoError(t, err)
	second, err := repo.SaveRecord(ctx, transferRecord("two"))
	require.NoError(t, err)
	third, err := repo.SaveRecord(ctx, transferRecord("three"))
	require.NoError(t, err)

	deleted, err := repo.DeleteByIDs(ctx, []int64{first, third, 999})
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	var orphans int
	require.NoError(t, repo.db.Get(&orphans,
		`SELECT COUNT(*) FROM form_images WHERE form_entry_id NOT IN (SELECT id FROM form_entries)`))
	assert.Zero(t, orphans)

	var remaining int
	require.NoError(t, repo.db.Get(&remaining, `SELECT COUNT(*) FROM form_images`))
	assert.Equal(t, 2, remaining)

	ids, err := repo.ExistingIDs(ctx, []int64{first, second, third})
	require.NoError(t, err)
	assert.Equal(t, []int64{second}, ids)
}

func TestRepository_ListItems(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.SaveRecord(ctx, transferRecord("Mar-04-2025-001"))
	require.NoError(t, err)
	_, err = repo.SaveRecord(ctx, &FormRecord{Entry: FormEntry{
		Title: "Mar-04-2025-002", FormType: FormTypeStations,
		Stations: StationsDetails{Run: "S1", FacilityName: "Station 9"},
	}})
	require.NoError(t, err)

	items, err := repo.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Mar-04-2025-002", items[0].Title)
	assert.Equal(t, FormTypeStations, items[0].FormType)
	assert.Equal(t, "S1", items[0].Run)
	assert.Equal(t, "Station 9", items[0].FacilityName)

	assert.Equal(t, "12", items[1].Run)
	assert.Equal(t, "North Depot", items[1].FacilityName)
}

func TestRepository_GetRecordsOrder(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	a, err := repo.SaveRecord(ctx, transferRecord("a"))
	require.NoError(t, err)
	b, err := repo.SaveRecord(ctx, transferRecord("b"))
	require.NoError(t, err)

	records, err := repo.GetRecords(ctx, []int64{b, 77, a, b})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[0].Entry.Title)
	assert.Equal(t, "a", records[1].Entry.Title)
	assert.Len(t, records[0].Images, 2)
}

func TestRepository_CountByTitlePrefix(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for _, title := range []string{"Mar-04-2025-001", "Mar-04-2025-002", "Mar-05-2025-001", "Mar_04"} {
		_, err := repo.SaveRecord(ctx, transferRecord(title))
		require.NoError(t, err)
	}

	count, err := repo.CountByTitlePrefix(ctx, "Mar-04-2025")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Underscore must match literally, not as a LIKE wildcard.
	count, err = repo.CountByTitlePrefix(ctx, "Mar_")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
