package rowstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/NasaVasa/pricewatch/internal/config"
	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func openBackends(t *testing.T) map[string]domain.RowStore {
	t.Helper()
	dir := t.TempDir()

	xlsx, err := OpenXLSX(filepath.Join(dir, "watches.xlsx"), "Watches")
	require.NoError(t, err)

	sqlStore, err := OpenSQL(config.Config{
		StoreBackend: config.StoreSQLite,
		SQLitePath:   filepath.Join(dir, "watches.db"),
	}, zap.NewNop())
	require.NoError(t, err)

	stores := map[string]domain.RowStore{
		"memory": NewMemory(),
		"xlsx":   xlsx,
		"sqlite": sqlStore,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestRowStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			rows, err := store.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, rows)

			first, err := store.Append(ctx, map[string]string{
				domain.ColUserID:      "100",
				domain.ColArticle:     "12345",
				domain.ColTargetPrice: "1000",
			})
			require.NoError(t, err)
			assert.GreaterOrEqual(t, first, 1)

			second, err := store.Append(ctx, map[string]string{
				"UserID":      "200",
				"Artikel":     "777",
				"TargetPrice": "50.5",
			})
			require.NoError(t, err)
			assert.NotEqual(t, first, second)

			rows, err = store.List(ctx)
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, first, rows[0].Index)
			assert.Equal(t, "100", rows[0].Values[domain.ColUserID])
			assert.Equal(t, "12345", rows[0].Values[domain.ColArticle])
			assert.Equal(t, "", rows[0].Values[domain.ColLastPrice])
			assert.Equal(t, "777", rows[1].Values[domain.ColArticle])

			require.NoError(t, store.Update(ctx, second, map[string]string{
				domain.ColLastPrice: "49.99",
				domain.ColNotified:  "TRUE",
				"unknown_column":    "ignored",
			}))

			rows, err = store.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, "49.99", rows[1].Values[domain.ColLastPrice])
			assert.Equal(t, "TRUE", rows[1].Values[domain.ColNotified])
			assert.Equal(t, "50.5", rows[1].Values[domain.ColTargetPrice])

			require.NoError(t, store.Delete(ctx, first))
			rows, err = store.List(ctx)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, "200", rows[0].Values[domain.ColUserID])

			err = store.Update(ctx, 9999, map[string]string{domain.ColNotified: "FALSE"})
			assert.True(t, errors.Is(err, domain.ErrNotFound))
			err = store.Delete(ctx, 9999)
			assert.True(t, errors.Is(err, domain.ErrNotFound))
		})
	}
}

func TestXLSXStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "watches.xlsx")

	store, err := OpenXLSX(path, "Watches")
	require.NoError(t, err)
	index, err := store.Append(ctx, map[string]string{domain.ColUserID: "1", domain.ColArticle: "42", domain.ColTargetPrice: "10"})
	require.NoError(t, err)
	assert.Equal(t, 2, index)
	require.NoError(t, store.Close())

	reopened, err := OpenXLSX(path, "Watches")
	require.NoError(t, err)
	defer reopened.Close()

	rows, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Index)
	assert.Equal(t, "42", rows[0].Values[domain.ColArticle])
}

func TestXLSXStoreReadsForeignHeader(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sheet.xlsx")

	// a sheet laid out by hand, with legacy header names and an extra column
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName(f.GetSheetName(0), "Watches"))
	header := []string{"UserID", "Comment", "Artikel", "TargetPrice", "LastPrice", "Notified"}
	require.NoError(t, f.SetSheetRow("Watches", "A1", &header))
	row := []string{"555", "gift", "98765", "1000", "1200", "FALSE"}
	require.NoError(t, f.SetSheetRow("Watches", "A2", &row))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	store, err := OpenXLSX(path, "Watches")
	require.NoError(t, err)
	defer store.Close()

	rows, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "555", rows[0].Values[domain.ColUserID])
	assert.Equal(t, "98765", rows[0].Values[domain.ColArticle])
	assert.Equal(t, "1200", rows[0].Values[domain.ColLastPrice])
	assert.Equal(t, "", rows[0].Values[domain.ColCheckedAt])

	require.NoError(t, store.Update(ctx, 2, map[string]string{domain.ColCheckedAt: "2026-01-02T03:04:05Z"}))

	check, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer check.Close()
	value, err := check.GetCellValue("Watches", "G1")
	require.NoError(t, err)
	assert.Equal(t, domain.ColCheckedAt, value)
	value, err = check.GetCellValue("Watches", "B2")
	require.NoError(t, err)
	assert.Equal(t, "gift", value)
}

func TestRowStoreDeleteKeepsIndexes(t *testing.T) {
	ctx := context.Background()

	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			var indexes []int
			for _, article := range []string{"a", "b", "c"} {
				index, err := store.Append(ctx, map[string]string{domain.ColUserID: "1", domain.ColArticle: article, domain.ColTargetPrice: "1"})
				require.NoError(t, err)
				indexes = append(indexes, index)
			}

			require.NoError(t, store.Delete(ctx, indexes[1]))
			require.NoError(t, store.Delete(ctx, indexes[2]))

			// a stale index must not land on another record
			err := store.Update(ctx, indexes[1], map[string]string{domain.ColNotified: "TRUE"})
			assert.True(t, errors.Is(err, domain.ErrNotFound))
			require.NoError(t, store.Update(ctx, indexes[0], map[string]string{domain.ColLastPrice: "7"}))

			fresh, err := store.Append(ctx, map[string]string{domain.ColUserID: "2", domain.ColArticle: "d", domain.ColTargetPrice: "1"})
			require.NoError(t, err)
			assert.NotContains(t, indexes, fresh)
			err = store.Update(ctx, indexes[2], map[string]string{domain.ColNotified: "TRUE"})
			assert.True(t, errors.Is(err, domain.ErrNotFound))

			rows, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, indexes[0], rows[0].Index)
			assert.Equal(t, "a", rows[0].Values[domain.ColArticle])
			assert.Equal(t, "7", rows[0].Values[domain.ColLastPrice])
			assert.Equal(t, fresh, rows[1].Index)
			assert.Equal(t, "d", rows[1].Values[domain.ColArticle])
		})
	}
}

func TestXLSXStoreDeleteBlanksRowInPlace(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "w.xlsx")
	store, err := OpenXLSX(path, "Watches")
	require.NoError(t, err)

	for _, article := range []string{"a", "b", "c"} {
		_, err := store.Append(ctx, map[string]string{domain.ColUserID: "1", domain.ColArticle: article, domain.ColTargetPrice: "1"})
		require.NoError(t, err)
	}
	require.NoError(t, store.Delete(ctx, 3))
	assert.True(t, errors.Is(store.Delete(ctx, 3), domain.ErrNotFound))

	rows, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Index)
	assert.Equal(t, "a", rows[0].Values[domain.ColArticle])
	assert.Equal(t, 4, rows[1].Index)
	assert.Equal(t, "c", rows[1].Values[domain.ColArticle])
	assert.True(t, errors.Is(store.Update(ctx, 1, map[string]string{domain.ColNotified: "TRUE"}), domain.ErrNotFound))
	require.NoError(t, store.Close())

	check, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer check.Close()
	value, err := check.GetCellValue("Watches", "B4")
	require.NoError(t, err)
	assert.Equal(t, "c", value)
	value, err = check.GetCellValue("Watches", "B3")
	require.NoError(t, err)
	assert.Equal(t, "", value)
}
