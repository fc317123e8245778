package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jumia-tools/phone-scraper/internal/models"
)

func TestTruncateSpecValue(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLen  int
		expected string
	}{
		{
			name:     "short value untouched",
			input:    "Android 13",
			expected: "Android 13",
		},
		{
			name:     "exactly at limit untouched",
			input:    strings.Repeat("a", 500),
			expected: strings.Repeat("a", 500),
		},
		{
			name:    "long value truncated",
			input:   strings.Repeat("a", 800),
			wantLen: 500,
		},
		{
			name:    "multi-byte runes counted as one",
			input:   strings.Repeat("ü", 600),
			wantLen: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateSpecValue(tt.input)
			if tt.expected != "" {
				assert.Equal(t, tt.expected, got)
			}
			if tt.wantLen > 0 {
				assert.Equal(t, tt.wantLen, len([]rune(got)))
			}
		})
	}
}

// setupTestDB connects to the test database named by the TEST_DB_* variables
// and applies the schema. Tests that need Postgres skip when it is not
// reachable.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := Config{
		Host:     envOr("TEST_DB_HOST", "localhost"),
		Port:     5432,
		User:     envOr("TEST_DB_USER", "postgres"),
		Password: envOr("TEST_DB_PASSWORD", ""),
		Database: envOr("TEST_DB_NAME", "jumia_data_test"),
		SSLMode:  "disable",
		MaxConns: 2,
		MinConns: 1,
	}
	if raw := os.Getenv("TEST_DB_PORT"); raw != "" {
		if port, err := strconv.Atoi(raw); err == nil {
			cfg.Port = port
		}
	}

	ctx := context.Background()
	db, err := New(ctx, cfg)
	if err != nil {
		t.Skipf("test database not available: %v", err)
	}

	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "001_init.sql"))
	if err != nil {
		db.Close()
		t.Fatalf("failed to read schema: %v", err)
	}
	if _, err := db.pool.Exec(ctx, string(schema)); err != nil {
		db.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}
	if _, err := db.pool.Exec(ctx, `TRUNCATE products RESTART IDENTITY CASCADE`); err != nil {
		db.Close()
		t.Fatalf("failed to reset tables: %v", err)
	}

	return db
}

func envOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
func strPtr(v string) *string     { return &v }

func sampleProduct() *models.Product {
	return &models.Product{
		Title:        "Tecno Spark 10, 8GB RAM 128GB ROM",
		Link:         "https://www.jumia.co.ke/tecno-spark-10/",
		CurrentPrice: floatPtr(12999),
		Rating:       floatPtr(4.5),
		ReviewCount:  intPtr(120),
		Brand:        strPtr("Tecno"),
		Seller:       strPtr("Phone Place"),
		Shipping:     strPtr("Free"),
		ImageURLs:    []string{"https://ke.jumia.is/spark10.jpg"},
		ScrapedAt:    time.Now().UTC().Truncate(time.Second),
		Specifications: []models.SpecEntry{
			{Category: "Specifications", SpecKey: "Operating System", SpecValue: "Android 13"},
			{Category: "Specifications", SpecKey: "Color", SpecValue: "Black"},
		},
	}
}

func TestUpsertProductConflictUpdatesMutableFieldsOnly(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	store := NewProductStore(db, testLogger())

	first := sampleProduct()
	id, err := store.UpsertProduct(ctx, first)
	require.NoError(t, err)
	require.NotZero(t, id)

	second := sampleProduct()
	second.CurrentPrice = floatPtr(13999)
	second.Rating = floatPtr(4.1)
	second.ReviewCount = intPtr(321)
	second.Brand = strPtr("Changed Brand")
	second.Seller = strPtr("Changed Seller")
	second.ScrapedAt = first.ScrapedAt.Add(time.Hour)

	secondID, err := store.UpsertProduct(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, id, secondID)

	got, err := store.GetProductByLink(ctx, first.Link)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, 13999.0, *got.CurrentPrice)
	assert.Equal(t, 4.1, *got.Rating)
	assert.Equal(t, 321, *got.ReviewCount)
	// Descriptive fields keep their first-insert values.
	assert.Equal(t, "Tecno", *got.Brand)
	assert.Equal(t, "Phone Place", *got.Seller)
}

func TestUpsertProductReplacesSpecifications(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	store := NewProductStore(db, testLogger())

	first := sampleProduct()
	_, err := store.UpsertProduct(ctx, first)
	require.NoError(t, err)

	second := sampleProduct()
	second.Specifications = []models.SpecEntry{
		{Category: "Specifications", SpecKey: "Operating System", SpecValue: "Android 14"},
	}
	_, err = store.UpsertProduct(ctx, second)
	require.NoError(t, err)

	got, err := store.GetProductByLink(ctx, first.Link)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Specifications, 1)
	assert.Equal(t, "Operating System", got.Specifications[0].SpecKey)
	assert.Equal(t, "Android 14", got.Specifications[0].SpecValue)
}

func TestUpsertProductSkipsFailingSpecRow(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	store := NewProductStore(db, testLogger())

	p := sampleProduct()
	// Postgres rejects NUL bytes in text, so this row's insert fails while
	// the rows around it must still land.
	p.Specifications = []models.SpecEntry{
		{Category: "Specifications", SpecKey: "Color", SpecValue: "Black"},
		{Category: "Specifications", SpecKey: "Broken", SpecValue: "bad\x00value"},
		{Category: "Specifications", SpecKey: "Operating System", SpecValue: "Android 13"},
	}

	_, err := store.UpsertProduct(ctx, p)
	require.NoError(t, err)

	got, err := store.GetProductByLink(ctx, p.Link)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Specifications, 2)
	assert.Equal(t, "Color", got.Specifications[0].SpecKey)
	assert.Equal(t, "Operating System", got.Specifications[1].SpecKey)
}

func TestUpsertProductFailureReturnsPersistenceError(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	store := NewProductStore(db, testLogger())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	p := sampleProduct()
	_, err := store.UpsertProduct(cancelled, p)
	require.Error(t, err)

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, p.Link, perr.Link)

	// Nothing was persisted.
	got, err := store.GetProductByLink(ctx, p.Link)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPersistenceError(t *testing.T) {
	cause := errors.New("connection reset")
	err := &PersistenceError{Link: "https://www.jumia.co.ke/phone/", Err: cause}

	assert.Contains(t, err.Error(), "https://www.jumia.co.ke/phone/")
	assert.Contains(t, err.Error(), "connection reset")
	assert.ErrorIs(t, err, cause)
}
