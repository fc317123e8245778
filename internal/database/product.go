package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/jumia-tools/phone-scraper/internal/models"
)

const maxSpecValueLen = 500

// PersistenceError wraps a failed upsert with the product link it was for.
type PersistenceError struct {
	Link string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist %s: %v", e.Link, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ProductStore persists scraped products. Upserts are serialized through an
// internal mutex: one transaction completes before the next begins, even
// when extraction runs concurrently.
type ProductStore struct {
	db     *DB
	logger *slog.Logger
	mu     sync.Mutex
}

func NewProductStore(db *DB, logger *slog.Logger) *ProductStore {
	return &ProductStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// CheckSchema verifies the crawl's target tables exist. Called once at
// startup; a failure here is fatal to the whole run.
func (s *ProductStore) CheckSchema(ctx context.Context) error {
	for _, table := range []string{"products", "specifications"} {
		var exists bool
		err := s.db.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_name = $1
			)`, table).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check for table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}
	return nil
}

// UpsertProduct writes a product and its specification rows in a single
// transaction. On conflict by link only the mutable fields (prices, rating,
// review count, scraped_at) are overwritten; descriptive fields keep their
// first-insert values. The product's old specification rows are deleted and
// the new set inserted, so specs are always the latest full set.
func (s *ProductStore) UpsertProduct(ctx context.Context, p *models.Product) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	imageURLs := p.ImageURLs
	if imageURLs == nil {
		imageURLs = []string{}
	}
	imageJSON, err := json.Marshal(imageURLs)
	if err != nil {
		return 0, &PersistenceError{Link: p.Link, Err: err}
	}

	var id int64
	err = s.db.WithTx(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO products (
				title, current_price, original_price, discount,
				rating, review_count, seller, shipping,
				link, brand, description, scraped_at, image_urls,
				ram_gb, storage_gb, screen_size_inches, battery_mah,
				camera_mp_main, camera_mp_selfie, network_type, has_dual_sim
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
				$14, $15, $16, $17, $18, $19, $20, $21
			)
			ON CONFLICT (link) DO UPDATE SET
				current_price = EXCLUDED.current_price,
				original_price = EXCLUDED.original_price,
				discount = EXCLUDED.discount,
				rating = EXCLUDED.rating,
				review_count = EXCLUDED.review_count,
				scraped_at = EXCLUDED.scraped_at
			RETURNING id`

		if err := tx.QueryRow(ctx, query,
			p.Title, p.CurrentPrice, p.OriginalPrice, p.Discount,
			p.Rating, p.ReviewCount, p.Seller, p.Shipping,
			p.Link, p.Brand, p.Description, p.ScrapedAt, imageJSON,
			p.RAMGB, p.StorageGB, p.ScreenSizeInches, p.BatteryMAh,
			p.CameraMPMain, p.CameraMPSelfie, p.NetworkType, p.HasDualSim,
		).Scan(&id); err != nil {
			return fmt.Errorf("failed to upsert product: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM specifications WHERE product_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete old specifications: %w", err)
		}

		for _, spec := range p.Specifications {
			// Savepoint per row so one bad spec aborts only itself, not
			// the surrounding transaction.
			inner, err := tx.Begin(ctx)
			if err != nil {
				return fmt.Errorf("failed to begin savepoint: %w", err)
			}

			_, err = inner.Exec(ctx, `
				INSERT INTO specifications
					(product_id, category, spec_type, spec_key, spec_value)
				VALUES ($1, $2, $3, $4, $5)`,
				id, spec.Category, spec.SpecType, spec.SpecKey,
				truncateSpecValue(spec.SpecValue),
			)
			if err != nil {
				inner.Rollback(ctx)
				s.logger.Warn("failed to insert spec, skipping",
					"link", p.Link, "key", spec.SpecKey, "error", err)
				continue
			}
			if err := inner.Commit(ctx); err != nil {
				return fmt.Errorf("failed to release savepoint: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return 0, &PersistenceError{Link: p.Link, Err: err}
	}

	p.ID = id
	return id, nil
}

// GetProductByLink loads one product and its specification rows.
func (s *ProductStore) GetProductByLink(ctx context.Context, link string) (*models.Product, error) {
	query := `
		SELECT id, title, current_price, original_price, discount,
		       rating, review_count, seller, shipping,
		       link, brand, description, scraped_at, image_urls,
		       ram_gb, storage_gb, screen_size_inches, battery_mah,
		       camera_mp_main, camera_mp_selfie, network_type, has_dual_sim
		FROM products
		WHERE link = $1`

	p, err := scanProduct(s.db.QueryRow(ctx, query, link))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT category, spec_type, spec_key, spec_value
		FROM specifications
		WHERE product_id = $1
		ORDER BY id`, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load specifications: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var spec models.SpecEntry
		if err := rows.Scan(&spec.Category, &spec.SpecType, &spec.SpecKey, &spec.SpecValue); err != nil {
			return nil, fmt.Errorf("failed to scan specification: %w", err)
		}
		p.Specifications = append(p.Specifications, spec)
	}

	return p, nil
}

// ListProducts returns products ordered by most recently scraped.
func (s *ProductStore) ListProducts(ctx context.Context, limit, offset int) ([]*models.Product, error) {
	query := `
		SELECT id, title, current_price, original_price, discount,
		       rating, review_count, seller, shipping,
		       link, brand, description, scraped_at, image_urls,
		       ram_gb, storage_gb, screen_size_inches, battery_mah,
		       camera_mp_main, camera_mp_selfie, network_type, has_dual_sim
		FROM products
		ORDER BY scraped_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

// Stats summarizes the stored crawl output.
type Stats struct {
	Products       int      `json:"products"`
	Specifications int      `json:"specifications"`
	AvgPrice       *float64 `json:"avg_price"`
}

func (s *ProductStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := s.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM products),
			(SELECT COUNT(*) FROM specifications),
			(SELECT AVG(current_price) FROM products)
	`).Scan(&stats.Products, &stats.Specifications, &stats.AvgPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	return stats, nil
}

func scanProduct(row pgx.Row) (*models.Product, error) {
	p := &models.Product{}
	var imageJSON []byte

	err := row.Scan(
		&p.ID, &p.Title, &p.CurrentPrice, &p.OriginalPrice, &p.Discount,
		&p.Rating, &p.ReviewCount, &p.Seller, &p.Shipping,
		&p.Link, &p.Brand, &p.Description, &p.ScrapedAt, &imageJSON,
		&p.RAMGB, &p.StorageGB, &p.ScreenSizeInches, &p.BatteryMAh,
		&p.CameraMPMain, &p.CameraMPSelfie, &p.NetworkType, &p.HasDualSim,
	)
	if err != nil {
		return nil, err
	}

	if len(imageJSON) > 0 {
		if err := json.Unmarshal(imageJSON, &p.ImageURLs); err != nil {
			return nil, fmt.Errorf("failed to decode image urls: %w", err)
		}
	}

	return p, nil
}

// truncateSpecValue caps a spec value at the column limit, counting runes so
// a multi-byte character is never split.
func truncateSpecValue(v string) string {
	runes := []rune(v)
	if len(runes) <= maxSpecValueLen {
		return v
	}
	return string(runes[:maxSpecValueLen])
}
