package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"vitrine_back_end/internal/apperr"
	"vitrine_back_end/internal/database"
	"vitrine_back_end/internal/models"
)

// Reader est la vue lecture seule utilisée par le panier et le paiement.
type Reader interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	GetProducts(ctx context.Context, ids []string) (map[string]*models.Product, error)
}

// Repository ajoute les écritures de gestion du catalogue.
type Repository interface {
	Reader
	UpdatePrice(ctx context.Context, id string, priceCents, shippingCents int64) (*models.Product, error)
	AdjustStock(ctx context.Context, id string, delta int) (*models.Product, error)
}

const productColumns = `id, name, description, price_cents, shipping_price_cents, stock, is_visible, image_key, created_at, updated_at`

type PostgresRepository struct {
	db  database.DB
	now func() time.Time
}

func NewPostgresRepository(db database.DB) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

func scanProduct(row pgx.Row) (*models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.ShippingCents,
		&p.Stock, &p.IsVisible, &p.ImageKey, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProduct retourne NotFound pour un produit absent ou masqué.
func (r *PostgresRepository) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.New(apperr.NotFound, "catalog.GetProduct", "Product not found")
		}
		return nil, fmt.Errorf("lecture produit %s: %w", id, err)
	}
	if !p.IsVisible {
		return nil, apperr.New(apperr.NotFound, "catalog.GetProduct", "Product not found")
	}
	return p, nil
}

// GetProducts retourne les produits visibles trouvés. Les absents sont simplement omis.
func (r *PostgresRepository) GetProducts(ctx context.Context, ids []string) (map[string]*models.Product, error) {
	out := make(map[string]*models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1) AND is_visible`, ids)
	if err != nil {
		return nil, fmt.Errorf("lecture produits: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (r *PostgresRepository) UpdatePrice(ctx context.Context, id string, priceCents, shippingCents int64) (*models.Product, error) {
	if priceCents < 0 || shippingCents < 0 {
		return nil, apperr.New(apperr.Invalid, "catalog.UpdatePrice", "Prices must not be negative")
	}
	p, err := scanProduct(r.db.QueryRow(ctx, `
		UPDATE products
		SET price_cents = $2, shipping_price_cents = $3, updated_at = $4
		WHERE id = $1
		RETURNING `+productColumns, id, priceCents, shippingCents, r.now().UTC()))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.New(apperr.NotFound, "catalog.UpdatePrice", "Product not found")
		}
		return nil, fmt.Errorf("mise à jour prix %s: %w", id, err)
	}
	return p, nil
}

// AdjustStock applique un delta au stock sans jamais descendre sous zéro.
func (r *PostgresRepository) AdjustStock(ctx context.Context, id string, delta int) (*models.Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = $3
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING `+productColumns, id, delta, r.now().UTC()))
	if err == nil {
		return p, nil
	}
	if !database.IsNoRows(err) {
		return nil, fmt.Errorf("ajustement stock %s: %w", id, err)
	}

	var stock int
	if err := r.db.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, id).Scan(&stock); err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.New(apperr.NotFound, "catalog.AdjustStock", "Product not found")
		}
		return nil, err
	}
	return nil, apperr.Newf(apperr.InvalidState, "catalog.AdjustStock", "Stock cannot go below zero (current %d)", stock)
}

// Invalidator est implémenté par les caches qui doivent oublier un produit après
// une variation de stock faite hors du catalogue.
type Invalidator interface {
	Invalidate(ctx context.Context, ids ...string)
}

// NopInvalidator sert quand aucun cache n'est branché.
type NopInvalidator struct{}

func (NopInvalidator) Invalidate(context.Context, ...string) {}
