package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"vitrine_back_end/internal/apperr"
	"vitrine_back_end/internal/database"
	"vitrine_back_end/internal/models"
)

// Repository persiste les paniers. Mutate est la seule voie d'écriture :
// lecture, modification et écriture se font sous verrou du panier.
type Repository interface {
	// ResolveID accepte l'identifiant canonique ou l'ancienne clé de session.
	ResolveID(ctx context.Context, token string) (string, error)
	Get(ctx context.Context, id string) (*models.Cart, error)
	// Mutate applique fn au panier verrouillé. Si create est vrai, un panier absent est créé.
	// Une erreur de fn annule tout.
	Mutate(ctx context.Context, id string, create bool, fn func(*models.Cart) error) (*models.Cart, error)
}

type PostgresRepository struct {
	db database.DB
}

func NewPostgresRepository(db database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const cartColumns = `id, COALESCE(session_id, ''), COALESCE(payment_session_id, ''), COALESCE(payment_intent_id, ''), COALESCE(client_secret, ''), version, created_at, updated_at`

func (r *PostgresRepository) ResolveID(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", apperr.New(apperr.NotFound, "cart.ResolveID", "Cart not found")
	}
	var id string
	err := r.db.QueryRow(ctx, `
		SELECT id FROM carts
		WHERE id = $1 OR session_id = $1
		ORDER BY (id = $1) DESC
		LIMIT 1`, token).Scan(&id)
	if err != nil {
		if database.IsNoRows(err) {
			return "", apperr.New(apperr.NotFound, "cart.ResolveID", "Cart not found")
		}
		return "", fmt.Errorf("résolution panier: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Cart, error) {
	return load(ctx, r.db, id, false)
}

func (r *PostgresRepository) Mutate(ctx context.Context, id string, create bool, fn func(*models.Cart) error) (*models.Cart, error) {
	var out *models.Cart
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if create {
			now := time.Now().UTC()
			if _, err := tx.Exec(ctx, `
				INSERT INTO carts (id, created_at, updated_at) VALUES ($1, $2, $2)
				ON CONFLICT (id) DO NOTHING`, id, now); err != nil {
				return fmt.Errorf("création panier: %w", err)
			}
		}

		current, err := LoadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		next := current.Clone()
		if err := fn(next); err != nil {
			return err
		}
		if err := writeItems(ctx, tx, current, next); err != nil {
			return err
		}
		if next.UpdatedAt.IsZero() || next.UpdatedAt.Equal(current.UpdatedAt) {
			next.UpdatedAt = time.Now().UTC()
		}
		err = tx.QueryRow(ctx, `
			UPDATE carts
			SET version = version + 1,
			    updated_at = $2,
			    payment_session_id = NULLIF($3, ''),
			    payment_intent_id = NULLIF($4, ''),
			    client_secret = NULLIF($5, '')
			WHERE id = $1
			RETURNING version`,
			id, next.UpdatedAt, next.PaymentSessionID, next.PaymentIntentID, next.ClientSecret,
		).Scan(&next.Version)
		if err != nil {
			return fmt.Errorf("mise à jour panier: %w", err)
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadForUpdate verrouille le panier dans tx et charge ses lignes au prix courant.
func LoadForUpdate(ctx context.Context, tx pgx.Tx, id string) (*models.Cart, error) {
	return load(ctx, tx, id, true)
}

// DeleteWithTx supprime le panier et ses lignes (cascade).
func DeleteWithTx(ctx context.Context, tx pgx.Tx, id string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM carts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("suppression panier %s: %w", id, err)
	}
	return nil
}

func load(ctx context.Context, q querier, id string, lock bool) (*models.Cart, error) {
	query := `SELECT ` + cartColumns + ` FROM carts WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var c models.Cart
	err := q.QueryRow(ctx, query, id).Scan(&c.ID, &c.SessionID, &c.PaymentSessionID,
		&c.PaymentIntentID, &c.ClientSecret, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.New(apperr.NotFound, "cart.Get", "Cart not found")
		}
		return nil, fmt.Errorf("lecture panier %s: %w", id, err)
	}

	rows, err := q.Query(ctx, `
		SELECT ci.id, ci.product_id, ci.quantity, p.name, p.image_key, p.price_cents, p.shipping_price_cents, p.stock
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.added_at, ci.id`, id)
	if err != nil {
		return nil, fmt.Errorf("lecture lignes panier %s: %w", id, err)
	}
	defer rows.Close()

	c.Items = []models.CartItem{}
	for rows.Next() {
		var it models.CartItem
		if err := rows.Scan(&it.ID, &it.ProductID, &it.Quantity, &it.ProductName, &it.ImageKey,
			&it.PriceCents, &it.ShippingCents, &it.Stock); err != nil {
			return nil, err
		}
		c.Items = append(c.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &c, nil
}

// writeItems applique la différence entre les lignes avant et après mutation.
func writeItems(ctx context.Context, tx pgx.Tx, before, after *models.Cart) error {
	kept := make(map[string]bool, len(after.Items))
	for i := range after.Items {
		it := &after.Items[i]
		kept[it.ProductID] = true

		idx := before.FindItem(it.ProductID)
		switch {
		case idx < 0:
			if it.ID == "" {
				it.ID = uuid.NewString()
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO cart_items (id, cart_id, product_id, quantity)
				VALUES ($1, $2, $3, $4)`, it.ID, after.ID, it.ProductID, it.Quantity); err != nil {
				return fmt.Errorf("ajout ligne %s: %w", it.ProductID, err)
			}
		case before.Items[idx].Quantity != it.Quantity:
			if _, err := tx.Exec(ctx, `
				UPDATE cart_items SET quantity = $3
				WHERE cart_id = $1 AND product_id = $2`, after.ID, it.ProductID, it.Quantity); err != nil {
				return fmt.Errorf("mise à jour ligne %s: %w", it.ProductID, err)
			}
		}
	}

	for _, it := range before.Items {
		if kept[it.ProductID] {
			continue
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`, after.ID, it.ProductID); err != nil {
			return fmt.Errorf("suppression ligne %s: %w", it.ProductID, err)
		}
	}
	return nil
}
