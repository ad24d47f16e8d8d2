package inventory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"vitrine_back_end/internal/apperr"
	"vitrine_back_end/internal/catalog"
	"vitrine_back_end/internal/database"
	"vitrine_back_end/internal/models"
)

// Reservations bloque du stock pour un panier le temps d'une session de paiement.
type Reservations interface {
	// Reserve remplace la réservation active du panier par une réservation couvrant lines.
	// Un stock insuffisant échoue en InvalidState sans rien modifier.
	Reserve(ctx context.Context, cartID string, lines []models.StockLine, expiresAt time.Time) error
	// AttachSession rattache la réservation active non encore attribuée du panier
	// à la session de paiement qui la couvre.
	AttachSession(ctx context.Context, cartID, sessionID string) error
	// Release rend au stock la réservation active du panier. Si sessionID est
	// renseigné, seules les lignes de cette session sont libérées.
	Release(ctx context.Context, cartID, sessionID string) (int, error)
	// ReleaseExpired rend au stock toutes les réservations échues à now.
	ReleaseExpired(ctx context.Context, now time.Time) (int, error)
}

// ShortageError détaille les produits en rupture. Elle est enveloppée dans une apperr InvalidState.
type ShortageError struct {
	Shortages []models.StockShortage
}

func (e *ShortageError) Error() string {
	parts := make([]string, len(e.Shortages))
	for i, s := range e.Shortages {
		parts[i] = fmt.Sprintf("%s (demandé %d, disponible %d)", s.ProductID, s.Requested, s.Available)
	}
	return "stock insuffisant: " + strings.Join(parts, ", ")
}

// NewShortage construit l'erreur InvalidState portant le détail des ruptures.
func NewShortage(op string, shortages []models.StockShortage) error {
	return apperr.Wrap(apperr.InvalidState, op, &ShortageError{Shortages: shortages}, "Not enough stock")
}

type PostgresReservations struct {
	db    database.DB
	cache catalog.Invalidator
	now   func() time.Time
}

func NewPostgresReservations(db database.DB, inv catalog.Invalidator) *PostgresReservations {
	if inv == nil {
		inv = catalog.NopInvalidator{}
	}
	return &PostgresReservations{db: db, cache: inv, now: time.Now}
}

func (r *PostgresReservations) Reserve(ctx context.Context, cartID string, lines []models.StockLine, expiresAt time.Time) error {
	const op = "inventory.Reserve"
	lines = mergeLines(lines)
	var touched []string

	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		released, err := releaseWithTx(ctx, tx, `cart_id = $1 AND status = 'RESERVED'`, cartID)
		if err != nil {
			return err
		}

		var shortages []models.StockShortage
		for _, l := range lines {
			stock, err := lockStock(ctx, tx, l.ProductID)
			if err != nil {
				return err
			}
			if stock < l.Quantity {
				shortages = append(shortages, models.StockShortage{ProductID: l.ProductID, Requested: l.Quantity, Available: stock})
			}
		}
		if len(shortages) > 0 {
			return NewShortage(op, shortages)
		}

		now := r.now().UTC()
		for _, l := range lines {
			if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = $3 WHERE id = $1`,
				l.ProductID, l.Quantity, now); err != nil {
				return fmt.Errorf("décrément stock %s: %w", l.ProductID, err)
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO stock_reservations (id, cart_id, product_id, quantity, status, expires_at, created_at, updated_at)
				VALUES ($1, $2, $3, $4, 'RESERVED', $5, $6, $6)`,
				uuid.NewString(), cartID, l.ProductID, l.Quantity, expiresAt.UTC(), now); err != nil {
				return fmt.Errorf("insertion réservation %s: %w", l.ProductID, err)
			}
		}
		touched = append(productIDs(lines), released...)
		return nil
	})
	if err != nil {
		return err
	}
	r.cache.Invalidate(ctx, touched...)
	log.Printf("📦 Stock réservé pour le panier %s (%d produits, expire %s)", cartID, len(lines), expiresAt.UTC().Format(time.RFC3339))
	return nil
}

func (r *PostgresReservations) AttachSession(ctx context.Context, cartID, sessionID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE stock_reservations
		SET payment_session_id = $2, updated_at = now()
		WHERE cart_id = $1 AND status = 'RESERVED' AND payment_session_id IS NULL`, cartID, sessionID)
	if err != nil {
		return fmt.Errorf("rattachement réservation %s à %s: %w", cartID, sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		log.Printf("⚠️ Aucune réservation active à rattacher à la session %s (panier %s)", sessionID, cartID)
	}
	return nil
}

func (r *PostgresReservations) Release(ctx context.Context, cartID, sessionID string) (int, error) {
	where, args := `cart_id = $1 AND status = 'RESERVED'`, []any{cartID}
	if sessionID != "" {
		where, args = `cart_id = $1 AND payment_session_id = $2 AND status = 'RESERVED'`, []any{cartID, sessionID}
	}
	var released []string
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		released, err = releaseWithTx(ctx, tx, where, args...)
		return err
	})
	if err != nil {
		return 0, err
	}
	r.cache.Invalidate(ctx, released...)
	return len(released), nil
}

func (r *PostgresReservations) ReleaseExpired(ctx context.Context, now time.Time) (int, error) {
	var released []string
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		released, err = releaseWithTx(ctx, tx, `status = 'RESERVED' AND expires_at <= $1`, now.UTC())
		return err
	})
	if err != nil {
		return 0, err
	}
	r.cache.Invalidate(ctx, released...)
	return len(released), nil
}

// ConsumeWithTx convertit la réservation du panier en décrément définitif pour la commande.
// Les lignes non couvertes par la réservation sont décrémentées sous verrou. Si allowOversell
// est faux, un manque fait échouer en InvalidState. Sinon le stock est ramené à zéro et le
// manque est retourné pour être journalisé.
func ConsumeWithTx(ctx context.Context, tx pgx.Tx, cartID, orderID string, lines []models.StockLine, allowOversell bool) ([]models.StockShortage, error) {
	const op = "inventory.Consume"
	lines = mergeLines(lines)

	rows, err := tx.Query(ctx, `
		UPDATE stock_reservations
		SET status = 'CONSUMED', order_id = $2, updated_at = now()
		WHERE cart_id = $1 AND status = 'RESERVED'
		RETURNING product_id, quantity`, cartID, orderID)
	if err != nil {
		return nil, fmt.Errorf("consommation réservation %s: %w", cartID, err)
	}
	reserved, err := collectQuantities(rows)
	if err != nil {
		return nil, err
	}

	var shortages []models.StockShortage
	for _, l := range lines {
		need := l.Quantity - reserved[l.ProductID]
		delete(reserved, l.ProductID)
		if need <= 0 {
			if need < 0 {
				if err := addStock(ctx, tx, l.ProductID, -need); err != nil {
					return nil, err
				}
			}
			continue
		}

		stock, err := lockStock(ctx, tx, l.ProductID)
		if err != nil {
			return nil, err
		}
		take := need
		if stock < need {
			shortages = append(shortages, models.StockShortage{ProductID: l.ProductID, Requested: need, Available: stock})
			take = stock
		}
		if err := addStock(ctx, tx, l.ProductID, -take); err != nil {
			return nil, err
		}
	}
	// Produits réservés mais retirés du panier depuis : retour au stock.
	for pid, qty := range reserved {
		if err := addStock(ctx, tx, pid, qty); err != nil {
			return nil, err
		}
	}

	if len(shortages) > 0 && !allowOversell {
		return shortages, NewShortage(op, shortages)
	}
	return shortages, nil
}

func releaseWithTx(ctx context.Context, tx pgx.Tx, where string, args ...any) ([]string, error) {
	rows, err := tx.Query(ctx, `
		UPDATE stock_reservations
		SET status = 'RELEASED', updated_at = now()
		WHERE `+where+`
		RETURNING product_id, quantity`, args...)
	if err != nil {
		return nil, fmt.Errorf("libération réservations: %w", err)
	}
	qty, err := collectQuantities(rows)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(qty))
	for pid := range qty {
		ids = append(ids, pid)
	}
	sort.Strings(ids)
	for _, pid := range ids {
		if err := addStock(ctx, tx, pid, qty[pid]); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func collectQuantities(rows pgx.Rows) (map[string]int, error) {
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var pid string
		var q int
		if err := rows.Scan(&pid, &q); err != nil {
			return nil, err
		}
		out[pid] += q
	}
	return out, rows.Err()
}

func lockStock(ctx context.Context, tx pgx.Tx, productID string) (int, error) {
	var stock int
	err := tx.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&stock)
	if err != nil {
		if database.IsNoRows(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("verrou stock %s: %w", productID, err)
	}
	return stock, nil
}

func addStock(ctx context.Context, tx pgx.Tx, productID string, delta int) error {
	if delta == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`, productID, delta); err != nil {
		return fmt.Errorf("mise à jour stock %s: %w", productID, err)
	}
	return nil
}

// mergeLines agrège par produit et trie par id pour verrouiller toujours dans le même ordre.
func mergeLines(lines []models.StockLine) []models.StockLine {
	qty := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.Quantity > 0 {
			qty[l.ProductID] += l.Quantity
		}
	}
	out := make([]models.StockLine, 0, len(qty))
	for pid, q := range qty {
		out = append(out, models.StockLine{ProductID: pid, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func productIDs(lines []models.StockLine) []string {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	return ids
}
