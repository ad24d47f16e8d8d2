// Package reconcile transforme les événements de paiement vérifiés en commandes,
// une seule fois par panier et par session, même en cas de redélivrance.
package reconcile

import (
	"context"
	"log"
	"sync"
	"time"

	"vitrine_back_end/internal/apperr"
	"vitrine_back_end/internal/cache"
	"vitrine_back_end/internal/events"
	"vitrine_back_end/internal/inventory"
	"vitrine_back_end/internal/journal"
	"vitrine_back_end/internal/models"
	"vitrine_back_end/internal/notify"
	"vitrine_back_end/internal/order"
	"vitrine_back_end/internal/payment"
)

// Orders est la partie du service de commande utilisée par la réconciliation.
type Orders interface {
	CreateFromCart(ctx context.Context, req order.BuildRequest) (*models.Order, error)
	Get(ctx context.Context, id string) (*models.Order, error)
	FindByPaymentRef(ctx context.Context, ref string) (*models.Order, error)
	FindByCart(ctx context.Context, cartID string) (*models.Order, error)
	UpdateStatus(ctx context.Context, id string, to models.OrderStatus) (*models.Order, error)
}

// Deduper mémorise les événements déjà traités avec succès.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	MarkSeen(ctx context.Context, key string, ttl time.Duration) error
}

type Refunder interface {
	Refund(ctx context.Context, paymentIntentID string, amountCents int64) (string, error)
}

type Options struct {
	Dedup     Deduper
	Publisher events.Publisher
	Journal   journal.Recorder
	Mailer    notify.Mailer
}

type Coordinator struct {
	orders   Orders
	stock    inventory.Reservations
	refunder Refunder
	dedup    Deduper
	pub      events.Publisher
	journal  journal.Recorder
	mailer   notify.Mailer
	now      func() time.Time

	mailWG sync.WaitGroup
}

func NewCoordinator(orders Orders, stock inventory.Reservations, refunder Refunder, opts Options) *Coordinator {
	c := &Coordinator{
		orders:   orders,
		stock:    stock,
		refunder: refunder,
		dedup:    opts.Dedup,
		pub:      opts.Publisher,
		journal:  opts.Journal,
		mailer:   opts.Mailer,
		now:      time.Now,
	}
	if c.pub == nil {
		c.pub = events.NopPublisher{}
	}
	if c.journal == nil {
		c.journal = journal.NopRecorder{}
	}
	if c.mailer == nil {
		c.mailer = notify.NopMailer{}
	}
	return c
}

// HandleWebhookEvent applique un événement déjà vérifié. Une erreur signifie que
// l'événement doit être redélivré ; une redélivrance d'un événement traité est un no-op.
func (c *Coordinator) HandleWebhookEvent(ctx context.Context, ev *payment.Event) error {
	key := cache.Key(cache.KeyWebhookDedup, ev.ID)
	if c.dedup != nil {
		seen, err := c.dedup.Seen(ctx, key)
		if err != nil {
			log.Printf("⚠️ Dédup Redis indisponible pour %s: %v", ev.ID, err)
		} else if seen {
			log.Printf("🔁 Événement %s déjà traité, ignoré", ev.ID)
			return nil
		}
	}

	log.Printf("📥 Événement %s (%s)", ev.Type, ev.ID)

	var (
		entry journal.Entry
		err   error
	)
	switch ev.Type {
	case payment.EventCheckoutCompleted:
		entry, err = c.checkoutCompleted(ctx, ev)
	case payment.EventCheckoutAsyncSucceeded, payment.EventPaymentSucceeded:
		entry, err = c.paymentSucceeded(ctx, ev)
	case payment.EventCheckoutExpired:
		entry, err = c.checkoutExpired(ctx, ev)
	case payment.EventPaymentFailed:
		log.Printf("⚠️ Paiement échoué %s (panier %s)", ev.Object.ID, ev.Object.Metadata[payment.MetaCartID])
		entry = journal.Entry{Outcome: journal.OutcomeIgnored, Detail: "payment failed"}
	default:
		entry = journal.Entry{Outcome: journal.OutcomeIgnored}
	}

	entry.EventID, entry.EventType, entry.At = ev.ID, ev.Type, c.now()
	if entry.CartID == "" {
		entry.CartID = ev.Object.Metadata[payment.MetaCartID]
	}
	if entry.PaymentRef == "" {
		entry.PaymentRef = ev.Object.ID
	}

	if err != nil {
		log.Printf("❌ Traitement de %s (%s) échoué: %v", ev.ID, ev.Type, err)
		entry.Outcome, entry.Detail = journal.OutcomeFailed, err.Error()
		c.record(ctx, entry)
		return err
	}

	c.record(ctx, entry)
	if c.dedup != nil {
		if err := c.dedup.MarkSeen(ctx, key, cache.TTLDedup); err != nil {
			log.Printf("⚠️ Marquage dédup %s impossible: %v", ev.ID, err)
		}
	}
	return nil
}

func (c *Coordinator) checkoutCompleted(ctx context.Context, ev *payment.Event) (journal.Entry, error) {
	obj := ev.Object
	cartID := obj.Metadata[payment.MetaCartID]
	if cartID == "" {
		log.Printf("⚠️ Session %s sans cart_id, rien à créer", obj.ID)
		return journal.Entry{Outcome: journal.OutcomeIgnored, Detail: "missing cart_id"}, nil
	}

	if existing := c.findByRefs(ctx, obj.PaymentRefs()); existing != nil {
		return c.duplicate(ctx, existing, obj)
	}

	o, err := c.orders.CreateFromCart(ctx, order.BuildRequest{
		CartID:           cartID,
		UserID:           payment.UserFromMetadata(obj.Metadata),
		ShippingAddress:  payment.AddressFromMetadata(obj.Metadata),
		PaymentSessionID: obj.ID,
		PaymentIntentID:  obj.PaymentIntentID,
		AllowOversell:    true,
	})
	if err != nil {
		// Conflit d'unicité ou panier déjà consommé : seule une commande portant
		// la même référence de paiement est une redélivrance.
		if apperr.Is(err, apperr.Conflict) || apperr.Is(err, apperr.InvalidState) {
			if existing := c.findByRefs(ctx, obj.PaymentRefs()); existing != nil {
				return c.duplicate(ctx, existing, obj)
			}
			if converted, ferr := c.orders.FindByCart(ctx, cartID); ferr == nil {
				return c.orphanPayment(ctx, converted, obj)
			}
		}
		return journal.Entry{CartID: cartID}, err
	}

	log.Printf("✅ Commande %s créée pour la session %s (panier %s)", o.ID, obj.ID, cartID)
	c.publish(ctx, events.TypeOrderCreated, o)
	c.sendConfirmation(ctx, obj.CustomerEmail, o)

	if obj.PaymentStatus == payment.PaymentStatusPaid {
		if _, err := c.markPaid(ctx, o); err != nil {
			return journal.Entry{OrderID: o.ID, CartID: cartID}, err
		}
	}
	return journal.Entry{Outcome: journal.OutcomeOrderCreated, OrderID: o.ID, CartID: cartID}, nil
}

// duplicate traite une redélivrance : rien n'est recréé, le paiement est seulement rejoué.
func (c *Coordinator) duplicate(ctx context.Context, o *models.Order, obj payment.EventObject) (journal.Entry, error) {
	log.Printf("🔁 Commande %s déjà créée pour %s, redélivrance ignorée", o.ID, obj.ID)
	if obj.PaymentStatus == payment.PaymentStatusPaid {
		if _, err := c.markPaid(ctx, o); err != nil {
			return journal.Entry{OrderID: o.ID, CartID: o.CartID}, err
		}
	}
	return journal.Entry{Outcome: journal.OutcomeDuplicate, OrderID: o.ID, CartID: o.CartID}, nil
}

// orphanPayment traite un paiement encaissé sur un panier déjà converti par une
// autre session : aucune commande n'est créée et le paiement est remboursé.
func (c *Coordinator) orphanPayment(ctx context.Context, converted *models.Order, obj payment.EventObject) (journal.Entry, error) {
	entry := journal.Entry{Outcome: journal.OutcomeOrphanPayment, OrderID: converted.ID, CartID: converted.CartID}
	log.Printf("🚨 Paiement %s sur le panier %s déjà converti en commande %s", obj.ID, converted.CartID, converted.ID)

	if obj.PaymentStatus != payment.PaymentStatusPaid {
		entry.Detail = "awaiting payment"
		return entry, nil
	}
	if obj.PaymentIntentID == "" || obj.AmountTotal <= 0 {
		entry.Detail = "nothing to refund"
		return entry, nil
	}

	refundID, err := c.refunder.Refund(ctx, obj.PaymentIntentID, obj.AmountTotal)
	if err != nil {
		return journal.Entry{OrderID: converted.ID, CartID: converted.CartID}, err
	}
	if err := c.journal.RecordRefund(ctx, models.Refund{
		OrderID:          converted.ID,
		PaymentIntentID:  obj.PaymentIntentID,
		ProviderRefundID: refundID,
		AmountCents:      obj.AmountTotal,
		CreatedAt:        c.now().UTC(),
	}); err != nil {
		log.Printf("⚠️ Remboursement %s non journalisé: %v", refundID, err)
	}
	log.Printf("💸 Paiement %s remboursé (%s)", obj.PaymentIntentID, models.FormatCents(obj.AmountTotal))
	entry.Detail = "refunded " + refundID
	return entry, nil
}

func (c *Coordinator) paymentSucceeded(ctx context.Context, ev *payment.Event) (journal.Entry, error) {
	o := c.findByRefs(ctx, ev.Object.PaymentRefs())
	if o == nil {
		// Paiement asynchrone abouti d'une session dont le panier a déjà été converti ailleurs.
		if cartID := ev.Object.Metadata[payment.MetaCartID]; ev.Type == payment.EventCheckoutAsyncSucceeded && cartID != "" {
			if converted, err := c.orders.FindByCart(ctx, cartID); err == nil {
				return c.orphanPayment(ctx, converted, ev.Object)
			}
		}
		log.Printf("⚠️ Aucune commande pour le paiement %s", ev.Object.ID)
		return journal.Entry{Outcome: journal.OutcomeIgnored, Detail: "no matching order"}, nil
	}
	changed, err := c.markPaid(ctx, o)
	if err != nil {
		return journal.Entry{OrderID: o.ID}, err
	}
	outcome := journal.OutcomeDuplicate
	if changed {
		outcome = journal.OutcomeStatusUpdated
	}
	return journal.Entry{Outcome: outcome, OrderID: o.ID, CartID: o.CartID}, nil
}

func (c *Coordinator) checkoutExpired(ctx context.Context, ev *payment.Event) (journal.Entry, error) {
	cartID := ev.Object.Metadata[payment.MetaCartID]
	if cartID == "" {
		return journal.Entry{Outcome: journal.OutcomeIgnored, Detail: "missing cart_id"}, nil
	}
	// Seules les lignes de cette session sont rendues : une session plus récente du
	// même panier garde sa réservation.
	n, err := c.stock.Release(ctx, cartID, ev.Object.ID)
	if err != nil {
		return journal.Entry{CartID: cartID}, err
	}
	log.Printf("🔓 Session %s expirée: %d réservation(s) libérée(s) pour le panier %s", ev.Object.ID, n, cartID)
	return journal.Entry{Outcome: journal.OutcomeReleased, CartID: cartID}, nil
}

// markPaid passe la commande de Pending à PaymentReceived. Une commande déjà
// au-delà de Pending est laissée telle quelle.
func (c *Coordinator) markPaid(ctx context.Context, o *models.Order) (bool, error) {
	if o.Status != models.StatusPending {
		return false, nil
	}
	updated, err := c.orders.UpdateStatus(ctx, o.ID, models.StatusPaymentReceived)
	if err != nil {
		if apperr.Is(err, apperr.Conflict) || apperr.Is(err, apperr.InvalidState) {
			// Une autre livraison a gagné la course.
			current, gerr := c.orders.Get(ctx, o.ID)
			if gerr == nil && current.Status != models.StatusPending {
				return false, nil
			}
		}
		return false, err
	}
	log.Printf("💳 Paiement reçu pour la commande %s", o.ID)
	c.publish(ctx, events.TypeOrderStatusChanged, updated)
	return true, nil
}

// CancelOrder annule une commande Pending, ou rembourse puis annule une commande payée.
func (c *Coordinator) CancelOrder(ctx context.Context, orderID string) (*models.Order, error) {
	const op = "reconcile.CancelOrder"
	o, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch o.Status {
	case models.StatusPending:
	case models.StatusPaymentReceived:
		if o.PaymentIntentID == "" {
			return nil, apperr.New(apperr.InvalidState, op, "Order has no payment to refund")
		}
		refundID, err := c.refunder.Refund(ctx, o.PaymentIntentID, o.TotalCents)
		if err != nil {
			return nil, err
		}
		if err := c.journal.RecordRefund(ctx, models.Refund{
			OrderID:          o.ID,
			PaymentIntentID:  o.PaymentIntentID,
			ProviderRefundID: refundID,
			AmountCents:      o.TotalCents,
			CreatedAt:        c.now().UTC(),
		}); err != nil {
			log.Printf("⚠️ Remboursement %s non journalisé: %v", refundID, err)
		}
	default:
		return nil, apperr.Newf(apperr.InvalidState, op, "Cannot cancel order in status %s", o.Status)
	}

	updated, err := c.orders.UpdateStatus(ctx, o.ID, models.StatusCancelled)
	if err != nil {
		return nil, err
	}
	log.Printf("🛑 Commande %s annulée", o.ID)
	c.publish(ctx, events.TypeOrderStatusChanged, updated)
	return updated, nil
}

// UpdateStatus est la transition administrative ; elle publie le changement.
func (c *Coordinator) UpdateStatus(ctx context.Context, orderID string, to models.OrderStatus) (*models.Order, error) {
	if to == models.StatusCancelled {
		return c.CancelOrder(ctx, orderID)
	}
	updated, err := c.orders.UpdateStatus(ctx, orderID, to)
	if err != nil {
		return nil, err
	}
	c.publish(ctx, events.TypeOrderStatusChanged, updated)
	return updated, nil
}

// Wait attend la fin des e-mails en cours d'envoi.
func (c *Coordinator) Wait() {
	c.mailWG.Wait()
}

func (c *Coordinator) findByRefs(ctx context.Context, refs []string) *models.Order {
	for _, ref := range refs {
		o, err := c.orders.FindByPaymentRef(ctx, ref)
		if err == nil {
			return o
		}
		if !apperr.Is(err, apperr.NotFound) {
			log.Printf("⚠️ Recherche de commande par %s: %v", ref, err)
		}
	}
	return nil
}

func (c *Coordinator) publish(ctx context.Context, kind string, o *models.Order) {
	if err := c.pub.Publish(ctx, events.NewOrderEvent(kind, o)); err != nil {
		log.Printf("⚠️ Événement %s pour %s non publié: %v", kind, o.ID, err)
	}
}

func (c *Coordinator) record(ctx context.Context, e journal.Entry) {
	if err := c.journal.Record(ctx, e); err != nil {
		log.Printf("⚠️ Journal %s: %v", e.EventID, err)
	}
}

func (c *Coordinator) sendConfirmation(ctx context.Context, to string, o *models.Order) {
	if to == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	c.mailWG.Add(1)
	go func() {
		defer c.mailWG.Done()
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := c.mailer.SendOrderConfirmation(ctx, to, o); err != nil {
			log.Printf("❌ Erreur envoi e-mail confirmation %s: %v", o.ID, err)
			return
		}
		log.Printf("📧 E-mail de confirmation envoyé pour %s", o.ID)
	}()
}
