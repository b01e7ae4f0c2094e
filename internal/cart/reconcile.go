package cart

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/example/aura-storefront/internal/guestcart"
	"github.com/example/aura-storefront/internal/models"
)

// pendingLine is a guest line waiting to be pushed to the server cart. ids
// are the guest lines folded into it.
type pendingLine struct {
	product  models.ProductSnapshot
	variant  models.Variant
	quantity int
	ids      []string
}

// Reconcile moves the guest cart into the server cart. Lines are matched by
// product and variant and added through the server's own merge. Every line
// that made it across leaves the guest cart, so the guest cart ends up empty
// only when every add succeeded and a retry never adds a line twice.
func Reconcile(ctx context.Context, guest *guestcart.Store, server *ServerBackend) (int, error) {
	items := guest.Items()
	if len(items) == 0 {
		return 0, nil
	}

	var order []string
	byKey := make(map[string]*pendingLine, len(items))
	for _, item := range items {
		key := itemKey(item.Product.ID, item.Variant)
		p, found := byKey[key]
		if !found {
			p = &pendingLine{product: item.Product, variant: item.Variant}
			byKey[key] = p
			order = append(order, key)
		}
		p.quantity += item.Quantity
		p.ids = append(p.ids, item.ID)
	}

	merged := 0
	var firstErr error
	for _, key := range order {
		p := byKey[key]
		if err := server.AddItem(ctx, p.product, p.quantity, p.variant); err != nil {
			log.Warn().Err(err).Str("component", "cart").Str("product_id", p.product.ID).Msg("failed to merge guest line into server cart")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, id := range p.ids {
			guest.RemoveItem(ctx, id)
		}
		merged++
	}

	if firstErr != nil {
		return merged, fmt.Errorf("merged %d of %d guest lines: %w", merged, len(order), firstErr)
	}
	return merged, nil
}

func itemKey(productID string, variant models.Variant) string {
	return productID + ":" + variant.Key()
}
