package models

// All lists every table owned by the checkout core, parents first.
func All() []any {
	return []any{
		&Product{},
		&ProductVariant{},
		&Cart{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&WebhookEvent{},
		&OutboxEvent{},
	}
}
