package model

type VariantOptionAxis struct {
	Name    string   `json:"name"`
	Options []string `json:"options"`
}

type OptionChoice struct {
	Axis   string `json:"axis"`
	Option string `json:"option"`
}

// Combination is one ordered tuple of option choices, one per axis.
type Combination []OptionChoice

type Variant struct {
	ID        string      `db:"id" json:"id"`
	ProductID string      `db:"product_id" json:"product_id"`
	SKU       string      `db:"sku" json:"sku"`
	Position  int         `db:"position" json:"position"`
	Options   Combination `db:"-" json:"options"`
}
