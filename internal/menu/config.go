// Package menu defines the food-distribution business's conversation tree on
// top of the flow engine: catalog browsing, cart capture, business
// registration, and order submission.
package menu

// Product is one sellable catalog entry.
type Product struct {
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
}

// Config holds the business-specific content injected into the menu tree.
type Config struct {
	BusinessName     string    // display name used in greetings
	Coordinator      string    // coordinator shown on order receipts
	CoordinatorPhone string    // coordinator contact phone
	Catalog          []Product // sellable products, in display order
	RecipesURL       string    // media URL for the recipes flow
	LocationsText    string    // pickup point description for Encuéntranos
}

// DefaultConfig returns the stock configuration used when the integrator
// provides none.
func DefaultConfig() Config {
	return Config{
		BusinessName:     "Surtifrío",
		Coordinator:      "Coordinación de pedidos",
		CoordinatorPhone: "+573001112233",
		Catalog: []Product{
			{Name: "Pechuga de pollo", UnitPrice: 12500},
			{Name: "Alitas BBQ", UnitPrice: 9800},
			{Name: "Carne de res molida", UnitPrice: 15200},
			{Name: "Chorizo artesanal", UnitPrice: 8600},
			{Name: "Huevos AA x30", UnitPrice: 17500},
		},
		RecipesURL:    "https://surtifrio.example.com/media/recetas.jpg",
		LocationsText: "Nos encuentras en la Central de Abastos, bodega 14, y en el punto de venta del barrio Prado. Horario: lunes a sábado, 6am a 4pm.",
	}
}

// product finds a catalog entry by display name (case-insensitive), or nil.
func (c *Config) product(name string) *Product {
	for i := range c.Catalog {
		if equalFold(c.Catalog[i].Name, name) {
			return &c.Catalog[i]
		}
	}
	return nil
}
