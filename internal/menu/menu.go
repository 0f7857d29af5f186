// Package menu wires the business's flow nodes into the router.
package menu

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/surtifrio/flowbot/internal/flow"
	"github.com/surtifrio/flowbot/internal/models"
)

// Session field names captured by the menu tree.
const (
	FieldClientType     = "client_type"
	FieldBusinessName   = "business_name"
	FieldCity           = "city"
	FieldContactPerson  = "contact_person"
	FieldPendingProduct = "pending_product"
)

// Materializer converts the session's cart into a persisted order.
type Materializer interface {
	CreateOrder(ctx context.Context, sess *models.Session, identity string) (*models.Order, error)
}

// Menu builds and registers the business's flow nodes.
type Menu struct {
	cfg          Config
	materializer Materializer
}

// New creates the menu tree with its configuration and order materializer.
func New(cfg Config, materializer Materializer) *Menu {
	if len(cfg.Catalog) == 0 {
		cfg = DefaultConfig()
	}
	return &Menu{cfg: cfg, materializer: materializer}
}

// RegisterAll registers every node in a fixed order. Order matters: the
// router resolves overlapping triggers by first registration, and tests rely
// on this being deterministic.
func (m *Menu) RegisterAll(r *flow.Router) error {
	nodes := []*flow.Node{
		m.welcomeNode(),
		m.rootMenuNode(),
		m.orderEntryNode(),
		m.householdNode(),
		m.businessNode(),
		m.businessNameNode(),
		m.businessCityNode(),
		m.businessContactNode(),
		m.catalogNode(),
		m.quantityNode(),
		m.confirmNode(),
		m.recipesNode(),
		m.advisorNode(),
		m.locationsNode(),
	}
	for _, n := range nodes {
		if err := r.Register(n); err != nil {
			return fmt.Errorf("failed to register node %s: %w", n.Name, err)
		}
	}
	slog.Info("Menu nodes registered", "count", len(nodes))
	return nil
}

// rootMenuMessage is the top-level menu every flow can return to.
func (m *Menu) rootMenuMessage() models.OutboundMessage {
	return models.ButtonsMessage("¿Qué deseas hacer hoy? 👇", "Pedido", "Recetas", "Atención")
}

func (m *Menu) welcomeNode() *flow.Node {
	return &flow.Node{
		Name:     "bienvenida",
		Triggers: []string{"hola", "buenas", "buenos días", "buenas tardes", "hey"},
		Welcome:  true,
		Action: func(ctx context.Context, sess *models.Session, identity, input string) (flow.Result, error) {
			greeting := fmt.Sprintf("¡Hola! 👋 Bienvenido a %s, tu distribuidora de confianza.", m.cfg.BusinessName)
			return flow.Result{
				Messages: []models.OutboundMessage{
					models.TextMessage(greeting),
					m.rootMenuMessage(),
				},
			}, nil
		},
	}
}

func (m *Menu) rootMenuNode() *flow.Node {
	return &flow.Node{
		Name:     "menu",
		Triggers: []string{"volver menú", "volver menu", "menú", "menu", "inicio"},
		Action: func(ctx context.Context, sess *models.Session, identity, input string) (flow.Result, error) {
			return flow.Result{
				Messages: []models.OutboundMessage{m.rootMenuMessage()},
			}, nil
		},
	}
}

func (m *Menu) orderEntryNode() *flow.Node {
	return &flow.Node{
		Name:     "pedido",
		Triggers: []string{"pedido", "hacer pedido"},
		Action: func(ctx context.Context, sess *models.Session, identity, input string) (flow.Result, error) {
			return flow.Result{
				Messages: []models.OutboundMessage{
					models.ButtonsMessage("¡Con gusto! Cuéntanos qué tipo de cliente eres:", "Hogar", "Negocios", "Encuéntranos"),
				},
			}, nil
		},
	}
}

func (m *Menu) householdNode() *flow.Node {
	return &flow.Node{
		Name:     "hogar",
		Triggers: []string{"hogar"},
		Action: func(ctx context.Context, sess *models.Session, identity, input string) (flow.Result, error) {
			sess.SetField(FieldClientType, "hogar")
			return flow.Result{
				Messages: []models.OutboundMessage{
					models.TextMessage("¡Perfecto! Estos son nuestros productos para tu hogar:"),
				},
				Next: "catalogo",
			}, nil
		},
	}
}

func (m *Menu) businessNode() *flow.Node {
	return &flow.Node{
		Name:     "negocios",
		Triggers: []string{"negocios", "negocio"},
		Action: func(ctx context.Context, sess *models.Session, identity, input string) (flow.Result, error) {
			sess.SetField(FieldClientType, "negocios")
			return flow.Result{
				Messages: []models.OutboundMessage{
					models.TextMessage("¡Excelente! Atendemos restaurantes, tiendas y asaderos con precios mayoristas. Primero unos datos rápidos."),
				},
				Next: "nombre_negocio",
			}, nil
		},
	}
}

func (m *Menu) businessNameNode() *flow.Node {
	return &flow.Node{
		Name:    "nombre_negocio",
		Capture: true,
		Action: func(ctx context.Context, sess *models.Session, identity, input string) (flow.Result, error) {
			input = strings.TrimSpace(input)
			if input == "" {
				return flow.Result{
					Messages: []models.OutboundMessage{models.TextMessage("¿Cuál es el nombre de tu negocio?")},
				}, nil
			}
			sess.SetField(FieldBusinessName, input)
			return flow.Result{Next: "ciudad_negocio"}, nil
		},
	}
}

func (m *Menu) businessCityNode() *flow.Node {
	return &flow.Node{
		Name:    "ciudad_negocio",
		Capture: true,
		Action: func(ctx context.Context, sess *models.Session, identity, input string) (flow.Result, error) {
			input = strings.TrimSpace(input)
			if input == "" {
				return flow.Result{
					Messages: []models.OutboundMessage{models.TextMessage("¿En qué ciudad está ubicado?")},
				}, nil
			}
			sess.SetField(FieldCity, input)
			return flow.Result{Next: "contacto_negocio"}, nil
		},
	}
}

func (m *Menu) businessContactNode() *flow.Node {
	return &flow.Node{
		Name:    "contacto_negocio",
		Capture: true,
		Action: func(ctx context.Context, sess *models.Session, identity, input string) (flow.Result, error) {
			input = strings.TrimSpace(input)
			if input == "" {
				return flow.Result{
					Messages: []models.OutboundMessage{models.TextMessage("¿Con quién tenemos el gusto? Indícanos la persona de contacto.")},
				}, nil
			}
			sess.SetField(FieldContactPerson, input)
			milestone := &models.Milestone{
				Identity: identity,
				Kind:     models.MilestoneRegistration,
				Content: fmt.Sprintf("negocio=%s ciudad=%s contacto=%s",
					sess.Field(FieldBusinessName), sess.Field(FieldCity), input),
				Timestamp: time.Now(),
			}
			return flow.Result{
				Messages: []models.OutboundMessage{
					models.TextMessage(fmt.Sprintf("¡Registro completo, %s! 🎉 Estos son nuestros productos con precio mayorista:", input)),
				},
				Next:      "catalogo",
				Milestone: milestone,
			}, nil
		},
	}
}

func (m *Menu) catalogNode() *flow.Node {
	return &flow.Node{
		Name:     "catalogo",
		Triggers: []string{"catálogo", "catalogo", "productos", "agregar más", "agregar mas"},
		Capture:  true,
		Action: func(ctx context.Context, sess *models.Session, identity, input string) (flow.Result, error) {
			if p := m.resolveProduct(input); p != nil {
				sess.SetField(FieldPendingProduct, p.Name)
				return flow.Result{Next: "cantidad"}, nil
			}
			messages := []models.OutboundMessage{m.catalogMessage()}
			if input != "" && !m.isCatalogTrigger(input) {
				messages = []models.OutboundMessage{
					models.TextMessage("No encontré ese producto 🤔. Elige uno de la lista:"),
					m.catalogMessage(),
				}
			}
			return flow.Result{Messages: messages}, nil
		},
	}
}

func (m *Menu) quantityNode() *flow.Node {
	return &flow.Node{
		Name:    "cantidad",
		Capture: true,
		Action: func(ctx context.Context, sess *models.Session, identity, input string) (flow.Result, error) {
			pending := sess.Field(FieldPendingProduct)
			product := m.cfg.product(pending)
			if product == nil {
				// Pending product vanished (e.g. close-out in between); restart the catalog.
				return flow.Result{Next: "catalogo"}, nil
			}
			input = strings.TrimSpace(input)
			if input == "" {
				return flow.Result{
					Messages: []models.OutboundMessage{
						models.TextMessage(fmt.Sprintf("¿Cuántas unidades de %s deseas? (precio unitario $%.0f)", product.Name, product.UnitPrice)),
					},
				}, nil
			}
			qty, err := strconv.Atoi(input)
			if err != nil || qty <= 0 {
				return flow.Result{
					Messages: []models.OutboundMessage{
						models.TextMessage("Por favor indícanos la cantidad en números, por ejemplo: 3"),
					},
				}, nil
			}
			item := models.CartItem{
				ProductName: product.Name,
				Quantity:    qty,
				UnitPrice:   product.UnitPrice,
				Subtotal:    float64(qty) * product.UnitPrice,
			}
			sess.Cart = append(sess.Cart, item)
			sess.SetField(FieldPendingProduct, "")
			summary := fmt.Sprintf("Agregado: %d x %s = $%.0f\nTotal parcial: $%.0f",
				qty, product.Name, item.Subtotal, sess.CartTotal())
			return flow.Result{
				Messages: []models.OutboundMessage{
					models.ButtonsMessage(summary, "Agregar más", "Confirmar pedido", "Volver menú"),
				},
			}, nil
		},
	}
}

func (m *Menu) confirmNode() *flow.Node {
	return &flow.Node{
		Name:     "confirmar_pedido",
		Triggers: []string{"confirmar pedido", "confirmar"},
		Action: func(ctx context.Context, sess *models.Session, identity, input string) (flow.Result, error) {
			if len(sess.Cart) == 0 {
				return flow.Result{
					Messages: []models.OutboundMessage{
						models.TextMessage("Tu carrito está vacío. Elige un producto para comenzar:"),
					},
					Next: "catalogo",
				}, nil
			}
			order, err := m.materializer.CreateOrder(ctx, sess, identity)
			if err != nil {
				return flow.Result{}, fmt.Errorf("failed to materialize order: %w", err)
			}
			sess.Cart = nil
			sess.CurrentFlow = ""
			receipt := fmt.Sprintf(
				"✅ ¡Pedido recibido! Total: $%.0f\n%s te contactará pronto al %s para coordinar la entrega.",
				order.Total, order.AssignedCoordinator, order.CoordinatorPhone)
			milestone := &models.Milestone{
				Identity:  identity,
				Kind:      models.MilestoneOrder,
				Content:   fmt.Sprintf("orden=%s total=%.0f lineas=%d", order.ID, order.Total, len(order.LineItems)),
				Timestamp: time.Now(),
			}
			return flow.Result{
				Messages: []models.OutboundMessage{
					models.TextMessage(receipt),
					m.rootMenuMessage(),
				},
				Milestone: milestone,
			}, nil
		},
	}
}

func (m *Menu) recipesNode() *flow.Node {
	return &flow.Node{
		Name:     "recetas",
		Triggers: []string{"recetas", "receta"},
		Action: func(ctx context.Context, sess *models.Session, identity, input string) (flow.Result, error) {
			return flow.Result{
				Messages: []models.OutboundMessage{
					models.MediaMessage("🍗 Recetas de la semana con nuestros productos. ¡Provecho!", m.cfg.RecipesURL),
					models.TextMessage("Escribe *volver menú* para regresar al inicio."),
				},
			}, nil
		},
	}
}

func (m *Menu) advisorNode() *flow.Node {
	return &flow.Node{
		Name:     "atencion",
		Triggers: []string{"atención", "atencion", "asesor", "atención al cliente"},
		Action: func(ctx context.Context, sess *models.Session, identity, input string) (flow.Result, error) {
			milestone := &models.Milestone{
				Identity:  identity,
				Kind:      models.MilestoneAdvisorContact,
				Content:   fmt.Sprintf("coordinador=%s", m.cfg.Coordinator),
				Timestamp: time.Now(),
			}
			return flow.Result{
				Messages: []models.OutboundMessage{
					models.TextMessage(fmt.Sprintf("Con gusto te atiende %s 📞 %s. En horario hábil respondemos en minutos.",
						m.cfg.Coordinator, m.cfg.CoordinatorPhone)),
				},
				Milestone: milestone,
			}, nil
		},
	}
}

func (m *Menu) locationsNode() *flow.Node {
	return &flow.Node{
		Name:     "encuentranos",
		Triggers: []string{"encuéntranos", "encuentranos", "ubicaciones", "puntos de venta"},
		Action: func(ctx context.Context, sess *models.Session, identity, input string) (flow.Result, error) {
			return flow.Result{
				Messages: []models.OutboundMessage{
					models.TextMessage(m.cfg.LocationsText),
				},
			}, nil
		},
	}
}

// catalogMessage renders the catalog as a buttons message so product names
// become router triggers of their own.
func (m *Menu) catalogMessage() models.OutboundMessage {
	var b strings.Builder
	b.WriteString("Nuestros productos de hoy:")
	for _, p := range m.cfg.Catalog {
		b.WriteString(fmt.Sprintf("\n• %s — $%.0f", p.Name, p.UnitPrice))
	}
	b.WriteString("\nEscribe el nombre o el número del producto que deseas.")
	labels := make([]string, 0, len(m.cfg.Catalog))
	for _, p := range m.cfg.Catalog {
		labels = append(labels, p.Name)
	}
	return models.ButtonsMessage(b.String(), labels...)
}

// resolveProduct matches free text against the catalog by name or by
// 1-based position, returning nil for anything else.
func (m *Menu) resolveProduct(input string) *Product {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}
	if p := m.cfg.product(input); p != nil {
		return p
	}
	if idx, err := strconv.Atoi(input); err == nil && idx >= 1 && idx <= len(m.cfg.Catalog) {
		return &m.cfg.Catalog[idx-1]
	}
	return nil
}

// isCatalogTrigger reports whether the input is one of the catalog node's own
// trigger words rather than a product attempt.
func (m *Menu) isCatalogTrigger(input string) bool {
	for _, t := range []string{"catálogo", "catalogo", "productos", "agregar más", "agregar mas"} {
		if equalFold(input, t) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
