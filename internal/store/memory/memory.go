// Package memory implémente store.Store en mémoire, pour les tests.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"mehashop_back_end/internal/models"
	"mehashop_back_end/internal/store"
)

type state struct {
	seq        int64
	users      map[int64]models.User
	categories map[int64]models.Category
	products   map[int64]models.Product
	carts      map[int64]models.Cart // par user_id
	cartItems  map[int64]models.CartItem
	orders     map[int64]models.Order
	orderItems map[int64][]models.OrderItem
	outbox     []models.OutboxEvent
}

func (s *state) clone() *state {
	c := &state{
		seq:        s.seq,
		users:      maps.Clone(s.users),
		categories: maps.Clone(s.categories),
		products:   maps.Clone(s.products),
		carts:      maps.Clone(s.carts),
		cartItems:  maps.Clone(s.cartItems),
		orders:     maps.Clone(s.orders),
		orderItems: make(map[int64][]models.OrderItem, len(s.orderItems)),
		outbox:     slices.Clone(s.outbox),
	}
	for k, v := range s.orderItems {
		c.orderItems[k] = slices.Clone(v)
	}
	return c
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

type Store struct {
	mu sync.Mutex
	st *state

	// FailOn, si défini, est consulté avant chaque opération transactionnelle
	// ("InsertOrderItems", "ClearCart"...) ; une erreur renvoyée fait échouer l'opération.
	FailOn func(op string) error

	now func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		st: &state{
			users:      map[int64]models.User{},
			categories: map[int64]models.Category{},
			products:   map[int64]models.Product{},
			carts:      map[int64]models.Cart{},
			cartItems:  map[int64]models.CartItem{},
			orders:     map[int64]models.Order{},
			orderItems: map[int64][]models.OrderItem{},
		},
		now: time.Now,
	}
}

// ---- seeding ----

func (m *Store) AddCategory(name string, parent *int64) models.Category {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := models.Category{ID: m.st.nextID(), Name: name, ParentID: parent}
	m.st.categories[c.ID] = c
	return c
}

func (m *Store) AddProduct(p models.Product) models.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.st.nextID()
	m.st.products[p.ID] = p
	return p
}

// SetProductPrice simule une modification de prix après achat.
func (m *Store) SetProductPrice(productID int64, price models.Money) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.st.products[productID]
	p.Price = price
	m.st.products[productID] = p
}

// SetOrder remplace une commande telle quelle.
func (m *Store) SetOrder(o models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.orders[o.ID] = o
}

// OutboxEvents renvoie une copie de tous les événements, envoyés ou non.
func (m *Store) OutboxEvents() []models.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.st.outbox)
}

// ---- Orders ----

func (m *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&memTx{m: m}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (m *Store) Order(_ context.Context, orderID int64) (models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.st.orders[orderID]
	if !ok {
		return models.Order{}, store.ErrNotFound
	}
	return o, nil
}

func (m *Store) OrderByPaymentID(_ context.Context, paymentID string) (models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.st.orders {
		if paymentID != "" && o.PaymentID == paymentID {
			return o, nil
		}
	}
	return models.Order{}, store.ErrNotFound
}

func (m *Store) OrderItems(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.st.orderItems[orderID]), nil
}

func (m *Store) OrdersByUser(_ context.Context, userID int64) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.st.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

type memTx struct {
	m *Store
}

func (t *memTx) fail(op string) error {
	if t.m.FailOn != nil {
		return t.m.FailOn(op)
	}
	return nil
}

func (t *memTx) CartLines(_ context.Context, userID int64) ([]models.CartLine, error) {
	if err := t.fail("CartLines"); err != nil {
		return nil, err
	}
	st := t.m.st
	cart, ok := st.carts[userID]
	if !ok {
		return nil, nil
	}
	var lines []models.CartLine
	for _, it := range st.cartItems {
		if it.CartID != cart.ID {
			continue
		}
		lines = append(lines, models.CartLine{
			ItemID:    it.ID,
			CartID:    it.CartID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     st.products[it.ProductID].Price,
		})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ItemID < lines[j].ItemID })
	return lines, nil
}

func (t *memTx) ClearCart(_ context.Context, cartID int64) error {
	if err := t.fail("ClearCart"); err != nil {
		return err
	}
	for id, it := range t.m.st.cartItems {
		if it.CartID == cartID {
			delete(t.m.st.cartItems, id)
		}
	}
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, o *models.Order) error {
	if err := t.fail("InsertOrder"); err != nil {
		return err
	}
	o.ID = t.m.st.nextID()
	o.CreatedAt = t.m.now()
	t.m.st.orders[o.ID] = *o
	return nil
}

func (t *memTx) InsertOrderItems(_ context.Context, items []models.OrderItem) error {
	if err := t.fail("InsertOrderItems"); err != nil {
		return err
	}
	for i := range items {
		items[i].ID = t.m.st.nextID()
		t.m.st.orderItems[items[i].OrderID] = append(t.m.st.orderItems[items[i].OrderID], items[i])
	}
	return nil
}

func (t *memTx) OrderForUpdate(_ context.Context, orderID int64) (models.Order, error) {
	o, ok := t.m.st.orders[orderID]
	if !ok {
		return models.Order{}, store.ErrNotFound
	}
	return o, nil
}

func (t *memTx) OrderByPaymentIDForUpdate(_ context.Context, paymentID string) (models.Order, error) {
	for _, o := range t.m.st.orders {
		if paymentID != "" && o.PaymentID == paymentID {
			return o, nil
		}
	}
	return models.Order{}, store.ErrNotFound
}

func (t *memTx) OrderItems(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	return slices.Clone(t.m.st.orderItems[orderID]), nil
}

func (t *memTx) UpdateOrder(_ context.Context, o models.Order) error {
	if err := t.fail("UpdateOrder"); err != nil {
		return err
	}
	if _, ok := t.m.st.orders[o.ID]; !ok {
		return store.ErrNotFound
	}
	if o.PaymentID != "" {
		for id, other := range t.m.st.orders {
			if id != o.ID && other.PaymentID == o.PaymentID {
				return store.ErrDuplicate
			}
		}
	}
	t.m.st.orders[o.ID] = o
	return nil
}

func (t *memTx) AppendOutbox(_ context.Context, e models.OutboxEvent) error {
	if err := t.fail("AppendOutbox"); err != nil {
		return err
	}
	e.ID = t.m.st.nextID()
	e.CreatedAt = t.m.now()
	t.m.st.outbox = append(t.m.st.outbox, e)
	return nil
}

// ---- Catalog ----

func (m *Store) Products(_ context.Context, f models.ProductFilter) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Product, 0)
	for _, p := range m.st.products {
		if f.CategoryID != nil && (p.CategoryID == nil || *p.CategoryID != *f.CategoryID) {
			continue
		}
		if f.MinPrice != nil && p.Price.LessThan(f.MinPrice.Decimal) {
			continue
		}
		if f.MaxPrice != nil && p.Price.GreaterThan(f.MaxPrice.Decimal) {
			continue
		}
		out = append(out, p)
	}

	desc := strings.HasPrefix(f.SortBy, "-")
	field := strings.TrimPrefix(f.SortBy, "-")
	less := func(a, b models.Product) int {
		switch field {
		case "name":
			return strings.Compare(a.Name, b.Name)
		case "id":
			return 0
		default:
			return a.Price.Cmp(b.Price.Decimal)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		c := less(out[i], out[j])
		if c == 0 {
			if field == "id" && desc {
				return out[i].ID > out[j].ID
			}
			return out[i].ID < out[j].ID
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
	return out, nil
}

func (m *Store) Product(_ context.Context, productID int64) (models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.st.products[productID]
	if !ok {
		return models.Product{}, store.ErrNotFound
	}
	return p, nil
}

func (m *Store) Categories(_ context.Context) ([]models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Category, 0, len(m.st.categories))
	for _, c := range m.st.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- Carts ----

func (m *Store) ensureCart(userID int64) models.Cart {
	c, ok := m.st.carts[userID]
	if !ok {
		c = models.Cart{ID: m.st.nextID(), UserID: userID}
		m.st.carts[userID] = c
	}
	return c
}

func (m *Store) Cart(_ context.Context, userID int64) (models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureCart(userID), nil
}

func (m *Store) withProduct(it models.CartItem) models.CartItem {
	it.Product = m.st.products[it.ProductID]
	return it
}

func (m *Store) CartItems(_ context.Context, userID int64) ([]models.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart := m.ensureCart(userID)
	out := make([]models.CartItem, 0)
	for _, it := range m.st.cartItems {
		if it.CartID == cart.ID {
			out = append(out, m.withProduct(it))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) AddCartItem(_ context.Context, userID, productID int64, quantity int) (models.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.products[productID]; !ok {
		return models.CartItem{}, store.ErrNotFound
	}
	cart := m.ensureCart(userID)
	for id, it := range m.st.cartItems {
		if it.CartID == cart.ID && it.ProductID == productID {
			it.Quantity += quantity
			m.st.cartItems[id] = it
			return m.withProduct(it), nil
		}
	}
	it := models.CartItem{ID: m.st.nextID(), CartID: cart.ID, ProductID: productID, Quantity: quantity}
	m.st.cartItems[it.ID] = it
	return m.withProduct(it), nil
}

func (m *Store) ownedItem(userID, itemID int64) (models.CartItem, bool) {
	it, ok := m.st.cartItems[itemID]
	if !ok {
		return it, false
	}
	cart, ok := m.st.carts[userID]
	return it, ok && cart.ID == it.CartID
}

func (m *Store) UpdateCartItem(_ context.Context, userID, itemID int64, quantity int) (models.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.ownedItem(userID, itemID)
	if !ok {
		return models.CartItem{}, store.ErrNotFound
	}
	it.Quantity = quantity
	m.st.cartItems[itemID] = it
	return m.withProduct(it), nil
}

func (m *Store) DeleteCartItem(_ context.Context, userID, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ownedItem(userID, itemID); !ok {
		return store.ErrNotFound
	}
	delete(m.st.cartItems, itemID)
	return nil
}

// ---- Users ----

func (m *Store) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.Email = strings.ToLower(u.Email)
	if u.Provider == "" {
		u.Provider = "local"
	}
	for _, other := range m.st.users {
		if other.Username == u.Username || (u.Email != "" && other.Email == u.Email) {
			return store.ErrDuplicate
		}
		if u.ProviderID != "" && other.Provider == u.Provider && other.ProviderID == u.ProviderID {
			return store.ErrDuplicate
		}
	}
	u.ID = m.st.nextID()
	u.CreatedAt = m.now()
	m.st.users[u.ID] = *u
	return nil
}

func (m *Store) findUser(match func(models.User) bool) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.st.users {
		if match(u) {
			return u, nil
		}
	}
	return models.User{}, store.ErrNotFound
}

func (m *Store) UserByID(_ context.Context, userID int64) (models.User, error) {
	return m.findUser(func(u models.User) bool { return u.ID == userID })
}

func (m *Store) UserByLogin(_ context.Context, login string) (models.User, error) {
	email := strings.ToLower(login)
	return m.findUser(func(u models.User) bool { return u.Username == login || (u.Email != "" && u.Email == email) })
}

func (m *Store) UserByEmail(_ context.Context, email string) (models.User, error) {
	email = strings.ToLower(email)
	return m.findUser(func(u models.User) bool { return u.Email != "" && u.Email == email })
}

func (m *Store) UserByProvider(_ context.Context, provider, providerID string) (models.User, error) {
	return m.findUser(func(u models.User) bool { return u.Provider == provider && u.ProviderID == providerID })
}

func (m *Store) LinkProvider(_ context.Context, userID int64, provider, providerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.st.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.Provider, u.ProviderID = provider, providerID
	m.st.users[userID] = u
	return nil
}

// ---- Outbox ----

func (m *Store) PendingEvents(_ context.Context, limit int) ([]models.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OutboxEvent
	for _, e := range m.st.outbox {
		if e.SentAt == nil {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Store) MarkEventSent(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.st.outbox {
		if m.st.outbox[i].ID == id && m.st.outbox[i].SentAt == nil {
			now := m.now()
			m.st.outbox[i].SentAt = &now
		}
	}
	return nil
}
