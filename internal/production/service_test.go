package production

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vnglass/glassflow/internal/bom"
	"github.com/vnglass/glassflow/internal/shared"
)

type memoryState struct {
	nextID    int64
	plans     map[int64]Plan
	details   map[int64]PlanDetail
	orders    map[int64]Order
	orderDets map[int64]int64
	outputs   map[int64]Output
	materials map[int64]Material
	exports   map[int64]Export
	defects   map[int64]Defect
}

func newMemoryState() memoryState {
	return memoryState{
		plans:     map[int64]Plan{},
		details:   map[int64]PlanDetail{},
		orders:    map[int64]Order{},
		orderDets: map[int64]int64{},
		outputs:   map[int64]Output{},
		materials: map[int64]Material{},
		exports:   map[int64]Export{},
		defects:   map[int64]Defect{},
	}
}

func (s memoryState) clone() memoryState {
	c := memoryState{
		nextID:    s.nextID,
		plans:     maps.Clone(s.plans),
		details:   maps.Clone(s.details),
		orders:    maps.Clone(s.orders),
		orderDets: maps.Clone(s.orderDets),
		outputs:   maps.Clone(s.outputs),
		materials: maps.Clone(s.materials),
		exports:   make(map[int64]Export, len(s.exports)),
		defects:   maps.Clone(s.defects),
	}
	for id, exp := range s.exports {
		exp.Details = append([]ExportDetail(nil), exp.Details...)
		c.exports[id] = exp
	}
	return c
}

func (s *memoryState) id() int64 {
	s.nextID++
	return s.nextID
}

// memoryRepo commits a transaction's copy of the state only when fn succeeds.
type memoryRepo struct {
	mu    sync.Mutex
	state memoryState

	failDetailInsert int
	failDetailDone   bool
	failEntity       Entity
	deleted          []Entity
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: newMemoryState()}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{repo: r, state: r.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.state = tx.state
	return nil
}

func (r *memoryRepo) HasPlanForSaleOrder(_ context.Context, saleOrderID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.state.plans {
		if p.SaleOrderID == saleOrderID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) ListPlans(context.Context) ([]PlanListItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []PlanListItem
	for _, p := range r.state.plans {
		qty := decimal.Zero
		for _, d := range r.state.details {
			if d.PlanID == p.ID {
				qty = qty.Add(d.Quantity)
			}
		}
		items = append(items, PlanListItem{ID: p.ID, PlanDate: p.PlanDate, SaleOrderID: p.SaleOrderID, Quantity: qty, Status: p.Status})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	return items, nil
}

func (r *memoryRepo) GetPlan(_ context.Context, id int64) (Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.state.plans[id]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	for _, d := range r.state.details {
		if d.PlanID == id {
			p.Details = append(p.Details, d)
		}
	}
	sort.Slice(p.Details, func(i, j int) bool { return p.Details[i].ID < p.Details[j].ID })
	return p, nil
}

func (r *memoryRepo) ListPlanOutputs(_ context.Context, planID int64) ([]PlanOutputSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byProduct := map[int64]*PlanOutputSummary{}
	for _, out := range r.state.outputs {
		if r.state.orders[out.OrderID].PlanID != planID {
			continue
		}
		sum, ok := byProduct[out.ProductID]
		if !ok {
			sum = &PlanOutputSummary{OutputID: out.ID, ProductID: out.ProductID, ProductName: out.ProductName}
			byProduct[out.ProductID] = sum
		}
		sum.TotalAmount = sum.TotalAmount.Add(out.Amount)
		sum.Done = sum.Done.Add(out.Finished)
		sum.Broken = sum.Broken.Add(out.Defected)
	}
	var res []PlanOutputSummary
	for _, s := range byProduct {
		res = append(res, *s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ProductID < res[j].ProductID })
	return res, nil
}

func (r *memoryRepo) GetExport(_ context.Context, id int64) (Export, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.state.exports[id]
	if !ok {
		return Export{}, ErrExportNotFound
	}
	return exp, nil
}

func (r *memoryRepo) ListExports(_ context.Context, orderID int64) ([]Export, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []Export
	for _, exp := range r.state.exports {
		if orderID == 0 || exp.OrderID == orderID {
			res = append(res, exp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (r *memoryRepo) ListOrderOutputs(_ context.Context, orderID int64) ([]Output, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.outputsOf(orderID), nil
}

func (r *memoryRepo) ListOrderMaterials(_ context.Context, orderID int64) ([]Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []Material
	for _, m := range r.state.materials {
		if r.state.outputs[m.OutputID].OrderID == orderID {
			res = append(res, m)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (r *memoryRepo) ListDefects(_ context.Context, orderID int64) ([]Defect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []Defect
	for _, d := range r.state.defects {
		if d.OrderID == orderID {
			res = append(res, d)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (r *memoryRepo) GetDefect(_ context.Context, id int64) (Defect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.state.defects[id]
	if !ok {
		return Defect{}, ErrDefectNotFound
	}
	return d, nil
}

func (r *memoryRepo) GetOutput(_ context.Context, id int64) (Output, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, ok := r.state.outputs[id]
	if !ok {
		return Output{}, ErrOutputNotFound
	}
	return out, nil
}

func (r *memoryRepo) ListOpenOrderIDs(context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for _, o := range r.state.orders {
		if o.Status == OrderStatusPending || o.Status == OrderStatusInProgress {
			ids = append(ids, o.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s memoryState) outputsOf(orderID int64) []Output {
	var res []Output
	for _, out := range s.outputs {
		if out.OrderID == orderID {
			res = append(res, out)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// seeding helpers operate outside transactions.

func (r *memoryRepo) seedPlan(saleOrderID int64) Plan {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := Plan{ID: r.state.id(), SaleOrderID: saleOrderID, PlanDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Status: PlanStatusInProduction}
	r.state.plans[p.ID] = p
	return p
}

func (r *memoryRepo) seedDetail(planID, productID int64, qty decimal.Decimal) PlanDetail {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := PlanDetail{ID: r.state.id(), PlanID: planID, ProductID: productID, Quantity: qty, Done: decimal.Zero, Delivered: decimal.Zero, Version: 1}
	r.state.details[d.ID] = d
	return d
}

func (r *memoryRepo) seedOrder(planID int64, category OrderCategory, status OrderStatus) Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := Order{ID: r.state.id(), PlanID: planID, Code: "LSX-01", Category: category, Status: status, Version: 1}
	r.state.orders[o.ID] = o
	r.state.orderDets[r.state.id()] = o.ID
	return o
}

func (r *memoryRepo) seedOutput(orderID, productID int64, amount decimal.Decimal) Output {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := Output{ID: r.state.id(), OrderID: orderID, ProductID: productID, Amount: amount, Finished: decimal.Zero, Defected: decimal.Zero, Version: 1}
	r.state.outputs[out.ID] = out
	m := Material{ID: r.state.id(), OutputID: out.ID, ProductID: materialGlueNano, Amount: decimal.NewFromInt(1)}
	r.state.materials[m.ID] = m
	return out
}

func (r *memoryRepo) order(id int64) Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.orders[id]
}

func (r *memoryRepo) output(id int64) Output {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.outputs[id]
}

func (r *memoryRepo) detail(id int64) PlanDetail {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.details[id]
}

type memoryTx struct {
	repo  *memoryRepo
	state memoryState
}

func (t *memoryTx) InsertPlan(_ context.Context, plan Plan) (int64, error) {
	plan.ID = t.state.id()
	t.state.plans[plan.ID] = plan
	return plan.ID, nil
}

func (t *memoryTx) InsertPlanDetail(_ context.Context, d PlanDetail) (int64, error) {
	if t.repo.failDetailInsert > 0 {
		t.repo.failDetailInsert--
		if t.repo.failDetailInsert == 0 {
			return 0, errors.New("insert failed")
		}
	}
	d.ID = t.state.id()
	d.Version = 1
	t.state.details[d.ID] = d
	return d.ID, nil
}

func (t *memoryTx) LockPlan(_ context.Context, planID int64) error {
	if _, ok := t.state.plans[planID]; !ok {
		return ErrPlanNotFound
	}
	return nil
}

func (t *memoryTx) DeletePlanRows(_ context.Context, entity Entity, planID int64) (int64, error) {
	if entity == t.repo.failEntity {
		return 0, errors.New("delete failed")
	}
	t.repo.deleted = append(t.repo.deleted, entity)
	s := &t.state
	inPlan := func(orderID int64) bool { return s.orders[orderID].PlanID == planID }
	var n int64
	switch entity {
	case EntityMaterials:
		for id, m := range s.materials {
			if inPlan(s.outputs[m.OutputID].OrderID) {
				delete(s.materials, id)
				n++
			}
		}
	case EntityExportDetails:
		for id, exp := range s.exports {
			if inPlan(exp.OrderID) {
				n += int64(len(exp.Details))
				exp.Details = nil
				s.exports[id] = exp
			}
		}
	case EntityExports:
		for id, exp := range s.exports {
			if inPlan(exp.OrderID) {
				delete(s.exports, id)
				n++
			}
		}
	case EntityDefects:
		for id, d := range s.defects {
			if inPlan(d.OrderID) {
				delete(s.defects, id)
				n++
			}
		}
	case EntityOutputs:
		for id, out := range s.outputs {
			if inPlan(out.OrderID) {
				delete(s.outputs, id)
				n++
			}
		}
	case EntityOrderDetails:
		for id, orderID := range s.orderDets {
			if inPlan(orderID) {
				delete(s.orderDets, id)
				n++
			}
		}
	case EntityOrders:
		for id, o := range s.orders {
			if o.PlanID == planID {
				delete(s.orders, id)
				n++
			}
		}
	case EntityPlanDetails:
		for id, d := range s.details {
			if d.PlanID == planID {
				delete(s.details, id)
				n++
			}
		}
	case EntityPlan:
		if _, ok := s.plans[planID]; ok {
			delete(s.plans, planID)
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) GetOrderForUpdate(_ context.Context, orderID int64) (Order, error) {
	o, ok := t.state.orders[orderID]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (t *memoryTx) UpdateOrderStatus(_ context.Context, orderID int64, status OrderStatus) error {
	o, ok := t.state.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	o.Version++
	t.state.orders[orderID] = o
	return nil
}

func (t *memoryTx) GetOutputForUpdate(_ context.Context, orderID, productID int64) (Output, error) {
	for _, out := range t.state.outputsOf(orderID) {
		if out.ProductID == productID {
			return out, nil
		}
	}
	return Output{}, ErrOutputNotFound
}

func (t *memoryTx) UpdateOutputCounters(_ context.Context, out Output) error {
	cur, ok := t.state.outputs[out.ID]
	if !ok {
		return ErrOutputNotFound
	}
	if cur.Version != out.Version {
		return ErrStaleVersion
	}
	out.Version++
	t.state.outputs[out.ID] = out
	return nil
}

func (t *memoryTx) ListOutputs(_ context.Context, orderID int64) ([]Output, error) {
	return t.state.outputsOf(orderID), nil
}

func (t *memoryTx) GetPlanDetailForUpdate(_ context.Context, planID, productID int64) (PlanDetail, error) {
	for _, d := range t.state.details {
		if d.PlanID == planID && d.ProductID == productID {
			return d, nil
		}
	}
	return PlanDetail{}, ErrDetailNotFound
}

func (t *memoryTx) UpdatePlanDetailDone(_ context.Context, d PlanDetail) error {
	if t.repo.failDetailDone {
		return errors.New("update plan detail failed")
	}
	cur, ok := t.state.details[d.ID]
	if !ok {
		return ErrDetailNotFound
	}
	if cur.Version != d.Version {
		return ErrStaleVersion
	}
	cur.Done = d.Done
	cur.Version++
	t.state.details[d.ID] = cur
	return nil
}

func (t *memoryTx) InsertExport(_ context.Context, exp Export) (int64, error) {
	exp.ID = t.state.id()
	t.state.exports[exp.ID] = exp
	return exp.ID, nil
}

func (t *memoryTx) InsertExportDetail(_ context.Context, d ExportDetail) (int64, error) {
	exp, ok := t.state.exports[d.ExportID]
	if !ok {
		return 0, ErrExportNotFound
	}
	d.ID = t.state.id()
	exp.Details = append(exp.Details, d)
	t.state.exports[exp.ID] = exp
	return d.ID, nil
}

func (t *memoryTx) GetExportForUpdate(_ context.Context, id int64) (Export, error) {
	exp, ok := t.state.exports[id]
	if !ok {
		return Export{}, ErrExportNotFound
	}
	return exp, nil
}

func (t *memoryTx) DeleteExport(_ context.Context, id int64) error {
	if _, ok := t.state.exports[id]; !ok {
		return ErrExportNotFound
	}
	delete(t.state.exports, id)
	return nil
}

func (t *memoryTx) InsertDefect(_ context.Context, d Defect) (int64, error) {
	d.ID = t.state.id()
	t.state.defects[d.ID] = d
	return d.ID, nil
}

func (t *memoryTx) GetDefectForUpdate(_ context.Context, id int64) (Defect, error) {
	d, ok := t.state.defects[id]
	if !ok {
		return Defect{}, ErrDefectNotFound
	}
	return d, nil
}

func (t *memoryTx) UpdateDefect(_ context.Context, d Defect) error {
	if _, ok := t.state.defects[d.ID]; !ok {
		return ErrDefectNotFound
	}
	t.state.defects[d.ID] = d
	return nil
}

func (t *memoryTx) GetOutputByIDForUpdate(_ context.Context, id int64) (Output, error) {
	out, ok := t.state.outputs[id]
	if !ok {
		return Output{}, ErrOutputNotFound
	}
	return out, nil
}

type memorySales struct {
	orders map[int64]SaleOrder
}

func (m memorySales) GetSaleOrder(_ context.Context, id int64) (SaleOrder, error) {
	so, ok := m.orders[id]
	if !ok {
		return SaleOrder{}, ErrSaleOrderNotFound
	}
	return so, nil
}

type memoryCatalog struct {
	products map[int64]Product
}

func (m memoryCatalog) GetProduct(_ context.Context, id int64) (Product, error) {
	p, ok := m.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

type memoryAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (m *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, log)
	return nil
}

func (m *memoryAudit) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []string
	for _, l := range m.logs {
		res = append(res, l.Action)
	}
	return res
}

func (m *memoryAudit) actorOf(action string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.logs {
		if l.Action == action {
			return l.ActorID, true
		}
	}
	return 0, false
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]struct{}{}
	}
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = struct{}{}
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

const (
	testSaleOrderID  = 7
	productNano      = 11
	productSoft      = 12
	productUnknown   = 13
	productNoLayout  = 14
	productBadWidth  = 15
	materialGlueNano = 900
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type fixture struct {
	svc   *Service
	repo  *memoryRepo
	audit *memoryAudit
	idem  *memoryIdempotency
}

func newFixture(opts ...func(*ServiceConfig)) fixture {
	repo := newMemoryRepo()
	sales := memorySales{orders: map[int64]SaleOrder{
		testSaleOrderID: {
			ID:             testSaleOrderID,
			OrderCode:      "DH-0007",
			DeliveryStatus: "pending",
			Customer:       Customer{ID: 3, Name: "Công ty An Phát", Address: "Hà Nội", Phone: "0900000000"},
		},
	}}
	catalog := memoryCatalog{products: map[int64]Product{
		productNano: {ID: productNano, Code: "K24N", Name: "Kính 24 nano", Width: "1000", Height: "2000",
			GlassStructure: &bom.GlassStructure{GlassLayers: 4, AdhesiveType: "nano", AdhesiveThickness: d("6")}},
		productSoft: {ID: productSoft, Code: "K24M", Name: "Kính 24 mềm", Width: "500", Height: "500",
			GlassStructure: &bom.GlassStructure{GlassLayers: 2, AdhesiveType: "Mềm", AdhesiveThickness: d("1")}},
		productUnknown: {ID: productUnknown, Code: "K24X", Name: "Kính 24 PVB", Width: "1000", Height: "1000",
			GlassStructure: &bom.GlassStructure{GlassLayers: 2, AdhesiveType: "PVB", AdhesiveThickness: d("1")}},
		productNoLayout: {ID: productNoLayout, Code: "K00", Name: "Kính trơn", Width: "1000", Height: "1000"},
		productBadWidth: {ID: productBadWidth, Code: "KBAD", Name: "Kính lỗi", Width: "abc", Height: "1000",
			GlassStructure: &bom.GlassStructure{GlassLayers: 2, AdhesiveType: "nano", AdhesiveThickness: d("1")}},
	}}
	audit := &memoryAudit{}
	idem := &memoryIdempotency{}
	cfg := ServiceConfig{
		Audit:       audit,
		Idempotency: idem,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	svc := NewService(repo, sales, catalog, cfg)
	svc.clock = func() time.Time { return time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC) }
	return fixture{svc: svc, repo: repo, audit: audit, idem: idem}
}
