package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xfn3t/smart-warehouse-sub000/internal/apperr"
	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
)

// MemoryStore 用于 DB 未就绪时的联测和单元测试
// - 所有仓储共享一份状态
// - Do 串行执行事务，fn 失败时整体恢复到事务开始前的快照
// - 事务期间的非事务写入会随回滚一起丢失，只适合测试和本地联调
type MemoryStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	nextID     int64
	warehouses map[int64]*models.Warehouse
	robots     map[int64]*models.Robot
	products   map[int64]*models.Product
	locations  map[int64]*models.Location
	history    []*models.InventoryHistoryRecord

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		warehouses: map[int64]*models.Warehouse{},
		robots:     map[int64]*models.Robot{},
		products:   map[int64]*models.Product{},
		locations:  map[int64]*models.Location{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock 替换 created_at 使用的时钟
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Repositories() Repositories {
	return Repositories{
		Robots:     memoryRobots{s},
		Warehouses: memoryWarehouses{s},
		Products:   memoryProducts{s},
		Locations:  memoryLocations{s},
		History:    memoryHistory{s},
	}
}

// Do 实现 UnitOfWork
func (s *MemoryStore) Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx, s.Repositories()); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	nextID     int64
	warehouses map[int64]models.Warehouse
	robots     map[int64]models.Robot
	products   map[int64]models.Product
	locations  map[int64]models.Location
	historyLen int
}

func (s *MemoryStore) snapshot() memorySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := memorySnapshot{
		nextID:     s.nextID,
		warehouses: make(map[int64]models.Warehouse, len(s.warehouses)),
		robots:     make(map[int64]models.Robot, len(s.robots)),
		products:   make(map[int64]models.Product, len(s.products)),
		locations:  make(map[int64]models.Location, len(s.locations)),
		historyLen: len(s.history),
	}
	for id, w := range s.warehouses {
		snap.warehouses[id] = *w
	}
	for id, r := range s.robots {
		snap.robots[id] = *r
	}
	for id, p := range s.products {
		snap.products[id] = *p
	}
	for id, l := range s.locations {
		snap.locations[id] = *l
	}
	return snap
}

// restore 历史只追加，截断到快照长度即可
func (s *MemoryStore) restore(snap memorySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID = snap.nextID
	s.warehouses = map[int64]*models.Warehouse{}
	for id, w := range snap.warehouses {
		s.warehouses[id] = &w
	}
	s.robots = map[int64]*models.Robot{}
	for id, r := range snap.robots {
		s.robots[id] = &r
	}
	s.products = map[int64]*models.Product{}
	for id, p := range snap.products {
		s.products[id] = &p
	}
	s.locations = map[int64]*models.Location{}
	for id, l := range snap.locations {
		s.locations[id] = &l
	}
	if snap.historyLen < len(s.history) {
		s.history = s.history[:snap.historyLen]
	}
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

// ---- seed helpers ----

func (s *MemoryStore) AddWarehouse(w models.Warehouse) *models.Warehouse {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.ID == 0 {
		w.ID = s.id()
	}
	s.warehouses[w.ID] = &w
	out := w
	return &out
}

// AddRobot WarehouseCode 由 WarehouseID 推导
func (s *MemoryStore) AddRobot(r models.Robot) *models.Robot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.id()
	}
	if r.Status == "" {
		r.Status = models.RobotStatusIdle
	}
	s.robots[r.ID] = &r
	return s.robotView(&r)
}

func (s *MemoryStore) AddProduct(p models.Product) *models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.id()
	}
	s.products[p.ID] = &p
	out := p
	return &out
}

// History 返回全部历史的副本，按创建顺序
func (s *MemoryStore) History() []models.InventoryHistoryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.InventoryHistoryRecord, 0, len(s.history))
	for _, h := range s.history {
		out = append(out, *h)
	}
	return out
}

func (s *MemoryStore) robotView(r *models.Robot) *models.Robot {
	out := *r
	out.WarehouseCode = ""
	if r.WarehouseID != nil {
		if w, ok := s.warehouses[*r.WarehouseID]; ok {
			out.WarehouseCode = w.Code
		}
	}
	return &out
}

// ---- robots ----

type memoryRobots struct{ s *MemoryStore }

func (m memoryRobots) GetByCode(_ context.Context, code string) (*models.Robot, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, r := range m.s.robots {
		if r.Code == code && !r.Deleted {
			return m.s.robotView(r), nil
		}
	}
	return nil, apperr.NotFound("robot not found: robot_code=%s", code)
}

func (m memoryRobots) ListAssigned(_ context.Context) ([]*models.Robot, error) {
	return m.filter(func(r *models.Robot) bool { return r.WarehouseID != nil }), nil
}

func (m memoryRobots) ListByWarehouse(_ context.Context, warehouseID int64) ([]*models.Robot, error) {
	return m.filter(func(r *models.Robot) bool {
		return r.WarehouseID != nil && *r.WarehouseID == warehouseID
	}), nil
}

func (m memoryRobots) filter(keep func(*models.Robot) bool) []*models.Robot {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := []*models.Robot{}
	for _, r := range m.s.robots {
		if !r.Deleted && keep(r) {
			out = append(out, m.s.robotView(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m memoryRobots) UpdateState(_ context.Context, robot *models.Robot) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r, ok := m.s.robots[robot.ID]
	if !ok || r.Deleted {
		return apperr.NotFound("robot not found: robot_code=%s", robot.Code)
	}
	r.BatteryLevel = robot.BatteryLevel
	r.Location = robot.Location
	r.Status = robot.Status
	if robot.LastUpdate != nil {
		t := *robot.LastUpdate
		r.LastUpdate = &t
	}
	return nil
}

// ---- warehouses ----

type memoryWarehouses struct{ s *MemoryStore }

func (m memoryWarehouses) GetByID(_ context.Context, id int64) (*models.Warehouse, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	if w, ok := m.s.warehouses[id]; ok {
		out := *w
		return &out, nil
	}
	return nil, apperr.NotFound("warehouse not found: id=%d", id)
}

func (m memoryWarehouses) GetByCode(_ context.Context, code string) (*models.Warehouse, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, w := range m.s.warehouses {
		if w.Code == code {
			out := *w
			return &out, nil
		}
	}
	return nil, apperr.NotFound("warehouse not found: code=%s", code)
}

func (m memoryWarehouses) List(_ context.Context) ([]*models.Warehouse, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := make([]*models.Warehouse, 0, len(m.s.warehouses))
	for _, w := range m.s.warehouses {
		cp := *w
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- products ----

type memoryProducts struct{ s *MemoryStore }

func (m memoryProducts) GetByCodeInWarehouse(_ context.Context, code string, warehouseID int64) (*models.Product, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, p := range m.s.products {
		if p.Code == code && p.WarehouseID != nil && *p.WarehouseID == warehouseID {
			out := *p
			return &out, nil
		}
	}
	return nil, apperr.NotFound("product not found: code=%s warehouse_id=%d", code, warehouseID)
}

func (m memoryProducts) GetByCode(_ context.Context, code string) (*models.Product, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var best *models.Product
	for _, p := range m.s.products {
		if p.Code == code && (best == nil || p.ID < best.ID) {
			best = p
		}
	}
	if best == nil {
		return nil, apperr.NotFound("product not found: code=%s", code)
	}
	out := *best
	return &out, nil
}

// ---- locations ----

type memoryLocations struct{ s *MemoryStore }

func (m memoryLocations) find(warehouseID int64, c models.Coordinate) *models.Location {
	for _, l := range m.s.locations {
		if l.WarehouseID == warehouseID && l.Coordinate == c {
			return l
		}
	}
	return nil
}

func (m memoryLocations) Get(_ context.Context, warehouseID int64, c models.Coordinate) (*models.Location, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	if l := m.find(warehouseID, c); l != nil {
		out := *l
		return &out, nil
	}
	return nil, apperr.NotFound("location not found: warehouse_id=%d zone=%d row=%d shelf=%d", warehouseID, c.Zone, c.Row, c.Shelf)
}

func (m memoryLocations) GetOrCreate(_ context.Context, warehouseID int64, c models.Coordinate) (*models.Location, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	l := m.find(warehouseID, c)
	if l == nil {
		l = &models.Location{ID: m.s.id(), WarehouseID: warehouseID, Coordinate: c}
		m.s.locations[l.ID] = l
	}
	out := *l
	return &out, nil
}

func (m memoryLocations) ListByWarehouse(_ context.Context, warehouseID int64) ([]*models.Location, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := []*models.Location{}
	for _, l := range m.s.locations {
		if l.WarehouseID == warehouseID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- history ----

type memoryHistory struct{ s *MemoryStore }

func (m memoryHistory) LatestFor(_ context.Context, productID, locationID, warehouseID int64) (*models.InventoryHistoryRecord, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for i := len(m.s.history) - 1; i >= 0; i-- {
		h := m.s.history[i]
		if h.ProductID == productID && h.LocationID == locationID && h.WarehouseID == warehouseID {
			out := *h
			return &out, nil
		}
	}
	return nil, apperr.NotFound("no history for product_id=%d location_id=%d", productID, locationID)
}

func (m memoryHistory) Create(_ context.Context, rec *models.InventoryHistoryRecord) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	rec.ID = m.s.id()
	rec.CreatedAt = m.s.now()
	cp := *rec
	m.s.history = append(m.s.history, &cp)
	return nil
}

func (m memoryHistory) forLocation(locationID, warehouseID int64) []*models.InventoryHistoryRecord {
	out := []*models.InventoryHistoryRecord{}
	for _, h := range m.s.history {
		if h.LocationID == locationID && h.WarehouseID == warehouseID {
			out = append(out, h)
		}
	}
	return out
}

func (m memoryHistory) RecentScanTimes(_ context.Context, locationID, warehouseID int64, limit int) ([]time.Time, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	recs := m.forLocation(locationID, warehouseID)
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].ScannedAt.Equal(recs[j].ScannedAt) {
			return recs[i].ID > recs[j].ID
		}
		return recs[i].ScannedAt.After(recs[j].ScannedAt)
	})
	if limit >= 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	out := make([]time.Time, 0, len(recs))
	for _, h := range recs {
		out = append(out, h.ScannedAt.UTC())
	}
	return out, nil
}

func (m memoryHistory) CountSince(_ context.Context, locationID, warehouseID int64, since time.Time) (int, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	n := 0
	for _, h := range m.forLocation(locationID, warehouseID) {
		if !h.ScannedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m memoryHistory) ListByWarehouse(_ context.Context, warehouseID int64) ([]*models.InventoryHistoryRecord, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := []*models.InventoryHistoryRecord{}
	for _, h := range m.s.history {
		if h.WarehouseID == warehouseID {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}
