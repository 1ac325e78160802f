package slave

import (
	"context"
	"sort"
	"time"

	"github.com/simp-lee/mqttbench/internal/domain"
)

// mockSlaveService is an in-memory domain.SlaveService for handler tests.
type mockSlaveService struct {
	slaves  map[int64]*domain.Slave
	results map[int64]domain.ConfigResult
	nextID  int64

	// error injection
	createErr error
	listErr   error
	updateErr error
	deleteErr error
	startErr  error
	stopErr   error
	deployErr map[int64]string

	lastInput   domain.SlaveInput
	started     []int64
	stopped     []int64
	deployedIDs []int64
}

func newMockService() *mockSlaveService {
	return &mockSlaveService{
		slaves:    make(map[int64]*domain.Slave),
		results:   make(map[int64]domain.ConfigResult),
		deployErr: make(map[int64]string),
		nextID:    1,
	}
}

func (m *mockSlaveService) seed(s domain.Slave) {
	m.slaves[s.ID] = &s
	if s.ID >= m.nextID {
		m.nextID = s.ID + 1
	}
}

func (m *mockSlaveService) sorted() []domain.Slave {
	items := make([]domain.Slave, 0, len(m.slaves))
	for _, s := range m.slaves {
		items = append(items, *s)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func (m *mockSlaveService) ListSlaves(_ context.Context, req domain.PageRequest) (*domain.PageResult[domain.Slave], error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	items := m.sorted()
	return &domain.PageResult[domain.Slave]{
		Items:      items,
		Total:      int64(len(items)),
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalPages: 1,
	}, nil
}

func (m *mockSlaveService) AllSlaves(context.Context) ([]domain.Slave, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.sorted(), nil
}

func (m *mockSlaveService) GetSlave(_ context.Context, id int64) (*domain.Slave, error) {
	s, ok := m.slaves[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (m *mockSlaveService) CreateSlave(_ context.Context, in domain.SlaveInput) (*domain.Slave, error) {
	m.lastInput = in
	if m.createErr != nil {
		return nil, m.createErr
	}
	s := &domain.Slave{ID: m.nextID, Name: in.Name, Topic: in.Topic, Step: in.Step, Status: domain.SlaveOffline}
	m.slaves[s.ID] = s
	m.nextID++
	return s, nil
}

func (m *mockSlaveService) UpdateSlave(_ context.Context, id int64, in domain.SlaveInput) (*domain.Slave, error) {
	m.lastInput = in
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	s, ok := m.slaves[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if in.Name != "" {
		s.Name = in.Name
	}
	return s, nil
}

func (m *mockSlaveService) DeleteSlave(_ context.Context, id int64) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.slaves[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.slaves, id)
	return nil
}

func (m *mockSlaveService) DeployConfig(_ context.Context, ids []int64) []domain.DeployOutcome {
	m.deployedIDs = append(m.deployedIDs, ids...)
	outcomes := make([]domain.DeployOutcome, 0, len(ids))
	for _, id := range ids {
		if msg, failed := m.deployErr[id]; failed {
			outcomes = append(outcomes, domain.DeployOutcome{SlaveID: id, Error: msg})
			continue
		}
		outcomes = append(outcomes, domain.DeployOutcome{SlaveID: id, OK: true})
	}
	return outcomes
}

func (m *mockSlaveService) StartSlave(_ context.Context, id int64) error {
	m.started = append(m.started, id)
	return m.startErr
}

func (m *mockSlaveService) StopSlave(_ context.Context, id int64) error {
	m.stopped = append(m.stopped, id)
	return m.stopErr
}

func (m *mockSlaveService) ConfigResult(id int64) (*domain.ConfigResult, bool) {
	r, ok := m.results[id]
	if !ok {
		return nil, false
	}
	return &r, true
}

func (m *mockSlaveService) ConfigResults() []domain.ConfigResult {
	all := make([]domain.ConfigResult, 0, len(m.results))
	for _, r := range m.results {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].SlaveID < all[j].SlaveID })
	return all
}

func (m *mockSlaveService) ClearConfigResult(id int64) {
	delete(m.results, id)
}

func (m *mockSlaveService) Register(context.Context, int64, string, int) (*domain.Slave, error) {
	return nil, domain.ErrInternal
}

func (m *mockSlaveService) Heartbeat(context.Context, int64) (*domain.Slave, error) {
	return nil, domain.ErrInternal
}

func (m *mockSlaveService) ApplyConfigResult(context.Context, domain.ConfigResult) error {
	return domain.ErrInternal
}

func (m *mockSlaveService) MarkStale(context.Context, time.Time) (int, error) {
	return 0, nil
}

var _ domain.SlaveService = (*mockSlaveService)(nil)
