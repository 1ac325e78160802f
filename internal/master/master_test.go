package master

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/mqttbench/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeSlaveService implements the control-plane subset of domain.SlaveService.
// Console methods are left to the embedded nil interface.
type fakeSlaveService struct {
	domain.SlaveService

	mu         sync.Mutex
	slaves     map[int64]*domain.Slave
	results    []domain.ConfigResult
	cutoffs    []time.Time
	staleCount int
	staleErr   error
}

func newFakeSlaveService() *fakeSlaveService {
	return &fakeSlaveService{slaves: make(map[int64]*domain.Slave)}
}

func (f *fakeSlaveService) Register(_ context.Context, id int64, host string, port int) (*domain.Slave, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slaves[id]
	if !ok {
		s = &domain.Slave{ID: id}
		f.slaves[id] = s
	}
	s.SlaveHost, s.SlavePort, s.Status = host, port, domain.SlaveOnline
	return s, nil
}

func (f *fakeSlaveService) Heartbeat(_ context.Context, id int64) (*domain.Slave, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slaves[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	s.Status = domain.SlaveOnline
	return s, nil
}

func (f *fakeSlaveService) ApplyConfigResult(_ context.Context, r domain.ConfigResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, r)
	return nil
}

func (f *fakeSlaveService) MarkStale(_ context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.staleCount, f.staleErr
}

func (f *fakeSlaveService) checks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}
