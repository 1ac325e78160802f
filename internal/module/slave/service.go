package slave

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/simp-lee/mqttbench/internal/domain"
)

// Columns written by console edits. Slave host/port, status and connections
// belong to the control plane and are never touched here.
var settingsColumns = []string{
	"name", "mqtt_host", "mqtt_port", "client_id", "topic",
	"qos", "start", "step", "ack_topic", "updated_at",
}

// ServiceDeps holds the collaborators of the slave service.
type ServiceDeps struct {
	Repo       domain.SlaveRepository
	Controller domain.SlaveController
	Results    domain.ConfigResultStore
	Events     domain.SlaveEventPublisher // optional
	Logger     *slog.Logger               // optional
}

// slaveService implements domain.SlaveService.
type slaveService struct {
	repo    domain.SlaveRepository
	ctl     domain.SlaveController
	results domain.ConfigResultStore
	events  domain.SlaveEventPublisher
	logger  *slog.Logger
	now     func() time.Time
}

// NewSlaveService creates a SlaveService. Repo, Controller and Results are required.
func NewSlaveService(deps ServiceDeps) domain.SlaveService {
	if deps.Repo == nil || deps.Controller == nil || deps.Results == nil {
		panic("slave.NewSlaveService: repo, controller and results must not be nil")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &slaveService{
		repo:    deps.Repo,
		ctl:     deps.Controller,
		results: deps.Results,
		events:  deps.Events,
		logger:  logger.With(slog.String("component", "slave")),
		now:     time.Now,
	}
}

// ListSlaves returns a paginated list of slaves.
func (s *slaveService) ListSlaves(ctx context.Context, req domain.PageRequest) (*domain.PageResult[domain.Slave], error) {
	return s.repo.List(ctx, req)
}

// AllSlaves returns every slave ordered by ID.
func (s *slaveService) AllSlaves(ctx context.Context) ([]domain.Slave, error) {
	return s.repo.All(ctx)
}

// GetSlave retrieves a slave by ID.
func (s *slaveService) GetSlave(ctx context.Context, id int64) (*domain.Slave, error) {
	return s.repo.GetByID(ctx, id)
}

// CreateSlave adds a slave from the console. Broker defaults are filled in and
// the slave starts offline until its agent registers.
func (s *slaveService) CreateSlave(ctx context.Context, in domain.SlaveInput) (*domain.Slave, error) {
	in = trimInput(in)
	slave := &domain.Slave{
		Name:      in.Name,
		MQTTHost:  in.MQTTHost,
		MQTTPort:  in.MQTTPort,
		ClientID:  in.ClientID,
		KeepAlive: domain.DefaultKeepAlive,
		Topic:     in.Topic,
		QoS:       in.QoS,
		Start:     in.Start,
		Step:      in.Step,
		AckTopic:  in.AckTopic,
		Status:    domain.SlaveOffline,
	}
	applyBrokerDefaults(slave)
	if slave.AckTopic == "" {
		slave.AckTopic = domain.DefaultAckTopic
	}

	if err := validateSettings(slave); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, slave); err != nil {
		return nil, err
	}
	return slave, nil
}

// UpdateSlave applies console edits. Empty strings, a zero port and
// domain.KeepValue keep the stored values.
func (s *slaveService) UpdateSlave(ctx context.Context, id int64, in domain.SlaveInput) (*domain.Slave, error) {
	slave, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	in = trimInput(in)
	if in.Name != "" {
		slave.Name = in.Name
	}
	if in.MQTTHost != "" {
		slave.MQTTHost = in.MQTTHost
	}
	if in.MQTTPort != 0 {
		slave.MQTTPort = in.MQTTPort
	}
	if in.ClientID != "" {
		slave.ClientID = in.ClientID
	}
	if in.Topic != "" {
		slave.Topic = in.Topic
	}
	if in.QoS != domain.KeepValue {
		slave.QoS = in.QoS
	}
	if in.Start != domain.KeepValue {
		slave.Start = in.Start
	}
	if in.Step != domain.KeepValue {
		slave.Step = in.Step
	}
	if in.AckTopic != "" {
		slave.AckTopic = in.AckTopic
	}

	if err := validateSettings(slave); err != nil {
		return nil, err
	}
	slave.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, slave, settingsColumns...); err != nil {
		return nil, err
	}
	return slave, nil
}

// DeleteSlave removes a slave and forgets its last config result.
func (s *slaveService) DeleteSlave(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.results.Clear(id)
	s.publish(domain.SlaveEvent{Type: domain.SlaveEventDeleted, SlaveID: id})
	return nil
}

// DeployConfig pushes the stored settings to each slave without a command.
// A failure for one slave never aborts the batch.
func (s *slaveService) DeployConfig(ctx context.Context, ids []int64) []domain.DeployOutcome {
	outcomes := make([]domain.DeployOutcome, 0, len(ids))
	for _, id := range ids {
		outcome := domain.DeployOutcome{SlaveID: id, OK: true}
		if err := s.deploy(ctx, id); err != nil {
			s.logger.WarnContext(ctx, "deploy config failed",
				slog.Int64("slave_id", id),
				slog.String("error", err.Error()),
			)
			outcome.OK = false
			outcome.Error = err.Error()
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (s *slaveService) deploy(ctx context.Context, id int64) error {
	slave, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.ctl.Send(ctx, slave, domain.CommandNone); err != nil {
		return unavailable(id, err)
	}
	return nil
}

// StartSlave tells a slave to open its connections. On delivery failure the
// slave is marked offline.
func (s *slaveService) StartSlave(ctx context.Context, id int64) error {
	slave, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	sendErr := s.ctl.Send(ctx, slave, domain.CommandStart)
	if sendErr != nil {
		slave.Status = domain.SlaveOffline
	} else {
		slave.Status = domain.SlaveRunning
	}
	slave.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, slave, "status", "updated_at"); err != nil {
		return err
	}
	s.publishState(slave)

	if sendErr != nil {
		s.logger.WarnContext(ctx, "start slave failed",
			slog.Int64("slave_id", id),
			slog.String("error", sendErr.Error()),
		)
		return unavailable(id, sendErr)
	}
	s.logger.InfoContext(ctx, "slave started", slog.Int64("slave_id", id), slog.Int("step", slave.Step))
	return nil
}

// StopSlave tells a slave to drop its connections. The slave is recorded as
// offline with zero connections whether or not the message was delivered.
func (s *slaveService) StopSlave(ctx context.Context, id int64) error {
	slave, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	sendErr := s.ctl.Send(ctx, slave, domain.CommandStop)
	slave.Status = domain.SlaveOffline
	slave.Connections = 0
	slave.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, slave, "status", "connections", "updated_at"); err != nil {
		return err
	}
	s.publishState(slave)

	if sendErr != nil {
		s.logger.WarnContext(ctx, "stop slave failed",
			slog.Int64("slave_id", id),
			slog.String("error", sendErr.Error()),
		)
		return unavailable(id, sendErr)
	}
	s.logger.InfoContext(ctx, "slave stopped", slog.Int64("slave_id", id))
	return nil
}

// ConfigResult returns a copy of the latest result reported by a slave.
func (s *slaveService) ConfigResult(id int64) (*domain.ConfigResult, bool) {
	return s.results.Get(id)
}

// ConfigResults returns the latest result of every slave.
func (s *slaveService) ConfigResults() []domain.ConfigResult {
	return s.results.All()
}

// ClearConfigResult forgets the latest result of a slave.
func (s *slaveService) ClearConfigResult(id int64) {
	s.results.Clear(id)
}

// Register records an agent's control address. Unknown IDs create a new
// slave named "Slave-<id>" with default broker settings.
func (s *slaveService) Register(ctx context.Context, id int64, host string, port int) (*domain.Slave, error) {
	host = strings.TrimSpace(host)
	if id <= 0 {
		return nil, domain.NewAppError(domain.CodeValidation, "slave_id must be positive", nil)
	}
	if host == "" {
		return nil, domain.NewAppError(domain.CodeValidation, "ip is required", nil)
	}
	if port <= 0 || port > 65535 {
		return nil, domain.NewAppError(domain.CodeValidation, "port must be between 1 and 65535", nil)
	}

	now := s.now()
	slave, err := s.repo.GetByID(ctx, id)
	switch {
	case domain.IsNotFound(err):
		slave = &domain.Slave{
			ID:         id,
			Name:       fmt.Sprintf("Slave-%d", id),
			SlaveHost:  host,
			SlavePort:  port,
			KeepAlive:  domain.DefaultKeepAlive,
			AckTopic:   domain.DefaultAckTopic,
			Status:     domain.SlaveOnline,
			LastSeenAt: now,
		}
		applyBrokerDefaults(slave)
		if err := s.repo.Create(ctx, slave); err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "slave registered",
			slog.Int64("slave_id", id),
			slog.String("addr", fmt.Sprintf("%s:%d", host, port)),
			slog.Bool("new", true),
		)
	case err != nil:
		return nil, err
	default:
		slave.SlaveHost = host
		slave.SlavePort = port
		applyBrokerDefaults(slave)
		slave.Status = domain.SlaveOnline
		slave.LastSeenAt = now
		slave.UpdatedAt = now
		if err := s.repo.Update(ctx, slave,
			"slave_host", "slave_port", "mqtt_host", "mqtt_port", "status", "last_seen_at", "updated_at",
		); err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "slave registered",
			slog.Int64("slave_id", id),
			slog.String("addr", fmt.Sprintf("%s:%d", host, port)),
			slog.Bool("new", false),
		)
	}

	s.publishState(slave)
	return slave, nil
}

// Heartbeat marks a registered slave online. Unknown IDs return
// domain.ErrNotFound so the agent re-registers.
func (s *slaveService) Heartbeat(ctx context.Context, id int64) (*domain.Slave, error) {
	slave, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := slave.Status
	now := s.now()
	slave.Status = domain.SlaveOnline
	slave.LastSeenAt = now
	slave.UpdatedAt = now
	if err := s.repo.Update(ctx, slave, "status", "last_seen_at", "updated_at"); err != nil {
		return nil, err
	}

	if previous != slave.Status {
		s.logger.InfoContext(ctx, "slave status changed",
			slog.Int64("slave_id", id),
			slog.String("from", previous),
			slog.String("to", slave.Status),
		)
		s.publishState(slave)
	}
	return slave, nil
}

// ApplyConfigResult stores a slave's report and updates its connection count.
// Reports from unknown slaves are kept but change nothing else.
func (s *slaveService) ApplyConfigResult(ctx context.Context, result domain.ConfigResult) error {
	if result.ReceivedAt.IsZero() {
		result.ReceivedAt = s.now()
	}
	s.results.Put(result)

	slave, err := s.repo.GetByID(ctx, result.SlaveID)
	if domain.IsNotFound(err) {
		s.logger.WarnContext(ctx, "config result for unknown slave", slog.Int64("slave_id", result.SlaveID))
		return nil
	}
	if err != nil {
		return err
	}

	slave.Connections = result.Connections
	if result.SuccessCount > 0 {
		slave.Status = domain.SlaveRunning
	}
	slave.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, slave, "connections", "status", "updated_at"); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "config result received",
		slog.Int64("slave_id", result.SlaveID),
		slog.Int("success", result.SuccessCount),
		slog.Int("failure", result.FailureCount),
		slog.Int("connections", result.Connections),
		slog.String("message", result.Message),
	)
	s.publishState(slave)
	return nil
}

// MarkStale marks slaves not seen since cutoff as offline and returns how many changed.
func (s *slaveService) MarkStale(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.repo.MarkOffline(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	at := s.now()
	for _, id := range ids {
		s.logger.InfoContext(ctx, "slave marked offline", slog.Int64("slave_id", id))
		s.publish(domain.SlaveEvent{
			Type:    domain.SlaveEventUpdated,
			SlaveID: id,
			Status:  domain.SlaveOffline,
			At:      at,
		})
	}
	return len(ids), nil
}

func (s *slaveService) publishState(slave *domain.Slave) {
	s.publish(domain.SlaveEvent{
		Type:        domain.SlaveEventUpdated,
		SlaveID:     slave.ID,
		Status:      slave.Status,
		Connections: slave.Connections,
		At:          s.now(),
	})
}

func (s *slaveService) publish(event domain.SlaveEvent) {
	if s.events == nil {
		return
	}
	if event.At.IsZero() {
		event.At = s.now()
	}
	s.events.Publish(event)
}

func unavailable(id int64, err error) error {
	return domain.NewAppError(domain.CodeUnavailable, fmt.Sprintf("slave %d unreachable", id), err)
}

func applyBrokerDefaults(slave *domain.Slave) {
	if slave.MQTTHost == "" {
		slave.MQTTHost = domain.DefaultMQTTHost
	}
	if slave.MQTTPort == 0 {
		slave.MQTTPort = domain.DefaultMQTTPort
	}
}

func trimInput(in domain.SlaveInput) domain.SlaveInput {
	in.Name = strings.TrimSpace(in.Name)
	in.MQTTHost = strings.TrimSpace(in.MQTTHost)
	in.ClientID = strings.TrimSpace(in.ClientID)
	in.Topic = strings.TrimSpace(in.Topic)
	in.AckTopic = strings.TrimSpace(in.AckTopic)
	return in
}

// validateSettings checks the console-editable fields of a slave.
func validateSettings(slave *domain.Slave) error {
	switch {
	case slave.Name == "":
		return domain.NewAppError(domain.CodeValidation, "name is required", nil)
	case utf8.RuneCountInString(slave.Name) > 100:
		return domain.NewAppError(domain.CodeValidation, "name must be at most 100 characters", nil)
	case slave.MQTTPort < 1 || slave.MQTTPort > 65535:
		return domain.NewAppError(domain.CodeValidation, "mqtt_port must be between 1 and 65535", nil)
	case slave.QoS < 0 || slave.QoS > 2:
		return domain.NewAppError(domain.CodeValidation, "qos must be 0, 1 or 2", nil)
	case slave.Start < 0:
		return domain.NewAppError(domain.CodeValidation, "start must not be negative", nil)
	case slave.Step < 0:
		return domain.NewAppError(domain.CodeValidation, "step must not be negative", nil)
	case strings.ContainsAny(slave.AckTopic, "+#"):
		return domain.NewAppError(domain.CodeValidation, "ack_topic must not contain wildcards", nil)
	}
	return nil
}
