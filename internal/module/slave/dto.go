package slave

import "github.com/simp-lee/mqttbench/internal/domain"

// CreateSlaveRequest represents the input for adding a slave from the console.
type CreateSlaveRequest struct {
	Name     string `json:"name" form:"name" binding:"required,max=100"`
	MQTTHost string `json:"mqtt_host" form:"mqtt_host" binding:"omitempty,max=255"`
	MQTTPort int    `json:"mqtt_port" form:"mqtt_port" binding:"omitempty,gte=1,lte=65535"`
	ClientID string `json:"client_id" form:"client_id" binding:"max=100"`
	Topic    string `json:"topic" form:"topic" binding:"max=255"`
	QoS      int    `json:"qos" form:"qos" binding:"gte=0,lte=2"`
	Start    int    `json:"start" form:"start" binding:"gte=0"`
	Step     int    `json:"step" form:"step" binding:"gte=0"`
	AckTopic string `json:"ack_topic" form:"ack_topic" binding:"max=255"`
}

func (r CreateSlaveRequest) input() domain.SlaveInput {
	return domain.SlaveInput{
		Name:     r.Name,
		MQTTHost: r.MQTTHost,
		MQTTPort: r.MQTTPort,
		ClientID: r.ClientID,
		Topic:    r.Topic,
		QoS:      r.QoS,
		Start:    r.Start,
		Step:     r.Step,
		AckTopic: r.AckTopic,
	}
}

// UpdateSlaveRequest represents a partial edit. Omitted fields keep their
// stored values, as does -1 for qos, start and step.
type UpdateSlaveRequest struct {
	Name     string `json:"name" form:"name" binding:"max=100"`
	MQTTHost string `json:"mqtt_host" form:"mqtt_host" binding:"max=255"`
	MQTTPort int    `json:"mqtt_port" form:"mqtt_port" binding:"omitempty,gte=1,lte=65535"`
	ClientID string `json:"client_id" form:"client_id" binding:"max=100"`
	Topic    string `json:"topic" form:"topic" binding:"max=255"`
	QoS      *int   `json:"qos" form:"qos" binding:"omitempty,gte=-1,lte=2"`
	Start    *int   `json:"start" form:"start" binding:"omitempty,gte=-1"`
	Step     *int   `json:"step" form:"step" binding:"omitempty,gte=-1"`
	AckTopic string `json:"ack_topic" form:"ack_topic" binding:"max=255"`
}

func (r UpdateSlaveRequest) input() domain.SlaveInput {
	return domain.SlaveInput{
		Name:     r.Name,
		MQTTHost: r.MQTTHost,
		MQTTPort: r.MQTTPort,
		ClientID: r.ClientID,
		Topic:    r.Topic,
		QoS:      keepIfNil(r.QoS),
		Start:    keepIfNil(r.Start),
		Step:     keepIfNil(r.Step),
		AckTopic: r.AckTopic,
	}
}

func keepIfNil(v *int) int {
	if v == nil {
		return domain.KeepValue
	}
	return *v
}

// DeployRequest lists the slaves to receive their stored config.
type DeployRequest struct {
	IDs []int64 `json:"ids" form:"ids" binding:"required,min=1,dive,gt=0"`
}

// SlaveView is a slave with its latest config result, as shown on the
// Slaves and LinkTest pages.
type SlaveView struct {
	domain.Slave
	Result *domain.ConfigResult `json:"result,omitempty"`
}
