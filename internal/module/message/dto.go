package message

import "github.com/simp-lee/mqttbench/internal/domain"

// CreateMessageTestRequest represents the input for creating a message test.
type CreateMessageTestRequest struct {
	Topic       string `json:"topic" form:"topic" binding:"required,max=255"`
	PayloadSize int    `json:"payload_size" form:"payload_size" binding:"required,gte=1"`
	MessageType string `json:"message_type" form:"message_type" binding:"omitempty,oneof=json binary"`
	Retained    bool   `json:"retained" form:"retained"`
	Duplicate   bool   `json:"duplicate" form:"duplicate"`
	QoSLevel    int    `json:"qos_level" form:"qos_level" binding:"gte=0,lte=2"`
	Count       int    `json:"count" form:"count" binding:"required,gte=1"`
}

func (r CreateMessageTestRequest) input() domain.MessageTestInput {
	return domain.MessageTestInput{
		Topic:       r.Topic,
		PayloadSize: r.PayloadSize,
		MessageType: r.MessageType,
		Retained:    r.Retained,
		Duplicate:   r.Duplicate,
		QoSLevel:    r.QoSLevel,
		Count:       r.Count,
	}
}
