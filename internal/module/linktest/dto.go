package linktest

import "github.com/simp-lee/mqttbench/internal/domain"

// CreateLinkTestRequest represents the input for creating a link test.
type CreateLinkTestRequest struct {
	TestDuration int `json:"test_duration" form:"test_duration" binding:"required,gte=1"`
	MessageRate  int `json:"message_rate" form:"message_rate" binding:"required,gte=1"`
	MessageSize  int `json:"message_size" form:"message_size" binding:"required,gte=1"`
	QoSLevel     int `json:"qos_level" form:"qos_level" binding:"gte=0,lte=2"`
}

func (r CreateLinkTestRequest) input() domain.LinkTestInput {
	return domain.LinkTestInput{
		TestDuration: r.TestDuration,
		MessageRate:  r.MessageRate,
		MessageSize:  r.MessageSize,
		QoSLevel:     r.QoSLevel,
	}
}

// FinishLinkTestRequest ends a running link test.
type FinishLinkTestRequest struct {
	Failed bool `json:"failed" form:"failed"`
}

// LinkState is one slave's live link state on the LinkTest page.
type LinkState struct {
	SlaveID     int64                `json:"slave_id"`
	Name        string               `json:"name"`
	Status      string               `json:"status"`
	Connections int                  `json:"connections"`
	Result      *domain.ConfigResult `json:"result,omitempty"`
}
