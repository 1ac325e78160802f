package pkg

import (
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/mqttbench/internal/domain"
)

// Toast types understood by the console's showToast listener.
const (
	ToastSuccess = "success"
	ToastError   = "error"
)

// TriggerToast sets the HX-Trigger header with a showToast event plus any
// extra client events (e.g. "slavesChanged") that refresh page fragments.
func TriggerToast(c *gin.Context, message, toastType string, events ...string) {
	payload := map[string]any{
		"showToast": map[string]string{
			"message": message,
			"type":    toastType,
		},
	}
	for _, e := range events {
		payload[e] = true
	}
	trigger, _ := json.Marshal(payload)
	c.Header("HX-Trigger", string(trigger))
}

// IsHTMX reports whether the request was issued by htmx.
func IsHTMX(c *gin.Context) bool {
	return c.GetHeader("HX-Request") == "true"
}

// SafeMessage extracts a user-safe message from an AppError. Only messages of
// user-facing codes are returned; anything else yields fallback so technical
// details never reach the page.
func SafeMessage(err error, fallback string) string {
	var appErr *domain.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		switch appErr.Code {
		case domain.CodeNotFound, domain.CodeAlreadyExists, domain.CodeValidation,
			domain.CodeUnavailable, domain.CodeConflict:
			return appErr.Message
		}
	}
	return fallback
}
