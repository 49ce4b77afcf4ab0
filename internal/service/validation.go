package service

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/ams-api/internal/models"
)

var hhmmPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// registerAttendanceValidations installs the custom tags used by attendance payloads.
// Registering twice replaces the earlier function, so every constructor may call it.
func registerAttendanceValidations(v *validator.Validate) {
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return hhmmPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(strings.ToUpper(fl.Field().String())).Valid()
	})
	_ = v.RegisterValidation("task_status", func(fl validator.FieldLevel) bool {
		switch models.TaskStatus(fl.Field().String()) {
		case models.TaskStatusPending, models.TaskStatusInProgress, models.TaskStatusCompleted, models.TaskStatusRejected:
			return true
		}
		return false
	})
}
