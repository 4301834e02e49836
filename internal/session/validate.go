package session

import (
	"net/mail"
	"strings"

	"github.com/autopeer-io/campustrack/internal/pkg/apperr"
	"github.com/autopeer-io/campustrack/internal/pkg/model"
)

const minPasswordLength = 6

// validateRegistration runs the checks the sign-up form performs before
// anything is sent. Each failing field gets one message.
func validateRegistration(req model.RegisterRequest) error {
	fields := map[string]string{}
	required := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			fields[name] = "is required"
		}
	}

	required("username", req.Username)
	required("email", req.Email)
	required("password", req.Password)
	required("firstName", req.FirstName)
	required("lastName", req.LastName)

	if _, ok := fields["email"]; !ok {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			fields["email"] = "is not a valid address"
		}
	}
	if _, ok := fields["password"]; !ok && len(req.Password) < minPasswordLength {
		fields["password"] = "must be at least 6 characters"
	}

	switch req.Role {
	case "":
		fields["role"] = "is required"
	case model.RoleStudent:
		required("studentId", req.StudentID)
	case model.RoleDriver:
		required("licenseNumber", req.LicenseNumber)
	default:
		if !req.Role.Valid() {
			fields["role"] = "is not a known role"
		}
	}

	if len(fields) > 0 {
		return apperr.Validation("register", fields)
	}
	return nil
}
