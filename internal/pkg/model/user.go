package model

import "strings"

// User is a profile record, as served by /auth/me, /admin/users and the
// realtime users/{id} path.
type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FirstName     string    `json:"firstName,omitempty"`
	LastName      string    `json:"lastName,omitempty"`
	PhoneNumber   string    `json:"phoneNumber,omitempty"`
	Role          Role      `json:"role"`
	University    string    `json:"university,omitempty"`
	Department    string    `json:"department,omitempty"`
	StudentID     string    `json:"studentId,omitempty"`
	EmployeeID    string    `json:"employeeId,omitempty"`
	LicenseNumber string    `json:"licenseNumber,omitempty"`
	IsActive      bool      `json:"isActive"`
	LastLogin     Timestamp `json:"lastLogin,omitzero"`
	CreatedAt     Timestamp `json:"createdAt,omitzero"`
	UpdatedAt     Timestamp `json:"updatedAt,omitzero"`
}

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// RegisterRequest is the body of POST /auth/signup.
type RegisterRequest struct {
	Username      string `json:"username"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	PhoneNumber   string `json:"phoneNumber,omitempty"`
	Role          Role   `json:"role"`
	University    string `json:"university,omitempty"`
	Department    string `json:"department,omitempty"`
	StudentID     string `json:"studentId,omitempty"`
	EmployeeID    string `json:"employeeId,omitempty"`
	LicenseNumber string `json:"licenseNumber,omitempty"`
}
