package model

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleDriver  Role = "DRIVER"
	RoleTeacher Role = "TEACHER"
	RoleStudent Role = "STUDENT"
)

var roles = []Role{RoleAdmin, RoleDriver, RoleTeacher, RoleStudent}

// ParseRole accepts a role name in any case, with or without a "ROLE_" prefix.
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "ROLE_"))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	for _, v := range roles {
		if r == v {
			return true
		}
	}
	return false
}

func (r Role) String() string { return string(r) }
