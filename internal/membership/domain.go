// internal/membership/domain.go
package membership

import "errors"

// ErrRateLimited is returned when registrations arrive faster than allowed.
var ErrRateLimited = errors.New("registration rate limit exceeded")

// Registration is the input for creating a user.
type Registration struct {
	Email string `json:"email" validate:"required,email,max=320"`
	Name  string `json:"name" validate:"max=200"`
}
