package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/seahsky/joho-erp-sub004/pkg/enums"
)

// AccessTokenPayload is the identity handed to MintAccessToken.
type AccessTokenPayload struct {
	ActorID    string
	Role       enums.ActorRole
	CustomerID *uuid.UUID
	JTI        string
}

// AccessTokenClaims is the JWT body issued by the identity service. The
// subject is the actor id; customer actors also carry their customer id.
type AccessTokenClaims struct {
	Role       enums.ActorRole `json:"role"`
	CustomerID *uuid.UUID      `json:"customer_id,omitempty"`
	jwt.RegisteredClaims
}

var _ jwt.ClaimsValidator = (*AccessTokenClaims)(nil)

// Validate runs after the registered-claim checks during parsing and before
// signing in MintAccessToken. The system role only exists inside the process.
func (c *AccessTokenClaims) Validate() error {
	switch {
	case strings.TrimSpace(c.Subject) == "":
		return errors.New("token subject is required")
	case !c.Role.IsValid() || c.Role == enums.ActorRoleSystem:
		return fmt.Errorf("invalid actor role %q", c.Role)
	case c.Role == enums.ActorRoleCustomer && (c.CustomerID == nil || *c.CustomerID == uuid.Nil):
		return errors.New("customer tokens require a customer id")
	}
	return nil
}

func (c *AccessTokenClaims) ActorID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}
