package models

import "github.com/golang-jwt/jwt/v5"

// Claims represents the JWT payload accepted by the API.
type Claims struct {
	UserID string       `json:"user_id"`
	Role   PlatformRole `json:"role"`
	Email  string       `json:"email"`
	jwt.RegisteredClaims
}

// Actor converts the claims to the actor performing the request.
func (c *Claims) Actor() Actor {
	if c == nil {
		return Actor{}
	}
	return Actor{UserID: c.UserID, Role: c.Role}
}
