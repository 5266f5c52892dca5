package models

// Principal is the operator acting through the console, as asserted by the gateway
type Principal struct {
	UserID        string `json:"user_id"`
	Role          string `json:"role"`
	Authorization string `json:"-"`
}
