package payment

import "github.com/cartsync/backend/internal/domain/recovery"

// razorpayCollection is the envelope of list endpoints
type razorpayCollection struct {
	Entity string             `json:"entity"`
	Count  int                `json:"count"`
	Items  []recovery.Payment `json:"items"`
}

// RazorpayErrorResponse is the body returned with 4xx/5xx statuses
type RazorpayErrorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}
