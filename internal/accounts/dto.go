package accounts

import "strings"

// CreateAccountRequest is the payload for opening an account.
type CreateAccountRequest struct {
	Name        string  `json:"name" validate:"required,min=2,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=255"`
}

func (r CreateAccountRequest) normalize() NewAccount {
	out := NewAccount{Name: strings.TrimSpace(r.Name)}
	if r.Description != nil {
		desc := strings.TrimSpace(*r.Description)
		if desc != "" {
			out.Description = &desc
		}
	}
	return out
}
