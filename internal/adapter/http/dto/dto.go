package dto

import "wallet-registry/internal/core/domain"

// WalletRequest is the request body for creating and updating a wallet.
// ID must be absent on create and present on update; the service enforces that.
type WalletRequest struct {
	ID          *int64  `json:"id"`
	Name        string  `json:"name" binding:"required,max=255,not_blank,no_ctrl"`
	Description *string `json:"description" binding:"omitempty,max=1024,no_ctrl"`
}

// ToDomain converts the request into a domain wallet.
func (r WalletRequest) ToDomain() domain.Wallet {
	return domain.Wallet{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
	}
}

// ReindexResponse is the response body of a full index rebuild.
type ReindexResponse struct {
	Indexed int `json:"indexed"`
}
