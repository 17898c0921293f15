package domain

// EntityName is the logical resource name used in notifications and error keys.
const EntityName = "wallet"

// Wallet is the single resource exposed by the registry. ID is nil until the
// primary store assigns one on first save.
type Wallet struct {
	ID          *int64  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// HasID reports whether the wallet carries an identifier.
func (w Wallet) HasID() bool {
	return w.ID != nil
}

// IDValue returns the identifier, or 0 when absent.
func (w Wallet) IDValue() int64 {
	if w.ID == nil {
		return 0
	}
	return *w.ID
}

// WithID returns a copy of w carrying id.
func (w Wallet) WithID(id int64) Wallet {
	w.ID = &id
	return w
}
