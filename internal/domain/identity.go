package domain

// Identity is the server-verified caller attached to a request or connection.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
}

func (i *Identity) Valid() bool {
	return i != nil && i.UserID != ""
}
