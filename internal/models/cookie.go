package models

// Cookie is a browser cookie as persisted in the cookie jar
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"` // Seconds since epoch, <= 0 for session cookies
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"` // "Strict", "Lax", "None"
}

// LastLoginCookie is the jar entry recording which login the jar belongs to
const LastLoginCookie = "last_login"
