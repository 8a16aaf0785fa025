package models

import "strings"

// User is the public subset of an account that the server embeds in
// messages and membership lists.
type User struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// Identity is the signed-in account and the bearer token issued for it.
type Identity struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Valid reports whether the identity carries both a username and a token.
func (i *Identity) Valid() bool {
	return i != nil && strings.TrimSpace(i.Username) != "" && i.Token != ""
}

// IsSelf reports whether username belongs to the signed-in account.
func (i *Identity) IsSelf(username string) bool {
	return i != nil && i.Username == username
}
