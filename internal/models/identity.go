package models

import "sort"

// IdentityMap links CRM user ids and chat contact ids to chat identities
type IdentityMap struct {
	Users    map[string]int64 `json:"users"`
	Contacts map[string]int64 `json:"contacts"`
}

// NewIdentityMap returns an empty map
func NewIdentityMap() *IdentityMap {
	return &IdentityMap{
		Users:    map[string]int64{},
		Contacts: map[string]int64{},
	}
}

// Contact returns the chat identity of a contact id
func (m *IdentityMap) Contact(id string) (int64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m.Contacts[id]
	return v, ok
}

// UserByValue returns the smallest user key whose identity equals value
func (m *IdentityMap) UserByValue(value int64) (string, bool) {
	if m == nil {
		return "", false
	}
	keys := make([]string, 0, len(m.Users))
	for k := range m.Users {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if m.Users[k] == value {
			return k, true
		}
	}
	return "", false
}

// Empty reports whether the map holds no identities
func (m *IdentityMap) Empty() bool {
	return m == nil || (len(m.Users) == 0 && len(m.Contacts) == 0)
}
