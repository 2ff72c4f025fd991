package model

// Key is a stored API credential together with its optional account details
// and the result of the most recent usage check. Secret is the dedup key
// within a Collection; ID never changes once assigned.
//
// JSON names keep the field layout of earlier saved configurations. Only the
// shape carries over: blobs sealed with the old CryptoJS passphrase format do
// not decrypt under the current codec and load as undecodable.
type Key struct {
	ID        string `json:"id"`
	Secret    string `json:"apiKey"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Usage     *Usage `json:"usage"`
	LastError string `json:"error,omitempty"`
}

// MaskedSecret returns the first and last four characters of the secret
// separated by an ellipsis. Secrets too short to mask are returned as-is.
func (k Key) MaskedSecret() string {
	const visible = 4
	if len(k.Secret) <= 2*visible {
		return k.Secret
	}
	return k.Secret[:visible] + "..." + k.Secret[len(k.Secret)-visible:]
}

// HasUsage reports whether a usage check has succeeded for this key.
func (k Key) HasUsage() bool {
	return k.Usage != nil
}

// Collection is the ordered set of stored keys. Insertion order is display order.
type Collection []Key

// IndexOf returns the position of the key with the given ID, or -1.
func (c Collection) IndexOf(id string) int {
	for i := range c {
		if c[i].ID == id {
			return i
		}
	}
	return -1
}

// Find returns a pointer to the key with the given ID so it can be updated in place.
func (c Collection) Find(id string) (*Key, bool) {
	i := c.IndexOf(id)
	if i < 0 {
		return nil, false
	}
	return &c[i], true
}

// HasSecret reports whether any key already holds the exact secret.
func (c Collection) HasSecret(secret string) bool {
	for i := range c {
		if c[i].Secret == secret {
			return true
		}
	}
	return false
}

// Remove returns the collection without the key with the given ID and whether
// such a key existed.
func (c Collection) Remove(id string) (Collection, bool) {
	i := c.IndexOf(id)
	if i < 0 {
		return c, false
	}
	out := make(Collection, 0, len(c)-1)
	out = append(out, c[:i]...)
	out = append(out, c[i+1:]...)
	return out, true
}

// Clone returns a deep copy, including each key's usage.
func (c Collection) Clone() Collection {
	if c == nil {
		return nil
	}
	out := make(Collection, len(c))
	for i, k := range c {
		if k.Usage != nil {
			u := *k.Usage
			k.Usage = &u
		}
		out[i] = k
	}
	return out
}

// Totals sums character usage across keys that have been checked. ok is false
// when no key has usage data.
func (c Collection) Totals() (used, limit int64, ok bool) {
	for _, k := range c {
		if k.Usage == nil {
			continue
		}
		ok = true
		used += k.Usage.CharacterCount
		limit += k.Usage.CharacterLimit
	}
	return used, limit, ok
}
