package lifecycle

import (
	"strings"
	"sync"
)

// Canonical credential names.
const (
	KeyAPI     = "apiKey"
	KeyNetwork = "networkKey"
	KeyWallet  = "walletKey"
)

// secretAliases maps every accepted secrets key to its canonical name.
var secretAliases = map[string]string{
	"MYRIA_API_KEY":     KeyAPI,
	KeyAPI:              KeyAPI,
	"MYRIA_NETWORK_KEY": KeyNetwork,
	KeyNetwork:          KeyNetwork,
	"MYRIA_WALLET_KEY":  KeyWallet,
	KeyWallet:           KeyWallet,
}

// Credential holds the node secrets. Its String and JSON forms never
// include values.
type Credential struct {
	APIKey     string
	NetworkKey string
	WalletKey  string
}

func (c Credential) HasAPIKey() bool { return c.APIKey != "" }

// Presence reports which credentials are set.
func (c Credential) Presence() map[string]bool {
	return map[string]bool{
		KeyAPI:     c.APIKey != "",
		KeyNetwork: c.NetworkKey != "",
		KeyWallet:  c.WalletKey != "",
	}
}

func (c Credential) String() string {
	var set []string
	for _, k := range []string{KeyAPI, KeyNetwork, KeyWallet} {
		if c.Presence()[k] {
			set = append(set, k)
		}
	}
	return "Credential{" + strings.Join(set, ",") + "}"
}

func (c Credential) MarshalJSON() ([]byte, error) {
	p := c.Presence()
	return []byte(`{"apiKey":` + boolText(p[KeyAPI]) +
		`,"networkKey":` + boolText(p[KeyNetwork]) +
		`,"walletKey":` + boolText(p[KeyWallet]) + `}`), nil
}

func boolText(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// ParseSecrets extracts recognized, non-blank credentials from secrets.
// envAPIKey, when non-empty, takes priority over any API key in secrets.
// accepted lists the canonical names found, in a stable order.
func ParseSecrets(secrets map[string]string, envAPIKey string) (cred Credential, accepted []string) {
	for key, value := range secrets {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch secretAliases[key] {
		case KeyAPI:
			cred.APIKey = value
		case KeyNetwork:
			cred.NetworkKey = value
		case KeyWallet:
			cred.WalletKey = value
		}
	}
	if envAPIKey = strings.TrimSpace(envAPIKey); envAPIKey != "" {
		cred.APIKey = envAPIKey
	}

	for _, k := range []string{KeyAPI, KeyNetwork, KeyWallet} {
		if cred.Presence()[k] {
			accepted = append(accepted, k)
		}
	}
	return cred, accepted
}

// CredentialHolder owns the process-wide credential. Writes happen only
// under the controller's operation lock; reads may happen concurrently.
type CredentialHolder struct {
	mu   sync.RWMutex
	cred Credential
}

func NewCredentialHolder() *CredentialHolder {
	return &CredentialHolder{}
}

// Get returns a copy of the current credential.
func (h *CredentialHolder) Get() Credential {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cred
}

// Merge overwrites the fields set in c and keeps the rest.
func (h *CredentialHolder) Merge(c Credential) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.APIKey != "" {
		h.cred.APIKey = c.APIKey
	}
	if c.NetworkKey != "" {
		h.cred.NetworkKey = c.NetworkKey
	}
	if c.WalletKey != "" {
		h.cred.WalletKey = c.WalletKey
	}
}
