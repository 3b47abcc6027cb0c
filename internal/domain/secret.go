package domain

import "time"

// Secret is an encrypted configuration value scoped to an app. The
// plaintext never leaves the create request; EncryptedValue is
// base64(nonce || AES-GCM ciphertext).
type Secret struct {
	ID             string
	AppID          string
	Key            string
	EncryptedValue string
	CreatedAt      time.Time
}
