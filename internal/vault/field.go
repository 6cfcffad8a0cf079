package vault

import (
	"database/sql/driver"
	"fmt"
)

// EncryptedString is a protected field value at rest. The underlying string
// is the opaque token produced by Vault.Encrypt; the zero value represents
// an absent plaintext. It scans and values as text so stores read and write
// it directly.
type EncryptedString string

// Seal encrypts plaintext into a stored field value.
func Seal(v *Vault, plaintext string) (EncryptedString, error) {
	token, err := v.Encrypt(plaintext)
	if err != nil {
		return "", err
	}
	return EncryptedString(token), nil
}

// Reveal decrypts the field for use on the request path. Tokens that fail
// verification reveal as the empty string (see Vault.Decrypt).
func (e EncryptedString) Reveal(v *Vault) string {
	return v.Decrypt(string(e))
}

// Token returns the raw stored token.
func (e EncryptedString) Token() string { return string(e) }

// Scan implements sql.Scanner.
func (e *EncryptedString) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*e = ""
	case string:
		*e = EncryptedString(v)
	case []byte:
		*e = EncryptedString(v)
	default:
		return fmt.Errorf("vault: cannot scan %T into EncryptedString", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (e EncryptedString) Value() (driver.Value, error) {
	return string(e), nil
}
