package bridge

import (
	"context"
	"errors"
	"os/user"
	"strings"

	"github.com/zalando/go-keyring"
)

// Keychain is the keychain capability. Reads only.
type Keychain interface {
	// Read returns the secret and whether it exists.
	Read(ctx context.Context, service, account string) (string, bool, error)
}

// OSKeychain reads from the platform credential store.
type OSKeychain struct {
	inv invoker
}

var _ Keychain = (*OSKeychain)(nil)

// Read looks up service/account. An empty account means the current OS user.
func (k *OSKeychain) Read(ctx context.Context, service, account string) (string, bool, error) {
	if strings.TrimSpace(service) == "" {
		return "", false, capErr("keychain", "read", invalid("service is empty"))
	}
	if account == "" {
		if u, err := user.Current(); err == nil {
			account = u.Username
		}
	}

	v, err := k.inv.do(ctx, "keychain", "read", func(ctx context.Context) (interface{}, error) {
		secret, err := keyring.Get(service, account)
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return secret, nil
	})
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return v.(string), true, nil
}
