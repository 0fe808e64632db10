package activitypub

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"

	"github.com/mastodon-ml/relay/internal/store"
)

// KeyPair is the relay's own RSA key pair, used to sign every outbound
// delivery and to answer its own actor document's publicKeyPem.
type KeyPair struct {
	ID        string // e.g. "https://relay.example/actor#main-key"
	Private   *rsa.PrivateKey
	PublicPEM string
}

// LoadOrGenerateKeyPair reads config["private-key"]/["private-key-id"] from
// the store, generating and persisting a fresh 2048-bit RSA key pair on
// first start (§4.C: "the relay's own keypair is generated at first start
// and persisted in config").
func LoadOrGenerateKeyPair(ctx context.Context, st *store.Store, keyID string) (*KeyPair, error) {
	privEntry, err := st.GetConfig(ctx, store.ConfigPrivateKey)
	switch {
	case err == store.ErrNotFound:
		return generateAndStoreKeyPair(ctx, st, keyID)
	case err != nil:
		return nil, fmt.Errorf("activitypub: read private-key: %w", err)
	}

	block, _ := pem.Decode([]byte(privEntry.Value))
	if block == nil {
		return nil, fmt.Errorf("activitypub: private-key in config is not valid PEM")
	}
	privKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("activitypub: parse stored private key: %w", err)
	}

	idEntry, err := st.GetConfig(ctx, store.ConfigPrivateKeyID)
	if err != nil {
		return nil, fmt.Errorf("activitypub: read private-key-id: %w", err)
	}

	return &KeyPair{
		ID:        idEntry.Value,
		Private:   privKey,
		PublicPEM: publicPEM(&privKey.PublicKey),
	}, nil
}

func generateAndStoreKeyPair(ctx context.Context, st *store.Store, keyID string) (*KeyPair, error) {
	slog.Info("generating RSA key pair for relay actor", "keyId", keyID)
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("activitypub: generate RSA key: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privKey),
	})

	if err := st.SetConfig(ctx, store.ConfigEntry{Key: store.ConfigPrivateKey, Value: string(privPEM), Type: store.ValueString}); err != nil {
		return nil, fmt.Errorf("activitypub: persist private-key: %w", err)
	}
	if err := st.SetConfig(ctx, store.ConfigEntry{Key: store.ConfigPrivateKeyID, Value: keyID, Type: store.ValueString}); err != nil {
		return nil, fmt.Errorf("activitypub: persist private-key-id: %w", err)
	}

	return &KeyPair{ID: keyID, Private: privKey, PublicPEM: publicPEM(&privKey.PublicKey)}, nil
}

func publicPEM(pub *rsa.PublicKey) string {
	b, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		// Marshaling an in-process *rsa.PublicKey cannot fail.
		panic(err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: b}))
}
