package stripe

import (
	"context"
	"testing"

	"github.com/lucasmedrano/communitas-backend/pkg/config"
)

func TestNewClientRejectsMismatchedKey(t *testing.T) {
	_, err := NewClient(context.Background(), config.StripeConfig{
		APIKey: "sk_live_abc",
		Secret: "whsec_x",
		Env:    "test",
	}, nil)
	if err == nil {
		t.Fatal("live key in test env must be rejected")
	}
}

func TestNewClientRequiresSecrets(t *testing.T) {
	if _, err := NewClient(context.Background(), config.StripeConfig{Env: "test"}, nil); err == nil {
		t.Fatal("missing api key must be rejected")
	}
	if _, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_abc", Env: "test"}, nil); err == nil {
		t.Fatal("missing webhook secret must be rejected")
	}
}

func TestNewClientNormalizesEnvironment(t *testing.T) {
	client, err := NewClient(context.Background(), config.StripeConfig{
		APIKey: "sk_test_abc",
		Secret: "whsec_x",
		Env:    " TEST ",
	}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.Environment() != "test" {
		t.Fatalf("unexpected env %q", client.Environment())
	}
	if client.SigningSecret() != "whsec_x" {
		t.Fatalf("unexpected secret")
	}
}
