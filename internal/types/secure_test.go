package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

const testSecret = "sms-gateway-bearer-7f3a91"

func TestSecretString_Redacted(t *testing.T) {
	s := SecretString(testSecret)

	type smtpSettings struct {
		Host     string       `json:"host"`
		Password SecretString `json:"password"`
	}
	nested, err := json.Marshal(smtpSettings{Host: "mail.example.net", Password: s})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	plain, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	var logged bytes.Buffer
	slog.New(slog.NewJSONHandler(&logged, nil)).Info("gateway", "token", s, slog.Any("wrapped", s))

	renderings := map[string]string{
		"%s":          fmt.Sprintf("%s", s),
		"%v":          fmt.Sprintf("%v", s),
		"%+v":         fmt.Sprintf("%+v", s),
		"%#v":         fmt.Sprintf("%#v", s),
		"struct %+v":  fmt.Sprintf("%+v", smtpSettings{Password: s}),
		"json":        string(plain),
		"json struct": string(nested),
		"slog":        logged.String(),
	}
	for name, out := range renderings {
		if strings.Contains(out, testSecret) {
			t.Errorf("%s leaked the secret: %s", name, out)
		}
		if !strings.Contains(out, redactedPlaceholder) {
			t.Errorf("%s = %q, want the placeholder", name, out)
		}
	}
}

func TestSecretString_Unmask(t *testing.T) {
	if got := SecretString(testSecret).Unmask(); got != testSecret {
		t.Errorf("Unmask() = %q, want %q", got, testSecret)
	}
	if got := SecretString("").Unmask(); got != "" {
		t.Errorf("Unmask() on empty = %q", got)
	}
}

func TestSecretString_IsSet(t *testing.T) {
	if SecretString("").IsSet() {
		t.Error("empty value reported as set")
	}
	if !SecretString(testSecret).IsSet() {
		t.Error("configured value reported as unset")
	}
}
