package main

import (
	"testing"

	"stockpos/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	tests := map[string]config.Config{
		"short secret":           {AuthSecret: "short"},
		"password without email": {AuthSecret: "0123456789abcdef0123456789abcdef", SeedAdminPassword: "Admin-Pass1"},
		"malformed email":        {AuthSecret: "0123456789abcdef0123456789abcdef", SeedAdminEmail: "admin", SeedAdminPassword: "Admin-Pass1"},
	}
	for name, cfg := range tests {
		if err := validateSecurityConfig(cfg); err == nil {
			t.Fatalf("%s: expected config to be rejected", name)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret:        "0123456789abcdef0123456789abcdef",
		SeedAdminEmail:    "owner@stockpos.local",
		SeedAdminPassword: "Owner-Pass1",
	})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
	if err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"}); err != nil {
		t.Fatalf("expected config without bootstrap admin to pass, got %v", err)
	}
}
