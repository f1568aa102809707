package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPasswordPolicy(t *testing.T) {
	t.Parallel()

	policy := DefaultPasswordPolicy()

	cases := []struct {
		name     string
		password string
		ok       bool
	}{
		{"meets all requirements", "Sup3rSecret", true},
		{"too short", "Ab1", false},
		{"no uppercase", "sup3rsecret", false},
		{"no lowercase", "SUP3RSECRET", false},
		{"no digit", "SuperSecret", false},
		{"symbols satisfy nothing extra by default", "Sup3r-Secret", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := policy.Validate(tc.password)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrWeakPassword)
			}
		})
	}
}

func TestPasswordPolicySymbolRequirement(t *testing.T) {
	t.Parallel()

	policy := DefaultPasswordPolicy()
	policy.RequireSymbol = true

	require.ErrorIs(t, policy.Validate("Sup3rSecret"), ErrWeakPassword)
	require.NoError(t, policy.Validate("Sup3r-Secret"))
}
