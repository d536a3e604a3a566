package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv_BraceAndBareForms(t *testing.T) {
	t.Setenv("FLUXRELAY_TEST_VAR", "value")

	got := ExpandEnv([]byte("token: ${FLUXRELAY_TEST_VAR}\nother: $FLUXRELAY_TEST_VAR"))
	assert.Equal(t, "token: value\nother: value", string(got))
}

func TestExpandEnv_MissingVarExpandsEmpty(t *testing.T) {
	_ = os.Unsetenv("FLUXRELAY_DOES_NOT_EXIST")
	got := ExpandEnv([]byte("x: ${FLUXRELAY_DOES_NOT_EXIST}"))
	assert.Equal(t, "x: ", string(got))
}
