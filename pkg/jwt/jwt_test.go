package jwt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NESTREN/aio-warehouse-bot/pkg/jwt"
)

const secret = "test-secret-key"

func TestGenerateParse_RoundTrip(t *testing.T) {
	token, err := jwt.Generate(secret, "ana", "aio-warehouse-bot", 60)
	require.NoError(t, err)

	actor, err := jwt.Parse(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "ana", actor)
}

func TestParse_FirmaIncorrecta(t *testing.T) {
	token, err := jwt.Generate(secret, "ana", "x", 60)
	require.NoError(t, err)

	_, err = jwt.Parse("otra-clave", token)
	assert.Error(t, err)
}

func TestParse_Expirado(t *testing.T) {
	token, err := jwt.Generate(secret, "ana", "x", -1)
	require.NoError(t, err)

	_, err = jwt.Parse(secret, token)
	assert.Error(t, err)
}

func TestGenerate_SinSecretoOActor(t *testing.T) {
	_, err := jwt.Generate("", "ana", "x", 60)
	assert.Error(t, err)

	_, err = jwt.Generate(secret, "", "x", 60)
	assert.Error(t, err)
}
