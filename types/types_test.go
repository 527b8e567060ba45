package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialsValidate(t *testing.T) {
	valid := Credentials{
		Phone:       "+79990001122",
		APIID:       12345,
		APIHash:     "0123456789abcdef0123456789abcdef",
		SessionPath: "sessions/79990001122.session",
	}
	require.NoError(t, valid.Validate())

	cases := map[string]func(c *Credentials){
		"empty phone":      func(c *Credentials) { c.Phone = "" },
		"letters in phone": func(c *Credentials) { c.Phone = "+7999abc" },
		"zero api id":      func(c *Credentials) { c.APIID = 0 },
		"short hash":       func(c *Credentials) { c.APIHash = "abc" },
		"bad session path": func(c *Credentials) { c.SessionPath = "sessions/79990001122.json" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid
			mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidCredentials)
		})
	}
}

func TestSessionPathStripsPlus(t *testing.T) {
	assert.Equal(t, "sessions/79990001122.session", SessionPath("sessions", "+79990001122"))
}

func TestTaskKindPartition(t *testing.T) {
	for _, k := range WorkerTaskKinds() {
		assert.True(t, k.Valid(), k)
		assert.True(t, k.ServicedByWorker(), k)
	}
	for _, k := range ControlTaskKinds() {
		assert.True(t, k.Valid(), k)
		assert.False(t, k.ServicedByWorker(), k)
	}
	assert.False(t, TaskKind("unknown").Valid())
}

func TestBotDisplayName(t *testing.T) {
	assert.Equal(t, DefaultBotName, Bot{}.DisplayName())
	name := "Alice"
	assert.Equal(t, "Alice", Bot{Name: &name}.DisplayName())
}

func TestJobPending(t *testing.T) {
	assert.True(t, Job{}.Pending())
	assert.False(t, Job{Answer: []byte{0xc3}}.Pending())
}
