package security

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecurity_Secret(t *testing.T) {
	t.Run("success - formatting never exposes the raw value", func(t *testing.T) {
		// arrange
		s := Secret("hunter2")

		// act
		formatted := fmt.Sprintf("%s %v %#v %+v", s, s, s, s)

		// assert
		assert.NotContains(t, formatted, "hunter2")
	})

	t.Run("success - json encoding redacts the value", func(t *testing.T) {
		// arrange
		payload := struct {
			Token Secret `json:"token"`
		}{Token: Secret("hunter2")}

		// act
		b, err := json.Marshal(payload)

		// assert
		assert.Nil(t, err)
		assert.NotContains(t, string(b), "hunter2")
		assert.Contains(t, string(b), "[redacted]")
	})

	t.Run("success - reveal returns the raw value", func(t *testing.T) {
		s := Secret("hunter2")
		assert.Equal(t, "hunter2", s.Reveal())
	})

	t.Run("success - empty secret renders empty and reports zero", func(t *testing.T) {
		s := Secret("")
		assert.Equal(t, "", s.String())
		assert.True(t, s.IsZero())
	})
}
