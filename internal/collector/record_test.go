// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord(t *testing.T) {
	rec := NewRecord()

	t.Run("fields are comma separated", func(t *testing.T) {
		rec.Reset()
		rec.PushInt(1690000000000000000)
		rec.PushString("max")
		rec.PushUint(42)
		assert.Equal(t, "1690000000000000000,max,42", string(rec.Bytes()))
		assert.Equal(t, 3, rec.Fields())
	})

	t.Run("empty fields produce adjacent commas", func(t *testing.T) {
		rec.Reset()
		rec.PushString("a")
		rec.PushEmpty()
		rec.PushEmpty()
		rec.PushString("b")
		assert.Equal(t, "a,,,b", string(rec.Bytes()))
		assert.Equal(t, 4, rec.Fields())
	})

	t.Run("reset clears fields but keeps capacity", func(t *testing.T) {
		rec.Reset()
		assert.Equal(t, 0, rec.Fields())
		assert.Empty(t, rec.Bytes())
	})

	t.Run("write row appends newline without mutating the record", func(t *testing.T) {
		rec.Reset()
		rec.PushString("x")
		rec.PushString("y")

		var out bytes.Buffer
		require.NoError(t, rec.WriteRow(&out))
		assert.Equal(t, "x,y\n", out.String())
		assert.Equal(t, "x,y", string(rec.Bytes()))

		out.Reset()
		require.NoError(t, rec.WriteRow(&out))
		assert.Equal(t, "x,y\n", out.String())
	})
}
