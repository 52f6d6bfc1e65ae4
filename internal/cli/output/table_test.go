package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf, []string{"Region", "Size"}, [][]string{
		{"video", "120 MiB"},
		{"thumbnail", "4.2 MiB"},
	})

	out := buf.String()
	assert.Contains(t, out, "REGION")
	assert.Contains(t, out, "SIZE")
	assert.Contains(t, out, "video")
	assert.Contains(t, out, "120 MiB")
	assert.Contains(t, out, "thumbnail")
	assert.Contains(t, out, "4.2 MiB")
}

func TestPrintTable_NoRows(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf, []string{"Region", "Size"}, nil)

	assert.Contains(t, buf.String(), "REGION")
	assert.NotContains(t, buf.String(), "video")
}
