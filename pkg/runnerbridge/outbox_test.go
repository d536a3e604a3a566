package runnerbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutbox_DrainIsFIFOAndEmpties(t *testing.T) {
	o := newOutbox()
	o.push([]byte("one"))
	o.push([]byte("two"))
	o.push([]byte("three"))

	got := o.drain()
	assert.Equal(t, [][]byte{[]byte("one"), []byte("two"), []byte("three")}, got)
	assert.Nil(t, o.drain())
}

func TestOutbox_EmptyDrainReturnsNil(t *testing.T) {
	o := newOutbox()
	assert.Nil(t, o.drain())
}
