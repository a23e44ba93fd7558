package leds

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/contact-sensor/internal/gpio"
)

func TestSetByIndex(t *testing.T) {
	drv := gpio.NewFakeDriver()
	l := New(drv, []int{13, 14})
	require.NoError(t, l.Init())

	l.On(0)
	l.Off(1)
	l.On(1)
	l.Off(0)

	assert.Equal(t, []bool{true, false}, drv.WritesTo(13))
	assert.Equal(t, []bool{false, true}, drv.WritesTo(14))
	assert.Equal(t, 2, l.Len())
}

func TestSetOutOfRangeIgnored(t *testing.T) {
	drv := gpio.NewFakeDriver()
	l := New(drv, []int{13})
	require.NoError(t, l.Init())

	l.On(1)
	l.On(-1)
	assert.Empty(t, drv.Writes)
}

func TestInitError(t *testing.T) {
	drv := gpio.NewFakeDriver()
	drv.ConfigureErr[14] = errors.New("busy")
	assert.Error(t, New(drv, []int{13, 14}).Init())
}
