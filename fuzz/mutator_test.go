package fuzz

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcalloway/framecraft/codec"
	"github.com/jcalloway/framecraft/frame"
	"github.com/jcalloway/framecraft/layers/knx"
	"github.com/jcalloway/framecraft/spec"
)

func knxSpec(t *testing.T) *spec.Specification {
	t.Helper()
	sp, err := knx.Spec()
	require.NoError(t, err)
	return sp
}

func TestMutatorDefaults(t *testing.T) {
	m := NewMutator(0, 0)
	assert.NotZero(t, m.Seed(), "zero seed should be replaced")
	assert.Equal(t, DefaultRate, m.Rate())
	assert.NotEqual(t, uuid.Nil, m.CampaignID)

	m2 := NewMutator(0, 1.5)
	assert.Equal(t, DefaultRate, m2.Rate(), "rate above 1 should fall back")

	m3 := NewMutator(77, 0.25)
	assert.EqualValues(t, 77, m3.Seed())
	assert.Equal(t, 0.25, m3.Rate())
}

func TestMutateDeterministic(t *testing.T) {
	sp := knxSpec(t)

	run := func() Report {
		fr, err := frame.New(sp, knx.TypeSearchRequest, nil)
		require.NoError(t, err)
		rep, err := NewMutator(42, 0.5).Mutate(fr)
		require.NoError(t, err)
		return rep
	}

	a, b := run(), run()
	assert.Equal(t, a.Changes, b.Changes, "same seed should replay the same flips")
	assert.Equal(t, a.Frame, b.Frame)
	assert.EqualValues(t, 42, a.Seed)
}

func TestMutateSingleFlipMatchesReport(t *testing.T) {
	sp := knxSpec(t)
	pristine, err := frame.New(sp, knx.TypeSearchRequest, nil)
	require.NoError(t, err)
	want := pristine.Bytes()

	fr, err := frame.New(sp, knx.TypeSearchRequest, nil)
	require.NoError(t, err)

	// 10 mutable bytes at rate 0.05 rounds to a single flip.
	rep, err := NewMutator(99, 0.05).Mutate(fr)
	require.NoError(t, err)
	require.Len(t, rep.Changes, 1)

	got := fr.Bytes()
	require.Len(t, got, len(want))
	var diff []int
	for i := range got {
		if got[i] != want[i] {
			diff = append(diff, i)
		}
	}
	require.Len(t, diff, 1, "exactly one wire byte should differ")

	ch := rep.Changes[0]
	assert.Equal(t, want[diff[0]], ch.Old)
	assert.Equal(t, got[diff[0]], ch.New)
	assert.NotEqual(t, ch.Old, ch.New)
	assert.Equal(t, codec.ToHex(got), rep.Frame)
}

func TestMutateLeavesLengthsAlone(t *testing.T) {
	sp := knxSpec(t)
	fr, err := frame.New(sp, knx.TypeConnectRequest, nil)
	require.NoError(t, err)

	rep, err := NewMutator(7, 1.0).Mutate(fr)
	require.NoError(t, err)
	require.Len(t, rep.Changes, 20, "connect request has 20 mutable bytes")

	for _, ch := range rep.Changes {
		assert.False(t, strings.Contains(ch.Path, "structure length"), "path %s", ch.Path)
		assert.False(t, strings.Contains(ch.Path, "header length"), "path %s", ch.Path)
		assert.False(t, strings.Contains(ch.Path, "total length"), "path %s", ch.Path)
	}

	// The structural envelope survives a full-rate pass.
	data := fr.Bytes()
	require.Len(t, data, 26)
	assert.EqualValues(t, 0x06, data[0], "header length")
	assert.Equal(t, []byte{0x00, 0x1a}, data[4:6], "total length")
	assert.EqualValues(t, 0x08, data[6], "control endpoint structure length")
	assert.EqualValues(t, 0x08, data[14], "data endpoint structure length")
	assert.EqualValues(t, 0x04, data[22], "cri structure length")
}

func TestMutateCampaignIDStamped(t *testing.T) {
	sp := knxSpec(t)
	fr, err := frame.New(sp, knx.TypeDescriptionRequest, nil)
	require.NoError(t, err)

	m := NewMutator(5, 0.5)
	rep, err := m.Mutate(fr)
	require.NoError(t, err)
	assert.Equal(t, m.CampaignID, rep.CampaignID)
}

const lengthsOnlyDoc = `
frame:
  - name: header
    type: HEADER
blocks:
  HEADER:
    - {type: field, name: header length, size: 1, is_length: true}
    - {type: field, name: total length, size: 2}
codes: {}
`

func TestMutateNothingToMutate(t *testing.T) {
	sp, err := spec.Parse([]byte(lengthsOnlyDoc))
	require.NoError(t, err)
	fr, err := frame.New(sp, "", nil)
	require.NoError(t, err)

	_, err = NewMutator(1, 0.5).Mutate(fr)
	assert.ErrorIs(t, err, ErrNothingToMutate)
}
