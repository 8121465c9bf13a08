package fuzz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcalloway/framecraft/frame"
	"github.com/jcalloway/framecraft/layers/knx"
	"github.com/jcalloway/framecraft/spec"
)

func TestFrameTypes(t *testing.T) {
	sp := knxSpec(t)
	types := FrameTypes(sp)

	require.Len(t, types, 15)
	assert.Equal(t, knx.TypeSearchRequest, types[0], "lowest service code first")
	assert.Equal(t, knx.TypeRoutingIndication, types[14])
	assert.Contains(t, types, knx.TypeConnectRequest)
	assert.Contains(t, types, knx.TypeTunnelingRequest)
}

func TestGenerateSingleShape(t *testing.T) {
	sp := knxSpec(t)
	gens, err := Generate(sp, knx.TypeSearchRequest)
	require.NoError(t, err)
	require.Len(t, gens, 1)

	g := gens[0]
	assert.Equal(t, knx.TypeSearchRequest, g.Type)
	assert.Empty(t, g.Variant)
	assert.Equal(t, knx.TypeSearchRequest, g.Label())
	assert.Nil(t, g.Overrides)

	data := g.Frame.Bytes()
	require.Len(t, data, 14)
	assert.Equal(t, []byte{0x02, 0x01}, data[2:4], "service identifier")
}

func TestGenerateConnectRequestVariants(t *testing.T) {
	sp := knxSpec(t)
	gens, err := Generate(sp, knx.TypeConnectRequest)
	require.NoError(t, err)
	require.Len(t, gens, 2)

	mgmt, tunnel := gens[0], gens[1]
	assert.Equal(t, "connection type code=03", mgmt.Variant)
	assert.Equal(t, "connection type code=04", tunnel.Variant)
	assert.Equal(t, "CONNECT REQUEST [connection type code=03]", mgmt.Label())

	// Device management carries no connection data, so its frame is
	// two bytes of tunnel payload shorter and the lengths follow.
	md, td := mgmt.Frame.Bytes(), tunnel.Frame.Bytes()
	require.Len(t, md, 24)
	require.Len(t, td, 26)
	assert.Equal(t, []byte{0x00, 0x18}, md[4:6], "total length")
	assert.Equal(t, []byte{0x00, 0x1a}, td[4:6], "total length")
	assert.EqualValues(t, 0x02, md[22], "cri structure length")
	assert.EqualValues(t, 0x04, td[22], "cri structure length")
	assert.EqualValues(t, 0x03, md[23])
	assert.EqualValues(t, 0x04, td[23])
}

func TestGenerateRoutingIndicationVariants(t *testing.T) {
	sp := knxSpec(t)
	gens, err := Generate(sp, knx.TypeRoutingIndication)
	require.NoError(t, err)
	require.Len(t, gens, 7, "one variant per cemi message code")

	byVariant := map[string]Generated{}
	for _, g := range gens {
		assert.Equal(t, knx.TypeRoutingIndication, g.Type)
		byVariant[g.Variant] = g
	}
	g, ok := byVariant["message code=f5"]
	require.True(t, ok)
	data := g.Frame.Bytes()
	assert.EqualValues(t, 0xf5, data[6], "message code right after the header")
}

func TestGenerateAllShapes(t *testing.T) {
	sp := knxSpec(t)
	gens, err := GenerateAll(sp)
	require.NoError(t, err)
	assert.Len(t, gens, 35)

	perType := map[string]int{}
	for _, g := range gens {
		perType[g.Type]++
	}
	assert.Equal(t, 1, perType[knx.TypeSearchRequest])
	assert.Equal(t, 1, perType[knx.TypeDisconnectRequest])
	assert.Equal(t, 2, perType[knx.TypeConnectRequest])
	assert.Equal(t, 2, perType[knx.TypeConnectResponse])
	assert.Equal(t, 7, perType[knx.TypeConfigurationRequest])
	assert.Equal(t, 7, perType[knx.TypeTunnelingRequest])
	assert.Equal(t, 7, perType[knx.TypeRoutingIndication])
}

func TestGenerateUnknownType(t *testing.T) {
	sp := knxSpec(t)
	_, err := Generate(sp, "BOGUS REQUEST")
	require.Error(t, err)
	assert.ErrorIs(t, err, frame.ErrUnknownType)
}

func TestGenerateAllNoTypedSlot(t *testing.T) {
	sp, err := spec.Parse([]byte(lengthsOnlyDoc))
	require.NoError(t, err)

	_, err = GenerateAll(sp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no typed template slot")
}

func TestGeneratedRebuildsFromOverrides(t *testing.T) {
	sp := knxSpec(t)
	gens, err := Generate(sp, knx.TypeTunnelingRequest)
	require.NoError(t, err)

	// A campaign rebuilds a pristine frame from Type and Overrides for
	// every iteration; the rebuild must reproduce the generated bytes.
	for _, g := range gens {
		fr, err := frame.New(sp, g.Type, g.Overrides)
		require.NoError(t, err, g.Label())
		assert.Equal(t, g.Frame.Bytes(), fr.Bytes(), g.Label())
	}
}
