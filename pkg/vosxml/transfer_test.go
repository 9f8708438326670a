package vosxml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icrar/govospace/pkg/types"
)

func TestTransferRoundTrip(t *testing.T) {
	push := types.PushToSpace("survey/image", types.Protocol{
		URI:            types.ProtocolHTTPPut,
		SecurityMethod: "ivo://ivoa.net/sso#BasicAA",
	})
	push.View = &types.View{URI: "ivo://ivoa.net/vospace/core#anyview"}

	tests := []struct {
		name     string
		transfer *types.Transfer
	}{
		{name: "push", transfer: push},
		{name: "pull", transfer: types.PullFromSpace("survey/image", types.Protocol{URI: types.ProtocolHTTPGet})},
		{name: "move", transfer: types.MoveTransfer("survey/image", "archive/image")},
		{name: "copy", transfer: types.CopyTransfer("survey/image", "archive/image")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			xml, err := codec.EncodeTransfer(tt.transfer)
			require.NoError(t, err)

			decoded, err := codec.ParseTransfer(xml)
			require.NoError(t, err)
			assert.Equal(t, tt.transfer.Target, decoded.Target)
			assert.Equal(t, tt.transfer.Direction, decoded.Direction)
			assert.Equal(t, tt.transfer.KeepBytes, decoded.KeepBytes)
			assert.Equal(t, tt.transfer.View, decoded.View)
			assert.Equal(t, tt.transfer.Protocols, decoded.Protocols)
		})
	}
}

func TestEncodeTransferEndpoint(t *testing.T) {
	tr := types.PushToSpace("survey/image", types.Protocol{
		URI:      types.ProtocolHTTPPut,
		Endpoint: "http://store.icrar.org/data/JOB1/survey/image",
	})

	xml, err := codec.EncodeTransfer(tr)
	require.NoError(t, err)
	assert.Contains(t, string(xml), "http://store.icrar.org/data/JOB1/survey/image")

	decoded, err := codec.ParseTransfer(xml)
	require.NoError(t, err)
	require.Len(t, decoded.Protocols, 1)
	assert.Equal(t, tr.Protocols[0].Endpoint, decoded.Protocols[0].Endpoint)
}

func TestParseTransferErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "empty body", doc: ""},
		{
			name: "missing target",
			doc: `<vos:transfer xmlns:vos="http://www.ivoa.net/xml/VOSpace/v2.1">
				<vos:direction>pushToVoSpace</vos:direction>
			</vos:transfer>`,
		},
		{
			name: "missing direction",
			doc: `<vos:transfer xmlns:vos="http://www.ivoa.net/xml/VOSpace/v2.1">
				<vos:target>vos://icrar.org!vospace/a</vos:target>
			</vos:transfer>`,
		},
		{
			name: "unknown protocol",
			doc: `<vos:transfer xmlns:vos="http://www.ivoa.net/xml/VOSpace/v2.1">
				<vos:target>vos://icrar.org!vospace/a</vos:target>
				<vos:direction>pushToVoSpace</vos:direction>
				<vos:protocol uri="ivo://ivoa.net/vospace/core#ftpput"/>
			</vos:transfer>`,
		},
		{
			name: "bad keepBytes",
			doc: `<vos:transfer xmlns:vos="http://www.ivoa.net/xml/VOSpace/v2.1">
				<vos:target>vos://icrar.org!vospace/a</vos:target>
				<vos:direction>vos://icrar.org!vospace/b</vos:direction>
				<vos:keepBytes>maybe</vos:keepBytes>
			</vos:transfer>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.ParseTransfer([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}
