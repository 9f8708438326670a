package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNodeType(t *testing.T) {
	for _, token := range []string{
		"vos:Node", "vos:DataNode", "vos:UnstructuredDataNode",
		"vos:StructuredDataNode", "vos:ContainerNode", "vos:LinkNode",
	} {
		got, ok := ParseNodeType(token)
		assert.True(t, ok, token)
		assert.Equal(t, NodeType(token), got)
	}
	_, ok := ParseNodeType("vos:TableNode")
	assert.False(t, ok)
}

func TestIsDataVariant(t *testing.T) {
	assert.True(t, NodeTypeData.IsDataVariant())
	assert.True(t, NodeTypeUnstructuredData.IsDataVariant())
	assert.True(t, NodeTypeStructuredData.IsDataVariant())
	assert.True(t, NodeTypeContainer.IsDataVariant())
	assert.False(t, NodeTypeNode.IsDataVariant())
	assert.False(t, NodeTypeLink.IsDataVariant())
}

func TestPropertyEqual(t *testing.T) {
	a := NewProperty("ivo://ivoa.net/vospace/core#title", "survey", false)
	b := NewProperty("ivo://ivoa.net/vospace/core#title", "survey", true)
	c := NewProperty("ivo://ivoa.net/vospace/core#title", "catalog", false)

	// readOnly does not participate in equality
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestNodeSorting(t *testing.T) {
	n := NewContainerNode("survey")
	n.Properties = []Property{
		NewProperty("ivo://b", "2", true),
		NewProperty("ivo://a", "1", true),
	}
	n.Nodes = []*Node{
		NewDataNode("survey/z"),
		NewDataNode("survey/a"),
	}

	n.SortProperties()
	n.SortNodes()

	assert.Equal(t, "ivo://a", n.Properties[0].URI)
	assert.Equal(t, "survey/a", n.Nodes[0].Path)
}

func TestNodeEqual(t *testing.T) {
	a := NewDataNode("survey/image")
	a.Properties = []Property{NewProperty("ivo://a", "1", true)}
	b := NewDataNode("survey/image")
	b.Properties = []Property{NewProperty("ivo://a", "1", false)}

	assert.True(t, a.Equal(b))

	b.Properties[0].Value = "2"
	assert.False(t, a.Equal(b))

	c := NewContainerNode("survey/image")
	assert.False(t, a.Equal(c))
}

func TestKnownProtocol(t *testing.T) {
	for _, uri := range KnownProtocols() {
		assert.True(t, KnownProtocol(uri))
	}
	assert.False(t, KnownProtocol("ivo://ivoa.net/vospace/core#ftpget"))
}

func TestProtocolScheme(t *testing.T) {
	assert.Equal(t, "http", Protocol{URI: ProtocolHTTPPut}.Scheme())
	assert.Equal(t, "http", Protocol{URI: ProtocolHTTPGet}.Scheme())
	assert.Equal(t, "https", Protocol{URI: ProtocolHTTPSPut}.Scheme())
	assert.Equal(t, "https", Protocol{URI: ProtocolHTTPSGet}.Scheme())
	assert.True(t, Protocol{URI: ProtocolHTTPSPut}.IsPut())
	assert.False(t, Protocol{URI: ProtocolHTTPGet}.IsPut())
}

func TestTransferKinds(t *testing.T) {
	push := PushToSpace("a/b", Protocol{URI: ProtocolHTTPPut})
	assert.True(t, push.IsProtocolTransfer())
	assert.True(t, push.IsPush())

	pull := PullFromSpace("a/b", Protocol{URI: ProtocolHTTPGet})
	assert.True(t, pull.IsPull())

	move := MoveTransfer("a/b", "c/d")
	assert.False(t, move.IsProtocolTransfer())
	assert.False(t, move.KeepBytes)

	cp := CopyTransfer("a/b", "c/d")
	assert.True(t, cp.KeepBytes)
}
