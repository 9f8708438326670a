package types

import "sort"

// NodeType discriminates the closed set of node variants. The values are
// the xsi:type tokens used on the wire.
type NodeType string

const (
	NodeTypeNode             NodeType = "vos:Node"
	NodeTypeData             NodeType = "vos:DataNode"
	NodeTypeUnstructuredData NodeType = "vos:UnstructuredDataNode"
	NodeTypeStructuredData   NodeType = "vos:StructuredDataNode"
	NodeTypeContainer        NodeType = "vos:ContainerNode"
	NodeTypeLink             NodeType = "vos:LinkNode"
)

// ParseNodeType maps a wire token to a NodeType.
func ParseNodeType(s string) (NodeType, bool) {
	switch NodeType(s) {
	case NodeTypeNode, NodeTypeData, NodeTypeUnstructuredData,
		NodeTypeStructuredData, NodeTypeContainer, NodeTypeLink:
		return NodeType(s), true
	}
	return "", false
}

// IsDataVariant reports whether the type carries the DataNode state
// (busy flag, accepts/provides views). Containers are data variants.
func (t NodeType) IsDataVariant() bool {
	switch t {
	case NodeTypeData, NodeTypeUnstructuredData, NodeTypeStructuredData, NodeTypeContainer:
		return true
	}
	return false
}

// Property is a (uri, value, readOnly) triple attached to a node.
// Delete marks a removal request in update bodies; it is never stored.
type Property struct {
	URI      string `json:"uri"`
	Value    string `json:"value"`
	ReadOnly bool   `json:"read_only"`
	Delete   bool   `json:"-"`
}

// NewProperty returns a regular property.
func NewProperty(uri, value string, readOnly bool) Property {
	return Property{URI: uri, Value: value, ReadOnly: readOnly}
}

// DeleteProperty returns a delete marker for the given property URI.
func DeleteProperty(uri string) Property {
	return Property{URI: uri, Delete: true}
}

// Equal compares (uri, value) only, matching the wire-level contract.
func (p Property) Equal(o Property) bool {
	return p.URI == o.URI && p.Value == o.Value
}

// Well-known property URIs the service accepts on any node.
const (
	PropertyTitle       = "ivo://ivoa.net/vospace/core#title"
	PropertyCreator     = "ivo://ivoa.net/vospace/core#creator"
	PropertySubject     = "ivo://ivoa.net/vospace/core#subject"
	PropertyDescription = "ivo://ivoa.net/vospace/core#description"
	PropertyContributor = "ivo://ivoa.net/vospace/core#contributor"
	PropertyDate        = "ivo://ivoa.net/vospace/core#date"
	PropertyFormat      = "ivo://ivoa.net/vospace/core#format"
	PropertyLength      = "ivo://ivoa.net/vospace/core#length"
	PropertyCtime       = "ivo://ivoa.net/vospace/core#ctime"
	PropertyMtime       = "ivo://ivoa.net/vospace/core#mtime"
)

// KnownProperties lists the accepted property URIs in registry order.
func KnownProperties() []string {
	return []string{
		PropertyContributor, PropertyCreator, PropertyCtime, PropertyDate,
		PropertyDescription, PropertyFormat, PropertyLength, PropertyMtime,
		PropertySubject, PropertyTitle,
	}
}

// View is a content representation identified by URI.
type View struct {
	URI string `json:"uri"`
}

// Protocol URIs form a closed registry.
const (
	ProtocolHTTPPut  = "ivo://ivoa.net/vospace/core#httpput"
	ProtocolHTTPGet  = "ivo://ivoa.net/vospace/core#httpget"
	ProtocolHTTPSPut = "ivo://ivoa.net/vospace/core#httpsput"
	ProtocolHTTPSGet = "ivo://ivoa.net/vospace/core#httpsget"
)

// KnownProtocols lists the supported protocol URIs in registry order.
func KnownProtocols() []string {
	return []string{ProtocolHTTPPut, ProtocolHTTPGet, ProtocolHTTPSPut, ProtocolHTTPSGet}
}

// KnownProtocol reports whether uri is in the protocol registry.
func KnownProtocol(uri string) bool {
	switch uri {
	case ProtocolHTTPPut, ProtocolHTTPGet, ProtocolHTTPSPut, ProtocolHTTPSGet:
		return true
	}
	return false
}

// Protocol names a data-plane transport. Endpoint is assigned by the
// server when a transfer is negotiated; SecurityMethod is optional.
type Protocol struct {
	URI            string `json:"uri"`
	Endpoint       string `json:"endpoint,omitempty"`
	SecurityMethod string `json:"security_method,omitempty"`
}

// IsPut reports whether the protocol uploads into the space.
func (p Protocol) IsPut() bool {
	return p.URI == ProtocolHTTPPut || p.URI == ProtocolHTTPSPut
}

// Scheme returns the URL scheme the protocol endpoint must use.
func (p Protocol) Scheme() string {
	if p.URI == ProtocolHTTPSPut || p.URI == ProtocolHTTPSGet {
		return "https"
	}
	return "http"
}

// Node is a single entity in the space. The Type field discriminates the
// closed variant set; variant-specific fields are meaningful only for the
// matching types (Busy/Accepts/Provides for data variants, Nodes for
// containers, Target for links).
type Node struct {
	Path       string     `json:"path"`
	Type       NodeType   `json:"type"`
	Owner      string     `json:"owner,omitempty"`
	Properties []Property `json:"properties,omitempty"`

	// Data node state
	Busy     bool   `json:"busy,omitempty"`
	Accepts  []View `json:"accepts,omitempty"`
	Provides []View `json:"provides,omitempty"`

	// Container children, header-only (path, type, busy)
	Nodes []*Node `json:"nodes,omitempty"`

	// Link target, an arbitrary URI
	Target string `json:"target,omitempty"`
}

// NewNode returns a plain vos:Node at path.
func NewNode(path string) *Node { return &Node{Path: path, Type: NodeTypeNode} }

// NewDataNode returns a vos:DataNode at path.
func NewDataNode(path string) *Node { return &Node{Path: path, Type: NodeTypeData} }

// NewContainerNode returns a vos:ContainerNode at path.
func NewContainerNode(path string) *Node { return &Node{Path: path, Type: NodeTypeContainer} }

// NewLinkNode returns a vos:LinkNode at path pointing at target.
func NewLinkNode(path, target string) *Node {
	return &Node{Path: path, Type: NodeTypeLink, Target: target}
}

// IsContainer reports whether the node is a container.
func (n *Node) IsContainer() bool { return n.Type == NodeTypeContainer }

// IsLink reports whether the node is a symbolic link.
func (n *Node) IsLink() bool { return n.Type == NodeTypeLink }

// IsDataVariant reports whether the node carries data-node state.
func (n *Node) IsDataVariant() bool { return n.Type.IsDataVariant() }

// SortProperties orders the property list by ascending URI.
func (n *Node) SortProperties() {
	sort.Slice(n.Properties, func(i, j int) bool {
		return n.Properties[i].URI < n.Properties[j].URI
	})
}

// SortNodes orders container children by ascending path.
func (n *Node) SortNodes() {
	sort.Slice(n.Nodes, func(i, j int) bool {
		return n.Nodes[i].Path < n.Nodes[j].Path
	})
}

// Property returns the property with the given URI, if present.
func (n *Node) Property(uri string) (Property, bool) {
	for _, p := range n.Properties {
		if p.URI == uri {
			return p, true
		}
	}
	return Property{}, false
}

// Equal compares path, type, target and the (uri, value) pairs of the
// sorted property lists. Children and views are negotiated state and do
// not participate in node equality.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.Path != o.Path || n.Type != o.Type || n.Target != o.Target {
		return false
	}
	if len(n.Properties) != len(o.Properties) {
		return false
	}
	a, b := append([]Property(nil), n.Properties...), append([]Property(nil), o.Properties...)
	sort.Slice(a, func(i, j int) bool { return a[i].URI < a[j].URI })
	sort.Slice(b, func(i, j int) bool { return b[i].URI < b[j].URI })
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
