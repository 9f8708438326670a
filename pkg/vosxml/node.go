package vosxml

import (
	"github.com/beevik/etree"
	"github.com/icrar/govospace/pkg/errtypes"
	"github.com/icrar/govospace/pkg/types"
)

// ParseNode decodes a node document into the matching variant.
// Properties are sorted by URI and container children by path.
func (c *Codec) ParseNode(data []byte) (*types.Node, error) {
	root, err := parseDoc(data, "node")
	if err != nil {
		return nil, err
	}

	uri := attr(root, "uri")
	if uri == "" {
		return nil, errtypes.InvalidURI("node uri attribute missing")
	}
	path, err := types.PathFromURI(uri)
	if err != nil {
		return nil, errtypes.InvalidURI(err.Error())
	}

	typeTok := attr(root, "type")
	nodeType, ok := types.ParseNodeType(typeTok)
	if !ok {
		return nil, errtypes.InvalidURI("unknown node type " + typeTok)
	}

	n := &types.Node{Path: path, Type: nodeType}
	if nodeType.IsDataVariant() {
		n.Busy = attr(root, "busy") == "true"
	}

	if props := root.SelectElement("properties"); props != nil {
		for _, pe := range props.SelectElements("property") {
			p, err := parseProperty(pe)
			if err != nil {
				return nil, err
			}
			n.Properties = append(n.Properties, p)
		}
	}
	n.SortProperties()

	if nodeType.IsDataVariant() {
		if n.Accepts, err = parseViews(root, "accepts"); err != nil {
			return nil, err
		}
		if n.Provides, err = parseViews(root, "provides"); err != nil {
			return nil, err
		}
	}

	switch nodeType {
	case types.NodeTypeContainer:
		if nodes := root.SelectElement("nodes"); nodes != nil {
			for _, ce := range nodes.SelectElements("node") {
				child, err := parseChildHeader(ce)
				if err != nil {
					return nil, err
				}
				n.Nodes = append(n.Nodes, child)
			}
		}
		n.SortNodes()
	case types.NodeTypeLink:
		target := root.SelectElement("target")
		if target == nil || target.Text() == "" {
			return nil, errtypes.InvalidURI("link node target missing")
		}
		n.Target = target.Text()
	}

	return n, nil
}

func parseProperty(el *etree.Element) (types.Property, error) {
	uri := attr(el, "uri")
	if uri == "" {
		return types.Property{}, errtypes.InvalidURI("property uri attribute missing")
	}
	if attr(el, "nil") == "true" {
		return types.DeleteProperty(uri), nil
	}
	readOnly := true
	if hasAttr(el, "readOnly") {
		readOnly = attr(el, "readOnly") == "true"
	}
	return types.NewProperty(uri, el.Text(), readOnly), nil
}

func parseViews(root *etree.Element, group string) ([]types.View, error) {
	el := root.SelectElement(group)
	if el == nil {
		return nil, nil
	}
	var views []types.View
	for _, ve := range el.SelectElements("view") {
		uri := attr(ve, "uri")
		if uri == "" {
			return nil, errtypes.InvalidURI(group + " view uri missing")
		}
		views = append(views, types.View{URI: uri})
	}
	return views, nil
}

// Container children are header-only: uri, type and the child's own
// busy state.
func parseChildHeader(el *etree.Element) (*types.Node, error) {
	uri := attr(el, "uri")
	if uri == "" {
		return nil, errtypes.InvalidURI("child node uri attribute missing")
	}
	path, err := types.PathFromURI(uri)
	if err != nil {
		return nil, errtypes.InvalidURI(err.Error())
	}
	nodeType, ok := types.ParseNodeType(attr(el, "type"))
	if !ok {
		return nil, errtypes.InvalidURI("unknown child node type")
	}
	child := &types.Node{Path: path, Type: nodeType}
	if nodeType.IsDataVariant() {
		child.Busy = attr(el, "busy") == "true"
	}
	return child, nil
}

// EncodeNode emits the node document for any variant.
func (c *Codec) EncodeNode(n *types.Node) ([]byte, error) {
	doc := etree.NewDocument()
	root := doc.CreateElement("vos:node")
	root.CreateAttr("xmlns:vos", NSVOSpace)
	root.CreateAttr("xmlns:xsi", NSXSI)
	root.CreateAttr("uri", types.NodeURI(c.Space, n.Path))
	root.CreateAttr("xsi:type", string(n.Type))
	if n.Type.IsDataVariant() {
		root.CreateAttr("busy", boolText(n.Busy))
	}

	if len(n.Properties) > 0 {
		props := root.CreateElement("vos:properties")
		for _, p := range n.Properties {
			pe := props.CreateElement("vos:property")
			pe.CreateAttr("uri", p.URI)
			pe.CreateAttr("readOnly", boolText(p.ReadOnly))
			if p.Delete {
				pe.CreateAttr("xsi:nil", "true")
			} else {
				pe.SetText(p.Value)
			}
		}
	}

	if n.Type.IsDataVariant() {
		encodeViews(root, "vos:accepts", n.Accepts)
		encodeViews(root, "vos:provides", n.Provides)
	}

	switch n.Type {
	case types.NodeTypeContainer:
		nodes := root.CreateElement("vos:nodes")
		for _, child := range n.Nodes {
			ce := nodes.CreateElement("vos:node")
			ce.CreateAttr("uri", types.NodeURI(c.Space, child.Path))
			ce.CreateAttr("xsi:type", string(child.Type))
			if child.Type.IsDataVariant() {
				ce.CreateAttr("busy", boolText(child.Busy))
			}
		}
	case types.NodeTypeLink:
		root.CreateElement("vos:target").SetText(n.Target)
	}

	return doc.WriteToBytes()
}

func encodeViews(root *etree.Element, group string, views []types.View) {
	if len(views) == 0 {
		return
	}
	el := root.CreateElement(group)
	for _, v := range views {
		el.CreateElement("vos:view").CreateAttr("uri", v.URI)
	}
}

func boolText(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
