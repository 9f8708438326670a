package vosxml

import (
	"github.com/beevik/etree"
	"github.com/icrar/govospace/pkg/errtypes"
	"github.com/icrar/govospace/pkg/types"
)

// ParseTransfer decodes a transfer document. Push/pull directions yield
// protocol transfers; any other direction is read as a peer node URI and
// yields a copy (keepBytes true) or move (keepBytes false).
func (c *Codec) ParseTransfer(data []byte) (*types.Transfer, error) {
	root, err := parseDoc(data, "transfer")
	if err != nil {
		return nil, err
	}

	targetEl := root.SelectElement("target")
	if targetEl == nil || targetEl.Text() == "" {
		return nil, errtypes.InvalidURI("transfer target missing")
	}
	target, err := types.PathFromURI(targetEl.Text())
	if err != nil {
		return nil, errtypes.InvalidURI(err.Error())
	}

	directionEl := root.SelectElement("direction")
	if directionEl == nil || directionEl.Text() == "" {
		return nil, errtypes.InvalidURI("transfer direction missing")
	}
	direction := directionEl.Text()

	if direction == types.DirectionPushToVoSpace || direction == types.DirectionPullFromVoSpace {
		t := &types.Transfer{Target: target, Direction: direction}
		if viewEl := root.SelectElement("view"); viewEl != nil {
			uri := attr(viewEl, "uri")
			if uri == "" {
				return nil, errtypes.InvalidURI("transfer view uri missing")
			}
			t.View = &types.View{URI: uri}
		}
		for _, pe := range root.SelectElements("protocol") {
			uri := attr(pe, "uri")
			if !types.KnownProtocol(uri) {
				return nil, errtypes.InvalidURI("unknown protocol " + uri)
			}
			p := types.Protocol{URI: uri}
			if ee := pe.SelectElement("endpoint"); ee != nil {
				p.Endpoint = ee.Text()
			}
			if se := pe.SelectElement("securityMethod"); se != nil {
				p.SecurityMethod = attr(se, "uri")
			}
			t.Protocols = append(t.Protocols, p)
		}
		return t, nil
	}

	dest, err := types.PathFromURI(direction)
	if err != nil {
		return nil, errtypes.InvalidURI(err.Error())
	}
	keepBytes := false
	if kb := root.SelectElement("keepBytes"); kb != nil {
		switch kb.Text() {
		case "true":
			keepBytes = true
		case "false":
		default:
			return nil, errtypes.InvalidURI("keepBytes invalid")
		}
	}
	if keepBytes {
		return types.CopyTransfer(target, dest), nil
	}
	return types.MoveTransfer(target, dest), nil
}

// EncodeTransfer emits the transfer document, including any endpoints
// assigned during negotiation.
func (c *Codec) EncodeTransfer(t *types.Transfer) ([]byte, error) {
	doc := etree.NewDocument()
	root := doc.CreateElement("vos:transfer")
	root.CreateAttr("xmlns:vos", NSVOSpace)
	root.CreateAttr("xmlns:xsi", NSXSI)
	root.CreateElement("vos:target").SetText(types.NodeURI(c.Space, t.Target))

	direction := t.Direction
	if !t.IsProtocolTransfer() {
		direction = types.NodeURI(c.Space, t.Direction)
	}
	root.CreateElement("vos:direction").SetText(direction)

	if t.IsProtocolTransfer() {
		if t.View != nil {
			root.CreateElement("vos:view").CreateAttr("uri", t.View.URI)
		}
		for _, p := range t.Protocols {
			pe := root.CreateElement("vos:protocol")
			pe.CreateAttr("uri", p.URI)
			if p.SecurityMethod != "" {
				pe.CreateElement("vos:securityMethod").CreateAttr("uri", p.SecurityMethod)
			}
			if p.Endpoint != "" {
				pe.CreateElement("vos:endpoint").SetText(p.Endpoint)
			}
		}
	} else {
		root.CreateElement("vos:keepBytes").SetText(boolText(t.KeepBytes))
	}

	return doc.WriteToBytes()
}
