/*
Package vosxml encodes and decodes the VOSpace 2.1 XML dialect.

The codec covers node documents (all six variants, properties with
delete markers, view lists, container children), transfer documents
(push/pull protocol transfers and copy/move node transfers), UWS job
summaries, and the service-level protocol and property listings.

Canonical ordering lives here: properties are sorted by URI and
container children by path after decoding, so storage can return
unordered sets.
*/
package vosxml

import (
	"github.com/beevik/etree"
	"github.com/icrar/govospace/pkg/errtypes"
)

// XML namespaces of the dialect.
const (
	NSVOSpace = "http://www.ivoa.net/xml/VOSpace/v2.1"
	NSXSI     = "http://www.w3.org/2001/XMLSchema-instance"
	NSUWS     = "http://www.ivoa.net/xml/UWS/v1.0"
	NSXLink   = "http://www.w3.org/1999/xlink"
)

// Codec serializes model types for one space. Space is the authority
// part of emitted vos:// URIs.
type Codec struct {
	Space string
}

// NewCodec returns a codec emitting URIs for the named space.
func NewCodec(space string) *Codec { return &Codec{Space: space} }

func parseDoc(data []byte, root string) (*etree.Element, error) {
	if len(data) == 0 {
		return nil, errtypes.InvalidArgument("empty request body")
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, errtypes.InvalidArgument("malformed XML: " + err.Error())
	}
	el := doc.Root()
	if el == nil || el.Tag != root {
		return nil, errtypes.InvalidArgument("expected <" + root + "> document")
	}
	return el, nil
}

// attr returns the value of an attribute regardless of its namespace
// prefix, so both type and xsi:type resolve.
func attr(el *etree.Element, key string) string {
	return el.SelectAttrValue(key, "")
}

func hasAttr(el *etree.Element, key string) bool {
	return el.SelectAttr(key) != nil
}
