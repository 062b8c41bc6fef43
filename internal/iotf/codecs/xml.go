package codecs

import (
	stdxml "encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/encoding"
	"github.com/go-kratos/kratos/v2/encoding/xml"

	"github.com/nerrad567/watson-iot-client/internal/iotf"
)

// XMLNode is a generic XML element.
type XMLNode struct {
	XMLName stdxml.Name
	Attrs   []stdxml.Attr `xml:",any,attr"`
	Content string        `xml:",chardata"`
	Nodes   []XMLNode     `xml:",any"`
}

// Text returns the element's character data with surrounding space removed.
func (n XMLNode) Text() string {
	return strings.TrimSpace(n.Content)
}

// Child returns the first direct child named local.
func (n XMLNode) Child(local string) (XMLNode, bool) {
	for _, c := range n.Nodes {
		if c.XMLName.Local == local {
			return c, true
		}
	}
	return XMLNode{}, false
}

// XML encodes Message.Data as an XML document. []byte and string data are
// sent unchanged; anything else is marshalled.
type XML struct {
	Now func() time.Time
}

// Encode returns the XML bytes for msg.Data.
func (XML) Encode(msg iotf.Message) ([]byte, error) {
	switch d := msg.Data.(type) {
	case []byte:
		return d, nil
	case string:
		return []byte(d), nil
	}

	b, err := encoding.GetCodec(xml.Name).Marshal(msg.Data)
	if err != nil {
		return nil, invalidEvent(FormatXML, fmt.Sprintf("unable to encode XML: %v", err), err)
	}
	return b, nil
}

// Decode parses payload into an XMLNode.
func (c XML) Decode(payload []byte) (iotf.Message, error) {
	var root XMLNode
	if err := encoding.GetCodec(xml.Name).Unmarshal(payload, &root); err != nil {
		return iotf.Message{}, invalidEvent(FormatXML, fmt.Sprintf("unable to parse XML: %v", err), err)
	}
	return iotf.Message{Data: root, Timestamp: received(c.Now)}, nil
}
