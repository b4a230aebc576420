package api

import (
	"encoding/xml"
	"fmt"
	"net/http"
)

// El is one element of a response document: a name with either text content
// or child elements. Documents are built as literal trees and serialized
// through the encoder, so content is always escaped.
type El struct {
	Name     string
	Text     string
	Children []El
}

// Child appends a text child and returns the element for chaining.
func (e *El) Child(name, text string) *El {
	e.Children = append(e.Children, El{Name: name, Text: text})
	return e
}

// Childf appends a formatted text child.
func (e *El) Childf(name, format string, args ...any) *El {
	return e.Child(name, fmt.Sprintf(format, args...))
}

// Append adds a child element and returns the element for chaining.
func (e *El) Append(child El) *El {
	e.Children = append(e.Children, child)
	return e
}

func (e *El) encode(enc *xml.Encoder) error {
	start := xml.StartElement{Name: xml.Name{Local: e.Name}}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if len(e.Children) > 0 {
		for i := range e.Children {
			if err := e.Children[i].encode(enc); err != nil {
				return err
			}
		}
	} else if e.Text != "" {
		if err := enc.EncodeToken(xml.CharData(e.Text)); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

// The gateway's callback consumers expect the legacy declaration; the payload
// itself is plain ASCII.
const xmlDeclaration = `<?xml version="1.0" encoding="ISO-8859-1"?>` + "\n"

// writeDocument serializes a response document with the declaration the
// gateway's consumers expect.
func writeDocument(w http.ResponseWriter, status int, root *El) {
	w.Header().Set("Content-Type", "text/xml; charset=ISO-8859-1")
	w.WriteHeader(status)

	_, _ = w.Write([]byte(xmlDeclaration))
	enc := xml.NewEncoder(w)
	_ = root.encode(enc)
	_ = enc.Flush()
	_, _ = w.Write([]byte("\n"))
}

// errorDocument is the gateway-shaped error envelope.
func errorDocument(w http.ResponseWriter, status int, message string) {
	root := &El{Name: "details"}
	root.Child("ep_status", "err")
	root.Child("ep_message", message)
	writeDocument(w, status, root)
}
