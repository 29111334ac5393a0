// Package page renders the HTML bodies of the server's generated responses.
package page

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func element(a atom.Atom, children ...*html.Node) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for _, c := range children {
		n.AppendChild(c)
	}
	return n
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func withID(n *html.Node, id string) *html.Node {
	n.Attr = append(n.Attr, html.Attribute{Key: "id", Val: id})
	return n
}

func document(title string, body ...*html.Node) string {
	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	doc.AppendChild(element(atom.Html,
		element(atom.Head, element(atom.Title, text(title))),
		element(atom.Body, body...),
	))

	var sb strings.Builder
	// Render only fails on writer errors, which strings.Builder never returns.
	_ = html.Render(&sb, doc)
	return sb.String()
}

// NotFound is the body of a 404 response. remoteAddr and userAgent are
// shown back to the client, escaped.
func NotFound(remoteAddr, userAgent string) string {
	return document("404 Not Found",
		element(atom.H1, text("Not Found")),
		element(atom.P, text("The requested file could not be found.")),
		element(atom.P,
			text("Your address: "),
			withID(element(atom.B, text(remoteAddr)), "remote-addr"),
		),
		element(atom.P,
			text("Your user agent: "),
			withID(element(atom.B, text(userAgent)), "user-agent"),
		),
	)
}

// NotImplemented is the body of a 501 response.
func NotImplemented() string {
	return document("501 Not Implemented",
		element(atom.H1, text("Not Implemented")),
		element(atom.P, text("This server does not handle that request method yet.")),
	)
}

// BadRequest is the body of a 400 response.
func BadRequest() string {
	return document("400 Bad Request",
		element(atom.H1, text("Bad Request")),
		element(atom.P, text("The server could not understand the request.")),
	)
}
