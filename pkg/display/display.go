// Package display renders fetched bodies for a terminal: markup is stripped
// and the &lt; and &gt; entities are decoded. Other entities are printed
// as written.
package display

import (
	"bufio"
	"io"
	"strings"
)

// Show writes body to w. With viewSource set the body is written
// unchanged; otherwise only the text outside tags is written.
func Show(w io.Writer, body string, viewSource bool) error {
	if viewSource {
		_, err := io.WriteString(w, body)
		return err
	}

	bw := bufio.NewWriter(w)
	render(bw, body)
	return bw.Flush()
}

// Text returns the rendered text of body.
func Text(body string) string {
	var b strings.Builder
	render(&b, body)
	return b.String()
}

type byteWriter interface {
	WriteByte(c byte) error
	WriteString(s string) (int, error)
}

var entities = map[string]string{
	"lt": "<",
	"gt": ">",
}

// render walks body once. Text inside a tag is suppressed, entities
// included. An entity is a name of letters, digits or '#' between '&' and
// ';'; an '&' not followed by such a run is ordinary text.
func render(w byteWriter, body string) {
	inTag := false
	emit := func(s string) {
		if !inTag {
			w.WriteString(s)
		}
	}

	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '&':
			end := entityEnd(body, i+1)
			if end < len(body) && body[end] == ';' && end > i+1 {
				name := body[i+1 : end]
				if decoded, ok := entities[name]; ok {
					emit(decoded)
				} else {
					emit(body[i : end+1])
				}
				i = end
				continue
			}
			emit("&")
		case c == '<':
			inTag = true
		case c == '>':
			inTag = false
		case !inTag:
			w.WriteByte(c)
		}
	}
}

func entityEnd(s string, start int) int {
	i := start
	for i < len(s) && isEntityByte(s[i]) {
		i++
	}
	return i
}

func isEntityByte(c byte) bool {
	return c == '#' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}
