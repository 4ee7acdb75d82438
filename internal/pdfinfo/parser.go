package pdfinfo

import (
	"bytes"
	"errors"
	"strconv"
)

const maxDepth = 100

var errTooDeep = errors.New("pdfinfo: objects nested too deeply")

// parser is a recursive-descent reader of PDF object syntax.
type parser struct {
	data  []byte
	pos   int
	depth int
}

func newParser(data []byte, pos int) *parser {
	return &parser{data: data, pos: pos}
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

func isDelim(b byte) bool {
	switch b {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// skip advances past whitespace and comments.
func (p *parser) skip() {
	for p.pos < len(p.data) {
		switch c := p.data[p.pos]; {
		case c == '%':
			for p.pos < len(p.data) && p.data[p.pos] != '\n' && p.data[p.pos] != '\r' {
				p.pos++
			}
		case isSpace(c):
			p.pos++
		default:
			return
		}
	}
}

// keyword consumes kw if it is next in the input.
func (p *parser) keyword(kw string) bool {
	if !bytes.HasPrefix(p.data[p.pos:], []byte(kw)) {
		return false
	}
	end := p.pos + len(kw)
	if end < len(p.data) && !isSpace(p.data[end]) && !isDelim(p.data[end]) {
		return false
	}
	p.pos = end
	return true
}

// token reads a run of regular characters.
func (p *parser) token() string {
	start := p.pos
	for p.pos < len(p.data) && !isSpace(p.data[p.pos]) && !isDelim(p.data[p.pos]) {
		p.pos++
	}
	return string(p.data[start:p.pos])
}

// object parses the next object. Unknown tokens parse as null.
func (p *parser) object() (*Object, error) {
	if p.depth >= maxDepth {
		return nil, errTooDeep
	}
	p.depth++
	defer func() { p.depth-- }()

	p.skip()
	if p.pos >= len(p.data) {
		return nullObject, nil
	}

	switch c := p.data[p.pos]; {
	case c == '/':
		p.pos++
		return &Object{Kind: Name, Name: unescapeName(p.token())}, nil
	case c == '(':
		return p.literal(), nil
	case c == '<' && p.pos+1 < len(p.data) && p.data[p.pos+1] == '<':
		return p.dict()
	case c == '<':
		return p.hex(), nil
	case c == '[':
		return p.array()
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return p.number(), nil
	case p.keyword("true"):
		return &Object{Kind: Bool, Bool: true}, nil
	case p.keyword("false"):
		return &Object{Kind: Bool}, nil
	case p.keyword("null"):
		return nullObject, nil
	}
	if p.token() == "" {
		p.pos++
	}
	return nullObject, nil
}

func (p *parser) literal() *Object {
	p.pos++
	var buf bytes.Buffer
	for depth := 1; p.pos < len(p.data); {
		c := p.data[p.pos]
		p.pos++
		switch c {
		case '\\':
			if p.pos < len(p.data) {
				buf.WriteByte(unescapeByte(p))
			}
			continue
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return &Object{Kind: String, Str: buf.Bytes()}
			}
		}
		buf.WriteByte(c)
	}
	return &Object{Kind: String, Str: buf.Bytes()}
}

// unescapeByte decodes the escape sequence following a backslash.
func unescapeByte(p *parser) byte {
	c := p.data[p.pos]
	p.pos++
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	}
	if c < '0' || c > '7' {
		return c
	}
	v := int(c - '0')
	for i := 0; i < 2 && p.pos < len(p.data); i++ {
		d := p.data[p.pos]
		if d < '0' || d > '7' {
			break
		}
		v = v*8 + int(d-'0')
		p.pos++
	}
	return byte(v)
}

func (p *parser) hex() *Object {
	p.pos++
	end := bytes.IndexByte(p.data[p.pos:], '>')
	if end < 0 {
		end = len(p.data) - p.pos
	}
	raw := p.data[p.pos : p.pos+end]
	p.pos += end + 1
	if p.pos > len(p.data) {
		p.pos = len(p.data)
	}

	var out []byte
	var hi byte
	half := false
	for _, c := range raw {
		v, ok := hexDigit(c)
		if !ok {
			continue
		}
		if half {
			out = append(out, hi<<4|v)
		} else {
			hi = v
		}
		half = !half
	}
	if half {
		out = append(out, hi<<4)
	}
	return &Object{Kind: String, Str: out}
}

func hexDigit(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	}
	return 0, false
}

// unescapeName decodes #XX sequences in a name.
func unescapeName(s string) string {
	if !bytes.ContainsRune([]byte(s), '#') {
		return s
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '#' && i+2 < len(s) {
			hi, ok1 := hexDigit(s[i+1])
			lo, ok2 := hexDigit(s[i+2])
			if ok1 && ok2 {
				out = append(out, hi<<4|lo)
				i += 2
				continue
			}
		}
		out = append(out, s[i])
	}
	return string(out)
}

func (p *parser) array() (*Object, error) {
	p.pos++
	var items []*Object
	for {
		p.skip()
		if p.pos >= len(p.data) {
			break
		}
		if p.data[p.pos] == ']' {
			p.pos++
			break
		}
		o, err := p.object()
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return &Object{Kind: Array, Array: items}, nil
}

// dict parses a dictionary and the stream that may follow it.
func (p *parser) dict() (*Object, error) {
	p.pos += 2
	d := make(Dict)
	for {
		p.skip()
		if p.pos >= len(p.data) {
			break
		}
		if bytes.HasPrefix(p.data[p.pos:], []byte(">>")) {
			p.pos += 2
			break
		}
		if p.data[p.pos] != '/' {
			p.pos++
			continue
		}
		p.pos++
		key := unescapeName(p.token())
		val, err := p.object()
		if err != nil {
			return nil, err
		}
		d[key] = val
	}

	p.skip()
	if !p.keyword("stream") {
		return &Object{Kind: Dictionary, Dict: d}, nil
	}
	if p.pos < len(p.data) && p.data[p.pos] == '\r' {
		p.pos++
	}
	if p.pos < len(p.data) && p.data[p.pos] == '\n' {
		p.pos++
	}

	start := p.pos
	n, ok := d.Int("Length")
	if l := d["Length"]; !ok || l.Kind != Int || n < 0 || start+int(n) > len(p.data) {
		// Indirect or broken length: scan for the end marker.
		end := bytes.Index(p.data[start:], []byte("endstream"))
		if end < 0 {
			end = len(p.data) - start
		}
		n = int64(end)
	}
	data := p.data[start : start+int(n)]
	p.pos = start + int(n)
	p.skip()
	p.keyword("endstream")
	return &Object{Kind: Stream, Dict: d, Data: data}, nil
}

// number parses an integer, a real, or an "N G R" reference.
func (p *parser) number() *Object {
	tok := p.token()
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nullObject
		}
		return &Object{Kind: Real, Real: f}
	}

	save := p.pos
	p.skip()
	if gen, err := strconv.Atoi(p.token()); err == nil && gen >= 0 {
		p.skip()
		if p.pos < len(p.data) && p.data[p.pos] == 'R' &&
			(p.pos+1 == len(p.data) || isSpace(p.data[p.pos+1]) || isDelim(p.data[p.pos+1])) {
			p.pos++
			return &Object{Kind: Ref, Ref: Reference{Number: int(n), Gen: gen}}
		}
	}
	p.pos = save
	return &Object{Kind: Int, Int: n}
}
