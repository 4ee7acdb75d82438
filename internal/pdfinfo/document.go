// Package pdfinfo reads the page structure of PDF documents: page count,
// page sizes and rotation. It does not decode page content.
package pdfinfo

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrNotPDF is returned for input without a PDF header.
var ErrNotPDF = errors.New("pdfinfo: not a PDF file")

type xrefEntry struct {
	offset     int64
	inUse      bool
	compressed bool
	container  int // object stream holding a compressed object
	index      int // position inside the object stream
}

// Document is a parsed PDF file.
type Document struct {
	data    []byte
	xref    map[int]xrefEntry
	trailer Dict
	cache   map[int]*Object
}

// Page describes one page in points.
type Page struct {
	Width    float64
	Height   float64
	Rotation int
}

// Open reads and parses the PDF at path.
func Open(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(data)
}

// Load parses a PDF from memory.
func Load(data []byte) (*Document, error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, ErrNotPDF
	}
	doc := &Document{
		data:  data,
		xref:  make(map[int]xrefEntry),
		cache: make(map[int]*Object),
	}
	start, err := doc.startXRef()
	if err != nil {
		return nil, err
	}
	if err := doc.readXRef(start, make(map[int64]bool)); err != nil {
		return nil, fmt.Errorf("pdfinfo: reading xref: %w", err)
	}
	return doc, nil
}

// Version returns the header version, e.g. "1.4".
func (doc *Document) Version() string {
	line := doc.data[len("%PDF-"):]
	if i := bytes.IndexAny(line, "\r\n"); i >= 0 {
		line = line[:i]
	}
	if len(line) > 8 {
		line = line[:8]
	}
	return strings.TrimSpace(string(line))
}

func (doc *Document) startXRef() (int64, error) {
	tail := doc.data
	if len(tail) > 2048 {
		tail = tail[len(tail)-2048:]
	}
	i := bytes.LastIndex(tail, []byte("startxref"))
	if i < 0 {
		return 0, errors.New("pdfinfo: startxref not found")
	}
	p := newParser(tail, i+len("startxref"))
	p.skip()
	off, err := strconv.ParseInt(p.token(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("pdfinfo: bad startxref: %w", err)
	}
	return off, nil
}

// readXRef loads the cross-reference section at off and every section it
// chains to through /Prev. Entries already seen take precedence, since the
// newest section is read first.
func (doc *Document) readXRef(off int64, seen map[int64]bool) error {
	if off < 0 || off >= int64(len(doc.data)) {
		return fmt.Errorf("offset %d out of range", off)
	}
	if seen[off] {
		return nil
	}
	seen[off] = true

	p := newParser(doc.data, int(off))
	p.skip()

	var trailer Dict
	var err error
	if p.keyword("xref") {
		trailer, err = doc.readXRefTable(p)
	} else {
		trailer, err = doc.readXRefStream(p)
	}
	if err != nil {
		return err
	}
	if doc.trailer == nil {
		doc.trailer = trailer
	}
	if stm, ok := trailer.Int("XRefStm"); ok {
		if err := doc.readXRef(stm, seen); err != nil {
			return err
		}
	}
	if prev, ok := trailer.Int("Prev"); ok {
		return doc.readXRef(prev, seen)
	}
	return nil
}

func (doc *Document) readXRefTable(p *parser) (Dict, error) {
	for {
		p.skip()
		if p.keyword("trailer") {
			break
		}
		first, err1 := strconv.Atoi(p.token())
		p.skip()
		count, err2 := strconv.Atoi(p.token())
		if err1 != nil || err2 != nil || count < 0 {
			return nil, errors.New("malformed xref subsection")
		}
		for i := 0; i < count; i++ {
			p.skip()
			offTok := p.token()
			p.skip()
			p.token() // generation
			p.skip()
			flag := p.token()
			off, err := strconv.ParseInt(offTok, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("malformed xref entry %d", first+i)
			}
			if _, ok := doc.xref[first+i]; !ok {
				doc.xref[first+i] = xrefEntry{offset: off, inUse: flag == "n"}
			}
		}
	}
	t, err := p.object()
	if err != nil {
		return nil, err
	}
	if t.Kind != Dictionary {
		return nil, errors.New("trailer is not a dictionary")
	}
	return t.Dict, nil
}

func (doc *Document) readXRefStream(p *parser) (Dict, error) {
	o, err := doc.indirectAt(p)
	if err != nil {
		return nil, err
	}
	if o.Kind != Stream {
		return nil, errors.New("xref offset does not point at a stream")
	}
	data, err := decode(o)
	if err != nil {
		return nil, fmt.Errorf("xref stream: %w", err)
	}

	w, _ := o.Dict.Array("W")
	if len(w) < 3 {
		return nil, errors.New("xref stream without /W")
	}
	var widths [3]int
	for i := range widths {
		widths[i] = int(w[i].Int)
	}
	size := widths[0] + widths[1] + widths[2]
	if size <= 0 {
		return nil, errors.New("xref stream with empty entries")
	}

	var sections [][2]int
	if idx, ok := o.Dict.Array("Index"); ok {
		for i := 0; i+1 < len(idx); i += 2 {
			sections = append(sections, [2]int{int(idx[i].Int), int(idx[i+1].Int)})
		}
	} else {
		n, _ := o.Dict.Int("Size")
		sections = [][2]int{{0, int(n)}}
	}

	pos := 0
	for _, s := range sections {
		for i := 0; i < s[1] && pos+size <= len(data); i++ {
			field := func(n int) int {
				v := 0
				for _, b := range data[pos : pos+n] {
					v = v<<8 | int(b)
				}
				pos += n
				return v
			}
			typ := 1
			if widths[0] > 0 {
				typ = field(widths[0])
			}
			f2, f3 := field(widths[1]), field(widths[2])

			num := s[0] + i
			if _, ok := doc.xref[num]; ok {
				continue
			}
			switch typ {
			case 0:
				doc.xref[num] = xrefEntry{}
			case 1:
				doc.xref[num] = xrefEntry{offset: int64(f2), inUse: true}
			case 2:
				doc.xref[num] = xrefEntry{inUse: true, compressed: true, container: f2, index: f3}
			}
		}
	}
	return o.Dict, nil
}

// indirectAt parses "N G obj <object>" at the parser position.
func (doc *Document) indirectAt(p *parser) (*Object, error) {
	p.skip()
	p.token()
	p.skip()
	p.token()
	p.skip()
	if !p.keyword("obj") {
		return nil, fmt.Errorf("no object at offset %d", p.pos)
	}
	return p.object()
}

// resolve follows o if it is a reference. Missing objects resolve to null.
func (doc *Document) resolve(o *Object) (*Object, error) {
	for depth := 0; o != nil && o.Kind == Ref; depth++ {
		if depth > 32 {
			return nil, errors.New("pdfinfo: reference chain too long")
		}
		var err error
		if o, err = doc.object(o.Ref.Number); err != nil {
			return nil, err
		}
	}
	if o == nil {
		return nullObject, nil
	}
	return o, nil
}

func (doc *Document) object(num int) (*Object, error) {
	if o, ok := doc.cache[num]; ok {
		return o, nil
	}
	e, ok := doc.xref[num]
	if !ok || !e.inUse {
		return nullObject, nil
	}
	// Guard against reference cycles while the object is being read.
	doc.cache[num] = nullObject

	var o *Object
	var err error
	if e.compressed {
		o, err = doc.compressedObject(e)
	} else if e.offset < 0 || e.offset >= int64(len(doc.data)) {
		err = fmt.Errorf("object %d: offset %d out of range", num, e.offset)
	} else {
		o, err = doc.indirectAt(newParser(doc.data, int(e.offset)))
	}
	if err != nil {
		delete(doc.cache, num)
		return nil, fmt.Errorf("pdfinfo: object %d: %w", num, err)
	}
	doc.cache[num] = o
	return o, nil
}

func (doc *Document) compressedObject(e xrefEntry) (*Object, error) {
	stm, err := doc.object(e.container)
	if err != nil {
		return nil, err
	}
	if stm.Kind != Stream {
		return nil, fmt.Errorf("object stream %d is not a stream", e.container)
	}
	data, err := decode(stm)
	if err != nil {
		return nil, err
	}
	n, _ := stm.Dict.Int("N")
	first, _ := stm.Dict.Int("First")
	if e.index < 0 || int64(e.index) >= n {
		return nil, fmt.Errorf("index %d outside object stream of %d", e.index, n)
	}

	p := newParser(data, 0)
	var off int
	for i := 0; i <= e.index; i++ {
		p.skip()
		p.token()
		p.skip()
		if off, err = strconv.Atoi(p.token()); err != nil {
			return nil, fmt.Errorf("malformed object stream header")
		}
	}
	pos := int(first) + off
	if pos < 0 || pos >= len(data) {
		return nil, fmt.Errorf("object offset %d out of range", pos)
	}
	return newParser(data, pos).object()
}

func (doc *Document) dictOf(o *Object) (Dict, error) {
	o, err := doc.resolve(o)
	if err != nil {
		return nil, err
	}
	if o.Kind != Dictionary && o.Kind != Stream {
		return nil, nil
	}
	return o.Dict, nil
}

// inherited are the page attributes a page may take from its ancestors.
type inherited struct {
	mediaBox *Object
	cropBox  *Object
	rotate   *Object
}

func (in inherited) from(d Dict) inherited {
	if o, ok := d["MediaBox"]; ok {
		in.mediaBox = o
	}
	if o, ok := d["CropBox"]; ok {
		in.cropBox = o
	}
	if o, ok := d["Rotate"]; ok {
		in.rotate = o
	}
	return in
}

// Pages returns every page in document order.
func (doc *Document) Pages() ([]Page, error) {
	root, err := doc.dictOf(doc.trailer["Root"])
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, errors.New("pdfinfo: missing document catalog")
	}
	tree, err := doc.dictOf(root["Pages"])
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, errors.New("pdfinfo: missing page tree")
	}

	var pages []Page
	visited := make(map[*Object]bool)
	if err := doc.walk(tree, inherited{}, visited, &pages, 0); err != nil {
		return nil, err
	}
	return pages, nil
}

// PageCount returns the number of pages.
func (doc *Document) PageCount() (int, error) {
	pages, err := doc.Pages()
	if err != nil {
		return 0, err
	}
	return len(pages), nil
}

func (doc *Document) walk(node Dict, in inherited, visited map[*Object]bool, pages *[]Page, depth int) error {
	if depth > maxDepth {
		return errTooDeep
	}
	in = in.from(node)

	if typ, _ := node.Name("Type"); typ == "Page" {
		pg, err := doc.page(in)
		if err != nil {
			return err
		}
		*pages = append(*pages, pg)
		return nil
	}

	kids, err := doc.resolve(node["Kids"])
	if err != nil {
		return err
	}
	if kids.Kind != Array {
		return nil
	}
	for _, k := range kids.Array {
		kid, err := doc.resolve(k)
		if err != nil {
			return err
		}
		if visited[kid] {
			continue
		}
		visited[kid] = true
		if kid.Kind != Dictionary {
			continue
		}
		if err := doc.walk(kid.Dict, in, visited, pages, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (doc *Document) page(in inherited) (Page, error) {
	var pg Page
	box := in.cropBox
	if box == nil {
		box = in.mediaBox
	}
	if box != nil {
		b, err := doc.resolve(box)
		if err != nil {
			return pg, err
		}
		if b.Kind == Array && len(b.Array) >= 4 {
			var v [4]float64
			for i := range v {
				r, err := doc.resolve(b.Array[i])
				if err != nil {
					return pg, err
				}
				v[i], _ = r.Number()
			}
			pg.Width = abs64(v[2] - v[0])
			pg.Height = abs64(v[3] - v[1])
		}
	}
	if in.rotate != nil {
		r, err := doc.resolve(in.rotate)
		if err != nil {
			return pg, err
		}
		if n, ok := r.Number(); ok {
			pg.Rotation = ((int(n) % 360) + 360) % 360
		}
	}
	return pg, nil
}

func abs64(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
