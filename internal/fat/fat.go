// Package fat encodes and decodes the XML file allocation table that
// describes a packed archive's directories and files.
//
// The document has the form:
//
//	<FileSystem>
//	  <Header>GORFS1.0</Header>
//	  <Path Name="/" FullPath="/">
//	    <Path Name="a" FullPath="/a/">
//	      <File>
//	        <Filename>one</Filename>
//	        <Extension>.txt</Extension>
//	        <Offset>0</Offset>
//	        <Size>13</Size>
//	        <CompressedSize>0</CompressedSize>
//	        <FileDate>2026-01-02T03:04:05Z</FileDate>
//	        <Encrypted>false</Encrypted>
//	        <Comment></Comment>
//	        <Checksum>ec4ac3d0</Checksum>
//	      </File>
//	    </Path>
//	  </Path>
//	</FileSystem>
//
// Child directories are written before a directory's own files, matching
// the order in which payloads are laid out.
package fat

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/meigma/packfs"
)

// Header is the version tag every table must carry.
const Header = "GORFS1.0"

// ErrMalformed is returned for tables that cannot be parsed. It wraps
// packfs.ErrFormat.
var ErrMalformed = fmt.Errorf("fat: malformed table: %w", packfs.ErrFormat)

// dateLayouts are accepted when parsing FileDate, newest first.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"01/02/2006 15:04:05",
	"1/2/2006 3:04:05 PM",
}

type document struct {
	XMLName xml.Name    `xml:"FileSystem"`
	Header  string      `xml:"Header"`
	Paths   []*pathNode `xml:"Path"`
}

type pathNode struct {
	Name     string      `xml:"Name,attr"`
	FullPath string      `xml:"FullPath,attr"`
	Paths    []*pathNode `xml:"Path"`
	Files    []fileNode  `xml:"File"`
}

type fileNode struct {
	Filename       string `xml:"Filename"`
	Extension      string `xml:"Extension"`
	Offset         string `xml:"Offset"`
	Size           string `xml:"Size"`
	CompressedSize string `xml:"CompressedSize"`
	FileDate       string `xml:"FileDate"`
	Encrypted      string `xml:"Encrypted"`
	Comment        string `xml:"Comment"`
	Checksum       string `xml:"Checksum,omitempty"`
}

// Encode renders t as an XML table.
func Encode(t *packfs.Tree) ([]byte, error) {
	doc := document{Header: Header, Paths: []*pathNode{encodeDir(t.Root())}}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.EncodeToken(xml.Comment(" File allocation table for a packed file system. ")); err != nil {
		return nil, err
	}
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("fat: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeDir(d *packfs.Dir) *pathNode {
	node := &pathNode{Name: d.Name(), FullPath: d.FullPath()}
	for _, c := range d.Dirs() {
		node.Paths = append(node.Paths, encodeDir(c))
	}
	for _, f := range d.Files() {
		ext := path.Ext(f.Name)
		base := strings.TrimSuffix(f.Name, ext)
		if ext != "" && strings.EqualFold(path.Ext(base), ext) {
			// Keep "a.txt.txt" whole; decode would otherwise drop one extension.
			base = f.Name
		}
		fn := fileNode{
			Filename:       base,
			Extension:      ext,
			Offset:         strconv.FormatInt(f.Offset, 10),
			Size:           strconv.FormatInt(f.Size, 10),
			CompressedSize: strconv.FormatInt(f.CompressedSize, 10),
			Encrypted:      strconv.FormatBool(f.Encrypted),
			Comment:        f.Comment,
		}
		if !f.ModTime.IsZero() {
			fn.FileDate = f.ModTime.UTC().Format(time.RFC3339Nano)
		}
		if f.Checksum != 0 {
			fn.Checksum = fmt.Sprintf("%08x", f.Checksum)
		}
		node.Files = append(node.Files, fn)
	}
	return node
}

// Decode parses an XML table into a tree. The header is compared without
// regard to case. Duplicate file names within a directory are rejected.
func Decode(data []byte) (*packfs.Tree, error) {
	var doc document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	hdr := strings.TrimSpace(doc.Header)
	if !strings.EqualFold(hdr, Header) {
		return nil, &packfs.HeaderError{Expected: Header, Found: hdr}
	}

	t := packfs.NewTree()
	for _, p := range doc.Paths {
		if err := decodeDir(t, p); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func decodeDir(t *packfs.Tree, node *pathNode) error {
	d, err := t.CreatePath(node.FullPath)
	if err != nil {
		return fmt.Errorf("%w: path %q: %w", ErrMalformed, node.FullPath, err)
	}
	for _, c := range node.Paths {
		if err := decodeDir(t, c); err != nil {
			return err
		}
	}
	for i := range node.Files {
		f, err := decodeFile(&node.Files[i])
		if err != nil {
			return fmt.Errorf("%w: in %s: %w", ErrMalformed, d.FullPath(), err)
		}
		if err := d.AddFile(f); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformed, err)
		}
	}
	return nil
}

func decodeFile(n *fileNode) (*packfs.File, error) {
	name := strings.TrimSpace(n.Filename)
	ext := strings.TrimSpace(n.Extension)
	if name == "" && ext == "" {
		return nil, errors.New("invalid filename in index table")
	}
	if !strings.EqualFold(path.Ext(name), ext) {
		name += ext
	}

	f := &packfs.File{Name: name, Comment: n.Comment}
	var err error
	if f.Offset, err = parseInt(n.Offset, "Offset"); err != nil {
		return nil, err
	}
	if f.Size, err = parseInt(n.Size, "Size"); err != nil {
		return nil, err
	}
	if f.CompressedSize, err = parseInt(n.CompressedSize, "CompressedSize"); err != nil {
		return nil, err
	}
	if s := strings.TrimSpace(n.Encrypted); s != "" {
		if f.Encrypted, err = strconv.ParseBool(s); err != nil {
			return nil, fmt.Errorf("%s: invalid Encrypted %q", name, s)
		}
	}
	if s := strings.TrimSpace(n.Checksum); s != "" {
		v, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid Checksum %q", name, s)
		}
		f.Checksum = uint32(v)
	}
	f.ModTime = parseDate(n.FileDate)
	return f, nil
}

func parseInt(s, field string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", field, s)
	}
	return v, nil
}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
