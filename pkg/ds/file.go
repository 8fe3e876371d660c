package ds

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	fileMagic     = "ARRAYVIS"
	fileFormat    = "arrayvis-v1"
	fileExtension = ".kf"
	fileAlign     = 8
)

// ReadOptions controls how an arrayfile is loaded.
type ReadOptions struct {
	// Mmap maps the file instead of reading it. Arrays alias the mapping
	// privately, so writes through views never reach the file.
	Mmap bool

	// Cache keeps the structure in a process wide cache keyed by file
	// name; later reads of the same name return the cached structure.
	Cache bool
}

type fileHeader struct {
	Format     string          `yaml:"format"`
	Structures []fileStructure `yaml:"structures"`
}

type fileStructure struct {
	Name     string        `yaml:"name"`
	Elements []fileElement `yaml:"elements"`
}

type fileElement struct {
	Name  string     `yaml:"name"`
	Type  string     `yaml:"type"`
	Real  float64    `yaml:"real,omitempty"`
	Imag  float64    `yaml:"imag,omitempty"`
	Text  string     `yaml:"text,omitempty"`
	Array *fileArray `yaml:"array,omitempty"`
}

type fileField struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type fileArray struct {
	Dims   []Dimension `yaml:"dims"`
	Packet []fileField `yaml:"packet"`
	Offset int64       `yaml:"offset"`
	Length int64       `yaml:"length"`
}

var (
	cacheMu sync.Mutex
	cache   = map[string]*Multi{}
)

// FileName appends the default extension when name has none
func FileName(name string) string {
	if filepath.Ext(name) == "" {
		return name + fileExtension
	}
	return name
}

func align(n int64) int64 {
	return (n + fileAlign - 1) / fileAlign * fileAlign
}

// WriteMulti writes every structure of m to the named arrayfile
func WriteMulti(name string, m *Multi) error {
	header := fileHeader{Format: fileFormat}
	var blobs [][]byte
	var offset int64
	for s, desc := range m.Headers {
		fs := fileStructure{Name: m.Names[s]}
		for i, e := range desc.Elements {
			fe := fileElement{Name: e.Name, Type: e.Type.String()}
			switch v := m.Data[s].Values[i].(type) {
			case float64:
				fe.Real = v
			case complex128:
				fe.Real, fe.Imag = real(v), imag(v)
			case string:
				fe.Text = v
			case *Array:
				if e.Array == nil {
					return fmt.Errorf("element %q: %w", e.Name, ErrNoHole)
				}
				fa := &fileArray{Dims: e.Array.Dims, Offset: offset, Length: int64(len(v.Data))}
				for _, f := range e.Array.Packet.Elements {
					fa.Packet = append(fa.Packet, fileField{Name: f.Name, Type: f.Type.String()})
				}
				fe.Array = fa
				blobs = append(blobs, v.Data)
				offset = align(offset + int64(len(v.Data)))
			}
			fs.Elements = append(fs.Elements, fe)
		}
		header.Structures = append(header.Structures, fs)
	}

	encoded, err := yaml.Marshal(&header)
	if err != nil {
		return fmt.Errorf("error encoding arrayfile header: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(fileMagic)
	var size [8]byte
	order.PutUint64(size[:], uint64(len(encoded)))
	buf.Write(size[:])
	buf.Write(encoded)
	buf.Write(make([]byte, align(int64(buf.Len()))-int64(buf.Len())))
	for _, blob := range blobs {
		buf.Write(blob)
		buf.Write(make([]byte, align(int64(len(blob)))-int64(len(blob))))
	}

	if err := os.WriteFile(FileName(name), buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("error writing arrayfile: %w", err)
	}
	return nil
}

// ReadMulti loads the named arrayfile. The returned structure has no
// attachments; views attach to it as they are created.
func ReadMulti(name string, opts ReadOptions) (*Multi, error) {
	path := FileName(name)
	if opts.Cache {
		cacheMu.Lock()
		defer cacheMu.Unlock()
		if m, ok := cache[path]; ok && !m.Released() {
			return m, nil
		}
	}

	var (
		contents []byte
		release  func() error
		err      error
	)
	if opts.Mmap {
		contents, release, err = mapFile(path)
	} else {
		contents, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading arrayfile: %w", err)
	}

	m, err := decodeMulti(contents)
	if err != nil {
		if release != nil {
			release()
		}
		return nil, fmt.Errorf("error parsing arrayfile %s: %w", path, err)
	}
	m.release = release
	if opts.Cache {
		// the cache holds its own attachment until purged
		m.Attach()
		cache[path] = m
	}
	return m, nil
}

// PurgeCache drops every cached structure, detaching the cache's reference
func PurgeCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	for path, m := range cache {
		m.Detach()
		delete(cache, path)
	}
}

func decodeMulti(contents []byte) (*Multi, error) {
	if len(contents) < len(fileMagic)+8 || string(contents[:len(fileMagic)]) != fileMagic {
		return nil, fmt.Errorf("bad magic")
	}
	headerLen := int64(order.Uint64(contents[len(fileMagic):]))
	start := int64(len(fileMagic) + 8)
	if headerLen < 0 || start+headerLen > int64(len(contents)) {
		return nil, io.ErrUnexpectedEOF
	}
	var header fileHeader
	if err := yaml.Unmarshal(contents[start:start+headerLen], &header); err != nil {
		return nil, err
	}
	if header.Format != fileFormat {
		return nil, fmt.Errorf("unsupported format %q", header.Format)
	}
	dataStart := align(start + headerLen)

	m := &Multi{}
	for _, fs := range header.Structures {
		desc := &PacketDesc{}
		packet := &Packet{}
		for _, fe := range fs.Elements {
			t, err := ParseElementType(fe.Type)
			if err != nil {
				return nil, err
			}
			e := Element{Name: fe.Name, Type: t}
			var value any
			switch {
			case t == ArrayType:
				if fe.Array == nil {
					return nil, fmt.Errorf("array element %q has no layout", fe.Name)
				}
				ad, arr, err := decodeArray(fe.Array, contents, dataStart)
				if err != nil {
					return nil, fmt.Errorf("element %q: %w", fe.Name, err)
				}
				e.Array = ad
				value = arr
			case t == String:
				value = fe.Text
			case t.IsComplex():
				value = complex(fe.Real, fe.Imag)
			case t.IsAtomic():
				value = fe.Real
			default:
				return nil, fmt.Errorf("element %q has type %s", fe.Name, t)
			}
			desc.Elements = append(desc.Elements, e)
			packet.Values = append(packet.Values, value)
		}
		m.Names = append(m.Names, fs.Name)
		m.Headers = append(m.Headers, desc)
		m.Data = append(m.Data, packet)
	}
	return m, nil
}

func decodeArray(fa *fileArray, contents []byte, dataStart int64) (*ArrayDesc, *Array, error) {
	packet := &PacketDesc{}
	for _, f := range fa.Packet {
		t, err := ParseElementType(f.Type)
		if err != nil {
			return nil, nil, err
		}
		if !t.IsAtomic() {
			return nil, nil, fmt.Errorf("packet field %q has type %s", f.Name, t)
		}
		packet.Elements = append(packet.Elements, Element{Name: f.Name, Type: t})
	}
	if len(fa.Dims) == 0 {
		return nil, nil, fmt.Errorf("array has no dimensions")
	}
	for _, d := range fa.Dims {
		if d.Length < 1 {
			return nil, nil, fmt.Errorf("dimension %q has length %d", d.Name, d.Length)
		}
	}
	desc := &ArrayDesc{Dims: fa.Dims, Packet: packet}
	size, err := desc.Bytes()
	if err != nil {
		return nil, nil, err
	}
	if int64(size) != fa.Length {
		return nil, nil, fmt.Errorf("array data is %d bytes, layout needs %d", fa.Length, size)
	}
	lo := dataStart + fa.Offset
	hi := lo + fa.Length
	if lo < dataStart || hi > int64(len(contents)) {
		return nil, nil, io.ErrUnexpectedEOF
	}
	return desc, &Array{Data: contents[lo:hi:hi]}, nil
}
