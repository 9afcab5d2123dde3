// ABOUTME: Binary index file format with CRC-32 footer and atomic file replacement
// ABOUTME: Layout: magic, version, dim, count, entries, checksum (all little-endian)
package index

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
	"os"
	"path/filepath"

	"github.com/harper/docrag/internal/models"
)

const (
	fileMagic   = "DRIX"
	fileVersion = 1
	headerSize  = 4 + 2 + 4 + 4
	footerSize  = 4
)

var (
	errBadMagic    = errors.New("not an index file")
	errBadVersion  = errors.New("unsupported index file version")
	errBadChecksum = errors.New("index file checksum mismatch")
	errTruncated   = errors.New("index file truncated")
)

// encode serialises c. Per entry: key (u16 length), doc (u32 length),
// chunk index (u32), text (u32 length), dim float32 values.
func encode(c *contents) []byte {
	n := len(c.keys)
	buf := make([]byte, 0, headerSize+footerSize+n*(4*c.dim+64))

	buf = append(buf, fileMagic...)
	buf = binary.LittleEndian.AppendUint16(buf, fileVersion)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(c.dim))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(n))

	for i := 0; i < n; i++ {
		m := c.meta[i]
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(c.keys[i])))
		buf = append(buf, c.keys[i]...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(m.DocName)))
		buf = append(buf, m.DocName...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(m.ChunkIndex))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(m.Text)))
		buf = append(buf, m.Text...)
		for _, x := range c.vecs.row(i) {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(x))
		}
	}

	return binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf))
}

// decoder reads sequential little-endian fields, latching the first error
type decoder struct {
	data []byte
	off  int
	err  error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.off+n > len(d.data) {
		d.err = errTruncated
		return nil
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) u16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *decoder) u32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) str(n int) string {
	return string(d.take(n))
}

// decode parses data into contents built by fresh
func decode(data []byte, fresh func(dim, capacity int) *contents) (*contents, error) {
	if len(data) < headerSize+footerSize {
		return nil, errTruncated
	}
	body := data[:len(data)-footerSize]
	want := binary.LittleEndian.Uint32(data[len(data)-footerSize:])
	if crc32.ChecksumIEEE(body) != want {
		return nil, errBadChecksum
	}
	if !bytes.Equal(body[:4], []byte(fileMagic)) {
		return nil, errBadMagic
	}

	d := &decoder{data: body, off: 4}
	if v := d.u16(); v != fileVersion {
		return nil, fmt.Errorf("%w: %d", errBadVersion, v)
	}
	dim := int(d.u32())
	n := int(d.u32())
	// Each entry needs at least its fixed-width fields
	if n > (len(body)-headerSize)/(2+4+4+4+4*dim) {
		return nil, errTruncated
	}

	c := fresh(dim, n)
	if n == 0 {
		c.dim = 0
	}
	for i := 0; i < n; i++ {
		key := d.str(int(d.u16()))
		doc := d.str(int(d.u32()))
		chunk := int(d.u32())
		text := d.str(int(d.u32()))
		raw := d.take(4 * dim)
		if d.err != nil {
			return nil, d.err
		}

		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*j:]))
		}
		c.vecs.append(vec)
		c.keys = append(c.keys, key)
		c.meta = append(c.meta, models.ChunkMeta{DocName: doc, ChunkIndex: chunk, Text: text})
	}
	if d.off != len(body) {
		return nil, fmt.Errorf("%d trailing bytes in index file", len(body)-d.off)
	}
	return c, nil
}

func readIndexFile(path string, fresh func(dim, capacity int) *contents) (*contents, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decode(data, fresh)
}

// writeAtomic writes data to a temp file beside path, syncs it and renames it into place
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
