// Package pathfile stores stitched boundaries in a checksummed binary file
// so the server can start without re-fetching or re-stitching.
package pathfile

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	kbin "github.com/kelindar/binary"
	"github.com/paulmach/orb"

	"city_limits/pkg/export"
	"city_limits/pkg/stitch"
)

const (
	magicBytes    = "CITYLIMS"
	version       = uint32(1)
	maxBoundaries = 100_000
	maxPayload    = 1 << 30
)

// fileHeader is the binary header.
type fileHeader struct {
	Magic         [8]byte
	Version       uint32
	NumBoundaries uint32
	PayloadLen    uint32
}

type boundaryRecord struct {
	RelationID int64
	Name       string
	Color      string
	Paths      []pathRecord
}

// pathRecord is a path in columnar form.
type pathRecord struct {
	PointIDs    []int64
	Lons        []float64
	Lats        []float64
	FragmentIDs []int64
	Directions  []uint8
}

// WriteBoundaries serializes boundaries to path, replacing it atomically.
func WriteBoundaries(path string, boundaries []export.Boundary) error {
	records := make([]boundaryRecord, len(boundaries))
	for i, b := range boundaries {
		records[i] = toRecord(b)
	}
	payload, err := kbin.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode boundaries: %w", err)
	}
	if len(payload) > maxPayload {
		return fmt.Errorf("payload %d bytes exceeds limit %d", len(payload), maxPayload)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath) // clean up on error
	}()

	crcWriter := crc32Writer{w: f, hash: crc32.NewIEEE()}
	w := &crcWriter

	hdr := fileHeader{
		Version:       version,
		NumBoundaries: uint32(len(boundaries)),
		PayloadLen:    uint32(len(payload)),
	}
	copy(hdr.Magic[:], magicBytes)
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}

	// Write CRC32 trailer.
	checksum := crcWriter.hash.Sum32()
	if err := binary.Write(f, binary.LittleEndian, checksum); err != nil {
		return fmt.Errorf("write CRC32: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	// Atomic rename.
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// ReadBoundaries deserializes boundaries written by WriteBoundaries.
func ReadBoundaries(path string) ([]export.Boundary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	crcReader := crc32Reader{r: f, hash: crc32.NewIEEE()}
	r := &crcReader

	var hdr fileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(hdr.Magic[:]) != magicBytes {
		return nil, fmt.Errorf("invalid magic bytes: %q", hdr.Magic)
	}
	if hdr.Version != version {
		return nil, fmt.Errorf("unsupported version: %d", hdr.Version)
	}
	if hdr.NumBoundaries > maxBoundaries {
		return nil, fmt.Errorf("NumBoundaries %d exceeds limit %d", hdr.NumBoundaries, maxBoundaries)
	}
	if hdr.PayloadLen > maxPayload {
		return nil, fmt.Errorf("payload %d bytes exceeds limit %d", hdr.PayloadLen, maxPayload)
	}

	payload := make([]byte, hdr.PayloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	// Read and validate CRC32.
	expectedCRC := crcReader.hash.Sum32()
	var storedCRC uint32
	if err := binary.Read(f, binary.LittleEndian, &storedCRC); err != nil {
		return nil, fmt.Errorf("read CRC32: %w", err)
	}
	if storedCRC != expectedCRC {
		return nil, fmt.Errorf("CRC32 mismatch: stored=%08x computed=%08x", storedCRC, expectedCRC)
	}

	var records []boundaryRecord
	if err := kbin.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("decode boundaries: %w", err)
	}
	if uint32(len(records)) != hdr.NumBoundaries {
		return nil, fmt.Errorf("header says %d boundaries, payload has %d", hdr.NumBoundaries, len(records))
	}

	boundaries := make([]export.Boundary, len(records))
	for i, rec := range records {
		if boundaries[i], err = fromRecord(rec); err != nil {
			return nil, fmt.Errorf("boundary %d: %w", rec.RelationID, err)
		}
	}
	return boundaries, nil
}

func toRecord(b export.Boundary) boundaryRecord {
	rec := boundaryRecord{
		RelationID: b.RelationID,
		Name:       b.Name,
		Color:      b.Color,
		Paths:      make([]pathRecord, len(b.Paths)),
	}
	for i, p := range b.Paths {
		pr := pathRecord{
			PointIDs:    make([]int64, len(p.Points)),
			Lons:        make([]float64, len(p.Points)),
			Lats:        make([]float64, len(p.Points)),
			FragmentIDs: make([]int64, len(p.Traversals)),
			Directions:  make([]uint8, len(p.Traversals)),
		}
		for j, pt := range p.Points {
			pr.PointIDs[j] = int64(pt.ID)
			pr.Lons[j] = pt.Coord.Lon()
			pr.Lats[j] = pt.Coord.Lat()
		}
		for j, tr := range p.Traversals {
			pr.FragmentIDs[j] = int64(tr.FragmentID)
			pr.Directions[j] = uint8(tr.Direction)
		}
		rec.Paths[i] = pr
	}
	return rec
}

func fromRecord(rec boundaryRecord) (export.Boundary, error) {
	b := export.Boundary{
		RelationID: rec.RelationID,
		Name:       rec.Name,
		Color:      rec.Color,
		Paths:      make([]stitch.Path, len(rec.Paths)),
	}
	for i, pr := range rec.Paths {
		if len(pr.Lons) != len(pr.PointIDs) || len(pr.Lats) != len(pr.PointIDs) {
			return export.Boundary{}, fmt.Errorf("path %d: coordinate arrays do not match %d points", i, len(pr.PointIDs))
		}
		if len(pr.Directions) != len(pr.FragmentIDs) {
			return export.Boundary{}, fmt.Errorf("path %d: %d directions for %d fragments", i, len(pr.Directions), len(pr.FragmentIDs))
		}
		p := stitch.Path{
			Points:     make([]stitch.Point, len(pr.PointIDs)),
			Traversals: make([]stitch.Traversal, len(pr.FragmentIDs)),
		}
		for j, id := range pr.PointIDs {
			p.Points[j] = stitch.Point{ID: stitch.PointID(id), Coord: orb.Point{pr.Lons[j], pr.Lats[j]}}
		}
		for j, id := range pr.FragmentIDs {
			p.Traversals[j] = stitch.Traversal{FragmentID: stitch.FragmentID(id), Direction: stitch.Direction(pr.Directions[j])}
		}
		b.Paths[i] = p
	}
	return b, nil
}

// CRC32 wrapping writers/readers.

type crc32Writer struct {
	w    io.Writer
	hash crc32Hash
}

type crc32Hash interface {
	Write([]byte) (int, error)
	Sum32() uint32
}

func (cw *crc32Writer) Write(p []byte) (int, error) {
	cw.hash.Write(p)
	return cw.w.Write(p)
}

type crc32Reader struct {
	r    io.Reader
	hash crc32Hash
}

func (cr *crc32Reader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.hash.Write(p[:n])
	}
	return n, err
}
