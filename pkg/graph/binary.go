package graph

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"unsafe"

	"github.com/klauspost/compress/zstd"
)

const (
	magicBytes = "PFGRAPH1"
	version    = uint32(1) // encoding version, not a freshness marker
	maxNodes   = 50_000_000
	maxEdges   = 200_000_000
)

// ErrInvalidSnapshot is returned for snapshot files that are truncated,
// corrupt or not snapshots at all.
var ErrInvalidSnapshot = errors.New("invalid graph snapshot")

// ErrTooLarge is returned when a graph exceeds the snapshot size limits.
var ErrTooLarge = errors.New("graph too large for snapshot")

// fileHeader is the binary header.
type fileHeader struct {
	Magic    [8]byte
	Version  uint32
	NumNodes uint32 // also the next node id
	NumEdges uint32
}

// WriteSnapshot serializes g to path. The file is written to a temp file and
// renamed into place, so readers never observe a partial snapshot.
func WriteSnapshot(path string, g *Graph) error {
	// A snapshot the reader would reject is never written.
	if err := checkLimits(g.numNodes, g.numEdges); err != nil {
		return err
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

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}

	crcWriter := crc32Writer{w: enc, hash: crc32.NewIEEE()}
	w := &crcWriter

	hdr := fileHeader{
		Version:  version,
		NumNodes: g.numNodes,
		NumEdges: g.numEdges,
	}
	copy(hdr.Magic[:], magicBytes)
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	// Coordinate index (node id -> coordinate).
	if err := writeFloat64Slice(w, g.nodeLat); err != nil {
		return fmt.Errorf("write NodeLat: %w", err)
	}
	if err := writeFloat64Slice(w, g.nodeLon); err != nil {
		return fmt.Errorf("write NodeLon: %w", err)
	}

	// Adjacency.
	if err := writeUint32Slice(w, g.firstOut); err != nil {
		return fmt.Errorf("write FirstOut: %w", err)
	}
	if err := writeUint32Slice(w, g.head); err != nil {
		return fmt.Errorf("write Head: %w", err)
	}
	if err := writeFloat64Slice(w, g.weight); err != nil {
		return fmt.Errorf("write Weight: %w", err)
	}

	// CRC32 trailer, inside the compressed stream but outside the checksum.
	checksum := crcWriter.hash.Sum32()
	if err := binary.Write(enc, binary.LittleEndian, checksum); err != nil {
		return fmt.Errorf("write CRC32: %w", err)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush zstd writer: %w", err)
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

// ReadSnapshot deserializes a graph written by WriteSnapshot and rebuilds its
// coordinate index. Decoding failures wrap ErrInvalidSnapshot; a missing file
// yields an error satisfying errors.Is(err, fs.ErrNotExist).
func ReadSnapshot(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	g, err := decodeSnapshot(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	return g, nil
}

func decodeSnapshot(src io.Reader) (*Graph, error) {
	dec, err := zstd.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()

	crcReader := crc32Reader{r: dec, hash: crc32.NewIEEE()}
	r := &crcReader

	// Read and validate header.
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
	if err := checkLimits(hdr.NumNodes, hdr.NumEdges); err != nil {
		return nil, err
	}

	g := &Graph{numNodes: hdr.NumNodes, numEdges: hdr.NumEdges}

	if g.nodeLat, err = readFloat64Slice(r, int(hdr.NumNodes)); err != nil {
		return nil, fmt.Errorf("read NodeLat: %w", err)
	}
	if g.nodeLon, err = readFloat64Slice(r, int(hdr.NumNodes)); err != nil {
		return nil, fmt.Errorf("read NodeLon: %w", err)
	}
	if g.firstOut, err = readUint32Slice(r, int(hdr.NumNodes+1)); err != nil {
		return nil, fmt.Errorf("read FirstOut: %w", err)
	}
	if g.head, err = readUint32Slice(r, int(hdr.NumEdges)); err != nil {
		return nil, fmt.Errorf("read Head: %w", err)
	}
	if g.weight, err = readFloat64Slice(r, int(hdr.NumEdges)); err != nil {
		return nil, fmt.Errorf("read Weight: %w", err)
	}

	// Read and validate CRC32.
	expectedCRC := crcReader.hash.Sum32()
	var storedCRC uint32
	if err := binary.Read(dec, binary.LittleEndian, &storedCRC); err != nil {
		return nil, fmt.Errorf("read CRC32: %w", err)
	}
	if storedCRC != expectedCRC {
		return nil, fmt.Errorf("CRC32 mismatch: stored=%08x computed=%08x", storedCRC, expectedCRC)
	}

	if err := validateCSR(g.firstOut, g.head, g.numNodes); err != nil {
		return nil, fmt.Errorf("CSR invalid: %w", err)
	}
	for i, w := range g.weight {
		if math.IsNaN(w) || w < 0 {
			return nil, fmt.Errorf("Weight[%d]=%f is not a valid cost", i, w)
		}
	}

	// Rebuild coordinate -> id. Duplicates would break the bijection.
	g.index = make(map[Coord]uint32, g.numNodes)
	for i := uint32(0); i < g.numNodes; i++ {
		c := Coord{Lat: g.nodeLat[i], Lon: g.nodeLon[i]}
		if prev, dup := g.index[c]; dup {
			return nil, fmt.Errorf("nodes %d and %d share coordinate (%f, %f)", prev, i, c.Lat, c.Lon)
		}
		g.index[c] = i
	}

	return g, nil
}

// checkLimits bounds the sizes a snapshot may declare.
func checkLimits(numNodes, numEdges uint32) error {
	if numNodes > maxNodes {
		return fmt.Errorf("%w: NumNodes %d exceeds limit %d", ErrTooLarge, numNodes, maxNodes)
	}
	if numEdges > maxEdges {
		return fmt.Errorf("%w: NumEdges %d exceeds limit %d", ErrTooLarge, numEdges, maxEdges)
	}
	return nil
}

// validateCSR checks CSR invariants.
func validateCSR(firstOut, head []uint32, numNodes uint32) error {
	if uint32(len(firstOut)) != numNodes+1 {
		return fmt.Errorf("FirstOut length %d != NumNodes+1 %d", len(firstOut), numNodes+1)
	}
	if firstOut[0] != 0 {
		return fmt.Errorf("FirstOut[0]=%d, want 0", firstOut[0])
	}
	numEdges := firstOut[numNodes]
	if uint32(len(head)) != numEdges {
		return fmt.Errorf("Head length %d != FirstOut[NumNodes] %d", len(head), numEdges)
	}
	for i := uint32(1); i <= numNodes; i++ {
		if firstOut[i] < firstOut[i-1] {
			return fmt.Errorf("FirstOut not monotonic at %d: %d < %d", i, firstOut[i], firstOut[i-1])
		}
	}
	for i, h := range head {
		if h >= numNodes {
			return fmt.Errorf("Head[%d]=%d >= NumNodes=%d", i, h, numNodes)
		}
	}
	return nil
}

// Zero-copy I/O helpers using unsafe.Slice.

func writeUint32Slice(w io.Writer, s []uint32) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
	_, err := w.Write(b)
	return err
}

func writeFloat64Slice(w io.Writer, s []float64) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8)
	_, err := w.Write(b)
	return err
}

func readUint32Slice(r io.Reader, n int) ([]uint32, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]uint32, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*4)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

func readFloat64Slice(r io.Reader, n int) ([]float64, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]float64, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*8)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
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
