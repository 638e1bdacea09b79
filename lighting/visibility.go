package lighting

import (
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
)

// TileRecordSize is the size in bytes of one tile in the visibility buffer.
const TileRecordSize = 4 * (1 + MaxPointLightPerTile)

// TileRecord is the list of lights touching one tile.
type TileRecord struct {
	Count   uint32
	Indices [MaxPointLightPerTile]uint32
}

var (
	_ [TileRecordSize - unsafe.Sizeof(TileRecord{})]struct{}
	_ [unsafe.Sizeof(TileRecord{}) - TileRecordSize]struct{}
)

// Lights returns the light indices stored in the record.
func (r *TileRecord) Lights() []uint32 {
	return r.Indices[:min(r.Count, MaxPointLightPerTile)]
}

// add appends a light index. It reports false when the record is full.
func (r *TileRecord) add(index uint32) bool {
	if r.Count >= MaxPointLightPerTile {
		return false
	}
	r.Indices[r.Count] = index
	r.Count++
	return true
}

// DecodeVisibility reads the per tile light lists back from the contents of
// the light visibility buffer.
func DecodeVisibility(buf []byte, tilesX, tilesY uint32) ([]TileRecord, error) {
	n := int(tilesX) * int(tilesY)
	if len(buf) < n*TileRecordSize {
		return nil, errors.Newf(
			"visibility buffer holds %d bytes, %dx%d tiles need %d",
			len(buf), tilesX, tilesY, n*TileRecordSize,
		)
	}

	records := make([]TileRecord, n)
	for i := range records {
		rec := buf[i*TileRecordSize:]
		records[i].Count = binary.LittleEndian.Uint32(rec)
		for j := range records[i].Indices {
			records[i].Indices[j] = binary.LittleEndian.Uint32(rec[4+4*j:])
		}
	}

	return records, nil
}
