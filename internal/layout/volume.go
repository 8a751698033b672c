// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package layout

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// VolumeMagic identifies a volume header. Mount must reject any volume
// whose header does not start with this value.
const VolumeMagic uint64 = 0xc8414d4d45524644 // "HAMMERFD" framed as a magic

// FSVersion is the on-disk format revision. Version 4 and above enable REDO
// logging and optional (rather than mandatory) per-cycle volume header
// commits (spec §6).
const FSVersion uint32 = 6

// nZones is the count of addressable zones (1..8; zone 0 is unavailable).
const nZones = 9

// VolumeHeader is the fixed-offset header at the start of every volume. It
// is read at mount time from every member and written during a finalize
// cycle after the UNDO buffers and before the META buffers.
type VolumeHeader struct {
	Magic   uint64
	Version uint32
	VolNo   int32
	NVols   int32
	_       int32 // padding to 8-byte align FSID

	FSID     uuid.UUID
	RootBTree Offset

	// BlockmapRoots holds the root layer1 offset for each zone, indexed by
	// Zone. Only the root volume's header carries live freemap/undo roots;
	// member volumes keep zeroed entries except for their own raw-volume
	// zone accounting.
	BlockmapRoots [nZones]Offset

	Vol0NextTID           uint64
	Vol0StatInodes        int64
	Vol0StatFreeBigBlocks int64
	Vol0StatBigBlocks     int64

	CRC uint32
}

// headerCRCSize is the number of leading bytes covered by Header.CRC: the
// whole struct except the trailing CRC field itself.
const headerCRCSize = 8 + 4 + 4 + 4 + 4 + 16 + 8 + nZones*8 + 8 + 8 + 8 + 8

// MarshalBinary encodes h in on-disk byte order (little-endian, matching
// the volume's native architecture on every supported platform).
func (h *VolumeHeader) MarshalBinary() ([]byte, error) {
	buf := make([]byte, headerCRCSize+4)
	binary.LittleEndian.PutUint64(buf[0:8], h.Magic)
	binary.LittleEndian.PutUint32(buf[8:12], h.Version)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(h.VolNo))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(h.NVols))
	copy(buf[24:40], h.FSID[:])
	binary.LittleEndian.PutUint64(buf[40:48], uint64(h.RootBTree))
	off := 48
	for _, z := range h.BlockmapRoots {
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(z))
		off += 8
	}
	binary.LittleEndian.PutUint64(buf[off:off+8], h.Vol0NextTID)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(h.Vol0StatInodes))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(h.Vol0StatFreeBigBlocks))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(h.Vol0StatBigBlocks))
	off += 8

	h.CRC = CRC32(buf[:off])
	binary.LittleEndian.PutUint32(buf[off:off+4], h.CRC)
	return buf[:off+4], nil
}

// UnmarshalBinary decodes h from buf and verifies its embedded CRC.
func (h *VolumeHeader) UnmarshalBinary(buf []byte) error {
	if len(buf) < headerCRCSize+4 {
		return fmt.Errorf("layout: volume header short read: %d bytes", len(buf))
	}
	body, wantCRC := buf[:headerCRCSize], binary.LittleEndian.Uint32(buf[headerCRCSize:headerCRCSize+4])
	if !VerifyCRC32(body, wantCRC) {
		return fmt.Errorf("layout: volume header CRC mismatch")
	}

	h.Magic = binary.LittleEndian.Uint64(buf[0:8])
	if h.Magic != VolumeMagic {
		return fmt.Errorf("layout: bad volume magic %#x", h.Magic)
	}
	h.Version = binary.LittleEndian.Uint32(buf[8:12])
	h.VolNo = int32(binary.LittleEndian.Uint32(buf[12:16]))
	h.NVols = int32(binary.LittleEndian.Uint32(buf[16:20]))
	copy(h.FSID[:], buf[24:40])
	h.RootBTree = Offset(binary.LittleEndian.Uint64(buf[40:48]))
	off := 48
	for i := range h.BlockmapRoots {
		h.BlockmapRoots[i] = Offset(binary.LittleEndian.Uint64(buf[off : off+8]))
		off += 8
	}
	h.Vol0NextTID = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	h.Vol0StatInodes = int64(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8
	h.Vol0StatFreeBigBlocks = int64(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8
	h.Vol0StatBigBlocks = int64(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8
	h.CRC = wantCRC
	return nil
}

// Equal reports deep equality, used by tests that round-trip a header
// through Marshal/UnmarshalBinary.
func (h *VolumeHeader) Equal(o *VolumeHeader) bool {
	a, err1 := h.MarshalBinary()
	b, err2 := o.MarshalBinary()
	return err1 == nil && err2 == nil && bytes.Equal(a, b)
}
