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
	"encoding/binary"
	"fmt"
)

// BigBlockSize is the allocation granularity of the blockmap's second
// layer: every layer2 entry describes exactly one big-block of this size.
const BigBlockSize = 8 << 20 // 8MB

// Layer1Entries is the number of layer2 entries addressed by one layer1
// span: one big-block's worth of layer2 records.
const Layer1Entries = BigBlockSize / (layer2CRCSize + 4)

// Layer1Entry is one entry of the freemap's first layer: it points at the
// physical location of a page of Layer2Entry records and tracks how many
// of those big-blocks remain free, letting a scan for free space skip an
// entire layer1 span in one comparison.
type Layer1Entry struct {
	PhysOffset Offset // physical offset of this entry's layer2 page, or 0 if unprovisioned
	BlocksFree int32  // free big-blocks within this layer1 span
	_          int32  // padding
	CRC        uint32
}

const layer1CRCSize = 8 + 4 + 4 // PhysOffset + BlocksFree + padding

// MarshalBinary encodes e, computing and storing its CRC.
func (e *Layer1Entry) MarshalBinary() ([]byte, error) {
	buf := make([]byte, layer1CRCSize+4)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.PhysOffset))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(e.BlocksFree))
	e.CRC = CRC32(buf[:layer1CRCSize])
	binary.LittleEndian.PutUint32(buf[layer1CRCSize:layer1CRCSize+4], e.CRC)
	return buf, nil
}

// UnmarshalBinary decodes e from buf and verifies its CRC.
func (e *Layer1Entry) UnmarshalBinary(buf []byte) error {
	if len(buf) < layer1CRCSize+4 {
		return fmt.Errorf("layout: layer1 entry short read: %d bytes", len(buf))
	}
	wantCRC := binary.LittleEndian.Uint32(buf[layer1CRCSize : layer1CRCSize+4])
	if !VerifyCRC32(buf[:layer1CRCSize], wantCRC) {
		return fmt.Errorf("layout: layer1 entry CRC mismatch")
	}
	e.PhysOffset = Offset(binary.LittleEndian.Uint64(buf[0:8]))
	e.BlocksFree = int32(binary.LittleEndian.Uint32(buf[8:12]))
	e.CRC = wantCRC
	return nil
}

// Provisioned reports whether this layer1 span has a backing layer2 page.
func (e *Layer1Entry) Provisioned() bool { return !e.PhysOffset.IsZero() }

// Layer2Entry is one entry of the freemap's second layer, describing the
// allocation state of exactly one big-block. BytesFree is signed: dedup
// can push it negative when multiple logical references share physical
// bytes already accounted against the big-block's free count.
type Layer2Entry struct {
	Zone      Zone  // owning zone, or ZoneUnavail if the big-block is free
	_         uint8 // padding
	_         uint16
	AppendOff int32 // next append offset within the big-block
	BytesFree int32 // signed; can go negative due to dedup
	CRC       uint32
}

const layer2CRCSize = 4 + 4 + 4 // Zone+padding + AppendOff + BytesFree

// MarshalBinary encodes e, computing and storing its CRC.
func (e *Layer2Entry) MarshalBinary() ([]byte, error) {
	buf := make([]byte, layer2CRCSize+4)
	buf[0] = byte(e.Zone)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(e.AppendOff))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(e.BytesFree))
	e.CRC = CRC32(buf[:layer2CRCSize])
	binary.LittleEndian.PutUint32(buf[layer2CRCSize:layer2CRCSize+4], e.CRC)
	return buf, nil
}

// UnmarshalBinary decodes e from buf and verifies its CRC.
func (e *Layer2Entry) UnmarshalBinary(buf []byte) error {
	if len(buf) < layer2CRCSize+4 {
		return fmt.Errorf("layout: layer2 entry short read: %d bytes", len(buf))
	}
	wantCRC := binary.LittleEndian.Uint32(buf[layer2CRCSize : layer2CRCSize+4])
	if !VerifyCRC32(buf[:layer2CRCSize], wantCRC) {
		return fmt.Errorf("layout: layer2 entry CRC mismatch")
	}
	e.Zone = Zone(buf[0])
	e.AppendOff = int32(binary.LittleEndian.Uint32(buf[4:8]))
	e.BytesFree = int32(binary.LittleEndian.Uint32(buf[8:12]))
	e.CRC = wantCRC
	return nil
}

// Free reports whether the big-block described by e has never been
// claimed by a zone.
func (e *Layer2Entry) Free() bool { return e.Zone == ZoneUnavail }
