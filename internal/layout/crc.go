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

import "hash/crc32"

// crcTable is the Castagnoli polynomial, matching the on-disk crc32()
// checksums embedded in the volume header, every layer1/layer2 blockmap
// entry, every B-Tree node, and every FIFO record header. Using the
// standard library's hash/crc32 rather than a third-party checksum package
// is deliberate: the on-disk format is bit-for-bit tied to a specific CRC
// algorithm, not to any particular Go API, and crc32.Castagnoli is exactly
// that algorithm.
var crcTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32 computes the on-disk checksum of b.
func CRC32(b []byte) uint32 {
	return crc32.Checksum(b, crcTable)
}

// VerifyCRC32 reports whether b's trailing/embedded checksum field (already
// extracted by the caller as want) matches its computed checksum.
func VerifyCRC32(b []byte, want uint32) bool {
	return CRC32(b) == want
}
