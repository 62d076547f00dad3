// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package common

// Logo is the fallback boot splash, a single black pixel 24bpp BMP.
// Firmware scales it, so a real logo only matters cosmetically.
var Logo = []byte{
	// BITMAPFILEHEADER
	'B', 'M',
	0x3a, 0x00, 0x00, 0x00, // file size: 58 bytes
	0x00, 0x00, 0x00, 0x00, // reserved
	0x36, 0x00, 0x00, 0x00, // pixel data offset: 54
	// BITMAPINFOHEADER
	0x28, 0x00, 0x00, 0x00, // header size: 40
	0x01, 0x00, 0x00, 0x00, // width: 1
	0x01, 0x00, 0x00, 0x00, // height: 1
	0x01, 0x00, // planes: 1
	0x18, 0x00, // bits per pixel: 24
	0x00, 0x00, 0x00, 0x00, // compression: none
	0x04, 0x00, 0x00, 0x00, // image size: 4 (incl. row padding)
	0x13, 0x0b, 0x00, 0x00, // 72 DPI
	0x13, 0x0b, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, // palette colors
	0x00, 0x00, 0x00, 0x00, // important colors
	// pixel row, padded to 4 bytes
	0x00, 0x00, 0x00, 0x00,
}
