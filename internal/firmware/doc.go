// Package firmware loads firmware images from disk and watches them for
// rebuilds.
//
// Images are sent as raw bytes. Load reads the whole file into memory, rejects
// empty files and files the 32-bit size field cannot describe, and sniffs the
// content type so that a text export (Intel HEX, S-record) handed over by
// mistake is flagged before it reaches the controller.
package firmware
