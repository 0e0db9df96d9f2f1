// Package packfs provides a virtual file system backed by a single packed
// archive.
//
// An archive holds a directory index (the file allocation table, or FAT)
// followed by a data region of concatenated payloads. Each file records the
// offset of its payload relative to the start of the data region, so an
// archive may live at any position inside a larger host stream.
//
// A FileSystem is bound to one archive through a Provider, which knows the
// archive's magic header, its compression codec, and how to read and write
// its index. Files are decoded lazily on first read. New and replaced files
// are staged in memory until Save or SaveStream writes a complete new
// archive to a temporary location and promotes it.
//
// The FS method exposes the mounted tree through fs.FS and related
// interfaces for compatibility with the standard library.
package packfs
