// Package storage holds the blob storage used for image uploads and permanent image files.
//
// Locations are top level containers. Paths are "<location>/<name>", where name may contain
// further slashes.
package storage

import (
	"errors"
	"strings"
)

// Item is one file copied between locations. Name is relative to the copied prefix.
type Item struct {
	Name string
	Size int64
}

// Description holds what could be read from an image file.
type Description struct {
	FileType string
	Width    int
	Height   int
}

type Permission string

const (
	PermissionRead   Permission = "read"
	PermissionWrite  Permission = "write"
	PermissionList   Permission = "list"
	PermissionDelete Permission = "delete"
)

var (
	ErrNotFound     = errors.New("not found in storage")
	ErrExists       = errors.New("location already exists")
	ErrInvalidPath  = errors.New("invalid storage path")
	ErrInvalidToken = errors.New("invalid access token")
	ErrSameFile     = errors.New("source and target are the same file")
)

// SplitPath Split a path into its location and the name inside that location
func SplitPath(p string) (string, string) {
	p = strings.TrimLeft(p, "/")
	location, name, _ := strings.Cut(p, "/")
	return location, name
}

// CheckName Check if a name can be used for a location. Names must be lowercase ascii, digits or
// dashes, may not start or end with a dash or contain consecutive dashes. Prefixes are added
// to location names, so the length is limited to 53.
func CheckName(name string) bool {
	if name == "" || len(name) > 53 {
		return false
	}
	for _, c := range name {
		if !(c >= 'a' && c <= 'z') && !(c >= '0' && c <= '9') && c != '-' {
			return false
		}
	}
	if name[0] == '-' || name[len(name)-1] == '-' {
		return false
	}
	return !strings.Contains(name, "--")
}
