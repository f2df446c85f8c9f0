package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	log "github.com/sirupsen/logrus"

	"labelapi/utils"
)

// Local keeps every location as a directory below root. Access URLs are signed with an
// HMAC key and served by the blob routes of the API.
type Local struct {
	root       string
	publicURL  string
	signingKey []byte
}

type blobClaims struct {
	Permissions []Permission `json:"perms"`
	jwt.StandardClaims
}

// NewLocal Create the root directory if needed and return the storage
func NewLocal(root string, publicURL string, signingKey []byte) (*Local, error) {
	if len(signingKey) == 0 {
		return nil, errors.New("a signing key is required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &Local{root: root, publicURL: strings.TrimRight(publicURL, "/"), signingKey: signingKey}, nil
}

// Root Directory all locations are stored in
func (s *Local) Root() string {
	return s.root
}

// CreateLocation Create a new dropbox location for uploads, returning its name
func (s *Local) CreateLocation(_ context.Context, name string) (string, error) {
	location := "dropbox-" + strings.ToLower(name)
	dir, err := s.safeJoin(location)
	if err != nil {
		return "", err
	}
	if err := os.Mkdir(dir, 0755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", ErrExists
		}
		log.Warn(fmt.Sprintf("Failed to create dropbox location %s", location))
		return "", fmt.Errorf("failed to create location: %w", err)
	}
	log.Info(fmt.Sprintf("Created dropbox location %s", location))
	return location, nil
}

// CopyContents Copy every file below sourceLocation/sourcePrefix to targetLocation/targetPrefix
func (s *Local) CopyContents(ctx context.Context, sourceLocation, sourcePrefix, targetLocation, targetPrefix string) ([]Item, error) {
	sourceDir, err := s.safeJoin(path.Join(sourceLocation, sourcePrefix))
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(sourceDir); err != nil {
		log.Warn(fmt.Sprintf("Failed to list files in %s/%s", sourceLocation, sourcePrefix))
		return nil, fmt.Errorf("failed to list %s: %w", sourceLocation, err)
	}
	targetDir, err := s.safeJoin(path.Join(targetLocation, targetPrefix))
	if err != nil {
		return nil, err
	}
	if targetDir == sourceDir {
		return nil, fmt.Errorf("failed to copy %s/%s: %w", sourceLocation, sourcePrefix, ErrSameFile)
	}

	var items []Item
	err = filepath.WalkDir(sourceDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(sourceDir, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		target, err := s.safeJoin(path.Join(targetLocation, targetPrefix, name))
		if err != nil {
			return err
		}
		size, err := copyFile(p, target)
		if err != nil {
			log.Warn(fmt.Sprintf("Failed to copy file %s", name))
			return err
		}
		items = append(items, Item{Name: name, Size: size})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to copy %s to %s: %w", sourceLocation, targetLocation, err)
	}
	return items, nil
}

// DeleteLocation Remove a location with everything in it
func (s *Local) DeleteLocation(_ context.Context, location string) error {
	if location == "" || strings.Contains(location, "/") {
		return ErrInvalidPath
	}
	dir, err := s.safeJoin(location)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		log.Warn(fmt.Sprintf("Failed to delete location %s", location))
		return fmt.Errorf("failed to delete location: %w", err)
	}
	log.Info(fmt.Sprintf("Deleted location %s", location))
	return nil
}

// DescribeItem Read file type and dimensions of the image stored at p
func (s *Local) DescribeItem(_ context.Context, p string) (Description, error) {
	f, err := s.Open(p)
	if err != nil {
		log.Warn(fmt.Sprintf("Failed to open file from storage: %s", p))
		return Description{}, err
	}
	defer f.Close()

	format, width, height, err := utils.DescribeImage(f)
	if err != nil {
		log.Warn(fmt.Sprintf("Not a valid image: %s", p))
		return Description{}, err
	}
	return Description{FileType: format, Width: width, Height: height}, nil
}

// Open Open the file stored at p for reading
func (s *Local) Open(p string) (*os.File, error) {
	file, err := s.safeJoin(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return nil, ErrNotFound
	}
	return f, nil
}

// Put Store the contents of r at p. The location must already exist.
func (s *Local) Put(p string, r io.Reader) (int64, error) {
	location, name := SplitPath(p)
	if location == "" || name == "" {
		return 0, ErrInvalidPath
	}
	dir, err := s.safeJoin(location)
	if err != nil {
		return 0, err
	}
	if _, err := os.Stat(dir); err != nil {
		return 0, ErrNotFound
	}
	file, err := s.safeJoin(p)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return 0, err
	}
	f, err := os.Create(file)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(file)
		return 0, fmt.Errorf("failed to write %s: %w", p, err)
	}
	return n, nil
}

// SignURL Create a URL giving the holder the permissions on p until expires. Signing a
// location grants the permissions on everything inside it.
func (s *Local) SignURL(p string, expires time.Time, permissions ...Permission) (string, error) {
	p = strings.TrimLeft(p, "/")
	claims := blobClaims{
		Permissions: permissions,
		StandardClaims: jwt.StandardClaims{
			Subject:   p,
			ExpiresAt: expires.Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign url: %w", err)
	}
	log.Info(fmt.Sprintf("Created access token for %s", p))
	return fmt.Sprintf("%s/blobs/%s?token=%s", s.publicURL, p, url.QueryEscape(token)), nil
}

// Verify Check that the token grants permission on p
func (s *Local) Verify(token string, p string, permission Permission) error {
	claims := &blobClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return ErrInvalidToken
	}

	p = strings.TrimLeft(path.Clean("/"+p), "/")
	if p != claims.Subject && !strings.HasPrefix(p, claims.Subject+"/") {
		return ErrInvalidToken
	}
	for _, granted := range claims.Permissions {
		if granted == permission {
			return nil
		}
	}
	return ErrInvalidToken
}

// safeJoin Resolve p below the root, refusing anything that escapes it
func (s *Local) safeJoin(p string) (string, error) {
	clean := path.Clean("/" + p)
	if clean == "/" {
		return "", ErrInvalidPath
	}
	full := filepath.Join(s.root, filepath.FromSlash(clean))
	root := filepath.Clean(s.root)
	if !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return full, nil
}

func copyFile(source, target string) (int64, error) {
	sourceInfo, err := os.Stat(source)
	if err != nil {
		return 0, err
	}
	if targetInfo, err := os.Stat(target); err == nil && os.SameFile(sourceInfo, targetInfo) {
		return 0, ErrSameFile
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, err
	}
	in, err := os.Open(source)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}
