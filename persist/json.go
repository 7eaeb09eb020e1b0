package persist

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
)

// Metadata identifies the format and version of a persisted file, a
// header/version pair stamped at the head of every persist object
// written through this package.
type Metadata struct {
	Header  string
	Version string
}

// SaveJSON writes data as a metadata-tagged JSON document to filename,
// through a temp file in the same directory followed by a rename, so a
// crash mid-write never leaves a half-written file at the destination
// path.
func SaveJSON(meta Metadata, data interface{}, filename string) error {
	type envelope struct {
		Metadata
		Data interface{}
	}
	b, err := json.MarshalIndent(envelope{meta, data}, "", "\t")
	if err != nil {
		return err
	}
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, b, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, filename)
}

// LoadJSON reads back a file written with SaveJSON and verifies its
// metadata matches meta before decoding data into v.
func LoadJSON(meta Metadata, v interface{}, filename string) error {
	b, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	type envelope struct {
		Metadata
		Data json.RawMessage
	}
	var e envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return err
	}
	if e.Header != meta.Header {
		return ErrBadHeader
	}
	if e.Version != meta.Version {
		return ErrBadVersion
	}
	return json.Unmarshal(e.Data, v)
}

// RandomSuffix returns a short random hex string, used to avoid
// seed-backup filename collisions when the same account is backed up
// more than once.
func RandomSuffix() string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// MkdirAll creates dir (and parents) with the conventional persist-dir
// permission bits.
func MkdirAll(dir string) error {
	return os.MkdirAll(dir, 0700)
}

var (
	ErrBadHeader  = jsonErr("wrong header for this type of file")
	ErrBadVersion = jsonErr("incompatible version for this type of file")
)

type jsonErr string

func (e jsonErr) Error() string { return string(e) }
