// Package checksum computes content digests used to skip rewriting
// unchanged artifacts.
package checksum

import (
	"crypto/md5" //nolint:gosec // matches the S3 ETag of single-part uploads
	"encoding/hex"
	"strings"
)

// ETag returns the hex-encoded MD5 digest of data, the form S3 reports as
// the ETag of a single-part object.
func ETag(data []byte) string {
	h := md5.Sum(data) //nolint:gosec
	return hex.EncodeToString(h[:])
}

// MatchesETag reports whether etag, quoted or not, is the digest of data.
func MatchesETag(etag string, data []byte) bool {
	return strings.Trim(etag, `"`) == ETag(data)
}
