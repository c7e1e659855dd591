// Package storage persists original images and generated dossier documents
// behind a small backend interface. The s3 backend is the production path:
// it can mint presigned GET URLs that external reverse-image engines fetch
// originals through. The local backend keeps everything on the daemon host
// for development and tests; it has no public URLs, so external lookups are
// skipped while internal corpus matching keeps working.
package storage
