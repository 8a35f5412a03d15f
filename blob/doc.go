// Package blob stores opaque binary objects, such as captured query images,
// under forward-slash separated keys.
//
// Two backends are provided: Local, rooted at a directory on disk, and MinIO,
// backed by any S3-compatible object store. Both are safe for concurrent use.
package blob
