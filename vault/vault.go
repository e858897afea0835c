// Package vault abstracts the note vault: a folder tree of markdown files,
// either a Git-hosted repository or a local checkout.
package vault

import "context"

// File is a vault file snapshot. SHA identifies the revision on backends
// with optimistic concurrency; local backends leave it empty.
type File struct {
	Content string
	SHA     string
}

// Vault reads and writes note files. Get returns (nil, nil) when the path
// does not exist. Put creates the file when sha is empty and updates it
// otherwise; message becomes the commit message on Git-backed vaults.
type Vault interface {
	Get(ctx context.Context, path string) (*File, error)
	Put(ctx context.Context, path, content, message, sha string) (string, error)
	Append(ctx context.Context, path, content, message string) (string, error)
	Exists(ctx context.Context, path string) (bool, error)
	List(ctx context.Context, folder string) ([]string, error)
}
