// Package transfer implements the two back-ends the coordinator drives
// one file at a time: a built-in streaming copier ("standard") and a
// driver that shells out to rsync. Both implement the same Backend
// interface so the coordinator can pick one per TransferRequest without
// knowing which it is talking to.
package transfer

import (
	"context"

	"github.com/nullable-eth/kosmokopy/internal/endpoint"
)

// Backend transfers one file from src to dstFinal, the fully resolved
// destination path the conflict resolver already computed. replace
// indicates the resolver authorized overwriting an existing file at
// dstFinal (ConflictMode Overwrite); the resolver's Absent/Rename
// outcomes are the only ones that reach a back-end with replace=false.
// Only the Standard back-end's local-to-local path acts on replace=false:
// it re-checks dstFinal just before the final rename and returns a
// conflict error if a file has appeared there. The scp, relay and rsync
// paths do not check and overwrite a file that appeared at dstFinal.
type Backend interface {
	TransferOne(ctx context.Context, src, dstFinal endpoint.Endpoint, replace bool) error
}
