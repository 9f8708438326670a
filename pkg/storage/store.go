/*
Package storage provides BoltDB-backed persistence for the node tree
and the UWS job table.

Every operation runs inside a single BoltDB transaction. BoltDB
serializes writers, so concurrent mutations observe each other's
effects atomically: an update, move, copy or delete is visible entirely
or not at all, and directory listings are consistent snapshots of the
enclosing read transaction.

Node paths are bucket keys, so lexicographic cursor order is ascending
path order and subtrees are contiguous key ranges.
*/
package storage

import (
	"github.com/icrar/govospace/pkg/types"
)

// CopyPair records one node duplicated by a Copy, for post-commit
// byte-level duplication by the storage backend.
type CopyPair struct {
	SrcPath  string
	DestPath string
	Type     types.NodeType
}

// Store is the transactional metadata store contract.
type Store interface {
	// Node tree
	CreateNode(node *types.Node, identity string) (*types.Node, error)
	GetNode(path string) (*types.Node, error)
	Directory(path, identity string) (*types.Node, error)
	UpdateProperties(node *types.Node, identity string) (*types.Node, error)
	Move(src, dest, identity string) error
	Copy(src, dest, identity string) ([]CopyPair, error)
	Delete(path, identity string) ([]*types.Node, error)
	SetBusy(path string, busy bool) error
	ContainedPropertyURIs() ([]string, error)

	// UWS jobs
	CreateJob(job *types.Job) error
	GetJob(id string) (*types.Job, error)
	UpdatePhase(id string, phase types.Phase) (*types.Job, error)
	SetResults(id, resultsXML string) error
	SetJobError(id, msg string) (*types.Job, error)
	RecoverJobs() (int, error)

	// Utility
	Close() error
}
