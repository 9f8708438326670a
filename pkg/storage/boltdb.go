package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	bolt "go.etcd.io/bbolt"

	"github.com/icrar/govospace/pkg/errtypes"
	"github.com/icrar/govospace/pkg/types"
)

var (
	// Bucket names
	bucketNodes      = []byte("nodes")
	bucketProperties = []byte("properties")
	bucketJobs       = []byte("jobs")
)

// Property keys are node path, NUL, property URI. NUL sorts before '/',
// so a node's own properties precede those of its descendants.
const propSep = "\x00"

// nodeRecord is the persisted per-node row.
type nodeRecord struct {
	Type   types.NodeType `json:"type"`
	Busy   bool           `json:"busy"`
	Owner  string         `json:"owner,omitempty"`
	Target string         `json:"target,omitempty"`
}

// propRecord is the persisted per-property row.
type propRecord struct {
	Value    string `json:"value"`
	ReadOnly bool   `json:"read_only"`
}

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database under dataDir and seeds
// the root container.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "vospace.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketNodes, bucketProperties, bucketJobs} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		// The root container lives at the empty path.
		b := tx.Bucket(bucketNodes)
		if b.Get([]byte("")) == nil {
			return putNodeRecord(b, "", &nodeRecord{Type: types.NodeTypeContainer})
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func putNodeRecord(b *bolt.Bucket, path string, rec *nodeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.Put([]byte(path), data)
}

func getNodeRecord(b *bolt.Bucket, path string) (*nodeRecord, error) {
	data := b.Get([]byte(path))
	if data == nil {
		return nil, errtypes.NodeNotFound(path)
	}
	var rec nodeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// checkAncestry verifies that the parent of path exists and is a
// container and that no strict ancestor is a link.
func checkAncestry(b *bolt.Bucket, path string) error {
	for _, ancestor := range types.Ancestors(path) {
		rec, err := getNodeRecord(b, ancestor)
		if err != nil {
			return errtypes.ContainerNotFound(ancestor)
		}
		if rec.Type == types.NodeTypeLink {
			return errtypes.LinkFound(ancestor)
		}
	}
	parent, ok := types.ParentPath(path)
	if !ok {
		return nil
	}
	rec, err := getNodeRecord(b, parent)
	if err != nil {
		return errtypes.ContainerNotFound(parent)
	}
	if rec.Type == types.NodeTypeLink {
		return errtypes.LinkFound(parent)
	}
	if rec.Type != types.NodeTypeContainer {
		return errtypes.ContainerNotFound(parent)
	}
	return nil
}

// mayWrite is the mutation policy: unowned rows are writable by any
// authenticated identity, owned rows only by their owner.
func mayWrite(rec *nodeRecord, identity string) bool {
	return rec.Owner == "" || rec.Owner == identity
}

// mayRead mirrors mayWrite on the read path.
func mayRead(rec *nodeRecord, identity string) bool {
	return rec.Owner == "" || rec.Owner == identity
}

// checkReadable enforces read permission on the node and every strict
// ancestor. The root container is unowned and always readable.
func checkReadable(nodes *bolt.Bucket, path, identity string) error {
	for _, p := range append(types.Ancestors(path), path) {
		rec, err := getNodeRecord(nodes, p)
		if err != nil {
			return err
		}
		if !mayRead(rec, identity) {
			return errtypes.PermissionDenied(identity + " may not read " + p)
		}
	}
	return nil
}

// CreateNode inserts the node and its submitted properties. Delete
// markers in the property list are ignored on create.
func (s *BoltStore) CreateNode(node *types.Node, identity string) (*types.Node, error) {
	if node.Path == "" {
		return nil, errtypes.DuplicateNode("root container already exists")
	}
	var created *types.Node
	err := s.db.Update(func(tx *bolt.Tx) error {
		nodes := tx.Bucket(bucketNodes)
		props := tx.Bucket(bucketProperties)

		if err := checkAncestry(nodes, node.Path); err != nil {
			return err
		}
		if nodes.Get([]byte(node.Path)) != nil {
			return errtypes.DuplicateNode(node.Path)
		}
		parent, _ := types.ParentPath(node.Path)
		parentRec, err := getNodeRecord(nodes, parent)
		if err != nil {
			return err
		}
		if !mayWrite(parentRec, identity) {
			return errtypes.PermissionDenied(identity + " may not create under " + parent)
		}

		rec := &nodeRecord{Type: node.Type, Owner: identity, Target: node.Target}
		if err := putNodeRecord(nodes, node.Path, rec); err != nil {
			return err
		}
		for _, p := range node.Properties {
			if p.Delete {
				continue
			}
			if err := putProperty(props, node.Path, p); err != nil {
				return err
			}
		}

		created, err = loadNode(nodes, props, node.Path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func putProperty(b *bolt.Bucket, path string, p types.Property) error {
	data, err := json.Marshal(propRecord{Value: p.Value, ReadOnly: p.ReadOnly})
	if err != nil {
		return err
	}
	return b.Put([]byte(path+propSep+p.URI), data)
}

// loadNode materializes the node at path with its properties sorted by
// URI. Container children are not loaded here.
func loadNode(nodes, props *bolt.Bucket, path string) (*types.Node, error) {
	rec, err := getNodeRecord(nodes, path)
	if err != nil {
		return nil, err
	}
	n := &types.Node{Path: path, Type: rec.Type, Owner: rec.Owner, Busy: rec.Busy, Target: rec.Target}

	prefix := []byte(path + propSep)
	c := props.Cursor()
	for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
		var pr propRecord
		if err := json.Unmarshal(v, &pr); err != nil {
			return nil, err
		}
		uri := strings.TrimPrefix(string(k), string(prefix))
		n.Properties = append(n.Properties, types.Property{URI: uri, Value: pr.Value, ReadOnly: pr.ReadOnly})
	}
	n.SortProperties()
	return n, nil
}

// GetNode returns the node at path with its properties.
func (s *BoltStore) GetNode(path string) (*types.Node, error) {
	var n *types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		n, err = loadNode(tx.Bucket(bucketNodes), tx.Bucket(bucketProperties), path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Directory returns the node at path; for containers the direct
// children are attached as header-only nodes in ascending path order,
// carrying each child's own busy state.
func (s *BoltStore) Directory(path, identity string) (*types.Node, error) {
	var n *types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		nodes := tx.Bucket(bucketNodes)
		props := tx.Bucket(bucketProperties)

		var err error
		n, err = loadNode(nodes, props, path)
		if err != nil {
			return err
		}
		if err := checkReadable(nodes, path, identity); err != nil {
			return err
		}
		if !n.IsContainer() {
			return nil
		}

		prefix := path + "/"
		if path == "" {
			prefix = ""
		}
		c := nodes.Cursor()
		for k, v := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
			child := string(k)
			if child == path || child == "" {
				continue
			}
			if strings.ContainsRune(child[len(prefix):], '/') {
				continue
			}
			var rec nodeRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			n.Nodes = append(n.Nodes, &types.Node{Path: child, Type: rec.Type, Busy: rec.Busy})
		}
		n.SortNodes()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// UpdateProperties merges the request's property list into the stored
// node: delete markers remove, others upsert. Modifying a property
// stored read-only is denied.
func (s *BoltStore) UpdateProperties(node *types.Node, identity string) (*types.Node, error) {
	var updated *types.Node
	err := s.db.Update(func(tx *bolt.Tx) error {
		nodes := tx.Bucket(bucketNodes)
		props := tx.Bucket(bucketProperties)

		rec, err := getNodeRecord(nodes, node.Path)
		if err != nil {
			return err
		}
		if !mayWrite(rec, identity) {
			return errtypes.PermissionDenied(identity + " may not update " + node.Path)
		}

		for _, p := range node.Properties {
			key := []byte(node.Path + propSep + p.URI)
			if p.Delete {
				if err := props.Delete(key); err != nil {
					return err
				}
				continue
			}
			if data := props.Get(key); data != nil {
				var stored propRecord
				if err := json.Unmarshal(data, &stored); err != nil {
					return err
				}
				if stored.ReadOnly {
					return errtypes.PermissionDenied("property " + p.URI + " is read-only")
				}
			}
			if err := putProperty(props, node.Path, p); err != nil {
				return err
			}
		}

		updated, err = loadNode(nodes, props, node.Path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// subtreePaths returns path and all its descendants in ascending order.
func subtreePaths(nodes *bolt.Bucket, path string) []string {
	out := []string{path}
	prefix := path + "/"
	c := nodes.Cursor()
	for k, _ := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
		out = append(out, string(k))
	}
	return out
}

func subtreeBusy(nodes *bolt.Bucket, paths []string) (string, bool, error) {
	for _, p := range paths {
		rec, err := getNodeRecord(nodes, p)
		if err != nil {
			return "", false, err
		}
		if rec.Busy {
			return p, true, nil
		}
	}
	return "", false, nil
}

// checkMoveDest validates the destination of a move or copy.
func checkMoveDest(nodes *bolt.Bucket, src, dest string) error {
	if dest == "" {
		return errtypes.InvalidArgument("destination is the root container")
	}
	if src == dest || types.IsAncestorPath(src, dest) {
		return errtypes.InvalidArgument("destination " + dest + " is inside " + src)
	}
	if err := checkAncestry(nodes, dest); err != nil {
		return err
	}
	if nodes.Get([]byte(dest)) != nil {
		return errtypes.DuplicateNode(dest)
	}
	return nil
}

// Move atomically renames the src subtree to dest, rewriting every
// descendant path in the same transaction.
func (s *BoltStore) Move(src, dest, identity string) error {
	if src == "" {
		return errtypes.InvalidArgument("cannot move the root container")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		nodes := tx.Bucket(bucketNodes)
		props := tx.Bucket(bucketProperties)

		srcRec, err := getNodeRecord(nodes, src)
		if err != nil {
			return err
		}
		if !mayWrite(srcRec, identity) {
			return errtypes.PermissionDenied(identity + " may not move " + src)
		}
		if err := checkMoveDest(nodes, src, dest); err != nil {
			return err
		}
		destParent, _ := types.ParentPath(dest)
		parentRec, err := getNodeRecord(nodes, destParent)
		if err != nil {
			return err
		}
		if !mayWrite(parentRec, identity) {
			return errtypes.PermissionDenied(identity + " may not create under " + destParent)
		}

		paths := subtreePaths(nodes, src)
		if busyPath, busy, err := subtreeBusy(nodes, paths); err != nil {
			return err
		} else if busy {
			return errtypes.NodeBusy(busyPath)
		}

		for _, p := range paths {
			newPath := types.RewritePrefix(p, src, dest)
			if err := moveKey(nodes, p, newPath); err != nil {
				return err
			}
			if err := movePropertyKeys(props, p, newPath); err != nil {
				return err
			}
		}
		return nil
	})
}

func moveKey(b *bolt.Bucket, oldKey, newKey string) error {
	data := b.Get([]byte(oldKey))
	if data == nil {
		return errtypes.NodeNotFound(oldKey)
	}
	value := append([]byte(nil), data...)
	if err := b.Delete([]byte(oldKey)); err != nil {
		return err
	}
	return b.Put([]byte(newKey), value)
}

func movePropertyKeys(props *bolt.Bucket, oldPath, newPath string) error {
	prefix := oldPath + propSep
	type kv struct{ k, v []byte }
	var pending []kv
	c := props.Cursor()
	for k, v := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
		pending = append(pending, kv{append([]byte(nil), k...), append([]byte(nil), v...)})
	}
	for _, e := range pending {
		uri := strings.TrimPrefix(string(e.k), prefix)
		if err := props.Delete(e.k); err != nil {
			return err
		}
		if err := props.Put([]byte(newPath+propSep+uri), e.v); err != nil {
			return err
		}
	}
	return nil
}

// Copy structurally duplicates the src subtree metadata at dest and
// returns the duplicated pairs for post-commit byte copying.
func (s *BoltStore) Copy(src, dest, identity string) ([]CopyPair, error) {
	if src == "" {
		return nil, errtypes.InvalidArgument("cannot copy the root container")
	}
	var pairs []CopyPair
	err := s.db.Update(func(tx *bolt.Tx) error {
		nodes := tx.Bucket(bucketNodes)
		props := tx.Bucket(bucketProperties)

		if _, err := getNodeRecord(nodes, src); err != nil {
			return err
		}
		if err := checkMoveDest(nodes, src, dest); err != nil {
			return err
		}
		destParent, _ := types.ParentPath(dest)
		parentRec, err := getNodeRecord(nodes, destParent)
		if err != nil {
			return err
		}
		if !mayWrite(parentRec, identity) {
			return errtypes.PermissionDenied(identity + " may not create under " + destParent)
		}

		for _, p := range subtreePaths(nodes, src) {
			rec, err := getNodeRecord(nodes, p)
			if err != nil {
				return err
			}
			newPath := types.RewritePrefix(p, src, dest)
			copied := &nodeRecord{Type: rec.Type, Owner: identity, Target: rec.Target}
			if err := putNodeRecord(nodes, newPath, copied); err != nil {
				return err
			}
			if err := copyPropertyKeys(props, p, newPath); err != nil {
				return err
			}
			pairs = append(pairs, CopyPair{SrcPath: p, DestPath: newPath, Type: rec.Type})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pairs, nil
}

func copyPropertyKeys(props *bolt.Bucket, oldPath, newPath string) error {
	prefix := oldPath + propSep
	type kv struct{ k, v []byte }
	var pending []kv
	c := props.Cursor()
	for k, v := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
		pending = append(pending, kv{append([]byte(nil), k...), append([]byte(nil), v...)})
	}
	for _, e := range pending {
		uri := strings.TrimPrefix(string(e.k), prefix)
		if err := props.Put([]byte(newPath+propSep+uri), e.v); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the node and its entire subtree, returning the removed
// nodes for post-commit storage cleanup.
func (s *BoltStore) Delete(path, identity string) ([]*types.Node, error) {
	if path == "" {
		return nil, errtypes.InvalidArgument("cannot delete the root container")
	}
	var removed []*types.Node
	err := s.db.Update(func(tx *bolt.Tx) error {
		nodes := tx.Bucket(bucketNodes)
		props := tx.Bucket(bucketProperties)

		rec, err := getNodeRecord(nodes, path)
		if err != nil {
			return err
		}
		if !mayWrite(rec, identity) {
			return errtypes.PermissionDenied(identity + " may not delete " + path)
		}

		paths := subtreePaths(nodes, path)
		if busyPath, busy, err := subtreeBusy(nodes, paths); err != nil {
			return err
		} else if busy {
			return errtypes.NodeBusy(busyPath)
		}

		for _, p := range paths {
			pRec, err := getNodeRecord(nodes, p)
			if err != nil {
				return err
			}
			removed = append(removed, &types.Node{Path: p, Type: pRec.Type, Target: pRec.Target})
			if err := nodes.Delete([]byte(p)); err != nil {
				return err
			}
			if err := deletePropertyKeys(props, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func deletePropertyKeys(props *bolt.Bucket, path string) error {
	prefix := path + propSep
	var pending [][]byte
	c := props.Cursor()
	for k, _ := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
		pending = append(pending, append([]byte(nil), k...))
	}
	for _, k := range pending {
		if err := props.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// SetBusy flips the busy lease on a data node.
func (s *BoltStore) SetBusy(path string, busy bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		nodes := tx.Bucket(bucketNodes)
		rec, err := getNodeRecord(nodes, path)
		if err != nil {
			return err
		}
		if !rec.Type.IsDataVariant() {
			return errtypes.InvalidArgument(path + " is not a data node")
		}
		rec.Busy = busy
		return putNodeRecord(nodes, path, rec)
	})
}

// ContainedPropertyURIs returns the distinct property URIs stored in
// the space, in ascending order.
func (s *BoltStore) ContainedPropertyURIs() ([]string, error) {
	seen := make(map[string]bool)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProperties).ForEach(func(k, v []byte) error {
			if i := strings.Index(string(k), propSep); i >= 0 {
				seen[string(k)[i+1:]] = true
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	uris := make([]string, 0, len(seen))
	for uri := range seen {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris, nil
}
