package types

// Transfer directions. Any other direction value is the path of a peer
// node within the space, making the transfer a node transfer.
const (
	DirectionPushToVoSpace   = "pushToVoSpace"
	DirectionPullFromVoSpace = "pullFromVoSpace"
)

// Transfer is a client request to move bytes or nodes. Target is a node
// path. Protocol transfers (push/pull) carry protocol candidates and an
// optional view; node transfers carry the destination path in Direction
// and KeepBytes distinguishes copy from move.
type Transfer struct {
	Target    string     `json:"target"`
	Direction string     `json:"direction"`
	KeepBytes bool       `json:"keep_bytes,omitempty"`
	Protocols []Protocol `json:"protocols,omitempty"`
	View      *View      `json:"view,omitempty"`
}

// PushToSpace returns a transfer uploading bytes to target.
func PushToSpace(target string, protocols ...Protocol) *Transfer {
	return &Transfer{Target: target, Direction: DirectionPushToVoSpace, Protocols: protocols}
}

// PullFromSpace returns a transfer downloading bytes from target.
func PullFromSpace(target string, protocols ...Protocol) *Transfer {
	return &Transfer{Target: target, Direction: DirectionPullFromVoSpace, Protocols: protocols}
}

// CopyTransfer returns a node transfer duplicating src at dest.
func CopyTransfer(src, dest string) *Transfer {
	return &Transfer{Target: src, Direction: dest, KeepBytes: true}
}

// MoveTransfer returns a node transfer renaming src to dest.
func MoveTransfer(src, dest string) *Transfer {
	return &Transfer{Target: src, Direction: dest, KeepBytes: false}
}

// IsProtocolTransfer reports whether the transfer moves bytes between a
// client and the space rather than between two nodes.
func (t *Transfer) IsProtocolTransfer() bool {
	return t.Direction == DirectionPushToVoSpace || t.Direction == DirectionPullFromVoSpace
}

// IsPush reports whether the transfer uploads into the space.
func (t *Transfer) IsPush() bool { return t.Direction == DirectionPushToVoSpace }

// IsPull reports whether the transfer downloads from the space.
func (t *Transfer) IsPull() bool { return t.Direction == DirectionPullFromVoSpace }
