package executor

import (
	"context"
	"net/url"
	"strings"

	"github.com/icrar/govospace/pkg/errtypes"
	"github.com/icrar/govospace/pkg/events"
	"github.com/icrar/govospace/pkg/space"
	"github.com/icrar/govospace/pkg/types"
)

// perform dispatches the job's transfer. done reports whether the job
// reached its terminal work here: node transfers complete inline, while
// protocol transfers stay EXECUTING until the data plane finishes. For
// protocol transfers the chosen endpoint URL is returned.
func (e *Executor) perform(ctx context.Context, job *types.Job) (done bool, endpoint string, err error) {
	t, err := e.codec.ParseTransfer([]byte(job.TransferXML))
	if err != nil {
		return false, "", err
	}
	if t.IsProtocolTransfer() {
		endpoint, err = e.performProtocol(ctx, job, t)
		return false, endpoint, err
	}
	return true, "", e.performNode(ctx, job, t)
}

// performProtocol verifies the target, negotiates an endpoint, marks
// the busy lease for pushes, and stores the transferDetails result.
func (e *Executor) performProtocol(ctx context.Context, job *types.Job, t *types.Transfer) (string, error) {
	node, err := e.store.GetNode(t.Target)
	if err != nil {
		if t.IsPull() {
			return "", err
		}
		// A push may create the node, provided its parent container
		// exists.
		node, err = e.store.CreateNode(&types.Node{Path: t.Target, Type: types.NodeTypeUnstructuredData}, job.Owner)
		if err != nil {
			return "", err
		}
		e.publishNode(events.EventNodeCreated, node.Path)
	}
	if !node.Type.IsDataVariant() {
		return "", errtypes.InvalidArgument(t.Target + " is not a data node")
	}
	if node.Busy {
		return "", errtypes.NodeBusy(t.Target)
	}

	chosen, err := e.selectEndpoint(ctx, node, t)
	if err != nil {
		return "", err
	}

	if t.IsPush() {
		if err := e.store.SetBusy(t.Target, true); err != nil {
			return "", err
		}
	}

	endpointURL := strings.TrimSuffix(chosen.URL, "/") + "/" + job.ID + "/" + t.Target
	result := &types.Transfer{
		Target:    t.Target,
		Direction: t.Direction,
		View:      t.View,
		Protocols: []types.Protocol{{
			URI:            chosen.Protocol,
			Endpoint:       endpointURL,
			SecurityMethod: chosen.SecurityMethod,
		}},
	}
	xml, err := e.codec.EncodeTransfer(result)
	if err != nil {
		return "", errtypes.InternalError(err.Error())
	}
	if err := e.store.SetResults(job.ID, string(xml)); err != nil {
		return "", err
	}
	return endpointURL, nil
}

// selectEndpoint narrows the configured candidates through the backend
// and picks the first one matching the requested scheme and security
// method.
func (e *Executor) selectEndpoint(ctx context.Context, node *types.Node, t *types.Transfer) (space.Endpoint, error) {
	for _, proto := range t.Protocols {
		if !types.KnownProtocol(proto.URI) {
			continue
		}
		candidates, err := e.backend.FilterEndpoints(ctx, e.endpoints, node.Type, node.Path, proto.URI, t.Direction)
		if err != nil {
			return space.Endpoint{}, errtypes.InternalError(err.Error())
		}
		for _, cand := range candidates {
			u, err := url.Parse(cand.URL)
			if err != nil || u.Scheme != proto.Scheme() {
				continue
			}
			if proto.SecurityMethod != "" && cand.SecurityMethod != proto.SecurityMethod {
				continue
			}
			return cand, nil
		}
	}
	return space.Endpoint{}, errtypes.InvalidArgument("no storage endpoint matches the requested protocols")
}

func (e *Executor) performNode(ctx context.Context, job *types.Job, t *types.Transfer) error {
	src, err := e.store.GetNode(t.Target)
	if err != nil {
		return err
	}
	dest := t.Direction

	if t.KeepBytes {
		pairs, err := e.store.Copy(t.Target, dest, job.Owner)
		if err != nil {
			return err
		}
		for _, pair := range pairs {
			if !pair.Type.IsDataVariant() {
				continue
			}
			if err := e.backend.CopyStorageNode(ctx, pair.Type, pair.SrcPath, pair.Type, pair.DestPath); err != nil {
				return errtypes.InternalError(err.Error())
			}
		}
		e.publishNode(events.EventNodeCopied, dest)
		return nil
	}

	if err := e.store.Move(t.Target, dest, job.Owner); err != nil {
		return err
	}
	if err := e.backend.MoveStorageNode(ctx, src.Type, t.Target, src.Type, dest); err != nil {
		return errtypes.InternalError(err.Error())
	}
	e.publishNode(events.EventNodeMoved, dest)
	return nil
}

func (e *Executor) publishNode(t events.EventType, path string) {
	if e.broker == nil {
		return
	}
	e.broker.Publish(events.New(t, path, map[string]string{"path": path}))
}
