package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/icrar/govospace/pkg/errtypes"
	"github.com/icrar/govospace/pkg/types"
)

func (s *Server) createTransfer(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, r, errtypes.InternalError(err.Error()))
		return
	}
	t, err := s.codec.ParseTransfer(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	job, err := s.exec.Create(t, identityFrom(r.Context()), types.PhasePending)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/vospace/transfers/"+job.ID)
	w.WriteHeader(http.StatusSeeOther)
}

// syncTransfer accepts either the query-parameter form or an XML body.
// Node-to-node directions are asynchronous only.
func (s *Server) syncTransfer(w http.ResponseWriter, r *http.Request) {
	var (
		t        *types.Transfer
		err      error
		redirect = strings.EqualFold(r.URL.Query().Get("REQUEST"), "redirect")
	)
	if r.URL.Query().Get("TARGET") != "" {
		t, err = syncTransferFromQuery(r)
	} else {
		var body []byte
		body, err = io.ReadAll(r.Body)
		if err == nil {
			t, err = s.codec.ParseTransfer(body)
		}
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !t.IsProtocolTransfer() {
		s.writeError(w, r, errtypes.InvalidArgument("node transfers must be asynchronous"))
		return
	}

	job, err := s.exec.Create(t, identityFrom(r.Context()), types.PhaseExecuting)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	endpoint, err := s.exec.RunSync(job)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if redirect {
		w.Header().Set("Location", endpoint)
		w.WriteHeader(http.StatusSeeOther)
		return
	}
	details, err := s.exec.TransferDetails(job.ID, job.Owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeXML(w, http.StatusOK, []byte(details))
}

// syncTransferFromQuery builds a protocol transfer from the
// TARGET/DIRECTION/PROTOCOL/VIEW/SECURITYMETHOD query parameters.
func syncTransferFromQuery(r *http.Request) (*types.Transfer, error) {
	q := r.URL.Query()

	target, err := types.PathFromURI(q.Get("TARGET"))
	if err != nil {
		return nil, errtypes.InvalidURI(err.Error())
	}
	direction := q.Get("DIRECTION")
	if direction != types.DirectionPushToVoSpace && direction != types.DirectionPullFromVoSpace {
		return nil, errtypes.InvalidArgument("DIRECTION must be pushToVoSpace or pullFromVoSpace")
	}
	protoURI := q.Get("PROTOCOL")
	if !types.KnownProtocol(protoURI) {
		return nil, errtypes.InvalidURI("unknown protocol " + protoURI)
	}

	t := &types.Transfer{
		Target:    target,
		Direction: direction,
		Protocols: []types.Protocol{{URI: protoURI, SecurityMethod: q.Get("SECURITYMETHOD")}},
	}
	if view := q.Get("VIEW"); view != "" {
		t.View = &types.View{URI: view}
	}
	return t, nil
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.exec.Get(chi.URLParam(r, "jobID"), identityFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	xml, err := s.codec.EncodeJob(job)
	if err != nil {
		s.writeError(w, r, errtypes.InternalError(err.Error()))
		return
	}
	s.writeXML(w, http.StatusOK, xml)
}

func (s *Server) getJobPhase(w http.ResponseWriter, r *http.Request) {
	phase, err := s.exec.Phase(chi.URLParam(r, "jobID"), identityFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(phase.String()))
}

func (s *Server) getTransferDetails(w http.ResponseWriter, r *http.Request) {
	details, err := s.exec.TransferDetails(chi.URLParam(r, "jobID"), identityFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeXML(w, http.StatusOK, []byte(details))
}

func (s *Server) modifyJobPhase(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	identity := identityFrom(r.Context())

	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, errtypes.InvalidArgument("malformed form body"))
		return
	}
	var err error
	switch strings.ToUpper(r.PostFormValue("PHASE")) {
	case "RUN":
		err = s.exec.Run(jobID, identity)
	case "ABORT":
		err = s.exec.Abort(jobID, identity)
	default:
		err = errtypes.InvalidArgument("PHASE must be RUN or ABORT")
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/vospace/transfers/"+jobID)
	w.WriteHeader(http.StatusSeeOther)
}
