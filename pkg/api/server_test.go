package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icrar/govospace/pkg/executor"
	"github.com/icrar/govospace/pkg/space"
	"github.com/icrar/govospace/pkg/space/posix"
	"github.com/icrar/govospace/pkg/storage"
	"github.com/icrar/govospace/pkg/types"
	"github.com/icrar/govospace/pkg/vosxml"
)

type testEnv struct {
	srv   *httptest.Server
	store storage.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	var exec *executor.Executor
	backend, err := posix.New(t.TempDir(),
		func(jobID, nodePath string, put bool) error {
			return exec.AuthorizeDataTransfer(jobID, nodePath, put)
		},
		func(jobID string, err error) {
			exec.FinishDataTransfer(jobID, err)
		})
	require.NoError(t, err)

	codec := vosxml.NewCodec("icrar.org")
	endpoints := []space.Endpoint{
		{URL: "http://store.test/data", Protocol: types.ProtocolHTTPPut},
		{URL: "http://store.test/data", Protocol: types.ProtocolHTTPGet},
	}
	exec = executor.New(store, backend, nil, codec, endpoints, 500*time.Millisecond)

	server := NewServer(store, exec, backend, backend, nil, codec, Config{DirectoryLimit: 5})
	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, store: store}
}

func (e *testEnv) do(t *testing.T, method, path, identity, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if identity != "" {
		req.Header.Set("X-VOSpace-User", identity)
	}
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func containerXML(path string) string {
	return `<vos:node xmlns:vos="http://www.ivoa.net/xml/VOSpace/v2.1"
		xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
		uri="vos://icrar.org!vospace/` + path + `" xsi:type="vos:ContainerNode"/>`
}

func dataXML(path, props string) string {
	return `<vos:node xmlns:vos="http://www.ivoa.net/xml/VOSpace/v2.1"
		xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
		uri="vos://icrar.org!vospace/` + path + `" xsi:type="vos:DataNode">` + props + `</vos:node>`
}

func TestIdentityRequired(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/vospace/protocols", "", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCreateAndReadNode(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPut, "/vospace/nodes/test1", "alice", containerXML("test1"))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// Duplicate
	resp = env.do(t, http.MethodPut, "/vospace/nodes/test1", "alice", containerXML("test1"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Body path and URL path must agree
	resp = env.do(t, http.MethodPut, "/vospace/nodes/other", "alice", containerXML("test1"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/vospace/nodes/test1?detail=min", "alice", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.NotContains(t, body, "<vos:property")

	resp = env.do(t, http.MethodGet, "/vospace/nodes/missing", "alice", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReadPermission(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPut, "/vospace/nodes/private", "alice", containerXML("private"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = env.do(t, http.MethodPut, "/vospace/nodes/private/image", "alice", dataXML("private/image", ""))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Owned nodes and everything beneath them are private to their owner
	resp = env.do(t, http.MethodGet, "/vospace/nodes/private", "bob", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/vospace/nodes/private/image", "bob", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/vospace/nodes/private", "alice", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadDefaultsToMaxDetail(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPut, "/vospace/nodes/image", "alice", dataXML("image", ""))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// No detail option serves the full node, views included
	resp = env.do(t, http.MethodGet, "/vospace/nodes/image", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, posix.ViewAny)
	assert.Contains(t, body, posix.ViewBinary)
}

func TestReadOptions(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/vospace/nodes/x?detail=verbose", "alice", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/vospace/nodes/x?limit=0", "alice", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/vospace/nodes/x?limit=nope", "alice", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDirectoryListing(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPut, "/vospace/nodes/survey", "alice", containerXML("survey"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	for _, name := range []string{"c", "a", "b"} {
		resp := env.do(t, http.MethodPut, "/vospace/nodes/survey/"+name, "alice", dataXML("survey/"+name, ""))
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/vospace/nodes/survey", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	// Ascending path order
	ia := strings.Index(body, "survey/a")
	ib := strings.Index(body, "survey/b")
	ic := strings.Index(body, "survey/c")
	assert.True(t, ia >= 0 && ia < ib && ib < ic)

	// limit truncates the listing
	resp = env.do(t, http.MethodGet, "/vospace/nodes/survey?limit=1", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = readBody(t, resp)
	assert.Contains(t, body, "survey/a")
	assert.NotContains(t, body, "survey/b")
}

func TestUpdateProperties(t *testing.T) {
	env := newTestEnv(t)

	props := `<vos:properties>
		<vos:property uri="ivo://ivoa.net/vospace/core#description" readOnly="false">Hello</vos:property>
	</vos:properties>`
	resp := env.do(t, http.MethodPut, "/vospace/nodes/image", "alice", dataXML("image", props))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Delete the property via a nil marker
	del := `<vos:properties>
		<vos:property uri="ivo://ivoa.net/vospace/core#description" xsi:nil="true"></vos:property>
	</vos:properties>`
	resp = env.do(t, http.MethodPost, "/vospace/nodes/image", "alice", dataXML("image", del))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/vospace/nodes/image?detail=max", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, readBody(t, resp), "ivo://ivoa.net/vospace/core#description")

	// Only the owner may update
	resp = env.do(t, http.MethodPost, "/vospace/nodes/image", "bob", dataXML("image", ""))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDeleteNode(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPut, "/vospace/nodes/gone", "alice", containerXML("gone"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/vospace/nodes/gone", "alice", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/vospace/nodes/gone", "alice", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServiceListings(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/vospace/protocols", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), types.ProtocolHTTPPut)

	resp = env.do(t, http.MethodGet, "/vospace/properties", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "ivo://ivoa.net/vospace/core#title")
}

func TestSyncTransferRedirect(t *testing.T) {
	env := newTestEnv(t)

	q := url.Values{}
	q.Set("TARGET", "vos://icrar.org!vospace/upload")
	q.Set("DIRECTION", types.DirectionPushToVoSpace)
	q.Set("PROTOCOL", types.ProtocolHTTPPut)
	q.Set("REQUEST", "redirect")
	resp := env.do(t, http.MethodPost, "/vospace/synctrans?"+q.Encode(), "alice", "")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	location := resp.Header.Get("Location")
	assert.True(t, strings.HasPrefix(location, "http://store.test/data/"))
	assert.True(t, strings.HasSuffix(location, "/upload"))

	// The push leased the auto-created node
	node, err := env.store.GetNode("upload")
	require.NoError(t, err)
	assert.True(t, node.Busy)
}

func TestSyncTransferDetails(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPut, "/vospace/nodes/image", "alice", dataXML("image", ""))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := `<vos:transfer xmlns:vos="http://www.ivoa.net/xml/VOSpace/v2.1">
		<vos:target>vos://icrar.org!vospace/image</vos:target>
		<vos:direction>pullFromVoSpace</vos:direction>
		<vos:protocol uri="` + types.ProtocolHTTPGet + `"/>
	</vos:transfer>`
	resp = env.do(t, http.MethodPost, "/vospace/synctrans", "alice", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	details := readBody(t, resp)
	assert.Contains(t, details, "http://store.test/data/")
	assert.Contains(t, details, types.ProtocolHTTPGet)
}

func TestSyncTransferRejectsNodeTransfer(t *testing.T) {
	env := newTestEnv(t)

	body := `<vos:transfer xmlns:vos="http://www.ivoa.net/xml/VOSpace/v2.1">
		<vos:target>vos://icrar.org!vospace/a</vos:target>
		<vos:direction>vos://icrar.org!vospace/b</vos:direction>
		<vos:keepBytes>false</vos:keepBytes>
	</vos:transfer>`
	resp := env.do(t, http.MethodPost, "/vospace/synctrans", "alice", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAsyncTransferLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPut, "/vospace/nodes/src", "alice", containerXML("src"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = env.do(t, http.MethodPut, "/vospace/nodes/src/image", "alice", dataXML("src/image", ""))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := `<vos:transfer xmlns:vos="http://www.ivoa.net/xml/VOSpace/v2.1">
		<vos:target>vos://icrar.org!vospace/src</vos:target>
		<vos:direction>vos://icrar.org!vospace/dst</vos:direction>
		<vos:keepBytes>false</vos:keepBytes>
	</vos:transfer>`
	resp = env.do(t, http.MethodPost, "/vospace/transfers", "alice", body)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	location := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(location, "/vospace/transfers/"))
	jobID := strings.TrimPrefix(location, "/vospace/transfers/")

	// Jobs are private to their owner
	resp = env.do(t, http.MethodGet, location, "bob", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodGet, location+"/phase", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "PENDING", readBody(t, resp))

	form := strings.NewReader("PHASE=RUN")
	req, err := http.NewRequest(http.MethodPost, env.srv.URL+location+"/phase", form)
	require.NoError(t, err)
	req.Header.Set("X-VOSpace-User", "alice")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	runResp, err := client.Do(req)
	require.NoError(t, err)
	runResp.Body.Close()
	require.Equal(t, http.StatusSeeOther, runResp.StatusCode)

	deadline := time.Now().Add(2 * time.Second)
	for {
		job, err := env.store.GetJob(jobID)
		require.NoError(t, err)
		if job.Phase == types.PhaseCompleted {
			break
		}
		require.True(t, time.Now().Before(deadline), "job never completed, phase %s", job.Phase)
		time.Sleep(5 * time.Millisecond)
	}

	_, err = env.store.GetNode("dst/image")
	assert.NoError(t, err)

	resp = env.do(t, http.MethodGet, location, "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "<uws:phase>COMPLETED</uws:phase>")
}

func TestDataPlaneUpload(t *testing.T) {
	env := newTestEnv(t)

	q := url.Values{}
	q.Set("TARGET", "vos://icrar.org!vospace/upload")
	q.Set("DIRECTION", types.DirectionPushToVoSpace)
	q.Set("PROTOCOL", types.ProtocolHTTPPut)
	q.Set("REQUEST", "redirect")
	resp := env.do(t, http.MethodPost, "/vospace/synctrans?"+q.Encode(), "alice", "")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	// Replay the negotiated path against this server's data plane
	location := resp.Header.Get("Location")
	dataPath := strings.TrimPrefix(location, "http://store.test")
	jobID := strings.Split(strings.TrimPrefix(dataPath, "/data/"), "/")[0]

	resp = env.do(t, http.MethodPut, dataPath, "", "some bytes")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Upload completion finalized the job and released the lease
	job, err := env.store.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseCompleted, job.Phase)
	node, err := env.store.GetNode("upload")
	require.NoError(t, err)
	assert.False(t, node.Busy)

	// The spent push URL no longer admits requests; reading back takes a
	// fresh pull job
	resp = env.do(t, http.MethodGet, dataPath, "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	q = url.Values{}
	q.Set("TARGET", "vos://icrar.org!vospace/upload")
	q.Set("DIRECTION", types.DirectionPullFromVoSpace)
	q.Set("PROTOCOL", types.ProtocolHTTPGet)
	q.Set("REQUEST", "redirect")
	resp = env.do(t, http.MethodPost, "/vospace/synctrans?"+q.Encode(), "alice", "")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	pullPath := strings.TrimPrefix(resp.Header.Get("Location"), "http://store.test")

	resp = env.do(t, http.MethodGet, pullPath, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "some bytes", readBody(t, resp))
}

func TestDataPlaneAuthorization(t *testing.T) {
	env := newTestEnv(t)

	q := url.Values{}
	q.Set("TARGET", "vos://icrar.org!vospace/upload")
	q.Set("DIRECTION", types.DirectionPushToVoSpace)
	q.Set("PROTOCOL", types.ProtocolHTTPPut)
	q.Set("REQUEST", "redirect")
	resp := env.do(t, http.MethodPost, "/vospace/synctrans?"+q.Encode(), "alice", "")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	dataPath := strings.TrimPrefix(resp.Header.Get("Location"), "http://store.test")
	jobID := strings.Split(strings.TrimPrefix(dataPath, "/data/"), "/")[0]

	// Forged job id
	resp = env.do(t, http.MethodPut, "/data/NOSUCHJOB/upload", "", "x")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Live job id against a path the job does not target
	resp = env.do(t, http.MethodPut, "/data/"+jobID+"/other", "", "x")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// A push endpoint does not serve downloads
	resp = env.do(t, http.MethodGet, dataPath, "", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Rejected requests left the job untouched
	job, err := env.store.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseExecuting, job.Phase)

	resp = env.do(t, http.MethodPut, dataPath, "", "real bytes")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	job, err = env.store.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseCompleted, job.Phase)
}

func TestPhaseCommandValidation(t *testing.T) {
	env := newTestEnv(t)

	body := `<vos:transfer xmlns:vos="http://www.ivoa.net/xml/VOSpace/v2.1">
		<vos:target>vos://icrar.org!vospace/a</vos:target>
		<vos:direction>vos://icrar.org!vospace/b</vos:direction>
	</vos:transfer>`
	resp := env.do(t, http.MethodPost, "/vospace/transfers", "alice", body)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	location := resp.Header.Get("Location")

	form := strings.NewReader("PHASE=DANCE")
	req, err := http.NewRequest(http.MethodPost, env.srv.URL+location+"/phase", form)
	require.NoError(t, err)
	req.Header.Set("X-VOSpace-User", "alice")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}
