package vosxml

import (
	"time"

	"github.com/beevik/etree"
	"github.com/icrar/govospace/pkg/types"
)

// EncodeJob emits the UWS job summary document. The transferDetails
// result is referenced once the job has reached EXECUTING and a result
// document exists.
func (c *Codec) EncodeJob(job *types.Job) ([]byte, error) {
	doc := etree.NewDocument()
	root := doc.CreateElement("uws:job")
	root.CreateAttr("xmlns:uws", NSUWS)
	root.CreateAttr("xmlns:xlink", NSXLink)

	root.CreateElement("uws:jobId").SetText(job.ID)
	root.CreateElement("uws:ownerId").SetText(job.Owner)
	root.CreateElement("uws:phase").SetText(job.Phase.String())
	root.CreateElement("uws:creationTime").SetText(job.Created.UTC().Format(time.RFC3339))
	if !job.Started.IsZero() {
		root.CreateElement("uws:startTime").SetText(job.Started.UTC().Format(time.RFC3339))
	}
	if !job.Ended.IsZero() {
		root.CreateElement("uws:endTime").SetText(job.Ended.UTC().Format(time.RFC3339))
	}

	results := root.CreateElement("uws:results")
	if job.Phase.Executing() && job.ResultsXML != "" {
		result := results.CreateElement("uws:result")
		result.CreateAttr("id", "transferDetails")
		result.CreateAttr("xlink:href", "/vospace/transfers/"+job.ID+"/results/transferDetails")
	}

	if job.Error != "" {
		summary := root.CreateElement("uws:errorSummary")
		summary.CreateAttr("type", "fatal")
		summary.CreateElement("uws:message").SetText(job.Error)
	}

	return doc.WriteToBytes()
}

// EncodeProtocols emits the service protocol listing for the closed
// protocol registry.
func (c *Codec) EncodeProtocols() ([]byte, error) {
	doc := etree.NewDocument()
	root := doc.CreateElement("vos:protocols")
	root.CreateAttr("xmlns:vos", NSVOSpace)
	accepts := root.CreateElement("vos:accepts")
	provides := root.CreateElement("vos:provides")
	for _, uri := range types.KnownProtocols() {
		accepts.CreateElement("vos:protocol").CreateAttr("uri", uri)
		provides.CreateElement("vos:protocol").CreateAttr("uri", uri)
	}
	return doc.WriteToBytes()
}

// EncodeProperties emits the service property listing: accepted
// property URIs plus the URIs currently contained in the space.
func (c *Codec) EncodeProperties(accepts, contains []string) ([]byte, error) {
	doc := etree.NewDocument()
	root := doc.CreateElement("vos:properties")
	root.CreateAttr("xmlns:vos", NSVOSpace)
	acceptsEl := root.CreateElement("vos:accepts")
	for _, uri := range accepts {
		acceptsEl.CreateElement("vos:property").CreateAttr("uri", uri)
	}
	containsEl := root.CreateElement("vos:contains")
	for _, uri := range contains {
		containsEl.CreateElement("vos:property").CreateAttr("uri", uri)
	}
	return doc.WriteToBytes()
}
