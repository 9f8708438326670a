/*
Package types defines the core data structures of the VOSpace service.

This package contains the domain model shared by every other package:
nodes and their taxonomy, properties, views, protocols, transfers, and
UWS jobs with their phase state machine.

# Core Types

Namespace:
  - Node: a single entity in the space, discriminated by NodeType
  - NodeType: vos:Node, vos:DataNode, vos:UnstructuredDataNode,
    vos:StructuredDataNode, vos:ContainerNode, vos:LinkNode
  - Property: (uri, value, readOnly) triple; Delete marks removal requests
  - View: a content representation a data node accepts or provides
  - Protocol: a data-plane transport, optionally with a server endpoint

Transfers:
  - Transfer: a client request to move bytes or nodes
  - Direction constants: pushToVoSpace, pullFromVoSpace, or a peer path

Jobs:
  - Job: durable record of an in-flight transfer
  - Phase: UWS lifecycle PENDING < QUEUED < EXECUTING < COMPLETED with
    side exits ABORTED and ERROR

All types are plain data, JSON-serializable for storage, with
synchronization left to callers. Enumerations use typed string
constants matching the XML tokens they serialize to.
*/
package types
