package cibpd

// PingResponse answers a ping with the sender's current digest and a
// version shell (or, when tracing, the full document) so the requester
// can detect divergence without a full transfer.
type PingResponse struct {
	Digest     string
	PingID     string
	FeatureSet string
	Doc        *Document
}

func (p *PingResponse) Reset() { *p = PingResponse{} }

// SchemaQuery asks for every schema generation newer than Version.
type SchemaQuery struct {
	Version string
}

func (q *SchemaQuery) Reset() { *q = SchemaQuery{} }

// SchemaInfo describes one schema generation.
type SchemaInfo struct {
	Name       string
	Version    string
	Definition string
}

// SchemaList answers a schema query, ascending and deduplicated. An
// empty list is a valid answer meaning "already up to date".
type SchemaList struct {
	Schemas []SchemaInfo
}

func (l *SchemaList) Reset() { *l = SchemaList{} }
