package format

// ZoneStats summarizes one zone of a column for scan pruning. Min and Max
// hold the zone's extreme values as little endian leaf bytes (or raw bytes
// for variable width types) and are empty when the zone holds no non-null
// row.
type ZoneStats struct {
	Min       []byte `thrift:"1,required"`
	Max       []byte `thrift:"2,required"`
	NullCount int64  `thrift:"3,required"`
	NumRows   int64  `thrift:"4,required"`
}

// ZoneMap is the serialized content of a zone index buffer.
type ZoneMap struct {
	Zones []ZoneStats `thrift:"1,required"`
}
