package storage

import "time"

// Payload field names shared by every backend.
const (
	FieldText       = "text"
	FieldSource     = "source"
	FieldDepartment = "department"
	FieldGeneration = "generation"
	FieldChunkIndex = "chunk_index"
	FieldUploadedAt = "uploaded_at"
)

// AllDepartments is the wildcard department. On a query it disables the
// filter, on a point it makes the point visible to every department.
const AllDepartments = "all"

// Point is one indexed chunk. A document is the set of points sharing Source.
type Point struct {
	ID         string // UUID, never reused
	Vector     []float32
	Text       string
	Source     string // filename or "<system>:<external-id>"
	Department string
	Generation string // UUID shared by all points of one indexing run
	ChunkIndex int
	UploadedAt time.Time
}

// Hit is a ranked search result. Vector is not populated.
type Hit struct {
	Point
	Score float64
}

// SearchRequest describes a similarity query.
type SearchRequest struct {
	Vector     []float32
	Department string // "" or "all" disables department filtering
	Limit      int
	// ExcludeGenerations hides points of generations that are not current.
	ExcludeGenerations []string
}

// Selector picks points for deletion. Set fields are combined with AND and at
// least one of Source or Generation must be set.
type Selector struct {
	Source           string
	Generation       string
	ExceptGeneration string
}

// GenerationInfo summarizes the points of one (source, generation) pair.
type GenerationInfo struct {
	Source     string
	Generation string
	Department string
	UploadedAt time.Time
	Chunks     int
}

// IsWildcardDepartment reports whether d matches every department.
func IsWildcardDepartment(d string) bool {
	return d == "" || d == AllDepartments
}
