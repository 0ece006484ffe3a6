package gofetch

// BodyKind tags which body source an Options mapping resolved to, after
// precedence has been applied (json > form > multipart > raw_body).
type BodyKind int

const (
	// BodyNone means the request carries no body.
	BodyNone BodyKind = iota
	BodyJSON
	BodyForm
	BodyMultipart
	BodyRaw
)

// MultipartPart is one field or file of a multipart/form-data body.
type MultipartPart struct {
	Name        string
	FileName    string // empty for a plain form field
	ContentType string // empty to let the writer infer one
	Content     []byte
}

// Body is the tagged variant chosen once at option-merge time; every
// downstream collaborator (transport, cache key, debug snapshot) only ever
// sees this, never the original free-form option keys. This replaces the
// "three body options, one winner" tangle the source handles via ad hoc
// precedence checks scattered through request construction.
type Body struct {
	Kind BodyKind

	JSONValue any               // BodyJSON
	FormValue map[string]string // BodyForm
	Parts     []MultipartPart   // BodyMultipart
	Raw       []byte            // BodyRaw
	RawType   string            // BodyRaw content-type

	// Boundary is filled in by MergeOptions for BodyMultipart so that
	// the Content-Type header and the encoded body agree.
	Boundary string
}

// IsEmpty reports whether this body carries no payload.
func (b Body) IsEmpty() bool { return b.Kind == BodyNone }

// ContentType returns the header value this body source implies, or "" if
// the body does not imply one (raw bodies with no explicit content type,
// or no body at all).
func (b Body) ContentType() string {
	switch b.Kind {
	case BodyJSON:
		return "application/json"
	case BodyForm:
		return "application/x-www-form-urlencoded"
	case BodyMultipart:
		return "multipart/form-data; boundary=" + b.Boundary
	case BodyRaw:
		return b.RawType
	default:
		return ""
	}
}
