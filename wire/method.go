package wire

// Method is a request method ("http verb").
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"

	// The methods below might work, might not; a warning is logged when one
	// of them is used.
	MethodHead    Method = "HEAD"
	MethodConnect Method = "CONNECT"
	MethodOptions Method = "OPTIONS"
	MethodTrace   Method = "TRACE"
	MethodPatch   Method = "PATCH"
)

type methodProperties struct {
	supported bool

	requestBodyRequired  bool
	requestBodyForbidden bool
	responseHasBody      bool
	safe                 bool
	idempotent           bool
	cacheable            bool
}

var methods = map[Method]methodProperties{
	MethodGet:    {supported: true, responseHasBody: true, safe: true, idempotent: true, cacheable: true},
	MethodPost:   {supported: true, requestBodyRequired: true, responseHasBody: true, cacheable: true},
	MethodPut:    {supported: true, requestBodyRequired: true, responseHasBody: true, idempotent: true},
	MethodDelete: {supported: true, responseHasBody: true, idempotent: true},

	MethodHead:    {safe: true, idempotent: true, cacheable: true},
	MethodConnect: {responseHasBody: true},
	MethodOptions: {responseHasBody: true, safe: true, idempotent: true},
	MethodTrace:   {requestBodyForbidden: true, responseHasBody: true, safe: true, idempotent: true},
	MethodPatch:   {requestBodyRequired: true, responseHasBody: true},
}

// Supported reports whether the method is officially supported. An
// unsupported method may still work, but no guarantees are given; it's up to
// the caller to ensure everything is in its place, e.g. appropriate headers.
func (m Method) Supported() bool { return methods[m].supported }

// RequiresBody reports whether a request body is mandatory. If it is, the
// body must be provided along with appropriate headers, even if empty.
func (m Method) RequiresBody() bool { return methods[m].requestBodyRequired }

// AllowsBody reports whether a request body may be present at all.
func (m Method) AllowsBody() bool { return !methods[m].requestBodyForbidden }

// ResponseHasBody reports whether a response to this method carries a body.
func (m Method) ResponseHasBody() bool { return methods[m].responseHasBody }

// Safe methods shouldn't change the resource representation.
func (m Method) Safe() bool { return methods[m].safe }

// Idempotent methods can be repeated with the same outcome.
func (m Method) Idempotent() bool { return methods[m].idempotent }

// ResponseCacheable reports whether responses to this method can be cached.
// This is further refined by response headers.
func (m Method) ResponseCacheable() bool { return methods[m].cacheable }

func (m Method) String() string { return string(m) }
