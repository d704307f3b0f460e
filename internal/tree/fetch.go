package tree

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dshills/arbor/internal/dom"
)

// DefaultMaxBodyBytes limits the size of a loaded subtree.
const DefaultMaxBodyBytes = 10 << 20

// HTTPFetcher errors.
var (
	// ErrBadStatus is returned for non-2xx responses.
	ErrBadStatus = errors.New("unexpected response status")

	// ErrBodyTooLarge is returned when a response exceeds MaxBodyBytes.
	ErrBodyTooLarge = errors.New("response body too large")
)

// StatusError carries the status code of a failed request.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: %d %s", ErrBadStatus, e.Code, http.StatusText(e.Code))
}

func (e *StatusError) Is(target error) bool {
	return target == ErrBadStatus
}

// Response is a fetched subtree.
type Response struct {
	ContentType string
	Body        []byte
}

// Fetcher retrieves the children of a node.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) (*Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, uri string) (*Response, error)

// Fetch calls f(ctx, uri).
func (f FetcherFunc) Fetch(ctx context.Context, uri string) (*Response, error) {
	return f(ctx, uri)
}

// HTTPFetcher loads subtrees with GET requests.
type HTTPFetcher struct {
	// Client defaults to http.DefaultClient.
	Client *http.Client

	// MaxBodyBytes defaults to DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, uri string) (*Response, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	limit := f.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json, text/html;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, limit)
	}
	return &Response{ContentType: resp.Header.Get("Content-Type"), Body: body}, nil
}

// PayloadKind tells how a payload was decoded.
type PayloadKind int

const (
	PayloadJSON PayloadKind = iota
	PayloadHTML
)

func (k PayloadKind) String() string {
	if k == PayloadHTML {
		return "html"
	}
	return "json"
}

// Payload is the decoded response cached for a node.
type Payload struct {
	Kind        PayloadKind
	ContentType string
	Raw         []byte
}

// Get queries a JSON payload with a gjson path. HTML payloads return an
// empty result.
func (p *Payload) Get(path string) gjson.Result {
	if p == nil || p.Kind != PayloadJSON {
		return gjson.Result{}
	}
	return gjson.GetBytes(p.Raw, path)
}

// String returns the raw payload.
func (p *Payload) String() string {
	if p == nil {
		return ""
	}
	return string(p.Raw)
}

// NodeSpec is the JSON shape of a node, used both for loaded subtrees and
// for ToJSON.
type NodeSpec struct {
	Label      string            `json:"label"`
	Name       string            `json:"name,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Children   []NodeSpec        `json:"children"`
}

// decode turns a response into a payload and the markup to splice. JSON is
// converted to list items so both formats share the build path.
func (t *Tree) decode(resp *Response) (*Payload, []*html.Node, error) {
	mediaType, _, err := mime.ParseMediaType(resp.ContentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(resp.ContentType))
	}

	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		if !gjson.ValidBytes(resp.Body) {
			return nil, nil, fmt.Errorf("%w: invalid JSON", ErrUnsupportedContent)
		}
		specs, err := specsFromJSON(gjson.ParseBytes(resp.Body))
		if err != nil {
			return nil, nil, err
		}
		items := make([]*html.Node, 0, len(specs))
		for _, s := range specs {
			items = append(items, t.specToItem(s))
		}
		return &Payload{Kind: PayloadJSON, ContentType: resp.ContentType, Raw: resp.Body}, items, nil

	case mediaType == "text/html":
		items, err := dom.ParseFragment(string(resp.Body), atom.Ul)
		if err != nil {
			return nil, nil, fmt.Errorf("parse fragment: %w", err)
		}
		return &Payload{Kind: PayloadHTML, ContentType: resp.ContentType, Raw: resp.Body}, items, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedContent, resp.ContentType)
	}
}

// specsFromJSON accepts a single node object or an array of them.
func specsFromJSON(r gjson.Result) ([]NodeSpec, error) {
	switch {
	case r.IsArray():
		var specs []NodeSpec
		for _, e := range r.Array() {
			if !e.IsObject() {
				return nil, fmt.Errorf("%w: array entries must be node objects", ErrUnsupportedContent)
			}
			specs = append(specs, specFromJSON(e))
		}
		return specs, nil
	case r.IsObject():
		return []NodeSpec{specFromJSON(r)}, nil
	default:
		return nil, fmt.Errorf("%w: expected a node object or array", ErrUnsupportedContent)
	}
}

func specFromJSON(r gjson.Result) NodeSpec {
	s := NodeSpec{
		Label: r.Get("label").String(),
		Name:  r.Get("name").String(),
	}
	if attrs := r.Get("attributes"); attrs.IsObject() {
		s.Attributes = make(map[string]string)
		attrs.ForEach(func(k, v gjson.Result) bool {
			s.Attributes[k.String()] = v.String()
			return true
		})
	}
	for _, c := range r.Get("children").Array() {
		if c.IsObject() {
			s.Children = append(s.Children, specFromJSON(c))
		}
	}
	return s
}

// specToItem renders a spec as an undecorated list item.
func (t *Tree) specToItem(s NodeSpec) *html.Node {
	li := dom.Element(atom.Li)
	for k, v := range s.Attributes {
		dom.SetAttr(li, t.cfg.prefix+k, v)
	}
	if s.Name != "" {
		dom.SetAttr(li, t.cfg.prefix+"name", s.Name)
	}
	li.AppendChild(dom.Text(s.Label))
	if len(s.Children) > 0 {
		ul := dom.Element(atom.Ul)
		for _, c := range s.Children {
			ul.AppendChild(t.specToItem(c))
		}
		li.AppendChild(ul)
	}
	return li
}
