package gateway

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Base endpoints. The sandbox environment is plain HTTP on the gateway side.
const (
	productionBaseURL = "https://www.easypay.pt/_s/"
	sandboxBaseURL    = "http://test.easypay.pt/_s/"

	authParam = "s_code"
)

// Gateway operation codes. Each maps to the endpoint path api_easypay_<code>.php.
const (
	opRequestReference      = "01BG"
	opRequestReferenceSplit = "01SP"
	opPaymentDetail         = "03AG"
	opPaymentList           = "040BG1"
)

// Error is a gateway-level failure: a non-ok ep_status, a malformed response
// document, or a transport failure. The message names the condition.
type Error struct {
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("easypay %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Recorder observes completed gateway calls, for metrics.
type Recorder interface {
	Record(operation, status string, elapsed time.Duration)
}

// Client performs authenticated operations against the Easypay gateway. A
// client is stateless across calls; no session state is retained between
// requests.
type Client struct {
	http     *http.Client
	baseURL  string
	authKey  string
	recorder Recorder
	logger   *slog.Logger
}

// New creates a gateway client for the production or sandbox endpoint.
// The authentication key must not be empty.
func New(authenticationKey string, sandbox bool, logger *slog.Logger) (*Client, error) {
	if authenticationKey == "" {
		return nil, errors.New("easypay: authentication key is required")
	}

	baseURL := productionBaseURL
	if sandbox {
		baseURL = sandboxBaseURL
	}

	return &Client{
		http: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		baseURL: baseURL,
		authKey: authenticationKey,
		logger:  logger,
	}, nil
}

// WithRecorder attaches a call recorder and returns the client.
func (c *Client) WithRecorder(r Recorder) *Client {
	c.recorder = r
	return c
}

// Query issues a read-style call: parameters in the query string, with the
// authentication key appended after the caller's fields. Empty values are
// omitted.
func (c *Client) Query(ctx context.Context, operation string, params []Field) (Fields, error) {
	root, err := c.roundTrip(ctx, operation, params, false)
	if err != nil {
		return nil, err
	}
	return decodeFields(root)
}

// Submit issues a write-style call: form-encoded body with the
// authentication key as the first field. Empty values are omitted.
func (c *Client) Submit(ctx context.Context, operation string, params []Field) (Fields, error) {
	root, err := c.roundTrip(ctx, operation, params, true)
	if err != nil {
		return nil, err
	}
	return decodeFields(root)
}

// RequestPaymentReference obtains a payment reference for the request. A
// request carrying split entries is submitted as the split operation;
// otherwise it is a plain query.
func (c *Client) RequestPaymentReference(ctx context.Context, req *PaymentRequest) (Fields, error) {
	params := req.Parameters()
	if len(req.Splits) > 0 {
		return c.Submit(ctx, opRequestReferenceSplit, params)
	}
	return c.Query(ctx, opRequestReference, params)
}

// FetchPaymentDetail retrieves the detail document for one paid document.
func (c *Client) FetchPaymentDetail(ctx context.Context, clientID int, username, transactionID, docType string) (Fields, error) {
	return c.Query(ctx, opPaymentDetail, []Field{
		{"ep_cin", clientID},
		{"ep_user", username},
		{"ep_doc", transactionID},
		{"ep_type", docType},
	})
}

// FetchPayments lists paid documents for an entity within a date window.
func (c *Client) FetchPayments(ctx context.Context, clientID int, username string, entityID int, start, end time.Time) ([]Fields, error) {
	root, err := c.roundTrip(ctx, opPaymentList, []Field{
		{"ep_cin", clientID},
		{"ep_user", username},
		{"ep_entity", entityID},
		{"o_list_type", "date"},
		{"o_ini", start},
		{"o_last", end},
	}, false)
	if err != nil {
		return nil, err
	}
	return decodeCollection(root)
}

// FetchFailedPayments lists failed documents for an entity.
func (c *Client) FetchFailedPayments(ctx context.Context, clientID int, username string, entityID int) ([]Fields, error) {
	root, err := c.roundTrip(ctx, opPaymentList, []Field{
		{"ep_cin", clientID},
		{"ep_user", username},
		{"ep_entity", entityID},
		{"o_list_type", "fail"},
	}, false)
	if err != nil {
		return nil, err
	}
	return decodeCollection(root)
}

// roundTrip performs one request/response unit against the gateway and
// applies the ok/error response contract. A canceled context resolves as
// cancellation, never as success or gateway error.
func (c *Client) roundTrip(ctx context.Context, operation string, params []Field, post bool) (*element, error) {
	var req *http.Request
	var err error

	path := fmt.Sprintf("api_easypay_%s.php", operation)

	if post {
		body := encodeParams(params, true, c.authKey)
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		query := encodeParams(params, false, c.authKey)
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query, nil)
	}
	if err != nil {
		return nil, &Error{Op: operation, Message: "building request", Err: err}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			c.record(operation, "canceled", start)
			return nil, ctx.Err()
		}
		c.record(operation, "transport_error", start)
		c.logger.Error("gateway request failed", "operation", operation, "error", err)
		return nil, &Error{Op: operation, Message: "transport failure", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.record(operation, "http_error", start)
		return nil, &Error{Op: operation, Message: fmt.Sprintf("unexpected status %s", resp.Status)}
	}

	root, err := parseDocument(resp.Body)
	if err != nil {
		c.record(operation, "parse_error", start)
		return nil, &Error{Op: operation, Message: "parsing response document", Err: err}
	}

	status, ok := root.childText("ep_status")
	if !ok {
		c.record(operation, "protocol_error", start)
		return nil, &Error{Op: operation, Message: "response is missing ep_status"}
	}

	if !strings.HasPrefix(strings.ToLower(status), "ok") {
		message, _ := root.childText("ep_message")
		c.record(operation, "gateway_error", start)
		c.logger.Error("gateway reported error", "operation", operation, "message", message)
		return nil, &Error{Op: operation, Message: message}
	}

	c.record(operation, "ok", start)
	return root, nil
}

func (c *Client) record(operation, status string, start time.Time) {
	if c.recorder != nil {
		c.recorder.Record(operation, status, time.Since(start))
	}
}

// encodeParams renders an ordered parameter list. For POST the auth key is
// the first field; for GET it is appended after the caller's fields. Fields
// whose encoded value is empty are omitted.
func encodeParams(params []Field, authFirst bool, authKey string) string {
	var b strings.Builder

	write := func(name, value string) {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(value))
	}

	if authFirst {
		write(authParam, authKey)
	}
	for _, p := range params {
		if v := EncodeValue(p.Value); v != "" {
			write(p.Name, v)
		}
	}
	if !authFirst {
		write(authParam, authKey)
	}
	return b.String()
}

// element is a node of the gateway's single-root XML response tree.
type element struct {
	XMLName  xml.Name
	Text     string    `xml:",chardata"`
	Children []element `xml:",any"`
}

func parseDocument(r io.Reader) (*element, error) {
	var root element
	dec := xml.NewDecoder(r)
	// Gateway documents declare legacy single-byte encodings; values are ASCII.
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	if err := dec.Decode(&root); err != nil {
		return nil, err
	}
	return &root, nil
}

func (e *element) childText(name string) (string, bool) {
	for i := range e.Children {
		if e.Children[i].XMLName.Local == name {
			return strings.TrimSpace(e.Children[i].Text), true
		}
	}
	return "", false
}

// decodeFields decodes the leaf children of an element through the field
// typing table. Nested record elements are skipped.
func decodeFields(e *element) (Fields, error) {
	fields := make(Fields, len(e.Children))
	for i := range e.Children {
		child := &e.Children[i]
		if len(child.Children) > 0 {
			continue
		}
		v, err := DecodeField(child.XMLName.Local, strings.TrimSpace(child.Text))
		if err != nil {
			return nil, err
		}
		fields[child.XMLName.Local] = v
	}
	return fields, nil
}

// decodeCollection decodes every ref record nested under the root, each
// independently through the same typing table.
func decodeCollection(root *element) ([]Fields, error) {
	var records []Fields
	var walk func(e *element) error
	walk = func(e *element) error {
		for i := range e.Children {
			child := &e.Children[i]
			if child.XMLName.Local == "ref" {
				fields, err := decodeFields(child)
				if err != nil {
					return err
				}
				records = append(records, fields)
				continue
			}
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return records, nil
}
