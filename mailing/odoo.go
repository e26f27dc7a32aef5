// Package mailing schedules marketing emails in the Odoo mass-mailing app
// over XML-RPC.
package mailing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kolo/xmlrpc"

	"auto_social_publisher/config"
)

const (
	mailingModel = "mailing.mailing"
	odooTime     = "2006-01-02 15:04:05"
)

// Mailing is one email campaign. When BodyIsHTML is false the body is plain
// text and Links are appended by the sink; otherwise the body already carries
// its links. A non-zero ID reuses a mailing an earlier attempt created but
// could not schedule.
type Mailing struct {
	ID          int
	Subject     string
	Body        string
	Links       []string
	When        time.Time
	AudienceIDs []int
	BodyIsHTML  bool
}

// Receipt is the created mailing and any tolerated upstream oddity.
type Receipt struct {
	ID       int
	Warnings []string
}

// DeliveryError carries the Odoo fault or transport error verbatim.
type DeliveryError struct {
	Op     string
	Detail string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("odoo %s: %s", e.Op, e.Detail)
}

// Delivery marks the error as a delivery failure.
func (e *DeliveryError) Delivery() bool { return true }

// caller performs one XML-RPC call against an Odoo service ("common" or
// "object").
type caller interface {
	Call(ctx context.Context, service, method string, args []interface{}, reply interface{}) error
}

// Odoo is the mailing sink. It authenticates lazily on first use.
type Odoo struct {
	cfg    config.OdooConfig
	rpc    caller
	logger *slog.Logger

	mu  sync.Mutex
	uid int64
}

// New validates the Odoo settings and prepares XML-RPC clients. It makes no
// network call.
func New(cfg config.OdooConfig, logger *slog.Logger) (*Odoo, error) {
	required := []struct{ field, value string }{
		{"odoo.url", cfg.URL},
		{"odoo.db", cfg.DB},
		{"odoo.username", cfg.Username},
		{"odoo.password", cfg.Password},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, &config.Error{Field: r.field, Msg: "missing"}
		}
	}
	c, err := newXMLRPCCaller(cfg.URL, cfg.Timeout)
	if err != nil {
		return nil, &config.Error{Field: "odoo.url", Msg: err.Error()}
	}
	return newOdoo(cfg, c, logger), nil
}

func newOdoo(cfg config.OdooConfig, c caller, logger *slog.Logger) *Odoo {
	if logger == nil {
		logger = slog.Default()
	}
	return &Odoo{cfg: cfg, rpc: c, logger: logger}
}

// Lists returns the mailing lists the operator can target.
func (o *Odoo) Lists() []config.MailingList {
	return append([]config.MailingList(nil), o.cfg.MailingLists...)
}

// Schedule creates the mailing (or rewrites m.ID) then schedules it for
// m.When. When action_schedule fails the receipt still carries the id.
// Odoo answers action_schedule with None, which stock XML-RPC servers refuse
// to marshal; that fault means the action ran and is reported as a warning.
func (o *Odoo) Schedule(ctx context.Context, m Mailing) (Receipt, error) {
	if strings.TrimSpace(m.Subject) == "" {
		return Receipt{}, &DeliveryError{Op: "create", Detail: "empty subject"}
	}
	uid, err := o.login(ctx)
	if err != nil {
		return Receipt{}, err
	}

	vals := map[string]interface{}{
		"subject":       m.Subject,
		"body_html":     buildBody(m),
		"mailing_type":  "mail",
		"schedule_date": m.When.UTC().Format(odooTime),
	}
	if audience := o.audience(m.AudienceIDs); len(audience) > 0 {
		// (6, 0, ids) replaces the many2many with exactly ids.
		vals["contact_list_ids"] = []interface{}{[]interface{}{6, 0, audience}}
	}

	id := int64(m.ID)
	if id != 0 {
		var ok bool
		if err := o.execute(ctx, uid, "write", []interface{}{[]interface{}{id}, vals}, &ok); err != nil {
			return Receipt{ID: m.ID}, &DeliveryError{Op: "write", Detail: err.Error()}
		}
	} else if err := o.execute(ctx, uid, "create", []interface{}{vals}, &id); err != nil {
		return Receipt{}, &DeliveryError{Op: "create", Detail: err.Error()}
	}
	rec := Receipt{ID: int(id)}

	var ignored interface{}
	err = o.execute(ctx, uid, "action_schedule", []interface{}{[]interface{}{id}}, &ignored)
	switch {
	case err == nil:
	case isNullMarshalFault(err):
		o.logger.Warn("odoo returned None for action_schedule", "mailing_id", id)
		rec.Warnings = append(rec.Warnings, fmt.Sprintf("Odoo n'a pas confirmé la planification du mailing %d (réponse vide).", id))
	default:
		return rec, &DeliveryError{Op: "action_schedule", Detail: err.Error()}
	}

	o.logger.Info("mailing scheduled", "mailing_id", id, "when", m.When.UTC().Format(time.RFC3339), "lists", len(m.AudienceIDs))
	return rec, nil
}

func (o *Odoo) audience(ids []int) []interface{} {
	if len(ids) == 0 {
		for _, l := range o.cfg.MailingLists {
			ids = append(ids, l.ID)
		}
	}
	out := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		out = append(out, id)
	}
	return out
}

func (o *Odoo) login(ctx context.Context) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.uid != 0 {
		return o.uid, nil
	}

	var reply interface{}
	args := []interface{}{o.cfg.DB, o.cfg.Username, o.cfg.Password, map[string]interface{}{}}
	if err := o.rpc.Call(ctx, "common", "authenticate", args, &reply); err != nil {
		return 0, &DeliveryError{Op: "authenticate", Detail: err.Error()}
	}
	uid, ok := reply.(int64)
	if !ok || uid == 0 {
		return 0, &DeliveryError{Op: "authenticate", Detail: "identifiants Odoo refusés"}
	}
	o.uid = uid
	return uid, nil
}

func (o *Odoo) execute(ctx context.Context, uid int64, method string, args []interface{}, reply interface{}) error {
	params := []interface{}{o.cfg.DB, uid, o.cfg.Password, mailingModel, method, args}
	return o.rpc.Call(ctx, "object", "execute_kw", params, reply)
}

func isNullMarshalFault(err error) bool {
	return err != nil && strings.Contains(err.Error(), "cannot marshal None")
}

// xmlrpcCaller holds one client per Odoo service endpoint.
type xmlrpcCaller struct {
	clients map[string]*xmlrpc.Client
}

// newXMLRPCCaller bounds every request by timeout at the transport level;
// kolo/xmlrpc has no per-call context.
func newXMLRPCCaller(baseURL string, timeout time.Duration) (*xmlrpcCaller, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout

	base := strings.TrimRight(baseURL, "/")
	c := &xmlrpcCaller{clients: make(map[string]*xmlrpc.Client)}
	for _, service := range []string{"common", "object"} {
		client, err := xmlrpc.NewClient(base+"/xmlrpc/2/"+service, transport)
		if err != nil {
			return nil, err
		}
		c.clients[service] = client
	}
	return c, nil
}

// Call runs the blocking client call in its own goroutine so ctx can abandon
// it. The abandoned request ends at the transport timeout.
func (c *xmlrpcCaller) Call(ctx context.Context, service, method string, args []interface{}, reply interface{}) error {
	client, ok := c.clients[service]
	if !ok {
		return errors.New("unknown odoo service " + service)
	}
	done := make(chan error, 1)
	go func() {
		done <- client.Call(method, args, reply)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
