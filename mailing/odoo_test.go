package mailing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto_social_publisher/config"
)

type rpcCall struct {
	Service string
	Method  string
	Args    []interface{}
}

type fakeCaller struct {
	calls     []rpcCall
	uid       interface{}
	scheduleE error
	createE   error
}

func (f *fakeCaller) Call(_ context.Context, service, method string, args []interface{}, reply interface{}) error {
	f.calls = append(f.calls, rpcCall{service, method, args})
	if method == "authenticate" {
		*(reply.(*interface{})) = f.uid
		return nil
	}
	switch args[4] {
	case "create":
		if f.createE != nil {
			return f.createE
		}
		*(reply.(*int64)) = 31
	case "write":
		*(reply.(*bool)) = true
	case "action_schedule":
		err := f.scheduleE
		f.scheduleE = nil
		return err
	}
	return nil
}

func testConfig() config.OdooConfig {
	return config.OdooConfig{
		URL: "https://odoo.example", DB: "shop", Username: "bot", Password: "pw",
		MailingLists: []config.MailingList{{Name: "Clients", ID: 1}, {Name: "Bénévoles", ID: 2}},
	}
}

func TestSchedule_CreateThenSchedule(t *testing.T) {
	fc := &fakeCaller{uid: int64(7)}
	o := newOdoo(testConfig(), fc, nil)
	when := time.Date(2024, time.March, 6, 5, 0, 0, 0, time.UTC)

	rec, err := o.Schedule(context.Background(), Mailing{
		Subject: "Fête", Body: "<h2>Samedi</h2><p>Venez !</p>", When: when, AudienceIDs: []int{2}, BodyIsHTML: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 31, rec.ID)
	assert.Empty(t, rec.Warnings)

	require.Len(t, fc.calls, 3)
	assert.Equal(t, "authenticate", fc.calls[0].Method)

	create := fc.calls[1]
	assert.Equal(t, []interface{}{"shop", int64(7), "pw", "mailing.mailing", "create"}, create.Args[:5])
	vals := create.Args[5].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "Fête", vals["subject"])
	assert.Equal(t, "2024-03-06 05:00:00", vals["schedule_date"])
	assert.Equal(t, "mail", vals["mailing_type"])
	assert.Contains(t, vals["body_html"], `font-size:22px`)
	assert.Equal(t, []interface{}{[]interface{}{6, 0, []interface{}{2}}}, vals["contact_list_ids"])

	sched := fc.calls[2]
	assert.Equal(t, "action_schedule", sched.Args[4])
	assert.Equal(t, []interface{}{[]interface{}{int64(31)}}, sched.Args[5])
}

func TestSchedule_DefaultAudienceIsEveryList(t *testing.T) {
	fc := &fakeCaller{uid: int64(7)}
	o := newOdoo(testConfig(), fc, nil)

	_, err := o.Schedule(context.Background(), Mailing{Subject: "s", Body: "b", When: time.Now()})
	require.NoError(t, err)
	vals := fc.calls[1].Args[5].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, []interface{}{[]interface{}{6, 0, []interface{}{1, 2}}}, vals["contact_list_ids"])
}

func TestSchedule_NullMarshalFaultIsWarning(t *testing.T) {
	fc := &fakeCaller{
		uid:       int64(7),
		scheduleE: errors.New("Fault(1): <class 'TypeError'>: cannot marshal None unless allow_none is enabled"),
	}
	o := newOdoo(testConfig(), fc, nil)

	rec, err := o.Schedule(context.Background(), Mailing{Subject: "s", Body: "b", When: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, 31, rec.ID)
	require.Len(t, rec.Warnings, 1)
	assert.Contains(t, rec.Warnings[0], "31")
}

func TestSchedule_RetryRewritesCreatedMailing(t *testing.T) {
	fc := &fakeCaller{uid: int64(7), scheduleE: errors.New("Fault(1): mailing locked")}
	o := newOdoo(testConfig(), fc, nil)
	m := Mailing{Subject: "s", Body: "b", When: time.Now()}

	rec, err := o.Schedule(context.Background(), m)
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "action_schedule", de.Op)
	assert.Equal(t, 31, rec.ID)

	m.ID = rec.ID
	rec, err = o.Schedule(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 31, rec.ID)

	var methods []interface{}
	for _, c := range fc.calls[1:] {
		methods = append(methods, c.Args[4])
	}
	assert.Equal(t, []interface{}{"create", "action_schedule", "write", "action_schedule"}, methods)
	write := fc.calls[3]
	assert.Equal(t, []interface{}{int64(31)}, write.Args[5].([]interface{})[0])
}

func TestSchedule_FaultIsDeliveryError(t *testing.T) {
	fc := &fakeCaller{uid: int64(7), createE: errors.New("Fault(2): ValidationError: missing body")}
	o := newOdoo(testConfig(), fc, nil)

	_, err := o.Schedule(context.Background(), Mailing{Subject: "s", Body: "b", When: time.Now()})
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.True(t, de.Delivery())
	assert.Equal(t, "create", de.Op)
	assert.Equal(t, "Fault(2): ValidationError: missing body", de.Detail)
}

func TestSchedule_LoginRefused(t *testing.T) {
	fc := &fakeCaller{uid: false}
	o := newOdoo(testConfig(), fc, nil)

	_, err := o.Schedule(context.Background(), Mailing{Subject: "s", Body: "b"})
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "authenticate", de.Op)
	assert.Len(t, fc.calls, 1)
}

func TestSchedule_LogsInOnce(t *testing.T) {
	fc := &fakeCaller{uid: int64(7)}
	o := newOdoo(testConfig(), fc, nil)

	for i := 0; i < 2; i++ {
		_, err := o.Schedule(context.Background(), Mailing{Subject: "s", Body: "b"})
		require.NoError(t, err)
	}
	n := 0
	for _, c := range fc.calls {
		if c.Method == "authenticate" {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestNew_MissingSettings(t *testing.T) {
	cfg := testConfig()
	cfg.Password = ""
	_, err := New(cfg, nil)
	require.True(t, config.IsConfigError(err))
	assert.Contains(t, err.Error(), "odoo.password")
}

// xmlrpcServer answers like Odoo: authenticate returns a uid, create an id
// and action_schedule the None fault.
func xmlrpcServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "text/xml")
		var value string
		switch {
		case strings.Contains(string(body), "<methodName>authenticate</methodName>"):
			assert.Equal(t, "/xmlrpc/2/common", r.URL.Path)
			value = "<int>7</int>"
		case strings.Contains(string(body), "<string>action_schedule</string>"):
			fmt.Fprint(w, `<?xml version="1.0"?><methodResponse><fault><value><struct>`+
				`<member><name>faultCode</name><value><int>1</int></value></member>`+
				`<member><name>faultString</name><value><string>cannot marshal None unless allow_none is enabled</string></value></member>`+
				`</struct></value></fault></methodResponse>`)
			return
		default:
			assert.Equal(t, "/xmlrpc/2/object", r.URL.Path)
			value = "<int>99</int>"
		}
		fmt.Fprintf(w, `<?xml version="1.0"?><methodResponse><params><param><value>%s</value></param></params></methodResponse>`, value)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOdoo_OverXMLRPC(t *testing.T) {
	srv := xmlrpcServer(t)
	cfg := testConfig()
	cfg.URL = srv.URL + "/"
	o, err := New(cfg, nil)
	require.NoError(t, err)

	rec, err := o.Schedule(context.Background(), Mailing{Subject: "s", Body: "b", Links: []string{"https://a.example"}, When: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, 99, rec.ID)
	assert.Len(t, rec.Warnings, 1)
}

func TestXMLRPCCaller_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c, err := newXMLRPCCaller(srv.URL, time.Minute)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	var reply interface{}
	err = c.Call(ctx, "common", "version", nil, &reply)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestXMLRPCCaller_ResponseTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c, err := newXMLRPCCaller(srv.URL, 50*time.Millisecond)
	require.NoError(t, err)

	var reply interface{}
	err = c.Call(context.Background(), "common", "version", nil, &reply)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}
