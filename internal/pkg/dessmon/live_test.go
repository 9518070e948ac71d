package dessmon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDevice = Device{
	PN:      "P0000000000001",
	SN:      "S000000000000100AA01",
	Devcode: "2477",
	Devaddr: "5",
}

func writeEnvelope(t *testing.T, w http.ResponseWriter, errCode int, desc string, dat interface{}) {
	t.Helper()

	resp := map[string]interface{}{"err": errCode, "desc": desc}
	if dat != nil {
		resp["dat"] = dat
	}
	require.NoError(t, json.NewEncoder(w).Encode(resp))
}

func newTestClient(ts *httptest.Server) *Live {
	c := NewLiveClient(testDevice).WithEndpoints(ts.URL+"/", ts.URL+"/")
	c.client = ts.Client()
	return c
}

func TestLiveLoginAndQuery(t *testing.T) {
	var loginCalls, queryCalls int

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		switch q.Get("action") {
		case "authSource":
			loginCalls++

			// The login signature covers salt + SHA-1(password) + params
			salt := q.Get("salt")
			params := "&action=authSource&usr=user@example.com" +
				"&company-key=0123456789ABCDEF&source=1&_app_client_=android" +
				"&_app_id_=com.eybond.smartclient.ess&_app_version_=3.40.1.0"
			assert.Equal(t, sha1Hex(salt+sha1Hex("hunter2")+params), q.Get("sign"))

			writeEnvelope(t, w, 0, "", map[string]string{"token": "tok-123", "secret": "sec-456"})
		case "queryDeviceCtrlValue":
			queryCalls++

			assert.Equal(t, "tok-123", q.Get("token"))
			assert.Equal(t, testDevice.SN, q.Get("sn"))
			assert.Equal(t, testDevice.PN, q.Get("pn"))
			assert.Equal(t, "los_output_source_priority", q.Get("id"))

			writeEnvelope(t, w, 0, "", map[string]string{"id": "los_output_source_priority", "val": "2"})
		default:
			http.Error(w, "unexpected action: "+q.Get("action"), 404)
		}
	}))
	defer ts.Close()

	c := newTestClient(ts)
	api := c.WithAccount("user@example.com", "hunter2")

	v, err := api.OutputPriority()
	require.NoError(t, err)

	assert.Equal(t, 1, loginCalls)
	assert.Equal(t, 1, queryCalls)
	assert.Equal(t, "los_output_source_priority", v.ID)
	assert.Equal(t, "2", v.Value)
}

func TestLiveCommandSignature(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "ctrlDevice", q.Get("action"))

		// The command signature covers salt + secret + token + sorted params,
		// with the salt signed but carried in its own query parameter
		salt := q.Get("salt")
		params := "&action=ctrlDevice&devaddr=5&devcode=2477&i18n=en_US" +
			"&id=los_output_source_priority&pn=" + testDevice.PN +
			"&salt=" + salt + "&sn=" + testDevice.SN + "&source=1&val=1"
		assert.Equal(t, sha1Hex(salt+"sec-456"+"tok-123"+params), q.Get("sign"))
		assert.Equal(t, "tok-123", q.Get("token"))
		assert.Equal(t, "1", q.Get("val"))

		writeEnvelope(t, w, 0, "", nil)
	}))
	defer ts.Close()

	api := newTestClient(ts).WithSession("tok-123", "sec-456")

	require.NoError(t, api.SetOutputPriority(PrioritySolar))
}

func TestLiveAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, 258, "device offline", nil)
	}))
	defer ts.Close()

	api := newTestClient(ts).WithSession("tok", "sec")

	err := api.SetOutputPriority(PrioritySBU)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device offline")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 258, apiErr.Code)
	assert.False(t, apiErr.sessionExpired())
}

func TestLiveSessionExpiredRelogin(t *testing.T) {
	var loginCalls, ctrlCalls int

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		switch q.Get("action") {
		case "authSource":
			loginCalls++
			writeEnvelope(t, w, 0, "", map[string]string{"token": "fresh-tok", "secret": "fresh-sec"})
		case "ctrlDevice":
			ctrlCalls++
			if q.Get("token") == "stale-tok" {
				writeEnvelope(t, w, 10005, "token is expired", nil)
				return
			}
			assert.Equal(t, "fresh-tok", q.Get("token"))
			writeEnvelope(t, w, 0, "", nil)
		default:
			http.Error(w, "unexpected action", 404)
		}
	}))
	defer ts.Close()

	api := newTestClient(ts).
		WithSession("stale-tok", "stale-sec").
		WithAccount("user@example.com", "hunter2")

	require.NoError(t, api.SetOutputPriority(PrioritySBU))

	assert.Equal(t, 1, loginCalls, "one transparent re-login")
	assert.Equal(t, 2, ctrlCalls, "rejected command is replayed once")
}

func TestLiveSessionExpiredWithoutAccount(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, 10005, "token is expired", nil)
	}))
	defer ts.Close()

	api := newTestClient(ts).WithSession("stale-tok", "stale-sec")

	err := api.SetOutputPriority(PrioritySBU)
	require.Error(t, err, "no re-login possible without account credentials")
	assert.Contains(t, err.Error(), "token is expired")
}

func TestLiveHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer ts.Close()

	api := newTestClient(ts).WithSession("tok", "sec")

	err := api.SetOutputPriority(PrioritySolar)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected HTTP status 500")
}

func TestLiveNonJSONResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	defer ts.Close()

	api := newTestClient(ts).WithSession("tok", "sec")

	_, err := api.OutputPriority()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding non-JSON response")
}

func TestLiveNoCredentials(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without credentials")
	}))
	defer ts.Close()

	var api DeviceControl = newTestClient(ts)

	err := api.SetOutputPriority(PrioritySolar)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no account credentials")
}

func TestOutputPriorityString(t *testing.T) {
	assert.Equal(t, "SOLAR", PrioritySolar.String())
	assert.Equal(t, "SBU", PrioritySBU.String())
	assert.Equal(t, "OutputPriority(7)", OutputPriority(7).String())
}
