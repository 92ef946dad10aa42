package provision

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/crypto/bcrypt"
)

func postForm(p *Portal, values url.Values, user, password string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if password != "" {
		req.SetBasicAuth(user, password)
	}
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)
	return rec
}

func TestPortalForm(t *testing.T) {
	p := NewPortal("127.0.0.1:0", "", Settings{BrokerHost: "broker.local", BrokerPort: 1883})

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("%v != %v", rec.Code, http.StatusOK)
	}
	for _, want := range []string{`name="broker-host" value="broker.local"`, `name="broker-port" value="1883"`, `name="device-id"`} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("form does not contain %v", want)
		}
	}
}

func TestPortalSubmit(t *testing.T) {
	tests := []struct {
		description string
		input       url.Values
		wantCode    int
		want        *Settings
	}{
		{
			description: "valid",
			input: url.Values{
				"broker-host": {"192.168.1.100"},
				"broker-port": {"1883"},
				"device-id":   {" locker_01 "},
			},
			wantCode: http.StatusOK,
			want:     &Settings{BrokerHost: "192.168.1.100", BrokerPort: 1883, DeviceID: "locker_01"},
		},
		{
			description: "non numeric port",
			input: url.Values{
				"broker-host": {"192.168.1.100"},
				"broker-port": {"mqtt"},
				"device-id":   {"locker_01"},
			},
			wantCode: http.StatusBadRequest,
		},
		{
			description: "wildcard identity",
			input: url.Values{
				"broker-host": {"192.168.1.100"},
				"broker-port": {"1883"},
				"device-id":   {"locker/+"},
			},
			wantCode: http.StatusBadRequest,
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			p := NewPortal("127.0.0.1:0", "", Settings{})

			rec := postForm(p, test.input, "", "")

			if rec.Code != test.wantCode {
				t.Errorf("%v != %v", rec.Code, test.wantCode)
			}
			select {
			case got := <-p.results:
				if test.want == nil {
					t.Fatalf("unexpected settings %+v", got)
				}
				if !cmp.Equal(got, *test.want) {
					t.Errorf("%v", cmp.Diff(got, *test.want))
				}
			default:
				if test.want != nil {
					t.Fatal("no settings submitted")
				}
			}
		})
	}
}

func TestPortalPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	p := NewPortal("127.0.0.1:0", string(hash), Settings{})
	form := url.Values{
		"broker-host": {"192.168.1.100"},
		"broker-port": {"1883"},
		"device-id":   {"locker_01"},
	}

	if rec := postForm(p, form, "admin", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("%v != %v", rec.Code, http.StatusUnauthorized)
	}
	if rec := postForm(p, form, "admin", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("%v != %v", rec.Code, http.StatusUnauthorized)
	}
	if rec := postForm(p, form, "admin", "s3cret"); rec.Code != http.StatusOK {
		t.Errorf("%v != %v", rec.Code, http.StatusOK)
	}
}

func TestPortalProvision(t *testing.T) {
	p := NewPortal("127.0.0.1:0", "", Settings{})
	postForm(p, url.Values{
		"broker-host": {"10.0.0.1"},
		"broker-port": {"1883"},
		"device-id":   {"locker_03"},
	}, "", "")

	got, err := p.Provision(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := Settings{BrokerHost: "10.0.0.1", BrokerPort: 1883, DeviceID: "locker_03"}
	if !cmp.Equal(got, want) {
		t.Errorf("%v", cmp.Diff(got, want))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Provision(ctx); !errors.Is(err, ErrTimeout) {
		t.Errorf("%v != %v", err, ErrTimeout)
	}
}
