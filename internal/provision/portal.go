package provision

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"git.sr.ht/~spc/go-log"
	"golang.org/x/crypto/bcrypt"
)

var formTemplate = template.Must(template.New("form").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{if .Error}}<p style="color:red">{{.Error}}</p>{{end}}
{{if .Done}}<p>Settings saved. The locker is restarting.</p>{{else}}
<form method="post">
<label>Broker host <input name="broker-host" value="{{.BrokerHost}}"></label><br>
<label>Broker port <input name="broker-port" value="{{.BrokerPort}}"></label><br>
<label>Device ID <input name="device-id" value="{{.DeviceID}}"></label><br>
<input type="submit" value="Save">
</form>
{{end}}
</body>
</html>
`))

type formData struct {
	Title      string
	Error      string
	Done       bool
	BrokerHost string
	BrokerPort string
	DeviceID   string
}

// Portal is a Provisioner serving a small setup form over HTTP.
type Portal struct {
	addr         string
	passwordHash []byte
	defaults     Settings
	results      chan Settings
}

// NewPortal returns a Portal listening on addr once Provision is called. When
// passwordHash is non-empty, requests must carry HTTP basic auth credentials
// whose password matches the bcrypt hash. defaults pre-fill the form.
func NewPortal(addr string, passwordHash string, defaults Settings) *Portal {
	p := Portal{
		addr:     addr,
		defaults: defaults,
		results:  make(chan Settings, 1),
	}
	if passwordHash != "" {
		p.passwordHash = []byte(passwordHash)
	}
	return &p
}

// Provision serves the form until valid settings are submitted or ctx is
// done.
func (p *Portal) Provision(ctx context.Context) (Settings, error) {
	listener, err := net.Listen("tcp", p.addr)
	if err != nil {
		return Settings{}, fmt.Errorf("cannot listen on %v: %w", p.addr, err)
	}

	server := &http.Server{
		Handler:           p,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Infof("provisioning portal listening on %v", listener.Addr())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warnf("cannot shut down provisioning portal: %v", err)
		}
	}()

	select {
	case settings := <-p.results:
		return settings, nil
	case err := <-serveErr:
		return Settings{}, fmt.Errorf("provisioning portal failed: %w", err)
	case <-ctx.Done():
		return Settings{}, ErrTimeout
	}
}

func (p *Portal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !p.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="lockandgo"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data := formData{
		Title:      "Locker setup",
		BrokerHost: p.defaults.BrokerHost,
		DeviceID:   p.defaults.DeviceID,
	}
	if p.defaults.BrokerPort > 0 {
		data.BrokerPort = strconv.Itoa(p.defaults.BrokerPort)
	}

	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		data.BrokerHost = strings.TrimSpace(r.PostFormValue("broker-host"))
		data.BrokerPort = strings.TrimSpace(r.PostFormValue("broker-port"))
		data.DeviceID = strings.TrimSpace(r.PostFormValue("device-id"))

		settings, err := parseSettings(data)
		if err != nil {
			log.Debugf("rejected provisioning form: %v", err)
			data.Error = err.Error()
			w.WriteHeader(http.StatusBadRequest)
			break
		}

		select {
		case p.results <- settings:
			data.Done = true
		default:
			http.Error(w, "already provisioned", http.StatusConflict)
			return
		}
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := formTemplate.Execute(w, data); err != nil {
		log.Errorf("cannot render provisioning form: %v", err)
	}
}

func (p *Portal) authorized(r *http.Request) bool {
	if len(p.passwordHash) == 0 {
		return true
	}
	_, password, ok := r.BasicAuth()
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(p.passwordHash, []byte(password)) == nil
}

func parseSettings(data formData) (Settings, error) {
	port, err := strconv.Atoi(data.BrokerPort)
	if err != nil {
		return Settings{}, fmt.Errorf("invalid broker port '%v'", data.BrokerPort)
	}
	settings := Settings{
		BrokerHost: data.BrokerHost,
		BrokerPort: port,
		DeviceID:   data.DeviceID,
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}
