// Package nginx renders per-route nginx configuration, manages the
// servers directory tree and drives the nginx process.
package nginx

import (
	"bytes"
	"embed"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/bnema/proxied/internal/domain"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const generatedLayout = "2006-01-02 15:04:05"

// RenderConfig holds the paths and limits baked into rendered files.
type RenderConfig struct {
	WebRoot           string
	LogsRoot          string
	IncludesRoot      string
	ChallengeDocRoot  string
	ClientMaxBodySize string
}

// Renderer turns routes into nginx configuration text.
type Renderer struct {
	cfg   RenderConfig
	tmpl  *template.Template
	nowFn func() time.Time
}

// NewRenderer parses the embedded templates.
func NewRenderer(cfg RenderConfig) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse nginx templates: %w", err)
	}
	if cfg.ClientMaxBodySize == "" {
		cfg.ClientMaxBodySize = "256M"
	}
	return &Renderer{cfg: cfg, tmpl: tmpl, nowFn: time.Now}, nil
}

type headerData struct {
	Generated string
}

type upstreamData struct {
	headerData
	Name    string
	Servers []string
}

type serverData struct {
	headerData
	Name          string
	ServerNames   string
	MaxBodySize   string
	AccessLog     string
	ErrorLog      string
	WebRoot       string
	ProxyInclude  string
	SSLInclude    string
	ChallengeRoot string
	RedirectHTTPS bool
	Certificate   string
	PrivateKey    string
}

type includeData struct {
	headerData
	LegacySSLOn bool
	MaxBodySize string
	WebRoot     string
}

func (r *Renderer) header() headerData {
	return headerData{Generated: r.nowFn().Format(generatedLayout)}
}

func (r *Renderer) execute(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", strings.TrimSuffix(name, ".tmpl"), err)
	}
	return buf.Bytes(), nil
}

// ChallengeRoot returns the HTTP-01 document root of a primary domain.
func (r *Renderer) ChallengeRoot(primary string) string {
	return filepath.Join(r.cfg.ChallengeDocRoot, primary)
}

// Upstream renders upstream.conf: one server line per upstream.
func (r *Renderer) Upstream(route *domain.Route) ([]byte, error) {
	upstreams := route.EffectiveUpstreams()
	if len(upstreams) == 0 {
		return nil, domain.ErrNoUpstreams
	}
	servers := make([]string, 0, len(upstreams))
	for _, u := range upstreams {
		servers = append(servers, u.Address())
	}
	return r.execute("upstream.conf.tmpl", upstreamData{
		headerData: r.header(),
		Name:       route.Name,
		Servers:    servers,
	})
}

func (r *Renderer) server(route *domain.Route) (serverData, error) {
	names := route.DomainNames()
	if len(names) == 0 {
		return serverData{}, domain.ErrNoDomains
	}
	return serverData{
		headerData:    r.header(),
		Name:          route.Name,
		ServerNames:   strings.Join(names, " "),
		MaxBodySize:   r.cfg.ClientMaxBodySize,
		AccessLog:     filepath.Join(r.cfg.LogsRoot, route.Name+".access.log"),
		ErrorLog:      filepath.Join(r.cfg.LogsRoot, route.Name+".error.log"),
		WebRoot:       r.cfg.WebRoot,
		ProxyInclude:  filepath.Join(r.cfg.IncludesRoot, "proxy.conf"),
		SSLInclude:    filepath.Join(r.cfg.IncludesRoot, "ssl.conf"),
		ChallengeRoot: r.ChallengeRoot(names[0]),
	}, nil
}

// HTTP renders http.conf. When redirectHTTPS is set, every request except
// ACME challenges is answered with a 301 to the https scheme.
func (r *Renderer) HTTP(route *domain.Route, redirectHTTPS bool) ([]byte, error) {
	data, err := r.server(route)
	if err != nil {
		return nil, err
	}
	data.RedirectHTTPS = redirectHTTPS
	return r.execute("http.conf.tmpl", data)
}

// HTTPS renders https.conf referencing the given certificate and key.
func (r *Renderer) HTTPS(route *domain.Route, certificate, privateKey string) ([]byte, error) {
	data, err := r.server(route)
	if err != nil {
		return nil, err
	}
	data.Certificate = certificate
	data.PrivateKey = privateKey
	return r.execute("https.conf.tmpl", data)
}

// ProxyInclude renders includes/proxy.conf.
func (r *Renderer) ProxyInclude() ([]byte, error) {
	return r.execute("proxy.conf.tmpl", includeData{headerData: r.header()})
}

// SSLInclude renders includes/ssl.conf. legacySSLOn emits the "ssl on"
// directive that nginx removed in 1.15.
func (r *Renderer) SSLInclude(legacySSLOn bool) ([]byte, error) {
	return r.execute("ssl.conf.tmpl", includeData{headerData: r.header(), LegacySSLOn: legacySSLOn})
}

// DefaultServer renders conf/default.conf with the status endpoint and the
// catch-all 404 server.
func (r *Renderer) DefaultServer() ([]byte, error) {
	return r.execute("default.conf.tmpl", includeData{
		headerData:  r.header(),
		MaxBodySize: r.cfg.ClientMaxBodySize,
		WebRoot:     r.cfg.WebRoot,
	})
}
