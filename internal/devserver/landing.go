package devserver

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/nextlevelbuilder/mirrorpair/internal/qr"
)

var landingTmpl = template.Must(template.New("landing").Parse(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{if .Token}}
<p>Scan to join this pairing, or enter the token on the other device.</p>
{{if .QR}}<img alt="pairing code" src="{{.QR}}" width="256" height="256">{{end}}
<pre>{{.Token}}</pre>
{{if ge .TTL 0}}<p>Expires in {{.TTL}} seconds.</p>{{end}}
{{else}}
<p>No pairing token given.</p>
{{end}}
</body>
</html>
`))

type landingData struct {
	Title string
	Token string
	TTL   int
	QR    template.URL
}

// handleLanding serves the page a scanned pairing QR code opens.
func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	data := landingData{Title: "Device Pairing", Token: r.URL.Query().Get("token"), TTL: -1}
	if data.Token != "" {
		if obj, err := s.registry.Remaining(data.Token); err == nil {
			data.TTL = obj.TTL
		}
		// The QR encodes this same page so a second device can scan it.
		u := *r.URL
		u.Scheme, u.Host = "http", r.Host
		if r.TLS != nil {
			u.Scheme = "https"
		}
		if img, err := qr.DataURL(u.String()); err == nil {
			data.QR = template.URL(img)
		} else {
			slog.Warn("devserver: landing qr failed", "error", err)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := landingTmpl.Execute(w, data); err != nil {
		slog.Warn("devserver: landing render failed", "error", err)
	}
}
