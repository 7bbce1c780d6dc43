package portal

import (
	"encoding/json"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/internet-of-plants/libiop/internal/logging"
	"github.com/internet-of-plants/libiop/wifi"
)

// configPage is the minimal configuration page served to captured clients.
// Rendering anything fancier is the host firmware's business; the portal
// only needs a form that submits a network name and password.
const configPage = `<!DOCTYPE html>
<html>
<head><title>Device Setup</title><meta name="viewport" content="width=device-width, initial-scale=1"></head>
<body>
<h1>Connect this device to your network</h1>
<form method="POST" action="/connect">
  <label>Network name <input type="text" name="network" maxlength="32" required></label><br>
  <label>Password <input type="password" name="password" maxlength="64"></label><br>
  <button type="submit">Connect</button>
</form>
<p id="state">Waiting for credentials.</p>
<script>
var ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = function (ev) {
  var s = JSON.parse(ev.data);
  document.getElementById("state").textContent = "Status: " + s.status;
};
</script>
</body>
</html>
`

const submittedPage = `<!DOCTYPE html>
<html>
<head><title>Connecting</title><meta http-equiv="refresh" content="2;url=/"></head>
<body><p>Trying to join the network&hellip;</p></body>
</html>
`

// handler builds the portal's HTTP surface.
func (c *Controller) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", c.handleRoot)
	mux.HandleFunc("/connect", c.handleConnect)
	mux.HandleFunc("/status", c.handleStatus)
	mux.HandleFunc("/ws", c.hub.handleUpgrade)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.redirectForeignHost(w, r) {
			return
		}
		mux.ServeHTTP(w, r)
	})
}

// redirectForeignHost sends any request not addressed to the device itself
// to the configuration page. This is what turns the DNS hijack into a
// portal: the client's original destination resolves here, gets a 302, and
// the browser lands on the page.
func (c *Controller) redirectForeignHost(w http.ResponseWriter, r *http.Request) bool {
	sess, _ := c.snapshot()
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == sess.RedirectHost {
		logging.LogPortalRequest(r.RemoteAddr, r.Host, r.URL.Path, false)
		return false
	}
	target := "http://" + sess.RedirectHost + "/"
	logging.LogPortalRequest(r.RemoteAddr, r.Host, r.URL.Path, true)
	http.Redirect(w, r, target, http.StatusFound)
	return true
}

func (c *Controller) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(configPage))
}

// handleConnect accepts the credential form. The handler only validates
// and enqueues; the actual connect attempt happens on the next tick, on
// the tick goroutine. A submission is accepted even while a previous
// attempt is still connecting; the newest submission wins.
func (c *Controller) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}
	creds := wifi.Credentials{
		Name:     r.PostForm.Get("network"),
		Password: r.PostForm.Get("password"),
	}
	if creds.Name == "" {
		http.Error(w, "network name required", http.StatusBadRequest)
		return
	}
	if err := creds.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	select {
	case c.submissions <- creds:
		logging.Info("Portal captured credentials", zap.String("network", creds.Name))
	default:
		// queue full means the tick loop is wedged; refuse rather than block
		http.Error(w, "busy", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(submittedPage))
}

// handleStatus serves the connection status as JSON, for clients that poll
// instead of holding the websocket open.
func (c *Controller) handleStatus(w http.ResponseWriter, r *http.Request) {
	sess, status := c.snapshot()
	msg := statusMessage{Status: status.String()}
	if sess.CapturedCredentials != nil {
		msg.Network = sess.CapturedCredentials.Name
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(msg)
}
